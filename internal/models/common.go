// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh identifier for any ledger entity.
func NewID() string {
	return uuid.NewString()
}

// Volume is a cargo volume expressed in cubic metres.
type Volume float64

// Route is the port pair shared by cargo requests and containers.
type Route struct {
	DeparturePort string `bson:"departurePort" json:"departurePort"`
	ArrivalPort   string `bson:"arrivalPort" json:"arrivalPort"`
}

func (r Route) String() string {
	return r.DeparturePort + " -> " + r.ArrivalPort
}

// Stamp truncates t to millisecond precision, which is what MongoDB keeps.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
