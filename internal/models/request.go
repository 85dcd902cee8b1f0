package models

import "time"

type RequestStatus string

const (
	RequestOpen   RequestStatus = "OPEN"
	RequestClosed RequestStatus = "CLOSED"
)

// Request is one auction over a unit of cargo. A primary request is posted by
// the shipper and has no SourceOfferID; a resale request is posted by the
// forwarder holding SourceOfferID.
type Request struct {
	ID                 string        `bson:"_id" json:"id"`
	CargoID            string        `bson:"cargoID" json:"cargoID"`
	RequesterID        string        `bson:"requesterID" json:"requesterID"`
	Route              `bson:",inline"`
	Deadline           time.Time     `bson:"deadline" json:"deadline"`
	DesiredArrivalDate time.Time     `bson:"desiredArrivalDate" json:"desiredArrivalDate"`
	TradeType          string        `bson:"tradeType" json:"tradeType"`
	TransportType      string        `bson:"transportType" json:"transportType"`
	Status             RequestStatus `bson:"status" json:"status"`
	SourceOfferID      string        `bson:"sourceOfferID,omitempty" json:"sourceOfferID,omitempty"`
	CreatedAt          time.Time     `bson:"createdAt" json:"createdAt"`
	ClosedAt           time.Time     `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
}

func (r Request) IsResale() bool {
	return r.SourceOfferID != ""
}

func (r Request) IsOpen() bool {
	return r.Status == RequestOpen
}
