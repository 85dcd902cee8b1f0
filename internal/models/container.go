package models

import "time"

type ContainerStatus string

const (
	ContainerScheduled ContainerStatus = "SCHEDULED"
	ContainerConfirmed ContainerStatus = "CONFIRMED"
	ContainerShipped   ContainerStatus = "SHIPPED"
	ContainerCompleted ContainerStatus = "COMPLETED"
	ContainerSettled   ContainerStatus = "SETTLED"
)

var containerOrder = map[ContainerStatus]int{
	ContainerScheduled: 0,
	ContainerConfirmed: 1,
	ContainerShipped:   2,
	ContainerCompleted: 3,
	ContainerSettled:   4,
}

func (s ContainerStatus) Valid() bool {
	_, ok := containerOrder[s]
	return ok
}

// CanAdvanceTo reports whether next is exactly one step after s.
func (s ContainerStatus) CanAdvanceTo(next ContainerStatus) bool {
	from, ok := containerOrder[s]
	if !ok {
		return false
	}
	to, ok := containerOrder[next]
	return ok && to == from+1
}

// OfferStatus returns the status allocated offers move to when their container
// reaches s, or false when the container status does not touch offers.
func (s ContainerStatus) OfferStatus() (OfferStatus, bool) {
	switch s {
	case ContainerConfirmed:
		return OfferConfirmed, true
	case ContainerShipped:
		return OfferShipped, true
	case ContainerCompleted:
		return OfferCompleted, true
	default:
		return "", false
	}
}

// Container is a physical shipment unit operated by one forwarder.
type Container struct {
	ID          string          `bson:"_id" json:"id"`
	ForwarderID string          `bson:"forwarderID" json:"forwarderID"`
	Size        string          `bson:"size" json:"size"`
	CapacityCBM Volume          `bson:"capacityCBM" json:"capacityCBM"`
	Route       `bson:",inline"`
	ETD         time.Time       `bson:"etd" json:"etd"`
	ETA         time.Time       `bson:"eta" json:"eta"`
	IMONumber   string          `bson:"imoNumber" json:"imoNumber"`
	Status      ContainerStatus `bson:"status" json:"status"`
	CompletedAt time.Time       `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
}
