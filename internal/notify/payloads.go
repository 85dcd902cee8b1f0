package notify

import (
	"freight-resale-api-server/internal/models"
)

// Push event names.
const (
	EventBidCountUpdate    = "bid_count_update"
	EventOfferStatusUpdate = "offer_status_update"
	EventShipmentUpdate    = "shipment_update"
	EventNewRequest        = "new_request"
	EventDashboardUpdate   = "dashboard_update"
	EventNotification      = "notification"
)

// Client routes used as notification links.
const (
	urlShipperRequests = "/shipper/requests"
	urlShipperTracking = "/shipper/tracking"
	urlForwarderPosted = "/forwarder/posted-requests"
	urlForwarderOffers = "/forwarder/offers"
)

type BidCountUpdate struct {
	RequestID   string `json:"requestId"`
	BidderCount int    `json:"bidderCount"`
}

type OfferStatusUpdate struct {
	OfferID    string             `json:"offerId"`
	Status     models.OfferStatus `json:"status"`
	StatusText string             `json:"statusText"`
}

type ShipmentUpdate struct {
	RequestID      string                 `json:"requestId"`
	DetailedStatus models.ContainerStatus `json:"detailedStatus"`
}

// Dashboard is the admin counter snapshot.
type Dashboard struct {
	Deals           int64 `json:"deals"`
	UsersJoined     int64 `json:"usersJoined"`
	RequestsCreated int64 `json:"requestsCreated"`
	OffersCreated   int64 `json:"offersCreated"`
}
