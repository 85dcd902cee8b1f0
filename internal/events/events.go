// Package events holds the immutable records the market services emit and the
// notification fan-out consumes.
package events

import (
	"freight-resale-api-server/internal/models"
)

type Kind string

const (
	KindOfferCreated           Kind = "offer_created"
	KindOfferConfirmed         Kind = "offer_confirmed"
	KindContainerStatusChanged Kind = "container_status_changed"
	KindRequestCreated         Kind = "request_created"
	KindDealMade               Kind = "deal_made"
	KindUserJoined             Kind = "user_joined"
)

type Event interface {
	Kind() Kind
}

type OfferCreated struct {
	Offer models.Offer
}

// OfferConfirmed carries every offer of the closed auction after the status
// update, plus the winner.
type OfferConfirmed struct {
	Offers  []models.Offer
	Winning models.Offer
}

type ContainerStatusChanged struct {
	Container models.Container
	Message   string
}

// RequestSummary is the listing card pushed to forwarders for a new auction.
type RequestSummary struct {
	RequestID     string               `json:"requestId"`
	ItemName      string               `json:"itemName"`
	TotalCBM      models.Volume        `json:"cbm"`
	DeparturePort string               `json:"departurePort"`
	ArrivalPort   string               `json:"arrivalPort"`
	Deadline      string               `json:"deadline"`
	TradeType     string               `json:"tradeType"`
	TransportType string               `json:"transportType"`
	Resale        bool                 `json:"resale"`
	Status        models.RequestStatus `json:"status"`
}

type RequestCreated struct {
	Summary     RequestSummary
	RequesterID string
}

type DealMade struct{}

type UserJoined struct {
	UserID string
}

func (OfferCreated) Kind() Kind           { return KindOfferCreated }
func (OfferConfirmed) Kind() Kind         { return KindOfferConfirmed }
func (ContainerStatusChanged) Kind() Kind { return KindContainerStatusChanged }
func (RequestCreated) Kind() Kind         { return KindRequestCreated }
func (DealMade) Kind() Kind               { return KindDealMade }
func (UserJoined) Kind() Kind             { return KindUserJoined }
