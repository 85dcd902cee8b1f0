package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OfferStatus string

const (
	OfferPending   OfferStatus = "PENDING"
	OfferAccepted  OfferStatus = "ACCEPTED"
	OfferRejected  OfferStatus = "REJECTED"
	OfferForSale   OfferStatus = "FOR_SALE"
	OfferResold    OfferStatus = "RESOLD"
	OfferConfirmed OfferStatus = "CONFIRMED"
	OfferShipped   OfferStatus = "SHIPPED"
	OfferCompleted OfferStatus = "COMPLETED"
)

// offerTransitions lists every legal status change. Anything else is a conflict.
var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferPending:   {OfferAccepted, OfferRejected},
	OfferAccepted:  {OfferForSale, OfferConfirmed, OfferResold},
	OfferForSale:   {OfferAccepted, OfferResold},
	OfferConfirmed: {OfferShipped},
	OfferShipped:   {OfferCompleted},
}

func (s OfferStatus) CanTransition(to OfferStatus) bool {
	for _, next := range offerTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Live reports whether an offer in status s is the winner of its request.
// Every status outside PENDING and REJECTED is reachable only by winning.
func (s OfferStatus) Live() bool {
	return s != OfferPending && s != OfferRejected
}

func (s OfferStatus) Terminal() bool {
	return s == OfferRejected || s == OfferCompleted
}

// LiveExcluded is the status set a winning-offer query filters out.
var LiveExcluded = []OfferStatus{OfferPending, OfferRejected}

// Offer is a forwarder's bid against a request.
type Offer struct {
	ID          string          `bson:"_id" json:"id"`
	RequestID   string          `bson:"requestID" json:"requestID"`
	ForwarderID string          `bson:"forwarderID" json:"forwarderID"`
	Price       decimal.Decimal `bson:"price" json:"price"`
	Currency    string          `bson:"currency" json:"currency"`
	ContainerID string          `bson:"containerID" json:"containerID"`
	Status      OfferStatus     `bson:"status" json:"status"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// SplitWinners groups live offers by request. Requests with exactly one live
// offer map to it; requests with several are returned as ambiguous, in order
// of first appearance.
func SplitWinners(live []Offer) (map[string]Offer, []string) {
	winners := make(map[string]Offer, len(live))
	var ambiguous []string
	dropped := make(map[string]struct{})
	for _, o := range live {
		if _, ok := dropped[o.RequestID]; ok {
			continue
		}
		if _, dup := winners[o.RequestID]; dup {
			delete(winners, o.RequestID)
			dropped[o.RequestID] = struct{}{}
			ambiguous = append(ambiguous, o.RequestID)
			continue
		}
		winners[o.RequestID] = o
	}
	return winners, ambiguous
}
