package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContainerCargo allocates the cargo of a winning offer into that offer's
// container. There is at most one per offer.
type ContainerCargo struct {
	ID              string          `bson:"_id" json:"id"`
	ContainerID     string          `bson:"containerID" json:"containerID"`
	OfferID         string          `bson:"offerID" json:"offerID"`
	CBMLoaded       Volume          `bson:"cbmLoaded" json:"cbmLoaded"`
	External        bool            `bson:"external" json:"external"`
	FreightCost     decimal.Decimal `bson:"freightCost" json:"freightCost"`
	FreightCurrency string          `bson:"freightCurrency" json:"freightCurrency"`
	CreatedAt       time.Time       `bson:"createdAt" json:"createdAt"`
}
