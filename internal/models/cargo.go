package models

import "time"

// Cargo is the shipper's goods. It is shared by every request in a resale chain.
type Cargo struct {
	ID            string    `bson:"_id" json:"id"`
	OwnerID       string    `bson:"ownerID" json:"ownerID"`
	ItemName      string    `bson:"itemName" json:"itemName"`
	TotalCBM      Volume    `bson:"totalCBM" json:"totalCBM"`
	Incoterms     string    `bson:"incoterms" json:"incoterms"`
	TradeType     string    `bson:"tradeType" json:"tradeType"`
	TransportType string    `bson:"transportType" json:"transportType"`
	Dangerous     bool      `bson:"dangerous" json:"dangerous"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
}
