package models

import "time"

type Role string

const (
	RoleShipper   Role = "shipper"
	RoleForwarder Role = "forwarder"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleShipper, RoleForwarder, RoleAdmin:
		return true
	default:
		return false
	}
}

// User matches the document in the users collection.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	CompanyName  string    `bson:"companyName" json:"companyName"`
	PasswordHash string    `bson:"password" json:"-"`
	Role         Role      `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}
