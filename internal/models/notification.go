package models

import "time"

// Notification is a persisted message shown to the user on next login.
type Notification struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userID" json:"userID"`
	Message   string    `bson:"message" json:"message"`
	URL       string    `bson:"url" json:"url"`
	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
