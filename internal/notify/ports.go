// Package notify turns committed domain events into persisted notifications
// and best-effort pushes to connected users.
package notify

import (
	"context"
	"errors"

	"freight-resale-api-server/internal/models"
)

// ErrNotConnected is returned by a PushChannel when the recipient has no live
// connection. Fan-out treats it as a skipped delivery.
var ErrNotConnected = errors.New("recipient not connected")

// PushChannel is the registry of live client connections.
type PushChannel interface {
	SendToClient(userID, event string, payload any) error
	IsConnected(userID string) bool
	ConnectedUsers() []string
}

// MessageStore persists notifications. It is the durable record users see on
// their next login, whatever happened to the push.
type MessageStore interface {
	Save(ctx context.Context, n models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type Directory interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// ChainSource is the read-only ledger view the fan-out needs to compute
// recipients.
type ChainSource interface {
	GetRequest(ctx context.Context, id string) (models.Request, error)
	GetOffer(ctx context.Context, id string) (models.Offer, error)
	GetCargo(ctx context.Context, id string) (models.Cargo, error)
	CountOffersByRequests(ctx context.Context, requestIDs []string) (map[string]int, error)
	ListAllocationsByContainer(ctx context.Context, containerID string) ([]models.ContainerCargo, error)
}
