// Package ledger defines the storage boundary of the marketplace: requests,
// offers, containers and cargo allocations. All mutation of these entities goes
// through the market services, which run every operation inside WithTx.
package ledger

import (
	"context"
	"fmt"
	"time"

	"freight-resale-api-server/internal/models"
)

var (
	// ErrAllocationExists is returned by InsertAllocation when the offer is
	// already allocated.
	ErrAllocationExists = fmt.Errorf("%w: allocation already exists", models.ErrConflict)
	// ErrStaleStatus is returned by the compare-and-set status updates when the
	// stored status no longer matches the expected one.
	ErrStaleStatus = fmt.Errorf("%w: status changed concurrently", models.ErrConflict)
)

// Transactor runs fn atomically. Nested calls join the outer transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CargoLedger interface {
	GetCargo(ctx context.Context, id string) (models.Cargo, error)
	InsertCargo(ctx context.Context, c models.Cargo) error
}

type RequestLedger interface {
	GetRequest(ctx context.Context, id string) (models.Request, error)
	InsertRequest(ctx context.Context, r models.Request) error
	// CloseRequest moves an OPEN request to CLOSED and fails with
	// models.ErrRequestClosed when it is not OPEN any more.
	CloseRequest(ctx context.Context, id string, at time.Time) error
	// FindRequestsBySourceOffer returns the resale requests layered on offerID,
	// most recently created first.
	FindRequestsBySourceOffer(ctx context.Context, offerID string) ([]models.Request, error)
	// FindRequestsBySourceOffers is the batch form, keyed by source offer ID,
	// each slice ordered like FindRequestsBySourceOffer.
	FindRequestsBySourceOffers(ctx context.Context, offerIDs []string) (map[string][]models.Request, error)
	ListRequestsByRequester(ctx context.Context, requesterID string, resale bool) ([]models.Request, error)
	// ListExpiredResales returns OPEN resale requests whose deadline is before now.
	ListExpiredResales(ctx context.Context, now time.Time) ([]models.Request, error)
}

type OfferLedger interface {
	GetOffer(ctx context.Context, id string) (models.Offer, error)
	InsertOffer(ctx context.Context, o models.Offer) error
	// UpdateOfferStatus sets the status to `to` only if it is still `from`.
	UpdateOfferStatus(ctx context.Context, id string, from, to models.OfferStatus, at time.Time) error
	ListOffersByRequest(ctx context.Context, requestID string) ([]models.Offer, error)
	ListOffersByContainer(ctx context.Context, containerID string) ([]models.Offer, error)
	ListOffersByForwarder(ctx context.Context, forwarderID string) ([]models.Offer, error)
	HasOffer(ctx context.Context, requestID, forwarderID string) (bool, error)
	// FindWinningOffer returns the single live offer of a request, nil when the
	// request has no winner, and models.ErrMultipleWinners when it has several.
	FindWinningOffer(ctx context.Context, requestID string) (*models.Offer, error)
	// FindWinningOffers is the batch form: requests with several live offers
	// are left out of the map and returned as ambiguous.
	FindWinningOffers(ctx context.Context, requestIDs []string) (winners map[string]models.Offer, ambiguous []string, err error)
	CountOffersByRequests(ctx context.Context, requestIDs []string) (map[string]int, error)
}

type ContainerLedger interface {
	GetContainer(ctx context.Context, id string) (models.Container, error)
	GetContainers(ctx context.Context, ids []string) (map[string]models.Container, error)
	InsertContainer(ctx context.Context, c models.Container) error
	UpdateContainerStatus(ctx context.Context, id string, from, to models.ContainerStatus, at time.Time) error
}

type AllocationLedger interface {
	// GetAllocationByOffer returns nil when the offer has no allocation.
	GetAllocationByOffer(ctx context.Context, offerID string) (*models.ContainerCargo, error)
	InsertAllocation(ctx context.Context, a models.ContainerCargo) error
	// DeleteAllocationByOffer removes the offer's allocation if there is one.
	DeleteAllocationByOffer(ctx context.Context, offerID string) (bool, error)
	ListAllocationsByContainer(ctx context.Context, containerID string) ([]models.ContainerCargo, error)
}

// Ledger is everything the market services need from storage.
type Ledger interface {
	Transactor
	CargoLedger
	RequestLedger
	OfferLedger
	ContainerLedger
	AllocationLedger
}
