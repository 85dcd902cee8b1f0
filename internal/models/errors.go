package models

import (
	"errors"
	"fmt"
)

// Error classes. Every business error wraps exactly one of these so transport
// layers can map them with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid input")
)

var (
	ErrRequestNotFound   = fmt.Errorf("request %w", ErrNotFound)
	ErrOfferNotFound     = fmt.Errorf("offer %w", ErrNotFound)
	ErrContainerNotFound = fmt.Errorf("container %w", ErrNotFound)
	ErrCargoNotFound     = fmt.Errorf("cargo %w", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)

	ErrNotRequester      = fmt.Errorf("%w: caller is not the requester", ErrForbidden)
	ErrNotOfferOwner     = fmt.Errorf("%w: caller does not own the offer", ErrForbidden)
	ErrNotContainerOwner = fmt.Errorf("%w: caller does not own the container", ErrForbidden)
	ErrOwnRequest        = fmt.Errorf("%w: cannot bid on own request", ErrForbidden)

	ErrRequestClosed       = fmt.Errorf("%w: request is not open", ErrConflict)
	ErrNotPrimaryRequest   = fmt.Errorf("%w: request is a resale request", ErrConflict)
	ErrNotResaleRequest    = fmt.Errorf("%w: request is not a resale request", ErrConflict)
	ErrIllegalTransition   = fmt.Errorf("%w: illegal offer status transition", ErrConflict)
	ErrContainerNotOpen    = fmt.Errorf("%w: container is no longer scheduled", ErrConflict)
	ErrContainerTransition = fmt.Errorf("%w: illegal container status transition", ErrConflict)
	ErrMultipleWinners     = fmt.Errorf("%w: more than one live offer on request", ErrConflict)
	ErrDeadlinePassed      = fmt.Errorf("%w: bidding deadline has passed", ErrConflict)
	ErrDuplicateOffer      = fmt.Errorf("%w: forwarder already bid on request", ErrConflict)
	ErrEmailTaken          = fmt.Errorf("%w: email already registered", ErrConflict)
)

// Transition returns ErrIllegalTransition annotated with both statuses when
// from cannot move to to.
func Transition(from, to OfferStatus) error {
	if from.CanTransition(to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
