package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfferStatus_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to OfferStatus
		want     bool
	}{
		{OfferPending, OfferAccepted, true},
		{OfferPending, OfferRejected, true},
		{OfferAccepted, OfferForSale, true},
		{OfferAccepted, OfferConfirmed, true},
		{OfferForSale, OfferAccepted, true},
		{OfferForSale, OfferResold, true},
		{OfferConfirmed, OfferShipped, true},
		{OfferShipped, OfferCompleted, true},
		{OfferRejected, OfferAccepted, false},
		{OfferCompleted, OfferShipped, false},
		{OfferResold, OfferForSale, false},
		{OfferPending, OfferForSale, false},
		{OfferForSale, OfferConfirmed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOfferStatus_Live(t *testing.T) {
	t.Parallel()

	assert.False(t, OfferPending.Live())
	assert.False(t, OfferRejected.Live())
	for _, s := range []OfferStatus{OfferAccepted, OfferForSale, OfferResold, OfferConfirmed, OfferShipped, OfferCompleted} {
		assert.True(t, s.Live(), s)
	}
}

func TestTransitionWrapsConflict(t *testing.T) {
	t.Parallel()

	err := Transition(OfferRejected, OfferAccepted)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.NoError(t, Transition(OfferPending, OfferAccepted))
}

func TestContainerStatus_CanAdvanceTo(t *testing.T) {
	t.Parallel()

	assert.True(t, ContainerScheduled.CanAdvanceTo(ContainerConfirmed))
	assert.True(t, ContainerCompleted.CanAdvanceTo(ContainerSettled))
	assert.False(t, ContainerScheduled.CanAdvanceTo(ContainerShipped))
	assert.False(t, ContainerSettled.CanAdvanceTo(ContainerScheduled))
	assert.False(t, ContainerStatus("LOST").CanAdvanceTo(ContainerConfirmed))

	st, ok := ContainerShipped.OfferStatus()
	assert.True(t, ok)
	assert.Equal(t, OfferShipped, st)
	_, ok = ContainerSettled.OfferStatus()
	assert.False(t, ok)
}

func TestSplitWinners(t *testing.T) {
	t.Parallel()

	winners, ambiguous := SplitWinners([]Offer{
		{ID: "a", RequestID: "r1"},
		{ID: "b", RequestID: "r2"},
		{ID: "c", RequestID: "r2"},
		{ID: "d", RequestID: "r2"},
		{ID: "e", RequestID: "r3"},
	})
	assert.Equal(t, []string{"r2"}, ambiguous)
	assert.Len(t, winners, 2)
	assert.Equal(t, "a", winners["r1"].ID)
	assert.Equal(t, "e", winners["r3"].ID)
}
