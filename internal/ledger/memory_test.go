package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"freight-resale-api-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemory_WithTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "r1", Status: models.RequestOpen}))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, m.CloseRequest(txCtx, "r1", t0))
		require.NoError(t, m.InsertOffer(txCtx, models.Offer{ID: "o1", RequestID: "r1", Status: models.OfferPending}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	r, err := m.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestOpen, r.Status)
	_, err = m.GetOffer(ctx, "o1")
	assert.ErrorIs(t, err, models.ErrOfferNotFound)
}

func TestMemory_WithTxRollsBackOnPanic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "r1", Status: models.RequestOpen}))

	assert.PanicsWithValue(t, "boom", func() {
		_ = m.WithTx(ctx, func(txCtx context.Context) error {
			require.NoError(t, m.CloseRequest(txCtx, "r1", t0))
			panic("boom")
		})
	})

	r, err := m.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestOpen, r.Status)
}

func TestMemory_CloseRequestOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "r1", Status: models.RequestOpen}))

	require.NoError(t, m.CloseRequest(ctx, "r1", t0))
	err := m.CloseRequest(ctx, "r1", t0)
	assert.ErrorIs(t, err, models.ErrRequestClosed)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.ErrorIs(t, m.CloseRequest(ctx, "missing", t0), models.ErrNotFound)
}

func TestMemory_FindWinningOffer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertOffer(ctx, models.Offer{ID: "a", RequestID: "r1", Status: models.OfferRejected}))
	require.NoError(t, m.InsertOffer(ctx, models.Offer{ID: "b", RequestID: "r1", Status: models.OfferPending}))

	got, err := m.FindWinningOffer(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, m.InsertOffer(ctx, models.Offer{ID: "c", RequestID: "r1", Status: models.OfferResold}))
	got, err = m.FindWinningOffer(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c", got.ID)

	require.NoError(t, m.InsertOffer(ctx, models.Offer{ID: "d", RequestID: "r1", Status: models.OfferAccepted}))
	_, err = m.FindWinningOffer(ctx, "r1")
	assert.ErrorIs(t, err, models.ErrMultipleWinners)

	require.NoError(t, m.InsertOffer(ctx, models.Offer{ID: "e", RequestID: "r2", Status: models.OfferAccepted}))
	winners, ambiguous, err := m.FindWinningOffers(ctx, []string{"r1", "r2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ambiguous)
	require.Len(t, winners, 1)
	assert.Equal(t, "e", winners["r2"].ID)
}

func TestMemory_FindRequestsBySourceOfferNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "old", SourceOfferID: "o1", CreatedAt: t0}))
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "new", SourceOfferID: "o1", CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "same-time", SourceOfferID: "o1", CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "other", SourceOfferID: "o2", CreatedAt: t0}))
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "primary", CreatedAt: t0}))

	rs, err := m.FindRequestsBySourceOffer(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, []string{"same-time", "new", "old"}, []string{rs[0].ID, rs[1].ID, rs[2].ID})

	batch, err := m.FindRequestsBySourceOffers(ctx, []string{"o1", "o2", ""})
	require.NoError(t, err)
	assert.Len(t, batch["o1"], 3)
	assert.Len(t, batch["o2"], 1)
	_, hasEmpty := batch[""]
	assert.False(t, hasEmpty)
}

func TestMemory_UpdateOfferStatusCompareAndSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertOffer(ctx, models.Offer{ID: "o1", Status: models.OfferAccepted}))

	require.NoError(t, m.UpdateOfferStatus(ctx, "o1", models.OfferAccepted, models.OfferForSale, t0))
	err := m.UpdateOfferStatus(ctx, "o1", models.OfferAccepted, models.OfferForSale, t0)
	assert.ErrorIs(t, err, ErrStaleStatus)

	o, err := m.GetOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OfferForSale, o.Status)
	assert.Equal(t, t0, o.UpdatedAt)
}

func TestMemory_Allocations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertAllocation(ctx, models.ContainerCargo{ID: "a1", OfferID: "o1", ContainerID: "c1"}))
	assert.ErrorIs(t, m.InsertAllocation(ctx, models.ContainerCargo{ID: "a2", OfferID: "o1", ContainerID: "c1"}), ErrAllocationExists)

	list, err := m.ListAllocationsByContainer(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := m.DeleteAllocationByOffer(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = m.DeleteAllocationByOffer(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, deleted)

	a, err := m.GetAllocationByOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestMemory_ListExpiredResales(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "expired", SourceOfferID: "o1", Status: models.RequestOpen, Deadline: t0.Add(-time.Minute)}))
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "future", SourceOfferID: "o2", Status: models.RequestOpen, Deadline: t0.Add(time.Minute)}))
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "closed", SourceOfferID: "o3", Status: models.RequestClosed, Deadline: t0.Add(-time.Minute)}))
	require.NoError(t, m.InsertRequest(ctx, models.Request{ID: "primary", Status: models.RequestOpen, Deadline: t0.Add(-time.Minute)}))

	rs, err := m.ListExpiredResales(ctx, t0)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "expired", rs[0].ID)
}
