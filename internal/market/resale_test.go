package market

import (
	"testing"
	"time"

	"freight-resale-api-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listed returns a fixture holding a confirmed primary request whose winning
// offer is up for resale with two bids on it.
func listed(t *testing.T) (f *fixture, r1 models.Request, o1 models.Offer, r2 models.Request, bids []models.Offer) {
	f = newFixture(t)
	r1 = f.request("shipper")
	o1 = f.bid("f1", r1.ID, f.container("f1").ID, "1500")
	loser := f.bid("f9", r1.ID, f.container("f9").ID, "1700")
	require.NoError(t, f.svc.ConfirmPrimary(f.ctx, r1.ID, o1.ID, "shipper"))
	require.Equal(t, models.OfferRejected, f.offer(loser.ID).Status)

	var err error
	r2, err = f.svc.CreateResaleRequest(f.ctx, o1.ID, "f1")
	require.NoError(t, err)
	bids = []models.Offer{
		f.bid("f2", r2.ID, f.container("f2").ID, "1300"),
		f.bid("f3", r2.ID, f.container("f3").ID, "1350"),
	}
	return f, r1, o1, r2, bids
}

func TestCancelResaleRequest_Reverts(t *testing.T) {
	t.Parallel()
	f, r1, o1, r2, bids := listed(t)
	r1Before := f.req(r1.ID)

	require.NoError(t, f.svc.CancelResaleRequest(f.ctx, r2.ID, "f1"))

	assert.Equal(t, models.OfferAccepted, f.offer(o1.ID).Status)
	for _, b := range bids {
		assert.Equal(t, models.OfferRejected, f.offer(b.ID).Status)
	}
	assert.Equal(t, models.RequestClosed, f.req(r2.ID).Status)
	assert.Equal(t, r1Before, f.req(r1.ID))
	assert.NotNil(t, f.allocation(o1.ID))

	terminal, err := f.svc.ResolveTerminalOffer(f.ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, o1.ID, terminal.ID)

	err = f.svc.CancelResaleRequest(f.ctx, r2.ID, "f1")
	assert.ErrorIs(t, err, models.ErrRequestClosed)

	reverted, err := f.svc.RevertResale(f.ctx, r2.ID)
	require.NoError(t, err)
	assert.False(t, reverted)
	assert.Equal(t, models.OfferAccepted, f.offer(o1.ID).Status)
}

func TestCancelResaleRequest_Guards(t *testing.T) {
	t.Parallel()
	f, r1, _, r2, _ := listed(t)

	assert.ErrorIs(t, f.svc.CancelResaleRequest(f.ctx, "missing", "f1"), models.ErrNotFound)
	assert.ErrorIs(t, f.svc.CancelResaleRequest(f.ctx, r2.ID, "f2"), models.ErrForbidden)
	assert.ErrorIs(t, f.svc.CancelResaleRequest(f.ctx, r1.ID, "shipper"), models.ErrNotResaleRequest)
	assert.Equal(t, models.RequestOpen, f.req(r2.ID).Status)
}

func TestCreateResaleRequest_Guards(t *testing.T) {
	t.Parallel()
	f, _, o1, _, bids := listed(t)

	_, err := f.svc.CreateResaleRequest(f.ctx, "missing", "f1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.CreateResaleRequest(f.ctx, o1.ID, "f2")
	assert.ErrorIs(t, err, models.ErrForbidden)

	// already FOR_SALE
	_, err = f.svc.CreateResaleRequest(f.ctx, o1.ID, "f1")
	assert.ErrorIs(t, err, models.ErrConflict)

	// still PENDING
	_, err = f.svc.CreateResaleRequest(f.ctx, bids[0].ID, "f2")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateResaleRequest_ContainerMustBeScheduled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request("shipper")
	c := f.container("f1")
	o := f.bid("f1", r.ID, c.ID, "1000")
	require.NoError(t, f.svc.ConfirmPrimary(f.ctx, r.ID, o.ID, "shipper"))
	// move the container without the offer cascade
	require.NoError(t, f.led.UpdateContainerStatus(f.ctx, c.ID, models.ContainerScheduled, models.ContainerConfirmed, t0))
	require.Equal(t, models.OfferAccepted, f.offer(o.ID).Status)

	_, err := f.svc.CreateResaleRequest(f.ctx, o.ID, "f1")
	assert.ErrorIs(t, err, models.ErrContainerNotOpen)
	assert.Equal(t, models.OfferAccepted, f.offer(o.ID).Status)
}

func TestResaleOfResale(t *testing.T) {
	t.Parallel()
	f, r1, _, r2, bids := listed(t)
	require.NoError(t, f.svc.ConfirmResale(f.ctx, r2.ID, bids[0].ID, "f1"))

	r3, err := f.svc.CreateResaleRequest(f.ctx, bids[0].ID, "f2")
	require.NoError(t, err)
	o3 := f.bid("f4", r3.ID, f.container("f4").ID, "1100")
	require.NoError(t, f.svc.ConfirmResale(f.ctx, r3.ID, o3.ID, "f2"))

	for _, start := range []string{r1.ID, r2.ID, r3.ID} {
		terminal, err := f.svc.ResolveTerminalOffer(f.ctx, start)
		require.NoError(t, err)
		assert.Equal(t, o3.ID, terminal.ID)
	}
	assert.Nil(t, f.allocation(bids[0].ID))
	assert.NotNil(t, f.allocation(o3.ID))
	assert.Equal(t, models.OfferRejected, f.offer(bids[1].ID).Status)
}

func TestSweepExpiredResales(t *testing.T) {
	t.Parallel()
	f, _, o1, r2, bids := listed(t)

	n, err := f.svc.SweepExpiredResales(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clk.Advance(49 * time.Hour)
	n, err = f.svc.SweepExpiredResales(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.RequestClosed, f.req(r2.ID).Status)
	assert.Equal(t, models.OfferAccepted, f.offer(o1.ID).Status)
	for _, b := range bids {
		assert.Equal(t, models.OfferRejected, f.offer(b.ID).Status)
	}

	n, err = f.svc.SweepExpiredResales(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
