package market

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/ledger"
	"freight-resale-api-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestResaleChainScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	r1 := f.request("shipper")
	c1 := f.container("f1")
	o1 := f.bid("f1", r1.ID, c1.ID, "1500")
	assert.Equal(t, models.OfferPending, o1.Status)

	require.NoError(t, f.svc.ConfirmPrimary(f.ctx, r1.ID, o1.ID, "shipper"))
	assert.Equal(t, models.OfferAccepted, f.offer(o1.ID).Status)
	assert.Equal(t, models.RequestClosed, f.req(r1.ID).Status)
	require.NotNil(t, f.allocation(o1.ID))
	assert.Equal(t, c1.ID, f.allocation(o1.ID).ContainerID)

	r2, err := f.svc.CreateResaleRequest(f.ctx, o1.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.OfferForSale, f.offer(o1.ID).Status)
	assert.Equal(t, models.RequestOpen, r2.Status)
	assert.Equal(t, o1.ID, r2.SourceOfferID)
	assert.Equal(t, "f1", r2.RequesterID)
	assert.Equal(t, r1.CargoID, r2.CargoID)
	assert.Equal(t, r1.Deadline, r2.Deadline)

	c2 := f.container("f2")
	o2 := f.bid("f2", r2.ID, c2.ID, "1300")

	require.NoError(t, f.svc.ConfirmResale(f.ctx, r2.ID, o2.ID, "f1"))
	assert.Equal(t, models.OfferAccepted, f.offer(o2.ID).Status)
	assert.Equal(t, models.RequestClosed, f.req(r2.ID).Status)
	assert.Equal(t, models.OfferResold, f.offer(o1.ID).Status)
	assert.Nil(t, f.allocation(o1.ID))
	alloc := f.allocation(o2.ID)
	require.NotNil(t, alloc)
	assert.Equal(t, c2.ID, alloc.ContainerID)
	assert.True(t, alloc.FreightCost.Equal(o2.Price))

	terminal, err := f.svc.ResolveTerminalOffer(f.ctx, r1.ID)
	require.NoError(t, err)
	require.NotNil(t, terminal)
	assert.Equal(t, o2.ID, terminal.ID)

	assert.Equal(t, []events.Kind{
		events.KindRequestCreated,
		events.KindOfferCreated,
		events.KindOfferConfirmed, events.KindDealMade,
		events.KindRequestCreated,
		events.KindOfferCreated,
		events.KindOfferConfirmed, events.KindDealMade,
	}, f.sink.kinds())
}

func TestConfirmPrimary_SecondConfirmConflictsAndChangesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request("shipper")
	a := f.bid("fa", r.ID, f.container("fa").ID, "900")
	b := f.bid("fb", r.ID, f.container("fb").ID, "950")

	require.NoError(t, f.svc.ConfirmPrimary(f.ctx, r.ID, a.ID, "shipper"))
	before := []models.Offer{f.offer(a.ID), f.offer(b.ID)}
	allocBefore := f.allocation(a.ID)
	f.sink.reset()

	err := f.svc.ConfirmPrimary(f.ctx, r.ID, b.ID, "shipper")
	require.ErrorIs(t, err, models.ErrConflict)
	require.ErrorIs(t, err, models.ErrRequestClosed)

	assert.Equal(t, before, []models.Offer{f.offer(a.ID), f.offer(b.ID)})
	assert.Equal(t, allocBefore, f.allocation(a.ID))
	assert.Nil(t, f.allocation(b.ID))
	assert.Empty(t, f.sink.kinds())
}

func TestConfirm_GuardOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request("shipper")
	o := f.bid("f1", r.ID, f.container("f1").ID, "900")

	err := f.svc.ConfirmPrimary(f.ctx, "missing", o.ID, "shipper")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = f.svc.ConfirmPrimary(f.ctx, r.ID, o.ID, "intruder")
	assert.ErrorIs(t, err, models.ErrForbidden)

	err = f.svc.ConfirmPrimary(f.ctx, r.ID, "not-a-bid", "shipper")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = f.svc.ConfirmResale(f.ctx, r.ID, o.ID, "shipper")
	assert.ErrorIs(t, err, models.ErrNotResaleRequest)
	assert.ErrorIs(t, err, models.ErrConflict)

	require.NoError(t, f.svc.ConfirmPrimary(f.ctx, r.ID, o.ID, "shipper"))

	// ownership is checked before the closed state
	err = f.svc.ConfirmPrimary(f.ctx, r.ID, o.ID, "intruder")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestConfirmPrimary_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.container("f1")
	require.NoError(t, f.led.InsertRequest(f.ctx, models.Request{
		ID: "r", CargoID: "no-such-cargo", RequesterID: "shipper",
		Status: models.RequestOpen, Deadline: t0.Add(48 * time.Hour),
	}))
	o := f.bid("f1", "r", c.ID, "700")
	f.sink.reset()

	err := f.svc.ConfirmPrimary(f.ctx, "r", o.ID, "shipper")
	require.ErrorIs(t, err, models.ErrCargoNotFound)

	assert.Equal(t, models.OfferPending, f.offer(o.ID).Status)
	assert.Equal(t, models.RequestOpen, f.req("r").Status)
	assert.Nil(t, f.allocation(o.ID))
	assert.Empty(t, f.sink.kinds())
}

func TestEnsureAllocation_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request("shipper")
	c := f.container("f1")
	o := f.bid("f1", r.ID, c.ID, "900")
	require.NoError(t, f.svc.ConfirmPrimary(f.ctx, r.ID, o.ID, "shipper"))

	require.NoError(t, f.svc.ensureAllocation(f.ctx, r, f.offer(o.ID), t0))
	allocs, err := f.led.ListAllocationsByContainer(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, allocs, 1)
	assert.Equal(t, models.Volume(12.5), allocs[0].CBMLoaded)
}

func TestConfirm_WinnerContainerMustBeScheduled(t *testing.T) {
	t.Parallel()
	f, _, _, r2, bids := listed(t)
	_, err := f.svc.ChangeContainerStatus(f.ctx, "f2", bids[0].ContainerID, models.ContainerConfirmed, "")
	require.NoError(t, err)
	f.sink.reset()

	err = f.svc.ConfirmResale(f.ctx, r2.ID, bids[0].ID, "f1")
	require.ErrorIs(t, err, models.ErrContainerNotOpen)
	assert.Equal(t, models.RequestOpen, f.req(r2.ID).Status)
	assert.Equal(t, models.OfferPending, f.offer(bids[0].ID).Status)
	assert.Nil(t, f.allocation(bids[0].ID))
	assert.Empty(t, f.sink.kinds())

	require.NoError(t, f.svc.ConfirmResale(f.ctx, r2.ID, bids[1].ID, "f1"))
	_, err = f.svc.ChangeContainerStatus(f.ctx, "f3", bids[1].ContainerID, models.ContainerConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.OfferConfirmed, f.offer(bids[1].ID).Status)
}

// hiddenAllocations reports no allocation for any offer, so the insert runs
// into the unique constraint.
type hiddenAllocations struct{ *ledger.Memory }

func (hiddenAllocations) GetAllocationByOffer(context.Context, string) (*models.ContainerCargo, error) {
	return nil, nil
}

func TestConfirm_DuplicateAllocationAbortsTransaction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request("shipper")
	c := f.container("f1")
	o := f.bid("f1", r.ID, c.ID, "1000")
	require.NoError(t, f.led.InsertAllocation(f.ctx, models.ContainerCargo{ID: "stale", ContainerID: c.ID, OfferID: o.ID}))

	svc := NewService(hiddenAllocations{f.led}, f.sink, WithClock(f.clk))
	err := svc.ConfirmPrimary(f.ctx, r.ID, o.ID, "shipper")
	require.ErrorIs(t, err, ledger.ErrAllocationExists)

	assert.Equal(t, models.RequestOpen, f.req(r.ID).Status)
	assert.Equal(t, models.OfferPending, f.offer(o.ID).Status)
	assert.Empty(t, f.sink.kinds())
}

func TestConfirmPrimary_ConcurrentRace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request("shipper")

	const n = 8
	offers := make([]models.Offer, n)
	for i := range offers {
		fwd := fmt.Sprintf("f%d", i)
		offers[i] = f.bid(fwd, r.ID, f.container(fwd).ID, "1000")
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = f.svc.ConfirmPrimary(context.Background(), r.ID, offers[i].ID, "shipper")
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, models.ErrConflict)
	}
	assert.Equal(t, 1, winners)

	accepted, allocated := 0, 0
	for _, o := range offers {
		if f.offer(o.ID).Status == models.OfferAccepted {
			accepted++
		}
		if f.allocation(o.ID) != nil {
			allocated++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, allocated)
}

func TestConfirmPrimary_ExactlyOneWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		r := f.request("shipper")
		n := rapid.IntRange(1, 6).Draw(t, "bidders")
		offers := make([]models.Offer, n)
		for i := range offers {
			fwd := fmt.Sprintf("f%d", i)
			offers[i] = f.bid(fwd, r.ID, f.container(fwd).ID, "1000")
		}
		w := rapid.IntRange(0, n-1).Draw(t, "winner")

		if err := f.svc.ConfirmPrimary(f.ctx, r.ID, offers[w].ID, "shipper"); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		again := rapid.IntRange(0, n-1).Draw(t, "again")
		if err := f.svc.ConfirmPrimary(f.ctx, r.ID, offers[again].ID, "shipper"); !errorsIsConflict(err) {
			t.Fatalf("second confirm = %v, want conflict", err)
		}

		for i, o := range offers {
			got := f.offer(o.ID)
			want := models.OfferRejected
			if i == w {
				want = models.OfferAccepted
			}
			if got.Status != want {
				t.Fatalf("offer %d is %s, want %s", i, got.Status, want)
			}
			if (f.allocation(o.ID) != nil) != (i == w) {
				t.Fatalf("allocation of offer %d present=%v", i, i != w)
			}
		}
		winner, err := f.led.FindWinningOffer(f.ctx, r.ID)
		if err != nil || winner == nil || winner.ID != offers[w].ID {
			t.Fatalf("winning offer = %+v, %v", winner, err)
		}
	})
}

func errorsIsConflict(err error) bool {
	return err != nil && outcome(err) == "conflict"
}
