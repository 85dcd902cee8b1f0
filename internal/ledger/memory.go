package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"freight-resale-api-server/internal/models"
)

// Memory is an in-process Ledger. Transactions are serialised by a single lock
// and rolled back from a snapshot on error, so a failed operation leaves no
// trace and concurrent confirmations observe each other's commits in order.
type Memory struct {
	mu sync.Mutex

	seq         int64
	order       map[string]int64
	cargo       map[string]models.Cargo
	requests    map[string]models.Request
	offers      map[string]models.Offer
	containers  map[string]models.Container
	allocations map[string]models.ContainerCargo // keyed by offer ID
}

func NewMemory() *Memory {
	return &Memory{
		order:       make(map[string]int64),
		cargo:       make(map[string]models.Cargo),
		requests:    make(map[string]models.Request),
		offers:      make(map[string]models.Offer),
		containers:  make(map[string]models.Container),
		allocations: make(map[string]models.ContainerCargo),
	}
}

type memTxKey struct{}

func (m *Memory) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*Memory)
	return owner == m
}

// lock takes the ledger lock unless ctx already holds it through WithTx.
func (m *Memory) lock(ctx context.Context) func() {
	if m.inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.inTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, memTxKey{}, m)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	seq         int64
	order       map[string]int64
	cargo       map[string]models.Cargo
	requests    map[string]models.Request
	offers      map[string]models.Offer
	containers  map[string]models.Container
	allocations map[string]models.ContainerCargo
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Memory) snapshot() memSnapshot {
	return memSnapshot{
		seq:         m.seq,
		order:       cloneMap(m.order),
		cargo:       cloneMap(m.cargo),
		requests:    cloneMap(m.requests),
		offers:      cloneMap(m.offers),
		containers:  cloneMap(m.containers),
		allocations: cloneMap(m.allocations),
	}
}

func (m *Memory) restore(s memSnapshot) {
	m.seq = s.seq
	m.order = s.order
	m.cargo = s.cargo
	m.requests = s.requests
	m.offers = s.offers
	m.containers = s.containers
	m.allocations = s.allocations
}

func (m *Memory) track(id string) {
	m.seq++
	m.order[id] = m.seq
}

// ---- cargo

func (m *Memory) GetCargo(ctx context.Context, id string) (models.Cargo, error) {
	defer m.lock(ctx)()
	c, ok := m.cargo[id]
	if !ok {
		return models.Cargo{}, models.ErrCargoNotFound
	}
	return c, nil
}

func (m *Memory) InsertCargo(ctx context.Context, c models.Cargo) error {
	defer m.lock(ctx)()
	if _, ok := m.cargo[c.ID]; ok {
		return fmt.Errorf("%w: cargo %s exists", models.ErrConflict, c.ID)
	}
	m.cargo[c.ID] = c
	m.track(c.ID)
	return nil
}

// ---- requests

func (m *Memory) GetRequest(ctx context.Context, id string) (models.Request, error) {
	defer m.lock(ctx)()
	r, ok := m.requests[id]
	if !ok {
		return models.Request{}, models.ErrRequestNotFound
	}
	return r, nil
}

func (m *Memory) InsertRequest(ctx context.Context, r models.Request) error {
	defer m.lock(ctx)()
	if _, ok := m.requests[r.ID]; ok {
		return fmt.Errorf("%w: request %s exists", models.ErrConflict, r.ID)
	}
	m.requests[r.ID] = r
	m.track(r.ID)
	return nil
}

func (m *Memory) CloseRequest(ctx context.Context, id string, at time.Time) error {
	defer m.lock(ctx)()
	r, ok := m.requests[id]
	if !ok {
		return models.ErrRequestNotFound
	}
	if r.Status != models.RequestOpen {
		return models.ErrRequestClosed
	}
	r.Status = models.RequestClosed
	r.ClosedAt = at
	m.requests[id] = r
	return nil
}

// newestFirst orders requests by creation time, then insertion order, descending.
func (m *Memory) newestFirst(rs []models.Request) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return m.order[rs[i].ID] > m.order[rs[j].ID]
	})
}

func (m *Memory) FindRequestsBySourceOffer(ctx context.Context, offerID string) ([]models.Request, error) {
	defer m.lock(ctx)()
	var out []models.Request
	for _, r := range m.requests {
		if r.SourceOfferID != "" && r.SourceOfferID == offerID {
			out = append(out, r)
		}
	}
	m.newestFirst(out)
	return out, nil
}

func (m *Memory) FindRequestsBySourceOffers(ctx context.Context, offerIDs []string) (map[string][]models.Request, error) {
	defer m.lock(ctx)()
	wanted := toSet(offerIDs)
	out := make(map[string][]models.Request)
	for _, r := range m.requests {
		if _, ok := wanted[r.SourceOfferID]; ok && r.SourceOfferID != "" {
			out[r.SourceOfferID] = append(out[r.SourceOfferID], r)
		}
	}
	for _, rs := range out {
		m.newestFirst(rs)
	}
	return out, nil
}

func (m *Memory) ListRequestsByRequester(ctx context.Context, requesterID string, resale bool) ([]models.Request, error) {
	defer m.lock(ctx)()
	var out []models.Request
	for _, r := range m.requests {
		if r.RequesterID == requesterID && r.IsResale() == resale {
			out = append(out, r)
		}
	}
	m.newestFirst(out)
	return out, nil
}

func (m *Memory) ListExpiredResales(ctx context.Context, now time.Time) ([]models.Request, error) {
	defer m.lock(ctx)()
	var out []models.Request
	for _, r := range m.requests {
		if r.IsResale() && r.IsOpen() && r.Deadline.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out, nil
}

// ---- offers

func (m *Memory) GetOffer(ctx context.Context, id string) (models.Offer, error) {
	defer m.lock(ctx)()
	o, ok := m.offers[id]
	if !ok {
		return models.Offer{}, models.ErrOfferNotFound
	}
	return o, nil
}

func (m *Memory) InsertOffer(ctx context.Context, o models.Offer) error {
	defer m.lock(ctx)()
	if _, ok := m.offers[o.ID]; ok {
		return fmt.Errorf("%w: offer %s exists", models.ErrConflict, o.ID)
	}
	m.offers[o.ID] = o
	m.track(o.ID)
	return nil
}

func (m *Memory) UpdateOfferStatus(ctx context.Context, id string, from, to models.OfferStatus, at time.Time) error {
	defer m.lock(ctx)()
	o, ok := m.offers[id]
	if !ok {
		return models.ErrOfferNotFound
	}
	if o.Status != from {
		return fmt.Errorf("%w: offer %s is %s, expected %s", ErrStaleStatus, id, o.Status, from)
	}
	o.Status = to
	o.UpdatedAt = at
	m.offers[id] = o
	return nil
}

func (m *Memory) sortedOffers(match func(models.Offer) bool) []models.Offer {
	var out []models.Offer
	for _, o := range m.offers {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out
}

func (m *Memory) ListOffersByRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	defer m.lock(ctx)()
	return m.sortedOffers(func(o models.Offer) bool { return o.RequestID == requestID }), nil
}

func (m *Memory) ListOffersByContainer(ctx context.Context, containerID string) ([]models.Offer, error) {
	defer m.lock(ctx)()
	return m.sortedOffers(func(o models.Offer) bool { return o.ContainerID == containerID }), nil
}

func (m *Memory) ListOffersByForwarder(ctx context.Context, forwarderID string) ([]models.Offer, error) {
	defer m.lock(ctx)()
	return m.sortedOffers(func(o models.Offer) bool { return o.ForwarderID == forwarderID }), nil
}

func (m *Memory) HasOffer(ctx context.Context, requestID, forwarderID string) (bool, error) {
	defer m.lock(ctx)()
	for _, o := range m.offers {
		if o.RequestID == requestID && o.ForwarderID == forwarderID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FindWinningOffer(ctx context.Context, requestID string) (*models.Offer, error) {
	defer m.lock(ctx)()
	live := m.sortedOffers(func(o models.Offer) bool {
		return o.RequestID == requestID && o.Status.Live()
	})
	switch len(live) {
	case 0:
		return nil, nil
	case 1:
		return &live[0], nil
	default:
		return nil, fmt.Errorf("%w: request %s", models.ErrMultipleWinners, requestID)
	}
}

func (m *Memory) FindWinningOffers(ctx context.Context, requestIDs []string) (map[string]models.Offer, []string, error) {
	defer m.lock(ctx)()
	wanted := toSet(requestIDs)
	var live []models.Offer
	for _, o := range m.sortedOffers(func(o models.Offer) bool { return o.Status.Live() }) {
		if _, ok := wanted[o.RequestID]; ok {
			live = append(live, o)
		}
	}
	out, ambiguous := models.SplitWinners(live)
	return out, ambiguous, nil
}

func (m *Memory) CountOffersByRequests(ctx context.Context, requestIDs []string) (map[string]int, error) {
	defer m.lock(ctx)()
	wanted := toSet(requestIDs)
	out := make(map[string]int)
	for _, o := range m.offers {
		if _, ok := wanted[o.RequestID]; ok {
			out[o.RequestID]++
		}
	}
	return out, nil
}

// ---- containers

func (m *Memory) GetContainer(ctx context.Context, id string) (models.Container, error) {
	defer m.lock(ctx)()
	c, ok := m.containers[id]
	if !ok {
		return models.Container{}, models.ErrContainerNotFound
	}
	return c, nil
}

func (m *Memory) GetContainers(ctx context.Context, ids []string) (map[string]models.Container, error) {
	defer m.lock(ctx)()
	out := make(map[string]models.Container, len(ids))
	for _, id := range ids {
		if c, ok := m.containers[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (m *Memory) InsertContainer(ctx context.Context, c models.Container) error {
	defer m.lock(ctx)()
	if _, ok := m.containers[c.ID]; ok {
		return fmt.Errorf("%w: container %s exists", models.ErrConflict, c.ID)
	}
	m.containers[c.ID] = c
	m.track(c.ID)
	return nil
}

func (m *Memory) UpdateContainerStatus(ctx context.Context, id string, from, to models.ContainerStatus, at time.Time) error {
	defer m.lock(ctx)()
	c, ok := m.containers[id]
	if !ok {
		return models.ErrContainerNotFound
	}
	if c.Status != from {
		return fmt.Errorf("%w: container %s is %s, expected %s", ErrStaleStatus, id, c.Status, from)
	}
	c.Status = to
	if to == models.ContainerCompleted {
		c.CompletedAt = at
	}
	m.containers[id] = c
	return nil
}

// ---- allocations

func (m *Memory) GetAllocationByOffer(ctx context.Context, offerID string) (*models.ContainerCargo, error) {
	defer m.lock(ctx)()
	a, ok := m.allocations[offerID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) InsertAllocation(ctx context.Context, a models.ContainerCargo) error {
	defer m.lock(ctx)()
	if _, ok := m.allocations[a.OfferID]; ok {
		return ErrAllocationExists
	}
	m.allocations[a.OfferID] = a
	m.track(a.ID)
	return nil
}

func (m *Memory) DeleteAllocationByOffer(ctx context.Context, offerID string) (bool, error) {
	defer m.lock(ctx)()
	if _, ok := m.allocations[offerID]; !ok {
		return false, nil
	}
	delete(m.allocations, offerID)
	return true, nil
}

func (m *Memory) ListAllocationsByContainer(ctx context.Context, containerID string) ([]models.ContainerCargo, error) {
	defer m.lock(ctx)()
	var out []models.ContainerCargo
	for _, a := range m.allocations {
		if a.ContainerID == containerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

var _ Ledger = (*Memory)(nil)
