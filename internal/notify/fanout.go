package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/models"
	"freight-resale-api-server/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Deps struct {
	Push    PushChannel
	Store   MessageStore
	Users   Directory
	Ledger  ChainSource
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Clock   func() time.Time
}

// Fanout computes recipients and payloads for each event kind and delivers
// them. Distinct recipients are served concurrently; each recipient's
// deliveries run in order, persisted message first.
type Fanout struct {
	push        PushChannel
	store       MessageStore
	users       Directory
	ledger      ChainSource
	logger      zerolog.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	concurrency int
	maxHops     int

	deals, usersJoined, requests, offers atomic.Int64
}

func NewFanout(d Deps, concurrency, maxHops int) *Fanout {
	f := &Fanout{
		push:        d.Push,
		store:       d.Store,
		users:       d.Users,
		ledger:      d.Ledger,
		logger:      d.Logger,
		metrics:     d.Metrics,
		now:         d.Clock,
		concurrency: concurrency,
		maxHops:     maxHops,
	}
	if f.metrics == nil {
		f.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.concurrency < 1 {
		f.concurrency = 1
	}
	if f.maxHops < 1 {
		f.maxHops = 64
	}
	return f
}

// Dashboard returns the current admin counters.
func (f *Fanout) Dashboard() Dashboard {
	return Dashboard{
		Deals:           f.deals.Load(),
		UsersJoined:     f.usersJoined.Load(),
		RequestsCreated: f.requests.Load(),
		OffersCreated:   f.offers.Load(),
	}
}

func (f *Fanout) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.OfferCreated:
		f.offers.Add(1)
		return f.offerCreated(ctx, e)
	case events.OfferConfirmed:
		err := f.offerConfirmed(ctx, e)
		f.dashboardUpdate(ctx)
		return err
	case events.ContainerStatusChanged:
		return f.containerStatusChanged(ctx, e)
	case events.RequestCreated:
		f.requests.Add(1)
		f.newRequest(ctx, e)
		f.dashboardUpdate(ctx)
		return nil
	case events.DealMade:
		f.deals.Add(1)
		f.dashboardUpdate(ctx)
		return nil
	case events.UserJoined:
		f.usersJoined.Add(1)
		f.dashboardUpdate(ctx)
		return nil
	default:
		return fmt.Errorf("unhandled event kind %q", ev.Kind())
	}
}

// delivery is one unit of work for one recipient: an optional persisted
// message followed by an optional push.
type delivery struct {
	message string
	url     string
	event   string
	payload any
}

// plan groups deliveries by recipient, keeping first-seen recipient order.
type plan struct {
	order []string
	byID  map[string][]delivery
}

func newPlan() *plan { return &plan{byID: make(map[string][]delivery)} }

func (p *plan) add(userID string, d delivery) {
	if _, ok := p.byID[userID]; !ok {
		p.order = append(p.order, userID)
	}
	p.byID[userID] = append(p.byID[userID], d)
}

func (f *Fanout) run(ctx context.Context, p *plan) error {
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for _, userID := range p.order {
		userID, ds := userID, p.byID[userID]
		g.Go(func() error {
			var errs []error
			for _, d := range ds {
				if err := f.deliver(ctx, userID, d); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		})
	}
	return g.Wait()
}

func (f *Fanout) deliver(ctx context.Context, userID string, d delivery) error {
	if d.message != "" {
		n := models.Notification{
			ID:        models.NewID(),
			UserID:    userID,
			Message:   d.message,
			URL:       d.url,
			CreatedAt: models.Stamp(f.now()),
		}
		if err := f.store.Save(ctx, n); err != nil {
			return fmt.Errorf("persist notification for %s: %w", userID, err)
		}
		f.send(userID, EventNotification, n)
	}
	if d.event != "" {
		f.send(userID, d.event, d.payload)
	}
	return nil
}

// send pushes best-effort. Offline recipients and broken connections are
// counted and dropped.
func (f *Fanout) send(userID, event string, payload any) {
	err := f.push.SendToClient(userID, event, payload)
	switch {
	case err == nil:
		f.metrics.PushDelivered.WithLabelValues(event).Inc()
	case errors.Is(err, ErrNotConnected):
		f.metrics.PushSkipped.WithLabelValues(event).Inc()
	default:
		f.metrics.PushSkipped.WithLabelValues(event).Inc()
		f.logger.Warn().Err(err).Str("user_id", userID).Str("event", event).Msg("push failed")
	}
}

func (f *Fanout) offerCreated(ctx context.Context, e events.OfferCreated) error {
	req, err := f.ledger.GetRequest(ctx, e.Offer.RequestID)
	if err != nil {
		return fmt.Errorf("request of offer %s: %w", e.Offer.ID, err)
	}
	cargo, err := f.ledger.GetCargo(ctx, req.CargoID)
	if err != nil {
		return fmt.Errorf("cargo of request %s: %w", req.ID, err)
	}
	counts, err := f.ledger.CountOffersByRequests(ctx, []string{req.ID})
	if err != nil {
		return fmt.Errorf("count bids of request %s: %w", req.ID, err)
	}

	url := urlShipperRequests
	if req.IsResale() {
		url = urlForwarderPosted
	}
	p := newPlan()
	p.add(req.RequesterID, delivery{
		message: fmt.Sprintf("A new offer arrived for '%s'.", cargo.ItemName),
		url:     url,
		event:   EventBidCountUpdate,
		payload: BidCountUpdate{RequestID: req.ID, BidderCount: counts[req.ID]},
	})
	return f.run(ctx, p)
}

func (f *Fanout) offerConfirmed(ctx context.Context, e events.OfferConfirmed) error {
	itemName := e.Winning.RequestID
	if req, err := f.ledger.GetRequest(ctx, e.Winning.RequestID); err == nil {
		if cargo, err := f.ledger.GetCargo(ctx, req.CargoID); err == nil {
			itemName = cargo.ItemName
		}
	}

	p := newPlan()
	for _, o := range e.Offers {
		d := delivery{url: urlForwarderOffers, event: EventOfferStatusUpdate}
		if o.ID == e.Winning.ID {
			d.message = fmt.Sprintf("Congratulations! Your offer for '%s' won.", itemName)
			d.payload = OfferStatusUpdate{OfferID: o.ID, Status: models.OfferAccepted, StatusText: "accepted"}
		} else {
			d.message = fmt.Sprintf("The auction for '%s' closed without your offer.", itemName)
			d.payload = OfferStatusUpdate{OfferID: o.ID, Status: models.OfferRejected, StatusText: "rejected"}
		}
		p.add(o.ForwarderID, d)
	}
	return f.run(ctx, p)
}

// containerStatusChanged notifies everyone with a stake in the cargo loaded
// in the container: each allocated offer's requester, every reseller up the
// chain to the primary request, and the cargo owner. The container's own
// forwarder gets pushes but no persisted message.
func (f *Fanout) containerStatusChanged(ctx context.Context, e events.ContainerStatusChanged) error {
	c := e.Container
	allocs, err := f.ledger.ListAllocationsByContainer(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("allocations of container %s: %w", c.ID, err)
	}

	pushes := newPlan()
	var stake []string
	inStake := make(map[string]bool)
	shippers := make(map[string]bool)
	addStake := func(id string) {
		if !inStake[id] {
			inStake[id] = true
			stake = append(stake, id)
		}
	}

	for _, a := range allocs {
		offer, err := f.ledger.GetOffer(ctx, a.OfferID)
		if err != nil {
			return fmt.Errorf("allocated offer %s: %w", a.OfferID, err)
		}
		req, err := f.ledger.GetRequest(ctx, offer.RequestID)
		if err != nil {
			return fmt.Errorf("request of offer %s: %w", offer.ID, err)
		}

		chainReqs, err := f.ancestors(ctx, req)
		if err != nil {
			return err
		}
		for _, r := range chainReqs {
			addStake(r.RequesterID)
			if !r.IsResale() {
				shippers[r.RequesterID] = true
			}
			pushes.add(r.RequesterID, delivery{
				event:   EventShipmentUpdate,
				payload: ShipmentUpdate{RequestID: r.ID, DetailedStatus: c.Status},
			})
		}

		cargo, err := f.ledger.GetCargo(ctx, req.CargoID)
		if err != nil {
			return fmt.Errorf("cargo of request %s: %w", req.ID, err)
		}
		addStake(cargo.OwnerID)
		shippers[cargo.OwnerID] = true
	}

	message := fmt.Sprintf("Container '%s' changed status: %s", c.ID, e.Message)
	p := newPlan()
	for _, userID := range stake {
		if userID != c.ForwarderID {
			url := urlForwarderPosted
			if shippers[userID] {
				url = urlShipperTracking
			}
			p.add(userID, delivery{message: message, url: url})
		}
		for _, d := range pushes.byID[userID] {
			p.add(userID, d)
		}
	}
	return f.run(ctx, p)
}

// ancestors walks from req up through each resale's source offer to the
// primary request, bounded by maxHops.
func (f *Fanout) ancestors(ctx context.Context, req models.Request) ([]models.Request, error) {
	out := []models.Request{req}
	seen := map[string]bool{req.ID: true}
	current := req
	for hop := 0; current.IsResale(); hop++ {
		if hop >= f.maxHops {
			return nil, fmt.Errorf("%w: ancestors of request %s exceed %d hops", models.ErrConflict, req.ID, f.maxHops)
		}
		src, err := f.ledger.GetOffer(ctx, current.SourceOfferID)
		if err != nil {
			return nil, fmt.Errorf("source offer of request %s: %w", current.ID, err)
		}
		parent, err := f.ledger.GetRequest(ctx, src.RequestID)
		if err != nil {
			return nil, fmt.Errorf("request of offer %s: %w", src.ID, err)
		}
		if seen[parent.ID] {
			return nil, fmt.Errorf("%w: request %s reached twice from %s", models.ErrConflict, parent.ID, req.ID)
		}
		seen[parent.ID] = true
		out = append(out, parent)
		current = parent
	}
	return out, nil
}

// connectedWithRole returns connected users holding role, minus skip.
func (f *Fanout) connectedWithRole(ctx context.Context, role models.Role, skip string) []string {
	var out []string
	for _, id := range f.push.ConnectedUsers() {
		if id == skip {
			continue
		}
		u, err := f.users.FindByID(ctx, id)
		if err != nil {
			f.logger.Debug().Err(err).Str("user_id", id).Msg("connected user not in directory")
			continue
		}
		if u.Role == role {
			out = append(out, id)
		}
	}
	return out
}

func (f *Fanout) newRequest(ctx context.Context, e events.RequestCreated) {
	for _, id := range f.connectedWithRole(ctx, models.RoleForwarder, e.RequesterID) {
		f.send(id, EventNewRequest, e.Summary)
	}
}

func (f *Fanout) dashboardUpdate(ctx context.Context) {
	snap := f.Dashboard()
	for _, id := range f.connectedWithRole(ctx, models.RoleAdmin, "") {
		f.send(id, EventDashboardUpdate, snap)
	}
}
