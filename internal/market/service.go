// Package market implements the auction and resale operations. Every mutating
// operation runs in one ledger transaction; the events it emits are handed to
// the sink only after that transaction commits.
package market

import (
	"context"
	"errors"
	"time"

	"freight-resale-api-server/internal/chain"
	"freight-resale-api-server/internal/clock"
	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/ledger"
	"freight-resale-api-server/internal/models"
	"freight-resale-api-server/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// UserLookup resolves display data for documents. Optional.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

type Service struct {
	ledger   ledger.Ledger
	resolver *chain.Resolver
	sink     events.Sink
	users    UserLookup
	clock    clock.Clock
	logger   zerolog.Logger
	metrics  *observability.Metrics
	maxHops  int
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithUsers(u UserLookup) Option { return func(s *Service) { s.users = u } }

// WithMaxHops bounds chain resolution; values below 1 keep the default.
func WithMaxHops(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHops = n
		}
	}
}

func NewService(l ledger.Ledger, sink events.Sink, opts ...Option) *Service {
	s := &Service{
		ledger:  l,
		sink:    sink,
		clock:   clock.NewSystem(),
		logger:  zerolog.Nop(),
		maxHops: chain.DefaultMaxHops,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = events.Discard{}
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	s.resolver = chain.NewResolver(l, chain.WithMaxHops(s.maxHops), chain.WithLogger(s.logger))
	return s
}

// runTx runs fn in one ledger transaction with a fresh collector per attempt
// and publishes what the committed attempt emitted.
func (s *Service) runTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var pending []events.Event
	err := s.ledger.WithTx(ctx, func(txCtx context.Context) error {
		c := &events.Collector{}
		if err := fn(events.WithCollector(txCtx, c)); err != nil {
			return err
		}
		pending = c.Events()
		return nil
	})
	if err != nil {
		s.metrics.TxRollbacks.WithLabelValues(op).Inc()
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	for _, ev := range pending {
		s.metrics.EventsPublished.WithLabelValues(string(ev.Kind())).Inc()
	}
	s.sink.Publish(pending...)
	return nil
}

func (s *Service) now() time.Time { return models.Stamp(s.clock.Now()) }

// ResolveTerminalOffer returns the offer that ends the resale chain starting at
// requestID, or nil while the request has no winner.
func (s *Service) ResolveTerminalOffer(ctx context.Context, requestID string) (*models.Offer, error) {
	if _, err := s.ledger.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	path, err := s.resolver.Path(ctx, requestID)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID).Msg("resale chain resolution failed")
		return nil, err
	}
	if len(path) == 0 {
		return nil, nil
	}
	s.metrics.ChainHops.Observe(float64(len(path) - 1))
	return &path[len(path)-1], nil
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalid):
		return "invalid"
	default:
		return "error"
	}
}

// logResult logs a failed operation at a level matching its class. Forbidden
// is a caller mistake and stays at debug.
func (s *Service) logResult(err error, op string, fields map[string]any) {
	if err == nil {
		return
	}
	var ev *zerolog.Event
	switch outcome(err) {
	case "forbidden", "not_found", "invalid":
		ev = s.logger.Debug()
	case "conflict":
		ev = s.logger.Info()
	default:
		ev = s.logger.Error()
	}
	ev.Err(err).Str("op", op).Fields(fields).Msg("operation rejected")
}
