// Package chain finds the offer that ends a resale chain: starting from any
// request, follow its winning offer; while that offer was RESOLD, move to the
// resale request layered on it.
package chain

import (
	"context"
	"fmt"

	"freight-resale-api-server/internal/models"
	"github.com/rs/zerolog"
)

// DefaultMaxHops bounds the number of resale hops followed from one request.
const DefaultMaxHops = 64

var ErrChainCycle = fmt.Errorf("%w: resale chain exceeds hop limit or revisits a request", models.ErrConflict)

// Source is the ledger surface the resolver queries one hop at a time.
type Source interface {
	FindWinningOffer(ctx context.Context, requestID string) (*models.Offer, error)
	FindRequestsBySourceOffer(ctx context.Context, offerID string) ([]models.Request, error)
}

type lookup interface {
	winning(ctx context.Context, requestID string) (*models.Offer, error)
	successors(ctx context.Context, offerID string) ([]models.Request, error)
}

type Resolver struct {
	src     Source
	maxHops int
	logger  zerolog.Logger
}

type Option func(*options)

type options struct {
	maxHops int
	logger  zerolog.Logger
}

// WithMaxHops overrides DefaultMaxHops.
func WithMaxHops(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHops = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{maxHops: DefaultMaxHops, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewResolver(src Source, opts ...Option) *Resolver {
	o := buildOptions(opts)
	return &Resolver{src: src, maxHops: o.maxHops, logger: o.logger}
}

func (r *Resolver) MaxHops() int { return r.maxHops }

// Resolve returns the terminal offer of the chain that starts at requestID, or
// nil when the request, or the newest resale request along the chain, has no
// winner yet.
func (r *Resolver) Resolve(ctx context.Context, requestID string) (*models.Offer, error) {
	path, err := walk(ctx, sourceLookup{r.src}, requestID, r.maxHops, r.logger)
	if err != nil || len(path) == 0 {
		return nil, err
	}
	return &path[len(path)-1], nil
}

// Path returns the winning offer of every request along the chain, starting
// with requestID's own winner and ending with the terminal offer.
func (r *Resolver) Path(ctx context.Context, requestID string) ([]models.Offer, error) {
	return walk(ctx, sourceLookup{r.src}, requestID, r.maxHops, r.logger)
}

type sourceLookup struct{ src Source }

func (s sourceLookup) winning(ctx context.Context, requestID string) (*models.Offer, error) {
	return s.src.FindWinningOffer(ctx, requestID)
}

func (s sourceLookup) successors(ctx context.Context, offerID string) ([]models.Request, error) {
	return s.src.FindRequestsBySourceOffer(ctx, offerID)
}

func walk(ctx context.Context, lk lookup, start string, maxHops int, logger zerolog.Logger) ([]models.Offer, error) {
	var path []models.Offer
	visited := make(map[string]struct{})
	current := start

	for hop := 0; ; hop++ {
		if hop > maxHops {
			return nil, fmt.Errorf("%w: more than %d hops from request %s", ErrChainCycle, maxHops, start)
		}
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: request %s reached twice from %s", ErrChainCycle, current, start)
		}
		visited[current] = struct{}{}

		win, err := lk.winning(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("winning offer of request %s: %w", current, err)
		}
		if win == nil {
			if hop > 0 {
				logger.Warn().
					Str("request_id", start).
					Str("resale_request_id", current).
					Msg("resale request behind a resold offer has no winner")
			}
			return nil, nil
		}
		path = append(path, *win)
		if win.Status != models.OfferResold {
			return path, nil
		}

		next, err := lk.successors(ctx, win.ID)
		if err != nil {
			return nil, fmt.Errorf("resale requests of offer %s: %w", win.ID, err)
		}
		if len(next) == 0 {
			logger.Warn().
				Str("request_id", start).
				Str("offer_id", win.ID).
				Msg("resold offer has no resale request, ending chain at it")
			return path, nil
		}
		if len(next) > 1 {
			logger.Warn().
				Str("offer_id", win.ID).
				Int("resale_requests", len(next)).
				Msg("several resale requests on one offer, following the newest")
		}
		current = next[0].ID
	}
}
