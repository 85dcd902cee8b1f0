package chain

import (
	"context"
	"fmt"

	"freight-resale-api-server/internal/models"
	"github.com/rs/zerolog"
)

// BatchSource is the bulk form of Source used when listing many requests.
type BatchSource interface {
	// FindWinningOffers returns the live offer of every request that has
	// exactly one, and the IDs of the requests that have several.
	FindWinningOffers(ctx context.Context, requestIDs []string) (map[string]models.Offer, []string, error)
	FindRequestsBySourceOffers(ctx context.Context, offerIDs []string) (map[string][]models.Request, error)
}

// Index holds the back-references of every chain reachable from a set of
// requests, so each chain resolves with in-memory lookups only.
type Index struct {
	winners   map[string]models.Offer
	ambiguous map[string]struct{}
	resales   map[string][]models.Request
	maxHops int
	logger  zerolog.Logger
}

// BuildIndex loads the chains of requestIDs level by level: one bulk query for
// the winners of the current frontier, one for the resale requests behind the
// RESOLD winners. The number of round trips grows with chain depth, not with
// the number of requests.
func BuildIndex(ctx context.Context, src BatchSource, requestIDs []string, opts ...Option) (*Index, error) {
	o := buildOptions(opts)
	idx := &Index{
		winners:   make(map[string]models.Offer),
		ambiguous: make(map[string]struct{}),
		resales:   make(map[string][]models.Request),
		maxHops:   o.maxHops,
		logger:    o.logger,
	}

	seen := make(map[string]struct{}, len(requestIDs))
	frontier := make([]string, 0, len(requestIDs))
	for _, id := range requestIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		frontier = append(frontier, id)
	}

	for level := 0; len(frontier) > 0 && level <= o.maxHops; level++ {
		winners, ambiguous, err := src.FindWinningOffers(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("winning offers at depth %d: %w", level, err)
		}
		for _, reqID := range ambiguous {
			o.logger.Warn().Str("request_id", reqID).Msg("several live offers on request, chain left unresolved")
			idx.ambiguous[reqID] = struct{}{}
		}

		var resold []string
		for reqID, offer := range winners {
			idx.winners[reqID] = offer
			if offer.Status == models.OfferResold {
				resold = append(resold, offer.ID)
			}
		}
		if len(resold) == 0 {
			break
		}

		next, err := src.FindRequestsBySourceOffers(ctx, resold)
		if err != nil {
			return nil, fmt.Errorf("resale requests at depth %d: %w", level, err)
		}

		frontier = frontier[:0]
		for offerID, reqs := range next {
			idx.resales[offerID] = reqs
			if len(reqs) == 0 {
				continue
			}
			if _, ok := seen[reqs[0].ID]; ok {
				continue
			}
			seen[reqs[0].ID] = struct{}{}
			frontier = append(frontier, reqs[0].ID)
		}
	}
	return idx, nil
}

// Winning returns the request's own live offer.
func (idx *Index) Winning(requestID string) (models.Offer, bool) {
	o, ok := idx.winners[requestID]
	return o, ok
}

// Resolve is Resolver.Resolve answered from the index.
func (idx *Index) Resolve(requestID string) (*models.Offer, error) {
	path, err := walk(context.Background(), idx, requestID, idx.maxHops, idx.logger)
	if err != nil || len(path) == 0 {
		return nil, err
	}
	return &path[len(path)-1], nil
}

func (idx *Index) winning(_ context.Context, requestID string) (*models.Offer, error) {
	if _, ok := idx.ambiguous[requestID]; ok {
		return nil, fmt.Errorf("%w: request %s", models.ErrMultipleWinners, requestID)
	}
	o, ok := idx.winners[requestID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (idx *Index) successors(_ context.Context, offerID string) ([]models.Request, error) {
	return idx.resales[offerID], nil
}
