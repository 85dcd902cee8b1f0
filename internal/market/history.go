package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"freight-resale-api-server/internal/chain"
	"freight-resale-api-server/internal/models"
	"github.com/shopspring/decimal"
)

type HistoryKind string

const (
	// HistorySale is a carriage the user won, seen from the seller side.
	HistorySale HistoryKind = "SALE"
	// HistoryPurchase is a resale the user bought carriage through.
	HistoryPurchase HistoryKind = "PURCHASE"
	// HistoryRequest is a shipper's own auction.
	HistoryRequest HistoryKind = "REQUEST"
)

const historySettled = "SETTLED"

// HistoryEntry is one settled deal in a user's transaction history.
type HistoryEntry struct {
	Date          time.Time       `json:"transactionDate"`
	Kind          HistoryKind     `json:"type"`
	RequestID     string          `json:"requestId"`
	OfferID       string          `json:"offerId"`
	ItemName      string          `json:"itemName"`
	DeparturePort string          `json:"departurePort"`
	ArrivalPort   string          `json:"arrivalPort"`
	PartnerName   string          `json:"partnerName"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
}

// soldStatuses are the statuses of an offer that won and was not withdrawn
// into an open resale.
var soldStatuses = map[models.OfferStatus]bool{
	models.OfferAccepted:  true,
	models.OfferConfirmed: true,
	models.OfferShipped:   true,
	models.OfferCompleted: true,
	models.OfferResold:    true,
}

// TransactionHistory lists the user's deals whose shipment has been settled,
// newest first:
//   - sales: offers the user won, once the terminal offer of their chain sits
//     in a SETTLED container, dated by that container's completion;
//   - purchases: the user's closed resale requests whose winner's container is
//     SETTLED;
//   - requests: the user's closed primary requests whose chain ends in a
//     SETTLED container, dated by the direct winner's bid.
//
// from and to bound the date by calendar day, inclusive; zero values leave
// that side open. keyword matches item or partner name, case-insensitively.
func (s *Service) TransactionHistory(ctx context.Context, userID string, from, to time.Time, keyword string) ([]HistoryEntry, error) {
	won, err := s.ledger.ListOffersByForwarder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("offers of %s: %w", userID, err)
	}
	var sold []models.Offer
	for _, o := range won {
		if soldStatuses[o.Status] {
			sold = append(sold, o)
		}
	}

	resales, err := s.closedRequests(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	primaries, err := s.closedRequests(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sold)+len(resales)+len(primaries))
	for _, o := range sold {
		ids = append(ids, o.RequestID)
	}
	for _, r := range resales {
		ids = append(ids, r.ID)
	}
	for _, r := range primaries {
		ids = append(ids, r.ID)
	}
	idx, err := chain.BuildIndex(ctx, s.ledger, ids, chain.WithMaxHops(s.maxHops), chain.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("index resale chains: %w", err)
	}

	h := &historyBuilder{s: s, idx: idx, containers: make(map[string]models.Container)}
	var out []HistoryEntry

	for _, o := range sold {
		terminal := h.terminal(o.RequestID)
		if terminal == nil {
			continue
		}
		c, ok, err := h.settled(ctx, terminal.ContainerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		req, err := s.ledger.GetRequest(ctx, o.RequestID)
		if err != nil {
			return nil, fmt.Errorf("request of offer %s: %w", o.ID, err)
		}
		e, err := h.entry(ctx, HistorySale, req, o, s.companyName(ctx, req.RequesterID))
		if err != nil {
			return nil, err
		}
		e.Date = completedOr(c, o.CreatedAt)
		out = append(out, e)
	}

	for _, r := range resales {
		win, ok := idx.Winning(r.ID)
		if !ok {
			continue
		}
		c, ok, err := h.settled(ctx, win.ContainerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		e, err := h.entry(ctx, HistoryPurchase, r, win, s.companyName(ctx, win.ForwarderID))
		if err != nil {
			return nil, err
		}
		e.Date = completedOr(c, win.CreatedAt)
		out = append(out, e)
	}

	for _, r := range primaries {
		win, ok := idx.Winning(r.ID)
		if !ok {
			continue
		}
		terminal := h.terminal(r.ID)
		if terminal == nil {
			continue
		}
		_, ok, err := h.settled(ctx, terminal.ContainerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		e, err := h.entry(ctx, HistoryRequest, r, win, s.companyName(ctx, win.ForwarderID))
		if err != nil {
			return nil, err
		}
		e.Date = win.CreatedAt
		out = append(out, e)
	}

	filtered := out[:0]
	for _, e := range out {
		if inDayRange(e.Date, from, to) && matchesKeyword(e, keyword) {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Date.After(filtered[j].Date) })
	if filtered == nil {
		filtered = []HistoryEntry{}
	}
	return filtered, nil
}

func (s *Service) closedRequests(ctx context.Context, userID string, resale bool) ([]models.Request, error) {
	reqs, err := s.ledger.ListRequestsByRequester(ctx, userID, resale)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	closed := reqs[:0]
	for _, r := range reqs {
		if !r.IsOpen() {
			closed = append(closed, r)
		}
	}
	return closed, nil
}

type historyBuilder struct {
	s          *Service
	idx        *chain.Index
	containers map[string]models.Container
}

// terminal returns nil for chains without a terminal offer and logs the ones
// that cannot be resolved.
func (h *historyBuilder) terminal(requestID string) *models.Offer {
	t, err := h.idx.Resolve(requestID)
	if err != nil {
		h.s.logger.Error().Err(err).Str("request_id", requestID).Msg("resale chain unresolved, history entry skipped")
		return nil
	}
	return t
}

func (h *historyBuilder) settled(ctx context.Context, containerID string) (models.Container, bool, error) {
	c, ok := h.containers[containerID]
	if !ok {
		var err error
		c, err = h.s.ledger.GetContainer(ctx, containerID)
		if err != nil {
			return models.Container{}, false, fmt.Errorf("container %s: %w", containerID, err)
		}
		h.containers[containerID] = c
	}
	return c, c.Status == models.ContainerSettled, nil
}

func (h *historyBuilder) entry(ctx context.Context, kind HistoryKind, req models.Request, o models.Offer, partner string) (HistoryEntry, error) {
	cargo, err := h.s.ledger.GetCargo(ctx, req.CargoID)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("cargo of request %s: %w", req.ID, err)
	}
	return HistoryEntry{
		Kind:          kind,
		RequestID:     req.ID,
		OfferID:       o.ID,
		ItemName:      cargo.ItemName,
		DeparturePort: req.DeparturePort,
		ArrivalPort:   req.ArrivalPort,
		PartnerName:   partner,
		Price:         o.Price,
		Currency:      o.Currency,
		Status:        historySettled,
	}, nil
}

func completedOr(c models.Container, fallback time.Time) time.Time {
	if c.CompletedAt.IsZero() {
		return fallback
	}
	return c.CompletedAt
}

func inDayRange(t, from, to time.Time) bool {
	day := startOfDay(t)
	if !from.IsZero() && day.Before(startOfDay(from)) {
		return false
	}
	if !to.IsZero() && day.After(startOfDay(to)) {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func matchesKeyword(e HistoryEntry, keyword string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.ItemName), keyword) ||
		strings.Contains(strings.ToLower(e.PartnerName), keyword)
}
