package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"freight-resale-api-server/internal/chain"
	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/models"
	"github.com/shopspring/decimal"
)

type NewRequest struct {
	ItemName           string        `json:"itemName" binding:"required"`
	Incoterms          string        `json:"incoterms"`
	TotalCBM           models.Volume `json:"totalCbm" binding:"required"`
	Dangerous          bool          `json:"dangerous"`
	DeparturePort      string        `json:"departurePort" binding:"required"`
	ArrivalPort        string        `json:"arrivalPort" binding:"required"`
	Deadline           time.Time     `json:"deadline"`
	DesiredArrivalDate time.Time     `json:"desiredArrivalDate"`
	TradeType          string        `json:"tradeType"`
	TransportType      string        `json:"transportType"`
}

type NewOffer struct {
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" binding:"required"`
	ContainerID string          `json:"containerId" binding:"required"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{models.ErrInvalid}, args...)...)
}

// CreateRequest opens a primary auction for a new unit of cargo owned by
// shipperID.
func (s *Service) CreateRequest(ctx context.Context, shipperID string, in NewRequest) (models.Request, error) {
	now := s.now()
	switch {
	case strings.TrimSpace(in.ItemName) == "":
		return models.Request{}, invalid("item name is required")
	case in.TotalCBM <= 0:
		return models.Request{}, invalid("total CBM must be positive")
	case in.DeparturePort == "" || in.ArrivalPort == "":
		return models.Request{}, invalid("departure and arrival ports are required")
	case !in.Deadline.After(now):
		return models.Request{}, invalid("deadline must be in the future")
	}

	var created models.Request
	err := s.runTx(ctx, "create_request", func(ctx context.Context) error {
		cargo := models.Cargo{
			ID:            models.NewID(),
			OwnerID:       shipperID,
			ItemName:      strings.TrimSpace(in.ItemName),
			TotalCBM:      in.TotalCBM,
			Incoterms:     in.Incoterms,
			TradeType:     in.TradeType,
			TransportType: in.TransportType,
			Dangerous:     in.Dangerous,
			CreatedAt:     now,
		}
		if err := s.ledger.InsertCargo(ctx, cargo); err != nil {
			return fmt.Errorf("insert cargo: %w", err)
		}

		created = models.Request{
			ID:                 models.NewID(),
			CargoID:            cargo.ID,
			RequesterID:        shipperID,
			Route:              models.Route{DeparturePort: in.DeparturePort, ArrivalPort: in.ArrivalPort},
			Deadline:           models.Stamp(in.Deadline),
			DesiredArrivalDate: models.Stamp(in.DesiredArrivalDate),
			TradeType:          in.TradeType,
			TransportType:      in.TransportType,
			Status:             models.RequestOpen,
			CreatedAt:          now,
		}
		if err := s.ledger.InsertRequest(ctx, created); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}

		events.Emit(ctx, events.RequestCreated{Summary: summarize(created, cargo), RequesterID: shipperID})
		return nil
	})
	if err != nil {
		return models.Request{}, err
	}
	s.logger.Info().Str("request_id", created.ID).Str("route", created.Route.String()).Msg("request opened")
	return created, nil
}

// SubmitOffer places forwarderID's bid on an OPEN request, carried by one of
// the forwarder's SCHEDULED containers.
func (s *Service) SubmitOffer(ctx context.Context, forwarderID, requestID string, in NewOffer) (models.Offer, error) {
	if !in.Price.IsPositive() {
		return models.Offer{}, invalid("price must be positive")
	}
	if strings.TrimSpace(in.Currency) == "" {
		return models.Offer{}, invalid("currency is required")
	}

	var created models.Offer
	err := s.runTx(ctx, "submit_offer", func(ctx context.Context) error {
		req, err := s.ledger.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		container, err := s.ledger.GetContainer(ctx, in.ContainerID)
		if err != nil {
			return err
		}
		if req.RequesterID == forwarderID {
			return models.ErrOwnRequest
		}
		if container.ForwarderID != forwarderID {
			return models.ErrNotContainerOwner
		}

		now := s.now()
		if !req.IsOpen() {
			return models.ErrRequestClosed
		}
		if !now.Before(req.Deadline) {
			return models.ErrDeadlinePassed
		}
		if container.Status != models.ContainerScheduled {
			return models.ErrContainerNotOpen
		}
		dup, err := s.ledger.HasOffer(ctx, requestID, forwarderID)
		if err != nil {
			return fmt.Errorf("check existing bid: %w", err)
		}
		if dup {
			return models.ErrDuplicateOffer
		}

		created = models.Offer{
			ID:          models.NewID(),
			RequestID:   requestID,
			ForwarderID: forwarderID,
			Price:       in.Price,
			Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
			ContainerID: container.ID,
			Status:      models.OfferPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.ledger.InsertOffer(ctx, created); err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}
		events.Emit(ctx, events.OfferCreated{Offer: created})
		return nil
	})
	if err != nil {
		s.logResult(err, "submit_offer", map[string]any{"request_id": requestID, "forwarder_id": forwarderID})
		return models.Offer{}, err
	}
	return created, nil
}

// ListBidders returns every bid on a request to its requester.
func (s *Service) ListBidders(ctx context.Context, requestID, callerID string) ([]models.Offer, error) {
	req, err := s.ledger.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != callerID {
		return nil, models.ErrNotRequester
	}
	return s.ledger.ListOffersByRequest(ctx, requestID)
}

type ListFilter struct {
	Resale bool
	// Status is OPEN, CLOSED, or a container status of the terminal offer.
	// Empty matches everything.
	Status string
}

// PostedRequest is one row of a requester's listing.
type PostedRequest struct {
	Request        models.Request `json:"request"`
	BidderCount    int            `json:"bidderCount"`
	Winning        *models.Offer  `json:"winningOffer,omitempty"`
	Terminal       *models.Offer  `json:"terminalOffer,omitempty"`
	DetailedStatus string         `json:"detailedStatus,omitempty"`
}

// ListPostedRequests lists the requests requesterID posted. OPEN rows carry
// their bidder count; CLOSED rows carry the direct winner and the terminal
// offer of the chain. Closed requests without a winner and chains whose
// terminal container is SETTLED are left out.
func (s *Service) ListPostedRequests(ctx context.Context, requesterID string, f ListFilter) ([]PostedRequest, error) {
	reqs, err := s.ledger.ListRequestsByRequester(ctx, requesterID, f.Resale)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	var openIDs, closedIDs []string
	for _, r := range reqs {
		if r.IsOpen() {
			openIDs = append(openIDs, r.ID)
		} else {
			closedIDs = append(closedIDs, r.ID)
		}
	}

	counts := map[string]int{}
	if len(openIDs) > 0 {
		if counts, err = s.ledger.CountOffersByRequests(ctx, openIDs); err != nil {
			return nil, fmt.Errorf("count bids: %w", err)
		}
	}

	idx, err := chain.BuildIndex(ctx, s.ledger, closedIDs, chain.WithMaxHops(s.maxHops), chain.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("index resale chains: %w", err)
	}

	terminals := make(map[string]models.Offer, len(closedIDs))
	var containerIDs []string
	for _, id := range closedIDs {
		t, err := idx.Resolve(id)
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", id).Msg("resale chain unresolved, row skipped")
			continue
		}
		if t != nil {
			terminals[id] = *t
			containerIDs = append(containerIDs, t.ContainerID)
		}
	}
	containers, err := s.ledger.GetContainers(ctx, containerIDs)
	if err != nil {
		return nil, fmt.Errorf("load containers: %w", err)
	}

	out := make([]PostedRequest, 0, len(reqs))
	for _, r := range reqs {
		row := PostedRequest{Request: r}
		if r.IsOpen() {
			row.BidderCount = counts[r.ID]
		} else {
			win, ok := idx.Winning(r.ID)
			if !ok {
				continue
			}
			term, ok := terminals[r.ID]
			if !ok {
				continue
			}
			if c, ok := containers[term.ContainerID]; ok {
				if c.Status == models.ContainerSettled {
					continue
				}
				row.DetailedStatus = string(c.Status)
			}
			row.Winning = &win
			row.Terminal = &term
		}
		if matchesStatus(row, f.Status) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matchesStatus(row PostedRequest, status string) bool {
	switch {
	case status == "":
		return true
	case strings.EqualFold(status, string(models.RequestOpen)):
		return row.Request.IsOpen()
	case strings.EqualFold(status, string(models.RequestClosed)):
		return !row.Request.IsOpen()
	default:
		return strings.EqualFold(status, row.DetailedStatus)
	}
}

func summarize(r models.Request, c models.Cargo) events.RequestSummary {
	return events.RequestSummary{
		RequestID:     r.ID,
		ItemName:      c.ItemName,
		TotalCBM:      c.TotalCBM,
		DeparturePort: r.DeparturePort,
		ArrivalPort:   r.ArrivalPort,
		Deadline:      r.Deadline.Format(time.RFC3339),
		TradeType:     r.TradeType,
		TransportType: r.TransportType,
		Resale:        r.IsResale(),
		Status:        r.Status,
	}
}
