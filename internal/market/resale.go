package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/models"
)

// CreateResaleRequest lists an ACCEPTED offer for resale. The offer becomes
// FOR_SALE and a new OPEN request copies the original cargo, route and
// deadline with the reselling forwarder as requester.
func (s *Service) CreateResaleRequest(ctx context.Context, offerID, callerID string) (models.Request, error) {
	var created models.Request
	err := s.runTx(ctx, "create_resale", func(ctx context.Context) error {
		offer, err := s.ledger.GetOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if offer.ForwarderID != callerID {
			return models.ErrNotOfferOwner
		}
		if offer.Status != models.OfferAccepted {
			return fmt.Errorf("%w: offer %s is %s", models.ErrIllegalTransition, offer.ID, offer.Status)
		}
		container, err := s.ledger.GetContainer(ctx, offer.ContainerID)
		if err != nil {
			return fmt.Errorf("container of offer %s: %w", offer.ID, err)
		}
		if container.Status != models.ContainerScheduled {
			return models.ErrContainerNotOpen
		}
		origin, err := s.ledger.GetRequest(ctx, offer.RequestID)
		if err != nil {
			return fmt.Errorf("request of offer %s: %w", offer.ID, err)
		}

		now := s.now()
		if err := s.setOfferStatus(ctx, &offer, models.OfferForSale, now); err != nil {
			return err
		}

		created = models.Request{
			ID:                 models.NewID(),
			CargoID:            origin.CargoID,
			RequesterID:        callerID,
			Route:              origin.Route,
			Deadline:           origin.Deadline,
			DesiredArrivalDate: origin.DesiredArrivalDate,
			TradeType:          origin.TradeType,
			TransportType:      origin.TransportType,
			Status:             models.RequestOpen,
			SourceOfferID:      offer.ID,
			CreatedAt:          now,
		}
		if err := s.ledger.InsertRequest(ctx, created); err != nil {
			return fmt.Errorf("insert resale request: %w", err)
		}

		cargo, err := s.ledger.GetCargo(ctx, created.CargoID)
		if err != nil {
			return fmt.Errorf("cargo of request %s: %w", origin.ID, err)
		}
		events.Emit(ctx, events.RequestCreated{Summary: summarize(created, cargo), RequesterID: callerID})
		return nil
	})
	if err != nil {
		s.logResult(err, "create_resale", map[string]any{"offer_id": offerID, "caller_id": callerID})
		return models.Request{}, err
	}
	s.metrics.ResaleRequests.WithLabelValues("created").Inc()
	s.logger.Info().Str("offer_id", offerID).Str("request_id", created.ID).Msg("offer listed for resale")
	return created, nil
}

// CancelResaleRequest withdraws an OPEN resale listing owned by callerID.
func (s *Service) CancelResaleRequest(ctx context.Context, requestID, callerID string) error {
	err := s.runTx(ctx, "cancel_resale", func(ctx context.Context) error {
		req, err := s.ledger.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.RequesterID != callerID {
			return models.ErrNotRequester
		}
		if !req.IsResale() {
			return models.ErrNotResaleRequest
		}
		if !req.IsOpen() {
			return models.ErrRequestClosed
		}
		_, err = s.revert(ctx, req)
		return err
	})
	if err != nil {
		s.logResult(err, "cancel_resale", map[string]any{"request_id": requestID, "caller_id": callerID})
		return err
	}
	s.metrics.ResaleRequests.WithLabelValues("cancelled").Inc()
	return nil
}

// RevertResale undoes an unresolved resale listing in its own transaction.
// It reports false when the request was already CLOSED.
func (s *Service) RevertResale(ctx context.Context, requestID string) (bool, error) {
	var reverted bool
	err := s.runTx(ctx, "revert_resale", func(ctx context.Context) error {
		req, err := s.ledger.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.IsResale() {
			return models.ErrNotResaleRequest
		}
		reverted, err = s.revert(ctx, req)
		return err
	})
	return reverted, err
}

// revert is the in-transaction primitive: the source offer goes back to
// ACCEPTED, every bid on req is REJECTED and req is CLOSED. A CLOSED request
// is left alone.
func (s *Service) revert(ctx context.Context, req models.Request) (bool, error) {
	if !req.IsOpen() {
		return false, nil
	}
	now := s.now()
	if err := s.ledger.CloseRequest(ctx, req.ID, now); err != nil {
		if errors.Is(err, models.ErrRequestClosed) {
			return false, nil
		}
		return false, err
	}

	source, err := s.ledger.GetOffer(ctx, req.SourceOfferID)
	if err != nil {
		return false, fmt.Errorf("source offer of resale %s: %w", req.ID, err)
	}
	if err := s.setOfferStatus(ctx, &source, models.OfferAccepted, now); err != nil {
		return false, err
	}

	bids, err := s.ledger.ListOffersByRequest(ctx, req.ID)
	if err != nil {
		return false, fmt.Errorf("list offers of request %s: %w", req.ID, err)
	}
	for i := range bids {
		if bids[i].Status == models.OfferRejected {
			continue
		}
		if err := s.setOfferStatus(ctx, &bids[i], models.OfferRejected, now); err != nil {
			return false, err
		}
	}
	return true, nil
}

// SweepExpiredResales reverts every OPEN resale whose deadline has passed,
// each in its own transaction. Failures are logged and skipped.
func (s *Service) SweepExpiredResales(ctx context.Context) (int, error) {
	expired, err := s.ledger.ListExpiredResales(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired resales: %w", err)
	}

	n := 0
	for _, req := range expired {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := s.RevertResale(ctx, req.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("request_id", req.ID).Msg("expired resale not reverted")
			continue
		}
		if ok {
			n++
			s.metrics.ResaleRequests.WithLabelValues("expired").Inc()
		}
	}
	if n > 0 {
		s.logger.Info().Int("reverted", n).Msg("expired resales swept")
	}
	return n, nil
}

// RunSweeper calls SweepExpiredResales every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpiredResales(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("resale sweep failed")
			}
		}
	}
}
