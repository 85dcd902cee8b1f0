package market

import (
	"context"
	"fmt"
	"time"

	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/models"
)

// ConfirmPrimary closes a shipper's auction: winningOfferID becomes ACCEPTED,
// every other bid REJECTED, the request CLOSED, and the winner's cargo is
// allocated to its container.
func (s *Service) ConfirmPrimary(ctx context.Context, requestID, winningOfferID, callerID string) error {
	return s.confirm(ctx, requestID, winningOfferID, callerID, false)
}

// ConfirmResale closes a resale auction. On top of ConfirmPrimary the source
// offer becomes RESOLD and its allocation moves to the new winner.
func (s *Service) ConfirmResale(ctx context.Context, requestID, winningOfferID, callerID string) error {
	return s.confirm(ctx, requestID, winningOfferID, callerID, true)
}

func (s *Service) confirm(ctx context.Context, requestID, winningOfferID, callerID string, resale bool) error {
	kind := "primary"
	if resale {
		kind = "resale"
	}

	err := s.runTx(ctx, "confirm_"+kind, func(ctx context.Context) error {
		req, err := s.ledger.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.RequesterID != callerID {
			return models.ErrNotRequester
		}
		if !req.IsOpen() {
			return models.ErrRequestClosed
		}
		if req.IsResale() != resale {
			if resale {
				return models.ErrNotResaleRequest
			}
			return models.ErrNotPrimaryRequest
		}

		offers, err := s.ledger.ListOffersByRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("list offers of request %s: %w", requestID, err)
		}
		win := -1
		for i := range offers {
			if offers[i].ID == winningOfferID {
				win = i
				break
			}
		}
		if win < 0 {
			return fmt.Errorf("%w: %s is not a bid on request %s", models.ErrOfferNotFound, winningOfferID, requestID)
		}
		// The cascade only moves allocated offers forward from ACCEPTED, so a
		// winner must join its container before the container leaves SCHEDULED.
		container, err := s.ledger.GetContainer(ctx, offers[win].ContainerID)
		if err != nil {
			return fmt.Errorf("container of offer %s: %w", winningOfferID, err)
		}
		if container.Status != models.ContainerScheduled {
			return fmt.Errorf("%w: container %s is %s", models.ErrContainerNotOpen, container.ID, container.Status)
		}

		now := s.now()
		// Only the transaction that still sees OPEN gets past this point.
		if err := s.ledger.CloseRequest(ctx, requestID, now); err != nil {
			return err
		}

		for i := range offers {
			to := models.OfferRejected
			if i == win {
				to = models.OfferAccepted
			}
			if i != win && offers[i].Status == models.OfferRejected {
				continue
			}
			if err := s.setOfferStatus(ctx, &offers[i], to, now); err != nil {
				return err
			}
		}
		winner := offers[win]

		if resale {
			source, err := s.ledger.GetOffer(ctx, req.SourceOfferID)
			if err != nil {
				return fmt.Errorf("source offer of resale %s: %w", requestID, err)
			}
			if err := s.setOfferStatus(ctx, &source, models.OfferResold, now); err != nil {
				return err
			}
			if _, err := s.ledger.DeleteAllocationByOffer(ctx, source.ID); err != nil {
				return fmt.Errorf("release allocation of offer %s: %w", source.ID, err)
			}
		}

		if err := s.ensureAllocation(ctx, req, winner, now); err != nil {
			return err
		}

		events.Emit(ctx, events.OfferConfirmed{Offers: offers, Winning: winner})
		events.Emit(ctx, events.DealMade{})
		return nil
	})

	s.metrics.Confirmations.WithLabelValues(kind, outcome(err)).Inc()
	if err != nil {
		s.logResult(err, "confirm_"+kind, map[string]any{
			"request_id": requestID,
			"offer_id":   winningOfferID,
			"caller_id":  callerID,
		})
		return err
	}
	s.metrics.Deals.Inc()
	s.logger.Info().
		Str("request_id", requestID).
		Str("offer_id", winningOfferID).
		Str("kind", kind).
		Msg("auction confirmed")
	return nil
}

// setOfferStatus moves o to `to` through the transition table and a
// compare-and-set write, updating o in place.
func (s *Service) setOfferStatus(ctx context.Context, o *models.Offer, to models.OfferStatus, at time.Time) error {
	if err := models.Transition(o.Status, to); err != nil {
		return fmt.Errorf("offer %s: %w", o.ID, err)
	}
	if err := s.ledger.UpdateOfferStatus(ctx, o.ID, o.Status, to, at); err != nil {
		return fmt.Errorf("offer %s: %w", o.ID, err)
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// ensureAllocation records the winner's cargo in its container unless the
// offer is already allocated. The unique index on the offer only guards
// against a concurrent transaction: a duplicate key aborts a Mongo
// transaction, so ledger.ErrAllocationExists is returned, not absorbed.
func (s *Service) ensureAllocation(ctx context.Context, req models.Request, winner models.Offer, at time.Time) error {
	existing, err := s.ledger.GetAllocationByOffer(ctx, winner.ID)
	if err != nil {
		return fmt.Errorf("allocation of offer %s: %w", winner.ID, err)
	}
	if existing != nil {
		return nil
	}

	cargo, err := s.ledger.GetCargo(ctx, req.CargoID)
	if err != nil {
		return fmt.Errorf("cargo of request %s: %w", req.ID, err)
	}

	if err := s.ledger.InsertAllocation(ctx, models.ContainerCargo{
		ID:              models.NewID(),
		ContainerID:     winner.ContainerID,
		OfferID:         winner.ID,
		CBMLoaded:       cargo.TotalCBM,
		FreightCost:     winner.Price,
		FreightCurrency: winner.Currency,
		CreatedAt:       at,
	}); err != nil {
		return fmt.Errorf("allocate offer %s: %w", winner.ID, err)
	}
	return nil
}
