package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/models"
)

type NewContainer struct {
	Size          string        `json:"size" binding:"required"`
	CapacityCBM   models.Volume `json:"capacityCbm" binding:"required"`
	DeparturePort string        `json:"departurePort" binding:"required"`
	ArrivalPort   string        `json:"arrivalPort" binding:"required"`
	ETD           time.Time     `json:"etd"`
	ETA           time.Time     `json:"eta"`
	IMONumber     string        `json:"imoNumber"`
}

func (s *Service) CreateContainer(ctx context.Context, forwarderID string, in NewContainer) (models.Container, error) {
	switch {
	case strings.TrimSpace(in.Size) == "":
		return models.Container{}, invalid("container size is required")
	case in.CapacityCBM <= 0:
		return models.Container{}, invalid("capacity must be positive")
	case in.DeparturePort == "" || in.ArrivalPort == "":
		return models.Container{}, invalid("departure and arrival ports are required")
	case !in.ETD.IsZero() && !in.ETA.IsZero() && in.ETA.Before(in.ETD):
		return models.Container{}, invalid("ETA is before ETD")
	}

	c := models.Container{
		ID:          models.NewID(),
		ForwarderID: forwarderID,
		Size:        in.Size,
		CapacityCBM: in.CapacityCBM,
		Route:       models.Route{DeparturePort: in.DeparturePort, ArrivalPort: in.ArrivalPort},
		ETD:         models.Stamp(in.ETD),
		ETA:         models.Stamp(in.ETA),
		IMONumber:   in.IMONumber,
		Status:      models.ContainerScheduled,
		CreatedAt:   s.now(),
	}
	if err := s.runTx(ctx, "create_container", func(ctx context.Context) error {
		return s.ledger.InsertContainer(ctx, c)
	}); err != nil {
		return models.Container{}, err
	}
	return c, nil
}

// ChangeContainerStatus advances a container one step. Leaving SCHEDULED
// withdraws the open resale listings of offers carried by it; the allocated
// offers follow the container through CONFIRMED, SHIPPED and COMPLETED.
func (s *Service) ChangeContainerStatus(ctx context.Context, forwarderID, containerID string, to models.ContainerStatus, message string) (models.Container, error) {
	var updated models.Container
	err := s.runTx(ctx, "container_status", func(ctx context.Context) error {
		c, err := s.ledger.GetContainer(ctx, containerID)
		if err != nil {
			return err
		}
		if c.ForwarderID != forwarderID {
			return models.ErrNotContainerOwner
		}
		if !to.Valid() {
			return invalid("unknown container status %q", to)
		}
		if !c.Status.CanAdvanceTo(to) {
			return fmt.Errorf("%w: %s -> %s", models.ErrContainerTransition, c.Status, to)
		}

		now := s.now()
		if err := s.ledger.UpdateContainerStatus(ctx, c.ID, c.Status, to, now); err != nil {
			return err
		}

		if c.Status == models.ContainerScheduled {
			if err := s.withdrawResales(ctx, c.ID); err != nil {
				return err
			}
		}
		if target, ok := to.OfferStatus(); ok {
			if err := s.advanceAllocatedOffers(ctx, c.ID, target, now); err != nil {
				return err
			}
		}

		if updated, err = s.ledger.GetContainer(ctx, c.ID); err != nil {
			return err
		}
		if message == "" {
			message = string(to)
		}
		events.Emit(ctx, events.ContainerStatusChanged{Container: updated, Message: message})
		return nil
	})
	if err != nil {
		s.logResult(err, "container_status", map[string]any{"container_id": containerID, "to": string(to)})
		return models.Container{}, err
	}
	s.logger.Info().Str("container_id", containerID).Str("status", string(to)).Msg("container advanced")
	return updated, nil
}

func (s *Service) withdrawResales(ctx context.Context, containerID string) error {
	offers, err := s.ledger.ListOffersByContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("offers in container %s: %w", containerID, err)
	}
	for _, o := range offers {
		if o.Status != models.OfferForSale {
			continue
		}
		resales, err := s.ledger.FindRequestsBySourceOffer(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("resales of offer %s: %w", o.ID, err)
		}
		for _, r := range resales {
			if _, err := s.revert(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) advanceAllocatedOffers(ctx context.Context, containerID string, target models.OfferStatus, at time.Time) error {
	allocs, err := s.ledger.ListAllocationsByContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("allocations of container %s: %w", containerID, err)
	}
	for _, a := range allocs {
		o, err := s.ledger.GetOffer(ctx, a.OfferID)
		if err != nil {
			return fmt.Errorf("allocated offer %s: %w", a.OfferID, err)
		}
		if !o.Status.CanTransition(target) {
			continue
		}
		if err := s.setOfferStatus(ctx, &o, target, at); err != nil {
			return err
		}
	}
	return nil
}
