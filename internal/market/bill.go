package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"freight-resale-api-server/internal/models"
)

var ErrNoCarrier = fmt.Errorf("%w: request has no confirmed carrier", models.ErrConflict)

// BillOfLading is the data of a bill of lading. Formatting is left to the
// client.
type BillOfLading struct {
	Number             string        `json:"blNo"`
	IssueDate          time.Time     `json:"issueDate"`
	ShipperName        string        `json:"shipperName"`
	ConsigneeName      string        `json:"consigneeName"`
	ForwarderName      string        `json:"forwarderName"`
	IMONumber          string        `json:"imoNumber"`
	PortOfLoading      string        `json:"portOfLoading"`
	PortOfDischarge    string        `json:"portOfDischarge"`
	ContainerNo        string        `json:"containerNo"`
	DescriptionOfGoods string        `json:"descriptionOfGoods"`
	CBM                models.Volume `json:"cbm"`
}

// BillOfLading builds the B/L of a request from the terminal offer of its
// chain, so the carrier named is the one actually performing the shipment.
func (s *Service) BillOfLading(ctx context.Context, requestID, callerID string) (BillOfLading, error) {
	req, err := s.ledger.GetRequest(ctx, requestID)
	if err != nil {
		return BillOfLading{}, err
	}
	if req.RequesterID != callerID {
		return BillOfLading{}, models.ErrNotRequester
	}

	terminal, err := s.ResolveTerminalOffer(ctx, requestID)
	if err != nil {
		return BillOfLading{}, err
	}
	if terminal == nil {
		return BillOfLading{}, ErrNoCarrier
	}

	container, err := s.ledger.GetContainer(ctx, terminal.ContainerID)
	if err != nil {
		return BillOfLading{}, fmt.Errorf("container of offer %s: %w", terminal.ID, err)
	}
	cargo, err := s.ledger.GetCargo(ctx, req.CargoID)
	if err != nil {
		return BillOfLading{}, fmt.Errorf("cargo of request %s: %w", req.ID, err)
	}

	shipper := s.companyName(ctx, req.RequesterID)
	return BillOfLading{
		Number:             fmt.Sprintf("SHB-%s-%s", shortID(req.ID), shortID(terminal.ID)),
		IssueDate:          s.now(),
		ShipperName:        shipper,
		ConsigneeName:      shipper,
		ForwarderName:      s.companyName(ctx, terminal.ForwarderID),
		IMONumber:          container.IMONumber,
		PortOfLoading:      req.DeparturePort,
		PortOfDischarge:    req.ArrivalPort,
		ContainerNo:        container.ID,
		DescriptionOfGoods: cargo.ItemName,
		CBM:                cargo.TotalCBM,
	}, nil
}

// companyName falls back to the user ID when no directory is wired or the
// lookup fails.
func (s *Service) companyName(ctx context.Context, userID string) string {
	if s.users == nil {
		return userID
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil || u.CompanyName == "" {
		return userID
	}
	return u.CompanyName
}

func shortID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}
