package submission

import (
	"strings"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/errors"
)

// Validate checks a draft is ready for submission. Rack numbers in messages
// are 1-based, matching the issue numbering shown to technicians.
func (s *Service) Validate(d model.Draft) error {
	if d.HasIssues == model.Unset {
		return errors.Validation("hasIssues must be answered before submitting")
	}
	if strings.TrimSpace(d.Location) == "" || strings.TrimSpace(d.DataHall) == "" {
		return errors.Validation("location and data hall are required")
	}
	if d.HasIssues != model.Yes {
		return nil
	}

	for i, rack := range d.Racks {
		n := i + 1
		if strings.TrimSpace(rack.RackLocation) == "" {
			return errors.Validation("issue %d: rack location is required", n).WithDetail("rack", rack.ID)
		}
		if s.catalog != nil && !s.catalog.ValidRack(d.Location, d.DataHall, rack.RackLocation) {
			return errors.Validation("issue %d: rack %s is not in %s", n, rack.RackLocation, d.DataHall).
				WithDetail("rack", rack.ID)
		}
		for _, detail := range flaggedDetails(rack) {
			if !model.ValidStatus(detail.Part(), detail.StatusText()) {
				return errors.Validation("issue %d: unknown %s status %q", n, detail.Part(), detail.StatusText()).
					WithDetail("rack", rack.ID)
			}
		}
	}
	return nil
}

func flaggedDetails(r model.RackEntry) []model.DeviceDetail {
	var out []model.DeviceDetail
	for _, d := range r.Details() {
		switch d.Part() {
		case model.PartPSU:
			if r.Devices.PowerSupplyUnit {
				out = append(out, d)
			}
		case model.PartPDU:
			if r.Devices.PowerDistributionUnit {
				out = append(out, d)
			}
		case model.PartRDHX:
			if r.Devices.RearDoorHeatExchanger {
				out = append(out, d)
			}
		}
	}
	return out
}
