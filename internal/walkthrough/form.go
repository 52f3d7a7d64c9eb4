// Package walkthrough holds the in-progress walkthrough form and the per-device
// walkthrough sequence.
package walkthrough

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

// RackPatch is a partial rack update. Nil fields are left unchanged.
type RackPatch struct {
	RackLocation          *string           `json:"location,omitempty" yaml:"location,omitempty"`
	PowerSupplyUnit       *bool             `json:"powerSupplyUnit,omitempty" yaml:"powerSupplyUnit,omitempty"`
	PowerDistributionUnit *bool             `json:"powerDistributionUnit,omitempty" yaml:"powerDistributionUnit,omitempty"`
	RearDoorHeatExchanger *bool             `json:"rearDoorHeatExchanger,omitempty" yaml:"rearDoorHeatExchanger,omitempty"`
	PSU                   *model.PSUDetail  `json:"psuDetails,omitempty" yaml:"psuDetails,omitempty"`
	PDU                   *model.PDUDetail  `json:"pduDetails,omitempty" yaml:"pduDetails,omitempty"`
	RDHX                  *model.RDHXDetail `json:"rdhxDetails,omitempty" yaml:"rdhxDetails,omitempty"`
}

// Form owns one walkthrough draft. All mutations go through its methods;
// invalid requests are ignored and checked again at submission.
type Form struct {
	mu    sync.Mutex
	draft model.Draft
	newID func() string
}

// NewForm starts an empty draft numbered walkthroughNumber.
func NewForm(walkthroughNumber int) *Form {
	return &Form{
		draft: model.Draft{Racks: []model.RackEntry{}, WalkthroughNumber: walkthroughNumber},
		newID: uuid.NewString,
	}
}

// Begin starts a form numbered one past the last walkthrough recorded in seq.
func Begin(ctx context.Context, seq SequenceStore) (*Form, error) {
	last, err := seq.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("read walkthrough sequence: %w", err)
	}
	return NewForm(last + 1), nil
}

// SetLocationAndHall selects the site and hall. Rack identifiers are hall
// scoped, so racks are cleared and hasIssues goes back to unset.
func (f *Form) SetLocationAndHall(location, hall string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Location = location
	f.draft.DataHall = hall
	f.draft.HasIssues = model.Unset
	f.draft.Racks = []model.RackEntry{}
}

// SetHasIssues answers whether the walkthrough found issues. The first true
// answer opens one empty rack entry; false discards every rack.
func (f *Form) SetHasIssues(hasIssues bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.HasIssues = model.FromBool(hasIssues)
	if !hasIssues {
		f.draft.Racks = []model.RackEntry{}
		return
	}
	if len(f.draft.Racks) == 0 {
		f.draft.Racks = append(f.draft.Racks, f.emptyRack())
	}
}

// AddRack appends an empty rack entry and returns its id. It is refused
// while hasIssues is not true.
func (f *Form) AddRack() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.HasIssues != model.Yes {
		return "", false
	}
	rack := f.emptyRack()
	f.draft.Racks = append(f.draft.Racks, rack)
	return rack.ID, true
}

// RemoveRack drops the rack entry with id.
func (f *Form) RemoveRack(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.draft.Racks {
		if r.ID == id {
			f.draft.Racks = append(f.draft.Racks[:i], f.draft.Racks[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateRack merges patch into the rack with id and reports whether the rack
// exists. A detail is kept only while its device flag is set.
func (f *Form) UpdateRack(id string, patch RackPatch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.draft.Racks {
		if f.draft.Racks[i].ID == id {
			applyPatch(&f.draft.Racks[i], patch)
			return true
		}
	}
	return false
}

// RackIDs lists rack ids in entry order.
func (f *Form) RackIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.draft.Racks))
	for i, r := range f.draft.Racks {
		ids[i] = r.ID
	}
	return ids
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() model.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Clone()
}

// Reset clears the form for the next walkthrough.
func (f *Form) Reset(walkthroughNumber int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = model.Draft{Racks: []model.RackEntry{}, WalkthroughNumber: walkthroughNumber}
}

func (f *Form) emptyRack() model.RackEntry {
	return model.RackEntry{ID: f.newID()}
}

func applyPatch(r *model.RackEntry, p RackPatch) {
	if p.RackLocation != nil {
		r.RackLocation = *p.RackLocation
	}
	if p.PowerSupplyUnit != nil {
		r.Devices.PowerSupplyUnit = *p.PowerSupplyUnit
	}
	if p.PowerDistributionUnit != nil {
		r.Devices.PowerDistributionUnit = *p.PowerDistributionUnit
	}
	if p.RearDoorHeatExchanger != nil {
		r.Devices.RearDoorHeatExchanger = *p.RearDoorHeatExchanger
	}

	if p.PSU != nil {
		d := *p.PSU
		r.PSU = &d
	}
	if p.PDU != nil {
		d := *p.PDU
		r.PDU = &d
	}
	if p.RDHX != nil {
		d := *p.RDHX
		r.RDHX = &d
	}

	if !r.Devices.PowerSupplyUnit {
		r.PSU = nil
	}
	if !r.Devices.PowerDistributionUnit {
		r.PDU = nil
	}
	if !r.Devices.RearDoorHeatExchanger {
		r.RDHX = nil
	}
}
