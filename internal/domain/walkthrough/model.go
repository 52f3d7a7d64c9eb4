// Package walkthrough holds the walkthrough draft, audit report and incident
// records exchanged between the form, the submission pipeline and storage.
package walkthrough

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TriState is an answer that may not have been given yet.
type TriState int

const (
	Unset TriState = iota
	Yes
	No
)

// Bool returns the answer and whether it has been given.
func (t TriState) Bool() (value bool, ok bool) {
	switch t {
	case Yes:
		return true, true
	case No:
		return false, true
	default:
		return false, false
	}
}

// FromBool converts a given answer.
func FromBool(b bool) TriState {
	if b {
		return Yes
	}
	return No
}

// MarshalJSON encodes unset as null.
func (t TriState) MarshalJSON() ([]byte, error) {
	v, ok := t.Bool()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON accepts true, false or null.
func (t *TriState) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*t = Unset
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("hasIssues: %w", err)
	}
	*t = FromBool(b)
	return nil
}

// DeviceFlags marks which device categories a rack entry implicates.
type DeviceFlags struct {
	PowerSupplyUnit       bool `json:"powerSupplyUnit"`
	PowerDistributionUnit bool `json:"powerDistributionUnit"`
	RearDoorHeatExchanger bool `json:"rearDoorHeatExchanger"`
}

// Any reports whether at least one flag is set.
func (f DeviceFlags) Any() bool {
	return f.PowerSupplyUnit || f.PowerDistributionUnit || f.RearDoorHeatExchanger
}

// RackEntry is one flagged issue location within a walkthrough.
type RackEntry struct {
	ID           string      `json:"id"`
	RackLocation string      `json:"location"`
	Devices      DeviceFlags `json:"devices"`
	PSU          *PSUDetail  `json:"psuDetails,omitempty"`
	PDU          *PDUDetail  `json:"pduDetails,omitempty"`
	RDHX         *RDHXDetail `json:"rdhxDetails,omitempty"`
}

// Issue returns the device detail incident derivation acts on: the first of
// PSU, PDU, RDHX whose flag is set and whose detail is populated.
func (r RackEntry) Issue() (DeviceDetail, bool) {
	if r.Devices.PowerSupplyUnit && r.PSU != nil && !r.PSU.empty() {
		return *r.PSU, true
	}
	if r.Devices.PowerDistributionUnit && r.PDU != nil && !r.PDU.empty() {
		return *r.PDU, true
	}
	if r.Devices.RearDoorHeatExchanger && r.RDHX != nil && !r.RDHX.empty() {
		return *r.RDHX, true
	}
	return nil, false
}

// Details lists every populated detail, in priority order.
func (r RackEntry) Details() []DeviceDetail {
	var out []DeviceDetail
	if r.PSU != nil && !r.PSU.empty() {
		out = append(out, *r.PSU)
	}
	if r.PDU != nil && !r.PDU.empty() {
		out = append(out, *r.PDU)
	}
	if r.RDHX != nil && !r.RDHX.empty() {
		out = append(out, *r.RDHX)
	}
	return out
}

// Draft is an in-progress walkthrough.
type Draft struct {
	Location          string      `json:"location"`
	DataHall          string      `json:"dataHall"`
	HasIssues         TriState    `json:"hasIssues"`
	Racks             []RackEntry `json:"racks"`
	WalkthroughNumber int         `json:"walkthroughNumber"`
}

// IssueCount is the number of rack entries that count as reported issues.
func (d Draft) IssueCount() int {
	if d.HasIssues != Yes {
		return 0
	}
	return len(d.Racks)
}

// Clone returns a deep copy so callers cannot mutate form state through it.
func (d Draft) Clone() Draft {
	out := d
	out.Racks = make([]RackEntry, len(d.Racks))
	for i, r := range d.Racks {
		out.Racks[i] = r.clone()
	}
	return out
}

func (r RackEntry) clone() RackEntry {
	out := r
	if r.PSU != nil {
		v := *r.PSU
		out.PSU = &v
	}
	if r.PDU != nil {
		v := *r.PDU
		out.PDU = &v
	}
	if r.RDHX != nil {
		v := *r.RDHX
		out.RDHX = &v
	}
	return out
}

// ReportData is the serialized draft retained on the audit report.
type ReportData struct {
	Location          string      `json:"location"`
	DataHall          string      `json:"dataHall"`
	HasIssues         bool        `json:"hasIssues"`
	Racks             []RackEntry `json:"racks"`
	WalkthroughNumber int         `json:"walkthroughNumber"`
	Timestamp         time.Time   `json:"timestamp"`
}

// NewReportData snapshots d at submission time.
func NewReportData(d Draft, at time.Time) ReportData {
	racks := d.Clone().Racks
	if d.HasIssues != Yes {
		racks = []RackEntry{}
	}
	return ReportData{
		Location:          d.Location,
		DataHall:          d.DataHall,
		HasIssues:         d.HasIssues == Yes,
		Racks:             racks,
		WalkthroughNumber: d.WalkthroughNumber,
		Timestamp:         at.UTC(),
	}
}
