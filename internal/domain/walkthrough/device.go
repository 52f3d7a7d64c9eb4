package walkthrough

import "strings"

// PartType names the device category of an incident.
type PartType string

const (
	PartPSU   PartType = "PSU"
	PartPDU   PartType = "PDU"
	PartRDHX  PartType = "RDHX"
	PartOther PartType = "Other"
)

// DeviceDetail is the populated issue detail of one device category. The
// concrete types are PSUDetail, PDUDetail and RDHXDetail.
type DeviceDetail interface {
	Part() PartType
	StatusText() string
	Critical() bool
	sealed()
}

// Status values per device category.
const (
	StatusPoweredOff     = "Powered-Off"
	StatusAmberLED       = "Amber LED"
	StatusMissing        = "Missing"
	StatusTrippedBreaker = "Tripped Breaker"
	StatusAlarm          = "Alarm"
	StatusWaterLeak      = "Water Leak"
	StatusFanFailure     = "Fan Failure"
	StatusDoorOpen       = "Door Open"
	StatusOther          = "Other"
)

var knownStatuses = map[PartType][]string{
	PartPSU:  {StatusPoweredOff, StatusAmberLED, StatusMissing, StatusOther},
	PartPDU:  {StatusPoweredOff, StatusTrippedBreaker, StatusAlarm, StatusOther},
	PartRDHX: {StatusWaterLeak, StatusFanFailure, StatusAlarm, StatusDoorOpen, StatusOther},
}

// Statuses returns the accepted status values for part.
func Statuses(part PartType) []string {
	out := make([]string, len(knownStatuses[part]))
	copy(out, knownStatuses[part])
	return out
}

// ValidStatus reports whether status is accepted for part.
func ValidStatus(part PartType, status string) bool {
	for _, s := range knownStatuses[part] {
		if s == status {
			return true
		}
	}
	return false
}

// PSUDetail describes a power supply unit problem.
type PSUDetail struct {
	Status   string `json:"status" yaml:"status"`
	PSUID    string `json:"psuId" yaml:"psuId"`
	UHeight  string `json:"uHeight" yaml:"uHeight"`
	Comments string `json:"comments,omitempty" yaml:"comments,omitempty"`
}

func (PSUDetail) Part() PartType       { return PartPSU }
func (d PSUDetail) StatusText() string { return d.Status }
func (d PSUDetail) Critical() bool     { return d.Status == StatusPoweredOff }
func (PSUDetail) sealed()              {}

func (d PSUDetail) empty() bool {
	return blank(d.Status) && blank(d.PSUID) && blank(d.UHeight) && blank(d.Comments)
}

// PDUDetail describes a power distribution unit problem.
type PDUDetail struct {
	Status   string `json:"status" yaml:"status"`
	PDUID    string `json:"pduId" yaml:"pduId"`
	Comments string `json:"comments,omitempty" yaml:"comments,omitempty"`
}

func (PDUDetail) Part() PartType       { return PartPDU }
func (d PDUDetail) StatusText() string { return d.Status }
func (d PDUDetail) Critical() bool     { return d.Status == StatusPoweredOff }
func (PDUDetail) sealed()              {}

func (d PDUDetail) empty() bool {
	return blank(d.Status) && blank(d.PDUID) && blank(d.Comments)
}

// RDHXDetail describes a rear door heat exchanger problem.
type RDHXDetail struct {
	Status   string `json:"status" yaml:"status"`
	Comments string `json:"comments,omitempty" yaml:"comments,omitempty"`
}

func (RDHXDetail) Part() PartType       { return PartRDHX }
func (d RDHXDetail) StatusText() string { return d.Status }
func (d RDHXDetail) Critical() bool     { return d.Status == StatusWaterLeak }
func (RDHXDetail) sealed()              {}

func (d RDHXDetail) empty() bool {
	return blank(d.Status) && blank(d.Comments)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
