package walkthrough

import (
	"encoding/json"
	"strings"
	"time"
)

// Collection names used with the persistence gateway.
const (
	CollectionAuditReports = "audit_reports"
	CollectionIncidents    = "incidents"
	CollectionUserProfiles = "user_profiles"
)

// ReportState summarises a walkthrough.
type ReportState string

const (
	StateHealthy  ReportState = "Healthy"
	StateWarning  ReportState = "Warning"
	StateCritical ReportState = "Critical"
)

// criticalRackThreshold is the rack count above which a report is critical.
const criticalRackThreshold = 2

// StateFor derives the report state from the number of reported issues.
func StateFor(issues int) ReportState {
	switch {
	case issues <= 0:
		return StateHealthy
	case issues > criticalRackThreshold:
		return StateCritical
	default:
		return StateWarning
	}
}

// AuditReport is the persisted summary of one completed walkthrough.
type AuditReport struct {
	ID             string          `json:"id,omitempty"`
	GeneratedBy    string          `json:"generated_by"`
	UserID         string          `json:"user_id,omitempty"`
	Datacenter     string          `json:"datacenter,omitempty"`
	DataHall       string          `json:"data_hall,omitempty"`
	IssuesReported int             `json:"issues_reported"`
	State          ReportState     `json:"state,omitempty"`
	WalkthroughID  int             `json:"walkthrough_id,omitempty"`
	UserFullName   string          `json:"user_full_name,omitempty"`
	ReportData     json.RawMessage `json:"report_data,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
}

// Severity of an incident.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
)

// IncidentStatus tracks incident handling.
type IncidentStatus string

const (
	IncidentOpen       IncidentStatus = "open"
	IncidentInProgress IncidentStatus = "in-progress"
	IncidentResolved   IncidentStatus = "resolved"
)

var incidentOrder = map[IncidentStatus]int{
	IncidentOpen:       0,
	IncidentInProgress: 1,
	IncidentResolved:   2,
}

// ParseIncidentStatus normalises s into a known status.
func ParseIncidentStatus(s string) (IncidentStatus, bool) {
	st := IncidentStatus(strings.ToLower(strings.TrimSpace(s)))
	_, ok := incidentOrder[st]
	return st, ok
}

// CanTransition reports whether an incident may move from one status to the
// next. Statuses only move forward; resolved is terminal.
func CanTransition(from, to IncidentStatus) bool {
	f, ok := incidentOrder[from]
	if !ok {
		return false
	}
	t, ok := incidentOrder[to]
	if !ok {
		return false
	}
	return t > f
}

// Incident is one device-level problem derived from a walkthrough.
type Incident struct {
	ID             string         `json:"id,omitempty"`
	Location       string         `json:"location"`
	DataHall       string         `json:"data_hall"`
	RackNumber     string         `json:"rack_number"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	PartType       PartType       `json:"part_type"`
	PartIdentifier string         `json:"part_identifier"`
	Status         IncidentStatus `json:"status"`
	UHeight        string         `json:"u_height,omitempty"`
	WalkthroughID  int            `json:"walkthrough_id"`
	UserID         string         `json:"user_id"`
	CreatedAt      *time.Time     `json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}

// UserProfile is the read-only profile row of a technician.
type UserProfile struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// User identifies the technician submitting a walkthrough.
type User struct {
	ID          string `json:"id" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	DisplayName string `json:"display_name,omitempty"`
}

// FullName returns the display name, else a name derived from the email local
// part, else "Unknown".
func (u User) FullName() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(u.Email), "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, p := range parts {
		r := []rune(strings.ToLower(p))
		parts[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, " ")
}

// Identity is what the report records as its author.
func (u User) Identity() string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
