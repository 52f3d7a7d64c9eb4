// Package reports answers queries over audit reports and their incidents.
package reports

import (
	"context"
	stderrors "errors"
	"regexp"
	"time"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/errors"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/logging"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
)

// MaxList caps every listing.
const MaxList = 50

// InvalidIDMessage is returned for ids that are not UUID v4.
const InvalidIDMessage = "Invalid report ID format"

var uuidV4 = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// ValidID reports whether id is a UUID v4.
func ValidID(id string) bool {
	return uuidV4.MatchString(id)
}

// Service reads reports and incidents through the gateway.
type Service struct {
	store  storage.Gateway
	logger *logging.Logger
	now    func() time.Time
}

// New creates a query service.
func New(store storage.Gateway, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Get returns the report with id.
func (s *Service) Get(ctx context.Context, id string) (*model.AuditReport, error) {
	if !ValidID(id) {
		return nil, errors.Validation(InvalidIDMessage)
	}
	var report model.AuditReport
	err := s.store.Get(ctx, model.CollectionAuditReports, id, &report)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotFound("Report", id)
	}
	if err != nil {
		return nil, errors.Persistence("get audit report", err)
	}
	return &report, nil
}

// ListRecent returns up to limit reports, newest first. Non-positive limits
// and limits above MaxList are clamped to MaxList.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]model.AuditReport, error) {
	q := storage.Query{OrderBy: "created_at", Descending: true, Limit: clamp(limit)}
	reports := []model.AuditReport{}
	if err := s.store.List(ctx, model.CollectionAuditReports, q, &reports); err != nil {
		return nil, errors.Persistence("list audit reports", err)
	}
	return reports, nil
}

// IncidentFilter narrows ListIncidents. Zero values match everything.
type IncidentFilter struct {
	Status        model.IncidentStatus
	WalkthroughID int
	Limit         int
}

// ListIncidents returns incidents, newest first.
func (s *Service) ListIncidents(ctx context.Context, f IncidentFilter) ([]model.Incident, error) {
	q := storage.Query{OrderBy: "created_at", Descending: true, Limit: clamp(f.Limit)}
	if f.Status != "" {
		q = q.Eq("status", string(f.Status))
	}
	if f.WalkthroughID > 0 {
		q = q.Eq("walkthrough_id", f.WalkthroughID)
	}
	incidents := []model.Incident{}
	if err := s.store.List(ctx, model.CollectionIncidents, q, &incidents); err != nil {
		return nil, errors.Persistence("list incidents", err)
	}
	return incidents, nil
}

// IncidentsForReport returns the incidents raised by the report's walkthrough.
// Walkthrough numbers are per device, so the submitter is part of the match
// whenever the report records one.
func (s *Service) IncidentsForReport(ctx context.Context, report *model.AuditReport) ([]model.Incident, error) {
	if report.WalkthroughID == 0 {
		return []model.Incident{}, nil
	}
	q := storage.Query{OrderBy: "created_at"}.
		Eq("walkthrough_id", report.WalkthroughID).
		Eq("location", report.Datacenter).
		Eq("data_hall", report.DataHall)
	if report.UserID != "" {
		q = q.Eq("user_id", report.UserID)
	}
	incidents := []model.Incident{}
	if err := s.store.List(ctx, model.CollectionIncidents, q, &incidents); err != nil {
		return nil, errors.Persistence("list report incidents", err)
	}
	return incidents, nil
}

// UpdateIncidentStatus moves an incident forward to status.
func (s *Service) UpdateIncidentStatus(ctx context.Context, id string, status model.IncidentStatus) (*model.Incident, error) {
	if !ValidID(id) {
		return nil, errors.Validation("Invalid incident ID format")
	}
	var current model.Incident
	err := s.store.Get(ctx, model.CollectionIncidents, id, &current)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotFound("Incident", id)
	}
	if err != nil {
		return nil, errors.Persistence("get incident", err)
	}
	if !model.CanTransition(current.Status, status) {
		return nil, errors.Validation("cannot move incident from %s to %s", current.Status, status)
	}

	patch := map[string]any{
		"status":     status,
		"updated_at": s.now().UTC(),
	}
	var updated model.Incident
	err = s.store.Update(ctx, model.CollectionIncidents, id, patch, &updated)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotFound("Incident", id)
	}
	if err != nil {
		return nil, errors.Persistence("update incident", err)
	}
	s.logger.WithContext(ctx).WithField("incident_id", id).WithField("status", status).Info("incident status changed")
	return &updated, nil
}

func clamp(limit int) int {
	if limit <= 0 || limit > MaxList {
		return MaxList
	}
	return limit
}
