// Package submission turns a completed walkthrough draft into incidents and
// an audit report.
package submission

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/config"
	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/errors"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/incident"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/logging"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/metrics"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/notify"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/walkthrough"
)

const defaultWorkers = 8

// Options configures a Service. Only the gateway is required.
type Options struct {
	Catalog  *config.Catalog
	Sequence walkthrough.SequenceStore
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	// Workers bounds concurrent incident writes.
	Workers int
	Now     func() time.Time
}

// Service runs the submission pipeline.
type Service struct {
	store    storage.Gateway
	catalog  *config.Catalog
	sequence walkthrough.SequenceStore
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *logging.Logger
	validate *validator.Validate
	workers  int
	now      func() time.Time
}

// New creates a pipeline writing through store.
func New(store storage.Gateway, opts Options) *Service {
	s := &Service{
		store:    store,
		catalog:  opts.Catalog,
		sequence: opts.Sequence,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		validate: validator.New(),
		workers:  opts.Workers,
		now:      opts.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// WithSequence returns a copy of the service that records walkthrough numbers
// in seq, used when several devices share one server.
func (s *Service) WithSequence(seq walkthrough.SequenceStore) *Service {
	cp := *s
	cp.sequence = seq
	return &cp
}

// Result is a successful submission.
type Result struct {
	Report    model.AuditReport
	Incidents []model.Incident
}

// Submit validates the draft, writes its incidents, then the audit report,
// and finally records the walkthrough number as used.
//
// Incident writes run concurrently and are all awaited. If any fails the
// report is not written and a PartialFailure is returned; incidents that did
// save are left in place.
func (s *Service) Submit(ctx context.Context, draft model.Draft, user model.User) (*Result, error) {
	start := time.Now()
	res, err := s.submit(ctx, draft, user)
	s.record(err, time.Since(start))
	return res, err
}

func (s *Service) submit(ctx context.Context, draft model.Draft, user model.User) (*Result, error) {
	if err := s.validate.Struct(user); err != nil {
		return nil, errors.Validation("invalid submitting user: %v", err)
	}
	if err := s.Validate(draft); err != nil {
		return nil, err
	}
	log := s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"walkthrough_id": draft.WalkthroughNumber,
		"location":       draft.Location,
		"data_hall":      draft.DataHall,
		"user_id":        user.ID,
	})

	saved, err := s.persistIncidents(ctx, incident.DeriveAll(draft, user.ID))
	if err != nil {
		log.WithError(err).Error("incident writes failed; saved incidents have no audit report")
		return nil, err
	}

	reportData, err := json.Marshal(model.NewReportData(draft, s.now()))
	if err != nil {
		return nil, fmt.Errorf("encode report data: %w", err)
	}
	issues := draft.IssueCount()
	report := model.AuditReport{
		GeneratedBy:    user.Identity(),
		UserID:         user.ID,
		Datacenter:     draft.Location,
		DataHall:       draft.DataHall,
		IssuesReported: issues,
		State:          model.StateFor(issues),
		WalkthroughID:  draft.WalkthroughNumber,
		UserFullName:   s.fullName(ctx, user),
		ReportData:     reportData,
	}
	var stored model.AuditReport
	if err := s.store.Insert(ctx, model.CollectionAuditReports, report, &stored); err != nil {
		if len(saved) > 0 {
			log.WithError(err).WithField("incidents", len(saved)).Error("audit report write failed after incidents were saved")
		}
		return nil, errors.Persistence("create audit report", err)
	}

	if s.sequence != nil {
		if err := s.sequence.Save(ctx, draft.WalkthroughNumber); err != nil {
			log.WithError(err).Warn("failed to persist walkthrough number")
		}
	}

	if len(saved) > 0 {
		err := s.notifier.NotifyIncidents(ctx, stored.ID, saved)
		if s.metrics != nil {
			s.metrics.RecordNotification(err == nil)
		}
		if err != nil {
			log.WithError(err).Warn("incident notification failed")
		}
	}

	log.WithFields(logrus.Fields{
		"report_id": stored.ID,
		"state":     stored.State,
		"incidents": len(saved),
	}).Info("walkthrough submitted")
	return &Result{Report: stored, Incidents: saved}, nil
}

func (s *Service) persistIncidents(ctx context.Context, incidents []model.Incident) ([]model.Incident, error) {
	if len(incidents) == 0 {
		return nil, nil
	}

	saved := make([]model.Incident, len(incidents))
	errs := make([]error, len(incidents))
	var failed int32

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range incidents {
		i := i
		g.Go(func() error {
			if err := s.store.Insert(ctx, model.CollectionIncidents, incidents[i], &saved[i]); err != nil {
				errs[i] = fmt.Errorf("incident for rack %s: %w", incidents[i].RackNumber, err)
				atomic.AddInt32(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := int(failed); n > 0 {
		if s.metrics != nil {
			s.metrics.RecordIncidentFailures(n)
		}
		return nil, errors.PartialFailure(n, len(incidents), multierr.Combine(errs...))
	}
	if s.metrics != nil {
		for _, inc := range saved {
			s.metrics.RecordIncident(string(inc.PartType), string(inc.Severity))
		}
	}
	return saved, nil
}

// fullName resolves the report author name: the caller-supplied display name,
// then the stored profile, then the email-derived name.
func (s *Service) fullName(ctx context.Context, user model.User) string {
	if user.DisplayName != "" {
		return user.FullName()
	}
	var profiles []model.UserProfile
	q := storage.Query{Limit: 1}.Eq("user_id", user.ID)
	if err := s.store.List(ctx, model.CollectionUserProfiles, q, &profiles); err != nil {
		s.logger.WithContext(ctx).WithError(err).Debug("profile lookup failed")
	} else if len(profiles) > 0 && profiles[0].FullName != "" {
		return profiles[0].FullName
	}
	return user.FullName()
}

func (s *Service) record(err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrValidation):
		outcome = metrics.OutcomeValidation
	case stderrors.Is(err, errors.ErrPartialFailure):
		outcome = metrics.OutcomePartialFailure
	default:
		outcome = metrics.OutcomeError
	}
	s.metrics.RecordSubmission(outcome, d)
}
