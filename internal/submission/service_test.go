package submission

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/config"
	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/errors"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/metrics"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage/memory"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/walkthrough"
)

var submittedAt = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	calls     int32
	reportID  string
	incidents []model.Incident
	err       error
}

func (n *recordingNotifier) NotifyIncidents(_ context.Context, reportID string, incidents []model.Incident) error {
	atomic.AddInt32(&n.calls, 1)
	n.reportID = reportID
	n.incidents = incidents
	return n.err
}

type fixture struct {
	store    *memory.Store
	seq      *walkthrough.MemorySequence
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		seq:      walkthrough.NewMemorySequence(0),
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
	}
	f.svc = New(f.store, Options{
		Catalog:  config.DefaultCatalog(),
		Sequence: f.seq,
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Now:      func() time.Time { return submittedAt },
	})
	return f
}

var tech = model.User{ID: "user-1", Email: "jane.doe@example.com"}

func psuRack(location string) model.RackEntry {
	return model.RackEntry{
		ID:           "r-" + location,
		RackLocation: location,
		Devices:      model.DeviceFlags{PowerSupplyUnit: true},
		PSU:          &model.PSUDetail{Status: model.StatusPoweredOff, PSUID: "PSU1", UHeight: "U12"},
	}
}

func draftWith(racks ...model.RackEntry) model.Draft {
	return model.Draft{
		Location:          "Canada - Quebec",
		DataHall:          "Island 1",
		HasIssues:         model.Yes,
		Racks:             racks,
		WalkthroughNumber: 7,
	}
}

func TestSubmitWithoutIssues(t *testing.T) {
	f := newFixture(t)
	d := model.Draft{Location: "Canada - Quebec", DataHall: "Island 1", HasIssues: model.No, WalkthroughNumber: 3}

	res, err := f.svc.Submit(context.Background(), d, tech)
	require.NoError(t, err)

	assert.Equal(t, 0, f.store.Count(model.CollectionIncidents))
	assert.Equal(t, 1, f.store.Count(model.CollectionAuditReports))
	assert.NotEmpty(t, res.Report.ID)
	assert.Equal(t, model.StateHealthy, res.Report.State)
	assert.Equal(t, 0, res.Report.IssuesReported)
	assert.Equal(t, "jane.doe@example.com", res.Report.GeneratedBy)
	assert.Equal(t, "Jane Doe", res.Report.UserFullName)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.notifier.calls))

	last, _ := f.seq.Last(context.Background())
	assert.Equal(t, 3, last)
}

func TestSubmitPoweredOffPSU(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), draftWith(psuRack("X2401")), tech)
	require.NoError(t, err)

	require.Len(t, res.Incidents, 1)
	inc := res.Incidents[0]
	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, "2401u12", inc.RackNumber)
	assert.Equal(t, model.SeverityCritical, inc.Severity)
	assert.Equal(t, model.IncidentOpen, inc.Status)
	assert.Contains(t, inc.Description, "PSU Issue - Status: Powered-Off, PSU ID: PSU1, U-Height: U12")
	assert.Equal(t, 7, inc.WalkthroughID)
	assert.Equal(t, "user-1", inc.UserID)

	assert.Equal(t, model.StateWarning, res.Report.State)
	assert.Equal(t, 1, res.Report.IssuesReported)
	assert.Equal(t, inc.UserID, res.Report.UserID)
	assert.Equal(t, res.Report.ID, f.notifier.reportID)
	assert.Len(t, f.notifier.incidents, 1)
}

func TestSubmitStateThresholds(t *testing.T) {
	f := newFixture(t)
	racks := []model.RackEntry{psuRack("X2401"), psuRack("X2402"), psuRack("X2403")}

	res, err := f.svc.Submit(context.Background(), draftWith(racks...), tech)
	require.NoError(t, err)
	assert.Equal(t, model.StateCritical, res.Report.State)
	assert.Equal(t, 3, res.Report.IssuesReported)
	assert.Equal(t, 3, f.store.Count(model.CollectionIncidents))
}

func TestSubmitRackWithoutDetailCountsButDerivesNothing(t *testing.T) {
	f := newFixture(t)
	bare := model.RackEntry{ID: "r1", RackLocation: "X2405"}

	res, err := f.svc.Submit(context.Background(), draftWith(bare), tech)
	require.NoError(t, err)
	assert.Empty(t, res.Incidents)
	assert.Equal(t, 1, res.Report.IssuesReported)
	assert.Equal(t, model.StateWarning, res.Report.State)
}

func TestSubmitOneOfTwoIncidentWritesFails(t *testing.T) {
	f := newFixture(t)
	var attempts int32
	f.store.InsertHook = func(collection string, values map[string]any) error {
		if collection != model.CollectionIncidents {
			return nil
		}
		atomic.AddInt32(&attempts, 1)
		if values["rack_number"] == "2402u12" {
			return stderrors.New("insert rejected")
		}
		return nil
	}

	_, err := f.svc.Submit(context.Background(), draftWith(psuRack("X2401"), psuRack("X2402")), tech)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPartialFailure)

	se, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, 1, se.Details["failed"])
	assert.Equal(t, 2, se.Details["total"])
	assert.True(t, strings.Contains(se.Error(), "insert rejected"))

	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts), "both writes attempted")
	assert.Equal(t, 0, f.store.Count(model.CollectionAuditReports))
	assert.Equal(t, 1, f.store.Count(model.CollectionIncidents))

	last, _ := f.seq.Last(context.Background())
	assert.Zero(t, last, "sequence not advanced")
}

func TestSubmitReportWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.store.InsertHook = func(collection string, _ map[string]any) error {
		if collection == model.CollectionAuditReports {
			return stderrors.New("disk full")
		}
		return nil
	}

	_, err := f.svc.Submit(context.Background(), draftWith(psuRack("X2401")), tech)
	assert.ErrorIs(t, err, errors.ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		draft model.Draft
		user  model.User
	}{
		{"unset hasIssues", model.Draft{Location: "Canada - Quebec", DataHall: "Island 1"}, tech},
		{"missing hall", model.Draft{Location: "Canada - Quebec", HasIssues: model.No}, tech},
		{"empty rack location", draftWith(model.RackEntry{ID: "r"}), tech},
		{"rack outside hall", draftWith(psuRack("X9999")), tech},
		{"unknown status", draftWith(model.RackEntry{
			ID:           "r",
			RackLocation: "X2401",
			Devices:      model.DeviceFlags{RearDoorHeatExchanger: true},
			RDHX:         &model.RDHXDetail{Status: "Melted"},
		}), tech},
		{"missing user id", model.Draft{Location: "L", DataHall: "H", HasIssues: model.No}, model.User{Email: "a@b.c"}},
		{"bad email", model.Draft{Location: "L", DataHall: "H", HasIssues: model.No}, model.User{ID: "u", Email: "not-an-email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), tt.draft, tt.user)
			assert.ErrorIs(t, err, errors.ErrValidation)
			assert.Equal(t, 0, f.store.Count(model.CollectionAuditReports))
			assert.Equal(t, 0, f.store.Count(model.CollectionIncidents))
		})
	}
}

func TestSubmitUncataloguedHallAcceptsAnyRack(t *testing.T) {
	f := newFixture(t)
	d := draftWith(psuRack("Z1"))
	d.Location, d.DataHall = "Lab", "Bench"

	_, err := f.svc.Submit(context.Background(), d, tech)
	assert.NoError(t, err)
}

func TestSubmitUsesProfileName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), model.CollectionUserProfiles,
		model.UserProfile{UserID: "user-1", FullName: "Jane Q. Doe"}, nil))

	res, err := f.svc.Submit(context.Background(), model.Draft{Location: "L", DataHall: "H", HasIssues: model.No}, tech)
	require.NoError(t, err)
	assert.Equal(t, "Jane Q. Doe", res.Report.UserFullName)

	res, err = f.svc.Submit(context.Background(), model.Draft{Location: "L", DataHall: "H", HasIssues: model.No},
		model.User{ID: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", res.Report.UserFullName)
	assert.Equal(t, "user-2", res.Report.GeneratedBy)
}

func TestReportDataRoundTrip(t *testing.T) {
	f := newFixture(t)
	d := draftWith(psuRack("X2401"))

	res, err := f.svc.Submit(context.Background(), d, tech)
	require.NoError(t, err)

	var stored model.AuditReport
	require.NoError(t, f.store.Get(context.Background(), model.CollectionAuditReports, res.Report.ID, &stored))

	var data model.ReportData
	require.NoError(t, json.Unmarshal(stored.ReportData, &data))
	assert.Equal(t, model.NewReportData(d, submittedAt), data)
}

func TestSubmitNotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = stderrors.New("broker down")

	res, err := f.svc.Submit(context.Background(), draftWith(psuRack("X2401")), tech)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Report.ID)
}

func TestSubmitRaw(t *testing.T) {
	f := newFixture(t)
	payload := `{"userEmail":"tech@example.com","location":"Canada - Quebec","dataHall":"Island 1","hasIssues":true,"racks":[{"id":"a"},{"id":"b"},{"id":"c"}],"walkthroughNumber":12,"extra":{"k":1}}`

	report, err := f.svc.SubmitRaw(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "tech@example.com", report.GeneratedBy)
	assert.Equal(t, "Canada - Quebec", report.Datacenter)
	assert.Equal(t, 3, report.IssuesReported)
	assert.Equal(t, model.StateCritical, report.State)
	assert.Equal(t, 12, report.WalkthroughID)

	var data map[string]any
	require.NoError(t, json.Unmarshal(report.ReportData, &data))
	assert.NotContains(t, data, "userEmail")
	assert.Equal(t, map[string]any{"k": float64(1)}, data["extra"])
}

func TestSubmitRawDefaultsAndRejects(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.SubmitRaw(context.Background(), []byte(`{"note":"quick check"}`))
	require.NoError(t, err)
	assert.Equal(t, UnknownUser, report.GeneratedBy)
	assert.Equal(t, model.StateHealthy, report.State)

	for _, bad := range []string{`[1,2]`, `"text"`, `{broken`, ``} {
		_, err := f.svc.SubmitRaw(context.Background(), []byte(bad))
		assert.ErrorIs(t, err, errors.ErrValidation, bad)
	}
}

func TestSubmitRawStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.ErrorOnNextCall = stderrors.New("offline")
	_, err := f.svc.SubmitRaw(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, errors.ErrPersistence)
}

var _ storage.Gateway = (*memory.Store)(nil)

func TestWithSequenceRecordsPerDevice(t *testing.T) {
	f := newFixture(t)
	other := walkthrough.NewMemorySequence(0)

	d := model.Draft{Location: "Canada - Quebec", DataHall: "Island 1", HasIssues: model.No, WalkthroughNumber: 12}
	_, err := f.svc.WithSequence(other).Submit(context.Background(), d, tech)
	require.NoError(t, err)

	last, _ := other.Last(context.Background())
	assert.Equal(t, 12, last)
	last, _ = f.seq.Last(context.Background())
	assert.Equal(t, 0, last)
}
