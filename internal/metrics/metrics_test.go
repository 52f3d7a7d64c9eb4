package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSubmission(t *testing.T) {
	m := New()
	m.RecordSubmission(OutcomeSuccess, 20*time.Millisecond)
	m.RecordSubmission(OutcomeSuccess, 30*time.Millisecond)
	m.RecordSubmission(OutcomePartialFailure, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues(OutcomePartialFailure)))
}

func TestRecordIncidentAndFailures(t *testing.T) {
	m := New()
	m.RecordIncident("PSU", "critical")
	m.RecordIncidentFailures(2)
	m.RecordNotification(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.incidents.WithLabelValues("PSU", "critical")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.incidentFails))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordHTTPRequest(http.MethodGet, "/api/inspections", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `walkthrough_http_requests_total{method="GET",path="/api/inspections",status="200"} 1`))
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordIncidentFailures(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.incidentFails))
}
