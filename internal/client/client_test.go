package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

const reportID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListInspectionsAndGetReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/inspections":
			writeJSON(w, http.StatusOK, []map[string]any{{"id": reportID, "generated_by": "a@b.c", "issues_reported": 0}})
		case "/api/GenerateReport":
			assert.Equal(t, reportID, r.URL.Query().Get("id"))
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": reportID, "state": "Healthy"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/"})
	list, err := c.ListInspections(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a@b.c", list[0].GeneratedBy)

	report, err := c.GetReport(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, model.StateHealthy, report.State)
}

func TestErrorsCarryEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid report ID format"})
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).GetReport(context.Background(), "bad")
	var apiErr *APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid report ID format", apiErr.Message)
	assert.Contains(t, err.Error(), "400")
}

func TestSubmitWalkthroughSendsTokenAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/walkthroughs", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body struct {
			Draft    model.Draft `json:"draft"`
			DeviceID string      `json:"device_id"`
		}
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "tablet-2", body.DeviceID)
		assert.Equal(t, model.No, body.Draft.HasIssues)

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"data":    map[string]any{"id": reportID, "state": "Healthy", "issues_reported": 0, "incidents": 0},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "tok", UserID: "ignored"})
	res, err := c.SubmitWalkthrough(context.Background(), model.Draft{Location: "L", DataHall: "H", HasIssues: model.No}, "tablet-2")
	require.NoError(t, err)
	assert.Equal(t, reportID, res.ID)
}

func TestPartialFailureDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tech-1", r.Header.Get("X-User-ID"))
		assert.Equal(t, "t@example.com", r.Header.Get("X-User-Email"))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "1 of 2 incidents failed to save; audit report not created",
			"details": map[string]any{"failed": 1, "total": 2},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UserID: "tech-1", UserEmail: "t@example.com", RetryCount: 2})
	_, err := c.SubmitWalkthrough(context.Background(), model.Draft{}, "")
	var apiErr *APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.EqualValues(t, 2, apiErr.Details["total"])
}

func TestRetriesOnlyReads(t *testing.T) {
	var gets, posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if atomic.AddInt32(&gets, 1) == 1 {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{}})
			return
		}
		atomic.AddInt32(&posts, 1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "down"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RetryCount: 2})
	c.http.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)

	incidents, err := c.ListIncidents(context.Background(), "open", 3, 10)
	require.NoError(t, err)
	assert.Empty(t, incidents)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))

	_, err = c.SubmitInspection(context.Background(), map[string]any{"n": 1})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

func TestListIncidentsQueryAndPatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "resolved", r.URL.Query().Get("status"))
			assert.Equal(t, "", r.URL.Query().Get("walkthrough_id"))
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{{"id": "i1", "status": "resolved"}}})
		case http.MethodPatch:
			assert.Equal(t, "/api/incidents/i1", r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": "i1", "status": "in-progress"}})
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	list, err := c.ListIncidents(context.Background(), "resolved", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	inc, err := c.UpdateIncidentStatus(context.Background(), "i1", model.IncidentInProgress)
	require.NoError(t, err)
	assert.Equal(t, model.IncidentInProgress, inc.Status)
}

func TestExportReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reports/"+reportID+"/export", r.URL.Path)
		w.Header().Set("Content-Disposition", `attachment; filename="walkthrough-3-3f2504e0.xlsx"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("PK\x03\x04"))
	}))
	defer srv.Close()

	data, name, err := New(Config{BaseURL: srv.URL}).ExportReport(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, "walkthrough-3-3f2504e0.xlsx", name)
	assert.Equal(t, []byte("PK\x03\x04"), data)
}
