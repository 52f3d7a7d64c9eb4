// Package httpapi exposes the walkthrough portal over HTTP.
package httpapi

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/errors"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/httputil"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/logging"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/metrics"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/middleware"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/reports"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/submission"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/walkthrough"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Deps are the services behind the API. Submissions, Reports and Store are
// required.
type Deps struct {
	Submissions *submission.Service
	Reports     *reports.Service
	Store       storage.Gateway
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSMiddleware
	// Sequences, when set, maps a device id to the store its walkthrough
	// numbers are recorded in.
	Sequences func(deviceID string) walkthrough.SequenceStore
}

// handler bundles HTTP endpoints for the portal services.
type handler struct {
	deps     Deps
	logger   *logging.Logger
	validate *validator.Validate
}

// NewHandler returns the portal API with its middleware chain applied.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Auth == nil {
		deps.Auth = middleware.NewAuthMiddleware(nil, deps.Logger, nil)
	}
	if deps.CORS == nil {
		deps.CORS = middleware.NewCORSMiddleware(nil)
	}
	h := &handler{deps: deps, logger: deps.Logger, validate: validator.New()}

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.MethodNotAllowed(w)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.NotFound(w, "Not found")
	})
	if deps.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(deps.Metrics))
	}

	// Authenticated routes are limited per user, the rest per client IP.
	limit := func(f http.HandlerFunc) http.Handler {
		if deps.RateLimiter == nil {
			return f
		}
		return deps.RateLimiter.Handler(f)
	}
	authed := func(f http.HandlerFunc) http.Handler {
		return deps.Auth.Handler(limit(f))
	}

	r.Handle("/api/inspections", limit(h.listInspections)).Methods(http.MethodGet)
	r.Handle("/api/SubmitInspection", limit(h.submitInspection)).Methods(http.MethodPost)
	r.Handle("/api/GenerateReport", limit(h.generateReport)).Methods(http.MethodGet)

	r.Handle("/api/walkthroughs", authed(h.submitWalkthrough)).Methods(http.MethodPost)
	r.Handle("/api/incidents", limit(h.listIncidents)).Methods(http.MethodGet)
	r.Handle("/api/incidents/{id}", authed(h.updateIncident)).Methods(http.MethodPatch)
	r.Handle("/api/reports/{id}/export", limit(h.exportReport)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	var out http.Handler = r
	out = deps.CORS.Handler(out)
	return middleware.LoggingMiddleware(deps.Logger)(out)
}

func (h *handler) listInspections(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Reports.ListRecent(r.Context(), reports.MaxList)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("list inspections failed")
		httputil.InternalError(w, message(err, "Failed to fetch inspections"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) submitInspection(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadAllStrict(r.Body, maxBodySize)
	if err != nil {
		httputil.Fail(w, http.StatusBadRequest, "Invalid inspection payload", err.Error())
		return
	}
	report, err := h.deps.Submissions.SubmitRaw(r.Context(), body)
	if err != nil {
		status := errors.HTTPStatus(err)
		msg := "Failed to submit inspection"
		if status == http.StatusBadRequest {
			msg = "Invalid inspection payload"
		}
		h.logger.WithContext(r.Context()).WithError(err).Warn("inspection submission failed")
		httputil.Fail(w, status, msg, message(err, err.Error()))
		return
	}
	httputil.OK(w, http.StatusOK, "Inspection submitted successfully", report)
}

func (h *handler) generateReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Reports.Get(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.OK(w, http.StatusOK, "", report)
}

type walkthroughRequest struct {
	Draft    *model.Draft `json:"draft"`
	DeviceID string       `json:"device_id"`
}

type walkthroughResponse struct {
	ID             string            `json:"id"`
	State          model.ReportState `json:"state"`
	IssuesReported int               `json:"issues_reported"`
	Incidents      int               `json:"incidents"`
}

func (h *handler) submitWalkthrough(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httputil.Fail(w, http.StatusUnauthorized, "Authentication required", "")
		return
	}
	var req walkthroughRequest
	if !httputil.DecodeJSON(w, r, &req, maxBodySize) {
		return
	}
	if req.Draft == nil {
		httputil.BadRequest(w, "draft is required")
		return
	}

	svc := h.deps.Submissions
	if req.DeviceID != "" && h.deps.Sequences != nil {
		svc = svc.WithSequence(h.deps.Sequences(req.DeviceID))
	}
	res, err := svc.Submit(r.Context(), *req.Draft, user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.OK(w, http.StatusCreated, "Walkthrough submitted", walkthroughResponse{
		ID:             res.Report.ID,
		State:          res.Report.State,
		IssuesReported: res.Report.IssuesReported,
		Incidents:      len(res.Incidents),
	})
}

func (h *handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f reports.IncidentFilter
	if s := q.Get("status"); s != "" {
		status, ok := model.ParseIncidentStatus(s)
		if !ok {
			httputil.BadRequest(w, fmt.Sprintf("unknown incident status %q", s))
			return
		}
		f.Status = status
	}
	var err error
	if f.WalkthroughID, err = intParam(q.Get("walkthrough_id")); err != nil {
		httputil.BadRequest(w, "walkthrough_id must be a non-negative integer")
		return
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		httputil.BadRequest(w, "limit must be a non-negative integer")
		return
	}

	incidents, err := h.deps.Reports.ListIncidents(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.OK(w, http.StatusOK, "", incidents)
}

type incidentPatch struct {
	Status string `json:"status" validate:"required,oneof=open in-progress resolved"`
}

func (h *handler) updateIncident(w http.ResponseWriter, r *http.Request) {
	var patch incidentPatch
	if !httputil.DecodeJSON(w, r, &patch, maxBodySize) {
		return
	}
	if err := h.validate.Struct(patch); err != nil {
		httputil.Fail(w, http.StatusBadRequest, "status must be one of open, in-progress, resolved", err.Error())
		return
	}
	updated, err := h.deps.Reports.UpdateIncidentStatus(r.Context(), mux.Vars(r)["id"], model.IncidentStatus(patch.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.OK(w, http.StatusOK, "Incident updated", updated)
}

func (h *handler) exportReport(w http.ResponseWriter, r *http.Request) {
	data, name, err := h.deps.Reports.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.Ping(r.Context()); err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Warn("health check failed")
		httputil.Fail(w, http.StatusServiceUnavailable, "storage unavailable", err.Error())
		return
	}
	httputil.OK(w, http.StatusOK, "ok", nil)
}

// writeError maps a service error to its status and envelope.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	entry := h.logger.WithContext(r.Context()).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	env := httputil.Envelope{Success: false, Message: message(err, "Internal server error")}
	if se, ok := errors.As(err); ok && stderrors.Is(err, errors.ErrPartialFailure) {
		env.Details = se.Details
	}
	httputil.WriteJSON(w, status, env)
}

func message(err error, fallback string) string {
	if se, ok := errors.As(err); ok && se.Message != "" {
		return se.Message
	}
	return fallback
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
