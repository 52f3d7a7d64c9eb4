// Package client is a Go client for the walkthrough portal API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

// Config configures a Client. Token takes precedence over the identity
// headers.
type Config struct {
	BaseURL    string
	Token      string
	UserID     string
	UserEmail  string
	Timeout    time.Duration
	RetryCount int
}

// Client calls the portal API.
type Client struct {
	http *resty.Client
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
	Details    map[string]any
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.StatusCode, msg, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details map[string]any  `json:"details"`
}

// WalkthroughResult is the answer to a walkthrough submission.
type WalkthroughResult struct {
	ID             string            `json:"id"`
	State          model.ReportState `json:"state"`
	IssuesReported int               `json:"issues_reported"`
	Incidents      int               `json:"incidents"`
}

// New creates a client for cfg.BaseURL.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	switch {
	case cfg.Token != "":
		rc.SetAuthToken(cfg.Token)
	case cfg.UserID != "":
		rc.SetHeader("X-User-ID", cfg.UserID)
		if cfg.UserEmail != "" {
			rc.SetHeader("X-User-Email", cfg.UserEmail)
		}
	}
	return &Client{http: rc}
}

// ListInspections returns the most recent audit reports.
func (c *Client) ListInspections(ctx context.Context) ([]model.AuditReport, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/inspections")
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	var out []model.AuditReport
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode inspections: %w", err)
	}
	return out, nil
}

// SubmitInspection stores payload verbatim as an audit report.
func (c *Client) SubmitInspection(ctx context.Context, payload any) (*model.AuditReport, error) {
	var out model.AuditReport
	if err := c.call(ctx, http.MethodPost, "/api/SubmitInspection", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport fetches one audit report.
func (c *Client) GetReport(ctx context.Context, id string) (*model.AuditReport, error) {
	var out model.AuditReport
	q := map[string]string{"id": id}
	if err := c.call(ctx, http.MethodGet, "/api/GenerateReport", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitWalkthrough runs the submission pipeline on the server.
func (c *Client) SubmitWalkthrough(ctx context.Context, draft model.Draft, deviceID string) (*WalkthroughResult, error) {
	body := map[string]any{"draft": draft, "device_id": deviceID}
	var out WalkthroughResult
	if err := c.call(ctx, http.MethodPost, "/api/walkthroughs", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListIncidents returns recent incidents. Zero arguments are not sent.
func (c *Client) ListIncidents(ctx context.Context, status string, walkthroughID, limit int) ([]model.Incident, error) {
	q := map[string]string{}
	if status != "" {
		q["status"] = status
	}
	if walkthroughID > 0 {
		q["walkthrough_id"] = strconv.Itoa(walkthroughID)
	}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	out := []model.Incident{}
	if err := c.call(ctx, http.MethodGet, "/api/incidents", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateIncidentStatus moves an incident forward.
func (c *Client) UpdateIncidentStatus(ctx context.Context, id string, status model.IncidentStatus) (*model.Incident, error) {
	var out model.Incident
	body := map[string]string{"status": string(status)}
	if err := c.call(ctx, http.MethodPatch, "/api/incidents/"+id, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportReport downloads the xlsx export of a report and its file name.
func (c *Client) ExportReport(ctx context.Context, id string) ([]byte, string, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", id).
		Get("/api/reports/{id}/export")
	if err != nil {
		return nil, "", fmt.Errorf("export report: %w", err)
	}
	if resp.IsError() {
		return nil, "", apiError(resp)
	}
	name := "report-" + id + ".xlsx"
	if _, params, err := mime.ParseMediaType(resp.Header().Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return resp.Body(), name, nil
}

func (c *Client) call(ctx context.Context, method, path string, query map[string]string, body, dest any) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode(), Message: env.Message, Detail: env.Error, Details: env.Details}
	}
	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}

func apiError(resp *resty.Response) error {
	out := &APIError{StatusCode: resp.StatusCode()}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil {
		out.Message = env.Message
		out.Detail = env.Error
		out.Details = env.Details
	}
	return out
}
