// Package supabase is a small PostgREST client for the walkthrough tables
// hosted on Supabase.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/httputil"
)

const maxResponseBytes = 8 << 20

// Client talks to the PostgREST endpoint of one Supabase project using the
// service key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config for New. Timeout defaults to 30s.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      RetryConfig
}

// New creates a client. GET requests are retried according to cfg.Retry;
// writes are sent once.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.Retry.MaxRetries > 0 {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &retryTransport{base: base, config: cfg.Retry}
		httpClient = &wrapped
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// From starts a query on table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

// QueryBuilder accumulates filters and modifiers for one request.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	orders  []string
	limit   int
	single  bool
}

func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// Eq filters on column = value.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, fmt.Sprintf("eq.%v", value))
	return q
}

// Order appends a sort key; calls accumulate.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Single expects exactly one row; PostgREST answers 406 otherwise.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

func (q *QueryBuilder) endpoint(withQuery bool) string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	params := url.Values{}
	for k, vs := range q.filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if withQuery {
		if q.columns != "" {
			params.Set("select", q.columns)
		}
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
	}
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Execute runs a SELECT and decodes the result into dest.
func (q *QueryBuilder) Execute(ctx context.Context, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.endpoint(true), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req, dest)
}

// Insert posts one row and decodes the stored representation into dest.
func (q *QueryBuilder) Insert(ctx context.Context, row any, dest any) error {
	return q.write(ctx, http.MethodPost, row, dest)
}

// Update patches the rows matched by the filters and decodes the first
// updated row into dest.
func (q *QueryBuilder) Update(ctx context.Context, patch any, dest any) error {
	if len(q.filters) == 0 {
		return fmt.Errorf("update on %s requires a filter", q.table)
	}
	return q.write(ctx, http.MethodPatch, patch, dest)
}

func (q *QueryBuilder) write(ctx context.Context, method string, data any, dest any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.endpoint(false), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	// Writes return an array; unwrap it when a single object is wanted.
	var rows []json.RawMessage
	if err := q.client.do(req, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return &Error{StatusCode: http.StatusNotFound, Code: CodeNoRows, Message: "no rows returned"}
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(rows[0], dest)
}

// Ping checks that the REST endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, nil)
}

// CodeNoRows is the PostgREST error code for a Single query matching no row.
const CodeNoRows = "PGRST116"

// Error is a PostgREST error response.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNoRows || apiErr.StatusCode == http.StatusNotFound ||
		apiErr.StatusCode == http.StatusNotAcceptable
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request, dest any) error {
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}

	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
