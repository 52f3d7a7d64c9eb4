package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/supabase"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := supabase.New(supabase.Config{URL: srv.URL, APIKey: "key"})
	require.NoError(t, err)
	return New(client)
}

func TestGetMapsNoRowsToNotFound(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.missing", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = io.WriteString(w, `{"code":"PGRST116","message":"no rows"}`)
	})

	var row map[string]any
	err := g.Get(context.Background(), "audit_reports", "missing", &row)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListTranslatesQuery(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "created_at.desc,id.desc", q.Get("order"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "eq.open", q.Get("status"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "1", "status": "open"}})
	})

	var rows []map[string]any
	q := storage.Query{OrderBy: "created_at", Descending: true, Limit: 10}.Eq("status", "open")
	require.NoError(t, g.List(context.Background(), "incidents", q, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "open", rows[0]["status"])
}

func TestListRejectsBadIdentifiers(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})
	var rows []map[string]any
	err := g.List(context.Background(), "incidents", storage.Query{OrderBy: "created_at;drop"}, &rows)
	assert.Error(t, err)
}

func TestUpdateEmptyResultIsNotFound(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_, _ = io.WriteString(w, `[]`)
	})
	err := g.Update(context.Background(), "incidents", "nope", map[string]any{"status": "resolved"}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
