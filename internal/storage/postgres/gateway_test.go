package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
)

func newMock(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestInsertBuildsColumnList(t *testing.T) {
	g, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO things (count, gone, meta, name, ok) VALUES ($1, $2, $3, $4, $5) RETURNING to_jsonb(things.*)").
		WithArgs("3", nil, `{"k":1}`, "a", true).
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}).
			AddRow([]byte(`{"id":"abc","name":"a","count":3,"meta":{"k":1},"ok":true,"gone":null}`)))

	record := map[string]any{
		"id":    "",
		"name":  "a",
		"count": 3,
		"meta":  map[string]any{"k": 1},
		"ok":    true,
		"gone":  nil,
	}
	var out map[string]any
	require.NoError(t, g.Insert(context.Background(), "things", record, &out))
	assert.Equal(t, "abc", out["id"])
	assert.Equal(t, map[string]any{"k": float64(1)}, out["meta"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRejectsBadColumn(t *testing.T) {
	g, _ := newMock(t)
	err := g.Insert(context.Background(), "things", map[string]any{"name; drop": 1}, nil)
	assert.Error(t, err)
}

func TestGetNotFound(t *testing.T) {
	g, mock := newMock(t)
	mock.ExpectQuery("SELECT to_jsonb(t.*) FROM audit_reports t WHERE t.id = $1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	var out map[string]any
	err := g.Get(context.Background(), "audit_reports", "missing", &out)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFiltersOrderLimit(t *testing.T) {
	g, mock := newMock(t)
	mock.ExpectQuery("SELECT to_jsonb(t.*) FROM incidents t WHERE t.status::text = $1 AND t.walkthrough_id::text = $2 ORDER BY t.created_at DESC, t.id DESC LIMIT $3").
		WithArgs("open", "7", 50).
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}).
			AddRow([]byte(`{"id":"2","status":"open"}`)).
			AddRow([]byte(`{"id":"1","status":"open"}`)))

	q := storage.Query{OrderBy: "created_at", Descending: true, Limit: 50}.Eq("status", "open").Eq("walkthrough_id", 7)
	var out []map[string]any
	require.NoError(t, g.List(context.Background(), "incidents", q, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEmpty(t *testing.T) {
	g, mock := newMock(t)
	mock.ExpectQuery("SELECT to_jsonb(t.*) FROM audit_reports t").
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}))

	var out []map[string]any
	require.NoError(t, g.List(context.Background(), "audit_reports", storage.Query{}, &out))
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestUpdateSkipsID(t *testing.T) {
	g, mock := newMock(t)
	mock.ExpectQuery("UPDATE incidents SET status = $1 WHERE id = $2 RETURNING to_jsonb(incidents.*)").
		WithArgs("resolved", "abc").
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}).AddRow([]byte(`{"id":"abc","status":"resolved"}`)))

	var out map[string]any
	require.NoError(t, g.Update(context.Background(), "incidents", "abc", map[string]any{"id": "x", "status": "resolved"}, &out))
	assert.Equal(t, "resolved", out["status"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNotFound(t *testing.T) {
	g, mock := newMock(t)
	mock.ExpectQuery("UPDATE incidents SET status = $1 WHERE id = $2 RETURNING to_jsonb(incidents.*)").
		WithArgs("resolved", "missing").
		WillReturnError(sql.ErrNoRows)

	err := g.Update(context.Background(), "incidents", "missing", map[string]any{"status": "resolved"}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
