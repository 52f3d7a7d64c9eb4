// Package postgres implements storage.Gateway directly against PostgreSQL.
// Rows travel as jsonb so the gateway stays schema-agnostic.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
)

// Gateway is a storage.Gateway backed by sqlx.
type Gateway struct {
	db *sqlx.DB
}

var _ storage.Gateway = (*Gateway)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Gateway, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Gateway {
	return &Gateway{db: db}
}

// DB exposes the underlying pool for migrations.
func (g *Gateway) DB() *sql.DB {
	return g.db.DB
}

// Insert writes record and decodes the stored row into dest.
func (g *Gateway) Insert(ctx context.Context, collection string, record any, dest any) error {
	if !storage.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	values, err := columns(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if id, ok := values["id"].(string); ok && id == "" {
		delete(values, "id")
	}
	if len(values) == 0 {
		return fmt.Errorf("insert into %s: no columns", collection)
	}

	names := sortedKeys(values)
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[name]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING to_jsonb(%s.*)",
		collection, strings.Join(names, ", "), strings.Join(placeholders, ", "), collection)

	var raw []byte
	if err := g.db.GetContext(ctx, &raw, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return decode(raw, dest)
}

// Get loads the row with id.
func (g *Gateway) Get(ctx context.Context, collection, id string, dest any) error {
	if !storage.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	query := fmt.Sprintf("SELECT to_jsonb(t.*) FROM %s t WHERE t.id = $1", collection)

	var raw []byte
	err := g.db.GetContext(ctx, &raw, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return decode(raw, dest)
}

// List runs q and decodes the rows into dest, which must point to a slice.
func (g *Gateway) List(ctx context.Context, collection string, q storage.Query, dest any) error {
	if err := q.Validate(collection); err != nil {
		return err
	}

	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT to_jsonb(t.*) FROM %s t", collection)
	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, fmt.Sprint(f.Value))
		fmt.Fprintf(&b, "t.%s::text = $%d", f.Column, len(args))
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY t.%s %s, t.id %s", q.OrderBy, dir, dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	var rows [][]byte
	if err := g.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return fmt.Errorf("list %s: %w", collection, err)
	}
	return decode(append(append([]byte("["), bytes.Join(rows, []byte(","))...), ']'), dest)
}

// Update applies patch to the row with id.
func (g *Gateway) Update(ctx context.Context, collection, id string, patch any, dest any) error {
	if !storage.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	values, err := columns(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	delete(values, "id")
	if len(values) == 0 {
		return fmt.Errorf("update %s %s: empty patch", collection, id)
	}

	names := sortedKeys(values)
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		args = append(args, values[name])
		sets[i] = fmt.Sprintf("%s = $%d", name, len(args))
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING to_jsonb(%s.*)",
		collection, strings.Join(sets, ", "), len(args), collection)

	var raw []byte
	err = g.db.GetContext(ctx, &raw, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	return decode(raw, dest)
}

// Ping checks the connection.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close closes the pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// columns flattens v into column values. Nested objects and arrays are passed
// as JSON text so they land in jsonb columns unchanged.
func columns(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("record must be a JSON object")
	}

	out := make(map[string]any, len(fields))
	for name, raw := range fields {
		if !storage.ValidIdentifier(name) {
			return nil, fmt.Errorf("invalid column %q", name)
		}
		out[name], err = columnValue(raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
	}
	return out, nil
}

func columnValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '{', '[':
		return string(trimmed), nil
	case 'n':
		return nil, nil
	case 't', 'f':
		var b bool
		err := json.Unmarshal(trimmed, &b)
		return b, err
	case '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		return s, err
	default:
		return string(trimmed), nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decode(raw []byte, dest any) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
