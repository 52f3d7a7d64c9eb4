// Package supabase adapts the PostgREST client to storage.Gateway.
package supabase

import (
	"context"
	"fmt"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/supabase"
)

// Gateway stores records in Supabase tables named after the collections.
type Gateway struct {
	client *supabase.Client
}

var _ storage.Gateway = (*Gateway)(nil)

// New wraps client.
func New(client *supabase.Client) *Gateway {
	return &Gateway{client: client}
}

// Insert creates a row and decodes the stored row into dest.
func (g *Gateway) Insert(ctx context.Context, collection string, record any, dest any) error {
	if !storage.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	if err := g.client.From(collection).Insert(ctx, record, dest); err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// Get loads one row by id.
func (g *Gateway) Get(ctx context.Context, collection, id string, dest any) error {
	if !storage.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	err := g.client.From(collection).Select("*").Eq("id", id).Single().Execute(ctx, dest)
	if supabase.IsNotFound(err) {
		return fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return nil
}

// List runs q against collection.
func (g *Gateway) List(ctx context.Context, collection string, q storage.Query, dest any) error {
	if err := q.Validate(collection); err != nil {
		return err
	}
	qb := g.client.From(collection).Select("*")
	for _, f := range q.Filters {
		qb = qb.Eq(f.Column, f.Value)
	}
	if q.OrderBy != "" {
		qb = qb.Order(q.OrderBy, !q.Descending)
		// id breaks ties so equal timestamps list in a stable order.
		qb = qb.Order("id", !q.Descending)
	}
	if q.Limit > 0 {
		qb = qb.Limit(q.Limit)
	}
	if err := qb.Execute(ctx, dest); err != nil {
		return fmt.Errorf("list %s: %w", collection, err)
	}
	return nil
}

// Update patches the row with id.
func (g *Gateway) Update(ctx context.Context, collection, id string, patch any, dest any) error {
	if !storage.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	err := g.client.From(collection).Eq("id", id).Update(ctx, patch, dest)
	if supabase.IsNotFound(err) {
		return fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	return nil
}

// Ping checks the REST endpoint.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.client.Ping(ctx)
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (g *Gateway) Close() error { return nil }
