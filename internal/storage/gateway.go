// Package storage defines the persistence gateway the walkthrough services use
// to reach the hosted datastore.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get and Update when no row matches the id.
var ErrNotFound = errors.New("record not found")

// Filter is an equality filter on one column.
type Filter struct {
	Column string
	Value  any
}

// Query selects rows from a collection.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Eq appends an equality filter.
func (q Query) Eq(column string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Value: value})
	return q
}

// Gateway is a create / read / update / list interface over named record
// collections. Records travel as JSON-shaped values: Insert and Update
// marshal the input and unmarshal the stored row into dest.
type Gateway interface {
	Insert(ctx context.Context, collection string, record any, dest any) error
	Get(ctx context.Context, collection, id string, dest any) error
	List(ctx context.Context, collection string, q Query, dest any) error
	Update(ctx context.Context, collection, id string, patch any, dest any) error
	Ping(ctx context.Context) error
	Close() error
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a collection or
// column name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// Validate checks the collection and every column referenced by q.
func (q Query) Validate(collection string) error {
	if !ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	if q.OrderBy != "" && !ValidIdentifier(q.OrderBy) {
		return fmt.Errorf("invalid order column %q", q.OrderBy)
	}
	for _, f := range q.Filters {
		if !ValidIdentifier(f.Column) {
			return fmt.Errorf("invalid filter column %q", f.Column)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}
