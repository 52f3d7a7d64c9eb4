// Package memory is an in-memory storage.Gateway for development and tests.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
)

// TimeLayout is the fixed-width timestamp layout used for created_at so rows
// sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type row struct {
	seq    int64
	values map[string]any
}

// Store keeps each collection as a map of JSON-decoded rows keyed by id.
type Store struct {
	mu          sync.RWMutex
	seq         int64
	collections map[string]map[string]*row
	now         func() time.Time

	// ErrorOnNextCall is returned (and cleared) by the next gateway call.
	ErrorOnNextCall error
	// InsertHook, when set, may reject an insert before it is stored.
	InsertHook func(collection string, values map[string]any) error
}

var _ storage.Gateway = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]*row),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) checkError() error {
	if s.ErrorOnNextCall != nil {
		err := s.ErrorOnNextCall
		s.ErrorOnNextCall = nil
		return err
	}
	return nil
}

// Insert stores record, assigning id and created_at when absent.
func (s *Store) Insert(_ context.Context, collection string, record any, dest any) error {
	if !storage.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	values, err := toMap(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkError(); err != nil {
		return err
	}
	if s.InsertHook != nil {
		if err := s.InsertHook(collection, values); err != nil {
			return err
		}
	}

	id, _ := values["id"].(string)
	if id == "" {
		id = uuid.NewString()
		values["id"] = id
	}
	if _, ok := values["created_at"]; !ok {
		values["created_at"] = s.now().UTC().Format(TimeLayout)
	}

	rows := s.collections[collection]
	if rows == nil {
		rows = make(map[string]*row)
		s.collections[collection] = rows
	}
	if _, exists := rows[id]; exists {
		return fmt.Errorf("%s %s already exists", collection, id)
	}
	s.seq++
	rows[id] = &row{seq: s.seq, values: values}

	return decodeInto(values, dest)
}

// Get loads the row with id into dest.
func (s *Store) Get(_ context.Context, collection, id string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkError(); err != nil {
		return err
	}
	r, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	return decodeInto(r.values, dest)
}

// List returns rows matching q into dest, which must point to a slice.
func (s *Store) List(_ context.Context, collection string, q storage.Query, dest any) error {
	if err := q.Validate(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkError(); err != nil {
		return err
	}
	matched := make([]*row, 0, len(s.collections[collection]))
	for _, r := range s.collections[collection] {
		if matches(r.values, q.Filters) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.OrderBy != "" {
			if c := compare(a.values[q.OrderBy], b.values[q.OrderBy]); c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Descending {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]map[string]any, len(matched))
	for i, r := range matched {
		out[i] = r.values
	}
	return decodeInto(out, dest)
}

// Update merges patch into the row with id.
func (s *Store) Update(_ context.Context, collection, id string, patch any, dest any) error {
	values, err := toMap(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkError(); err != nil {
		return err
	}
	r, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	for k, v := range values {
		if k == "id" {
			continue
		}
		r.values[k] = v
	}
	r.values["updated_at"] = s.now().UTC().Format(TimeLayout)
	return decodeInto(r.values, dest)
}

// Count returns the number of rows in collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func matches(values map[string]any, filters []storage.Filter) bool {
	for _, f := range filters {
		v, ok := values[f.Column]
		if !ok || fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	an, aok := a.(json.Number)
	bn, bok := b.(json.Number)
	if aok && bok {
		af, _ := an.Float64()
		bf, _ := bn.Float64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("record must be a JSON object")
	}
	return out, nil
}

func decodeInto(v any, dest any) error {
	if dest == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
