package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
)

type record struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	Count     int    `json:"count,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func TestInsertAssignsIDAndTimestamp(t *testing.T) {
	s := New()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	var out record
	require.NoError(t, s.Insert(context.Background(), "things", record{Name: "a"}, &out))
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, fixed.Format(TimeLayout), out.CreatedAt)
	assert.Equal(t, 1, s.Count("things"))

	var got record
	require.NoError(t, s.Get(context.Background(), "things", out.ID, &got))
	assert.Equal(t, out, got)
}

func TestInsertDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "things", record{ID: "x", Name: "a"}, nil))
	assert.Error(t, s.Insert(ctx, "things", record{ID: "x", Name: "b"}, nil))
}

func TestGetMissing(t *testing.T) {
	s := New()
	var out record
	err := s.Get(context.Background(), "things", "nope", &out)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListOrderFilterLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range []string{"open", "resolved", "open", "open"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.SetClock(func() time.Time { return at })
		require.NoError(t, s.Insert(ctx, "things", record{Name: string(rune('a' + i)), Status: status}, nil))
	}

	var rows []record
	q := storage.Query{OrderBy: "created_at", Descending: true, Limit: 2}.Eq("status", "open")
	require.NoError(t, s.List(ctx, "things", q, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "d", rows[0].Name)
	assert.Equal(t, "c", rows[1].Name)
}

func TestListTieBreakIsStable(t *testing.T) {
	s := New()
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, "things", record{Name: n}, nil))
	}

	q := storage.Query{OrderBy: "created_at", Descending: true}
	var first, second []record
	require.NoError(t, s.List(ctx, "things", q, &first))
	require.NoError(t, s.List(ctx, "things", q, &second))
	assert.Equal(t, first, second)
	assert.Equal(t, "c", first[0].Name)
}

func TestListNumericOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, n := range []int{10, 9, 100} {
		require.NoError(t, s.Insert(ctx, "things", record{Name: "n", Count: n}, nil))
	}
	var rows []record
	require.NoError(t, s.List(ctx, "things", storage.Query{OrderBy: "count"}, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, []int{9, 10, 100}, []int{rows[0].Count, rows[1].Count, rows[2].Count})
}

func TestListEmptyCollection(t *testing.T) {
	s := New()
	var rows []record
	require.NoError(t, s.List(context.Background(), "things", storage.Query{}, &rows))
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestUpdateMergesPatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	var created record
	require.NoError(t, s.Insert(ctx, "things", record{Name: "a", Status: "open"}, &created))

	var updated record
	require.NoError(t, s.Update(ctx, "things", created.ID, map[string]any{"status": "resolved", "id": "hijack"}, &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "a", updated.Name)
	assert.Equal(t, "resolved", updated.Status)
	assert.NotEmpty(t, updated.UpdatedAt)

	err := s.Update(ctx, "things", "missing", map[string]any{"status": "x"}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestErrorOnNextCallAndHook(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.ErrorOnNextCall = boom
	assert.ErrorIs(t, s.Insert(ctx, "things", record{Name: "a"}, nil), boom)
	assert.NoError(t, s.Insert(ctx, "things", record{Name: "a"}, nil))

	s.InsertHook = func(collection string, values map[string]any) error {
		if values["name"] == "reject" {
			return boom
		}
		return nil
	}
	assert.ErrorIs(t, s.Insert(ctx, "things", record{Name: "reject"}, nil), boom)
	assert.Equal(t, 1, s.Count("things"))
}
