package data_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgerrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/user-portal/internal/data"
	"github.com/vasiliy-maslov/user-portal/internal/store"
	"github.com/vasiliy-maslov/user-portal/internal/store/memstore"
)

const people = "people"

type person struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Team      string `json:"team"`
	CreatedAt string `json:"created_at"`
}

type personInsert struct {
	Name string `json:"name"`
	Team string `json:"team"`
}

type personPatch struct {
	Team *string `json:"team,omitempty"`
}

// recorder remembers every query it forwards.
type recorder struct {
	store.Client

	mu      sync.Mutex
	queries []*store.Query
}

func (r *recorder) Execute(ctx context.Context, q *store.Query) (*store.Response, error) {
	r.mu.Lock()
	r.queries = append(r.queries, q)
	r.mu.Unlock()
	return r.Client.Execute(ctx, q)
}

func (r *recorder) last() *store.Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries[len(r.queries)-1]
}

func seeded(t *testing.T, n int) (*memstore.Store, *recorder) {
	t.Helper()
	s := memstore.New(people)
	rec := &recorder{Client: s}
	if n == 0 {
		return s, rec
	}

	rows := make([]personInsert, 0, n)
	for i := 0; i < n; i++ {
		team := "red"
		if i%3 == 0 {
			team = "blue"
		}
		rows = append(rows, personInsert{Name: fmt.Sprintf("p%02d", i), Team: team})
	}
	_, err := data.AddRows[person](context.Background(), s, people, rows)
	require.NoError(t, err)
	return s, rec
}

func TestFetchAllRows(t *testing.T) {
	t.Run("empty table yields empty slice", func(t *testing.T) {
		_, rec := seeded(t, 0)

		rows, err := data.FetchAllRows[person](context.Background(), rec, people)
		require.NoError(t, err)
		require.NotNil(t, rows)
		require.Empty(t, rows)
	})

	t.Run("returns every row", func(t *testing.T) {
		_, rec := seeded(t, 7)

		rows, err := data.FetchAllRows[person](context.Background(), rec, people)
		require.NoError(t, err)
		require.Len(t, rows, 7)
		assert.Equal(t, "p00", rows[0].Name)

		q := rec.last()
		assert.Equal(t, store.ActionSelect, q.Action)
		assert.Empty(t, q.Filters)
		assert.False(t, q.HasRange)
	})

	t.Run("blank table name", func(t *testing.T) {
		_, rec := seeded(t, 0)

		_, err := data.FetchAllRows[person](context.Background(), rec, " ")
		require.ErrorIs(t, err, data.ErrInvalidArgument)
		assert.Empty(t, rec.queries)
	})
}

func TestFetchRowByID(t *testing.T) {
	s, rec := seeded(t, 3)
	ctx := context.Background()

	all, err := data.FetchAllRows[person](ctx, s, people)
	require.NoError(t, err)

	got, err := data.FetchRowByID[person](ctx, rec, people, all[1].ID)
	require.NoError(t, err)
	if diff := cmp.Diff(all[1], *got); diff != "" {
		t.Errorf("FetchRowByID() mismatch (-want +got):\n%s", diff)
	}

	q := rec.last()
	require.Equal(t, []store.Filter{{Column: data.IDColumn, Value: all[1].ID}}, q.Filters)

	_, err = data.FetchRowByID[person](ctx, rec, people, "missing")
	require.ErrorIs(t, err, data.ErrNotFound)
	require.NotErrorIs(t, err, data.ErrRemoteQuery)

	_, err = data.FetchRowByID[person](ctx, rec, people, nil)
	require.ErrorIs(t, err, data.ErrInvalidArgument)
}

func TestFetchRowByID_MultipleRows(t *testing.T) {
	s := memstore.New(people)
	ctx := context.Background()

	dup := []person{{ID: "same", Name: "a"}, {ID: "same", Name: "b"}}
	_, err := data.AddRows[person](ctx, s, people, dup)
	require.NoError(t, err)

	_, err = data.FetchRowByID[person](ctx, s, people, "same")
	require.ErrorIs(t, err, data.ErrMultipleRows)
	require.ErrorIs(t, err, data.ErrRemoteQuery)
}

func TestFetchRowsWithFilters(t *testing.T) {
	_, rec := seeded(t, 9)
	ctx := context.Background()

	blue, err := data.FetchRowsWithFilters[person](ctx, rec, people, store.Filters{"team": "blue"})
	require.NoError(t, err)
	require.Len(t, blue, 3)
	for _, p := range blue {
		assert.Equal(t, "blue", p.Team)
	}

	both, err := data.FetchRowsWithFilters[person](ctx, rec, people, store.Filters{"team": "blue", "name": "p03"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	require.Equal(t, []store.Filter{{Column: "name", Value: "p03"}, {Column: "team", Value: "blue"}}, rec.last().Filters)

	none, err := data.FetchRowsWithFilters[person](ctx, rec, people, store.Filters{"team": "green"})
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestFetchRowsWithFilters_EmptyEqualsFetchAll(t *testing.T) {
	_, rec := seeded(t, 5)
	ctx := context.Background()

	all, err := data.FetchAllRows[person](ctx, rec, people)
	require.NoError(t, err)
	allQuery := rec.last()

	for _, filters := range []store.Filters{nil, {}} {
		got, err := data.FetchRowsWithFilters[person](ctx, rec, people, filters)
		require.NoError(t, err)
		require.Equal(t, all, got)
		require.Equal(t, allQuery.String(), rec.last().String())
	}
}

func TestFetchPaginatedRows(t *testing.T) {
	_, rec := seeded(t, 25)
	ctx := context.Background()

	tests := []struct {
		page, size   int
		wantFrom     int
		wantLimit    int
		wantCountOut int
	}{
		{page: 1, size: 10, wantFrom: 0, wantLimit: 10, wantCountOut: 10},
		{page: 2, size: 10, wantFrom: 10, wantLimit: 10, wantCountOut: 10},
		{page: 3, size: 10, wantFrom: 20, wantLimit: 10, wantCountOut: 5},
		{page: 4, size: 10, wantFrom: 30, wantLimit: 10, wantCountOut: 0},
		{page: 5, size: 5, wantFrom: 20, wantLimit: 5, wantCountOut: 5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d size %d", tt.page, tt.size), func(t *testing.T) {
			rows, err := data.FetchPaginatedRows[person](ctx, rec, people, tt.page, tt.size)
			require.NoError(t, err)
			require.Len(t, rows, tt.wantCountOut)

			q := rec.last()
			require.True(t, q.HasRange)
			require.Equal(t, tt.wantFrom, q.Offset)
			require.Equal(t, tt.wantLimit, q.Limit)
			if len(rows) > 0 {
				require.Equal(t, fmt.Sprintf("p%02d", tt.wantFrom), rows[0].Name)
			}
		})
	}
}

func TestFetchPaginatedRows_InvalidArgument(t *testing.T) {
	_, rec := seeded(t, 0)

	for _, tt := range []struct{ page, size int }{{0, 10}, {-1, 10}, {1, 0}, {1, -5}} {
		_, err := data.FetchPaginatedRows[person](context.Background(), rec, people, tt.page, tt.size)
		require.ErrorIs(t, err, data.ErrInvalidArgument)
	}
	require.Empty(t, rec.queries)
}

func TestPageRange(t *testing.T) {
	from, to, err := data.PageRange(2, 10)
	require.NoError(t, err)
	require.Equal(t, 10, from)
	require.Equal(t, 19, to)

	from, to, err = data.PageRange(1, 1)
	require.NoError(t, err)
	require.Equal(t, 0, from)
	require.Equal(t, 0, to)

	_, _, err = data.PageRange(int(^uint(0)>>1), 2)
	require.ErrorIs(t, err, data.ErrInvalidArgument)
}

func TestAddRows(t *testing.T) {
	s, rec := seeded(t, 0)
	ctx := context.Background()

	in := []personInsert{{Name: "ada", Team: "blue"}, {Name: "grace", Team: "red"}}
	got, err := data.AddRows[person](ctx, rec, people, in)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, rec.queries, 1)
	require.Equal(t, 2, s.Len(people))

	for i, p := range got {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.CreatedAt)
		assert.Equal(t, in[i].Name, p.Name)
	}

	want := []person{{Name: "ada", Team: "blue"}, {Name: "grace", Team: "red"}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(person{}, "ID", "CreatedAt")); diff != "" {
		t.Errorf("AddRows() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddRows_EmptyInput(t *testing.T) {
	_, rec := seeded(t, 0)

	_, err := data.AddRows[person](context.Background(), rec, people, []personInsert{})
	require.ErrorIs(t, err, data.ErrInvalidArgument)
	require.Empty(t, rec.queries)
}

func TestAddRows_EmptyInsertResult(t *testing.T) {
	s, _ := seeded(t, 0)
	s.Intercept(func(q *store.Query, resp *store.Response, err error) (*store.Response, error) {
		return &store.Response{Data: store.EmptyRows}, err
	})

	_, err := data.AddRows[person](context.Background(), s, people, []personInsert{{Name: "ghost"}})
	require.ErrorIs(t, err, data.ErrEmptyInsertResult)
	require.NotErrorIs(t, err, data.ErrRemoteQuery)
}

func TestUpdateRowByID(t *testing.T) {
	s, rec := seeded(t, 3)
	ctx := context.Background()

	all, err := data.FetchAllRows[person](ctx, s, people)
	require.NoError(t, err)
	target := all[2]

	green := "green"
	got, err := data.UpdateRowByID[person](ctx, rec, people, target.ID, personPatch{Team: &green})
	require.NoError(t, err)
	require.Equal(t, target.ID, got.ID)
	require.Equal(t, target.Name, got.Name)
	require.Equal(t, "green", got.Team)

	again, err := data.FetchRowByID[person](ctx, s, people, target.ID)
	require.NoError(t, err)
	require.Equal(t, *got, *again)

	_, err = data.UpdateRowByID[person](ctx, rec, people, "missing", personPatch{Team: &green})
	require.ErrorIs(t, err, data.ErrNotFound)
}

func TestDeleteRowByID(t *testing.T) {
	s, rec := seeded(t, 2)
	ctx := context.Background()

	all, err := data.FetchAllRows[person](ctx, s, people)
	require.NoError(t, err)

	require.NoError(t, data.DeleteRowByID(ctx, rec, people, all[0].ID))
	require.Equal(t, store.ActionDelete, rec.last().Action)

	_, err = data.FetchRowByID[person](ctx, s, people, all[0].ID)
	require.ErrorIs(t, err, data.ErrNotFound)

	rest, err := data.FetchAllRows[person](ctx, s, people)
	require.NoError(t, err)
	require.Equal(t, all[1:], rest)

	require.ErrorIs(t, data.DeleteRowByID(ctx, rec, people, all[0].ID), data.ErrNotFound)
}

func TestCountRows(t *testing.T) {
	_, rec := seeded(t, 9)
	ctx := context.Background()

	n, err := data.CountRows(ctx, rec, people, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9), n)
	require.True(t, rec.last().CountOnly)

	n, err = data.CountRows(ctx, rec, people, store.Filters{"team": "blue"})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	n, err = data.CountRows(ctx, rec, people, store.Filters{"team": "green"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRemoteErrorsAreWrapped(t *testing.T) {
	remote := &store.RemoteError{
		Status:  http.StatusForbidden,
		Code:    pgerrcode.InsufficientPrivilege,
		Message: "permission denied for table people",
	}

	calls := []struct {
		name string
		call func(c store.Client) error
	}{
		{"fetch all", func(c store.Client) error {
			_, err := data.FetchAllRows[person](context.Background(), c, people)
			return err
		}},
		{"fetch by id", func(c store.Client) error {
			_, err := data.FetchRowByID[person](context.Background(), c, people, "x")
			return err
		}},
		{"fetch filtered", func(c store.Client) error {
			_, err := data.FetchRowsWithFilters[person](context.Background(), c, people, store.Filters{"team": "x"})
			return err
		}},
		{"fetch page", func(c store.Client) error {
			_, err := data.FetchPaginatedRows[person](context.Background(), c, people, 1, 10)
			return err
		}},
		{"add", func(c store.Client) error {
			_, err := data.AddRows[person](context.Background(), c, people, []personInsert{{Name: "x"}})
			return err
		}},
		{"update", func(c store.Client) error {
			team := "x"
			_, err := data.UpdateRowByID[person](context.Background(), c, people, "x", personPatch{Team: &team})
			return err
		}},
		{"delete", func(c store.Client) error {
			return data.DeleteRowByID(context.Background(), c, people, "x")
		}},
		{"count", func(c store.Client) error {
			_, err := data.CountRows(context.Background(), c, people, nil)
			return err
		}},
	}

	for _, tt := range calls {
		t.Run(tt.name, func(t *testing.T) {
			s := memstore.New(people)
			s.FailNext(remote)

			err := tt.call(s)
			require.ErrorIs(t, err, data.ErrRemoteQuery)

			var qe *data.QueryError
			require.ErrorAs(t, err, &qe)
			require.Equal(t, people, qe.Table)

			msg, ok := data.RemoteMessage(err)
			require.True(t, ok)
			require.Equal(t, "permission denied for table people", msg)
		})
	}
}

func TestRemoteMessage_NotRemote(t *testing.T) {
	_, ok := data.RemoteMessage(errors.New("plain"))
	require.False(t, ok)
}

func TestTable(t *testing.T) {
	s := memstore.New(people)
	ctx := context.Background()
	tbl := data.NewTable[person](s, people)
	require.Equal(t, people, tbl.Name())

	inserted, err := tbl.Insert(ctx, personInsert{Name: "ada", Team: "blue"}, personInsert{Name: "alan", Team: "red"})
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	got, err := tbl.ByID(ctx, inserted[0].ID)
	require.NoError(t, err)
	require.Equal(t, "ada", got.Name)

	red, err := tbl.Where(ctx, store.Filters{"team": "red"})
	require.NoError(t, err)
	require.Len(t, red, 1)

	page, err := tbl.Page(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, "alan", page[0].Name)

	team := "green"
	updated, err := tbl.Update(ctx, inserted[1].ID, personPatch{Team: &team})
	require.NoError(t, err)
	require.Equal(t, "green", updated.Team)

	require.NoError(t, tbl.Delete(ctx, inserted[0].ID))
	n, err := tbl.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	all, err := tbl.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
