// Package data is the table-agnostic data access layer. Every function turns
// a table name and its parameters into exactly one store request and decodes
// the answer into the caller's row type. Nothing is cached, retried or logged
// here; failures are returned to the caller as they happen.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/vasiliy-maslov/user-portal/internal/store"
)

// IDColumn is the primary key column every table is expected to have.
const IDColumn = "id"

// Page is a 1-based page descriptor.
type Page struct {
	Number int
	Size   int
}

// Range returns the zero-based, inclusive row window of the page.
func (p Page) Range() (from, to int, err error) {
	if p.Number < 1 || p.Size < 1 {
		return 0, 0, fmt.Errorf("%w: page %d with size %d", ErrInvalidArgument, p.Number, p.Size)
	}
	if p.Number-1 > (math.MaxInt-p.Size)/p.Size {
		return 0, 0, fmt.Errorf("%w: page %d with size %d overflows", ErrInvalidArgument, p.Number, p.Size)
	}
	from = (p.Number - 1) * p.Size
	return from, from + p.Size - 1, nil
}

// PageRange returns the inclusive row window of a 1-based page.
func PageRange(page, pageSize int) (from, to int, err error) {
	return Page{Number: page, Size: pageSize}.Range()
}

// FetchAllRows returns every row of table. An empty table yields an empty,
// non-nil slice.
func FetchAllRows[T any](ctx context.Context, c store.Client, table string) ([]T, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return fetch[T](ctx, c, "fetch all rows", store.From(table))
}

// FetchRowByID returns the row whose id equals id, or ErrNotFound.
func FetchRowByID[T any](ctx context.Context, c store.Client, table string, id any) (*T, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}

	const op = "fetch row by id"
	// Two rows are enough to tell "unique" from "not unique".
	rows, err := fetch[T](ctx, c, op, store.From(table).Eq(IDColumn, id).Range(0, 1))
	if err != nil {
		return nil, err
	}
	return single(op, table, id, rows)
}

// FetchRowsWithFilters returns the rows matching every filter. No filters is
// the same as FetchAllRows.
func FetchRowsWithFilters[T any](ctx context.Context, c store.Client, table string, filters store.Filters) ([]T, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return fetch[T](ctx, c, "fetch rows with filters", store.From(table).Match(filters))
}

// FetchPaginatedRows returns rows [(page-1)*pageSize, page*pageSize-1] in the
// store's default order. page and pageSize must be positive.
func FetchPaginatedRows[T any](ctx context.Context, c store.Client, table string, page, pageSize int) ([]T, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	from, to, err := PageRange(page, pageSize)
	if err != nil {
		return nil, err
	}
	return fetch[T](ctx, c, "fetch paginated rows", store.From(table).Range(from, to))
}

// AddRows inserts rows in one request and returns the stored rows, including
// the fields the store generated.
func AddRows[T, I any](ctx context.Context, c store.Client, table string, rows []I) ([]T, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: nothing to insert into %q", ErrInvalidArgument, table)
	}

	inserted, err := fetch[T](ctx, c, "add rows", store.From(table).Insert(rows))
	if err != nil {
		return nil, err
	}
	if len(inserted) == 0 {
		return nil, fmt.Errorf("insert into %q: %w", table, ErrEmptyInsertResult)
	}
	return inserted, nil
}

// UpdateRowByID applies patch to the row with the given id and returns the
// updated row, or ErrNotFound when no row has that id.
func UpdateRowByID[T, P any](ctx context.Context, c store.Client, table string, id any, patch P) (*T, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}

	const op = "update row by id"
	rows, err := fetch[T](ctx, c, op, store.From(table).Eq(IDColumn, id).Update(patch))
	if err != nil {
		return nil, err
	}
	return single(op, table, id, rows)
}

// DeleteRowByID removes the row with the given id. It returns ErrNotFound
// when the store reports that nothing was deleted.
func DeleteRowByID(ctx context.Context, c store.Client, table string, id any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}

	deleted, err := fetch[json.RawMessage](ctx, c, "delete row by id",
		store.From(table).Select(IDColumn).Eq(IDColumn, id).Delete())
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return fmt.Errorf("delete %v from %q: %w", id, table, ErrNotFound)
	}
	return nil
}

// CountRows returns how many rows match filters without transferring them.
// Nil or empty filters count the whole table.
func CountRows(ctx context.Context, c store.Client, table string, filters store.Filters) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}

	q := store.From(table).Match(filters).Count()
	resp, err := c.Execute(ctx, q)
	if err != nil {
		return 0, queryErr("count rows", table, err)
	}
	if resp.Count < 0 {
		return 0, queryErr("count rows", table, fmt.Errorf("negative count %d", resp.Count))
	}
	return resp.Count, nil
}

func fetch[T any](ctx context.Context, c store.Client, op string, q *store.Query) ([]T, error) {
	resp, err := c.Execute(ctx, q)
	if err != nil {
		return nil, queryErr(op, q.Table, err)
	}

	rows := make([]T, 0)
	if len(resp.Data) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, queryErr(op, q.Table, fmt.Errorf("decode rows: %w", err))
	}
	if rows == nil {
		rows = make([]T, 0)
	}
	return rows, nil
}

func single[T any](op, table string, id any, rows []T) (*T, error) {
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%s: %v in %q: %w", op, id, table, ErrNotFound)
	case 1:
		return &rows[0], nil
	default:
		return nil, queryErr(op, table, fmt.Errorf("id %v: %w", id, ErrMultipleRows))
	}
}

func checkTable(table string) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidArgument)
	}
	return nil
}
