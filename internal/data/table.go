package data

import (
	"context"

	"github.com/vasiliy-maslov/user-portal/internal/store"
)

// Table binds a client and a table name to a row type so callers don't repeat
// them on every call.
type Table[T any] struct {
	client store.Client
	name   string
}

func NewTable[T any](c store.Client, name string) Table[T] {
	return Table[T]{client: c, name: name}
}

func (t Table[T]) Name() string { return t.name }

func (t Table[T]) All(ctx context.Context) ([]T, error) {
	return FetchAllRows[T](ctx, t.client, t.name)
}

func (t Table[T]) ByID(ctx context.Context, id any) (*T, error) {
	return FetchRowByID[T](ctx, t.client, t.name, id)
}

func (t Table[T]) Where(ctx context.Context, filters store.Filters) ([]T, error) {
	return FetchRowsWithFilters[T](ctx, t.client, t.name, filters)
}

func (t Table[T]) Page(ctx context.Context, page, pageSize int) ([]T, error) {
	return FetchPaginatedRows[T](ctx, t.client, t.name, page, pageSize)
}

func (t Table[T]) Count(ctx context.Context, filters store.Filters) (int64, error) {
	return CountRows(ctx, t.client, t.name, filters)
}

// Insert adds rows, which may be any JSON-encodable insert projection of T.
func (t Table[T]) Insert(ctx context.Context, rows ...any) ([]T, error) {
	return AddRows[T](ctx, t.client, t.name, rows)
}

func (t Table[T]) Update(ctx context.Context, id, patch any) (*T, error) {
	return UpdateRowByID[T](ctx, t.client, t.name, id, patch)
}

func (t Table[T]) Delete(ctx context.Context, id any) error {
	return DeleteRowByID(ctx, t.client, t.name, id)
}
