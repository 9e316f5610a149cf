package user

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/user-portal/internal/data"
	"github.com/vasiliy-maslov/user-portal/internal/store"
)

// Repository reads and writes users in the remote store.
type Repository interface {
	List(ctx context.Context) ([]Row, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Row, error)
	Find(ctx context.Context, filters store.Filters) ([]Row, error)
	Page(ctx context.Context, page, pageSize int) ([]Row, error)
	Count(ctx context.Context, filters store.Filters) (int64, error)
	Create(ctx context.Context, users []Insert) ([]Row, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*Row, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	client store.Client
	table  string
}

func NewRepository(client store.Client) Repository {
	return &repository{client: client, table: Table}
}

func (r *repository) List(ctx context.Context) ([]Row, error) {
	return data.FetchAllRows[Row](ctx, r.client, r.table)
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Row, error) {
	return data.FetchRowByID[Row](ctx, r.client, r.table, id)
}

func (r *repository) Find(ctx context.Context, filters store.Filters) ([]Row, error) {
	return data.FetchRowsWithFilters[Row](ctx, r.client, r.table, filters)
}

func (r *repository) Page(ctx context.Context, page, pageSize int) ([]Row, error) {
	return data.FetchPaginatedRows[Row](ctx, r.client, r.table, page, pageSize)
}

func (r *repository) Count(ctx context.Context, filters store.Filters) (int64, error) {
	return data.CountRows(ctx, r.client, r.table, filters)
}

func (r *repository) Create(ctx context.Context, users []Insert) ([]Row, error) {
	return data.AddRows[Row](ctx, r.client, r.table, users)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Row, error) {
	return data.UpdateRowByID[Row](ctx, r.client, r.table, id, patch)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return data.DeleteRowByID(ctx, r.client, r.table, id)
}
