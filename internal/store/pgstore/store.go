// Package pgstore implements store.Client directly on a PostgreSQL pool. It is
// used when the application runs next to its database instead of behind the
// hosted REST endpoint.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/user-portal/internal/store"
)

// DB is the part of *pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a store.Client backed by PostgreSQL.
type Store struct {
	db      DB
	timeout time.Duration
}

// New returns a store using db. A zero timeout selects store.DefaultTimeout.
func New(db DB, timeout time.Duration) *Store {
	if timeout == 0 {
		timeout = store.DefaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

func (s *Store) Execute(ctx context.Context, q *store.Query) (*store.Response, error) {
	stmt, err := Build(q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	if q.CountOnly {
		var count int64
		if err := s.db.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&count); err != nil {
			return nil, mapError(q, err)
		}
		return &store.Response{Data: store.EmptyRows, Count: count}, nil
	}

	var data []byte
	if err := s.db.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&data); err != nil {
		return nil, mapError(q, err)
	}
	return &store.Response{Data: data}, nil
}

// mapError turns PostgreSQL errors into the store's error type. Everything
// else (network, context) is wrapped untouched.
func mapError(q *store.Query, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("pgstore: %s %s: %w", q.Action, q.Table, err)
	}
	return &store.RemoteError{
		Status:  statusFor(pgErr.Code),
		Code:    pgErr.Code,
		Message: pgErr.Message,
		Details: pgErr.Detail,
		Hint:    pgErr.Hint,
	}
}

func statusFor(code string) int {
	switch {
	case code == pgerrcode.UniqueViolation, code == pgerrcode.ForeignKeyViolation:
		return http.StatusConflict
	case code == pgerrcode.UndefinedTable:
		return http.StatusNotFound
	case code == pgerrcode.UndefinedColumn:
		return http.StatusBadRequest
	case pgerrcode.IsDataException(code):
		return http.StatusBadRequest
	case code == pgerrcode.InsufficientPrivilege:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
