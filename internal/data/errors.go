package data

import (
	"errors"
	"fmt"

	"github.com/vasiliy-maslov/user-portal/internal/store"
)

var (
	// ErrRemoteQuery matches every failure reported by (or on the way to) the store.
	ErrRemoteQuery = errors.New("remote query failed")

	// ErrEmptyInsertResult is returned when an insert succeeded but the store
	// handed back no rows.
	ErrEmptyInsertResult = errors.New("insert returned no rows")

	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("row not found")

	// ErrMultipleRows is wrapped in a QueryError when a lookup by id matched
	// more than one row.
	ErrMultipleRows = errors.New("more than one row matched")
)

// QueryError describes a failed store operation. It matches ErrRemoteQuery
// and unwraps to the underlying cause, usually a *store.RemoteError.
type QueryError struct {
	Op    string
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s on table %q: %v", e.Op, e.Table, e.Err)
}

func (e *QueryError) Is(target error) bool { return target == ErrRemoteQuery }

func (e *QueryError) Unwrap() error { return e.Err }

// RemoteMessage returns the store's own message when err carries one.
func RemoteMessage(err error) (string, bool) {
	var remote *store.RemoteError
	if errors.As(err, &remote) {
		return remote.Message, true
	}
	return "", false
}

func queryErr(op, table string, err error) error {
	return &QueryError{Op: op, Table: table, Err: err}
}
