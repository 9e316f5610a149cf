// Package store defines the contract between the application and the remote
// relational store: a fluent query builder, the Client that executes queries
// and the error the store reports when a query fails.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Action is the kind of statement a Query performs.
type Action int

const (
	ActionSelect Action = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionSelect:
		return "select"
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

var (
	ErrNoTable         = errors.New("store: query has no table")
	ErrNoPayload       = errors.New("store: write query has no payload")
	ErrUnfilteredWrite = errors.New("store: update and delete require at least one filter")
	ErrInvalidRange    = errors.New("store: invalid range")
	ErrCountOnWrite    = errors.New("store: count is only supported on select")
)

// Filters maps a column name to the value it must equal. Entries are applied
// conjunctively.
type Filters map[string]any

// Filter is a single equality predicate. A nil Value matches SQL NULL.
type Filter struct {
	Column string
	Value  any
}

// Ordering sorts the result by Column.
type Ordering struct {
	Column    string
	Ascending bool
}

// Query describes one request against a single table. Build it with From and
// the chained methods; a Query is not safe for concurrent mutation.
type Query struct {
	Table     string
	Action    Action
	Columns   []string
	Filters   []Filter
	Orderings []Ordering
	Payload   any

	// Offset and Limit are meaningful only when HasRange is set.
	Offset   int
	Limit    int
	HasRange bool

	// CountOnly asks for the number of matching rows without row bodies.
	CountOnly bool

	err error
}

// From starts a select query on table.
func From(table string) *Query {
	return &Query{Table: table, Action: ActionSelect}
}

// Select restricts the returned columns. No columns means all of them.
func (q *Query) Select(columns ...string) *Query {
	q.Columns = append(q.Columns[:0], columns...)
	return q
}

// Eq adds an equality predicate.
func (q *Query) Eq(column string, value any) *Query {
	q.Filters = append(q.Filters, Filter{Column: column, Value: value})
	return q
}

// Match adds one equality predicate per entry of filters, in column order.
func (q *Query) Match(filters Filters) *Query {
	columns := make([]string, 0, len(filters))
	for column := range filters {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		q.Eq(column, filters[column])
	}
	return q
}

// Range limits the result to the zero-based, inclusive row window [from, to].
func (q *Query) Range(from, to int) *Query {
	if from < 0 || to < from {
		q.err = fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, from, to)
		return q
	}
	q.Offset = from
	q.Limit = to - from + 1
	q.HasRange = true
	return q
}

// Order appends a sort key.
func (q *Query) Order(column string, ascending bool) *Query {
	q.Orderings = append(q.Orderings, Ordering{Column: column, Ascending: ascending})
	return q
}

// Count turns the query into an exact count of matching rows.
func (q *Query) Count() *Query {
	q.CountOnly = true
	return q
}

// Insert turns the query into an insert of rows, which must encode as a JSON
// object or array of objects.
func (q *Query) Insert(rows any) *Query {
	q.Action = ActionInsert
	q.Payload = rows
	return q
}

// Update turns the query into an update that applies patch to every row
// matching the filters.
func (q *Query) Update(patch any) *Query {
	q.Action = ActionUpdate
	q.Payload = patch
	return q
}

// Delete turns the query into a delete of every row matching the filters.
func (q *Query) Delete() *Query {
	q.Action = ActionDelete
	return q
}

// Validate reports whether the query can be sent to a store.
func (q *Query) Validate() error {
	if q.err != nil {
		return q.err
	}
	if strings.TrimSpace(q.Table) == "" {
		return ErrNoTable
	}
	if q.CountOnly && q.Action != ActionSelect {
		return ErrCountOnWrite
	}

	switch q.Action {
	case ActionInsert:
		if q.Payload == nil {
			return ErrNoPayload
		}
	case ActionUpdate:
		if q.Payload == nil {
			return ErrNoPayload
		}
		if len(q.Filters) == 0 {
			return ErrUnfilteredWrite
		}
	case ActionDelete:
		if len(q.Filters) == 0 {
			return ErrUnfilteredWrite
		}
	}
	return nil
}

// String renders a short description for logs.
func (q *Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", q.Action, q.Table)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s=%v", f.Column, f.Value)
	}
	if q.HasRange {
		fmt.Fprintf(&b, " range=%d-%d", q.Offset, q.Offset+q.Limit-1)
	}
	if q.CountOnly {
		b.WriteString(" count")
	}
	return b.String()
}
