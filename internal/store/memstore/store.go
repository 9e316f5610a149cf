// Package memstore is an in-memory store.Client. It keeps rows as decoded
// JSON objects and understands every query the store package can build, which
// makes it the store used for local runs and tests.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/vasiliy-maslov/user-portal/internal/store"
)

type row map[string]any

type table struct {
	rows   []row
	unique []string
}

// Interceptor may replace the outcome of a call. It runs after the query was
// applied to the tables.
type Interceptor func(q *store.Query, resp *store.Response, err error) (*store.Response, error)

// Store is a thread-safe in-memory store.Client.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	now    func() time.Time

	failNext  error
	intercept Interceptor
}

// New returns a store with the given tables already created.
func New(tables ...string) *Store {
	s := &Store{
		tables: make(map[string]*table),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, name := range tables {
		s.CreateTable(name)
	}
	return s
}

// CreateTable creates an empty table. Columns listed in unique reject
// duplicate values the way a unique index would.
func (s *Store) CreateTable(name string, unique ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{unique: unique}
}

// FailNext makes the next Execute call fail with err without touching data.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Intercept installs fn for every following call; nil removes it.
func (s *Store) Intercept(fn Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

// Len returns the number of rows in a table.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[name]; ok {
		return len(t.rows)
	}
	return 0
}

func (s *Store) Execute(ctx context.Context, q *store.Query) (*store.Response, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}

	resp, err := s.apply(q)
	if s.intercept != nil {
		return s.intercept(q, resp, err)
	}
	return resp, err
}

func (s *Store) apply(q *store.Query) (*store.Response, error) {
	t, ok := s.tables[q.Table]
	if !ok {
		return nil, &store.RemoteError{
			Status:  http.StatusNotFound,
			Code:    pgerrcode.UndefinedTable,
			Message: fmt.Sprintf("relation %q does not exist", q.Table),
		}
	}

	switch q.Action {
	case store.ActionSelect:
		return s.selectRows(t, q)
	case store.ActionInsert:
		return s.insertRows(t, q)
	case store.ActionUpdate:
		return s.updateRows(t, q)
	case store.ActionDelete:
		return s.deleteRows(t, q)
	default:
		return nil, fmt.Errorf("memstore: unsupported action %s", q.Action)
	}
}

func (s *Store) selectRows(t *table, q *store.Query) (*store.Response, error) {
	matched := make([]row, 0, len(t.rows))
	for _, r := range t.rows {
		if matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}

	if q.CountOnly {
		return &store.Response{Data: store.EmptyRows, Count: int64(len(matched))}, nil
	}

	sortRows(matched, q.Orderings)

	if q.HasRange {
		if q.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			end := q.Offset + q.Limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[q.Offset:end]
		}
	}

	out := make([]row, 0, len(matched))
	for _, r := range matched {
		out = append(out, project(r, q.Columns))
	}
	return encode(out)
}

func (s *Store) insertRows(t *table, q *store.Query) (*store.Response, error) {
	incoming, err := decodeRows(q.Payload)
	if err != nil {
		return nil, badRequest(err)
	}

	now := s.now()
	inserted := make([]row, 0, len(incoming))
	for _, r := range incoming {
		if _, ok := r["id"]; !ok {
			id, err := uuid.NewV4()
			if err != nil {
				return nil, fmt.Errorf("memstore: generate id: %w", err)
			}
			r["id"] = id.String()
		}
		if _, ok := r["created_at"]; !ok {
			r["created_at"] = now.Format(time.RFC3339Nano)
		}
		if err := t.checkUnique(r, inserted); err != nil {
			return nil, err
		}
		inserted = append(inserted, r)
	}

	t.rows = append(t.rows, inserted...)
	return encode(inserted)
}

func (s *Store) updateRows(t *table, q *store.Query) (*store.Response, error) {
	patches, err := decodeRows(q.Payload)
	if err != nil {
		return nil, badRequest(err)
	}
	if len(patches) != 1 {
		return nil, badRequest(fmt.Errorf("update expects a single object, got %d", len(patches)))
	}
	patch := patches[0]

	// Stage every change first so a violation leaves the table untouched.
	next := make([]row, len(t.rows))
	copy(next, t.rows)
	changed := make([]int, 0)
	for i, r := range t.rows {
		if !matches(r, q.Filters) {
			continue
		}
		merged := make(row, len(r)+len(patch))
		for k, v := range r {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		next[i] = merged
		changed = append(changed, i)
	}

	updated := make([]row, 0, len(changed))
	for _, i := range changed {
		if err := t.checkUniqueAt(next, i); err != nil {
			return nil, err
		}
		updated = append(updated, next[i])
	}

	t.rows = next
	return encode(updated)
}

func (s *Store) deleteRows(t *table, q *store.Query) (*store.Response, error) {
	kept := t.rows[:0:0]
	deleted := make([]row, 0)
	for _, r := range t.rows {
		if matches(r, q.Filters) {
			deleted = append(deleted, r)
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return encode(deleted)
}

// checkUnique compares candidate with the stored rows and with pending rows
// of the same statement.
func (t *table) checkUnique(candidate row, pending []row) error {
	for _, column := range t.unique {
		value, ok := candidate[column]
		if !ok {
			continue
		}
		for _, r := range t.rows {
			if equal(r[column], value) {
				return duplicate(column)
			}
		}
		for _, r := range pending {
			if equal(r[column], value) {
				return duplicate(column)
			}
		}
	}
	return nil
}

// checkUniqueAt compares rows[at] with every other row of rows.
func (t *table) checkUniqueAt(rows []row, at int) error {
	for _, column := range t.unique {
		value, ok := rows[at][column]
		if !ok {
			continue
		}
		for i, r := range rows {
			if i != at && equal(r[column], value) {
				return duplicate(column)
			}
		}
	}
	return nil
}

func duplicate(column string) error {
	return &store.RemoteError{
		Status:  http.StatusConflict,
		Code:    pgerrcode.UniqueViolation,
		Message: fmt.Sprintf("duplicate key value violates unique constraint on %q", column),
	}
}

func badRequest(err error) error {
	return &store.RemoteError{
		Status:  http.StatusBadRequest,
		Code:    pgerrcode.InvalidTextRepresentation,
		Message: err.Error(),
	}
}

func matches(r row, filters []store.Filter) bool {
	for _, f := range filters {
		if !equal(r[f.Column], f.Value) {
			return false
		}
	}
	return true
}

// equal compares two values by their JSON encoding, so a stored json.Number
// matches an int filter and a stored timestamp string matches a time.Time.
func equal(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

func sortRows(rows []row, orderings []store.Ordering) {
	if len(orderings) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orderings {
			c := compare(rows[i][o.Column], rows[j][o.Column])
			if c == 0 {
				continue
			}
			if o.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
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
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func project(r row, columns []string) row {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		return r
	}
	out := make(row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func decodeRows(payload any) ([]row, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	raw = bytes.TrimSpace(raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if len(raw) > 0 && raw[0] == '[' {
		var rows []row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("payload is not an array of objects: %w", err)
		}
		for i, r := range rows {
			if r == nil {
				return nil, fmt.Errorf("payload element %d is null", i)
			}
		}
		return rows, nil
	}

	var single row
	if err := dec.Decode(&single); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	if single == nil {
		return nil, fmt.Errorf("payload is null")
	}
	return []row{single}, nil
}

func encode(rows []row) (*store.Response, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("memstore: encode rows: %w", err)
	}
	return &store.Response{Data: data, Count: int64(len(rows))}, nil
}
