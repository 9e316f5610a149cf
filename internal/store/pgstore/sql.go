package pgstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/user-portal/internal/store"
)

// Statement is the SQL generated for one query.
type Statement struct {
	SQL  string
	Args []any
}

// Build translates q into a single SQL statement. Row-returning statements
// yield one json value holding an array of row objects; count queries yield
// one bigint.
func Build(q *store.Query) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}

	b := &builder{table: tableIdent(q.Table)}

	switch q.Action {
	case store.ActionSelect:
		return b.selectStmt(q), nil
	case store.ActionInsert:
		return b.insertStmt(q)
	case store.ActionUpdate:
		return b.updateStmt(q)
	case store.ActionDelete:
		return b.deleteStmt(q), nil
	default:
		return Statement{}, fmt.Errorf("pgstore: unsupported action %s", q.Action)
	}
}

type builder struct {
	table string
	args  []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) where(filters []store.Filter) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		column := "t." + ident(f.Column)
		if f.Value == nil {
			parts = append(parts, column+" IS NULL")
			continue
		}
		parts = append(parts, column+" = "+b.bind(f.Value))
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (b *builder) selectStmt(q *store.Query) Statement {
	where := b.where(q.Filters)

	if q.CountOnly {
		return Statement{SQL: "SELECT count(*) FROM " + b.table + " AS t" + where, Args: b.args}
	}

	columns := "t.*"
	if len(q.Columns) > 0 && !(len(q.Columns) == 1 && q.Columns[0] == "*") {
		quoted := make([]string, 0, len(q.Columns))
		for _, c := range q.Columns {
			quoted = append(quoted, "t."+ident(c))
		}
		columns = strings.Join(quoted, ", ")
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(columns)
	sql.WriteString(" FROM ")
	sql.WriteString(b.table)
	sql.WriteString(" AS t")
	sql.WriteString(where)

	if len(q.Orderings) > 0 {
		keys := make([]string, 0, len(q.Orderings))
		for _, o := range q.Orderings {
			dir := " DESC"
			if o.Ascending {
				dir = " ASC"
			}
			keys = append(keys, "t."+ident(o.Column)+dir)
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(keys, ", "))
	}

	if q.HasRange {
		sql.WriteString(" OFFSET ")
		sql.WriteString(strconv.Itoa(q.Offset))
		sql.WriteString(" LIMIT ")
		sql.WriteString(strconv.Itoa(q.Limit))
	}

	return Statement{SQL: aggregate("r", "("+sql.String()+") AS r"), Args: b.args}
}

func (b *builder) insertStmt(q *store.Query) (Statement, error) {
	payload, columns, err := payloadColumns(q.Payload, true)
	if err != nil {
		return Statement{}, err
	}
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("pgstore: insert into %s has no columns", q.Table)
	}

	list := identList(columns, "")
	from := identList(columns, "p.")
	src := b.bind(string(payload))

	inner := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM json_populate_recordset(NULL::%s, %s::json) AS p RETURNING *",
		b.table, list, from, b.table, src)
	return Statement{SQL: "WITH w AS (" + inner + ") " + aggregate("w", "w"), Args: b.args}, nil
}

func (b *builder) updateStmt(q *store.Query) (Statement, error) {
	payload, columns, err := payloadColumns(q.Payload, false)
	if err != nil {
		return Statement{}, err
	}
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("pgstore: update of %s sets no columns", q.Table)
	}

	src := b.bind(string(payload))
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		sets = append(sets, ident(c)+" = p."+ident(c))
	}
	where := b.where(q.Filters)

	inner := fmt.Sprintf("UPDATE %s AS t SET %s FROM json_populate_record(NULL::%s, %s::json) AS p%s RETURNING t.*",
		b.table, strings.Join(sets, ", "), b.table, src, where)
	return Statement{SQL: "WITH w AS (" + inner + ") " + aggregate("w", "w"), Args: b.args}, nil
}

func (b *builder) deleteStmt(q *store.Query) Statement {
	where := b.where(q.Filters)
	inner := "DELETE FROM " + b.table + " AS t" + where + " RETURNING t.*"
	return Statement{SQL: "WITH w AS (" + inner + ") " + aggregate("w", "w"), Args: b.args}
}

func aggregate(alias, from string) string {
	return fmt.Sprintf("SELECT coalesce(json_agg(%s), '[]'::json) FROM %s", alias, from)
}

// payloadColumns encodes payload and returns the sorted union of its keys.
// Inserts accept an object or an array of objects, updates a single object.
func payloadColumns(payload any, many bool) ([]byte, []string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: encode payload: %w", err)
	}

	var objects []map[string]json.RawMessage
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if !many {
			return nil, nil, fmt.Errorf("pgstore: update payload must be an object")
		}
		if err := json.Unmarshal(raw, &objects); err != nil {
			return nil, nil, fmt.Errorf("pgstore: payload is not an array of objects: %w", err)
		}
	default:
		var single map[string]json.RawMessage
		if err := json.Unmarshal(raw, &single); err != nil || single == nil {
			return nil, nil, fmt.Errorf("pgstore: payload is not an object")
		}
		objects = append(objects, single)
		if many {
			raw, _ = json.Marshal([]map[string]json.RawMessage{single})
		}
	}

	seen := make(map[string]struct{})
	columns := make([]string, 0)
	for _, obj := range objects {
		for k := range obj {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			columns = append(columns, k)
		}
	}
	sort.Strings(columns)
	return raw, columns, nil
}

func identList(columns []string, prefix string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, prefix+ident(c))
	}
	return strings.Join(out, ", ")
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// tableIdent quotes a possibly schema-qualified table name.
func tableIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
