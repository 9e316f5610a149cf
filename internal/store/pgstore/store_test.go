package pgstore_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/user-portal/internal/store"
	"github.com/vasiliy-maslov/user-portal/internal/store/pgstore"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	sql  string
	args []any
	row  fakeRow
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.sql = sql
	db.args = args
	return db.row
}

func TestBuild_Select(t *testing.T) {
	stmt, err := pgstore.Build(store.From("app_user").Match(store.Filters{"last_name": "Lovelace", "email": nil}).Range(10, 19))
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT coalesce(json_agg(r), '[]'::json) FROM (SELECT t.* FROM "app_user" AS t WHERE t."email" IS NULL AND t."last_name" = $1 OFFSET 10 LIMIT 10) AS r`,
		stmt.SQL)
	assert.Equal(t, []any{"Lovelace"}, stmt.Args)
}

func TestBuild_SelectColumnsAndOrder(t *testing.T) {
	stmt, err := pgstore.Build(store.From("portal.app_user").Select("id", "email").Order("created_at", false))
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT coalesce(json_agg(r), '[]'::json) FROM (SELECT t."id", t."email" FROM "portal"."app_user" AS t ORDER BY t."created_at" DESC) AS r`,
		stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestBuild_Count(t *testing.T) {
	stmt, err := pgstore.Build(store.From("app_user").Eq("email", "a@example.com").Count())
	require.NoError(t, err)

	assert.Equal(t, `SELECT count(*) FROM "app_user" AS t WHERE t."email" = $1`, stmt.SQL)
	assert.Equal(t, []any{"a@example.com"}, stmt.Args)
}

func TestBuild_Insert(t *testing.T) {
	rows := []map[string]string{
		{"first_name": "Ada", "email": "a@example.com"},
		{"first_name": "Alan", "last_name": "Turing"},
	}

	stmt, err := pgstore.Build(store.From("app_user").Insert(rows))
	require.NoError(t, err)

	assert.Equal(t,
		`WITH w AS (INSERT INTO "app_user" ("email", "first_name", "last_name") SELECT p."email", p."first_name", p."last_name" FROM json_populate_recordset(NULL::"app_user", $1::json) AS p RETURNING *) SELECT coalesce(json_agg(w), '[]'::json) FROM w`,
		stmt.SQL)
	require.Len(t, stmt.Args, 1)
	assert.JSONEq(t, `[{"first_name":"Ada","email":"a@example.com"},{"first_name":"Alan","last_name":"Turing"}]`, stmt.Args[0].(string))
}

func TestBuild_InsertSingleObjectIsWrapped(t *testing.T) {
	stmt, err := pgstore.Build(store.From("app_user").Insert(map[string]string{"email": "a@example.com"}))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"email":"a@example.com"}]`, stmt.Args[0].(string))
}

func TestBuild_Update(t *testing.T) {
	stmt, err := pgstore.Build(store.From("app_user").Eq("id", "42").Update(map[string]string{"email": "b@example.com"}))
	require.NoError(t, err)

	assert.Equal(t,
		`WITH w AS (UPDATE "app_user" AS t SET "email" = p."email" FROM json_populate_record(NULL::"app_user", $1::json) AS p WHERE t."id" = $2 RETURNING t.*) SELECT coalesce(json_agg(w), '[]'::json) FROM w`,
		stmt.SQL)
	assert.Equal(t, "42", stmt.Args[1])
}

func TestBuild_UpdateRejectsArray(t *testing.T) {
	_, err := pgstore.Build(store.From("app_user").Eq("id", "42").Update([]map[string]string{{"email": "x"}}))
	assert.Error(t, err)
}

func TestBuild_Delete(t *testing.T) {
	stmt, err := pgstore.Build(store.From("app_user").Eq("id", "42").Delete())
	require.NoError(t, err)

	assert.Equal(t,
		`WITH w AS (DELETE FROM "app_user" AS t WHERE t."id" = $1 RETURNING t.*) SELECT coalesce(json_agg(w), '[]'::json) FROM w`,
		stmt.SQL)
}

func TestBuild_QuotesHostileIdentifiers(t *testing.T) {
	stmt, err := pgstore.Build(store.From("app_user").Eq(`email" OR 1=1 --`, "x"))
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `t."email"" OR 1=1 --" = $1`)
}

func TestStore_ExecuteSelect(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*[]byte)) = []byte(`[{"id":"1"}]`)
		return nil
	}}}
	s := pgstore.New(db, 0)

	resp, err := s.Execute(context.Background(), store.From("app_user"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1"}]`, string(resp.Data))
	assert.Contains(t, db.sql, `FROM "app_user" AS t`)
}

func TestStore_ExecuteCount(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = 3
		return nil
	}}}
	s := pgstore.New(db, 0)

	resp, err := s.Execute(context.Background(), store.From("app_user").Count())
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Count)
}

func TestStore_MapsPgError(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		return &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key", Detail: "Key (email) already exists."}
	}}}
	s := pgstore.New(db, 0)

	_, err := s.Execute(context.Background(), store.From("app_user").Insert(map[string]string{"email": "a@example.com"}))

	var remote *store.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusConflict, remote.Status)
	assert.Equal(t, pgerrcode.UniqueViolation, remote.Code)
	assert.Equal(t, "Key (email) already exists.", remote.Details)
}

func TestStore_WrapsTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error { return boom }}}
	s := pgstore.New(db, 0)

	_, err := s.Execute(context.Background(), store.From("app_user"))
	assert.ErrorIs(t, err, boom)

	var remote *store.RemoteError
	assert.False(t, errors.As(err, &remote))
}
