package db_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/user-portal/internal/config"
	"github.com/vasiliy-maslov/user-portal/internal/db"
)

func testConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:       "db.internal",
		Port:       "5433",
		User:       "portal",
		Password:   "p@ss word",
		DBName:     "portal",
		SSLMode:    "disable",
		SearchPath: "public",
	}
}

func TestConnString(t *testing.T) {
	connStr := db.ConnString(testConfig())

	poolCfg, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)
	require.Equal(t, "db.internal", poolCfg.ConnConfig.Host)
	require.Equal(t, uint16(5433), poolCfg.ConnConfig.Port)
	require.Equal(t, "portal", poolCfg.ConnConfig.User)
	require.Equal(t, "p@ss word", poolCfg.ConnConfig.Password)
	require.Equal(t, "portal", poolCfg.ConnConfig.Database)
	require.Equal(t, "public", poolCfg.ConnConfig.RuntimeParams["search_path"])
}

// TestApplyMigrations needs a disposable database; it runs when DB_TEST_HOST
// is set.
func TestApplyMigrations(t *testing.T) {
	host := os.Getenv("DB_TEST_HOST")
	if host == "" {
		t.Skip("DB_TEST_HOST not set")
	}

	cfg := config.PostgresConfig{
		Host:           host,
		Port:           envOr("DB_TEST_PORT", "5432"),
		User:           envOr("DB_TEST_USER", "postgres"),
		Password:       os.Getenv("DB_TEST_PASSWORD"),
		DBName:         envOr("DB_TEST_NAME", "portal_test"),
		SSLMode:        "disable",
		MaxConns:       4,
		MigrationsPath: "../../migrations",
	}

	ctx := context.Background()
	conn, err := db.New(ctx, cfg)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.ApplyMigrations(cfg))
	require.NoError(t, conn.ApplyMigrations(cfg))

	for _, table := range []string{"app_user", "auth_user"} {
		var exists bool
		err := conn.Pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists)
		require.NoError(t, err)
		require.True(t, exists, table)
	}

	// The pool must stay usable once the migration handle is closed.
	require.NoError(t, conn.Pool.Ping(ctx))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
