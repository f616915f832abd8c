// Package testdb opens migrated databases for task store tests.
//
// SQLite databases are private, in-memory and always available. Postgres tests
// run only when VIDQ_TEST_DATABASE_URL (or DATABASE_URL) points at a server and
// are skipped otherwise.
package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 10 * time.Second

// URL environment variables, in lookup order.
const (
	EnvTestDatabaseURL = "VIDQ_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

// GetTestDatabaseURL returns the Postgres URL for integration tests, or "".
func GetTestDatabaseURL() string {
	for _, name := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// OpenSQLite opens a private in-memory SQLite database with the schema applied.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(uuid.NewString(), "-", "") + "?mode=memory&cache=shared"
	return open(t, postgres.DialectSQLite, dsn)
}

// OpenPostgres opens the integration database, migrates it and empties the tasks
// table before and after the test. The test is skipped without a database URL.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()
	url := GetTestDatabaseURL()
	if url == "" {
		t.Skipf("%s not set; skipping postgres integration test", EnvTestDatabaseURL)
	}
	db := open(t, postgres.DialectPostgres, url)
	Reset(t, db)
	t.Cleanup(func() { Reset(t, db) })
	return db
}

// Reset deletes every task row.
func Reset(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, "DELETE FROM tasks")
	require.NoError(t, err, "failed to reset tasks table")
}

func open(t *testing.T, dialect postgres.Dialect, dsn string) *sql.DB {
	t.Helper()
	db, err := postgres.Open(dialect, dsn)
	require.NoError(t, err, "failed to open %s test database", dialect)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, postgres.Migrate(ctx, db, dialect, postgres.MigrateUp, logger),
		"failed to migrate %s test database", dialect)
	return db
}
