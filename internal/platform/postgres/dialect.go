package postgres

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Register the "pgx" and "sqlite" database/sql drivers.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour of a connection.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// driverName returns the database/sql driver registered for d.
func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectPostgres:
		return "pgx", nil
	case DialectSQLite:
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database dialect %q", d)
}

// Rebind rewrites "?" placeholders into the positional form of d.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open opens a connection pool for dialect and verifies it with a ping.
// SQLite pools are limited to one connection so that in-memory databases are
// shared and writes are serialized.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite && !strings.Contains(dsn, "_time_format=") {
		// Store times in a lexically ordered text form so range filters work.
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
