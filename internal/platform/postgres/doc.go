// Package postgres provides the SQL implementation of store.TaskStore.
//
// The same store runs on PostgreSQL (through the pgx stdlib driver) and on SQLite
// (through modernc.org/sqlite) for single-node deployments and tests. Queries are
// written once with "?" placeholders and rebound for the active Dialect. Schema
// changes are embedded goose migrations, one directory per dialect.
package postgres
