package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration commands accepted by Migrate.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
	MigrateReset  = "reset"
)

func newProvider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	var gooseDialect goose.Dialect
	switch dialect {
	case DialectPostgres:
		gooseDialect = goose.DialectPostgres
	case DialectSQLite:
		gooseDialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to locate migrations: %w", err)
	}
	provider, err := goose.NewProvider(gooseDialect, db, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate runs a migration command against db using the embedded migrations of
// dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, command string, logger *slog.Logger) error {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return err
	}
	logger = logger.With("component", "migrations", "command", command, "dialect", dialect)

	var results []*goose.MigrationResult
	switch command {
	case MigrateUp:
		results, err = provider.Up(ctx)
	case MigrateDown:
		var res *goose.MigrationResult
		res, err = provider.Down(ctx)
		if res != nil {
			results = append(results, res)
		}
	case MigrateReset:
		results, err = provider.DownTo(ctx, 0)
	case MigrateStatus:
		statuses, statusErr := provider.Status(ctx)
		if statusErr != nil {
			return fmt.Errorf("failed to read migration status: %w", statusErr)
		}
		for _, s := range statuses {
			logger.Info("migration status",
				"version", s.Source.Version,
				"path", s.Source.Path,
				"state", s.State)
		}
		return nil
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}

	for _, r := range results {
		logger.Info("migration applied",
			"version", r.Source.Version,
			"direction", r.Direction,
			"duration", r.Duration)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}
