// Package main implements the entry point for the vidq server, which admits
// video-processing tasks over HTTP, executes them on a bounded worker pool and
// sweeps expired records and artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/vidq/internal/config"
	"github.com/phrazzld/vidq/internal/platform/logger"
	"github.com/phrazzld/vidq/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"run a migration command (up, down, status, reset) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *migrateCmd); err != nil {
		slog.Error("vidq exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration, opens the database and either applies migrations or
// runs the application until ctx is cancelled.
func run(ctx context.Context, migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"role", cfg.Server.Role,
		"database_driver", cfg.Database.Driver,
		"queue_driver", cfg.Queue.Driver)

	dialect := postgres.Dialect(cfg.Database.Driver)
	db, err := postgres.Open(dialect, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if migrateCmd != "" {
		defer db.Close()
		return postgres.Migrate(ctx, db, dialect, migrateCmd, log)
	}

	// A SQLite database is local to this process, so nobody else migrates it.
	if dialect == postgres.DialectSQLite {
		if err := postgres.Migrate(ctx, db, dialect, postgres.MigrateUp, log); err != nil {
			db.Close()
			return err
		}
	}

	app, err := buildApplication(ctx, cfg, log, db)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.Run(ctx)
}
