package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/vidq/internal/config"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/events"
	"github.com/phrazzld/vidq/internal/pipeline"
	"github.com/phrazzld/vidq/internal/platform/ffmpeg"
	"github.com/phrazzld/vidq/internal/platform/gemini"
	"github.com/phrazzld/vidq/internal/platform/natsbus"
	"github.com/phrazzld/vidq/internal/platform/postgres"
	"github.com/phrazzld/vidq/internal/platform/redisqueue"
	"github.com/phrazzld/vidq/internal/platform/toolexec"
	"github.com/phrazzld/vidq/internal/platform/whisper"
	"github.com/phrazzld/vidq/internal/queue"
	"github.com/phrazzld/vidq/internal/service"
	"github.com/phrazzld/vidq/internal/store"
	"github.com/phrazzld/vidq/internal/sweeper"
	"github.com/phrazzld/vidq/internal/task"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	healthTimeout    = 2 * time.Second
	sizeProbeTimeout = 10 * time.Second
	downloadBackoff  = time.Second
	downloadTimeout  = 15 * time.Minute
	geminiMaxRetries = 3
	geminiRetryBase  = 2 * time.Second
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	store     store.TaskStore
	transport queue.Transport
	emitter   *events.InMemoryEventEmitter
	fs        afero.Fs

	taskService service.TaskService
	health      *service.HealthChecker

	// Worker role only.
	scheduler *task.Scheduler
	sweeper   *sweeper.Sweeper

	// closers release infrastructure in reverse order of acquisition.
	closers []func() error
}

// buildApplication creates the infrastructure named by cfg and assembles the
// application on top of it. db is owned by the application from here on.
func buildApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	closers := []func() error{db.Close}
	fail := func(err error) (*application, error) {
		closeAll(closers, logger)
		return nil, err
	}

	taskStore := postgres.NewTaskStore(db, postgres.Dialect(cfg.Database.Driver))

	transport, closeTransport, err := openTransport(cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeTransport)

	emitter := events.NewInMemoryEventEmitter(logger)
	if cfg.Events.NATSURL != "" {
		publisher, nc, err := natsbus.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { return drainNATS(nc) })
		emitter.RegisterHandler(publisher)
		logger.Info("lifecycle events published to nats", "subject_prefix", cfg.Events.SubjectPrefix)
	}

	var executors task.Executors
	if cfg.Server.RunsWorker() {
		executors, err = buildExecutors(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
	}

	app, err := newApplication(cfg, logger, taskStore, transport, emitter, executors, afero.NewOsFs())
	if err != nil {
		return fail(err)
	}
	app.closers = closers
	return app, nil
}

// openTransport returns the configured queue transport and its release func.
func openTransport(cfg *config.Config, logger *slog.Logger) (queue.Transport, func() error, error) {
	switch cfg.Queue.Driver {
	case "memory":
		// The memory transport cannot cross process boundaries.
		if cfg.Server.Role != config.RoleAll {
			return nil, nil, fmt.Errorf("queue driver %q requires role %q", cfg.Queue.Driver, config.RoleAll)
		}
		q := queue.NewMemory(cfg.Queue.Capacity, logger)
		return q, func() error { q.Close(); return nil }, nil
	case "redis":
		t, err := redisqueue.Open(cfg.Queue.RedisURL, redisqueue.Config{
			Name:    cfg.Queue.Name,
			MetaTTL: cfg.Retention.Window,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported queue driver %q", cfg.Queue.Driver)
}

// buildExecutors wires the media pipelines to the external tools.
func buildExecutors(ctx context.Context, cfg *config.Config, logger *slog.Logger) (task.Executors, error) {
	runner := &toolexec.ExecRunner{Logger: logger}
	toolkit := ffmpeg.New(runner, cfg.Media.FFmpegPath, cfg.Media.FFprobePath, ffmpeg.CaptionStyle{
		FontName:     cfg.Media.Caption.FontName,
		FontSize:     cfg.Media.Caption.FontSize,
		PrimaryColor: cfg.Media.Caption.PrimaryColor,
		OutlineColor: cfg.Media.Caption.OutlineColor,
		Outline:      cfg.Media.Caption.Outline,
		Shadow:       cfg.Media.Caption.Shadow,
		PositionY:    cfg.Media.Caption.PositionY,
	}, logger)

	var transcriber pipeline.Transcriber
	switch cfg.Transcription.Backend {
	case "whisper":
		transcriber = whisper.New(runner, cfg.Transcription.WhisperPath, cfg.Transcription.ModelCacheDir, logger)
	case "gemini":
		t, err := gemini.New(ctx, gemini.Config{
			APIKey:     cfg.Transcription.GeminiAPIKey,
			Model:      cfg.Transcription.GeminiModel,
			MaxRetries: geminiMaxRetries,
			RetryBase:  geminiRetryBase,
		}, toolkit, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini transcriber: %w", err)
		}
		transcriber = t
	default:
		return nil, fmt.Errorf("unsupported transcription backend %q", cfg.Transcription.Backend)
	}

	maxFileBytes := cfg.Worker.MaxFileSizeMB << 20
	deps := pipeline.Deps{
		Fetcher: &pipeline.HTTPFetcher{
			Client:   &http.Client{Timeout: downloadTimeout},
			MaxBytes: maxFileBytes,
			Retries:  uint64(cfg.Worker.DownloadRetries),
			Backoff:  downloadBackoff,
			Logger:   logger,
		},
		Media:               toolkit,
		OutputDir:           cfg.Storage.OutputDir,
		TempDir:             cfg.Worker.TempDir,
		DownloadParallelism: cfg.Worker.DownloadParallelism,
		MaxFileBytes:        maxFileBytes,
		Logger:              logger,
	}

	logger.Info("media pipelines initialized",
		"transcription_backend", cfg.Transcription.Backend,
		"ffmpeg", cfg.Media.FFmpegPath)

	return task.Executors{
		domain.TaskTypeCaption: &pipeline.Caption{
			Deps:            deps,
			Transcriber:     transcriber,
			MaxWordsPerLine: cfg.Media.MaxWordsPerLine,
		},
		domain.TaskTypeMerge:           &pipeline.Merge{Deps: deps},
		domain.TaskTypeBackgroundMusic: &pipeline.BackgroundMusic{Deps: deps},
	}, nil
}

// newApplication assembles the services, the scheduler and the sweeper over
// already-opened infrastructure.
func newApplication(
	cfg *config.Config,
	logger *slog.Logger,
	taskStore store.TaskStore,
	transport queue.Transport,
	emitter *events.InMemoryEventEmitter,
	executors task.Executors,
	fs afero.Fs,
) (*application, error) {
	if err := fs.MkdirAll(cfg.Storage.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	app := &application{
		config:    cfg,
		logger:    logger,
		store:     taskStore,
		transport: transport,
		emitter:   emitter,
		fs:        fs,
		health:    service.NewHealthChecker(taskStore, transport, healthTimeout, logger),
	}

	maxFileBytes := cfg.Worker.MaxFileSizeMB << 20
	var opts []service.TaskServiceOption
	if cfg.Server.CheckSourceSize {
		prober := &pipeline.HTTPFetcher{Client: &http.Client{Timeout: sizeProbeTimeout}, Logger: logger}
		opts = append(opts, service.WithSourceSizeLimit(prober, maxFileBytes))
	}

	var err error
	app.taskService, err = service.NewTaskService(taskStore, transport, emitter, cfg.Server.PublicURL, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	if cfg.Server.RunsWorker() {
		schedCfg := task.DefaultSchedulerConfig()
		schedCfg.Concurrency = cfg.Worker.Concurrency
		schedCfg.PopTimeout = cfg.Queue.PopTimeout
		schedCfg.HeartbeatEvery = cfg.Worker.HeartbeatEvery
		schedCfg.OutputDir = cfg.Storage.OutputDir
		schedCfg.Artifacts = fs
		schedCfg.Timeouts = map[domain.TaskType]time.Duration{
			domain.TaskTypeCaption:         cfg.Worker.Timeouts.Caption,
			domain.TaskTypeMerge:           cfg.Worker.Timeouts.Merge,
			domain.TaskTypeBackgroundMusic: cfg.Worker.Timeouts.BackgroundMusic,
		}
		app.scheduler = task.NewScheduler(transport, taskStore, executors, emitter, schedCfg, logger)

		app.sweeper = sweeper.New(taskStore, transport, fs, sweeper.Config{
			Window:            cfg.Retention.Window,
			Interval:          cfg.Retention.Interval,
			StaleRunningAfter: cfg.Retention.StaleRunningAfter,
			TempMaxAge:        cfg.Retention.TempMaxAge,
			OutputDir:         cfg.Storage.OutputDir,
			TempDir:           workspaceRoot(cfg),
		}, logger)
	}

	logger.Info("application initialized",
		"runs_api", cfg.Server.RunsAPI(),
		"runs_worker", cfg.Server.RunsWorker())
	return app, nil
}

// Run starts every loop of the configured role and blocks until ctx is
// cancelled and all of them have stopped.
func (app *application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if app.config.Server.RunsAPI() {
		router := app.setupRouter()
		g.Go(func() error {
			return app.startHTTPServer(ctx, router)
		})
	}
	if app.scheduler != nil {
		g.Go(func() error {
			return app.scheduler.Run(ctx)
		})
	}
	if app.sweeper != nil {
		g.Go(func() error {
			return app.sweeper.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("application stopped: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	closeAll(app.closers, app.logger)
	app.logger.Info("application shutdown completed")
}

func closeAll(closers []func() error, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && !errors.Is(err, queue.ErrClosed) {
			logger.Error("error releasing resource", "error", err)
		}
	}
}

// workspaceRoot is the directory pipelines create their workspaces in.
func workspaceRoot(cfg *config.Config) string {
	if cfg.Worker.TempDir != "" {
		return cfg.Worker.TempDir
	}
	return os.TempDir()
}

func drainNATS(nc *nats.Conn) error {
	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}
