package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/pipeline"
	"github.com/phrazzld/vidq/internal/store"
	"github.com/spf13/afero"
)

// MetaStore removes the per-task metadata kept next to the queue.
type MetaStore interface {
	DeleteMeta(ctx context.Context, id uuid.UUID) error
}

// Config controls retention.
type Config struct {
	// Window is how long a record lives, measured from completion or, for
	// unfinished records, from creation.
	Window time.Duration
	// Interval is the time between passes in Run.
	Interval time.Duration
	// StaleRunningAfter fails running records not updated for this long.
	// Zero disables the check.
	StaleRunningAfter time.Duration
	// TempMaxAge is the age after which abandoned workspaces are removed.
	TempMaxAge time.Duration
	OutputDir  string
	TempDir    string
	// BatchSize bounds each store query.
	BatchSize int
}

// Report summarises one pass.
type Report struct {
	StaleFailed      int `json:"stale_failed"`
	Expired          int `json:"expired"`
	ArtifactsRemoved int `json:"artifacts_removed"`
	OrphansRemoved   int `json:"orphans_removed"`
	PartialsRemoved  int `json:"partials_removed"`
	TempDirsRemoved  int `json:"temp_dirs_removed"`
}

// Changed reports whether the pass modified anything.
func (r Report) Changed() bool {
	return r != Report{}
}

// Sweeper runs retention passes.
type Sweeper struct {
	store  store.TaskStore
	meta   MetaStore
	fs     afero.Fs
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Sweeper. Production code passes afero.NewOsFs().
func New(taskStore store.TaskStore, meta MetaStore, fs afero.Fs, config Config, logger *slog.Logger) *Sweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &Sweeper{
		store:  taskStore,
		meta:   meta,
		fs:     fs,
		config: config,
		logger: logger.With("component", "sweeper"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run performs a pass immediately and then every Interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.config.Interval, "window", s.config.Window)
	for {
		s.pass(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	started := time.Now()
	report, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep completed with errors", "error", err, "report", report)
		return
	}
	if report.Changed() {
		s.logger.Info("sweep completed", "report", report, "duration", time.Since(started))
	} else {
		s.logger.Debug("sweep found nothing to do", "duration", time.Since(started))
	}
}

// Sweep performs one pass. It keeps going after individual failures and
// returns them joined.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	now := s.now()

	errs := []error{
		s.failStale(ctx, now, &report),
		s.expire(ctx, now, &report),
		s.removeOrphans(ctx, &report),
		s.removeTempDirs(now, &report),
	}
	return report, errors.Join(errs...)
}

// failStale completes running records whose worker stopped reporting.
func (s *Sweeper) failStale(ctx context.Context, now time.Time, report *Report) error {
	if s.config.StaleRunningAfter <= 0 {
		return nil
	}
	stale, err := s.store.Query(ctx, store.TaskFilter{
		Status:        domain.TaskStatusRunning,
		UpdatedBefore: now.Add(-s.config.StaleRunningAfter),
		Limit:         s.config.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to query stale tasks: %w", err)
	}

	var errs []error
	for _, task := range stale {
		outcome := domain.FailedWithKind(domain.FailureWorkerLost,
			fmt.Errorf("no outcome recorded within %s of starting", s.config.StaleRunningAfter))
		ok, err := s.store.Complete(ctx, task.ID, outcome, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to fail stale task %s: %w", task.ID, err))
			continue
		}
		if ok {
			report.StaleFailed++
			s.logger.Warn("failed stale running task", "task_id", task.ID, "task_type", task.Type,
				"updated_at", task.UpdatedAt)
		}
	}
	return errors.Join(errs...)
}

// expire deletes records past the retention window along with their artifacts
// and queue metadata.
func (s *Sweeper) expire(ctx context.Context, now time.Time, report *Report) error {
	cutoff := now.Add(-s.config.Window)
	for {
		expired, err := s.store.Query(ctx, store.TaskFilter{
			ExpiredBefore: cutoff,
			Limit:         s.config.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("failed to query expired tasks: %w", err)
		}

		var errs []error
		for _, task := range expired {
			if err := s.expireTask(ctx, task, report); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			// Stop rather than fetch the same failing batch again.
			return errors.Join(errs...)
		}
		if len(expired) < s.config.BatchSize {
			return nil
		}
	}
}

func (s *Sweeper) expireTask(ctx context.Context, task *domain.Task, report *Report) error {
	for _, name := range []string{
		domain.ArtifactName(task.ID, task.Type),
		domain.PartialArtifactName(task.ID, task.Type),
	} {
		removed, err := s.removeFile(filepath.Join(s.config.OutputDir, name))
		if err != nil {
			return fmt.Errorf("failed to remove artifact of task %s: %w", task.ID, err)
		}
		if removed {
			report.ArtifactsRemoved++
		}
	}
	if err := s.meta.DeleteMeta(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to remove queue metadata of task %s: %w", task.ID, err)
	}
	if err := s.store.Delete(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", task.ID, err)
	}
	report.Expired++
	s.logger.Debug("expired task", "task_id", task.ID, "task_type", task.Type, "status", task.Status)
	return nil
}

// removeOrphans deletes output files no live record accounts for.
func (s *Sweeper) removeOrphans(ctx context.Context, report *Report) error {
	entries, err := afero.ReadDir(s.fs, s.config.OutputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to list output directory: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		partial := strings.HasSuffix(name, ".partial")

		keep, err := s.accountedFor(ctx, name, partial)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if keep {
			continue
		}
		removed, err := s.removeFile(filepath.Join(s.config.OutputDir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to remove orphan %q: %w", name, err))
			continue
		}
		if !removed {
			continue
		}
		if partial {
			report.PartialsRemoved++
		} else {
			report.OrphansRemoved++
		}
		s.logger.Info("removed orphaned output file", "file", name)
	}
	return errors.Join(errs...)
}

// accountedFor reports whether an output file belongs to a live record. A
// partial file is only kept while its owner is still running.
func (s *Sweeper) accountedFor(ctx context.Context, name string, partial bool) (bool, error) {
	parse := domain.ParseArtifactName
	if partial {
		parse = domain.ParsePartialArtifactName
	}
	id, taskType, err := parse(name)
	if err != nil {
		return false, nil
	}

	task, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up owner of %q: %w", name, err)
	}
	if task.Type != taskType {
		return false, nil
	}
	if partial {
		return task.Status == domain.TaskStatusRunning, nil
	}
	return true, nil
}

// removeTempDirs deletes abandoned workspaces older than TempMaxAge.
func (s *Sweeper) removeTempDirs(now time.Time, report *Report) error {
	if s.config.TempDir == "" || s.config.TempMaxAge <= 0 {
		return nil
	}
	entries, err := afero.ReadDir(s.fs, s.config.TempDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to list temp directory: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), pipeline.WorkspacePrefix) {
			continue
		}
		if now.Sub(entry.ModTime()) < s.config.TempMaxAge {
			continue
		}
		if err := s.fs.RemoveAll(filepath.Join(s.config.TempDir, entry.Name())); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove workspace %q: %w", entry.Name(), err))
			continue
		}
		report.TempDirsRemoved++
		s.logger.Info("removed abandoned workspace", "dir", entry.Name(), "modified", entry.ModTime())
	}
	return errors.Join(errs...)
}

// removeFile removes path and reports whether it existed.
func (s *Sweeper) removeFile(path string) (bool, error) {
	err := s.fs.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
