package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/events"
	"github.com/phrazzld/vidq/internal/platform/logger"
	"github.com/phrazzld/vidq/internal/queue"
	"github.com/phrazzld/vidq/internal/store"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/spf13/afero"
)

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// Concurrency bounds how many tasks execute at once.
	// If zero or negative, defaults to 1.
	Concurrency int

	// PopTimeout bounds each blocking wait on the queue so that shutdown is
	// noticed promptly.
	PopTimeout time.Duration

	// Timeouts is the hard execution limit per task type. A missing or zero
	// entry means no limit.
	Timeouts map[domain.TaskType]time.Duration

	// HeartbeatEvery logs queue depth every so many loop iterations.
	HeartbeatEvery int

	// StoreTimeout bounds each store call made on behalf of one task.
	StoreTimeout time.Duration

	// OutputDir is where executors place artifacts. A success that can no
	// longer be recorded has its artifact removed from here.
	OutputDir string

	// Artifacts is the filesystem holding OutputDir. Nil means the OS filesystem.
	Artifacts afero.Fs
}

// DefaultSchedulerConfig returns a SchedulerConfig with reasonable defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Concurrency: 3,
		PopTimeout:  5 * time.Second,
		Timeouts: map[domain.TaskType]time.Duration{
			domain.TaskTypeCaption:         30 * time.Minute,
			domain.TaskTypeMerge:           45 * time.Minute,
			domain.TaskTypeBackgroundMusic: 20 * time.Minute,
		},
		HeartbeatEvery: 20,
		StoreTimeout:   10 * time.Second,
	}
}

// transportRetryDelay is how long the loop waits after a queue error.
const transportRetryDelay = time.Second

// Scheduler consumes queue pointers and executes the referenced tasks.
type Scheduler struct {
	transport queue.Transport
	store     store.TaskStore
	executors Executors
	emitter   events.EventEmitter
	config    SchedulerConfig
	logger    *slog.Logger
	slots     chan struct{}
	now       func() time.Time
}

// NewScheduler creates a Scheduler. A nil emitter disables lifecycle events.
func NewScheduler(
	transport queue.Transport,
	taskStore store.TaskStore,
	executors Executors,
	emitter events.EventEmitter,
	config SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	logger = logger.With("component", "scheduler")
	if config.Concurrency <= 0 {
		logger.Warn("invalid concurrency specified, using default",
			"specified_count", config.Concurrency,
			"default_count", 1)
		config.Concurrency = 1
	}
	if config.PopTimeout <= 0 {
		config.PopTimeout = DefaultSchedulerConfig().PopTimeout
	}
	if config.HeartbeatEvery <= 0 {
		config.HeartbeatEvery = DefaultSchedulerConfig().HeartbeatEvery
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultSchedulerConfig().StoreTimeout
	}
	if config.Artifacts == nil {
		config.Artifacts = afero.NewOsFs()
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Scheduler{
		transport: transport,
		store:     taskStore,
		executors: executors,
		emitter:   emitter,
		config:    config,
		logger:    logger,
		slots:     make(chan struct{}, config.Concurrency),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InFlight reports how many executions currently hold a slot.
func (s *Scheduler) InFlight() int {
	return len(s.slots)
}

// Run consumes the queue until ctx is cancelled, then waits for in-flight
// executions to finish. Executions do not observe ctx; only their hard timeout
// bounds them. Run returns nil after a clean shutdown and an error only when
// the transport is closed underneath it.
func (s *Scheduler) Run(ctx context.Context) error {
	var inFlight conc.WaitGroup
	defer func() {
		s.logger.Info("waiting for in-flight tasks", "in_flight", s.InFlight())
		inFlight.Wait()
		s.logger.Info("scheduler stopped")
	}()

	s.logger.Info("scheduler started",
		"concurrency", s.config.Concurrency,
		"pop_timeout", s.config.PopTimeout)

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			return nil
		}
		if iteration%s.config.HeartbeatEvery == 0 {
			s.heartbeat(ctx)
		}

		p, ok, err := s.transport.Pop(ctx, s.config.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrClosed) {
				return fmt.Errorf("queue transport closed: %w", err)
			}
			s.logger.Error("failed to pop from queue", "error", err)
			if !sleepCtx(ctx, transportRetryDelay) {
				return nil
			}
			continue
		}
		if !ok {
			continue
		}

		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			s.giveBack(p)
			return nil
		}

		task := s.claim(ctx, p)
		if task == nil {
			<-s.slots
			continue
		}

		inFlight.Go(func() {
			defer func() { <-s.slots }()
			s.execute(ctx, task)
		})
	}
}

// giveBack returns a popped pointer to the head of the queue during shutdown.
func (s *Scheduler) giveBack(p queue.Pointer) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.StoreTimeout)
	defer cancel()
	if err := s.transport.Return(ctx, p); err != nil {
		s.logger.Error("failed to return pointer during shutdown",
			"task_id", p.TaskID,
			"error", err)
		return
	}
	s.logger.Info("returned pointer to queue during shutdown", "task_id", p.TaskID)
}

// claim loads the record behind p and moves it to running. It returns nil when
// the pointer is to be discarded.
func (s *Scheduler) claim(ctx context.Context, p queue.Pointer) *domain.Task {
	log := s.logger.With("task_id", p.TaskID, "task_type", p.TaskType)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StoreTimeout)
	defer cancel()

	task, err := s.store.Get(ctx, p.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.Debug("discarding pointer without record")
			return nil
		}
		log.Error("reconciliation gap: failed to load task, leaving it in place", "error", err)
		return nil
	}
	if task.Status != domain.TaskStatusQueued {
		log.Debug("discarding pointer for task that is not queued", "status", task.Status)
		return nil
	}

	claimed, err := s.store.MarkRunning(ctx, task.ID, s.now())
	if err != nil {
		log.Error("reconciliation gap: failed to claim task, leaving it queued", "error", err)
		return nil
	}
	if !claimed {
		log.Debug("task claimed by another worker")
		return nil
	}
	task.Status = domain.TaskStatusRunning
	return task
}

// execute runs a claimed task to its terminal state.
func (s *Scheduler) execute(parent context.Context, task *domain.Task) {
	log := s.logger.With("task_id", task.ID, "task_type", task.Type)
	ctx := logger.WithLogger(context.WithoutCancel(parent), log)

	s.emit(ctx, events.NewTaskEvent(task.ID, task.Type, domain.TaskStatusRunning, s.now()))
	log.Info("processing task")

	started := time.Now()
	outcome := s.run(ctx, task)

	if outcome.Status == domain.TaskStatusSuccess {
		log.Info("task completed successfully",
			"result_reference", outcome.ResultReference,
			"duration", time.Since(started))
	} else {
		log.Error("task execution failed",
			"error", outcome.Error,
			"duration", time.Since(started))
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()
	completedAt := s.now()
	ok, err := s.store.Complete(storeCtx, task.ID, outcome, completedAt)
	if err != nil {
		log.Error("reconciliation gap: failed to record outcome", "status", outcome.Status, "error", err)
		return
	}
	if !ok {
		log.Warn("task was no longer running when its outcome was recorded", "status", outcome.Status)
		if outcome.Status == domain.TaskStatusSuccess {
			s.discardArtifact(ctx, task)
		}
		return
	}
	s.emit(ctx, events.NewOutcomeEvent(task.ID, task.Type, outcome, completedAt))
}

// discardArtifact removes the artifact of an execution whose success was not
// recorded, so no file outlives the record that would account for it.
func (s *Scheduler) discardArtifact(ctx context.Context, task *domain.Task) {
	if s.config.OutputDir == "" {
		return
	}
	name := domain.ArtifactName(task.ID, task.Type)
	err := s.config.Artifacts.Remove(filepath.Join(s.config.OutputDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.FromContext(ctx).Error("failed to remove unrecorded artifact", "file", name, "error", err)
		return
	}
	logger.FromContext(ctx).Info("removed unrecorded artifact", "file", name)
}

// run dispatches task to its executor under the type's hard timeout and turns
// every result, including panics, into an outcome.
func (s *Scheduler) run(ctx context.Context, task *domain.Task) domain.Outcome {
	executor, ok := s.executors[task.Type]
	if !ok {
		return domain.FailedWithKind(domain.FailureInternal,
			fmt.Errorf("no executor registered for task type %q", task.Type))
	}

	timeout := s.config.Timeouts[task.Type]
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		ref     string
		execErr error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		ref, execErr = executor.Execute(ctx, task)
	})
	if r := catcher.Recovered(); r != nil {
		logger.FromContext(ctx).Error("executor panicked",
			"panic", fmt.Sprint(r.Value),
			"stack", string(r.Stack))
		return domain.FailedWithKind(domain.FailureInternal, fmt.Errorf("executor panicked: %v", r.Value))
	}

	if execErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.FailedWithKind(domain.FailureTimeout,
				fmt.Errorf("exceeded %s limit: %w", timeout, execErr))
		}
		return domain.Failed(execErr)
	}
	if ref == "" {
		return domain.FailedWithKind(domain.FailureInternal, errors.New("executor returned no result"))
	}
	return domain.Succeeded(ref)
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	length, err := s.transport.Len(ctx)
	if err != nil {
		s.logger.Warn("heartbeat: failed to read queue length", "error", err)
		return
	}
	s.logger.Info("heartbeat", "queue_length", length, "in_flight", s.InFlight())
}

func (s *Scheduler) emit(ctx context.Context, event *events.TaskEvent) {
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("failed to emit task event",
			"status", event.Status,
			"error", err)
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
