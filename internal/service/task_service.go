package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/events"
	"github.com/phrazzld/vidq/internal/queue"
	"github.com/phrazzld/vidq/internal/store"
	"golang.org/x/sync/errgroup"
)

// sizeProbeParallelism bounds concurrent source size lookups during admission.
const sizeProbeParallelism = 8

// TaskService admits tasks and reports on them.
type TaskService interface {
	// Submit validates raw input for taskType, persists a queued record and hands
	// a pointer to the queue. When the hand-off fails the record is removed.
	Submit(ctx context.Context, taskType domain.TaskType, raw []byte) (*domain.Task, error)

	// Get returns the task with the given id.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// View returns the client-facing status of the task with the given id.
	View(ctx context.Context, id uuid.UUID) (*TaskView, error)

	// Requeue pushes a fresh pointer for a task that is still queued, for
	// instance after its pointer was lost. Any other status is rejected.
	Requeue(ctx context.Context, id uuid.UUID) error
}

// TaskServiceError wraps unexpected errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "requeue")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// It returns known sentinel errors directly without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// TaskView is the status of a task as shown to clients.
type TaskView struct {
	TaskID      uuid.UUID         `json:"task_id"`
	TaskType    domain.TaskType   `json:"task_type"`
	Status      domain.TaskStatus `json:"status"`
	VideoURL    string            `json:"video_url,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// NewTaskView builds the client view of task. The video URL is the public base
// URL joined with /video/ and the result reference.
func NewTaskView(task *domain.Task, publicURL string) *TaskView {
	view := &TaskView{
		TaskID:      task.ID,
		TaskType:    task.Type,
		Status:      task.Status,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		CompletedAt: task.CompletedAt,
	}
	if task.Status == domain.TaskStatusSuccess && task.ResultReference != "" {
		view.VideoURL = strings.TrimRight(publicURL, "/") + "/video/" + task.ResultReference
	}
	return view
}

// SizeProber reports the declared size in bytes of a remote source. Zero means
// the size is unknown.
type SizeProber interface {
	Size(ctx context.Context, url string) (int64, error)
}

// TaskServiceOption configures optional TaskService behavior.
type TaskServiceOption func(*taskServiceImpl)

// WithSourceSizeLimit makes Submit look up the size of every source with prober
// and reject a task when one source declares more than maxBytes, or all of
// them together more than maxBytes times the budget of the task type.
func WithSourceSizeLimit(prober SizeProber, maxBytes int64) TaskServiceOption {
	return func(s *taskServiceImpl) {
		s.prober = prober
		s.maxSourceBytes = maxBytes
	}
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	store          store.TaskStore
	transport      queue.Transport
	emitter        events.EventEmitter
	publicURL      string
	prober         SizeProber
	maxSourceBytes int64
	logger         *slog.Logger
	now            func() time.Time
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	taskStore store.TaskStore,
	transport queue.Transport,
	emitter events.EventEmitter,
	publicURL string,
	logger *slog.Logger,
	opts ...TaskServiceOption,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "taskStore cannot be nil"}
	}
	if transport == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "transport cannot be nil"}
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc := &taskServiceImpl{
		store:     taskStore,
		transport: transport,
		emitter:   emitter,
		publicURL: publicURL,
		logger:    logger.With("component", "task_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *taskServiceImpl) Submit(ctx context.Context, taskType domain.TaskType, raw []byte) (*domain.Task, error) {
	input, err := domain.NormalizeInput(taskType, raw)
	if err != nil {
		return nil, err
	}
	if s.prober != nil && s.maxSourceBytes > 0 {
		if err := s.checkSourceSizes(ctx, taskType, input); err != nil {
			return nil, err
		}
	}
	task, err := domain.NewTask(taskType, input, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, task); err != nil {
		s.logger.Error("failed to persist task", "task_type", taskType, "error", err)
		return nil, NewTaskServiceError("submit", "failed to persist task", err)
	}

	if err := s.transport.Push(ctx, queue.NewPointer(task)); err != nil {
		s.logger.Error("failed to enqueue task, removing record",
			"task_id", task.ID,
			"task_type", taskType,
			"error", err)
		// Use a fresh context: the request may already be gone.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := s.store.Delete(cleanupCtx, task.ID); delErr != nil {
			s.logger.Error("failed to remove unqueued task record", "task_id", task.ID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	s.logger.Info("task accepted", "task_id", task.ID, "task_type", taskType)
	if err := s.emitter.EmitEvent(ctx, events.NewTaskEvent(task.ID, task.Type, task.Status, task.CreatedAt)); err != nil {
		s.logger.Warn("failed to emit task event", "task_id", task.ID, "error", err)
	}
	return task, nil
}

// checkSourceSizes enforces the admission size limits. Sources whose size cannot
// be looked up are admitted; the download limit still applies to them.
func (s *taskServiceImpl) checkSourceSizes(ctx context.Context, taskType domain.TaskType, input []byte) error {
	urls, err := domain.SourceURLs(taskType, input)
	if err != nil {
		return err
	}

	sizes := make([]int64, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeProbeParallelism)
	for i, u := range urls {
		g.Go(func() error {
			size, err := s.prober.Size(gctx, u)
			if size > s.maxSourceBytes {
				return fmt.Errorf("%w: source %d declares %d MB, limit is %d MB",
					ErrSourceTooLarge, i, size>>20, s.maxSourceBytes>>20)
			}
			if err != nil {
				s.logger.Warn("source size unavailable, admitting without check",
					"task_type", taskType, "source", i, "error", err)
				return nil
			}
			sizes[i] = size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var total int64
	for _, size := range sizes {
		total += size
	}
	if limit := s.maxSourceBytes * domain.SourceBudget(taskType); total > limit {
		return fmt.Errorf("%w: sources declare %d MB in total, limit is %d MB",
			ErrSourceTooLarge, total>>20, limit>>20)
	}
	return nil
}

func (s *taskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get", "failed to load task", err)
	}
	return task, nil
}

func (s *taskServiceImpl) View(ctx context.Context, id uuid.UUID) (*TaskView, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewTaskView(task, s.publicURL), nil
}

func (s *taskServiceImpl) Requeue(ctx context.Context, id uuid.UUID) error {
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusQueued {
		return fmt.Errorf("%w: status is %s", ErrNotRequeueable, task.Status)
	}
	if err := s.transport.Push(ctx, queue.NewPointer(task)); err != nil {
		s.logger.Error("failed to requeue task", "task_id", id, "error", err)
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	s.logger.Info("task requeued", "task_id", id, "task_type", task.Type)
	return nil
}
