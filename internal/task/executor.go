package task

import (
	"context"

	"github.com/phrazzld/vidq/internal/domain"
)

// Executor performs the work of one task type and returns the result reference
// of the artifact it produced.
type Executor interface {
	Execute(ctx context.Context, task *domain.Task) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task *domain.Task) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task *domain.Task) (string, error) {
	return f(ctx, task)
}

// Executors maps each task type to the executor that handles it.
type Executors map[domain.TaskType]Executor
