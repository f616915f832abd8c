package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/logger"
	"github.com/phrazzld/vidq/internal/store"
)

const taskColumns = `id, task_type, status, input, result_reference, error, created_at, updated_at, completed_at`

// TaskStore implements store.TaskStore on a SQL database.
// Status changes are conditional single-statement updates; the affected row
// count tells the caller whether it won the transition.
type TaskStore struct {
	db      store.DBTX
	dialect Dialect
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore for db speaking dialect.
func NewTaskStore(db store.DBTX, dialect Dialect) *TaskStore {
	return &TaskStore{db: db, dialect: dialect}
}

// Insert persists a new task record.
func (s *TaskStore) Insert(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := s.dialect.Rebind(`
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		string(task.Type),
		string(task.Status),
		string(task.Input),
		nullString(task.ResultReference),
		nullString(task.Error),
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
		nullTime(task.CompletedAt),
	)
	if err != nil {
		log.Error("failed to insert task",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		return store.NewStoreError("task", "insert", "failed to insert task", MapError(err))
	}
	return nil
}

// Get retrieves a task by id.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := s.dialect.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get task", "task_id", id, "error", err)
		return nil, store.NewStoreError("task", "get", "failed to get task", MapError(err))
	}
	return task, nil
}

// MarkRunning performs the conditional queued->running update.
func (s *TaskStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := s.dialect.Rebind(`
		UPDATE tasks
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		string(domain.TaskStatusRunning),
		at.UTC(),
		id,
		string(domain.TaskStatusQueued),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to mark task running", "task_id", id, "error", err)
		return false, store.NewStoreError("task", "mark_running", "failed to mark task running", MapError(err))
	}
	return wonUpdate(result)
}

// Complete writes the terminal outcome of a running task in one statement.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID, outcome domain.Outcome, at time.Time) (bool, error) {
	if err := outcome.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := s.dialect.Rebind(`
		UPDATE tasks
		SET status = ?, result_reference = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`)

	completed := at.UTC()
	result, err := s.db.ExecContext(ctx, query,
		string(outcome.Status),
		nullString(outcome.ResultReference),
		nullString(outcome.Error),
		completed,
		completed,
		id,
		string(domain.TaskStatusRunning),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to complete task",
			"task_id", id,
			"status", outcome.Status,
			"error", err)
		return false, store.NewStoreError("task", "complete", "failed to complete task", MapError(err))
	}
	return wonUpdate(result)
}

// Query returns the records matching filter ordered by creation time.
func (s *TaskStore) Query(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.ExpiredBefore.IsZero() {
		conds = append(conds, "COALESCE(completed_at, created_at) < ?")
		args = append(args, filter.ExpiredBefore.UTC())
	}
	if !filter.UpdatedBefore.IsZero() {
		conds = append(conds, "updated_at < ?")
		args = append(args, filter.UpdatedBefore.UTC())
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query tasks", "error", err)
		return nil, store.NewStoreError("task", "query", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// Delete hard-deletes a record.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := s.dialect.Rebind(`DELETE FROM tasks WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		logger.FromContext(ctx).Error("failed to delete task", "task_id", id, "error", err)
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}
	return nil
}

// Ping checks that the database answers a trivial query.
func (s *TaskStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		taskType    string
		status      string
		input       []byte
		result      sql.NullString
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&task.ID,
		&taskType,
		&status,
		&input,
		&result,
		&errMsg,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	task.Input = input
	task.ResultReference = result.String
	task.Error = errMsg.String
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		task.CompletedAt = &t
	}
	return &task, nil
}

// wonUpdate reports whether a conditional update touched its row.
func wonUpdate(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
