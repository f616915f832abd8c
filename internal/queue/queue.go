package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
)

// Common errors returned by transports.
var (
	ErrClosed         = errors.New("queue transport is closed")
	ErrFull           = errors.New("queue transport is full")
	ErrInvalidPointer = errors.New("invalid queue pointer")
)

// Pointer is the message carried by the transport.
type Pointer struct {
	TaskID   uuid.UUID       `json:"task_id"`
	TaskType domain.TaskType `json:"task_type"`
}

// NewPointer builds the pointer for task.
func NewPointer(task *domain.Task) Pointer {
	return Pointer{TaskID: task.ID, TaskType: task.Type}
}

// Validate checks that the pointer names a task.
func (p Pointer) Validate() error {
	if p.TaskID == uuid.Nil {
		return fmt.Errorf("%w: empty task id", ErrInvalidPointer)
	}
	if !p.TaskType.Valid() {
		return fmt.Errorf("%w: task type %q", ErrInvalidPointer, p.TaskType)
	}
	return nil
}

// Encode serializes the pointer for the wire.
func (p Pointer) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// DecodePointer parses a pointer read from the wire.
func DecodePointer(data []byte) (Pointer, error) {
	var p Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return Pointer{}, fmt.Errorf("%w: %v", ErrInvalidPointer, err)
	}
	if err := p.Validate(); err != nil {
		return Pointer{}, err
	}
	return p, nil
}

// Transport is the hand-off channel between admission and the scheduler.
type Transport interface {
	// Push appends a pointer to the tail of the queue and records its metadata
	// entry.
	Push(ctx context.Context, p Pointer) error

	// Pop removes the pointer at the head of the queue. It blocks for at most
	// timeout and reports false, without error, when nothing arrived in time.
	Pop(ctx context.Context, timeout time.Duration) (Pointer, bool, error)

	// Return puts a popped pointer back at the head of the queue so that the next
	// Pop delivers it first.
	Return(ctx context.Context, p Pointer) error

	// Len reports the number of pointers waiting.
	Len(ctx context.Context) (int64, error)

	// DeleteMeta removes the metadata entry recorded for id. Missing entries are
	// not an error.
	DeleteMeta(ctx context.Context, id uuid.UUID) error

	// Ping reports whether the transport is reachable.
	Ping(ctx context.Context) error
}
