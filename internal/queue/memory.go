package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Transport backed by a mutex-guarded slice.
// It is safe for concurrent use by any number of producers and consumers.
type Memory struct {
	mutex    sync.Mutex
	items    []Pointer
	meta     map[uuid.UUID]time.Time
	capacity int
	closed   bool
	// notify is closed and replaced whenever items become available or the
	// transport closes, waking every blocked Pop.
	notify chan struct{}
	logger *slog.Logger
}

var _ Transport = (*Memory)(nil)

// NewMemory creates an in-memory transport. A capacity of zero means unbounded.
func NewMemory(capacity int, logger *slog.Logger) *Memory {
	return &Memory{
		meta:     make(map[uuid.UUID]time.Time),
		capacity: capacity,
		notify:   make(chan struct{}),
		logger:   logger,
	}
}

// Push appends p to the tail of the queue.
func (q *Memory) Push(ctx context.Context, p Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrFull
	}
	q.items = append(q.items, p)
	q.meta[p.TaskID] = time.Now().UTC()
	q.wakeLocked()

	q.logger.Debug("pointer enqueued",
		"task_id", p.TaskID,
		"task_type", p.TaskType,
		"queue_len", len(q.items))
	return nil
}

// Pop removes the pointer at the head of the queue, waiting up to timeout.
func (q *Memory) Pop(ctx context.Context, timeout time.Duration) (Pointer, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mutex.Lock()
		if len(q.items) > 0 {
			p := q.items[0]
			q.items[0] = Pointer{}
			q.items = q.items[1:]
			q.mutex.Unlock()
			return p, true, nil
		}
		if q.closed {
			q.mutex.Unlock()
			return Pointer{}, false, ErrClosed
		}
		wait := q.notify
		q.mutex.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return Pointer{}, false, nil
		case <-ctx.Done():
			return Pointer{}, false, ctx.Err()
		}
	}
}

// Return puts p back at the head of the queue. It ignores the capacity bound so
// that a consumer can always give back what it took.
func (q *Memory) Return(ctx context.Context, p Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append([]Pointer{p}, q.items...)
	q.wakeLocked()
	return nil
}

// Len reports the number of waiting pointers.
func (q *Memory) Len(ctx context.Context) (int64, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return int64(len(q.items)), nil
}

// DeleteMeta forgets the metadata entry for id.
func (q *Memory) DeleteMeta(ctx context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	delete(q.meta, id)
	return nil
}

// HasMeta reports whether a metadata entry exists for id.
func (q *Memory) HasMeta(id uuid.UUID) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	_, ok := q.meta[id]
	return ok
}

// Ping fails once the transport is closed.
func (q *Memory) Ping(ctx context.Context) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

// Close rejects further pushes and wakes blocked consumers. Pointers still
// queued are dropped; their records stay queued in the store.
func (q *Memory) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if !q.closed {
		q.closed = true
		q.wakeLocked()
		q.logger.Info("memory queue closed", "dropped", len(q.items))
	}
}

func (q *Memory) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
