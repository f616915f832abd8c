// Package redisqueue implements queue.Transport on a Redis list.
//
// Pointers are LPUSHed onto the list and BRPOPed from its other end, which gives
// FIFO delivery; Return RPUSHes so the pointer is the next one popped. Next to the
// list every task gets a metadata key holding the pointer with a TTL equal to the
// retention window. The sweeper deletes it when the record expires.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/queue"
	"github.com/redis/go-redis/v9"
)

// minBlock is the smallest timeout BRPOP accepts; Redis treats 0 as "forever".
const minBlock = time.Second

// Config holds the transport settings.
type Config struct {
	// Name is the list key. Defaults to "vidq:queue".
	Name string
	// MetaPrefix is prepended to the task id to form metadata keys.
	// Defaults to "vidq:task:".
	MetaPrefix string
	// MetaTTL is the lifetime of metadata entries.
	MetaTTL time.Duration
}

// Transport is a Redis-backed queue.Transport.
type Transport struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

var _ queue.Transport = (*Transport)(nil)

// Open parses a redis:// URL and returns a transport bound to a new client.
func Open(url string, cfg Config, logger *slog.Logger) (*Transport, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), cfg, logger), nil
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config, logger *slog.Logger) *Transport {
	if cfg.Name == "" {
		cfg.Name = "vidq:queue"
	}
	if cfg.MetaPrefix == "" {
		cfg.MetaPrefix = "vidq:task:"
	}
	return &Transport{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "redis_queue", "queue", cfg.Name),
	}
}

func (t *Transport) metaKey(id uuid.UUID) string {
	return t.cfg.MetaPrefix + id.String()
}

// Push records the metadata entry and appends the pointer in one transaction.
func (t *Transport) Push(ctx context.Context, p queue.Pointer) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, t.metaKey(p.TaskID), data, t.cfg.MetaTTL)
		pipe.LPush(ctx, t.cfg.Name, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push pointer for task %s: %w", p.TaskID, err)
	}

	t.logger.Debug("pointer enqueued", "task_id", p.TaskID, "task_type", p.TaskType)
	return nil
}

// Pop blocks on BRPOP for up to timeout, rounded up to one second.
// Malformed messages are dropped and logged; the call then reports no pointer.
func (t *Transport) Pop(ctx context.Context, timeout time.Duration) (queue.Pointer, bool, error) {
	if timeout < minBlock {
		timeout = minBlock
	}

	res, err := t.client.BRPop(ctx, timeout, t.cfg.Name).Result()
	if errors.Is(err, redis.Nil) {
		return queue.Pointer{}, false, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return queue.Pointer{}, false, ctxErr
		}
		if errors.Is(err, redis.ErrClosed) {
			return queue.Pointer{}, false, queue.ErrClosed
		}
		return queue.Pointer{}, false, fmt.Errorf("failed to pop pointer: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return queue.Pointer{}, false, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}

	p, err := queue.DecodePointer([]byte(res[1]))
	if err != nil {
		t.logger.Warn("dropping malformed queue message", "error", err)
		return queue.Pointer{}, false, nil
	}
	return p, true, nil
}

// Return pushes p back onto the popping end of the list.
func (t *Transport) Return(ctx context.Context, p queue.Pointer) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := t.client.RPush(ctx, t.cfg.Name, data).Err(); err != nil {
		return fmt.Errorf("failed to return pointer for task %s: %w", p.TaskID, err)
	}
	return nil
}

// Len reports the list length.
func (t *Transport) Len(ctx context.Context) (int64, error) {
	n, err := t.client.LLen(ctx, t.cfg.Name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// DeleteMeta removes the metadata key for id.
func (t *Transport) DeleteMeta(ctx context.Context, id uuid.UUID) error {
	if err := t.client.Del(ctx, t.metaKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete metadata for task %s: %w", id, err)
	}
	return nil
}

// Ping checks the connection.
func (t *Transport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (t *Transport) Close() error {
	return t.client.Close()
}
