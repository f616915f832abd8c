// Package toolexec runs external command-line tools such as ffmpeg and whisper.
//
// A failed invocation yields a *ToolError carrying the exit code and the tail of
// the tool's stderr, which is where media tools explain themselves. Invocations
// end when their context does; a cancelled or timed-out run returns the context
// error so callers can tell a timeout from a tool failure.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/phrazzld/vidq/internal/redact"
)

// StderrTailLimit bounds the stderr kept for error reporting.
const StderrTailLimit = 2 << 10

// ToolError describes a tool that ran and exited unsuccessfully.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// Unwrap returns the underlying exec error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes a tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	Logger *slog.Logger
	// Dir is the working directory of spawned tools; empty means inherit.
	Dir string
}

var _ Runner = (*ExecRunner)(nil)

// Run starts name with args and waits for it. Stdout is returned in full; stderr
// is kept only up to StderrTailLimit bytes from its end.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	// Give the tool a moment to exit after SIGKILL before abandoning its pipes.
	cmd.WaitDelay = 5 * time.Second

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: StderrTailLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	if r.Logger != nil {
		r.Logger.Debug("tool finished",
			"tool", name,
			"duration", time.Since(start),
			"error", err)
	}
	if err == nil {
		return stdout.Bytes(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s interrupted: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &ToolError{
			Tool:     name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   redact.String(stderr.String()),
			Err:      err,
		}
	}
	return nil, fmt.Errorf("failed to run %s: %w", name, err)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.limit {
		b.buf = append(b.buf[:0], p[len(p)-b.limit:]...)
		return n, nil
	}
	if over := len(b.buf) + len(p) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	return redact.Tail(string(b.buf), b.limit)
}
