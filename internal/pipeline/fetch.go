package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrFileTooLarge is returned when a download exceeds the size limit.
var ErrFileTooLarge = errors.New("remote file exceeds size limit")

// StatusError is an unexpected HTTP status from an input URL.
type StatusError struct {
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// Transient reports whether retrying might help.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// HTTPFetcher downloads inputs over HTTP with a size limit and retries.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
	// Retries is the number of extra attempts after a transient failure.
	Retries uint64
	// Backoff is the first retry delay; later delays double.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Fetch downloads url to dest. Transient failures (network errors, 5xx, 429)
// are retried; 4xx statuses and oversize bodies fail at once.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	base := f.Backoff
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.WithMaxRetries(f.Retries, retry.NewExponential(base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := f.fetchOnce(ctx, url, dest)
		if err == nil {
			return nil
		}
		_ = os.Remove(dest)
		if ctx.Err() != nil || !transientFetchError(err) {
			return err
		}
		if f.Logger != nil {
			f.Logger.WarnContext(ctx, "download failed, retrying", "attempt", attempt, "error", err)
		}
		return retry.RetryableError(err)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid input url: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode}
	}
	if f.MaxBytes > 0 && resp.ContentLength > f.MaxBytes {
		return fmt.Errorf("%w: %d bytes declared, limit %d", ErrFileTooLarge, resp.ContentLength, f.MaxBytes)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return &permanentError{fmt.Errorf("failed to create download file: %w", err)}
	}

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	n, err := io.Copy(downloadWriter{out}, body)
	closeErr := out.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return &permanentError{fmt.Errorf("failed to write download file: %w", closeErr)}
	}
	if f.MaxBytes > 0 && n > f.MaxBytes {
		return fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, f.MaxBytes)
	}
	return nil
}

// Size returns the size of the remote file at url as declared by a HEAD
// request, or zero when the server does not declare one. A declared size over
// MaxBytes returns ErrFileTooLarge.
func (f *HTTPFetcher) Size(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid input url: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{Code: resp.StatusCode}
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	if f.MaxBytes > 0 && resp.ContentLength > f.MaxBytes {
		return resp.ContentLength, fmt.Errorf("%w: %d bytes declared, limit %d",
			ErrFileTooLarge, resp.ContentLength, f.MaxBytes)
	}
	return resp.ContentLength, nil
}

// downloadWriter marks write failures on the local file as permanent, so a
// full disk is not retried like a network error.
type downloadWriter struct{ f *os.File }

func (w downloadWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, &permanentError{fmt.Errorf("failed to write download file: %w", err)}
	}
	return n, nil
}

// permanentError marks local failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func transientFetchError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var perm *permanentError
	if errors.As(err, &perm) || errors.Is(err, ErrFileTooLarge) {
		return false
	}
	return true
}
