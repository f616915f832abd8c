package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/vidq/internal/api/shared"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/redact"
	"github.com/phrazzld/vidq/internal/service"
	"github.com/phrazzld/vidq/internal/store"
)

var (
	// ErrInvalidID is returned for a path parameter that is not a task id.
	ErrInvalidID = errors.New("invalid task id")

	errVideoNotFound = fmt.Errorf("%w: video", store.ErrNotFound)
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Bad request errors
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidTaskType),
		errors.Is(err, domain.ErrInvalidArtifactName),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, shared.ErrBodyTooLarge),
		errors.Is(err, service.ErrSourceTooLarge):
		return http.StatusRequestEntityTooLarge

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrNotRequeueable):
		return http.StatusConflict

	// Unavailable dependencies
	case errors.Is(err, service.ErrQueueUnavailable),
		errors.Is(err, service.ErrStoreUnavailable),
		errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		// Input errors name the offending fields; they carry no internals.
		return redact.Truncate(redact.Error(err), 500)

	case errors.Is(err, domain.ErrInvalidTaskType):
		return "Unknown task type"

	case errors.Is(err, ErrInvalidID):
		return "Invalid task ID"

	case errors.Is(err, domain.ErrInvalidArtifactName):
		return "Invalid video name"

	case errors.Is(err, shared.ErrBodyTooLarge):
		return "Request body too large"

	case errors.Is(err, service.ErrSourceTooLarge):
		// Sizes only, never source URLs.
		return redact.Truncate(err.Error(), 200)

	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Task not found"

	case errors.Is(err, service.ErrNotRequeueable):
		return "Only queued tasks can be requeued"

	case errors.Is(err, service.ErrQueueUnavailable):
		return "Task queue unavailable, try again later"

	case errors.Is(err, service.ErrStoreUnavailable),
		errors.Is(err, store.ErrUnavailable):
		return "Task store unavailable, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. When message is empty the
// safe message for err is used.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), message, err)
}
