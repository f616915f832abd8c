package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/vidq/internal/domain"
)

// SubmitResponse is returned when a task is accepted.
type SubmitResponse struct {
	TaskID  uuid.UUID         `json:"task_id"`
	Status  domain.TaskStatus `json:"status"`
	Message string            `json:"message"`
}

// RequeueResponse is returned when a task pointer is pushed again.
type RequeueResponse struct {
	TaskID  uuid.UUID `json:"task_id"`
	Message string    `json:"message"`
}
