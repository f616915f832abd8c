package api

import (
	"net/http"

	"github.com/phrazzld/vidq/internal/api/shared"
	"github.com/phrazzld/vidq/internal/domain"
	"github.com/phrazzld/vidq/internal/platform/logger"
	"github.com/phrazzld/vidq/internal/service"
)

// maxRequestBody bounds admission request bodies.
const maxRequestBody = 1 << 20

// TaskHandler handles task admission and status requests.
type TaskHandler struct {
	taskService service.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Submit returns a handler that admits tasks of taskType.
// POST /api/tasks/{caption|merge|background-music}
func (h *TaskHandler) Submit(taskType domain.TaskType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := shared.ReadBody(w, r, maxRequestBody)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}

		task, err := h.taskService.Submit(r.Context(), taskType, body)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}

		logger.FromContext(r.Context()).Info("task admitted",
			"task_id", task.ID,
			"task_type", task.Type)
		shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{
			TaskID:  task.ID,
			Status:  task.Status,
			Message: "Task queued for processing",
		})
	}
}

// GetTask returns the status view of a task.
// GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	view, err := h.taskService.View(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// RequeueTask pushes a new pointer for a task that is still queued.
// POST /api/tasks/{id}/requeue
func (h *TaskHandler) RequeueTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.taskService.Requeue(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, RequeueResponse{
		TaskID:  id,
		Message: "Task requeued",
	})
}
