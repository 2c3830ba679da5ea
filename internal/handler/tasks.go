package handler

import (
	"log/slog"
	"net/http"

	"driftnote/internal/httputil"
	"driftnote/internal/service/tasks"
)

// TasksHandler serves the derived checklist view.
type TasksHandler struct {
	service *tasks.Service
	logger  *slog.Logger
}

// NewTasksHandler creates a new tasks handler
func NewTasksHandler(service *tasks.Service, logger *slog.Logger) *TasksHandler {
	return &TasksHandler{service: service, logger: logger}
}

// List handles GET /api/tasks: every task across the user's live documents,
// recomputed from the current content trees.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("task list failed", "user_id", userID, "error", err)
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"tasks": list})
}

// Toggle handles POST /api/documents/{id}/tasks/toggle with a ToggleRef
// body. Responds with the task's new state.
func (h *TasksHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	docID, ok := pathUUID(w, r)
	if !ok {
		return
	}

	var ref tasks.ToggleRef
	if err := httputil.ParseJSON(w, r, &ref); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.service.Toggle(r.Context(), userID, docID, ref)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, task)
}
