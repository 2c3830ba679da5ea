// Package handler exposes the engine over HTTP: the REST sync surface, the
// task index, the room control endpoints, and the websocket upgrade.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"driftnote/internal/domain/models"
	"driftnote/internal/httputil"
	"driftnote/internal/service/sync"
)

// SyncHandler serves pull and push.
type SyncHandler struct {
	service *sync.Service
	logger  *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service *sync.Service, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{service: service, logger: logger}
}

// Pull handles GET /api/sync/pull?since=<unix ms>&include_deleted=<bool>.
// A missing since means "everything".
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "since must be unix milliseconds")
			return
		}
		since = time.UnixMilli(ms)
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	resp, err := h.service.Pull(r.Context(), userID, since, includeDeleted)
	if err != nil {
		h.logger.Error("pull failed", "user_id", userID, "error", err)
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// Push handles POST /api/sync/push. The response is always 200: per-entity
// outcomes, conflicts included, live in the body.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.PushRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Push(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("push failed", "user_id", userID, "error", err)
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
