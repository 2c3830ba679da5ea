package handler

import (
	"log/slog"
	"net/http"

	"driftnote/internal/httputil"
	"driftnote/internal/service/sync"
)

// WorkspaceHandler serves the destructive workspace operations that cannot
// ride the push path.
type WorkspaceHandler struct {
	service *sync.Service
	logger  *slog.Logger
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(service *sync.Service, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{service: service, logger: logger}
}

// Delete handles DELETE /api/workspaces/{id}. Children are re-parented and
// documents detached before the row goes; nothing cascades.
func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteWorkspace(r.Context(), userID, id); err != nil {
		handleError(w, err)
		return
	}
	h.logger.Info("workspace deleted", "user_id", userID, "workspace_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// DocumentHandler serves the permanent-delete escape hatch; everything else
// about documents flows through sync or the room.
type DocumentHandler struct {
	service *sync.Service
	logger  *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(service *sync.Service, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, logger: logger}
}

// Purge handles DELETE /api/documents/{id}/purge: the row is removed
// unconditionally, bypassing the soft-delete flow.
func (h *DocumentHandler) Purge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	if err := h.service.PurgeDocument(r.Context(), userID, id); err != nil {
		handleError(w, err)
		return
	}
	h.logger.Info("document purged", "user_id", userID, "document_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
