package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"driftnote/internal/collab"
	"driftnote/internal/httputil"
	"driftnote/internal/service/sync"
)

// RoomHandler serves the collaboration control surface and the websocket
// upgrade. Every route checks document ownership before touching the room.
type RoomHandler struct {
	registry *collab.Registry
	service  *sync.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(registry *collab.Registry, service *sync.Service, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		service:  service,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Cross-origin policy is enforced by the CORS layer in front.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *RoomHandler) room(w http.ResponseWriter, r *http.Request) (*collab.Room, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	docID, ok := pathUUID(w, r)
	if !ok {
		return nil, false
	}
	if _, err := h.service.GetDocument(r.Context(), userID, docID); err != nil {
		handleError(w, err)
		return nil, false
	}

	room, err := h.registry.Room(r.Context(), docID)
	if err != nil {
		h.logger.Error("open room failed", "document_id", docID, "error", err)
		handleError(w, err)
		return nil, false
	}
	return room, true
}

// Summary handles GET /api/documents/{id}/room.
func (h *RoomHandler) Summary(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	summary, err := room.Summary(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, summary)
}

type roomActionRequest struct {
	Action string `json:"action"`
}

type roomActionResponse struct {
	Success  bool `json:"success"`
	Repaired int  `json:"repaired,omitempty"`
}

// Action handles POST /api/documents/{id}/room with {"action": "reset"} or
// {"action": "removeCorruptNodes"}.
func (h *RoomHandler) Action(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}

	var req roomActionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Action {
	case "reset":
		if err := room.Reset(r.Context()); err != nil {
			handleError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, roomActionResponse{Success: true})
	case "removeCorruptNodes":
		repaired, err := room.RemoveCorruptNodes(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, roomActionResponse{Success: true, Repaired: repaired})
	default:
		httputil.RespondError(w, http.StatusBadRequest, "unknown room action")
	}
}

// Connect handles GET /api/documents/{id}/room/ws: upgrade and hand the
// connection to the room.
func (h *RoomHandler) Connect(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	peer := collab.NewPeer(room, conn, h.logger)
	if err := room.Connect(r.Context(), peer); err != nil {
		h.logger.Warn("room connect failed", "error", err)
		conn.Close()
		return
	}
	peer.Run()
}
