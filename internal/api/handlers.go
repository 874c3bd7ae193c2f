package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"noteflare/internal/models"
	"noteflare/internal/room_management"
	"noteflare/internal/session"
	"noteflare/internal/utils"
)

// RoomActivitySource reports room state recorded outside this process.
type RoomActivitySource interface {
	GetRoomStatus(ctx context.Context, documentID string) (*models.RoomActivity, error)
}

type Handlers struct {
	log        *utils.Logger
	hub        *session.Hub
	clientOpts session.ClientOptions
	activity   RoomActivitySource
}

func NewHandlers(log *utils.Logger, hub *session.Hub, opts session.ClientOptions) *Handlers {
	if log == nil {
		log = utils.NewNopLogger()
	}
	return &Handlers{log: log, hub: hub, clientOpts: opts}
}

// WithRoomActivity enables the cross-instance activity endpoint.
func (h *Handlers) WithRoomActivity(src RoomActivitySource) *Handlers {
	h.activity = src
	return h
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) RoomStatus(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	utils.JSON(w, http.StatusOK, h.hub.Snapshot(documentID))
}

func (h *Handlers) RoomActivity(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "room activity tracking is disabled")
		return
	}
	documentID := chi.URLParam(r, "documentId")
	status, err := h.activity.GetRoomStatus(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, room_management.ErrRoomNotFound) {
			utils.JSONError(w, http.StatusNotFound, "room not found")
			return
		}
		h.log.Error("failed to read room activity", "documentId", documentID, "error", err.Error())
		utils.JSONError(w, http.StatusInternalServerError, "failed to read room activity")
		return
	}
	utils.JSON(w, http.StatusOK, status)
}

/*** Document WebSocket: presence + edit relay ***/
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// DocumentWS upgrades the request and serves one hub session until the
// socket closes. Both documentId (or the legacy noteId) and userId are
// required; without them the socket is closed before any frame is sent.
func (h *Handlers) DocumentWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	documentID := q.Get("documentId")
	if documentID == "" {
		documentID = q.Get("noteId")
	}
	userID := q.Get("userId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if documentID == "" || userID == "" {
		h.log.Warn("rejecting websocket without identifiers", "documentId", documentID, "userId", userID)
		_ = conn.Close()
		return
	}

	client := session.NewClientWithOptions(conn, userID, documentID, h.clientOpts)
	sess := h.hub.Connect(client)
	defer sess.Close()

	err = client.ReadLoop(r.Context(), func(msg []byte) {
		h.hub.HandleMessage(sess, msg)
	})
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.log.Warn("websocket read failed", "documentId", documentID, "userId", userID, "error", err.Error())
	}
	h.log.Info("client disconnected", "documentId", documentID, "userId", userID)
}
