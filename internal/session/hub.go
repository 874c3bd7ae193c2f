package session

import (
	"encoding/json"
	"sync"

	"noteflare/internal/models"
	"noteflare/internal/utils"
)

// Observer is notified of hub transitions. Calls happen while the hub lock is
// held, so implementations must not block.
type Observer interface {
	OnJoin(documentID, userID string, members int)
	OnLeave(documentID, userID string, members int)
	OnPresence(documentID string, collaborative bool, recipients int)
	OnRelay(documentID, senderID string, delivered, dropped int)
	OnMalformed(documentID, userID string)
}

// Observers fans each callback out to every element.
type Observers []Observer

func (obs Observers) OnJoin(documentID, userID string, members int) {
	for _, o := range obs {
		o.OnJoin(documentID, userID, members)
	}
}

func (obs Observers) OnLeave(documentID, userID string, members int) {
	for _, o := range obs {
		o.OnLeave(documentID, userID, members)
	}
}

func (obs Observers) OnPresence(documentID string, collaborative bool, recipients int) {
	for _, o := range obs {
		o.OnPresence(documentID, collaborative, recipients)
	}
}

func (obs Observers) OnRelay(documentID, senderID string, delivered, dropped int) {
	for _, o := range obs {
		o.OnRelay(documentID, senderID, delivered, dropped)
	}
}

func (obs Observers) OnMalformed(documentID, userID string) {
	for _, o := range obs {
		o.OnMalformed(documentID, userID)
	}
}

var (
	presenceOn, _  = json.Marshal(models.NewPresenceFrame(true))
	presenceOff, _ = json.Marshal(models.NewPresenceFrame(false))
)

// Hub owns the connection registry and the room index. One mutex serializes
// every membership change together with the presence decision it drives, so
// join, leave and fan-out for a room are atomic with respect to each other.
type Hub struct {
	mu       sync.Mutex
	registry *Registry
	rooms    *RoomIndex
	observer Observer
	log      *utils.Logger
}

func NewHub(log *utils.Logger, observer Observer) *Hub {
	if log == nil {
		log = utils.NewNopLogger()
	}
	if observer == nil {
		observer = Observers(nil)
	}
	return &Hub{
		registry: NewRegistry(),
		rooms:    NewRoomIndex(),
		observer: observer,
		log:      log,
	}
}

// Session is one connection's membership in one room.
type Session struct {
	hub    *Hub
	client *Client
	once   sync.Once
}

func (s *Session) Client() *Client    { return s.client }
func (s *Session) UserID() string     { return s.client.UserID() }
func (s *Session) DocumentID() string { return s.client.DocumentID() }

// Close runs the disconnect path. Only the first call has any effect.
func (s *Session) Close() { s.hub.Disconnect(s) }

// Connect registers c and adds its user to the room for its document.
//
// A user holds one connection at a time. If one is already registered it is
// evicted: on the same document the handle is swapped without touching
// membership, on another document the old membership is left first. The
// evicted handle is closed and its own cleanup later becomes a no-op.
func (h *Hub) Connect(c *Client) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	documentID, userID := c.DocumentID(), c.UserID()
	prev := h.registry.Register(userID, c)
	if prev != nil && prev != c {
		h.log.Info("connection superseded", "userId", userID, "oldDocumentId", prev.DocumentID(), "documentId", documentID)
		prev.Close()
		if prev.DocumentID() == documentID && h.rooms.Size(documentID) > 0 {
			if h.rooms.Size(documentID) >= 2 {
				c.Send(presenceOn)
			}
			return &Session{hub: h, client: c}
		}
		h.leaveLocked(prev.DocumentID(), userID)
	}

	before := h.rooms.Size(documentID)
	after := h.rooms.Join(documentID, userID)
	h.log.Info("client joined", "documentId", documentID, "userId", userID, "members", after)
	if after != before {
		h.observer.OnJoin(documentID, userID, after)
		if before < 2 && after >= 2 {
			h.broadcastPresenceLocked(documentID, true)
		}
	}
	return &Session{hub: h, client: c}
}

// Disconnect unregisters the session's handle, removes the user from the room
// and fires presence. Repeated or concurrent calls collapse into one.
func (h *Hub) Disconnect(s *Session) {
	s.once.Do(func() {
		h.mu.Lock()
		if h.registry.UnregisterIf(s.UserID(), s.client) {
			h.leaveLocked(s.DocumentID(), s.UserID())
		}
		h.mu.Unlock()
		s.client.Close()
	})
}

func (h *Hub) leaveLocked(documentID, userID string) {
	before := h.rooms.Size(documentID)
	after := h.rooms.Leave(documentID, userID)
	if after == before {
		return
	}
	h.log.Info("client left", "documentId", documentID, "userId", userID, "members", after)
	h.observer.OnLeave(documentID, userID, after)
	if before >= 2 && after == 1 {
		h.broadcastPresenceLocked(documentID, false)
	}
}

func (h *Hub) broadcastPresenceLocked(documentID string, collaborative bool) {
	frame := presenceOff
	if collaborative {
		frame = presenceOn
	}
	sent := 0
	for _, member := range h.rooms.Members(documentID) {
		if h.registry.Send(member, frame) {
			sent++
		}
	}
	h.observer.OnPresence(documentID, collaborative, sent)
}

// HandleMessage parses one inbound frame and relays it. Malformed frames are
// logged and dropped; the connection stays open.
func (h *Hub) HandleMessage(s *Session, raw []byte) int {
	edit, err := ParseEdit(raw)
	if err != nil {
		h.log.Warn("dropping malformed message", "documentId", s.DocumentID(), "userId", s.UserID(), "error", err.Error())
		h.observer.OnMalformed(s.DocumentID(), s.UserID())
		return 0
	}
	return h.Relay(s, edit)
}

// Relay sends edit to every other member of the sender's room and returns the
// number of deliveries accepted. Solo rooms and superseded sessions relay
// nothing.
func (h *Hub) Relay(s *Session, edit Edit) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	documentID, senderID := s.DocumentID(), s.UserID()
	if cur, ok := h.registry.Get(senderID); !ok || cur != s.client {
		return 0
	}
	members := h.rooms.Members(documentID)
	if len(members) < 2 {
		return 0
	}
	frame, err := edit.RelayFrame(documentID)
	if err != nil {
		h.log.Warn("failed to encode relay", "documentId", documentID, "error", err.Error())
		return 0
	}
	delivered, dropped := 0, 0
	for _, member := range members {
		if member == senderID {
			continue
		}
		if h.registry.Send(member, frame) {
			delivered++
		} else {
			dropped++
		}
	}
	h.observer.OnRelay(documentID, senderID, delivered, dropped)
	return delivered
}

func (h *Hub) Snapshot(documentID string) models.RoomStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms.Members(documentID)
	return models.RoomStatus{
		DocumentID:    documentID,
		Members:       members,
		Collaborative: len(members) >= 2,
	}
}

type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Connections: h.registry.Len(), Rooms: h.rooms.Rooms()}
}

// Shutdown closes every live handle. Each connection's read loop then exits
// and runs its normal disconnect path.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.registry.All()
	h.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
