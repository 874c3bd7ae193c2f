package syncagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"noteflare/internal/models"
)

var ErrTransportClosed = errors.New("transport closed")

const defaultWriteTimeout = 10 * time.Second

// WSTransport is a client connection to the hub for one document. Incoming
// frames are read by a single goroutine; writes are serialized.
type WSTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	listening bool
	err       error
	done      chan struct{}
}

var _ Broadcaster = (*WSTransport)(nil)

// HubURL builds the hub websocket URL from an http(s) base URL.
func HubURL(baseURL, documentID, userID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"documentId": {documentID}, "userId": {userID}}.Encode()
	return u.String(), nil
}

func DialWS(ctx context.Context, baseURL, documentID, userID string, header http.Header) (*WSTransport, error) {
	wsURL, err := HubURL(baseURL, documentID, userID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return &WSTransport{conn: conn, done: make(chan struct{})}, nil
}

// Listen starts the reader. Presence frames go to onPresence and relayed
// edits to onUpdate; either may be nil. Only the first call has an effect.
func (t *WSTransport) Listen(onPresence func(bool), onUpdate func(models.EditMessage)) {
	t.mu.Lock()
	if t.listening || t.closed {
		t.mu.Unlock()
		return
	}
	t.listening = true
	t.mu.Unlock()

	go t.readLoop(onPresence, onUpdate)
}

func (t *WSTransport) readLoop(onPresence func(bool), onUpdate func(models.EditMessage)) {
	defer close(t.done)
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed {
				t.err = err
			}
			t.mu.Unlock()
			return
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		switch head.Type {
		case models.FrameCollaborators:
			var frame models.PresenceFrame
			if json.Unmarshal(raw, &frame) == nil && onPresence != nil {
				onPresence(frame.OtherCollaborators)
			}
		case models.FrameUpdate:
			var msg models.EditMessage
			if json.Unmarshal(raw, &msg) == nil && onUpdate != nil {
				onUpdate(msg)
			}
		}
	}
}

func (t *WSTransport) Broadcast(ctx context.Context, msg models.EditMessage) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write edit: %w", err)
	}
	return nil
}

// Done is closed when the reader stops.
func (t *WSTransport) Done() <-chan struct{} { return t.done }

// Err reports why the reader stopped, or nil after Close.
func (t *WSTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listening := t.listening
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	err := t.conn.Close()
	if !listening {
		close(t.done)
	}
	return err
}
