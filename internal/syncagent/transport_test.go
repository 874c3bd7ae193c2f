package syncagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noteflare/internal/api"
	"noteflare/internal/models"
	"noteflare/internal/session"
	"noteflare/internal/utils"
)

func newHub(t *testing.T) *httptest.Server {
	t.Helper()
	hub := session.NewHub(utils.NewNopLogger(), nil)
	h := api.NewHandlers(utils.NewNopLogger(), hub, session.DefaultClientOptions())
	r := chi.NewRouter()
	r.Get("/ws", h.DocumentWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return srv
}

func TestHubURL(t *testing.T) {
	got, err := HubURL("http://localhost:8080/", "doc 1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws?documentId=doc+1&userId=u1", got)

	got, err = HubURL("https://notes.example.com/base", "d", "u")
	require.NoError(t, err)
	assert.Equal(t, "wss://notes.example.com/base/ws?documentId=d&userId=u", got)

	_, err = HubURL("ftp://x", "d", "u")
	assert.Error(t, err)
}

func TestAgentsSyncThroughHub(t *testing.T) {
	srv := newHub(t)
	ctx := context.Background()

	ta, err := DialWS(ctx, srv.URL, "doc1", "alice", nil)
	require.NoError(t, err)
	defer ta.Close()
	tb, err := DialWS(ctx, srv.URL, "doc1", "bob", nil)
	require.NoError(t, err)
	defer tb.Close()

	alice := New(&fakeSaver{}, ta, Options{BroadcastDelay: 5 * time.Millisecond, SaveDelay: time.Hour})
	defer alice.Close()
	bob := New(&fakeSaver{}, tb, Options{BroadcastDelay: 5 * time.Millisecond, SaveDelay: time.Hour})
	defer bob.Close()

	var mu sync.Mutex
	var received []models.EditMessage
	ta.Listen(alice.SetCollaborators, nil)
	tb.Listen(bob.SetCollaborators, func(msg models.EditMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		bob.Load(Snapshot{DocumentID: msg.DocumentID, Title: msg.Title, Body: msg.Body, Tags: msg.Tags})
	})

	waitFor(t, func() bool { return alice.Collaborators() && bob.Collaborators() })

	alice.Edit(Snapshot{DocumentID: "doc1", Title: "T", Body: "hello", Tags: []string{}})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	assert.Equal(t, "update", received[0].Type)
	assert.Equal(t, "hello", received[0].Body)
	mu.Unlock()
	assert.Equal(t, "hello", bob.Current().Body)

	// bob leaving flips alice back to solo
	require.NoError(t, tb.Close())
	waitFor(t, func() bool { return !alice.Collaborators() })
}

func TestWSTransportBroadcastAfterClose(t *testing.T) {
	srv := newHub(t)
	tr, err := DialWS(context.Background(), srv.URL, "doc1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err = tr.Broadcast(context.Background(), models.EditMessage{DocumentID: "doc1"})
	assert.True(t, errors.Is(err, ErrTransportClosed))
	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("done should be closed")
	}
}

func TestWSTransportReportsServerClose(t *testing.T) {
	srv := newHub(t)
	// a second connection for the same user evicts the first
	first, err := DialWS(context.Background(), srv.URL, "doc1", "alice", nil)
	require.NoError(t, err)
	defer first.Close()
	first.Listen(nil, nil)

	second, err := DialWS(context.Background(), srv.URL, "doc1", "alice", nil)
	require.NoError(t, err)
	defer second.Close()

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("evicted transport should stop reading")
	}
	assert.Error(t, first.Err())
}

func TestDialWSFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := DialWS(context.Background(), srv.URL, "d", "u", nil)
	assert.Error(t, err)
}

func TestTransportIgnoresUnknownFrames(t *testing.T) {
	frames := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"mystery"}`),
		mustJSON(t, models.NewPresenceFrame(true)),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, f)
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr, err := DialWS(context.Background(), srv.URL, "d", "u", nil)
	require.NoError(t, err)
	defer tr.Close()

	got := make(chan bool, 1)
	tr.Listen(func(v bool) { got <- v }, nil)
	select {
	case v := <-got:
		assert.True(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("presence frame not delivered")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

var testUpgrader = websocket.Upgrader{}
