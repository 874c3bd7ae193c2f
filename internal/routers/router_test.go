package routers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noteflare/internal/repositories"
	"noteflare/internal/session"
	"noteflare/internal/testhelpers"
	"noteflare/internal/utils"
)

const testOrigin = "http://localhost:5173"

func newTestServer(t *testing.T) (*httptest.Server, *session.Hub) {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	hub := session.NewHub(utils.NewNopLogger(), nil)
	handler := New(Deps{
		Log:           utils.NewNopLogger(),
		Hub:           hub,
		ClientOptions: session.DefaultClientOptions(),
		Users:         &repositories.UserRepository{DB: db},
		Notes:         &repositories.NoteRepository{DB: db},
		JWTSecret:     "secret",
		FrontendURL:   testOrigin,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		hub.Shutdown()
		server.Close()
	})
	return server, hub
}

func TestNewRouterHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/api/v1/healthz"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "ok", string(body), path)
	}
}

func TestNewRouterMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	_, _ = http.Get(server.URL + "/healthz")

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "noteflare_http_requests_total")
}

func TestNewRouterCORSPreflight(t *testing.T) {
	server, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/notes", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestNewRouterNotesRequireAuth(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/v1/notes")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewRouterWebSocketThroughMiddleware(t *testing.T) {
	server, hub := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?documentId=doc1&userId=A"

	a, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(strings.Replace(wsURL, "userId=A", "userId=B", 1), nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, a.ReadJSON(&frame))
	assert.Equal(t, "collaborators", frame["type"])
	assert.Equal(t, 2, hub.Stats().Connections)

	resp, err := http.Get(server.URL + "/api/v1/rooms/doc1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `"collaborative":true`)
}
