package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"noteflare/internal/models"
	"noteflare/internal/repositories"
	"noteflare/internal/routers"
	"noteflare/internal/session"
	"noteflare/internal/testhelpers"
	"noteflare/internal/utils"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type backend struct {
	srv   *httptest.Server
	notes *repositories.NoteRepository
	user  *models.User
}

func newBackend(t *testing.T) backend {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	users := &repositories.UserRepository{DB: db}
	notes := &repositories.NoteRepository{DB: db}

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Username: "alice", PasswordHash: string(hash)}
	require.NoError(t, users.CreateUser(user))

	hub := session.NewHub(utils.NewNopLogger(), nil)
	srv := httptest.NewServer(routers.New(routers.Deps{
		Log:           utils.NewNopLogger(),
		Hub:           hub,
		ClientOptions: session.DefaultClientOptions(),
		Users:         users,
		Notes:         notes,
		JWTSecret:     "secret",
		FrontendURL:   "http://localhost:5173",
	}))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return backend{srv: srv, notes: notes, user: user}
}

func clientOpts(server string, extra map[string]interface{}) docopt.Opts {
	opts := docopt.Opts{
		"--server":    server,
		"--user":      "alice",
		"--password":  "pw",
		"--note":      nil,
		"--title":     "Untitled",
		"--log-level": "error",
	}
	for k, v := range extra {
		opts[k] = v
	}
	return opts
}

func TestUsageParses(t *testing.T) {
	opts, err := docopt.ParseArgs(usage, []string{"--user=alice", "--note=abc"}, ClientVersion)
	require.NoError(t, err)
	server, _ := opts.String("--server")
	assert.Equal(t, "http://localhost:8080", server)
	note, _ := opts.String("--note")
	assert.Equal(t, "abc", note)
	title, _ := opts.String("--title")
	assert.Equal(t, "Untitled", title)
}

func TestRunCreatesNoteAndSavesOnQuit(t *testing.T) {
	b := newBackend(t)
	out := &safeBuffer{}

	in := strings.NewReader("first line\nsecond line\n:show\n:quit\n")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, clientOpts(b.srv.URL, nil), in, out))

	owned, _, err := b.notes.ListNotes(b.user.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "Untitled", owned[0].Title)
	assert.Equal(t, "first line\nsecond line", owned[0].Body)
	assert.Contains(t, out.String(), "second line")
}

func TestRunOpensExistingNote(t *testing.T) {
	b := newBackend(t)
	note := &models.Note{Title: "Existing", Body: "old", OwnerID: b.user.ID}
	require.NoError(t, b.notes.CreateNote(note))

	out := &safeBuffer{}
	in := strings.NewReader("new\n")
	require.NoError(t, run(context.Background(), clientOpts(b.srv.URL, map[string]interface{}{"--note": note.ID}), in, out))

	got, err := b.notes.GetNote(note.ID, b.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew", got.Body)
	assert.Contains(t, out.String(), "Existing")
}

func TestRunUnknownNote(t *testing.T) {
	b := newBackend(t)
	err := run(context.Background(), clientOpts(b.srv.URL, map[string]interface{}{"--note": "missing"}), strings.NewReader(""), &safeBuffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRunBadPassword(t *testing.T) {
	b := newBackend(t)
	err := run(context.Background(), clientOpts(b.srv.URL, map[string]interface{}{"--password": "nope"}), strings.NewReader(""), &safeBuffer{})
	assert.Error(t, err)
}

func TestEditorRetryWithoutFailure(t *testing.T) {
	b := newBackend(t)
	out := &safeBuffer{}
	in := strings.NewReader(":retry\n:quit\n")
	require.NoError(t, run(context.Background(), clientOpts(b.srv.URL, nil), in, out))
	assert.Contains(t, out.String(), "nothing to retry")
}

func TestServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	err := run(context.Background(), clientOpts(srv.URL, nil), strings.NewReader(""), &safeBuffer{})
	assert.Error(t, err)
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(docopt.Opts{"--password": "secret"})
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)

	if term.IsTerminal(int(syscall.Stdin)) {
		t.Skip("stdin is a terminal")
	}
	_, err = readPassword(docopt.Opts{"--password": nil})
	assert.ErrorContains(t, err, "not a terminal")
}
