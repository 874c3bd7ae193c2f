package syncagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"noteflare/internal/models"
)

var ErrUnauthorized = errors.New("not authenticated")

// StatusError is a non-2xx response from the notes API.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// HTTPSaver talks to the notes API with a bearer token. Its Save is a full
// snapshot PUT, so repeating it is harmless.
type HTTPSaver struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ Saver = (*HTTPSaver)(nil)

func NewHTTPSaver(baseURL, token string) *HTTPSaver {
	return &HTTPSaver{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSaver) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &StatusError{Op: op, Status: resp.StatusCode, Message: apiErr.Message}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}
	}
	return nil
}

func (s *HTTPSaver) Save(ctx context.Context, snap Snapshot) error {
	input := models.NoteInput{Title: snap.Title, Body: snap.Body, Tags: snap.Tags}
	if input.Tags == nil {
		input.Tags = []string{}
	}
	return s.do(ctx, "save note", http.MethodPut, "/api/v1/notes/"+url.PathEscape(snap.DocumentID), input, nil)
}

func (s *HTTPSaver) CreateNote(ctx context.Context, input models.NoteInput) (*models.Note, error) {
	var note models.Note
	if err := s.do(ctx, "create note", http.MethodPost, "/api/v1/notes", input, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *HTTPSaver) ListNotes(ctx context.Context) (*models.NotesResponse, error) {
	var resp models.NotesResponse
	if err := s.do(ctx, "list notes", http.MethodGet, "/api/v1/notes", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a token and stores it on the saver.
func (s *HTTPSaver) Login(ctx context.Context, creds models.Credentials) (*models.User, error) {
	var resp models.AuthResponse
	if err := s.do(ctx, "login", http.MethodPost, "/api/v1/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	s.Token = resp.Token
	return &resp.User, nil
}
