package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"noteflare/internal/models"
	"noteflare/internal/repositories"
	"noteflare/internal/utils"
)

// NotesHandler serves the note storage collaborator. All routes sit behind
// AuthHandler.RequireAuth.
type NotesHandler struct {
	Notes *repositories.NoteRepository
	Users *repositories.UserRepository
	log   *utils.Logger
}

func NewNotesHandler(notes *repositories.NoteRepository, users *repositories.UserRepository, log *utils.Logger) *NotesHandler {
	if log == nil {
		log = utils.NewNopLogger()
	}
	return &NotesHandler{Notes: notes, Users: users, log: log}
}

func (h *NotesHandler) writeRepoError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, repositories.ErrNoteNotFound), errors.Is(err, repositories.ErrForbidden):
		utils.JSONError(w, http.StatusNotFound, "Note not found or access denied")
	case errors.Is(err, repositories.ErrUserNotFound):
		utils.JSONError(w, http.StatusNotFound, "Some users not found")
	case errors.Is(err, repositories.ErrShareWithSelf):
		utils.JSONError(w, http.StatusBadRequest, "Cannot share note with yourself")
	default:
		h.log.Error("note operation failed", "op", op, "error", err.Error())
		utils.JSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	owned, shared, err := h.Notes.ListNotes(userID)
	if err != nil {
		h.writeRepoError(w, err, "list")
		return
	}
	utils.JSON(w, http.StatusOK, models.NotesResponse{Notes: owned, SharedNotes: shared})
}

func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	var in models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	note := &models.Note{Title: in.Title, Body: in.Body, Tags: in.Tags, OwnerID: userID}
	if err := h.Notes.CreateNote(note); err != nil {
		h.writeRepoError(w, err, "create")
		return
	}
	utils.JSON(w, http.StatusCreated, note)
}

func (h *NotesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	var in models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	note, err := h.Notes.UpdateNote(chi.URLParam(r, "id"), userID, in)
	if err != nil {
		h.writeRepoError(w, err, "update")
		return
	}
	utils.JSON(w, http.StatusOK, note)
}

func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	if err := h.Notes.DeleteNote(chi.URLParam(r, "id"), userID); err != nil {
		h.writeRepoError(w, err, "delete")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Note deleted successfully"})
}

func (h *NotesHandler) Share(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	var req models.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Usernames == nil {
		utils.JSONError(w, http.StatusBadRequest, "Please provide a list of usernames")
		return
	}
	users, err := h.Users.FindByUsernames(req.Usernames)
	if err != nil {
		h.writeRepoError(w, err, "share")
		return
	}
	shared, err := h.Notes.ShareNote(chi.URLParam(r, "id"), userID, users)
	if err != nil {
		h.writeRepoError(w, err, "share")
		return
	}
	utils.JSON(w, http.StatusOK, models.ShareResponse{Message: "Note shared successfully", SharedWith: shared})
}
