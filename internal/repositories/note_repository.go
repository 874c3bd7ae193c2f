package repositories

import (
	"errors"

	"gorm.io/gorm"

	"noteflare/internal/models"
)

var (
	ErrNoteNotFound  = errors.New("note not found")
	ErrForbidden     = errors.New("not allowed to access this note")
	ErrShareWithSelf = errors.New("cannot share a note with yourself")
)

// NoteRepository stores notes and their share grants. A note is visible to
// its owner and to every grantee; only the owner may delete or reshare it.
type NoteRepository struct {
	DB *gorm.DB
}

func (r *NoteRepository) CreateNote(note *models.Note) error {
	return r.DB.Create(note).Error
}

// ListNotes returns the caller's own notes and the notes shared with them,
// newest first.
func (r *NoteRepository) ListNotes(userID uint) (owned []models.Note, shared []models.Note, err error) {
	owned = []models.Note{}
	shared = []models.Note{}

	if err = r.DB.Preload("SharedWith").
		Where("owner_id = ?", userID).
		Order("date_created DESC").
		Find(&owned).Error; err != nil {
		return nil, nil, err
	}

	if err = r.DB.Joins("JOIN note_shares ON note_shares.note_id = notes.id").
		Where("note_shares.user_id = ?", userID).
		Order("notes.date_created DESC").
		Find(&shared).Error; err != nil {
		return nil, nil, err
	}
	for i := range shared {
		shared[i].SharedNote = true
	}
	return owned, shared, nil
}

func (r *NoteRepository) isGrantee(noteID string, userID uint) (bool, error) {
	var n int64
	err := r.DB.Table("note_shares").
		Where("note_id = ? AND user_id = ?", noteID, userID).
		Count(&n).Error
	return n > 0, err
}

// GetNote loads a note the caller may read.
func (r *NoteRepository) GetNote(noteID string, userID uint) (*models.Note, error) {
	var note models.Note
	err := r.DB.Preload("SharedWith").First(&note, "id = ?", noteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	if note.OwnerID == userID {
		return &note, nil
	}
	ok, err := r.isGrantee(noteID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	note.SharedNote = true
	return &note, nil
}

// UpdateNote overwrites the note's title, body and tags. Applying the same
// snapshot twice leaves the note unchanged, so callers may retry freely.
func (r *NoteRepository) UpdateNote(noteID string, userID uint, input models.NoteInput) (*models.Note, error) {
	note, err := r.GetNote(noteID, userID)
	if err != nil {
		return nil, err
	}
	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	err = r.DB.Model(note).
		Select("title", "body", "tags").
		Updates(models.Note{Title: input.Title, Body: input.Body, Tags: tags}).Error
	if err != nil {
		return nil, err
	}
	note.Title, note.Body, note.Tags = input.Title, input.Body, tags
	return note, nil
}

// DeleteNote removes the note when called by its owner. A grantee calling it
// only drops their own share.
func (r *NoteRepository) DeleteNote(noteID string, userID uint) error {
	note, err := r.GetNote(noteID, userID)
	if err != nil {
		return err
	}
	if note.OwnerID != userID {
		return r.DB.Model(note).Association("SharedWith").Delete(&models.User{ID: userID})
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(note).Association("SharedWith").Clear(); err != nil {
			return err
		}
		return tx.Delete(&models.Note{}, "id = ?", noteID).Error
	})
}

// ShareNote replaces the note's grantee set. Only the owner may share.
func (r *NoteRepository) ShareNote(noteID string, ownerID uint, users []models.User) ([]models.User, error) {
	note, err := r.GetNote(noteID, ownerID)
	if err != nil {
		return nil, err
	}
	if note.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	for _, u := range users {
		if u.ID == ownerID {
			return nil, ErrShareWithSelf
		}
	}

	assoc := r.DB.Model(note).Association("SharedWith")
	if len(users) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(users)
	}
	if err != nil {
		return nil, err
	}
	return users, nil
}
