package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/*** Wire frames exchanged over /ws ***/

const (
	// FrameCollaborators is the presence frame type.
	FrameCollaborators = "collaborators"
	// FrameUpdate marks an edit relayed by the hub to the other room members.
	FrameUpdate = "update"
	// FrameEdit is what a client stamps on its own outgoing edits.
	FrameEdit = "edit"
)

type PresenceFrame struct {
	Type               string `json:"type"`
	OtherCollaborators bool   `json:"otherCollaborators"`
}

func NewPresenceFrame(others bool) PresenceFrame {
	return PresenceFrame{Type: FrameCollaborators, OtherCollaborators: others}
}

// EditMessage is the full-snapshot edit a client sends. The hub never decodes
// into this type (it relays the raw object); clients do.
type EditMessage struct {
	Type       string   `json:"type,omitempty"`
	DocumentID string   `json:"documentId"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Tags       []string `json:"tags"`
	Position   int      `json:"position"`
	Timestamp  int64    `json:"timestamp"`
}

type RoomStatus struct {
	DocumentID    string   `json:"documentId"`
	Members       []string `json:"members"`
	Collaborative bool     `json:"collaborative"`
}

/*** Room activity (published to Redis) ***/

const (
	RoomEventJoin     = "join"
	RoomEventLeave    = "leave"
	RoomEventPresence = "presence"
)

type RoomEvent struct {
	Type          string `json:"type"`
	DocumentID    string `json:"documentId"`
	UserID        string `json:"userId,omitempty"`
	Members       int    `json:"members"`
	Collaborative bool   `json:"collaborative"`
	InstanceID    string `json:"instanceId"`
	Timestamp     int64  `json:"timestamp"`
}

// RoomActivity is the last known state of a room as recorded in Redis.
type RoomActivity struct {
	DocumentID    string `json:"documentId"`
	Members       int    `json:"members"`
	Collaborative bool   `json:"collaborative"`
	InstanceID    string `json:"instanceId"`
	UpdatedAt     string `json:"updatedAt"`
}

/*** Storage collaborator ***/

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"-"`
}

type Note struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Tags        []string  `gorm:"serializer:json" json:"tags"`
	OwnerID     uint      `gorm:"index;not null" json:"ownerId"`
	SharedWith  []User    `gorm:"many2many:note_shares;" json:"sharedWith"`
	DateCreated time.Time `gorm:"autoCreateTime" json:"dateCreated"`
	UpdatedAt   time.Time `json:"updatedAt"`
	// SharedNote is set on responses for notes the caller does not own.
	SharedNote bool `gorm:"-" json:"sharedNote,omitempty"`
}

func (n *Note) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return nil
}

type NoteInput struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

type NotesResponse struct {
	Notes       []Note `json:"notes"`
	SharedNotes []Note `json:"sharedNotes"`
}

type ShareRequest struct {
	Usernames []string `json:"usernames"`
}

type ShareResponse struct {
	Message    string `json:"message"`
	SharedWith []User `json:"sharedWith"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token,omitempty"`
}

// AutoMigrate creates or updates the storage schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Note{})
}
