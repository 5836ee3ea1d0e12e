package notes

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 190
	maxCategoryLength   = 64

	// DefaultCategory is assigned to notes created without one.
	DefaultCategory = "general"
)

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidNote indicates the note content failed validation.
	ErrInvalidNote = errors.New("notes: invalid note")
	// ErrNoteNotFound indicates the note does not exist or belongs to another user.
	ErrNoteNotFound = errors.New("notes: note not found")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// Note is a free-form user note.
type Note struct {
	NoteID           string `gorm:"column:note_id;primaryKey;size:190;not null"`
	UserID           int64  `gorm:"column:user_id;not null;index:idx_notes_user_pinned,priority:1"`
	Title            string `gorm:"column:title;size:190;not null;default:''"`
	Content          string `gorm:"column:content;type:text;not null"`
	Category         string `gorm:"column:category;size:64;not null;default:'general'"`
	IsPinned         bool   `gorm:"column:is_pinned;not null;default:false;index:idx_notes_user_pinned,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// CreateRequest describes a new note. Title is optional, content is required.
type CreateRequest struct {
	UserID   int64
	Title    string
	Content  string
	Category string
}

func (r CreateRequest) normalized() (CreateRequest, error) {
	r.Title = strings.TrimSpace(r.Title)
	r.Content = strings.TrimSpace(r.Content)
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if r.Category == "" {
		r.Category = DefaultCategory
	}
	switch {
	case r.UserID <= 0:
		return r, fmt.Errorf("%w: user id must be positive", ErrInvalidNote)
	case r.Content == "":
		return r, fmt.Errorf("%w: content is required", ErrInvalidNote)
	case len(r.Title) > maxTitleLength:
		return r, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidNote, maxTitleLength)
	case len(r.Category) > maxCategoryLength:
		return r, fmt.Errorf("%w: category exceeds %d characters", ErrInvalidNote, maxCategoryLength)
	}
	return r, nil
}

// Counts summarises a user's notes.
type Counts struct {
	Total  int64
	Pinned int64
}
