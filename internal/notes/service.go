package notes

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "notes.service.new"
	opCreate     = "notes.create"
	opList       = "notes.list"
	opGet        = "notes.get"
	opTogglePin  = "notes.toggle_pin"
	opDelete     = "notes.delete"
	opCounts     = "notes.counts"
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create stores a new note.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Note, error) {
	request, err := request.normalized()
	if err != nil {
		return Note{}, serviceerr.New(opCreate, "invalid_note", err)
	}
	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.Int64("user_id", request.UserID))
		return Note{}, serviceerr.New(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	note := Note{
		NoteID:           noteID,
		UserID:           request.UserID,
		Title:            request.Title,
		Content:          request.Content,
		Category:         request.Category,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreate, "note_insert_failed", err, zap.Int64("user_id", request.UserID))
		return Note{}, serviceerr.New(opCreate, "note_insert_failed", err)
	}
	return note, nil
}

// List returns the user's notes, pinned first and newest first within each group.
// A non-empty category filters the listing.
func (s *Service) List(ctx context.Context, userID int64, category string) ([]Note, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var notes []Note
	err := query.
		Order("is_pinned DESC").
		Order("created_at_s DESC").
		Order("note_id DESC").
		Find(&notes).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.Int64("user_id", userID))
		return nil, serviceerr.New(opList, "query_failed", err)
	}
	return notes, nil
}

// Get returns a single note owned by the user.
func (s *Service) Get(ctx context.Context, userID int64, noteID NoteID) (Note, error) {
	return s.owned(ctx, s.db.WithContext(ctx), opGet, userID, noteID)
}

// TogglePin flips the pinned flag and returns the updated note.
func (s *Service) TogglePin(ctx context.Context, userID int64, noteID NoteID) (Note, error) {
	var note Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.owned(ctx, tx, opTogglePin, userID, noteID)
		if err != nil {
			return err
		}
		existing.IsPinned = !existing.IsPinned
		existing.UpdatedAtSeconds = s.clock().UTC().Unix()
		err = tx.Model(&Note{}).
			Where("note_id = ?", existing.NoteID).
			Updates(map[string]interface{}{
				"is_pinned":    existing.IsPinned,
				"updated_at_s": existing.UpdatedAtSeconds,
			}).Error
		if err != nil {
			s.logError(opTogglePin, "note_update_failed", err, zap.String("note_id", existing.NoteID))
			return serviceerr.New(opTogglePin, "note_update_failed", err)
		}
		note = existing
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return note, nil
}

// Delete removes a note owned by the user.
func (s *Service) Delete(ctx context.Context, userID int64, noteID NoteID) error {
	result := s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ?", noteID.String(), userID).
		Delete(&Note{})
	if result.Error != nil {
		s.logError(opDelete, "note_delete_failed", result.Error, zap.String("note_id", noteID.String()))
		return serviceerr.New(opDelete, "note_delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return serviceerr.New(opDelete, "not_found", ErrNoteNotFound)
	}
	return nil
}

// Counts returns total and pinned note counts; a non-positive userID counts every user's notes.
func (s *Service) Counts(ctx context.Context, userID int64) (Counts, error) {
	query := s.db.WithContext(ctx).Model(&Note{})
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	var counts Counts
	err := query.
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_pinned THEN 1 ELSE 0 END), 0) AS pinned").
		Scan(&counts).Error
	if err != nil {
		s.logError(opCounts, "query_failed", err, zap.Int64("user_id", userID))
		return Counts{}, serviceerr.New(opCounts, "query_failed", err)
	}
	return counts, nil
}

func (s *Service) owned(ctx context.Context, db *gorm.DB, operation string, userID int64, noteID NoteID) (Note, error) {
	var note Note
	err := db.WithContext(ctx).
		Where("note_id = ? AND user_id = ?", noteID.String(), userID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, serviceerr.New(operation, "not_found", ErrNoteNotFound)
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err, zap.String("note_id", noteID.String()))
		return Note{}, serviceerr.New(operation, "note_select_failed", err)
	}
	return note, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notes service error", attrs...)
}
