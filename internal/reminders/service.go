package reminders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrReminderNotFound indicates the reminder does not exist or belongs to another user.
	ErrReminderNotFound = errors.New("reminders: reminder not found")
	// ErrInvalidReminder indicates the reminder input failed validation.
	ErrInvalidReminder = errors.New("reminders: invalid reminder")

	errMissingStore = errors.New("store is required")
)

const (
	opServiceNew = "reminders.service.new"
	opCreate     = "reminders.create"
	opGet        = "reminders.get"
	opList       = "reminders.list"
	opComplete   = "reminders.complete"
	opDelete     = "reminders.delete"
	opCounts     = "reminders.counts"

	maxTitleLength = 512
)

// ServiceConfig describes the dependencies of the reminder service.
type ServiceConfig struct {
	Store  *store.Store
	Logger *zap.Logger
}

// Service manages a user's reminders.
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// NewService constructs the reminder service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opServiceNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, logger: logger}, nil
}

// CreateInput carries the fields of a new reminder.
type CreateInput struct {
	UserID      int64
	Title       string
	Description string
	Location    string
	RemindAt    time.Time
}

// Create validates and stores a new reminder.
func (s *Service) Create(ctx context.Context, input CreateInput) (store.Reminder, error) {
	title := strings.TrimSpace(input.Title)
	switch {
	case input.UserID <= 0:
		return store.Reminder{}, serviceerr.New(opCreate, "invalid_user", ErrInvalidReminder)
	case title == "":
		return store.Reminder{}, serviceerr.New(opCreate, "missing_title", ErrInvalidReminder)
	case len(title) > maxTitleLength:
		return store.Reminder{}, serviceerr.New(opCreate, "title_too_long", ErrInvalidReminder)
	case input.RemindAt.IsZero():
		return store.Reminder{}, serviceerr.New(opCreate, "missing_remind_at", ErrInvalidReminder)
	}
	reminder := store.Reminder{
		UserID:          input.UserID,
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Location:        strings.TrimSpace(input.Location),
		RemindAtSeconds: input.RemindAt.Unix(),
	}
	if err := s.store.CreateReminder(ctx, &reminder); err != nil {
		return store.Reminder{}, serviceerr.New(opCreate, "insert_failed", err)
	}
	s.logger.Debug("reminder created",
		zap.Int64("user_id", reminder.UserID),
		zap.Int64("reminder_id", reminder.ID),
		zap.Time("remind_at", reminder.RemindAt()))
	return reminder, nil
}

// Get returns a reminder owned by userID.
func (s *Service) Get(ctx context.Context, userID, reminderID int64) (store.Reminder, error) {
	return s.owned(ctx, opGet, userID, reminderID)
}

// List returns the user's reminders, latest due time first.
func (s *Service) List(ctx context.Context, userID int64) ([]store.Reminder, error) {
	reminders, err := s.store.ListUserReminders(ctx, userID)
	if err != nil {
		return nil, serviceerr.New(opList, "query_failed", err)
	}
	return reminders, nil
}

// Complete marks the reminder completed, excluding it from every scheduler scan.
// It reports whether this call changed the reminder.
func (s *Service) Complete(ctx context.Context, userID, reminderID int64) (bool, error) {
	if _, err := s.owned(ctx, opComplete, userID, reminderID); err != nil {
		return false, err
	}
	changed, err := s.store.SetReminderFlag(ctx, reminderID, store.FlagCompleted)
	if err != nil {
		return false, serviceerr.New(opComplete, "update_failed", err)
	}
	return changed, nil
}

// Delete removes a reminder owned by userID.
func (s *Service) Delete(ctx context.Context, userID, reminderID int64) error {
	if _, err := s.owned(ctx, opDelete, userID, reminderID); err != nil {
		return err
	}
	err := s.store.DeleteReminder(ctx, reminderID)
	if errors.Is(err, store.ErrNotFound) {
		return serviceerr.New(opDelete, "not_found", ErrReminderNotFound)
	}
	if err != nil {
		return serviceerr.New(opDelete, "delete_failed", err)
	}
	return nil
}

// Counts returns total and completed reminders for the user.
func (s *Service) Counts(ctx context.Context, userID int64) (store.ReminderCounts, error) {
	counts, err := s.store.CountReminders(ctx, userID)
	if err != nil {
		return store.ReminderCounts{}, serviceerr.New(opCounts, "query_failed", err)
	}
	return counts, nil
}

func (s *Service) owned(ctx context.Context, operation string, userID, reminderID int64) (store.Reminder, error) {
	reminder, err := s.store.GetReminder(ctx, reminderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && reminder.UserID != userID) {
		return store.Reminder{}, serviceerr.New(operation, "not_found", ErrReminderNotFound)
	}
	if err != nil {
		s.logger.Error("reminder lookup failed",
			zap.String("operation", operation),
			zap.Int64("reminder_id", reminderID),
			zap.Error(err))
		return store.Reminder{}, serviceerr.New(operation, "query_failed", err)
	}
	return reminder, nil
}
