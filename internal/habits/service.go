// Package habits stores recurring habits and counts completion streaks by calendar date.
package habits

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("database handle is required")

const (
	opServiceNew = "habits.service.new"
	opCreate     = "habits.create"
	opList       = "habits.list"
	opGet        = "habits.get"
	opComplete   = "habits.complete"
	opDelete     = "habits.delete"
	opSummary    = "habits.summary"
)

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Location *time.Location
	Logger   *zap.Logger
}

type Service struct {
	db       *gorm.DB
	clock    func() time.Time
	location *time.Location
	logger   *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, location: location, logger: logger}, nil
}

// Create stores a new habit with an empty streak.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Habit, error) {
	request, err := request.normalized()
	if err != nil {
		return Habit{}, serviceerr.New(opCreate, "invalid_habit", err)
	}
	habit := Habit{
		UserID:           request.UserID,
		Name:             request.Name,
		Description:      request.Description,
		Frequency:        request.Frequency,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&habit).Error; err != nil {
		s.logError(opCreate, "habit_insert_failed", err, zap.Int64("user_id", request.UserID))
		return Habit{}, serviceerr.New(opCreate, "habit_insert_failed", err)
	}
	return habit, nil
}

// List returns the user's habits, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]Habit, error) {
	var habits []Habit
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_s DESC").
		Order("id DESC").
		Find(&habits).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.Int64("user_id", userID))
		return nil, serviceerr.New(opList, "query_failed", err)
	}
	return habits, nil
}

// Get returns a habit owned by the user.
func (s *Service) Get(ctx context.Context, userID, habitID int64) (Habit, error) {
	return s.owned(ctx, s.db.WithContext(ctx), opGet, userID, habitID)
}

// Complete records today's completion. Completing twice on the same date is a no-op.
// The streak continues when the previous completion falls inside the habit's period
// (yesterday for daily habits, the last seven days for weekly ones) and restarts at 1 otherwise.
func (s *Service) Complete(ctx context.Context, userID, habitID int64) (CompleteResult, error) {
	now := s.clock()
	today := store.DateOf(now, s.location)

	var result CompleteResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := s.owned(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), opComplete, userID, habitID)
		if err != nil {
			return err
		}
		if habit.LastCompleted == today {
			result = CompleteResult{Habit: habit, AlreadyDone: true}
			return nil
		}
		if habit.LastCompleted != "" && habit.LastCompleted >= streakCutoff(now, s.location, habit.Frequency) {
			habit.Streak++
		} else {
			habit.Streak = 1
		}
		habit.TotalCompletions++
		habit.LastCompleted = today
		err = tx.Model(&Habit{}).
			Where("id = ?", habit.ID).
			Updates(map[string]interface{}{
				"streak":            habit.Streak,
				"total_completions": habit.TotalCompletions,
				"last_completed":    habit.LastCompleted,
			}).Error
		if err != nil {
			s.logError(opComplete, "habit_update_failed", err, zap.Int64("habit_id", habit.ID))
			return serviceerr.New(opComplete, "habit_update_failed", err)
		}
		result = CompleteResult{Habit: habit}
		return nil
	})
	if txErr != nil {
		return CompleteResult{}, txErr
	}
	return result, nil
}

// streakCutoff is the earliest previous-completion date that keeps a streak alive.
func streakCutoff(now time.Time, location *time.Location, frequency string) string {
	days := 1
	if frequency == FrequencyWeekly {
		days = 7
	}
	return store.DateOf(now.In(location).AddDate(0, 0, -days), location)
}

// Delete removes a habit owned by the user.
func (s *Service) Delete(ctx context.Context, userID, habitID int64) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", habitID, userID).
		Delete(&Habit{})
	if result.Error != nil {
		s.logError(opDelete, "habit_delete_failed", result.Error, zap.Int64("habit_id", habitID))
		return serviceerr.New(opDelete, "habit_delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return serviceerr.New(opDelete, "not_found", ErrHabitNotFound)
	}
	return nil
}

// Summary aggregates habit count, summed streaks, and completions.
// A non-positive userID aggregates every user's habits.
func (s *Service) Summary(ctx context.Context, userID int64) (Summary, error) {
	query := s.db.WithContext(ctx).Model(&Habit{})
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	var summary Summary
	err := query.
		Select("COUNT(*) AS count, COALESCE(SUM(streak), 0) AS streak_sum, COALESCE(SUM(total_completions), 0) AS completions").
		Scan(&summary).Error
	if err != nil {
		s.logError(opSummary, "query_failed", err, zap.Int64("user_id", userID))
		return Summary{}, serviceerr.New(opSummary, "query_failed", err)
	}
	return summary, nil
}

func (s *Service) owned(ctx context.Context, db *gorm.DB, operation string, userID, habitID int64) (Habit, error) {
	var habit Habit
	err := db.WithContext(ctx).Where("id = ? AND user_id = ?", habitID, userID).Take(&habit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Habit{}, serviceerr.New(operation, "not_found", ErrHabitNotFound)
	}
	if err != nil {
		s.logError(operation, "habit_select_failed", err, zap.Int64("habit_id", habitID))
		return Habit{}, serviceerr.New(operation, "habit_select_failed", err)
	}
	return habit, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("habits service error", attrs...)
}
