package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReminderFlag names one of the monotonic boolean columns of a reminder.
type ReminderFlag string

const (
	FlagPreNotified ReminderFlag = "pre_notified"
	FlagNotified    ReminderFlag = "notified"
	FlagCompleted   ReminderFlag = "is_completed"
)

func (f ReminderFlag) column() (string, error) {
	switch f {
	case FlagPreNotified, FlagNotified, FlagCompleted:
		return string(f), nil
	default:
		return "", fmt.Errorf("store: unknown reminder flag %q", string(f))
	}
}

// CreateReminder inserts a reminder and fills in its id.
func (s *Store) CreateReminder(ctx context.Context, reminder *Reminder) error {
	if err := s.conn(ctx).Create(reminder).Error; err != nil {
		s.logError("store.create_reminder", err, zap.Int64("user_id", reminder.UserID))
		return err
	}
	return nil
}

// GetReminder loads a reminder by id.
func (s *Store) GetReminder(ctx context.Context, reminderID int64) (Reminder, error) {
	var reminder Reminder
	err := s.conn(ctx).Where("id = ?", reminderID).Take(&reminder).Error
	return reminder, translateNotFound(err)
}

// ListUserReminders returns a user's reminders, latest due time first.
func (s *Store) ListUserReminders(ctx context.Context, userID int64) ([]Reminder, error) {
	var reminders []Reminder
	err := s.conn(ctx).
		Where("user_id = ?", userID).
		Order("remind_at_s DESC").
		Order("id DESC").
		Find(&reminders).Error
	return reminders, err
}

// DeleteReminder removes a reminder row.
func (s *Store) DeleteReminder(ctx context.Context, reminderID int64) error {
	result := s.conn(ctx).Where("id = ?", reminderID).Delete(&Reminder{})
	if result.Error != nil {
		s.logError("store.delete_reminder", result.Error, zap.Int64("reminder_id", reminderID))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPreNotifyDue selects open reminders not yet pre-notified whose due time lies in
// (now, now+lead], earliest first.
func (s *Store) ListPreNotifyDue(ctx context.Context, now time.Time, lead time.Duration) ([]Reminder, error) {
	nowSeconds := now.Unix()
	var reminders []Reminder
	err := s.conn(ctx).
		Where("is_completed = ? AND pre_notified = ?", false, false).
		Where("remind_at_s > ? AND remind_at_s <= ?", nowSeconds, now.Add(lead).Unix()).
		Order("remind_at_s ASC").
		Order("id ASC").
		Find(&reminders).Error
	return reminders, err
}

// ListFireDue selects open reminders not yet notified whose due time is at or before now,
// earliest first.
func (s *Store) ListFireDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	var reminders []Reminder
	err := s.conn(ctx).
		Where("is_completed = ? AND notified = ?", false, false).
		Where("remind_at_s <= ?", now.Unix()).
		Order("remind_at_s ASC").
		Order("id ASC").
		Find(&reminders).Error
	return reminders, err
}

// SetReminderFlag sets flag to true if it is currently false.
// It reports whether this call changed the row; flags are never reset.
func (s *Store) SetReminderFlag(ctx context.Context, reminderID int64, flag ReminderFlag) (bool, error) {
	column, err := flag.column()
	if err != nil {
		return false, err
	}
	result := s.conn(ctx).Model(&Reminder{}).
		Where("id = ? AND "+column+" = ?", reminderID, false).
		Update(column, true)
	if result.Error != nil {
		s.logError("store.set_reminder_flag", result.Error,
			zap.Int64("reminder_id", reminderID),
			zap.String("flag", column))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReminderCounts summarises reminder rows.
type ReminderCounts struct {
	Total     int64
	Completed int64
}

// CountReminders counts reminders; a positive userID restricts the count to that user.
func (s *Store) CountReminders(ctx context.Context, userID int64) (ReminderCounts, error) {
	var counts ReminderCounts
	query := s.conn(ctx).Model(&Reminder{})
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	err := query.
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_completed THEN 1 ELSE 0 END), 0) AS completed").
		Scan(&counts).Error
	return counts, err
}
