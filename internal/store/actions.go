package store

import (
	"context"

	"go.uber.org/zap"
)

// AppendDailyAction records a successful XP grant.
func (s *Store) AppendDailyAction(ctx context.Context, action DailyAction) error {
	if action.Count == 0 {
		action.Count = 1
	}
	if err := s.conn(ctx).Create(&action).Error; err != nil {
		s.logError("store.append_daily_action", err, zap.Int64("user_id", action.UserID))
		return err
	}
	return nil
}

// SumDailyXP aggregates the XP granted to a user on the given date.
func (s *Store) SumDailyXP(ctx context.Context, userID int64, date string) (int, error) {
	var total int
	err := s.conn(ctx).Model(&DailyAction{}).
		Select("COALESCE(SUM(xp_earned), 0)").
		Where("user_id = ? AND action_date = ?", userID, date).
		Scan(&total).Error
	return total, err
}

// AppendActionLog records a user-facing action.
func (s *Store) AppendActionLog(ctx context.Context, entry ActionLog) error {
	if err := s.conn(ctx).Create(&entry).Error; err != nil {
		s.logError("store.append_action_log", err, zap.Int64("user_id", entry.UserID))
		return err
	}
	return nil
}

// ListActionLogs pages through the action log, newest first.
// A positive userID restricts the listing to that user.
func (s *Store) ListActionLogs(ctx context.Context, userID int64, limit, offset int) ([]ActionLog, error) {
	query := s.conn(ctx).Model(&ActionLog{})
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	var entries []ActionLog
	err := query.
		Order("created_at_s DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}

// CountActionLogs returns the number of action log entries.
func (s *Store) CountActionLogs(ctx context.Context) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&ActionLog{}).Count(&count).Error
	return count, err
}
