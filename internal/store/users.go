package store

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// ProgressionUpdate is the full set of progression columns written by one XP award.
type ProgressionUpdate struct {
	UserID          int64
	XP              int
	Level           int
	DailyXP         int
	DailyAnchorDate string
	LastActiveDate  string
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.conn(ctx).Where("user_id = ?", userID).Take(&user).Error
	return user, translateNotFound(err)
}

// GetUserForUpdate loads a user row with a write lock where the dialect supports one.
func (s *Store) GetUserForUpdate(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&user).Error
	return user, translateNotFound(err)
}

// CreateUser inserts the user unless a row with the same id exists.
// It reports whether a new row was written.
func (s *Store) CreateUser(ctx context.Context, user User) (bool, error) {
	result := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&user)
	if result.Error != nil {
		s.logError("store.create_user", result.Error, zap.Int64("user_id", user.UserID))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClaimStartXP clears the pending start-XP flag. It reports whether this caller cleared it
// and therefore owns the grant.
func (s *Store) ClaimStartXP(ctx context.Context, userID int64) (bool, error) {
	result := s.conn(ctx).Model(&User{}).
		Where("user_id = ? AND start_xp_pending = ?", userID, true).
		Update("start_xp_pending", false)
	if result.Error != nil {
		s.logError("store.claim_start_xp", result.Error, zap.Int64("user_id", userID))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseStartXP marks the start-XP grant as pending again after a failed award.
func (s *Store) ReleaseStartXP(ctx context.Context, userID int64) error {
	err := s.conn(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Update("start_xp_pending", true).Error
	if err != nil {
		s.logError("store.release_start_xp", err, zap.Int64("user_id", userID))
	}
	return err
}

// UpdateUserProgression writes XP, level, daily counter, anchor date and last-active date
// as a single row update.
func (s *Store) UpdateUserProgression(ctx context.Context, update ProgressionUpdate) error {
	result := s.conn(ctx).Model(&User{}).
		Where("user_id = ?", update.UserID).
		Updates(map[string]interface{}{
			"xp":             update.XP,
			"level":          update.Level,
			"daily_xp":       update.DailyXP,
			"daily_xp_reset": update.DailyAnchorDate,
			"last_active":    update.LastActiveDate,
		})
	if result.Error != nil {
		s.logError("store.update_user_progression", result.Error, zap.Int64("user_id", update.UserID))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetDailyXP zeroes the daily counter when its anchor is older than today.
// It reports whether a reset happened.
func (s *Store) ResetDailyXP(ctx context.Context, userID int64, today string) (bool, error) {
	result := s.conn(ctx).Model(&User{}).
		Where("user_id = ? AND daily_xp_reset < ?", userID, today).
		Updates(map[string]interface{}{"daily_xp": 0, "daily_xp_reset": today})
	if result.Error != nil {
		s.logError("store.reset_daily_xp", result.Error, zap.Int64("user_id", userID))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateUserFields applies profile-level column updates (username, timezone, is_admin).
func (s *Store) UpdateUserFields(ctx context.Context, userID int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	result := s.conn(ctx).Model(&User{}).Where("user_id = ?", userID).Updates(fields)
	if result.Error != nil {
		s.logError("store.update_user_fields", result.Error, zap.Int64("user_id", userID))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns all users ordered by XP, highest first.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.conn(ctx).Order("xp DESC").Order("user_id ASC").Find(&users).Error
	return users, err
}

// CountUsers returns the number of users and how many were active on the given date.
func (s *Store) CountUsers(ctx context.Context, activeDate string) (total int64, activeOnDate int64, err error) {
	if err = s.conn(ctx).Model(&User{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = s.conn(ctx).Model(&User{}).Where("last_active = ?", activeDate).Count(&activeOnDate).Error; err != nil {
		return 0, 0, err
	}
	return total, activeOnDate, nil
}
