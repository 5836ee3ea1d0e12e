package store

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// GetSetting returns the persisted value for key; ok is false when the key is unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var setting Setting
	err := s.conn(ctx).Where("key = ?", key).Take(&setting).Error
	if err != nil {
		if translateNotFound(err) == ErrNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return setting.Value, true, nil
}

// SetSetting upserts a persisted value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	err := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&Setting{Key: key, Value: value}).Error
	if err != nil {
		s.logError("store.set_setting", err, zap.String("key", key))
	}
	return err
}

// ListSettings returns every persisted override.
func (s *Store) ListSettings(ctx context.Context) ([]Setting, error) {
	var settings []Setting
	err := s.conn(ctx).Order("key ASC").Find(&settings).Error
	return settings, err
}
