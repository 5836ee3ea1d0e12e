package store

import (
	"context"

	"gorm.io/gorm/clause"
)

// GetLevelReward returns the reward row for level; ok is false when the level has none.
func (s *Store) GetLevelReward(ctx context.Context, level int) (LevelReward, bool, error) {
	var reward LevelReward
	err := s.conn(ctx).Where("level = ?", level).Take(&reward).Error
	if err != nil {
		if translateNotFound(err) == ErrNotFound {
			return LevelReward{}, false, nil
		}
		return LevelReward{}, false, err
	}
	return reward, true, nil
}

// ListLevelRewards returns the reward table ordered by level.
func (s *Store) ListLevelRewards(ctx context.Context) ([]LevelReward, error) {
	var rewards []LevelReward
	err := s.conn(ctx).Order("level ASC").Find(&rewards).Error
	return rewards, err
}

// SeedLevelRewards inserts reward rows, leaving existing levels untouched.
func (s *Store) SeedLevelRewards(ctx context.Context, rewards []LevelReward) error {
	if len(rewards) == 0 {
		return nil
	}
	return s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "level"}}, DoNothing: true}).
		Create(&rewards).Error
}
