package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/progression"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	migrationSeedLevelRewards = "2026-01-10_seed_level_rewards"
	migrationRepairUserLevels = "2026-01-24_repair_user_levels"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedLevelRewards, apply: seedLevelRewards},
		{name: migrationRepairUserLevels, apply: repairUserLevels},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func seedLevelRewards(db *gorm.DB) error {
	rewards := progression.DefaultRewards()
	if err := progression.ValidateRewards(rewards); err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "level"}}, DoNothing: true}).
		Create(&rewards).Error
}

// repairUserLevels rewrites stored levels that disagree with the XP-derived level.
func repairUserLevels(db *gorm.DB) error {
	var users []store.User
	if err := db.Select("user_id", "xp", "level").Find(&users).Error; err != nil {
		return err
	}
	for _, user := range users {
		expected := progression.LevelForXP(user.XP)
		if user.Level == expected {
			continue
		}
		err := db.Model(&store.User{}).
			Where("user_id = ?", user.UserID).
			Update("level", expected).Error
		if err != nil {
			return err
		}
	}
	return nil
}
