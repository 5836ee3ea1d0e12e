package progression

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/assistant/internal/settings"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrUserNotFound indicates the user has not been created yet.
	ErrUserNotFound = errors.New("progression: user not found")
	// ErrNegativeAmount indicates a negative XP amount was requested.
	ErrNegativeAmount = errors.New("progression: amount must not be negative")

	errMissingStore    = errors.New("store is required")
	errMissingSettings = errors.New("settings source is required")
)

const (
	opEngineNew       = "progression.engine.new"
	opAwardXP         = "progression.award_xp"
	opCheckDailyLimit = "progression.check_daily_limit"
	opLevelProgress   = "progression.level_progress"
	opRewards         = "progression.rewards"

	defaultCategory = "general"
)

// EngineConfig describes the dependencies of the progression engine.
type EngineConfig struct {
	Store    *store.Store
	Settings settings.Source
	Clock    func() time.Time
	Location *time.Location
	Logger   *zap.Logger
}

// Engine awards XP under the daily ceiling, derives levels and grants level rewards.
type Engine struct {
	store    *store.Store
	settings settings.Source
	clock    func() time.Time
	location *time.Location
	logger   *zap.Logger
}

// NewEngine validates the configuration and builds an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opEngineNew, "missing_store", errMissingStore)
	}
	if cfg.Settings == nil {
		return nil, serviceerr.New(opEngineNew, "missing_settings", errMissingSettings)
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
	return &Engine{
		store:    cfg.Store,
		settings: cfg.Settings,
		clock:    clock,
		location: location,
		logger:   logger,
	}, nil
}

// AwardResult describes the outcome of one AwardXP call.
// LimitReached is a normal outcome, not an error: nothing was granted and Remaining
// carries the (non-positive) headroom.
type AwardResult struct {
	Granted      int
	XP           int
	Level        int
	LeveledUp    bool
	RewardLabel  string
	BonusGranted int
	LimitReached bool
	Remaining    int
	DailyXP      int
	DailyLimit   int
}

// LimitCheck is the pre-flight view of the daily ceiling.
type LimitCheck struct {
	Allowed    bool
	Remaining  int
	DailyXP    int
	DailyLimit int
}

// Progress describes a user's position within the current level.
type Progress struct {
	Level       int
	XP          int
	LevelXP     int
	NextLevelXP int
	XPInLevel   int
	XPNeeded    int
	Percent     float64
	DailyXP     int
	DailyLimit  int
}

// dailyAccrued applies the lazy daily reset: a counter anchored before today counts as zero.
// Every XP-affecting path calls it before looking at the counter.
func dailyAccrued(user store.User, today string) (int, bool) {
	if user.DailyAnchorDate < today {
		return 0, true
	}
	return user.DailyXP, false
}

func (e *Engine) today() string {
	return store.DateOf(e.clock(), e.location)
}

// AwardXP grants up to amount XP to the user, capped by the remaining daily headroom,
// and resolves a level-up reward when the grant crosses into a higher level.
// All writes happen in one transaction.
func (e *Engine) AwardXP(ctx context.Context, userID int64, amount int, category string) (AwardResult, error) {
	if amount < 0 {
		return AwardResult{}, serviceerr.New(opAwardXP, "negative_amount", ErrNegativeAmount)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = defaultCategory
	}
	values, err := e.settings.Current(ctx)
	if err != nil {
		e.logError(opAwardXP, "settings_failed", err, zap.Int64("user_id", userID))
		return AwardResult{}, serviceerr.New(opAwardXP, "settings_failed", err)
	}
	today := e.today()

	var result AwardResult
	txErr := e.store.Transaction(ctx, func(tx *store.Store) error {
		user, err := tx.GetUserForUpdate(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return serviceerr.New(opAwardXP, "user_not_found", ErrUserNotFound)
		}
		if err != nil {
			e.logError(opAwardXP, "user_select_failed", err, zap.Int64("user_id", userID))
			return serviceerr.New(opAwardXP, "user_select_failed", err)
		}

		daily, rolledOver := dailyAccrued(user, today)
		remaining := values.DailyXPLimit - daily
		result = AwardResult{
			XP:         user.XP,
			Level:      user.Level,
			Remaining:  remaining,
			DailyXP:    daily,
			DailyLimit: values.DailyXPLimit,
		}

		granted := 0
		if remaining <= 0 {
			result.LimitReached = true
		} else {
			granted = min(amount, remaining)
		}
		if granted == 0 {
			if rolledOver {
				if _, err := tx.ResetDailyXP(ctx, userID, today); err != nil {
					return serviceerr.New(opAwardXP, "daily_reset_failed", err)
				}
			}
			return nil
		}

		newXP := user.XP + granted
		newLevel := LevelForXP(newXP)
		update := store.ProgressionUpdate{
			UserID:          userID,
			XP:              newXP,
			Level:           newLevel,
			DailyXP:         daily + granted,
			DailyAnchorDate: today,
			LastActiveDate:  today,
		}
		if err := tx.UpdateUserProgression(ctx, update); err != nil {
			return serviceerr.New(opAwardXP, "user_update_failed", err)
		}
		if err := tx.AppendDailyAction(ctx, store.DailyAction{
			UserID:     userID,
			ActionType: category,
			ActionDate: today,
			XPEarned:   granted,
		}); err != nil {
			return serviceerr.New(opAwardXP, "daily_action_insert_failed", err)
		}

		result.Granted = granted
		result.XP = newXP
		result.Level = newLevel
		result.DailyXP = update.DailyXP
		result.Remaining = values.DailyXPLimit - update.DailyXP

		if newLevel <= user.Level {
			return nil
		}
		result.LeveledUp = true

		// Only the final level's reward is resolved; tiers jumped over are not granted.
		reward, found, err := tx.GetLevelReward(ctx, newLevel)
		if err != nil {
			e.logError(opAwardXP, "reward_lookup_failed", err, zap.Int64("user_id", userID), zap.Int("level", newLevel))
			return serviceerr.New(opAwardXP, "reward_lookup_failed", err)
		}
		if !found {
			return nil
		}
		result.RewardLabel = reward.RewardText
		if reward.RewardXP <= 0 {
			return nil
		}

		// The bonus is a reward, not earned activity: it bypasses the daily ceiling.
		update.XP = newXP + reward.RewardXP
		update.Level = LevelForXP(update.XP)
		if err := tx.UpdateUserProgression(ctx, update); err != nil {
			return serviceerr.New(opAwardXP, "bonus_update_failed", err)
		}
		if update.Level > newLevel {
			e.logger.Debug("reward bonus crossed further levels",
				zap.Int64("user_id", userID),
				zap.Int("rewarded_level", newLevel),
				zap.Int("final_level", update.Level))
		}
		result.BonusGranted = reward.RewardXP
		result.XP = update.XP
		result.Level = update.Level
		return nil
	})
	if txErr != nil {
		return AwardResult{}, txErr
	}

	if result.LeveledUp {
		e.logger.Info("user leveled up",
			zap.Int64("user_id", userID),
			zap.Int("level", result.Level),
			zap.String("reward", result.RewardLabel),
			zap.Int("bonus_xp", result.BonusGranted))
	}
	return result, nil
}

// CheckDailyLimit reports whether amount fits under today's ceiling without granting anything.
// A stale daily counter is reset as a side effect, exactly as AwardXP would.
func (e *Engine) CheckDailyLimit(ctx context.Context, userID int64, amount int) (LimitCheck, error) {
	if amount < 0 {
		return LimitCheck{}, serviceerr.New(opCheckDailyLimit, "negative_amount", ErrNegativeAmount)
	}
	values, err := e.settings.Current(ctx)
	if err != nil {
		return LimitCheck{}, serviceerr.New(opCheckDailyLimit, "settings_failed", err)
	}
	today := e.today()

	var check LimitCheck
	txErr := e.store.Transaction(ctx, func(tx *store.Store) error {
		user, err := tx.GetUserForUpdate(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return serviceerr.New(opCheckDailyLimit, "user_not_found", ErrUserNotFound)
		}
		if err != nil {
			return serviceerr.New(opCheckDailyLimit, "user_select_failed", err)
		}
		daily, rolledOver := dailyAccrued(user, today)
		if rolledOver {
			if _, err := tx.ResetDailyXP(ctx, userID, today); err != nil {
				return serviceerr.New(opCheckDailyLimit, "daily_reset_failed", err)
			}
		}
		check = LimitCheck{
			Allowed:    daily+amount <= values.DailyXPLimit,
			Remaining:  values.DailyXPLimit - daily,
			DailyXP:    daily,
			DailyLimit: values.DailyXPLimit,
		}
		return nil
	})
	if txErr != nil {
		return LimitCheck{}, txErr
	}
	return check, nil
}

// LevelProgress derives the user's progress toward the next level. It does not write.
func (e *Engine) LevelProgress(ctx context.Context, userID int64) (Progress, error) {
	user, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Progress{}, serviceerr.New(opLevelProgress, "user_not_found", ErrUserNotFound)
	}
	if err != nil {
		e.logError(opLevelProgress, "user_select_failed", err, zap.Int64("user_id", userID))
		return Progress{}, serviceerr.New(opLevelProgress, "user_select_failed", err)
	}
	values, err := e.settings.Current(ctx)
	if err != nil {
		return Progress{}, serviceerr.New(opLevelProgress, "settings_failed", err)
	}
	daily, _ := dailyAccrued(user, e.today())
	return computeProgress(user, daily, values.DailyXPLimit), nil
}

func computeProgress(user store.User, daily, dailyLimit int) Progress {
	level := user.Level
	if level < 1 {
		level = 1
	}
	levelXP := XPForLevel(level - 1)
	nextLevelXP := XPForLevel(level)
	xpInLevel := user.XP - levelXP
	xpNeeded := nextLevelXP - levelXP

	percent := 0.0
	if xpNeeded > 0 {
		percent = float64(xpInLevel) / float64(xpNeeded) * 100
	}
	percent = max(0, min(100, percent))

	return Progress{
		Level:       level,
		XP:          user.XP,
		LevelXP:     levelXP,
		NextLevelXP: nextLevelXP,
		XPInLevel:   xpInLevel,
		XPNeeded:    xpNeeded,
		Percent:     percent,
		DailyXP:     daily,
		DailyLimit:  dailyLimit,
	}
}

// Rewards returns the level reward table.
func (e *Engine) Rewards(ctx context.Context) ([]store.LevelReward, error) {
	rewards, err := e.store.ListLevelRewards(ctx)
	if err != nil {
		e.logError(opRewards, "query_failed", err)
		return nil, serviceerr.New(opRewards, "query_failed", err)
	}
	return rewards, nil
}

// RewardTitle returns the label of the highest reward tier at or below level.
func (e *Engine) RewardTitle(ctx context.Context, level int) (string, error) {
	rewards, err := e.Rewards(ctx)
	if err != nil {
		return "", err
	}
	title := ""
	for _, reward := range rewards {
		if reward.Level > level {
			break
		}
		title = reward.RewardText
	}
	return title, nil
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("progression engine error", attrs...)
}
