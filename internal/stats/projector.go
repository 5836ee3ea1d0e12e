// Package stats projects stored state into read-only views for the statistics endpoints.
package stats

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/habits"
	"github.com/MarcoPoloResearchLab/assistant/internal/notes"
	"github.com/MarcoPoloResearchLab/assistant/internal/progression"
	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	opProjectorNew = "stats.projector.new"
	opUserStats    = "stats.user"
	opGlobalStats  = "stats.global"
	opListUsers    = "stats.list_users"
)

var errMissingDependency = errors.New("projector dependency is required")

// NoteCounter counts notes; a non-positive user id counts all users.
type NoteCounter interface {
	Counts(ctx context.Context, userID int64) (notes.Counts, error)
}

// HabitSummarizer aggregates habits; a non-positive user id aggregates all users.
type HabitSummarizer interface {
	Summary(ctx context.Context, userID int64) (habits.Summary, error)
}

// ProjectorConfig describes the read sources of the projector.
type ProjectorConfig struct {
	Store    *store.Store
	Engine   *progression.Engine
	Notes    NoteCounter
	Habits   HabitSummarizer
	Clock    func() time.Time
	Location *time.Location
	Logger   *zap.Logger
}

// Projector builds statistics views. It never writes.
type Projector struct {
	store    *store.Store
	engine   *progression.Engine
	notes    NoteCounter
	habits   HabitSummarizer
	clock    func() time.Time
	location *time.Location
	logger   *zap.Logger
}

func NewProjector(cfg ProjectorConfig) (*Projector, error) {
	if cfg.Store == nil || cfg.Engine == nil || cfg.Notes == nil || cfg.Habits == nil {
		return nil, serviceerr.New(opProjectorNew, "missing_dependency", errMissingDependency)
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
	return &Projector{
		store:    cfg.Store,
		engine:   cfg.Engine,
		notes:    cfg.Notes,
		habits:   cfg.Habits,
		clock:    clock,
		location: location,
		logger:   logger,
	}, nil
}

// UserStats is the per-user statistics view.
type UserStats struct {
	UserID             int64   `json:"user_id"`
	Username           string  `json:"username"`
	Level              int     `json:"level"`
	XP                 int     `json:"xp"`
	NextLevelXP        int     `json:"next_level_xp"`
	XPInLevel          int     `json:"xp_in_level"`
	XPNeeded           int     `json:"xp_needed"`
	ProgressPercent    float64 `json:"progress_percent"`
	Reward             string  `json:"reward"`
	DailyXP            int     `json:"daily_xp"`
	DailyLimit         int     `json:"daily_limit"`
	TodayXP            int     `json:"today_xp"`
	Reminders          int64   `json:"reminders"`
	CompletedReminders int64   `json:"completed_reminders"`
	Notes              int64   `json:"notes"`
	PinnedNotes        int64   `json:"pinned_notes"`
	Habits             int64   `json:"habits"`
	Streak             int64   `json:"streak"`
	HabitCompletions   int64   `json:"habit_completions"`
}

// UserStats assembles the view for one user.
func (p *Projector) UserStats(ctx context.Context, userID int64) (UserStats, error) {
	user, err := p.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return UserStats{}, serviceerr.New(opUserStats, "user_not_found", progression.ErrUserNotFound)
	}
	if err != nil {
		return UserStats{}, serviceerr.New(opUserStats, "user_select_failed", err)
	}

	var (
		progress      progression.Progress
		reward        string
		todayXP       int
		reminderCount store.ReminderCounts
		noteCounts    notes.Counts
		habitSummary  habits.Summary
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		progress, err = p.engine.LevelProgress(groupCtx, userID)
		return err
	})
	group.Go(func() (err error) {
		reward, err = p.engine.RewardTitle(groupCtx, user.Level)
		return err
	})
	group.Go(func() (err error) {
		todayXP, err = p.store.SumDailyXP(groupCtx, userID, store.DateOf(p.clock(), p.location))
		return err
	})
	group.Go(func() (err error) {
		reminderCount, err = p.store.CountReminders(groupCtx, userID)
		return err
	})
	group.Go(func() (err error) {
		noteCounts, err = p.notes.Counts(groupCtx, userID)
		return err
	})
	group.Go(func() (err error) {
		habitSummary, err = p.habits.Summary(groupCtx, userID)
		return err
	})
	if err := group.Wait(); err != nil {
		p.logger.Error("user stats projection failed", zap.Int64("user_id", userID), zap.Error(err))
		return UserStats{}, serviceerr.New(opUserStats, "projection_failed", err)
	}

	return UserStats{
		UserID:             user.UserID,
		Username:           user.Username,
		Level:              progress.Level,
		XP:                 progress.XP,
		NextLevelXP:        progress.NextLevelXP,
		XPInLevel:          progress.XPInLevel,
		XPNeeded:           progress.XPNeeded,
		ProgressPercent:    progress.Percent,
		Reward:             reward,
		DailyXP:            progress.DailyXP,
		DailyLimit:         progress.DailyLimit,
		TodayXP:            todayXP,
		Reminders:          reminderCount.Total,
		CompletedReminders: reminderCount.Completed,
		Notes:              noteCounts.Total,
		PinnedNotes:        noteCounts.Pinned,
		Habits:             habitSummary.Count,
		Streak:             habitSummary.StreakSum,
		HabitCompletions:   habitSummary.Completions,
	}, nil
}

// GlobalStats is the bot-wide statistics view.
type GlobalStats struct {
	UsersCount         int64 `json:"users_count"`
	ActiveToday        int64 `json:"active_today"`
	TotalReminders     int64 `json:"total_reminders"`
	CompletedReminders int64 `json:"completed_reminders"`
	TotalNotes         int64 `json:"total_notes"`
	TotalHabits        int64 `json:"total_habits"`
	TotalLogs          int64 `json:"total_logs"`
}

// GlobalStats aggregates counts across all users.
func (p *Projector) GlobalStats(ctx context.Context) (GlobalStats, error) {
	var (
		stats        GlobalStats
		reminders    store.ReminderCounts
		noteCounts   notes.Counts
		habitSummary habits.Summary
	)
	today := store.DateOf(p.clock(), p.location)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		stats.UsersCount, stats.ActiveToday, err = p.store.CountUsers(groupCtx, today)
		return err
	})
	group.Go(func() (err error) {
		reminders, err = p.store.CountReminders(groupCtx, 0)
		return err
	})
	group.Go(func() (err error) {
		noteCounts, err = p.notes.Counts(groupCtx, 0)
		return err
	})
	group.Go(func() (err error) {
		habitSummary, err = p.habits.Summary(groupCtx, 0)
		return err
	})
	group.Go(func() (err error) {
		stats.TotalLogs, err = p.store.CountActionLogs(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		p.logger.Error("global stats projection failed", zap.Error(err))
		return GlobalStats{}, serviceerr.New(opGlobalStats, "projection_failed", err)
	}
	stats.TotalReminders = reminders.Total
	stats.CompletedReminders = reminders.Completed
	stats.TotalNotes = noteCounts.Total
	stats.TotalHabits = habitSummary.Count
	return stats, nil
}

// UserSummary is one row of the admin user listing.
type UserSummary struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Level      int    `json:"level"`
	XP         int    `json:"xp"`
	Reward     string `json:"reward"`
	DailyXP    int    `json:"daily_xp"`
	LastActive string `json:"last_active"`
	IsAdmin    bool   `json:"is_admin"`
}

// ListUsers returns every user ordered by XP, highest first.
func (p *Projector) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return nil, serviceerr.New(opListUsers, "query_failed", err)
	}
	rewards, err := p.engine.Rewards(ctx)
	if err != nil {
		return nil, serviceerr.New(opListUsers, "rewards_failed", err)
	}
	today := store.DateOf(p.clock(), p.location)
	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		daily := user.DailyXP
		if user.DailyAnchorDate < today {
			daily = 0
		}
		summaries = append(summaries, UserSummary{
			UserID:     user.UserID,
			Username:   user.Username,
			Level:      user.Level,
			XP:         user.XP,
			Reward:     titleFor(rewards, user.Level),
			DailyXP:    daily,
			LastActive: user.LastActiveDate,
			IsAdmin:    user.IsAdmin,
		})
	}
	return summaries, nil
}

func titleFor(rewards []store.LevelReward, level int) string {
	title := ""
	for _, reward := range rewards {
		if reward.Level > level {
			break
		}
		title = reward.RewardText
	}
	return title
}
