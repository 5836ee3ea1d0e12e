package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/auth"
	"github.com/MarcoPoloResearchLab/assistant/internal/config"
	"github.com/MarcoPoloResearchLab/assistant/internal/database"
	"github.com/MarcoPoloResearchLab/assistant/internal/habits"
	"github.com/MarcoPoloResearchLab/assistant/internal/lease"
	"github.com/MarcoPoloResearchLab/assistant/internal/notes"
	"github.com/MarcoPoloResearchLab/assistant/internal/notify"
	"github.com/MarcoPoloResearchLab/assistant/internal/progression"
	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"github.com/MarcoPoloResearchLab/assistant/internal/server"
	"github.com/MarcoPoloResearchLab/assistant/internal/settings"
	"github.com/MarcoPoloResearchLab/assistant/internal/stats"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/MarcoPoloResearchLab/assistant/internal/users"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errRealtimeNeedsServer = errors.New("the realtime notifier is only available inside serve")

// application holds every long-lived component built from AppConfig.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	db        *gorm.DB
	store     *store.Store
	settings  *settings.Provider
	engine    *progression.Engine
	users     *users.Service
	reminders *reminders.Service
	notes     *notes.Service
	habits    *habits.Service
	stats     *stats.Projector
	realtime  *server.RealtimeDispatcher
	redis     *redis.Client
	scheduler *reminders.Scheduler
}

// newApplication opens storage and wires the services. withRealtime enables the
// in-process SSE dispatcher, which is meaningful only while the HTTP server runs.
func newApplication(ctx context.Context, cfg config.AppConfig, logger *zap.Logger, withRealtime bool) (*application, error) {
	app := &application{config: cfg, logger: logger}
	if err := app.open(ctx, withRealtime); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) open(ctx context.Context, withRealtime bool) error {
	cfg := a.config
	db, err := database.OpenSQLite(cfg.DatabasePath, a.logger)
	if err != nil {
		return err
	}
	a.db = db

	a.store, err = store.New(store.Config{Database: db, Logger: a.logger})
	if err != nil {
		return err
	}
	a.settings = settings.NewProvider(a.store, settings.Values{
		DailyXPLimit: cfg.XP.DailyLimit,
		ReminderXP:   cfg.XP.Reminder,
		HabitXP:      cfg.XP.Habit,
		NoteXP:       cfg.XP.Note,
		StartXP:      cfg.XP.Start,
	}, a.logger)

	a.engine, err = progression.NewEngine(progression.EngineConfig{
		Store:    a.store,
		Settings: a.settings,
		Location: cfg.Location,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.users, err = users.NewService(users.ServiceConfig{
		Store:    a.store,
		Settings: a.settings,
		Awarder:  a.engine,
		AdminIDs: cfg.AdminUserIDs,
		Location: cfg.Location,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.reminders, err = reminders.NewService(reminders.ServiceConfig{Store: a.store, Logger: a.logger})
	if err != nil {
		return err
	}
	a.notes, err = notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	a.habits, err = habits.NewService(habits.ServiceConfig{Database: db, Location: cfg.Location, Logger: a.logger})
	if err != nil {
		return err
	}
	a.stats, err = stats.NewProjector(stats.ProjectorConfig{
		Store:    a.store,
		Engine:   a.engine,
		Notes:    a.notes,
		Habits:   a.habits,
		Location: cfg.Location,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	if withRealtime {
		a.realtime = server.NewRealtimeDispatcher()
	}

	if cfg.RedisAddress != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddress, Password: cfg.RedisPassword})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.RedisAddress, err)
		}
	}

	notifier, err := a.buildNotifier()
	if err != nil {
		return err
	}
	var tickLease reminders.Lease
	if a.redis != nil {
		tickLease, err = lease.NewRedisLease(lease.RedisLeaseConfig{Client: a.redis, TTL: cfg.LeaseTTL})
		if err != nil {
			return err
		}
	}
	a.scheduler, err = reminders.NewScheduler(reminders.SchedulerConfig{
		Store:         a.store,
		Notifier:      notifier,
		PreNotifyLead: cfg.PreNotifyLead,
		NotifyTimeout: cfg.NotifyTimeout,
		Lease:         tickLease,
		Logger:        a.logger,
	})
	return err
}

func (a *application) buildNotifier() (reminders.Notifier, error) {
	switch a.config.NotifierKind {
	case config.NotifierRedis:
		notifier, err := notify.NewRedisStreamNotifier(notify.RedisStreamConfig{Client: a.redis, Stream: a.config.RedisStream})
		if err != nil {
			return nil, err
		}
		return notifier, nil
	case config.NotifierWebhook:
		notifier, err := notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:    a.config.WebhookURL,
			Client: &http.Client{Timeout: a.config.NotifyTimeout},
		})
		if err != nil {
			return nil, err
		}
		return notifier, nil
	case config.NotifierRealtime:
		if a.realtime == nil {
			return nil, errRealtimeNeedsServer
		}
		return a.realtime, nil
	default:
		return notify.NewLogNotifier(a.logger), nil
	}
}

func (a *application) httpHandler(tokens *auth.TokenIssuer) (http.Handler, error) {
	return server.NewHTTPHandler(server.Dependencies{
		Tokens:    tokens,
		Users:     a.users,
		Engine:    a.engine,
		Settings:  a.settings,
		Store:     a.store,
		Reminders: a.reminders,
		Notes:     a.notes,
		Habits:    a.habits,
		Stats:     a.stats,
		Realtime:  a.realtime,
		Logger:    a.logger,
	})
}

// Close releases the Redis client and the database handle.
func (a *application) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func newTokenIssuer(cfg config.AppConfig) (*auth.TokenIssuer, error) {
	if err := cfg.RequireSigningSecret(); err != nil {
		return nil, err
	}
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(cfg.SigningSecret),
		Issuer:        cfg.TokenIssuer,
		TokenTTL:      cfg.TokenTTL,
	})
}
