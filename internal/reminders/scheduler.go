package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	opSchedulerNew = "reminders.scheduler.new"
	opTick         = "reminders.tick"
	opRun          = "reminders.run"

	tickFlightKey = "tick"

	// DefaultPreNotifyLead is how far ahead of the due time the heads-up is sent.
	DefaultPreNotifyLead = time.Hour
	// DefaultNotifyTimeout bounds a single Notifier call.
	DefaultNotifyTimeout = 10 * time.Second
)

var (
	errMissingNotifier = errors.New("notifier is required")
	errInvalidInterval = errors.New("tick interval must be positive")
)

// DueStore is the slice of the state store the scheduler reads and writes.
type DueStore interface {
	ListPreNotifyDue(ctx context.Context, now time.Time, lead time.Duration) ([]store.Reminder, error)
	ListFireDue(ctx context.Context, now time.Time) ([]store.Reminder, error)
	SetReminderFlag(ctx context.Context, reminderID int64, flag store.ReminderFlag) (bool, error)
}

// Lease guards a tick across processes. Acquire reports ok=false when another holder owns it.
type Lease interface {
	Acquire(ctx context.Context) (held HeldLease, ok bool, err error)
}

// HeldLease is an acquired Lease. Extend fails once the lease has expired or moved to
// another holder.
type HeldLease interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// SchedulerConfig describes the dependencies of the reminder scheduler.
type SchedulerConfig struct {
	Store         DueStore
	Notifier      Notifier
	Clock         func() time.Time
	PreNotifyLead time.Duration
	NotifyTimeout time.Duration
	Lease         Lease
	Logger        *zap.Logger
}

// TickReport summarises one scan-and-dispatch pass.
type TickReport struct {
	PreNotified int
	Fired       int
	Failed      int
	Skipped     bool
}

// Scheduler runs the two-phase pre-notify and fire scans over reminders.
type Scheduler struct {
	store         DueStore
	notifier      Notifier
	clock         func() time.Time
	preNotifyLead time.Duration
	notifyTimeout time.Duration
	lease         Lease
	logger        *zap.Logger
	flight        singleflight.Group
}

// NewScheduler validates the configuration and builds a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opSchedulerNew, "missing_store", errMissingStore)
	}
	if cfg.Notifier == nil {
		return nil, serviceerr.New(opSchedulerNew, "missing_notifier", errMissingNotifier)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	lead := cfg.PreNotifyLead
	if lead <= 0 {
		lead = DefaultPreNotifyLead
	}
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		clock:         clock,
		preNotifyLead: lead,
		notifyTimeout: timeout,
		lease:         cfg.Lease,
		logger:        logger,
	}, nil
}

// Tick performs one pre-notify scan followed by one fire scan.
// Concurrent callers share a single in-flight tick. The tick is detached from ctx
// cancellation so a shutdown never interrupts dispatch between notify and flag update.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	detached := context.WithoutCancel(ctx)
	value, err, _ := s.flight.Do(tickFlightKey, func() (interface{}, error) {
		return s.tick(detached)
	})
	report, _ := value.(TickReport)
	return report, err
}

// Run ticks once immediately and then every interval until ctx is done.
// It returns only after the in-flight tick has completed.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return serviceerr.New(opRun, "invalid_interval", errInvalidInterval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("reminder scheduler started",
		zap.Duration("interval", interval),
		zap.Duration("pre_notify_lead", s.preNotifyLead))
	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return nil
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("reminder tick panic", zap.Any("panic", recovered))
		}
	}()
	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error("reminder tick failed", zap.Error(err))
	}
}

func (s *Scheduler) tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	tickLogger := s.logger.With(zap.String("tick_id", uuid.NewString()))

	var held HeldLease
	if s.lease != nil {
		acquired, ok, err := s.lease.Acquire(ctx)
		if err != nil {
			return report, serviceerr.New(opTick, "lease_failed", err)
		}
		if !ok {
			report.Skipped = true
			tickLogger.Debug("reminder tick skipped, lease held elsewhere")
			return report, nil
		}
		held = acquired
		defer func() {
			if err := held.Release(ctx); err != nil {
				tickLogger.Warn("reminder lease release failed", zap.Error(err))
			}
		}()
	}

	now := s.clock()

	upcoming, err := s.store.ListPreNotifyDue(ctx, now, s.preNotifyLead)
	if err != nil {
		return report, serviceerr.New(opTick, "pre_notify_scan_failed", err)
	}
	for _, reminder := range upcoming {
		if err := s.extendLease(ctx, tickLogger, held); err != nil {
			return report, err
		}
		if s.dispatch(ctx, tickLogger, reminder, KindPreNotify, store.FlagPreNotified) {
			report.PreNotified++
		} else {
			report.Failed++
		}
	}

	due, err := s.store.ListFireDue(ctx, now)
	if err != nil {
		return report, serviceerr.New(opTick, "fire_scan_failed", err)
	}
	for _, reminder := range due {
		if err := s.extendLease(ctx, tickLogger, held); err != nil {
			return report, err
		}
		if s.dispatch(ctx, tickLogger, reminder, KindDue, store.FlagNotified) {
			report.Fired++
		} else {
			report.Failed++
		}
	}

	summary := []zap.Field{
		zap.Int("pre_notified", report.PreNotified),
		zap.Int("fired", report.Fired),
		zap.Int("failed", report.Failed),
	}
	if report.PreNotified+report.Fired+report.Failed > 0 {
		tickLogger.Info("reminder tick dispatched", summary...)
	} else {
		tickLogger.Debug("reminder tick idle", summary...)
	}
	return report, nil
}

// extendLease renews the tick lease before each dispatch so a slow tick keeps exclusive
// ownership. A lost lease stops the tick; the remaining reminders stay unflagged.
func (s *Scheduler) extendLease(ctx context.Context, logger *zap.Logger, held HeldLease) error {
	if held == nil {
		return nil
	}
	if err := held.Extend(ctx); err != nil {
		logger.Warn("reminder lease lost, stopping tick", zap.Error(err))
		return serviceerr.New(opTick, "lease_lost", err)
	}
	return nil
}

// dispatch notifies first and sets the flag only after the notifier succeeded.
// A flag already set by another writer still counts as delivered.
func (s *Scheduler) dispatch(ctx context.Context, logger *zap.Logger, reminder store.Reminder, kind Kind, flag store.ReminderFlag) bool {
	fields := []zap.Field{
		zap.Int64("reminder_id", reminder.ID),
		zap.Int64("user_id", reminder.UserID),
		zap.String("kind", string(kind)),
	}
	if err := s.notify(ctx, NewNotification(reminder, kind)); err != nil {
		logger.Warn("reminder notification failed", append(fields, zap.Error(err))...)
		return false
	}
	changed, err := s.store.SetReminderFlag(ctx, reminder.ID, flag)
	if err != nil {
		logger.Error("reminder flag update failed", append(fields, zap.String("flag", string(flag)), zap.Error(err))...)
		return false
	}
	if !changed {
		logger.Debug("reminder flag already set", fields...)
	}
	return true
}

func (s *Scheduler) notify(ctx context.Context, notification Notification) (err error) {
	notifyCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("notifier panic: %v", recovered)
		}
	}()
	return s.notifier.Notify(notifyCtx, notification)
}
