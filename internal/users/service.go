package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // timezone names are validated without relying on host zoneinfo

	"github.com/MarcoPoloResearchLab/assistant/internal/progression"
	"github.com/MarcoPoloResearchLab/assistant/internal/settings"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrInvalidIdentity indicates the caller did not supply a usable user id.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrUserNotFound indicates the user has not been created yet.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidTimezone indicates the timezone is not a known IANA location.
	ErrInvalidTimezone = errors.New("users: invalid timezone")
)

// Awarder grants XP; satisfied by *progression.Engine.
type Awarder interface {
	AwardXP(ctx context.Context, userID int64, amount int, category string) (progression.AwardResult, error)
}

// ServiceConfig describes the dependencies required for user onboarding and admin resolution.
type ServiceConfig struct {
	Store    *store.Store
	Settings settings.Source
	Awarder  Awarder
	AdminIDs []int64
	Clock    func() time.Time
	Location *time.Location
	Logger   *zap.Logger
}

// Service creates users on first interaction and answers admin questions.
type Service struct {
	store    *store.Store
	settings settings.Source
	awarder  Awarder
	adminIDs map[int64]struct{}
	now      func() time.Time
	location *time.Location
	logger   *zap.Logger
	cache    sync.Map
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("users: store required")
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
	adminIDs := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		adminIDs[id] = struct{}{}
	}
	return &Service{
		store:    cfg.Store,
		settings: cfg.Settings,
		awarder:  cfg.Awarder,
		adminIDs: adminIDs,
		now:      clock,
		location: location,
		logger:   logger,
	}, nil
}

// EnsureResult reports the outcome of EnsureUser.
type EnsureResult struct {
	User       store.User
	Created    bool
	StartAward *progression.AwardResult
}

// EnsureUser returns the user, creating it with level 1 and zero XP on first contact.
// A newly created user receives the configured start XP through the regular award path.
// The grant stays pending until an award succeeds, so a failed award is retried by the
// next call. A non-empty username refreshes the stored one.
func (s *Service) EnsureUser(ctx context.Context, userID int64, username string) (EnsureResult, error) {
	if userID <= 0 {
		return EnsureResult{}, ErrInvalidIdentity
	}
	username = normalize(username)

	if cached, ok := s.cache.Load(userID); ok {
		if cachedName, ok := cached.(string); ok && (username == "" || username == cachedName) {
			user, err := s.store.GetUser(ctx, userID)
			if err == nil {
				return EnsureResult{User: user}, nil
			}
			s.cache.Delete(userID)
		}
	}

	today := store.DateOf(s.now(), s.location)
	created, err := s.store.CreateUser(ctx, store.User{
		UserID:          userID,
		Username:        username,
		XP:              0,
		Level:           1,
		StartXPPending:  true,
		DailyAnchorDate: today,
		LastActiveDate:  today,
	})
	if err != nil {
		return EnsureResult{}, err
	}
	if created {
		s.logger.Info("user created", zap.Int64("user_id", userID), zap.String("username", username))
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return EnsureResult{}, err
	}
	result := EnsureResult{Created: created}
	if user.StartXPPending {
		award, err := s.grantStartXP(ctx, userID)
		if err != nil {
			return EnsureResult{}, err
		}
		if award != nil {
			result.StartAward = award
			if user, err = s.store.GetUser(ctx, userID); err != nil {
				return EnsureResult{}, err
			}
		}
	}

	if !created && username != "" && username != user.Username {
		if err := s.store.UpdateUserFields(ctx, userID, map[string]interface{}{"username": username}); err != nil {
			return EnsureResult{}, err
		}
		user.Username = username
	}
	result.User = user
	s.cache.Store(userID, user.Username)
	return result, nil
}

// grantStartXP claims the pending grant and awards it. A failed award puts the claim back.
func (s *Service) grantStartXP(ctx context.Context, userID int64) (*progression.AwardResult, error) {
	claimed, err := s.store.ClaimStartXP(ctx, userID)
	if err != nil || !claimed {
		return nil, err
	}
	award, err := s.awardStartXP(ctx, userID)
	if err != nil {
		if releaseErr := s.store.ReleaseStartXP(ctx, userID); releaseErr != nil {
			return nil, errors.Join(err, releaseErr)
		}
		return nil, err
	}
	return award, nil
}

func (s *Service) awardStartXP(ctx context.Context, userID int64) (*progression.AwardResult, error) {
	if s.awarder == nil || s.settings == nil {
		return nil, nil
	}
	values, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	amount := values.XPFor(settings.ActionStart)
	if amount <= 0 {
		return nil, nil
	}
	award, err := s.awarder.AwardXP(ctx, userID, amount, settings.ActionStart)
	if err != nil {
		s.logger.Error("start xp award failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &award, nil
}

// Get loads an existing user.
func (s *Service) Get(ctx context.Context, userID int64) (store.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrUserNotFound
	}
	return user, err
}

// IsAdmin reports whether the user is configured, flagged, or listed in the admin_ids setting.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if _, ok := s.adminIDs[userID]; ok {
		return true, nil
	}
	user, err := s.store.GetUser(ctx, userID)
	if err == nil && user.IsAdmin {
		return true, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	raw, ok, err := s.store.GetSetting(ctx, settings.KeyAdminIDs)
	if err != nil || !ok {
		return false, err
	}
	ids, err := settings.ParseIDList(raw)
	if err != nil {
		s.logger.Warn("ignoring malformed admin_ids setting", zap.String("value", raw))
		return false, nil
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// SetAdmin sets or clears the stored admin flag.
func (s *Service) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	err := s.store.UpdateUserFields(ctx, userID, map[string]interface{}{"is_admin": admin})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// SetTimezone stores an IANA timezone name for the user.
func (s *Service) SetTimezone(ctx context.Context, userID int64, timezone string) error {
	timezone = normalize(timezone)
	if timezone == "" {
		return ErrInvalidTimezone
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTimezone, timezone)
	}
	err := s.store.UpdateUserFields(ctx, userID, map[string]interface{}{"timezone": timezone})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
