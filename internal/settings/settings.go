// Package settings resolves the tunable XP values from configured defaults and
// persisted overrides into a single Values object handed to the services per call.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Persisted setting keys.
const (
	KeyDailyXPLimit = "daily_xp_limit"
	KeyReminderXP   = "reminder_xp"
	KeyHabitXP      = "habit_xp"
	KeyNoteXP       = "note_xp"
	KeyStartXP      = "start_xp"
	KeyAdminIDs     = "admin_ids"
)

// Action categories that earn a flat per-action XP value.
const (
	ActionReminder = "reminder"
	ActionHabit    = "habit"
	ActionNote     = "note"
	ActionStart    = "start"
)

var (
	// ErrUnknownKey indicates the key is not a recognised setting.
	ErrUnknownKey = errors.New("settings: unknown key")
	// ErrInvalidValue indicates the value cannot be stored for the key.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Values is the resolved configuration consumed by the progression engine and action handlers.
type Values struct {
	DailyXPLimit int
	ReminderXP   int
	HabitXP      int
	NoteXP       int
	StartXP      int
}

// XPFor returns the flat XP value for an action category; unknown categories earn nothing.
func (v Values) XPFor(action string) int {
	switch action {
	case ActionReminder:
		return v.ReminderXP
	case ActionHabit:
		return v.HabitXP
	case ActionNote:
		return v.NoteXP
	case ActionStart:
		return v.StartXP
	default:
		return 0
	}
}

// Source yields the current Values.
type Source interface {
	Current(ctx context.Context) (Values, error)
}

// Static is a Source that always returns the same Values.
type Static Values

// Current returns the static values.
func (s Static) Current(context.Context) (Values, error) {
	return Values(s), nil
}

// Reader reads persisted overrides.
type Reader interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Provider overlays persisted overrides on top of configured defaults.
type Provider struct {
	reader   Reader
	defaults Values
	logger   *zap.Logger
}

// NewProvider constructs a Provider; a nil reader yields the defaults unchanged.
func NewProvider(reader Reader, defaults Values, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{reader: reader, defaults: defaults, logger: logger}
}

// Current reads every override. Malformed persisted values fall back to the default.
func (p *Provider) Current(ctx context.Context) (Values, error) {
	values := p.defaults
	if p.reader == nil {
		return values, nil
	}
	targets := []struct {
		key   string
		field *int
	}{
		{KeyDailyXPLimit, &values.DailyXPLimit},
		{KeyReminderXP, &values.ReminderXP},
		{KeyHabitXP, &values.HabitXP},
		{KeyNoteXP, &values.NoteXP},
		{KeyStartXP, &values.StartXP},
	}
	for _, target := range targets {
		raw, ok, err := p.reader.GetSetting(ctx, target.key)
		if err != nil {
			return Values{}, fmt.Errorf("settings: read %s: %w", target.key, err)
		}
		if !ok {
			continue
		}
		parsed, err := parseNonNegative(raw)
		if err != nil {
			p.logger.Warn("ignoring malformed setting", zap.String("key", target.key), zap.String("value", raw))
			continue
		}
		*target.field = parsed
	}
	return values, nil
}

// Validate checks that value may be stored under key and returns its normalised form.
func Validate(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch key {
	case KeyDailyXPLimit, KeyReminderXP, KeyHabitXP, KeyNoteXP, KeyStartXP:
		parsed, err := parseNonNegative(value)
		if err != nil {
			return "", fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidValue, key)
		}
		return strconv.Itoa(parsed), nil
	case KeyAdminIDs:
		ids, err := ParseIDList(value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// ParseIDList parses a comma separated list of integer user ids.
func ParseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseNonNegative(raw string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, fmt.Errorf("negative value %d", parsed)
	}
	return parsed, nil
}
