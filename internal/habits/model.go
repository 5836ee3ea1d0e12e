package habits

import (
	"errors"
	"fmt"
	"strings"
)

// Supported habit frequencies.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"

	maxNameLength = 190
)

var (
	// ErrInvalidHabit indicates the habit input failed validation.
	ErrInvalidHabit = errors.New("habits: invalid habit")
	// ErrHabitNotFound indicates the habit does not exist or belongs to another user.
	ErrHabitNotFound = errors.New("habits: habit not found")
)

// Habit is a recurring activity with a completion streak.
type Habit struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           int64  `gorm:"column:user_id;not null;index"`
	Name             string `gorm:"column:name;size:190;not null"`
	Description      string `gorm:"column:description;type:text;not null;default:''"`
	Frequency        string `gorm:"column:frequency;size:16;not null;default:'daily'"`
	Streak           int    `gorm:"column:streak;not null;default:0"`
	TotalCompletions int    `gorm:"column:total_completions;not null;default:0"`
	LastCompleted    string `gorm:"column:last_completed;size:10;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Habit) TableName() string {
	return "habits"
}

// CreateRequest describes a new habit.
type CreateRequest struct {
	UserID      int64
	Name        string
	Description string
	Frequency   string
}

func (r CreateRequest) normalized() (CreateRequest, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Frequency = strings.ToLower(strings.TrimSpace(r.Frequency))
	if r.Frequency == "" {
		r.Frequency = FrequencyDaily
	}
	switch {
	case r.UserID <= 0:
		return r, fmt.Errorf("%w: user id must be positive", ErrInvalidHabit)
	case r.Name == "":
		return r, fmt.Errorf("%w: name is required", ErrInvalidHabit)
	case len(r.Name) > maxNameLength:
		return r, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidHabit, maxNameLength)
	case r.Frequency != FrequencyDaily && r.Frequency != FrequencyWeekly:
		return r, fmt.Errorf("%w: unknown frequency %q", ErrInvalidHabit, r.Frequency)
	}
	return r, nil
}

// CompleteResult reports a completion attempt. AlreadyDone is set when the habit
// was already completed today; the streak is then unchanged.
type CompleteResult struct {
	Habit       Habit
	AlreadyDone bool
}

// Summary aggregates a user's habits.
type Summary struct {
	Count       int64
	StreakSum   int64
	Completions int64
}
