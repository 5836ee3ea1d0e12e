package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/google/uuid"
)

// Kind distinguishes the advance heads-up from the due notification.
type Kind string

const (
	KindPreNotify Kind = "pre_notify"
	KindDue       Kind = "due"
)

var notificationNamespace = uuid.MustParse("6f1c55a8-7d54-4d8e-9a3e-2b4c1f0d7e61")

// Notification is the payload handed to a Notifier.
// ID is stable per reminder and kind, so retried deliveries carry the same value.
type Notification struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	ReminderID  int64     `json:"reminder_id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	RemindAt    time.Time `json:"remind_at"`
}

// Notifier delivers a notification to the reminder's owner.
// A returned error leaves the reminder eligible for the next tick.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notification Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}

// NewNotification builds the payload for reminder and kind.
func NewNotification(reminder store.Reminder, kind Kind) Notification {
	name := fmt.Sprintf("reminder/%d/%s", reminder.ID, kind)
	return Notification{
		ID:          uuid.NewSHA1(notificationNamespace, []byte(name)).String(),
		Kind:        kind,
		ReminderID:  reminder.ID,
		UserID:      reminder.UserID,
		Title:       reminder.Title,
		Description: reminder.Description,
		Location:    reminder.Location,
		RemindAt:    reminder.RemindAt(),
	}
}
