package notify

import (
	"context"

	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. It never fails.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification reminders.Notification) error {
	n.logger.Info("reminder notification",
		zap.String("notification_id", notification.ID),
		zap.String("kind", string(notification.Kind)),
		zap.Int64("user_id", notification.UserID),
		zap.Int64("reminder_id", notification.ReminderID),
		zap.String("title", notification.Title),
		zap.Time("remind_at", notification.RemindAt))
	return nil
}
