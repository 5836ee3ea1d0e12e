// Package notify holds Notifier implementations for the reminder scheduler.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream       = "assistant:notifications"
	defaultStreamMaxLen = 10000
)

// RedisStreamConfig describes the stream outbox.
type RedisStreamConfig struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

// RedisStreamNotifier appends notifications to a Redis stream for a delivery worker
// (the chat bot) to consume.
type RedisStreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamNotifier validates the configuration and builds the notifier.
func NewRedisStreamNotifier(cfg RedisStreamConfig) (*RedisStreamNotifier, error) {
	if cfg.Client == nil {
		return nil, errors.New("notify: redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = DefaultStream
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisStreamNotifier{client: cfg.Client, stream: stream, maxLen: maxLen}, nil
}

// Notify appends one entry to the stream.
func (n *RedisStreamNotifier) Notify(ctx context.Context, notification reminders.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":          notification.ID,
			"kind":        string(notification.Kind),
			"user_id":     strconv.FormatInt(notification.UserID, 10),
			"reminder_id": strconv.FormatInt(notification.ReminderID, 10),
			"remind_at":   notification.RemindAt.UTC().Format(time.RFC3339),
			"payload":     string(payload),
		},
	}).Err()
}
