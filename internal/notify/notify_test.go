package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleNotification() reminders.Notification {
	return reminders.NewNotification(store.Reminder{
		ID:              11,
		UserID:          42,
		Title:           "Call mom",
		Location:        "home",
		RemindAtSeconds: time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC).Unix(),
	}, reminders.KindDue)
}

func TestRedisStreamNotifierAppendsEntry(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	notifier, err := NewRedisStreamNotifier(RedisStreamConfig{Client: client})
	require.NoError(t, err)

	notification := sampleNotification()
	require.NoError(t, notifier.Notify(context.Background(), notification))

	entries, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	values := entries[0].Values
	assert.Equal(t, notification.ID, values["id"])
	assert.Equal(t, "due", values["kind"])
	assert.Equal(t, "42", values["user_id"])
	assert.Equal(t, "2026-06-01T18:00:00Z", values["remind_at"])

	var decoded reminders.Notification
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, "Call mom", decoded.Title)
}

func TestRedisStreamNotifierReportsOutage(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	notifier, err := NewRedisStreamNotifier(RedisStreamConfig{Client: client, Stream: "custom"})
	require.NoError(t, err)
	server.Close()

	assert.Error(t, notifier.Notify(context.Background(), sampleNotification()))
}

func TestWebhookNotifierPostsPayloadWithIdempotencyKey(t *testing.T) {
	var received reminders.Notification
	var key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get(idempotencyKeyHeader)
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(WebhookConfig{URL: server.URL, Client: server.Client()})
	require.NoError(t, err)

	notification := sampleNotification()
	require.NoError(t, notifier.Notify(context.Background(), notification))
	assert.Equal(t, notification.ID, key)
	assert.Equal(t, int64(11), received.ReminderID)
	assert.Equal(t, reminders.KindDue, received.Kind)
}

func TestWebhookNotifierFailsOnErrorStatus(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(WebhookConfig{URL: server.URL})
	require.NoError(t, err)
	assert.Error(t, notifier.Notify(context.Background(), sampleNotification()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewWebhookNotifierRejectsBadURL(t *testing.T) {
	for _, target := range []string{"", "ftp://example.com", "http://"} {
		_, err := NewWebhookNotifier(WebhookConfig{URL: target})
		assert.Error(t, err, target)
	}
}

func TestLogNotifierLogsNotification(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	require.NoError(t, notifier.Notify(context.Background(), sampleNotification()))
	entries := logs.FilterMessage("reminder notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].ContextMap()["user_id"])
}
