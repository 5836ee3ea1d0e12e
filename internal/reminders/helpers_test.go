package reminders

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/database"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "reminders.db"), zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	stateStore, err := store.New(store.Config{Database: db})
	require.NoError(t, err)
	return stateStore
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
	fail  func(Notification) error
}

func (n *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification)
	if n.fail != nil {
		return n.fail(notification)
	}
	return nil
}

func (n *recordingNotifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}

func createReminder(t *testing.T, stateStore *store.Store, userID int64, title string, due time.Time) store.Reminder {
	t.Helper()
	reminder := store.Reminder{UserID: userID, Title: title, RemindAtSeconds: due.Unix()}
	require.NoError(t, stateStore.CreateReminder(context.Background(), &reminder))
	return reminder
}

func reloadReminder(t *testing.T, stateStore *store.Store, reminderID int64) store.Reminder {
	t.Helper()
	reminder, err := stateStore.GetReminder(context.Background(), reminderID)
	require.NoError(t, err)
	return reminder
}
