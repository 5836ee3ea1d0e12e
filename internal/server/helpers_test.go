package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/auth"
	"github.com/MarcoPoloResearchLab/assistant/internal/database"
	"github.com/MarcoPoloResearchLab/assistant/internal/habits"
	"github.com/MarcoPoloResearchLab/assistant/internal/notes"
	"github.com/MarcoPoloResearchLab/assistant/internal/progression"
	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"github.com/MarcoPoloResearchLab/assistant/internal/settings"
	"github.com/MarcoPoloResearchLab/assistant/internal/stats"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/MarcoPoloResearchLab/assistant/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAdminID = int64(900)

var testDefaults = settings.Values{
	DailyXPLimit: 500,
	ReminderXP:   10,
	HabitXP:      15,
	NoteXP:       5,
	StartXP:      50,
}

type testFixture struct {
	server   *httptest.Server
	issuer   *auth.TokenIssuer
	store    *store.Store
	realtime *RealtimeDispatcher
	clock    func() time.Time
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	clock := func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	stateStore, err := store.New(store.Config{Database: db})
	require.NoError(t, err)
	provider := settings.NewProvider(stateStore, testDefaults, nil)

	engine, err := progression.NewEngine(progression.EngineConfig{Store: stateStore, Settings: provider, Clock: clock})
	require.NoError(t, err)
	userService, err := users.NewService(users.ServiceConfig{
		Store:    stateStore,
		Settings: provider,
		Awarder:  engine,
		AdminIDs: []int64{testAdminID},
		Clock:    clock,
	})
	require.NoError(t, err)
	reminderService, err := reminders.NewService(reminders.ServiceConfig{Store: stateStore})
	require.NoError(t, err)
	noteService, err := notes.NewService(notes.ServiceConfig{Database: db, Clock: clock, IDProvider: notes.NewUUIDProvider()})
	require.NoError(t, err)
	habitService, err := habits.NewService(habits.ServiceConfig{Database: db, Clock: clock})
	require.NoError(t, err)
	projector, err := stats.NewProjector(stats.ProjectorConfig{
		Store:  stateStore,
		Engine: engine,
		Notes:  noteService,
		Habits: habitService,
		Clock:  clock,
	})
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "assistant-test",
		TokenTTL:      time.Hour,
	})
	require.NoError(t, err)

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Tokens:            issuer,
		Users:             userService,
		Engine:            engine,
		Settings:          provider,
		Store:             stateStore,
		Reminders:         reminderService,
		Notes:             noteService,
		Habits:            habitService,
		Stats:             projector,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Hour,
	})
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testFixture{server: server, issuer: issuer, store: stateStore, realtime: dispatcher, clock: clock}
}

func (f *testFixture) token(t *testing.T, userID int64) string {
	t.Helper()
	token, _, err := f.issuer.Issue(context.Background(), userID)
	require.NoError(t, err)
	return token
}

// do sends a JSON request as userID (zero means anonymous) and decodes the JSON response into out.
func (f *testFixture) do(t *testing.T, userID int64, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		request.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	if out != nil && response.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(response.Body).Decode(out))
	}
	return response.StatusCode
}

func (f *testFixture) ensureUser(t *testing.T, userID int64, username string) {
	t.Helper()
	status := f.do(t, userID, http.MethodPut, userPath(userID, ""), map[string]string{"username": username}, nil)
	require.Equal(t, http.StatusCreated, status)
}

func userPath(userID int64, suffix string) string {
	return "/api/users/" + strconv.FormatInt(userID, 10) + suffix
}
