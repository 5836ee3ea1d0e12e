package server

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	_, err := NewHTTPHandler(Dependencies{})
	require.ErrorIs(t, err, errMissingTokenManager)
}

func TestPublicEndpoints(t *testing.T) {
	f := newTestFixture(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, f.do(t, 0, http.MethodGet, "/healthz", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var levels struct {
		Levels []levelPayload `json:"levels"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 0, http.MethodGet, "/api/levels", nil, &levels))
	require.Len(t, levels.Levels, 10)
	assert.Equal(t, "Новичок", levels.Levels[0].Reward)
	assert.Equal(t, 1000, levels.Levels[9].RewardXP)
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	f := newTestFixture(t)
	var body map[string]string
	status := f.do(t, 0, http.MethodGet, userPath(1, "/stats"), nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errInvalidAuthorization.Error(), body["error"])
}

func TestEnsureUserAwardsStartXPOnce(t *testing.T) {
	f := newTestFixture(t)

	var created struct {
		User       userPayload   `json:"user"`
		Created    bool          `json:"created"`
		StartAward *awardPayload `json:"start_award"`
	}
	require.Equal(t, http.StatusCreated, f.do(t, 1, http.MethodPut, userPath(1, ""), map[string]string{"username": "alice"}, &created))
	assert.True(t, created.Created)
	require.NotNil(t, created.StartAward)
	assert.Equal(t, 50, created.StartAward.Granted)
	assert.Equal(t, 50, created.User.XP)
	assert.Equal(t, 1, created.User.Level)
	assert.Equal(t, "Europe/Moscow", created.User.Timezone)

	var again struct {
		User       userPayload   `json:"user"`
		Created    bool          `json:"created"`
		StartAward *awardPayload `json:"start_award"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPut, userPath(1, ""), map[string]string{"username": "alice"}, &again))
	assert.False(t, again.Created)
	assert.Nil(t, again.StartAward)
	assert.Equal(t, 50, again.User.XP)
}

func TestCallerMayOnlyActOnItselfUnlessAdmin(t *testing.T) {
	f := newTestFixture(t)
	f.ensureUser(t, 1, "alice")

	assert.Equal(t, http.StatusForbidden, f.do(t, 2, http.MethodGet, userPath(1, "/stats"), nil, nil))

	var userStats struct {
		UserID int64 `json:"user_id"`
		XP     int   `json:"xp"`
	}
	require.Equal(t, http.StatusOK, f.do(t, testAdminID, http.MethodGet, userPath(1, "/stats"), nil, &userStats))
	assert.Equal(t, int64(1), userStats.UserID)
	assert.Equal(t, 50, userStats.XP)

	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodGet, "/api/users/abc/stats", nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, 3, http.MethodGet, userPath(3, "/progress"), nil, nil))
}

func TestXPAwardLevelUpAndDailyCeiling(t *testing.T) {
	f := newTestFixture(t)
	f.ensureUser(t, 1, "alice")

	var reminder struct {
		Reminder reminderPayload `json:"reminder"`
		XP       *awardPayload   `json:"xp"`
	}
	remindAt := f.clock().Add(2 * time.Hour)
	require.Equal(t, http.StatusCreated, f.do(t, 1, http.MethodPost, userPath(1, "/reminders"),
		map[string]interface{}{"title": "Dentist", "remind_at": remindAt}, &reminder))
	require.NotNil(t, reminder.XP)
	assert.Equal(t, 10, reminder.XP.Granted)
	assert.Equal(t, 60, reminder.XP.XP)

	var levelUp awardPayload
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPost, userPath(1, "/xp"), map[string]interface{}{"amount": 100}, &levelUp))
	assert.Equal(t, 100, levelUp.Granted)
	assert.True(t, levelUp.LeveledUp)
	assert.Equal(t, "Любитель", levelUp.Reward)
	assert.Equal(t, 50, levelUp.BonusXP)
	assert.Equal(t, 210, levelUp.XP)
	assert.Equal(t, 2, levelUp.Level)
	assert.Equal(t, 160, levelUp.DailyXP)

	var capped awardPayload
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPost, userPath(1, "/xp"), map[string]interface{}{"amount": 400}, &capped))
	assert.Equal(t, 340, capped.Granted)
	assert.Equal(t, 500, capped.DailyXP)
	assert.Equal(t, 0, capped.Remaining)
	assert.Equal(t, "Пользователь", capped.Reward)
	assert.Equal(t, 650, capped.XP)
	assert.Equal(t, 3, capped.Level)

	var note struct {
		Note notePayload   `json:"note"`
		XP   *awardPayload `json:"xp"`
	}
	require.Equal(t, http.StatusCreated, f.do(t, 1, http.MethodPost, userPath(1, "/notes"), map[string]string{"content": "buy milk"}, &note))
	require.NotNil(t, note.XP)
	assert.True(t, note.XP.LimitReached)
	assert.Equal(t, 0, note.XP.Granted)
	assert.Equal(t, 650, note.XP.XP)

	var check map[string]interface{}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodGet, userPath(1, "/xp/check?amount=1"), nil, &check))
	assert.Equal(t, false, check["allowed"])
	assert.EqualValues(t, 0, check["remaining"])

	var progress progressPayload
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodGet, userPath(1, "/progress"), nil, &progress))
	assert.Equal(t, 3, progress.Level)
	assert.Equal(t, 900, progress.NextLevelXP)
	assert.Equal(t, "Пользователь", progress.Reward)

	var failure map[string]string
	require.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, userPath(1, "/xp"), map[string]interface{}{"amount": -5}, &failure))
	assert.Equal(t, "progression.award_xp.negative_amount", failure["code"])
}

func TestReminderLifecycle(t *testing.T) {
	f := newTestFixture(t)
	f.ensureUser(t, 1, "alice")
	f.ensureUser(t, 2, "bob")

	var created struct {
		Reminder reminderPayload `json:"reminder"`
	}
	remindAt := f.clock().Add(time.Hour).UTC()
	require.Equal(t, http.StatusCreated, f.do(t, 1, http.MethodPost, userPath(1, "/reminders"),
		map[string]interface{}{"title": "Call mom", "location": "home", "remind_at": remindAt}, &created))
	assert.True(t, created.Reminder.RemindAt.Equal(remindAt))
	reminderPath := userPath(1, "/reminders/"+strconv.FormatInt(created.Reminder.ID, 10))

	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, userPath(1, "/reminders"),
		map[string]interface{}{"title": "", "remind_at": remindAt}, nil))

	var listed struct {
		Reminders []reminderPayload `json:"reminders"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodGet, userPath(1, "/reminders"), nil, &listed))
	require.Len(t, listed.Reminders, 1)
	assert.Equal(t, "home", listed.Reminders[0].Location)

	otherPath := userPath(2, "/reminders/"+strconv.FormatInt(created.Reminder.ID, 10)+"/complete")
	assert.Equal(t, http.StatusNotFound, f.do(t, 2, http.MethodPost, otherPath, nil, nil))

	var completed struct {
		Reminder reminderPayload `json:"reminder"`
		Changed  bool            `json:"changed"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPost, reminderPath+"/complete", nil, &completed))
	assert.True(t, completed.Changed)
	assert.True(t, completed.Reminder.IsCompleted)

	assert.Equal(t, http.StatusNoContent, f.do(t, 1, http.MethodDelete, reminderPath, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, 1, http.MethodDelete, reminderPath, nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodDelete, userPath(1, "/reminders/zero"), nil, nil))
}

func TestNotesAndHabitsEndpoints(t *testing.T) {
	f := newTestFixture(t)
	f.ensureUser(t, 1, "alice")

	var note struct {
		Note notePayload `json:"note"`
	}
	require.Equal(t, http.StatusCreated, f.do(t, 1, http.MethodPost, userPath(1, "/notes"),
		map[string]string{"title": "Ideas", "content": "write more tests", "category": "Work"}, &note))
	assert.Equal(t, "work", note.Note.Category)
	notePath := userPath(1, "/notes/"+note.Note.NoteID)

	var pinned struct {
		Note notePayload `json:"note"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPost, notePath+"/pin", nil, &pinned))
	assert.True(t, pinned.Note.IsPinned)

	var listed struct {
		Notes []notePayload `json:"notes"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodGet, userPath(1, "/notes?category=work"), nil, &listed))
	require.Len(t, listed.Notes, 1)
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodGet, userPath(1, "/notes?category=home"), nil, &listed))
	assert.Empty(t, listed.Notes)

	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, userPath(1, "/notes"), map[string]string{"content": "  "}, nil))
	assert.Equal(t, http.StatusNoContent, f.do(t, 1, http.MethodDelete, notePath, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, 1, http.MethodGet, notePath, nil, nil))

	var habit struct {
		Habit habitPayload  `json:"habit"`
		XP    *awardPayload `json:"xp"`
	}
	require.Equal(t, http.StatusCreated, f.do(t, 1, http.MethodPost, userPath(1, "/habits"), map[string]string{"name": "Run"}, &habit))
	assert.Equal(t, "daily", habit.Habit.Frequency)
	require.NotNil(t, habit.XP)
	assert.Equal(t, 15, habit.XP.Granted)
	habitPath := userPath(1, "/habits/"+strconv.FormatInt(habit.Habit.ID, 10))

	var completion struct {
		Habit       habitPayload `json:"habit"`
		AlreadyDone bool         `json:"already_done"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPost, habitPath+"/complete", nil, &completion))
	assert.False(t, completion.AlreadyDone)
	assert.Equal(t, 1, completion.Habit.Streak)
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPost, habitPath+"/complete", nil, &completion))
	assert.True(t, completion.AlreadyDone)
	assert.Equal(t, 1, completion.Habit.TotalCompletions)

	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, userPath(1, "/habits"),
		map[string]string{"name": "Swim", "frequency": "hourly"}, nil))
	assert.Equal(t, http.StatusNoContent, f.do(t, 1, http.MethodDelete, habitPath, nil, nil))
}

func TestSetTimezone(t *testing.T) {
	f := newTestFixture(t)
	f.ensureUser(t, 1, "alice")

	var updated struct {
		User userPayload `json:"user"`
	}
	require.Equal(t, http.StatusOK, f.do(t, 1, http.MethodPut, userPath(1, "/timezone"), map[string]string{"timezone": "Asia/Tokyo"}, &updated))
	assert.Equal(t, "Asia/Tokyo", updated.User.Timezone)
	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPut, userPath(1, "/timezone"), map[string]string{"timezone": "Mars/Olympus"}, nil))
}

func TestAdminEndpoints(t *testing.T) {
	f := newTestFixture(t)
	f.ensureUser(t, 1, "alice")
	f.ensureUser(t, 2, "bob")

	assert.Equal(t, http.StatusForbidden, f.do(t, 1, http.MethodGet, "/api/admin/stats", nil, nil))

	var global struct {
		UsersCount  int64 `json:"users_count"`
		ActiveToday int64 `json:"active_today"`
	}
	require.Equal(t, http.StatusOK, f.do(t, testAdminID, http.MethodGet, "/api/admin/stats", nil, &global))
	assert.Equal(t, int64(2), global.UsersCount)
	assert.Equal(t, int64(2), global.ActiveToday)

	var listing struct {
		Users []struct {
			UserID int64 `json:"user_id"`
		} `json:"users"`
	}
	require.Equal(t, http.StatusOK, f.do(t, testAdminID, http.MethodGet, "/api/admin/users", nil, &listing))
	assert.Len(t, listing.Users, 2)

	var setting map[string]string
	require.Equal(t, http.StatusOK, f.do(t, testAdminID, http.MethodPut, "/api/admin/settings/reminder_xp", map[string]string{"value": " 25 "}, &setting))
	assert.Equal(t, "25", setting["value"])
	assert.Equal(t, http.StatusBadRequest, f.do(t, testAdminID, http.MethodPut, "/api/admin/settings/reminder_xp", map[string]string{"value": "-1"}, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, testAdminID, http.MethodPut, "/api/admin/settings/unknown", map[string]string{"value": "1"}, nil))

	var reminder struct {
		XP *awardPayload `json:"xp"`
	}
	require.Equal(t, http.StatusCreated, f.do(t, 1, http.MethodPost, userPath(1, "/reminders"),
		map[string]interface{}{"title": "Standup", "remind_at": f.clock().Add(time.Hour)}, &reminder))
	require.NotNil(t, reminder.XP)
	assert.Equal(t, 25, reminder.XP.Granted)

	var logs struct {
		Logs []actionLogPayload `json:"logs"`
	}
	require.Equal(t, http.StatusOK, f.do(t, testAdminID, http.MethodGet, "/api/admin/logs?user_id=1", nil, &logs))
	require.NotEmpty(t, logs.Logs)
	assert.Equal(t, actionLogReminderCreated, logs.Logs[0].ActionType)
	assert.Equal(t, "alice", logs.Logs[0].Username)
	for _, entry := range logs.Logs {
		assert.Equal(t, int64(1), entry.UserID)
	}
	assert.Equal(t, http.StatusBadRequest, f.do(t, testAdminID, http.MethodGet, "/api/admin/logs?limit=x", nil, nil))

	var flagged struct {
		User userPayload `json:"user"`
	}
	require.Equal(t, http.StatusOK, f.do(t, testAdminID, http.MethodPut, "/api/admin/users/1/admin", map[string]bool{"is_admin": true}, &flagged))
	assert.True(t, flagged.User.IsAdmin)
	assert.Equal(t, http.StatusOK, f.do(t, 1, http.MethodGet, userPath(2, "/stats"), nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, testAdminID, http.MethodPut, "/api/admin/users/77/admin", map[string]bool{"is_admin": true}, nil))
}
