package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/habits"
	"github.com/MarcoPoloResearchLab/assistant/internal/notes"
	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"github.com/MarcoPoloResearchLab/assistant/internal/settings"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/gin-gonic/gin"
)

const (
	actionLogReminderCreated   = "reminder_created"
	actionLogReminderCompleted = "reminder_completed"
	actionLogNoteCreated       = "note_created"
	actionLogHabitCreated      = "habit_created"
	actionLogHabitCompleted    = "habit_completed"
)

func parseItemID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

type reminderPayload struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	RemindAt    time.Time `json:"remind_at"`
	IsCompleted bool      `json:"is_completed"`
	Notified    bool      `json:"notified"`
	PreNotified bool      `json:"pre_notified"`
}

func newReminderPayload(reminder store.Reminder) reminderPayload {
	return reminderPayload{
		ID:          reminder.ID,
		Title:       reminder.Title,
		Description: reminder.Description,
		Location:    reminder.Location,
		RemindAt:    reminder.RemindAt(),
		IsCompleted: reminder.IsCompleted,
		Notified:    reminder.Notified,
		PreNotified: reminder.PreNotified,
	}
}

type createReminderRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	RemindAt    time.Time `json:"remind_at"`
}

func (h *httpHandler) handleCreateReminder(c *gin.Context) {
	var request createReminderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reminder, err := h.reminders.Create(c.Request.Context(), reminders.CreateInput{
		UserID:      c.GetInt64(targetContextKey),
		Title:       request.Title,
		Description: request.Description,
		Location:    request.Location,
		RemindAt:    request.RemindAt,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	award := h.recordAction(c, settings.ActionReminder, actionLogReminderCreated, reminder.Title)
	c.JSON(http.StatusCreated, gin.H{"reminder": newReminderPayload(reminder), "xp": award})
}

func (h *httpHandler) handleListReminders(c *gin.Context) {
	items, err := h.reminders.List(c.Request.Context(), c.GetInt64(targetContextKey))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	payload := make([]reminderPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, newReminderPayload(item))
	}
	c.JSON(http.StatusOK, gin.H{"reminders": payload})
}

func (h *httpHandler) handleCompleteReminder(c *gin.Context) {
	reminderID, ok := parseItemID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := c.GetInt64(targetContextKey)
	changed, err := h.reminders.Complete(ctx, userID, reminderID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if changed {
		h.appendLog(ctx, userID, actionLogReminderCompleted, strconv.FormatInt(reminderID, 10))
	}
	reminder, err := h.reminders.Get(ctx, userID, reminderID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminder": newReminderPayload(reminder), "changed": changed})
}

func (h *httpHandler) handleDeleteReminder(c *gin.Context) {
	reminderID, ok := parseItemID(c)
	if !ok {
		return
	}
	if err := h.reminders.Delete(c.Request.Context(), c.GetInt64(targetContextKey), reminderID); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type notePayload struct {
	NoteID    string `json:"note_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	IsPinned  bool   `json:"is_pinned"`
	CreatedAt int64  `json:"created_at_s"`
	UpdatedAt int64  `json:"updated_at_s"`
}

func newNotePayload(note notes.Note) notePayload {
	return notePayload{
		NoteID:    note.NoteID,
		Title:     note.Title,
		Content:   note.Content,
		Category:  note.Category,
		IsPinned:  note.IsPinned,
		CreatedAt: note.CreatedAtSeconds,
		UpdatedAt: note.UpdatedAtSeconds,
	}
}

type createNoteRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.notes.Create(c.Request.Context(), notes.CreateRequest{
		UserID:   c.GetInt64(targetContextKey),
		Title:    request.Title,
		Content:  request.Content,
		Category: request.Category,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	award := h.recordAction(c, settings.ActionNote, actionLogNoteCreated, note.NoteID)
	c.JSON(http.StatusCreated, gin.H{"note": newNotePayload(note), "xp": award})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	items, err := h.notes.List(c.Request.Context(), c.GetInt64(targetContextKey), c.Query("category"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	payload := make([]notePayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, newNotePayload(item))
	}
	c.JSON(http.StatusOK, gin.H{"notes": payload})
}

func parseNoteID(c *gin.Context) (notes.NoteID, bool) {
	noteID, err := notes.NewNoteID(c.Param("item_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return "", false
	}
	return noteID, true
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}
	note, err := h.notes.Get(c.Request.Context(), c.GetInt64(targetContextKey), noteID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

func (h *httpHandler) handleToggleNotePin(c *gin.Context) {
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}
	note, err := h.notes.TogglePin(c.Request.Context(), c.GetInt64(targetContextKey), noteID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}
	if err := h.notes.Delete(c.Request.Context(), c.GetInt64(targetContextKey), noteID); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type habitPayload struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Frequency        string `json:"frequency"`
	Streak           int    `json:"streak"`
	TotalCompletions int    `json:"total_completions"`
	LastCompleted    string `json:"last_completed"`
}

func newHabitPayload(habit habits.Habit) habitPayload {
	return habitPayload{
		ID:               habit.ID,
		Name:             habit.Name,
		Description:      habit.Description,
		Frequency:        habit.Frequency,
		Streak:           habit.Streak,
		TotalCompletions: habit.TotalCompletions,
		LastCompleted:    habit.LastCompleted,
	}
}

type createHabitRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Frequency   string `json:"frequency"`
}

func (h *httpHandler) handleCreateHabit(c *gin.Context) {
	var request createHabitRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	habit, err := h.habits.Create(c.Request.Context(), habits.CreateRequest{
		UserID:      c.GetInt64(targetContextKey),
		Name:        request.Name,
		Description: request.Description,
		Frequency:   request.Frequency,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	award := h.recordAction(c, settings.ActionHabit, actionLogHabitCreated, habit.Name)
	c.JSON(http.StatusCreated, gin.H{"habit": newHabitPayload(habit), "xp": award})
}

func (h *httpHandler) handleListHabits(c *gin.Context) {
	items, err := h.habits.List(c.Request.Context(), c.GetInt64(targetContextKey))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	payload := make([]habitPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, newHabitPayload(item))
	}
	c.JSON(http.StatusOK, gin.H{"habits": payload})
}

func (h *httpHandler) handleCompleteHabit(c *gin.Context) {
	habitID, ok := parseItemID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := c.GetInt64(targetContextKey)
	result, err := h.habits.Complete(ctx, userID, habitID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if !result.AlreadyDone {
		h.appendLog(ctx, userID, actionLogHabitCompleted, result.Habit.Name)
	}
	c.JSON(http.StatusOK, gin.H{"habit": newHabitPayload(result.Habit), "already_done": result.AlreadyDone})
}

func (h *httpHandler) handleDeleteHabit(c *gin.Context) {
	habitID, ok := parseItemID(c)
	if !ok {
		return
	}
	if err := h.habits.Delete(c.Request.Context(), c.GetInt64(targetContextKey), habitID); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
