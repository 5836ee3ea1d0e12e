package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/settings"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/MarcoPoloResearchLab/assistant/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 500
)

func (h *httpHandler) handleAdminStats(c *gin.Context) {
	global, err := h.stats.GlobalStats(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, global)
}

func (h *httpHandler) handleAdminUsers(c *gin.Context) {
	summaries, err := h.stats.ListUsers(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": summaries})
}

type actionLogPayload struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	UserLevel  int       `json:"user_level"`
	UserXP     int       `json:"user_xp"`
	ActionType string    `json:"action_type"`
	ActionData string    `json:"action_data"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *httpHandler) handleAdminLogs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultLogPageSize)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxLogPageSize {
		limit = defaultLogPageSize
	}
	if offset < 0 {
		offset = 0
	}
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := users.ParseUserID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
			return
		}
		userID = parsed
	}
	entries, err := h.store.ListActionLogs(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	payload := make([]actionLogPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, actionLogPayload{
			ID:         entry.ID,
			UserID:     entry.UserID,
			Username:   entry.Username,
			UserLevel:  entry.UserLevel,
			UserXP:     entry.UserXP,
			ActionType: entry.ActionType,
			ActionData: entry.ActionData,
			CreatedAt:  time.Unix(entry.CreatedAtSeconds, 0).UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": payload, "limit": limit, "offset": offset})
}

func (h *httpHandler) handleAdminListSettings(c *gin.Context) {
	ctx := c.Request.Context()
	values, err := h.settings.Current(ctx)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	stored, err := h.store.ListSettings(ctx)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	overrides := make(map[string]string, len(stored))
	for _, setting := range stored {
		overrides[setting.Key] = setting.Value
	}
	c.JSON(http.StatusOK, gin.H{
		"effective": gin.H{
			settings.KeyDailyXPLimit: values.DailyXPLimit,
			settings.KeyReminderXP:   values.ReminderXP,
			settings.KeyHabitXP:      values.HabitXP,
			settings.KeyNoteXP:       values.NoteXP,
			settings.KeyStartXP:      values.StartXP,
		},
		"overrides": overrides,
	})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (h *httpHandler) handleAdminSetSetting(c *gin.Context) {
	var request settingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	value, err := settings.Validate(key, request.Value)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if err := h.store.SetSetting(c.Request.Context(), key, value); err != nil {
		h.abortWithError(c, err)
		return
	}
	h.logger.Info("setting updated",
		zap.Int64("admin_id", c.GetInt64(subjectContextKey)),
		zap.String("key", key),
		zap.String("value", value))
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

type adminFlagRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

func (h *httpHandler) handleAdminSetFlag(c *gin.Context) {
	var request adminFlagRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.IsAdmin == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID, err := users.ParseUserID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	ctx := c.Request.Context()
	if err := h.users.SetAdmin(ctx, userID, *request.IsAdmin); err != nil {
		h.abortWithError(c, err)
		return
	}
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	h.logger.Info("admin flag updated",
		zap.Int64("admin_id", c.GetInt64(subjectContextKey)),
		zap.Int64("user_id", userID),
		zap.Bool("is_admin", user.IsAdmin))
	c.JSON(http.StatusOK, gin.H{"user": newUserPayload(user)})
}

// appendLog snapshots the user's progression next to the action.
func (h *httpHandler) appendLog(ctx context.Context, userID int64, actionType, data string) {
	entry := store.ActionLog{
		UserID:     userID,
		ActionType: actionType,
		ActionData: data,
	}
	if user, err := h.store.GetUser(ctx, userID); err == nil {
		entry.Username = user.Username
		entry.UserLevel = user.Level
		entry.UserXP = user.XP
	}
	if err := h.store.AppendActionLog(ctx, entry); err != nil {
		h.logger.Warn("action log append failed",
			zap.Int64("user_id", userID),
			zap.String("action_type", actionType),
			zap.Error(err))
	}
}

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return value, true
}
