package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/assistant/internal/progression"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	manualXPCategory = "manual"

	actionLogAwardXP     = "award_xp"
	actionLogUserCreated = "user_created"
)

type userPayload struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	XP         int    `json:"xp"`
	Level      int    `json:"level"`
	Timezone   string `json:"timezone"`
	IsAdmin    bool   `json:"is_admin"`
	DailyXP    int    `json:"daily_xp"`
	LastActive string `json:"last_active"`
}

func newUserPayload(user store.User) userPayload {
	return userPayload{
		UserID:     user.UserID,
		Username:   user.Username,
		XP:         user.XP,
		Level:      user.Level,
		Timezone:   user.Timezone,
		IsAdmin:    user.IsAdmin,
		DailyXP:    user.DailyXP,
		LastActive: user.LastActiveDate,
	}
}

type awardPayload struct {
	Granted      int    `json:"granted"`
	XP           int    `json:"xp"`
	Level        int    `json:"level"`
	LeveledUp    bool   `json:"leveled_up"`
	Reward       string `json:"reward,omitempty"`
	BonusXP      int    `json:"bonus_xp"`
	LimitReached bool   `json:"limit_reached"`
	Remaining    int    `json:"remaining"`
	DailyXP      int    `json:"daily_xp"`
	DailyLimit   int    `json:"daily_limit"`
}

func newAwardPayload(result progression.AwardResult) *awardPayload {
	return &awardPayload{
		Granted:      result.Granted,
		XP:           result.XP,
		Level:        result.Level,
		LeveledUp:    result.LeveledUp,
		Reward:       result.RewardLabel,
		BonusXP:      result.BonusGranted,
		LimitReached: result.LimitReached,
		Remaining:    result.Remaining,
		DailyXP:      result.DailyXP,
		DailyLimit:   result.DailyLimit,
	}
}

type levelPayload struct {
	Level      int    `json:"level"`
	XPRequired int    `json:"xp_required"`
	Reward     string `json:"reward"`
	RewardXP   int    `json:"reward_xp"`
}

func (h *httpHandler) handleLevels(c *gin.Context) {
	rewards, err := h.engine.Rewards(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	levels := make([]levelPayload, 0, len(rewards))
	for _, reward := range rewards {
		levels = append(levels, levelPayload{
			Level:      reward.Level,
			XPRequired: reward.XPRequired,
			Reward:     reward.RewardText,
			RewardXP:   reward.RewardXP,
		})
	}
	c.JSON(http.StatusOK, gin.H{"levels": levels})
}

type ensureUserRequest struct {
	Username string `json:"username"`
}

func (h *httpHandler) handleEnsureUser(c *gin.Context) {
	var request ensureUserRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	userID := c.GetInt64(targetContextKey)
	result, err := h.users.EnsureUser(c.Request.Context(), userID, request.Username)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	var startAward *awardPayload
	if result.StartAward != nil {
		startAward = newAwardPayload(*result.StartAward)
		h.publishAward(userID, *result.StartAward)
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		h.appendLog(c.Request.Context(), userID, actionLogUserCreated, result.User.Username)
	}
	c.JSON(status, gin.H{
		"user":        newUserPayload(result.User),
		"created":     result.Created,
		"start_award": startAward,
	})
}

func (h *httpHandler) handleUserStats(c *gin.Context) {
	userStats, err := h.stats.UserStats(c.Request.Context(), c.GetInt64(targetContextKey))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, userStats)
}

type progressPayload struct {
	Level           int     `json:"level"`
	XP              int     `json:"xp"`
	LevelXP         int     `json:"level_xp"`
	NextLevelXP     int     `json:"next_level_xp"`
	XPInLevel       int     `json:"xp_in_level"`
	XPNeeded        int     `json:"xp_needed"`
	ProgressPercent float64 `json:"progress_percent"`
	Reward          string  `json:"reward"`
	DailyXP         int     `json:"daily_xp"`
	DailyLimit      int     `json:"daily_limit"`
}

func (h *httpHandler) handleProgress(c *gin.Context) {
	ctx := c.Request.Context()
	progress, err := h.engine.LevelProgress(ctx, c.GetInt64(targetContextKey))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	title, err := h.engine.RewardTitle(ctx, progress.Level)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, progressPayload{
		Level:           progress.Level,
		XP:              progress.XP,
		LevelXP:         progress.LevelXP,
		NextLevelXP:     progress.NextLevelXP,
		XPInLevel:       progress.XPInLevel,
		XPNeeded:        progress.XPNeeded,
		ProgressPercent: progress.Percent,
		Reward:          title,
		DailyXP:         progress.DailyXP,
		DailyLimit:      progress.DailyLimit,
	})
}

type awardXPRequest struct {
	Amount   *int   `json:"amount"`
	Category string `json:"category"`
}

func (h *httpHandler) handleAwardXP(c *gin.Context) {
	var request awardXPRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	category := strings.TrimSpace(request.Category)
	if category == "" {
		category = manualXPCategory
	}
	ctx := c.Request.Context()
	userID := c.GetInt64(targetContextKey)
	result, err := h.engine.AwardXP(ctx, userID, *request.Amount, category)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if result.Granted > 0 {
		h.publishAward(userID, result)
		h.appendLog(ctx, userID, actionLogAwardXP, category+":"+strconv.Itoa(result.Granted))
	}
	c.JSON(http.StatusOK, newAwardPayload(result))
}

func (h *httpHandler) handleCheckXP(c *gin.Context) {
	amount := 0
	if raw := strings.TrimSpace(c.Query("amount")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
			return
		}
		amount = parsed
	}
	check, err := h.engine.CheckDailyLimit(c.Request.Context(), c.GetInt64(targetContextKey), amount)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"allowed":     check.Allowed,
		"remaining":   check.Remaining,
		"daily_xp":    check.DailyXP,
		"daily_limit": check.DailyLimit,
	})
}

type timezoneRequest struct {
	Timezone string `json:"timezone"`
}

func (h *httpHandler) handleSetTimezone(c *gin.Context) {
	var request timezoneRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ctx := c.Request.Context()
	userID := c.GetInt64(targetContextKey)
	if err := h.users.SetTimezone(ctx, userID, request.Timezone); err != nil {
		h.abortWithError(c, err)
		return
	}
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserPayload(user)})
}

func (h *httpHandler) publishAward(userID int64, result progression.AwardResult) {
	if result.Granted == 0 && !result.LeveledUp {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:    userID,
		EventType: RealtimeEventXP,
		Payload:   newAwardPayload(result),
	})
}

// recordAction awards the configured XP for a completed action and appends it to the
// action log. The action itself has already been persisted, so failures are logged only.
func (h *httpHandler) recordAction(c *gin.Context, action, logType, logData string) *awardPayload {
	ctx := c.Request.Context()
	userID := c.GetInt64(targetContextKey)
	var award *awardPayload
	values, err := h.settings.Current(ctx)
	if err != nil {
		h.logger.Warn("settings unavailable, skipping xp award", zap.Int64("user_id", userID), zap.Error(err))
	} else if amount := values.XPFor(action); amount > 0 {
		result, awardErr := h.engine.AwardXP(ctx, userID, amount, action)
		if awardErr != nil {
			h.logger.Error("action xp award failed",
				zap.Int64("user_id", userID),
				zap.String("action", action),
				zap.Error(awardErr))
		} else {
			award = newAwardPayload(result)
			h.publishAward(userID, result)
		}
	}
	h.appendLog(ctx, userID, logType, logData)
	return award
}
