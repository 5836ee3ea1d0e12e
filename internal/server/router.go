package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/auth"
	"github.com/MarcoPoloResearchLab/assistant/internal/habits"
	"github.com/MarcoPoloResearchLab/assistant/internal/notes"
	"github.com/MarcoPoloResearchLab/assistant/internal/progression"
	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/assistant/internal/settings"
	"github.com/MarcoPoloResearchLab/assistant/internal/stats"
	"github.com/MarcoPoloResearchLab/assistant/internal/store"
	"github.com/MarcoPoloResearchLab/assistant/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	subjectContextKey = "assistant_subject_id"
	targetContextKey  = "assistant_target_id"

	accessTokenQueryParam = "access_token"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsers         = errors.New("users service dependency required")
	errMissingEngine        = errors.New("progression engine dependency required")
	errMissingSettings      = errors.New("settings dependency required")
	errMissingStore         = errors.New("store dependency required")
	errMissingReminders     = errors.New("reminders service dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errMissingHabits        = errors.New("habits service dependency required")
	errMissingStats         = errors.New("stats projector dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator resolves the user id a bearer token was issued for.
type TokenValidator interface {
	ValidateRequest(r *http.Request) (int64, error)
	ValidateToken(token string) (int64, error)
}

type Dependencies struct {
	Tokens    TokenValidator
	Users     *users.Service
	Engine    *progression.Engine
	Settings  settings.Source
	Store     *store.Store
	Reminders *reminders.Service
	Notes     *notes.Service
	Habits    *habits.Service
	Stats     *stats.Projector
	Realtime  *RealtimeDispatcher
	Logger    *zap.Logger
	// HeartbeatInterval paces keep-alive events on open streams; zero means 25s.
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Tokens == nil:
		return nil, errMissingTokenManager
	case deps.Users == nil:
		return nil, errMissingUsers
	case deps.Engine == nil:
		return nil, errMissingEngine
	case deps.Settings == nil:
		return nil, errMissingSettings
	case deps.Store == nil:
		return nil, errMissingStore
	case deps.Reminders == nil:
		return nil, errMissingReminders
	case deps.Notes == nil:
		return nil, errMissingNotesService
	case deps.Habits == nil:
		return nil, errMissingHabits
	case deps.Stats == nil:
		return nil, errMissingStats
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:    deps.Tokens,
		users:     deps.Users,
		engine:    deps.Engine,
		settings:  deps.Settings,
		store:     deps.Store,
		reminders: deps.Reminders,
		notes:     deps.Notes,
		habits:    deps.Habits,
		stats:     deps.Stats,
		realtime:  realtime,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.GET("/levels", handler.handleLevels)

	protected := api.Group("")
	protected.Use(handler.authorizeRequest)

	userScope := protected.Group("/users/:user_id")
	userScope.Use(handler.authorizeUser)
	userScope.PUT("", handler.handleEnsureUser)

	existing := userScope.Group("")
	existing.Use(handler.requireUser)
	existing.GET("/stats", handler.handleUserStats)
	existing.GET("/progress", handler.handleProgress)
	existing.POST("/xp", handler.handleAwardXP)
	existing.GET("/xp/check", handler.handleCheckXP)
	existing.PUT("/timezone", handler.handleSetTimezone)
	existing.GET("/events", handler.handleEvents)

	existing.POST("/reminders", handler.handleCreateReminder)
	existing.GET("/reminders", handler.handleListReminders)
	existing.POST("/reminders/:item_id/complete", handler.handleCompleteReminder)
	existing.DELETE("/reminders/:item_id", handler.handleDeleteReminder)

	existing.POST("/notes", handler.handleCreateNote)
	existing.GET("/notes", handler.handleListNotes)
	existing.GET("/notes/:item_id", handler.handleGetNote)
	existing.POST("/notes/:item_id/pin", handler.handleToggleNotePin)
	existing.DELETE("/notes/:item_id", handler.handleDeleteNote)

	existing.POST("/habits", handler.handleCreateHabit)
	existing.GET("/habits", handler.handleListHabits)
	existing.POST("/habits/:item_id/complete", handler.handleCompleteHabit)
	existing.DELETE("/habits/:item_id", handler.handleDeleteHabit)

	admin := protected.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.GET("/stats", handler.handleAdminStats)
	admin.GET("/users", handler.handleAdminUsers)
	admin.GET("/logs", handler.handleAdminLogs)
	admin.GET("/settings", handler.handleAdminListSettings)
	admin.PUT("/settings/:key", handler.handleAdminSetSetting)
	admin.PUT("/users/:user_id/admin", handler.handleAdminSetFlag)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	tokens    TokenValidator
	users     *users.Service
	engine    *progression.Engine
	settings  settings.Source
	store     *store.Store
	reminders *reminders.Service
	notes     *notes.Service
	habits    *habits.Service
	stats     *stats.Projector
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	heartbeat time.Duration
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeRequest accepts the bearer header, or the access_token query parameter
// for EventSource clients that cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	var (
		subject int64
		err     error
	)
	header := c.GetHeader("Authorization")
	switch {
	case header != "":
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		subject, err = h.tokens.ValidateRequest(c.Request)
	case c.Query(accessTokenQueryParam) != "":
		subject, err = h.tokens.ValidateToken(c.Query(accessTokenQueryParam))
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

// authorizeUser lets the caller act on :user_id when it is the subject itself or an admin.
func (h *httpHandler) authorizeUser(c *gin.Context) {
	target, err := users.ParseUserID(c.Param("user_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	subject := c.GetInt64(subjectContextKey)
	if subject != target {
		isAdmin, err := h.users.IsAdmin(c.Request.Context(), subject)
		if err != nil {
			h.logger.Error("admin lookup failed", zap.Int64("user_id", subject), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		if !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
	}
	c.Set(targetContextKey, target)
	c.Next()
}

func (h *httpHandler) requireUser(c *gin.Context) {
	if _, err := h.users.Get(c.Request.Context(), c.GetInt64(targetContextKey)); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	subject := c.GetInt64(subjectContextKey)
	isAdmin, err := h.users.IsAdmin(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("admin lookup failed", zap.Int64("user_id", subject), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if !isAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

// abortWithError maps domain errors onto HTTP statuses; the service error code travels as "code".
func (h *httpHandler) abortWithError(c *gin.Context, err error) {
	status, reason := classifyError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	body := gin.H{"error": reason}
	if code := serviceerr.CodeOf(err); code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, progression.ErrUserNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, reminders.ErrReminderNotFound),
		errors.Is(err, notes.ErrNoteNotFound),
		errors.Is(err, habits.ErrHabitNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, reminders.ErrInvalidReminder),
		errors.Is(err, notes.ErrInvalidNote),
		errors.Is(err, notes.ErrInvalidNoteID),
		errors.Is(err, habits.ErrInvalidHabit),
		errors.Is(err, users.ErrInvalidIdentity),
		errors.Is(err, users.ErrInvalidTimezone),
		errors.Is(err, progression.ErrNegativeAmount),
		errors.Is(err, settings.ErrUnknownKey),
		errors.Is(err, settings.ErrInvalidValue):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
