package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "ASSISTANT"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "assistant.db"
	defaultLogLevel      = "info"
	defaultTokenIssuer   = "assistant-api"
	defaultTokenTTL      = 720 * time.Hour
	defaultTimezone      = "UTC"
	defaultDailyXPLimit  = 500
	defaultReminderXP    = 10
	defaultHabitXP       = 20
	defaultNoteXP        = 5
	defaultStartXP       = 50
	defaultTickInterval  = 30 * time.Second
	defaultPreNotifyLead = time.Hour
	defaultNotifyTimeout = 10 * time.Second
	defaultNotifierKind  = NotifierLog
	defaultRedisStream   = "assistant:notifications"
	defaultLeaseTTL      = 2 * time.Minute

	leaseTTLNotifyFactor = 2
)

// Notifier kinds accepted by notifier.kind.
const (
	NotifierLog      = "log"
	NotifierRedis    = "redis"
	NotifierWebhook  = "webhook"
	NotifierRealtime = "realtime"
)

// XPConfig holds the configured XP defaults; persisted settings may override them at runtime.
type XPConfig struct {
	DailyLimit int
	Reminder   int
	Habit      int
	Note       int
	Start      int
}

// AppConfig captures runtime configuration for the API server and the reminder scheduler.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	TokenIssuer   string
	TokenTTL      time.Duration
	AdminUserIDs  []int64
	Location      *time.Location
	XP            XPConfig
	TickInterval  time.Duration
	PreNotifyLead time.Duration
	NotifyTimeout time.Duration
	NotifierKind  string
	WebhookURL    string
	RedisStream   string
	RedisAddress  string
	RedisPassword string
	LeaseTTL      time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("admin.user_ids", "")
	configViper.SetDefault("clock.timezone", defaultTimezone)
	configViper.SetDefault("xp.daily_limit", defaultDailyXPLimit)
	configViper.SetDefault("xp.reminder", defaultReminderXP)
	configViper.SetDefault("xp.habit", defaultHabitXP)
	configViper.SetDefault("xp.note", defaultNoteXP)
	configViper.SetDefault("xp.start", defaultStartXP)
	configViper.SetDefault("reminders.tick_interval", defaultTickInterval)
	configViper.SetDefault("reminders.pre_notify_lead", defaultPreNotifyLead)
	configViper.SetDefault("reminders.notify_timeout", defaultNotifyTimeout)
	configViper.SetDefault("notifier.kind", defaultNotifierKind)
	configViper.SetDefault("notifier.redis_stream", defaultRedisStream)
	configViper.SetDefault("scheduler.lease_ttl", defaultLeaseTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	adminIDs, err := parseUserIDs(configViper.GetString("admin.user_ids"))
	if err != nil {
		return AppConfig{}, err
	}
	location, err := time.LoadLocation(strings.TrimSpace(configViper.GetString("clock.timezone")))
	if err != nil {
		return AppConfig{}, fmt.Errorf("clock.timezone: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("auth.issuer"),
		TokenTTL:      configViper.GetDuration("auth.token_ttl"),
		AdminUserIDs:  adminIDs,
		Location:      location,
		XP: XPConfig{
			DailyLimit: configViper.GetInt("xp.daily_limit"),
			Reminder:   configViper.GetInt("xp.reminder"),
			Habit:      configViper.GetInt("xp.habit"),
			Note:       configViper.GetInt("xp.note"),
			Start:      configViper.GetInt("xp.start"),
		},
		TickInterval:  configViper.GetDuration("reminders.tick_interval"),
		PreNotifyLead: configViper.GetDuration("reminders.pre_notify_lead"),
		NotifyTimeout: configViper.GetDuration("reminders.notify_timeout"),
		NotifierKind:  strings.ToLower(strings.TrimSpace(configViper.GetString("notifier.kind"))),
		WebhookURL:    strings.TrimSpace(configViper.GetString("notifier.webhook_url")),
		RedisStream:   configViper.GetString("notifier.redis_stream"),
		RedisAddress:  strings.TrimSpace(configViper.GetString("redis.address")),
		RedisPassword: configViper.GetString("redis.password"),
		LeaseTTL:      configViper.GetDuration("scheduler.lease_ttl"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireSigningSecret reports an error when no bearer-token signing secret is configured.
func (c AppConfig) RequireSigningSecret() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.XP.DailyLimit < 0 {
		return fmt.Errorf("xp.daily_limit must not be negative")
	}
	if c.XP.Reminder < 0 || c.XP.Habit < 0 || c.XP.Note < 0 || c.XP.Start < 0 {
		return fmt.Errorf("per-action xp values must not be negative")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("reminders.tick_interval must be positive")
	}
	if c.PreNotifyLead <= 0 {
		return fmt.Errorf("reminders.pre_notify_lead must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("reminders.notify_timeout must be positive")
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("scheduler.lease_ttl must be positive")
	}
	// The lease is renewed before each notifier call, so one call plus its flag update
	// must fit inside a single TTL.
	if c.LeaseTTL < leaseTTLNotifyFactor*c.NotifyTimeout {
		return fmt.Errorf("scheduler.lease_ttl (%s) must be at least %d times reminders.notify_timeout (%s)",
			c.LeaseTTL, leaseTTLNotifyFactor, c.NotifyTimeout)
	}
	switch c.NotifierKind {
	case NotifierLog, NotifierRealtime:
	case NotifierRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis.address is required for the redis notifier")
		}
	case NotifierWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("notifier.webhook_url is required for the webhook notifier")
		}
	default:
		return fmt.Errorf("notifier.kind %q is not supported", c.NotifierKind)
	}
	return nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("admin.user_ids: invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
