package store

import "time"

// DateLayout is the calendar-date format used for anchor and action dates.
const DateLayout = "2006-01-02"

// DateOf renders the calendar date of t in loc.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// User is the progression row of a single assistant user.
type User struct {
	UserID           int64  `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username         string `gorm:"column:username;size:190;not null;default:''"`
	XP               int    `gorm:"column:xp;not null;default:0;index:idx_users_xp"`
	Level            int    `gorm:"column:level;not null;default:1"`
	Timezone         string `gorm:"column:timezone;size:64;not null;default:'Europe/Moscow'"`
	IsAdmin          bool   `gorm:"column:is_admin;not null;default:false"`
	StartXPPending   bool   `gorm:"column:start_xp_pending;not null;default:false"`
	DailyXP          int    `gorm:"column:daily_xp;not null;default:0"`
	DailyAnchorDate  string `gorm:"column:daily_xp_reset;size:10;not null"`
	LastActiveDate   string `gorm:"column:last_active;size:10;not null;index"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// DailyAction is an append-only record of one successful XP grant.
type DailyAction struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           int64  `gorm:"column:user_id;not null;index:idx_daily_actions_user_date,priority:1"`
	ActionType       string `gorm:"column:action_type;size:64;not null"`
	ActionDate       string `gorm:"column:action_date;size:10;not null;index:idx_daily_actions_user_date,priority:2"`
	XPEarned         int    `gorm:"column:xp_earned;not null;default:0"`
	Count            int    `gorm:"column:count;not null;default:1"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (DailyAction) TableName() string {
	return "daily_actions"
}

// LevelReward is a row of the static level reward reference table.
type LevelReward struct {
	Level      int    `gorm:"column:level;primaryKey;autoIncrement:false"`
	XPRequired int    `gorm:"column:xp_required;not null"`
	RewardText string `gorm:"column:reward_text;size:190;not null"`
	RewardXP   int    `gorm:"column:reward_xp;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (LevelReward) TableName() string {
	return "level_rewards"
}

// Setting is a persisted key/value override.
type Setting struct {
	Key   string `gorm:"column:key;primaryKey;size:64"`
	Value string `gorm:"column:value;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Setting) TableName() string {
	return "bot_settings"
}

// Reminder is a user-owned time-stamped event with independent notification flags.
type Reminder struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           int64  `gorm:"column:user_id;not null;index"`
	Title            string `gorm:"column:title;size:512;not null"`
	Description      string `gorm:"column:description;type:text;not null;default:''"`
	Location         string `gorm:"column:location;size:512;not null;default:''"`
	RemindAtSeconds  int64  `gorm:"column:remind_at_s;not null;index:idx_reminders_due,priority:2"`
	IsCompleted      bool   `gorm:"column:is_completed;not null;default:false;index:idx_reminders_due,priority:1"`
	Notified         bool   `gorm:"column:notified;not null;default:false"`
	PreNotified      bool   `gorm:"column:pre_notified;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Reminder) TableName() string {
	return "reminders"
}

// RemindAt returns the due time in UTC.
func (r Reminder) RemindAt() time.Time {
	return time.Unix(r.RemindAtSeconds, 0).UTC()
}

// ActionLog records a user-facing action with a snapshot of the user's progression.
type ActionLog struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           int64  `gorm:"column:user_id;not null;index"`
	Username         string `gorm:"column:username;size:190;not null;default:''"`
	UserLevel        int    `gorm:"column:user_level;not null;default:1"`
	UserXP           int    `gorm:"column:user_xp;not null;default:0"`
	ActionType       string `gorm:"column:action_type;size:64;not null"`
	ActionData       string `gorm:"column:action_data;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;autoCreateTime;index"`
}

// TableName provides the explicit table binding for GORM.
func (ActionLog) TableName() string {
	return "logs"
}

// Models lists every table owned by the store, in migration order.
func Models() []interface{} {
	return []interface{}{&User{}, &DailyAction{}, &LevelReward{}, &Setting{}, &Reminder{}, &ActionLog{}}
}
