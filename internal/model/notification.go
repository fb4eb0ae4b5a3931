package model

import "time"

// Notification type constants.
const (
	NotifMorningBriefing   = "morning_briefing"
	NotifMiddayNudge       = "midday_nudge"
	NotifEveningReflection = "evening_reflection"
)

// NotificationPreference is the per-user notification singleton. Local times
// are wall-clock HH:MM strings interpreted in the user's timezone. Quiet hours
// are either both set or both empty; start > end means the window wraps
// midnight.
type NotificationPreference struct {
	ID     string `gorm:"primaryKey;size:36"`
	UserID string `gorm:"uniqueIndex;size:36"`

	MorningBriefingEnabled   bool   `gorm:"default:true"`
	MorningBriefingTime      string `gorm:"size:5;default:08:00"`
	MiddayNudgeEnabled       bool   `gorm:"default:true"`
	MiddayNudgeTime          string `gorm:"size:5;default:12:00"`
	EveningReflectionEnabled bool   `gorm:"default:true"`
	EveningReflectionTime    string `gorm:"size:5;default:20:00"`

	QuietHoursStart string `gorm:"size:5"`
	QuietHoursEnd   string `gorm:"size:5"`

	PushEnabled     bool `gorm:"default:true"`
	EmailEnabled    bool `gorm:"default:true"`
	TelegramEnabled bool `gorm:"default:false"`
	TelegramChatID  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasQuietHours reports whether a quiet window is configured.
func (p NotificationPreference) HasQuietHours() bool {
	return p.QuietHoursStart != "" && p.QuietHoursEnd != ""
}

// PushToken is one device registration for push delivery. Tokens are removed
// when the push backend reports them permanently invalid.
type PushToken struct {
	ID         string `gorm:"primaryKey;size:36"`
	UserID     string `gorm:"index;size:36"`
	Token      string `gorm:"uniqueIndex;size:512"`
	DeviceName string `gorm:"size:100"`
	CreatedAt  time.Time
}

// NotificationAudit keeps one row per dispatched notification and channel so
// non-delivery after retry exhaustion stays visible even though the
// idempotency record already marks the notification as attempted.
type NotificationAudit struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;size:36"`
	LocalDate string `gorm:"size:10"`
	Type      string `gorm:"size:32"`
	Channel   string `gorm:"size:16"`
	Delivered bool
	LastError string `gorm:"size:512"`
	Attempts  int
	CreatedAt time.Time
}
