package entities

import (
	"time"

	"gorm.io/gorm"
)

// RateLimit is the per-session send bucket. Counters reset on the first
// activity after their window expires; a future CooldownUntil blocks all
// sends.
type RateLimit struct {
	gorm.Model
	SessionID        string     `json:"session_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	MessagesSentHour int        `json:"messages_sent_hour" gorm:"default:0"`
	MessagesSentDay  int        `json:"messages_sent_day" gorm:"default:0"`
	LastSentAt       *time.Time `json:"last_sent_at,omitempty"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
}

func (RateLimit) TableName() string { return "whatsapp_rate_limits" }
