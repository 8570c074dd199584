package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionStatusQRPending    SessionStatus = "qr_pending"
	SessionStatusConnecting   SessionStatus = "connecting"
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusFailed       SessionStatus = "failed"
)

// Session is one authenticated attachment to the chat network for a
// tenant phone. A non-deleted session has at most one live transport.
type Session struct {
	gorm.Model
	SessionID          string         `json:"session_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID             uint           `json:"user_id" gorm:"index;not null"`
	Name               string         `json:"name" gorm:"type:varchar(255)"`
	PhoneNumber        string         `json:"phone_number" gorm:"type:varchar(20)"`
	Status             SessionStatus  `json:"status" gorm:"type:varchar(20);default:qr_pending"`
	QRCode             string         `json:"qr_code,omitempty" gorm:"type:text"`
	QRExpiresAt        *time.Time     `json:"qr_expires_at,omitempty"`
	AIAssistantType    string         `json:"ai_assistant_type" gorm:"type:varchar(50)"`
	AIConfig           datatypes.JSON `json:"ai_config,omitempty" gorm:"type:jsonb"`
	WebhookURL         string         `json:"webhook_url" gorm:"type:varchar(512)"`
	Settings           datatypes.JSON `json:"settings,omitempty" gorm:"type:jsonb"`
	LastConnectedAt    *time.Time     `json:"last_connected_at,omitempty"`
	LastDisconnectedAt *time.Time     `json:"last_disconnected_at,omitempty"`
	IsActive           bool           `json:"is_active" gorm:"default:true"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (Session) TableName() string { return "whatsapp_sessions" }

// SettingBool reads a boolean from the settings blob. Missing keys fall
// back to def; autoReplyEnabled and autoSaveContacts default to true.
func (s *Session) SettingBool(key string, def bool) bool {
	if len(s.Settings) == 0 {
		return def
	}
	var settings map[string]any
	if err := json.Unmarshal(s.Settings, &settings); err != nil {
		return def
	}
	v, ok := settings[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (s *Session) SettingString(key string) string {
	if len(s.Settings) == 0 {
		return ""
	}
	var settings map[string]any
	if err := json.Unmarshal(s.Settings, &settings); err != nil {
		return ""
	}
	v, _ := settings[key].(string)
	return v
}

// QRValid reports whether the persisted QR payload is still usable.
func (s *Session) QRValid(now time.Time) bool {
	return s.QRCode != "" && s.QRExpiresAt != nil && now.Before(*s.QRExpiresAt)
}
