package entities

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Contact is one address-book entry, unique per (user, session, phone).
// Upserts merge by preferring non-empty incoming values and never
// overwrite a human-assigned DisplayName.
type Contact struct {
	gorm.Model
	UserID        uint           `json:"user_id" gorm:"uniqueIndex:idx_contact_owner_phone;not null"`
	SessionID     string         `json:"session_id" gorm:"type:varchar(64);uniqueIndex:idx_contact_owner_phone;not null"`
	Phone         string         `json:"phone" gorm:"type:varchar(30);uniqueIndex:idx_contact_owner_phone;not null"`
	DisplayName   string         `json:"display_name" gorm:"type:varchar(255)"`
	PushName      string         `json:"push_name" gorm:"type:varchar(255)"`
	IsBusiness    bool           `json:"is_business" gorm:"default:false"`
	IsGroup       bool           `json:"is_group" gorm:"default:false"`
	Metadata      datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
}

func (Contact) TableName() string { return "whatsapp_contacts" }
