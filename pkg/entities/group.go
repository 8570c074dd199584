package entities

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Group is one joined group chat, unique per (user, session, groupJid).
type Group struct {
	gorm.Model
	UserID           uint           `json:"user_id" gorm:"uniqueIndex:idx_group_owner_jid;not null"`
	SessionID        string         `json:"session_id" gorm:"type:varchar(64);uniqueIndex:idx_group_owner_jid;not null"`
	GroupJID         string         `json:"group_jid" gorm:"type:varchar(255);uniqueIndex:idx_group_owner_jid;not null"`
	Name             string         `json:"name" gorm:"type:varchar(255)"`
	Description      string         `json:"description" gorm:"type:text"`
	OwnerJID         string         `json:"owner_jid" gorm:"type:varchar(255)"`
	ParticipantCount int            `json:"participant_count" gorm:"default:0"`
	AdminCount       int            `json:"admin_count" gorm:"default:0"`
	IsAnnounce       bool           `json:"is_announce" gorm:"default:false"`
	IsLocked         bool           `json:"is_locked" gorm:"default:false"`
	Metadata         datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`

	Members []GroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
}

func (Group) TableName() string { return "whatsapp_groups" }

// GroupMember is one participant row, unique per (group, participantJid).
// Phone is empty when only a LID identity is known.
type GroupMember struct {
	gorm.Model
	GroupID        uint   `json:"group_id" gorm:"uniqueIndex:idx_member_group_jid;not null"`
	ParticipantJID string `json:"participant_jid" gorm:"type:varchar(255);uniqueIndex:idx_member_group_jid;not null"`
	Phone          string `json:"phone" gorm:"type:varchar(30)"`
	DisplayName    string `json:"display_name" gorm:"type:varchar(255)"`
	PushName       string `json:"push_name" gorm:"type:varchar(255)"`
	IsAdmin        bool   `json:"is_admin" gorm:"default:false"`
	IsSuperAdmin   bool   `json:"is_super_admin" gorm:"default:false"`
	IsLidFormat    bool   `json:"is_lid_format" gorm:"default:false"`
}

func (GroupMember) TableName() string { return "whatsapp_group_members" }
