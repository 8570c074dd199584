package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignStatusDraft      CampaignStatus = "draft"
	CampaignStatusScheduled  CampaignStatus = "scheduled"
	CampaignStatusProcessing CampaignStatus = "processing"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusFailed     CampaignStatus = "failed"
	CampaignStatusCancelled  CampaignStatus = "cancelled"
)

// CanCancel reports whether cancellation is legal from this status.
func (s CampaignStatus) CanCancel() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusProcessing:
		return true
	}
	return false
}

// CanStart reports whether execution may begin from this status.
func (s CampaignStatus) CanStart() bool {
	return s == CampaignStatusDraft || s == CampaignStatusScheduled
}

// CampaignTemplate is the message template stored on the campaign row.
type CampaignTemplate struct {
	Type      MessageType       `json:"type"`
	Content   string            `json:"content"`
	MediaURL  string            `json:"mediaUrl,omitempty"`
	Caption   string            `json:"caption,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Campaign is a named bulk send over an explicit recipient list.
// Invariant: SentCount + FailedCount + pending ≤ TotalRecipients.
type Campaign struct {
	gorm.Model
	UserID          uint           `json:"user_id" gorm:"index;not null"`
	SessionID       string         `json:"session_id" gorm:"type:varchar(64);index;not null"`
	Name            string         `json:"name" gorm:"type:varchar(255);not null"`
	Template        datatypes.JSON `json:"template" gorm:"type:jsonb;not null"`
	Status          CampaignStatus `json:"status" gorm:"type:varchar(15);default:draft"`
	ScheduledAt     *time.Time     `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	TotalRecipients int            `json:"total_recipients" gorm:"default:0"`
	SentCount       int            `json:"sent_count" gorm:"default:0"`
	FailedCount     int            `json:"failed_count" gorm:"default:0"`
	BatchSize       int            `json:"batch_size" gorm:"default:20"`
	BatchDelayMs    int64          `json:"batch_delay_ms" gorm:"default:60000"`

	Recipients []Recipient `json:"recipients,omitempty" gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE"`
}

func (Campaign) TableName() string { return "broadcast_campaigns" }

func (c *Campaign) ParseTemplate() (CampaignTemplate, error) {
	var tpl CampaignTemplate
	err := json.Unmarshal(c.Template, &tpl)
	return tpl, err
}

type RecipientStatus string

const (
	RecipientStatusPending RecipientStatus = "pending"
	RecipientStatusSent    RecipientStatus = "sent"
	RecipientStatusFailed  RecipientStatus = "failed"
	RecipientStatusSkipped RecipientStatus = "skipped"
)

// Recipient is one target of a campaign, unique per (campaign, phone),
// processed in id order.
type Recipient struct {
	gorm.Model
	CampaignID uint            `json:"campaign_id" gorm:"uniqueIndex:idx_recipient_campaign_phone;not null"`
	Phone      string          `json:"phone" gorm:"type:varchar(30);uniqueIndex:idx_recipient_campaign_phone;not null"`
	Name       string          `json:"name" gorm:"type:varchar(255)"`
	Status     RecipientStatus `json:"status" gorm:"type:varchar(10);default:pending"`
	SentAt     *time.Time      `json:"sent_at,omitempty"`
	Error      string          `json:"error,omitempty" gorm:"type:text"`
}

func (Recipient) TableName() string { return "broadcast_recipients" }
