package dtos

import "time"

type BroadcastTemplateDTO struct {
	Type      string            `json:"type" binding:"required"`
	Content   string            `json:"content" binding:"required"`
	MediaURL  string            `json:"mediaUrl"`
	Caption   string            `json:"caption"`
	Variables map[string]string `json:"variables"`
}

type BroadcastRecipientDTO struct {
	Phone string `json:"phone" binding:"required"`
	Name  string `json:"name"`
}

type CreateBroadcastDTO struct {
	SessionID    string                  `json:"session_id" binding:"required"`
	Name         string                  `json:"name" binding:"required"`
	Template     BroadcastTemplateDTO    `json:"template" binding:"required"`
	Recipients   []BroadcastRecipientDTO `json:"recipients" binding:"required"`
	ScheduledAt  *time.Time              `json:"scheduled_at"`
	BatchSize    int                     `json:"batch_size"`
	BatchDelayMs int64                   `json:"batch_delay_ms"`
}

type BroadcastProgressDTO struct {
	CampaignID uint   `json:"campaign_id"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Pending    int    `json:"pending"`
}

type GroupBroadcastDTO struct {
	GroupJIDs []string `json:"group_jids" binding:"required"`
	Message   string   `json:"message" binding:"required"`
}
