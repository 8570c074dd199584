package entities

import (
	"time"

	"gorm.io/gorm"
)

// Conversation pairs a session with a customer phone. A non-nil
// HumanAgentID means a human took over and auto-reply must stay silent.
type Conversation struct {
	gorm.Model
	SessionID     string     `json:"session_id" gorm:"type:varchar(64);uniqueIndex:idx_convo_session_phone;not null"`
	CustomerPhone string     `json:"customer_phone" gorm:"type:varchar(30);uniqueIndex:idx_convo_session_phone;not null"`
	CustomerName  string     `json:"customer_name" gorm:"type:varchar(255)"`
	HumanAgentID  *uint      `json:"human_agent_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`

	Messages []ConversationMessage `json:"-" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMessage is one line of the per-conversation ledger; the
// trailing window feeds the AI responder.
type ConversationMessage struct {
	gorm.Model
	ConversationID uint             `json:"conversation_id" gorm:"index;not null"`
	Direction      MessageDirection `json:"direction" gorm:"type:varchar(10);not null"`
	Content        string           `json:"content" gorm:"type:text"`
}

func (ConversationMessage) TableName() string { return "conversation_messages" }

type RuleMatchMode string

const (
	MatchModeExact      RuleMatchMode = "exact"
	MatchModeContains   RuleMatchMode = "contains"
	MatchModeStartsWith RuleMatchMode = "starts_with"
	MatchModeEndsWith   RuleMatchMode = "ends_with"
	MatchModeRegex      RuleMatchMode = "regex"
)

// AutoReplyRule is a user-managed keyword rule, evaluated by priority
// desc then id asc, case-insensitive except regex.
type AutoReplyRule struct {
	gorm.Model
	UserID    uint          `json:"user_id" gorm:"index;not null"`
	SessionID string        `json:"session_id" gorm:"type:varchar(64);index;not null"`
	Trigger   string        `json:"trigger" gorm:"type:varchar(500);not null"`
	MatchMode RuleMatchMode `json:"match_mode" gorm:"type:varchar(15);default:contains"`
	Reply     string        `json:"reply" gorm:"type:text;not null"`
	Priority  int           `json:"priority" gorm:"default:0"`
	IsActive  bool          `json:"is_active" gorm:"default:true"`
}

func (AutoReplyRule) TableName() string { return "auto_reply_rules" }
