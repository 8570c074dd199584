package entities

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MessageDirection string

const (
	DirectionIncoming MessageDirection = "incoming"
	DirectionOutgoing MessageDirection = "outgoing"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
	MessageTypeOther    MessageType = "other"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// statusRank orders the monotone pending → sent → delivered → read
// progression; failed is terminal.
var statusRank = map[MessageStatus]int{
	MessageStatusPending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// CanProgressTo reports whether moving from into to is a legal status
// transition. Regressions and transitions out of failed are rejected.
func (s MessageStatus) CanProgressTo(to MessageStatus) bool {
	if s == MessageStatusFailed {
		return false
	}
	if to == MessageStatusFailed {
		return true
	}
	return statusRank[to] > statusRank[s]
}

type AutoReplySource string

const (
	AutoReplySourceOpenAI     AutoReplySource = "openai"
	AutoReplySourceRajaOngkir AutoReplySource = "rajaongkir"
	AutoReplySourceManual     AutoReplySource = "manual"
)

// Message is one inbound or outbound message. MessageID is the external
// idempotency key; re-insertion with the same id is a no-op.
type Message struct {
	gorm.Model
	MessageID       string           `json:"message_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	SessionID       string           `json:"session_id" gorm:"type:varchar(64);index;not null"`
	Direction       MessageDirection `json:"direction" gorm:"type:varchar(10);not null"`
	Type            MessageType      `json:"type" gorm:"type:varchar(20);default:text"`
	FromNumber      string           `json:"from_number" gorm:"type:varchar(30)"`
	ToNumber        string           `json:"to_number" gorm:"type:varchar(30)"`
	PushName        string           `json:"push_name" gorm:"type:varchar(255)"`
	Content         string           `json:"content" gorm:"type:text"`
	MediaMeta       datatypes.JSON   `json:"media_meta,omitempty" gorm:"type:jsonb"`
	Status          MessageStatus    `json:"status" gorm:"type:varchar(15);default:pending"`
	IsAutoReply     bool             `json:"is_auto_reply" gorm:"default:false"`
	AutoReplySource AutoReplySource  `json:"auto_reply_source,omitempty" gorm:"type:varchar(20)"`
	ReplyContext    datatypes.JSON   `json:"reply_context,omitempty" gorm:"type:jsonb"`
	ErrorMessage    string           `json:"error_message,omitempty" gorm:"type:text"`
	SentAt          *time.Time       `json:"sent_at,omitempty"`
	DeliveredAt     *time.Time       `json:"delivered_at,omitempty"`
	ReadAt          *time.Time       `json:"read_at,omitempty"`
}

func (Message) TableName() string { return "whatsapp_messages" }
