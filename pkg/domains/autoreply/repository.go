package autoreply

import (
	"context"
	"time"

	"github.com/wagate/pkg/entities"
	"gorm.io/gorm"
)

// ConversationRepository owns the conversations ledger shared with the
// HTTP-facing agent console. It doubles as the dispatcher's
// ConversationLedger.
type ConversationRepository interface {
	Touch(ctx context.Context, sessionID, phone, pushName string, at time.Time) (entities.Conversation, error)
	Append(ctx context.Context, conversationID uint, direction entities.MessageDirection, content string) error
	History(ctx context.Context, conversationID uint, limit int) ([]entities.ConversationMessage, error)
	Get(ctx context.Context, sessionID, phone string) (entities.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Touch(ctx context.Context, sessionID, phone, pushName string, at time.Time) (entities.Conversation, error) {
	var convo entities.Conversation
	err := r.db.WithContext(ctx).
		Where(entities.Conversation{SessionID: sessionID, CustomerPhone: phone}).
		FirstOrCreate(&convo).Error
	if err != nil {
		return convo, err
	}

	updates := map[string]any{"last_message_at": at}
	if convo.CustomerName == "" && pushName != "" {
		updates["customer_name"] = pushName
	}
	err = r.db.WithContext(ctx).Model(&convo).Updates(updates).Error
	return convo, err
}

func (r *conversationRepository) Append(ctx context.Context, conversationID uint, direction entities.MessageDirection, content string) error {
	line := entities.ConversationMessage{
		ConversationID: conversationID,
		Direction:      direction,
		Content:        content,
	}
	return r.db.WithContext(ctx).Create(&line).Error
}

// History returns the trailing window oldest-first, ready for a chat
// prompt.
func (r *conversationRepository) History(ctx context.Context, conversationID uint, limit int) ([]entities.ConversationMessage, error) {
	var lines []entities.ConversationMessage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id desc").Limit(limit).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}

func (r *conversationRepository) Get(ctx context.Context, sessionID, phone string) (entities.Conversation, error) {
	var convo entities.Conversation
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND customer_phone = ?", sessionID, phone).
		First(&convo).Error
	return convo, err
}

// RuleRepository reads the user-managed keyword rules.
type RuleRepository interface {
	ActiveRules(ctx context.Context, sessionID string) ([]entities.AutoReplyRule, error)
}

type ruleRepository struct {
	db *gorm.DB
}

func NewRuleRepo(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) ActiveRules(ctx context.Context, sessionID string) ([]entities.AutoReplyRule, error) {
	var rules []entities.AutoReplyRule
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Order("priority desc, id asc").
		Find(&rules).Error
	return rules, err
}
