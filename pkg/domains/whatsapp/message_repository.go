package whatsapp

import (
	"context"
	"time"

	"github.com/wagate/pkg/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository interface {
	// InsertIfNew persists the message unless its external id is already
	// known. Returns false when the row existed (idempotent no-op).
	InsertIfNew(ctx context.Context, msg *entities.Message) (bool, error)
	Create(ctx context.Context, msg *entities.Message) error
	GetByMessageID(ctx context.Context, messageID string) (entities.Message, error)
	AdvanceStatus(ctx context.Context, messageID string, status entities.MessageStatus, at time.Time) error
	MarkFailed(ctx context.Context, messageID, reason string) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]entities.Message, error)
	DistinctSenders(ctx context.Context, sessionID string, limit int) ([]string, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) InsertIfNew(ctx context.Context, msg *entities.Message) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *messageRepository) Create(ctx context.Context, msg *entities.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) GetByMessageID(ctx context.Context, messageID string) (entities.Message, error) {
	var msg entities.Message
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error
	return msg, err
}

// AdvanceStatus applies the monotone status progression: regressions and
// transitions out of failed are silently ignored.
func (r *messageRepository) AdvanceStatus(ctx context.Context, messageID string, status entities.MessageStatus, at time.Time) error {
	var msg entities.Message
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error; err != nil {
		return err
	}
	if !msg.Status.CanProgressTo(status) {
		return nil
	}

	updates := map[string]any{"status": status}
	switch status {
	case entities.MessageStatusSent:
		updates["sent_at"] = at
	case entities.MessageStatusDelivered:
		updates["delivered_at"] = at
	case entities.MessageStatusRead:
		updates["read_at"] = at
	}
	return r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("message_id = ?", messageID).
		Updates(updates).Error
}

func (r *messageRepository) MarkFailed(ctx context.Context, messageID, reason string) error {
	return r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("message_id = ?", messageID).
		Updates(map[string]any{
			"status":        entities.MessageStatusFailed,
			"error_message": reason,
		}).Error
}

func (r *messageRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]entities.Message, error) {
	var msgs []entities.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id desc").Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// DistinctSenders lists unique inbound phone numbers, ordered by number. The
// scraper uses this as its chat-list source.
func (r *messageRepository) DistinctSenders(ctx context.Context, sessionID string, limit int) ([]string, error) {
	var phones []string
	err := r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("session_id = ? AND direction = ?", sessionID, entities.DirectionIncoming).
		Distinct("from_number").
		Order("from_number").
		Limit(limit).
		Pluck("from_number", &phones).Error
	return phones, err
}
