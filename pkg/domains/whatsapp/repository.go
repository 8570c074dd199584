package whatsapp

import (
	"context"
	"time"

	"github.com/wagate/pkg/entities"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	Save(ctx context.Context, session *entities.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (entities.Session, error)
	GetOwned(ctx context.Context, userID uint, sessionID string) (entities.Session, error)
	List(ctx context.Context, userID uint, activeOnly bool) ([]entities.Session, error)
	MarkStatus(ctx context.Context, sessionID string, status entities.SessionStatus, at time.Time) error
	MarkConnected(ctx context.Context, sessionID, phoneNumber string, at time.Time) error
	SetQR(ctx context.Context, sessionID, qrCode string, expiresAt time.Time) error
	ClearQR(ctx context.Context, sessionID string) error
	SoftDelete(ctx context.Context, sessionID string) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *entities.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) Save(ctx context.Context, session *entities.Session) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *sessionRepository) GetBySessionID(ctx context.Context, sessionID string) (entities.Session, error) {
	var session entities.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	return session, err
}

func (r *sessionRepository) GetOwned(ctx context.Context, userID uint, sessionID string) (entities.Session, error) {
	var session entities.Session
	err := r.db.WithContext(ctx).Where("session_id = ? AND user_id = ?", sessionID, userID).First(&session).Error
	return session, err
}

func (r *sessionRepository) List(ctx context.Context, userID uint, activeOnly bool) ([]entities.Session, error) {
	var sessions []entities.Session
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("id asc").Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) MarkStatus(ctx context.Context, sessionID string, status entities.SessionStatus, at time.Time) error {
	updates := map[string]any{"status": status}
	switch status {
	case entities.SessionStatusDisconnected, entities.SessionStatusFailed:
		updates["last_disconnected_at"] = at
	}
	return r.db.WithContext(ctx).Model(&entities.Session{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
}

func (r *sessionRepository) MarkConnected(ctx context.Context, sessionID, phoneNumber string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":            entities.SessionStatusConnected,
			"phone_number":      phoneNumber,
			"last_connected_at": at,
			"qr_code":           "",
			"qr_expires_at":     nil,
		}).Error
}

func (r *sessionRepository) SetQR(ctx context.Context, sessionID, qrCode string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":        entities.SessionStatusQRPending,
			"qr_code":       qrCode,
			"qr_expires_at": expiresAt,
		}).Error
}

func (r *sessionRepository) ClearQR(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Model(&entities.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"qr_code": "", "qr_expires_at": nil}).Error
}

func (r *sessionRepository) SoftDelete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entities.Session{}).Error
}
