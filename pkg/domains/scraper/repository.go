package scraper

import (
	"context"
	"time"

	"github.com/wagate/pkg/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepository owns the contacts table. Merge semantics: incoming
// non-empty values win, except display_name, which stays whatever a
// human set.
type ContactRepository interface {
	SaveInbound(ctx context.Context, contact entities.Contact) error
	UpsertBatch(ctx context.Context, contacts []entities.Contact) error
	List(ctx context.Context, userID uint, sessionID string) ([]entities.Contact, error)
}

type contactRepository struct {
	db *gorm.DB
}

func NewContactRepo(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

var contactConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "user_id"}, {Name: "session_id"}, {Name: "phone"}},
	DoUpdates: clause.Assignments(map[string]any{
		"push_name":       gorm.Expr("COALESCE(NULLIF(excluded.push_name, ''), whatsapp_contacts.push_name)"),
		"is_business":     gorm.Expr("whatsapp_contacts.is_business OR excluded.is_business"),
		"metadata":        gorm.Expr("COALESCE(excluded.metadata, whatsapp_contacts.metadata)"),
		"last_message_at": gorm.Expr("COALESCE(excluded.last_message_at, whatsapp_contacts.last_message_at)"),
		"updated_at":      gorm.Expr("excluded.updated_at"),
	}),
}

func (r *contactRepository) SaveInbound(ctx context.Context, contact entities.Contact) error {
	return r.db.WithContext(ctx).Clauses(contactConflict).Create(&contact).Error
}

func (r *contactRepository) UpsertBatch(ctx context.Context, contacts []entities.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(contactConflict).CreateInBatches(contacts, len(contacts)).Error
}

func (r *contactRepository) List(ctx context.Context, userID uint, sessionID string) ([]entities.Contact, error) {
	var contacts []entities.Contact
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id asc").
		Find(&contacts).Error
	return contacts, err
}

// GroupRepository owns groups and their member rows.
type GroupRepository interface {
	UpsertGroup(ctx context.Context, group *entities.Group) error
	UpsertMembers(ctx context.Context, groupID uint, members []entities.GroupMember) error
	SaveMember(ctx context.Context, userID uint, sessionID, groupJID string, member entities.GroupMember) error
	Get(ctx context.Context, groupID uint) (entities.Group, error)
	List(ctx context.Context, userID uint, sessionID string) ([]entities.Group, error)
}

type groupRepository struct {
	db *gorm.DB
}

func NewGroupRepo(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) UpsertGroup(ctx context.Context, group *entities.Group) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "session_id"}, {Name: "group_jid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "owner_jid", "participant_count",
			"admin_count", "is_announce", "is_locked", "metadata", "updated_at",
		}),
	}).Create(group).Error
}

func (r *groupRepository) UpsertMembers(ctx context.Context, groupID uint, members []entities.GroupMember) error {
	if len(members) == 0 {
		return nil
	}
	for i := range members {
		members[i].GroupID = groupID
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "participant_jid"}},
		DoUpdates: clause.Assignments(map[string]any{
			"phone":      gorm.Expr("COALESCE(NULLIF(excluded.phone, ''), whatsapp_group_members.phone)"),
			"push_name":  gorm.Expr("COALESCE(NULLIF(excluded.push_name, ''), whatsapp_group_members.push_name)"),
			"is_admin":   gorm.Expr("excluded.is_admin"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).CreateInBatches(members, 200).Error
}

// SaveMember upserts one observed member and refreshes the group's
// participant count. A placeholder group row is created when the group
// has not been scraped yet.
func (r *groupRepository) SaveMember(ctx context.Context, userID uint, sessionID, groupJID string, member entities.GroupMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group entities.Group
		err := tx.Where(entities.Group{UserID: userID, SessionID: sessionID, GroupJID: groupJID}).
			FirstOrCreate(&group).Error
		if err != nil {
			return err
		}

		member.GroupID = group.ID
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}, {Name: "participant_jid"}},
			DoUpdates: clause.Assignments(map[string]any{
				"phone":     gorm.Expr("COALESCE(NULLIF(excluded.phone, ''), whatsapp_group_members.phone)"),
				"push_name": gorm.Expr("COALESCE(NULLIF(excluded.push_name, ''), whatsapp_group_members.push_name)"),
			}),
		}).Create(&member).Error; err != nil {
			return err
		}

		return tx.Model(&entities.Group{}).
			Where("id = ?", group.ID).
			Update("participant_count", tx.Model(&entities.GroupMember{}).
				Select("count(*)").
				Where("group_id = ?", group.ID)).Error
	})
}

func (r *groupRepository) Get(ctx context.Context, groupID uint) (entities.Group, error) {
	var group entities.Group
	err := r.db.WithContext(ctx).First(&group, groupID).Error
	return group, err
}

func (r *groupRepository) List(ctx context.Context, userID uint, sessionID string) ([]entities.Group, error) {
	var groups []entities.Group
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id asc").
		Find(&groups).Error
	return groups, err
}

// LogRepository owns the scraping audit trail; it is the quota's source
// of truth.
type LogRepository interface {
	Start(ctx context.Context, userID uint, sessionID string, kind entities.ScrapeKind, at time.Time) (entities.ScrapingLog, error)
	Finish(ctx context.Context, logID uint, status entities.ScrapeStatus, total int, errText string, at time.Time) error
	CompletedSince(ctx context.Context, userID uint, sessionID string, since time.Time) (int, error)
	LastCompleted(ctx context.Context, userID uint, sessionID string) (entities.ScrapingLog, error)
}

type logRepository struct {
	db *gorm.DB
}

func NewLogRepo(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Start(ctx context.Context, userID uint, sessionID string, kind entities.ScrapeKind, at time.Time) (entities.ScrapingLog, error) {
	log := entities.ScrapingLog{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      kind,
		Status:    entities.ScrapeStatusInProgress,
		StartedAt: at,
	}
	err := r.db.WithContext(ctx).Create(&log).Error
	return log, err
}

func (r *logRepository) Finish(ctx context.Context, logID uint, status entities.ScrapeStatus, total int, errText string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.ScrapingLog{}).
		Where("id = ?", logID).
		Updates(map[string]any{
			"status":        status,
			"total_scraped": total,
			"error":         errText,
			"completed_at":  at,
		}).Error
}

func (r *logRepository) CompletedSince(ctx context.Context, userID uint, sessionID string, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.ScrapingLog{}).
		Where("user_id = ? AND session_id = ? AND status = ? AND completed_at >= ?",
			userID, sessionID, entities.ScrapeStatusCompleted, since).
		Count(&count).Error
	return int(count), err
}

func (r *logRepository) LastCompleted(ctx context.Context, userID uint, sessionID string) (entities.ScrapingLog, error) {
	var log entities.ScrapingLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ? AND status = ?", userID, sessionID, entities.ScrapeStatusCompleted).
		Order("completed_at desc").
		First(&log).Error
	return log, err
}
