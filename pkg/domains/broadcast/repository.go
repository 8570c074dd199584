package broadcast

import (
	"context"
	"time"

	"github.com/wagate/pkg/entities"
	"gorm.io/gorm"
)

type Repository interface {
	CreateWithRecipients(ctx context.Context, campaign *entities.Campaign, recipients []entities.Recipient) error
	Get(ctx context.Context, id uint) (entities.Campaign, error)
	GetOwned(ctx context.Context, userID, id uint) (entities.Campaign, error)
	List(ctx context.Context, userID uint, status string) ([]entities.Campaign, error)
	Status(ctx context.Context, id uint) (entities.CampaignStatus, error)
	MarkProcessing(ctx context.Context, id uint, at time.Time) error
	MarkFinished(ctx context.Context, id uint, status entities.CampaignStatus, at time.Time) error
	Cancel(ctx context.Context, id uint) (bool, error)
	PendingRecipients(ctx context.Context, campaignID uint) ([]entities.Recipient, error)
	MarkRecipient(ctx context.Context, recipientID uint, status entities.RecipientStatus, sentAt *time.Time, errText string) error
	SetCounters(ctx context.Context, campaignID uint, sent, failed int) error
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{db: db}
}

// CreateWithRecipients persists the campaign and its recipient list in
// one transaction.
func (r *repository) CreateWithRecipients(ctx context.Context, campaign *entities.Campaign, recipients []entities.Recipient) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(campaign).Error; err != nil {
			return err
		}
		for i := range recipients {
			recipients[i].CampaignID = campaign.ID
		}
		return tx.CreateInBatches(recipients, 500).Error
	})
}

func (r *repository) Get(ctx context.Context, id uint) (entities.Campaign, error) {
	var campaign entities.Campaign
	err := r.db.WithContext(ctx).First(&campaign, id).Error
	return campaign, err
}

func (r *repository) GetOwned(ctx context.Context, userID, id uint) (entities.Campaign, error) {
	var campaign entities.Campaign
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&campaign).Error
	return campaign, err
}

func (r *repository) List(ctx context.Context, userID uint, status string) ([]entities.Campaign, error) {
	var campaigns []entities.Campaign
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("id desc").Find(&campaigns).Error
	return campaigns, err
}

func (r *repository) Status(ctx context.Context, id uint) (entities.CampaignStatus, error) {
	var campaign entities.Campaign
	err := r.db.WithContext(ctx).Select("status").First(&campaign, id).Error
	return campaign.Status, err
}

func (r *repository) MarkProcessing(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": entities.CampaignStatusProcessing, "started_at": at}).Error
}

func (r *repository) MarkFinished(ctx context.Context, id uint, status entities.CampaignStatus, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "completed_at": at}).Error
}

// Cancel flips the campaign to cancelled only from a cancellable state;
// returns whether the transition happened.
func (r *repository) Cancel(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entities.Campaign{}).
		Where("id = ? AND status IN ?", id, []entities.CampaignStatus{
			entities.CampaignStatusDraft,
			entities.CampaignStatusScheduled,
			entities.CampaignStatusProcessing,
		}).
		Update("status", entities.CampaignStatusCancelled)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) PendingRecipients(ctx context.Context, campaignID uint) ([]entities.Recipient, error) {
	var recipients []entities.Recipient
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, entities.RecipientStatusPending).
		Order("id asc").
		Find(&recipients).Error
	return recipients, err
}

func (r *repository) MarkRecipient(ctx context.Context, recipientID uint, status entities.RecipientStatus, sentAt *time.Time, errText string) error {
	updates := map[string]any{"status": status, "error": errText}
	if sentAt != nil {
		updates["sent_at"] = sentAt
	}
	return r.db.WithContext(ctx).Model(&entities.Recipient{}).
		Where("id = ?", recipientID).
		Updates(updates).Error
}

func (r *repository) SetCounters(ctx context.Context, campaignID uint, sent, failed int) error {
	return r.db.WithContext(ctx).Model(&entities.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{"sent_count": sent, "failed_count": failed}).Error
}
