package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/wagate/pkg/config"
	"github.com/wagate/pkg/domains/ratelimit"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/dtos"
	"github.com/wagate/pkg/entities"
	apperrors "github.com/wagate/pkg/errors"
	"github.com/wagate/pkg/events"
	"github.com/wagate/pkg/logger"
	"github.com/wagate/pkg/utils"
	"gorm.io/gorm"
)

// SessionGate is the slice of the session manager the executor needs.
type SessionGate interface {
	GetTransport(sessionID string) whatsapp.Transport
	IsConnected(sessionID string) bool
}

// SessionLookup resolves campaign session ownership.
type SessionLookup interface {
	GetOwned(ctx context.Context, userID uint, sessionID string) (entities.Session, error)
}

type Service interface {
	Create(ctx context.Context, userID uint, req dtos.CreateBroadcastDTO) (entities.Campaign, error)
	List(ctx context.Context, userID uint, status string) ([]entities.Campaign, error)
	Get(ctx context.Context, userID, campaignID uint) (entities.Campaign, error)
	Execute(ctx context.Context, userID, campaignID uint) error
	Cancel(ctx context.Context, userID, campaignID uint) error
	GroupBroadcast(ctx context.Context, userID uint, sessionID string, req dtos.GroupBroadcastDTO) (sent int, failed int, err error)
}

type service struct {
	repo     Repository
	sessions SessionLookup
	gate     SessionGate
	limiter  *ratelimit.Limiter
	hub      *events.Hub
	clock    utils.Clock
	cfg      config.Broadcast
	fetch    MediaFetcher
	log      zerolog.Logger
}

func NewService(
	repo Repository,
	sessions SessionLookup,
	gate SessionGate,
	limiter *ratelimit.Limiter,
	hub *events.Hub,
	clock utils.Clock,
	cfg config.Broadcast,
	fetch MediaFetcher,
) Service {
	if fetch == nil {
		fetch = HTTPMediaFetcher()
	}
	return &service{
		repo:     repo,
		sessions: sessions,
		gate:     gate,
		limiter:  limiter,
		hub:      hub,
		clock:    clock,
		cfg:      cfg,
		fetch:    fetch,
		log:      logger.Get("broadcast"),
	}
}

// Create validates ownership, recipient volume, and template
// completeness, then persists the campaign with all recipients pending.
func (s *service) Create(ctx context.Context, userID uint, req dtos.CreateBroadcastDTO) (entities.Campaign, error) {
	session, err := s.sessions.GetOwned(ctx, userID, req.SessionID)
	if err == gorm.ErrRecordNotFound {
		return entities.Campaign{}, apperrors.NotFound("session not found")
	} else if err != nil {
		return entities.Campaign{}, err
	}
	if !session.IsActive {
		return entities.Campaign{}, apperrors.FailedPrecondition("session is not active")
	}

	if len(req.Recipients) < 1 || len(req.Recipients) > s.cfg.MaxRecipients {
		return entities.Campaign{}, apperrors.InvalidArg("recipient count must be between 1 and 10000")
	}
	if req.Template.Content == "" {
		return entities.Campaign{}, apperrors.InvalidArg("template content is required")
	}
	templateType := entities.MessageType(req.Template.Type)
	switch templateType {
	case entities.MessageTypeText:
	case entities.MessageTypeImage, entities.MessageTypeDocument:
		if req.Template.MediaURL == "" {
			return entities.Campaign{}, apperrors.InvalidArg("mediaUrl is required for media templates")
		}
	default:
		return entities.Campaign{}, apperrors.InvalidArg("unsupported template type")
	}

	// Normalize and de-duplicate recipient phones.
	seen := make(map[string]struct{}, len(req.Recipients))
	recipients := make([]entities.Recipient, 0, len(req.Recipients))
	for _, rec := range req.Recipients {
		phone := utils.NormalizePhone(rec.Phone)
		if phone == "" {
			return entities.Campaign{}, apperrors.InvalidArg("recipient phone must contain digits")
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}
		recipients = append(recipients, entities.Recipient{
			Phone:  phone,
			Name:   rec.Name,
			Status: entities.RecipientStatusPending,
		})
	}

	template, err := json.Marshal(entities.CampaignTemplate{
		Type:      templateType,
		Content:   req.Template.Content,
		MediaURL:  req.Template.MediaURL,
		Caption:   req.Template.Caption,
		Variables: req.Template.Variables,
	})
	if err != nil {
		return entities.Campaign{}, err
	}

	status := entities.CampaignStatusDraft
	if req.ScheduledAt != nil && req.ScheduledAt.After(s.clock.Now()) {
		status = entities.CampaignStatusScheduled
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	batchDelay := req.BatchDelayMs
	if batchDelay <= 0 {
		batchDelay = s.cfg.BatchDelayMs
	}

	campaign := entities.Campaign{
		UserID:          userID,
		SessionID:       req.SessionID,
		Name:            req.Name,
		Template:        template,
		Status:          status,
		ScheduledAt:     req.ScheduledAt,
		TotalRecipients: len(recipients),
		BatchSize:       batchSize,
		BatchDelayMs:    batchDelay,
	}
	if err := s.repo.CreateWithRecipients(ctx, &campaign, recipients); err != nil {
		return entities.Campaign{}, err
	}
	return campaign, nil
}

func (s *service) List(ctx context.Context, userID uint, status string) ([]entities.Campaign, error) {
	return s.repo.List(ctx, userID, status)
}

func (s *service) Get(ctx context.Context, userID, campaignID uint) (entities.Campaign, error) {
	campaign, err := s.repo.GetOwned(ctx, userID, campaignID)
	if err == gorm.ErrRecordNotFound {
		return entities.Campaign{}, apperrors.NotFound("campaign not found")
	}
	return campaign, err
}

// Execute transitions the campaign to processing and runs delivery in
// the background; the call returns immediately.
func (s *service) Execute(ctx context.Context, userID, campaignID uint) error {
	campaign, err := s.Get(ctx, userID, campaignID)
	if err != nil {
		return err
	}
	if !campaign.Status.CanStart() {
		return apperrors.FailedPrecondition("campaign cannot start from status " + string(campaign.Status))
	}
	if !s.gate.IsConnected(campaign.SessionID) {
		return apperrors.FailedPrecondition("session is not connected")
	}

	if err := s.repo.MarkProcessing(ctx, campaignID, s.clock.Now()); err != nil {
		return err
	}
	s.publish(campaign, events.TypeBroadcastStarted, dtos.BroadcastProgressDTO{
		CampaignID: campaign.ID,
		Status:     string(entities.CampaignStatusProcessing),
		Total:      campaign.TotalRecipients,
		Pending:    campaign.TotalRecipients - campaign.SentCount - campaign.FailedCount,
		Sent:       campaign.SentCount,
		Failed:     campaign.FailedCount,
	})

	go s.run(campaign)
	return nil
}

// Cancel is honored from draft, scheduled, or processing; the running
// loop observes it at the next recipient boundary.
func (s *service) Cancel(ctx context.Context, userID, campaignID uint) error {
	campaign, err := s.Get(ctx, userID, campaignID)
	if err != nil {
		return err
	}
	ok, err := s.repo.Cancel(ctx, campaignID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.FailedPrecondition("campaign cannot be cancelled from status " + string(campaign.Status))
	}
	return nil
}

// GroupBroadcast sends one message to explicit group JIDs through the
// same rate-limit gate as campaigns.
func (s *service) GroupBroadcast(ctx context.Context, userID uint, sessionID string, req dtos.GroupBroadcastDTO) (int, int, error) {
	if _, err := s.sessions.GetOwned(ctx, userID, sessionID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, 0, apperrors.NotFound("session not found")
		}
		return 0, 0, err
	}
	transport := s.gate.GetTransport(sessionID)
	if transport == nil || !s.gate.IsConnected(sessionID) {
		return 0, 0, apperrors.FailedPrecondition("session is not connected")
	}

	sent, failed := 0, 0
	for _, raw := range req.GroupJIDs {
		jid, err := waParseJID(raw)
		if err != nil {
			failed++
			continue
		}

		decision, err := s.limiter.Check(ctx, sessionID)
		if err != nil {
			return sent, failed, err
		}
		if !decision.CanSend {
			return sent, failed, apperrors.RateLimited("rate limit: "+decision.Reason, decision.DelayMs)
		}
		if err := s.clock.Sleep(ctx, time.Duration(decision.DelayMs)*time.Millisecond); err != nil {
			return sent, failed, err
		}

		if _, err := transport.SendText(ctx, jid, req.Message); err != nil {
			failed++
			continue
		}
		sent++
		if err := s.limiter.RecordSent(ctx, sessionID); err != nil {
			s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to record send")
		}
	}
	return sent, failed, nil
}

func (s *service) publish(campaign entities.Campaign, evtType string, payload any) {
	s.hub.Publish(events.UserKey(campaign.UserID), evtType, payload)
	s.hub.Publish(events.SessionKey(campaign.SessionID), evtType, payload)
	s.hub.Publish(events.BroadcastKey(campaign.ID), evtType, payload)
}
