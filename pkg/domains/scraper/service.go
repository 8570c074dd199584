package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wagate/pkg/config"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/dtos"
	"github.com/wagate/pkg/entities"
	apperrors "github.com/wagate/pkg/errors"
	"github.com/wagate/pkg/logger"
	"github.com/wagate/pkg/utils"
	waTypes "go.mau.fi/whatsmeow/types"
	"gorm.io/gorm"
)

const lidResolveBatch = 50

// SessionLookup resolves session ownership.
type SessionLookup interface {
	GetOwned(ctx context.Context, userID uint, sessionID string) (entities.Session, error)
}

type Service interface {
	ScrapeContacts(ctx context.Context, userID uint, sessionID string) (dtos.ScrapeResultDTO, error)
	ScrapeGroups(ctx context.Context, userID uint, sessionID string) (dtos.ScrapeResultDTO, error)
	ScrapeGroupMembers(ctx context.Context, userID, groupID uint) (dtos.ScrapeResultDTO, error)
	Status(ctx context.Context, userID uint, sessionID string) (dtos.ScrapeStatusDTO, error)
	ListContacts(ctx context.Context, userID uint, sessionID string) ([]entities.Contact, error)
	ListGroups(ctx context.Context, userID uint, sessionID string) ([]entities.Group, error)
}

type service struct {
	sessions SessionLookup
	gate     whatsapp.TransportDirectory
	contacts ContactRepository
	groups   GroupRepository
	logs     LogRepository
	messages whatsapp.MessageRepository
	clock    utils.Clock
	rng      utils.Rand
	cfg      config.Scraper
	log      zerolog.Logger
}

func NewService(
	sessions SessionLookup,
	gate whatsapp.TransportDirectory,
	contacts ContactRepository,
	groups GroupRepository,
	logs LogRepository,
	messages whatsapp.MessageRepository,
	clock utils.Clock,
	rng utils.Rand,
	cfg config.Scraper,
) Service {
	return &service{
		sessions: sessions,
		gate:     gate,
		contacts: contacts,
		groups:   groups,
		logs:     logs,
		messages: messages,
		clock:    clock,
		rng:      rng,
		cfg:      cfg,
		log:      logger.Get("scraper"),
	}
}

func (s *service) cooldown() time.Duration {
	return time.Duration(s.cfg.CooldownBetweenScrapes) * time.Minute
}

// checkQuota enforces the daily ceiling and the cooldown between
// completed scrapes for one (user, session).
func (s *service) checkQuota(ctx context.Context, userID uint, sessionID string) error {
	now := s.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count, err := s.logs.CompletedSince(ctx, userID, sessionID, dayStart)
	if err != nil {
		return err
	}
	if count >= s.cfg.MaxScrapesPerDay {
		untilMidnight := dayStart.Add(24 * time.Hour).Sub(now)
		return apperrors.RateLimited(
			fmt.Sprintf("daily scrape quota of %d reached", s.cfg.MaxScrapesPerDay),
			untilMidnight.Milliseconds())
	}

	last, err := s.logs.LastCompleted(ctx, userID, sessionID)
	if err == gorm.ErrRecordNotFound {
		return nil
	} else if err != nil {
		return err
	}
	if last.CompletedAt != nil {
		elapsed := now.Sub(*last.CompletedAt)
		if elapsed < s.cooldown() {
			remaining := s.cooldown() - elapsed
			return apperrors.RateLimited(
				fmt.Sprintf("scrape cooldown active, try again in %d minutes", int(remaining.Minutes())+1),
				remaining.Milliseconds())
		}
	}
	return nil
}

func (s *service) begin(ctx context.Context, userID uint, sessionID string, kind entities.ScrapeKind) (entities.ScrapingLog, whatsapp.Transport, error) {
	if _, err := s.sessions.GetOwned(ctx, userID, sessionID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return entities.ScrapingLog{}, nil, apperrors.NotFound("session not found")
		}
		return entities.ScrapingLog{}, nil, err
	}
	transport := s.gate.GetTransport(sessionID)
	if transport == nil || !s.gate.IsConnected(sessionID) {
		return entities.ScrapingLog{}, nil, apperrors.FailedPrecondition("session is not connected")
	}
	if err := s.checkQuota(ctx, userID, sessionID); err != nil {
		return entities.ScrapingLog{}, nil, err
	}

	log, err := s.logs.Start(ctx, userID, sessionID, kind, s.clock.Now())
	return log, transport, err
}

// ScrapeContacts enumerates the contact store, known chat senders, and
// group participants, de-duplicated by phone, with randomized pacing and
// batched persistence.
func (s *service) ScrapeContacts(ctx context.Context, userID uint, sessionID string) (dtos.ScrapeResultDTO, error) {
	scrapeLog, transport, err := s.begin(ctx, userID, sessionID, entities.ScrapeKindContacts)
	if err != nil {
		return dtos.ScrapeResultDTO{}, err
	}

	total, err := s.collectContacts(ctx, userID, sessionID, transport)
	if err != nil {
		if finishErr := s.logs.Finish(ctx, scrapeLog.ID, entities.ScrapeStatusFailed, total, err.Error(), s.clock.Now()); finishErr != nil {
			s.log.Error().Err(finishErr).Uint("log_id", scrapeLog.ID).Msg("failed to close scraping log")
		}
		return dtos.ScrapeResultDTO{}, err
	}

	if err := s.logs.Finish(ctx, scrapeLog.ID, entities.ScrapeStatusCompleted, total, "", s.clock.Now()); err != nil {
		return dtos.ScrapeResultDTO{}, err
	}
	return dtos.ScrapeResultDTO{
		SessionID:    sessionID,
		Kind:         string(entities.ScrapeKindContacts),
		TotalScraped: total,
		LogID:        scrapeLog.ID,
	}, nil
}

func (s *service) collectContacts(ctx context.Context, userID uint, sessionID string, transport whatsapp.Transport) (int, error) {
	collected := make(map[string]entities.Contact)
	var pendingLIDs []waTypes.JID

	add := func(contact entities.Contact) bool {
		if len(collected) >= s.cfg.MaxContactsPerScrape {
			return false
		}
		if _, dup := collected[contact.Phone]; dup {
			return true
		}
		collected[contact.Phone] = contact
		return true
	}

	// Source a: the transport's contact store.
	stored, err := transport.AllContacts(ctx)
	if err != nil {
		return 0, apperrors.DependencyFailed("contact store enumeration failed", err)
	}
	for jid, info := range stored {
		if jid.Server == waTypes.GroupServer {
			continue
		}
		identity := whatsapp.IdentityFromJID(jid)
		if identity.IsLID() {
			pendingLIDs = append(pendingLIDs, jid)
			continue
		}
		add(s.newContact(userID, sessionID, identity.Value, info.FullName, info.PushName, map[string]any{
			"source": "contact_store",
			"jid":    jid.String(),
		}, info.BusinessName != ""))
	}

	// Source b: distinct senders from stored chats.
	senders, err := s.messages.DistinctSenders(ctx, sessionID, s.cfg.MaxContactsPerScrape)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("chat sender enumeration failed")
	}
	for _, phone := range senders {
		if phone == "" {
			continue
		}
		add(s.newContact(userID, sessionID, phone, "", "", map[string]any{"source": "chat_list"}, false))
	}

	// Source c: each joined group's participants, with randomized
	// pacing between groups.
	groups, err := transport.JoinedGroups(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("group enumeration failed")
	}
	for i, group := range groups {
		if len(collected) >= s.cfg.MaxContactsPerScrape {
			break
		}
		if i > 0 {
			pause := utils.JitterBetween(s.rng,
				time.Duration(s.cfg.MinDelayBetweenGroupsMs)*time.Millisecond,
				time.Duration(s.cfg.MaxDelayBetweenGroupsMs)*time.Millisecond)
			if err := s.clock.Sleep(ctx, pause); err != nil {
				return len(collected), err
			}
		}
		for _, participant := range group.Participants {
			identity := whatsapp.IdentityFromJID(participant.JID)
			if identity.IsLID() {
				pendingLIDs = append(pendingLIDs, participant.JID)
				continue
			}
			if !add(s.newContact(userID, sessionID, identity.Value, "", "", map[string]any{
				"source":    "group",
				"fromGroup": group.JID.String(),
				"jid":       participant.JID.String(),
			}, false)) {
				break
			}
		}
	}

	// Batched LID resolution, max 50 identities per request.
	for start := 0; start < len(pendingLIDs) && len(collected) < s.cfg.MaxContactsPerScrape; start += lidResolveBatch {
		end := start + lidResolveBatch
		if end > len(pendingLIDs) {
			end = len(pendingLIDs)
		}
		resolved, err := transport.ResolveLIDs(ctx, pendingLIDs[start:end])
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("lid resolution failed")
			resolved = map[waTypes.JID]waTypes.JID{}
		}
		for _, lid := range pendingLIDs[start:end] {
			if pn, ok := resolved[lid]; ok {
				add(s.newContact(userID, sessionID, pn.User, "", "", map[string]any{
					"source":      "lid_resolution",
					"jid":         lid.String(),
					"isLidFormat": false,
				}, false))
				continue
			}
			add(s.newContact(userID, sessionID, "LID_"+lid.User, "", "", map[string]any{
				"source":      "lid_resolution",
				"jid":         lid.String(),
				"isLidFormat": true,
			}, false))
		}
	}

	// Persist in batches, preserving human display names.
	batch := make([]entities.Contact, 0, s.cfg.ContactsPerBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.contacts.UpsertBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return s.clock.Sleep(ctx, time.Duration(s.cfg.BatchSaveDelayMs)*time.Millisecond)
	}
	for _, contact := range collected {
		batch = append(batch, contact)
		if len(batch) >= s.cfg.ContactsPerBatch {
			if err := flush(); err != nil {
				return len(collected), err
			}
		}
	}
	if err := flush(); err != nil {
		return len(collected), err
	}

	return len(collected), nil
}

func (s *service) newContact(userID uint, sessionID, phone, displayName, pushName string, meta map[string]any, business bool) entities.Contact {
	contact := entities.Contact{
		UserID:      userID,
		SessionID:   sessionID,
		Phone:       phone,
		DisplayName: displayName,
		PushName:    pushName,
		IsBusiness:  business,
	}
	if blob, err := json.Marshal(meta); err == nil {
		contact.Metadata = blob
	}
	return contact
}

// ScrapeGroups records one row per joined group plus its member rows,
// pacing between groups like the contact scrape.
func (s *service) ScrapeGroups(ctx context.Context, userID uint, sessionID string) (dtos.ScrapeResultDTO, error) {
	scrapeLog, transport, err := s.begin(ctx, userID, sessionID, entities.ScrapeKindGroups)
	if err != nil {
		return dtos.ScrapeResultDTO{}, err
	}

	total, err := s.collectGroups(ctx, userID, sessionID, transport)
	if err != nil {
		if finishErr := s.logs.Finish(ctx, scrapeLog.ID, entities.ScrapeStatusFailed, total, err.Error(), s.clock.Now()); finishErr != nil {
			s.log.Error().Err(finishErr).Uint("log_id", scrapeLog.ID).Msg("failed to close scraping log")
		}
		return dtos.ScrapeResultDTO{}, err
	}

	if err := s.logs.Finish(ctx, scrapeLog.ID, entities.ScrapeStatusCompleted, total, "", s.clock.Now()); err != nil {
		return dtos.ScrapeResultDTO{}, err
	}
	return dtos.ScrapeResultDTO{
		SessionID:    sessionID,
		Kind:         string(entities.ScrapeKindGroups),
		TotalScraped: total,
		LogID:        scrapeLog.ID,
	}, nil
}

func (s *service) collectGroups(ctx context.Context, userID uint, sessionID string, transport whatsapp.Transport) (int, error) {
	groups, err := transport.JoinedGroups(ctx)
	if err != nil {
		return 0, apperrors.DependencyFailed("group enumeration failed", err)
	}

	saved := 0
	for i, info := range groups {
		if i > 0 {
			pause := utils.JitterBetween(s.rng,
				time.Duration(s.cfg.MinDelayBetweenGroupsMs)*time.Millisecond,
				time.Duration(s.cfg.MaxDelayBetweenGroupsMs)*time.Millisecond)
			if err := s.clock.Sleep(ctx, pause); err != nil {
				return saved, err
			}
		}
		if err := s.saveGroup(ctx, userID, sessionID, info); err != nil {
			s.log.Warn().Err(err).Str("group_jid", info.JID.String()).Msg("group persist failed")
			continue
		}
		saved++
	}
	return saved, nil
}

func (s *service) saveGroup(ctx context.Context, userID uint, sessionID string, info *waTypes.GroupInfo) error {
	members := make([]entities.GroupMember, 0, len(info.Participants))
	admins := 0
	for _, participant := range info.Participants {
		identity := whatsapp.IdentityFromJID(participant.JID)
		member := entities.GroupMember{
			ParticipantJID: participant.JID.String(),
			IsAdmin:        participant.IsAdmin,
			IsSuperAdmin:   participant.IsSuperAdmin,
			IsLidFormat:    identity.IsLID(),
		}
		if !identity.IsLID() {
			member.Phone = identity.Value
		}
		if participant.IsAdmin || participant.IsSuperAdmin {
			admins++
		}
		members = append(members, member)
	}

	group := entities.Group{
		UserID:           userID,
		SessionID:        sessionID,
		GroupJID:         info.JID.String(),
		Name:             info.Name,
		Description:      info.Topic,
		OwnerJID:         info.OwnerJID.String(),
		ParticipantCount: len(info.Participants),
		AdminCount:       admins,
		IsAnnounce:       info.IsAnnounce,
		IsLocked:         info.IsLocked,
	}
	if meta, err := json.Marshal(map[string]any{
		"created_at": info.GroupCreated,
	}); err == nil {
		group.Metadata = meta
	}

	if err := s.groups.UpsertGroup(ctx, &group); err != nil {
		return err
	}
	return s.groups.UpsertMembers(ctx, group.ID, members)
}

// ScrapeGroupMembers re-enumerates one group's member list on demand.
func (s *service) ScrapeGroupMembers(ctx context.Context, userID, groupID uint) (dtos.ScrapeResultDTO, error) {
	group, err := s.groups.Get(ctx, groupID)
	if err == gorm.ErrRecordNotFound {
		return dtos.ScrapeResultDTO{}, apperrors.NotFound("group not found")
	} else if err != nil {
		return dtos.ScrapeResultDTO{}, err
	}
	if group.UserID != userID {
		return dtos.ScrapeResultDTO{}, apperrors.Forbidden("group belongs to another user")
	}

	transport := s.gate.GetTransport(group.SessionID)
	if transport == nil || !s.gate.IsConnected(group.SessionID) {
		return dtos.ScrapeResultDTO{}, apperrors.FailedPrecondition("session is not connected")
	}

	jid, err := waTypes.ParseJID(group.GroupJID)
	if err != nil {
		return dtos.ScrapeResultDTO{}, apperrors.InvalidArg("stored group jid is malformed")
	}
	info, err := transport.GroupInfo(ctx, jid)
	if err != nil {
		return dtos.ScrapeResultDTO{}, apperrors.DependencyFailed("group info query failed", err)
	}

	if err := s.saveGroup(ctx, userID, group.SessionID, info); err != nil {
		return dtos.ScrapeResultDTO{}, err
	}
	return dtos.ScrapeResultDTO{
		SessionID:    group.SessionID,
		Kind:         string(entities.ScrapeKindGroups),
		TotalScraped: len(info.Participants),
	}, nil
}

// Status reports the quota and cooldown snapshot without consuming
// either.
func (s *service) Status(ctx context.Context, userID uint, sessionID string) (dtos.ScrapeStatusDTO, error) {
	now := s.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count, err := s.logs.CompletedSince(ctx, userID, sessionID, dayStart)
	if err != nil {
		return dtos.ScrapeStatusDTO{}, err
	}

	status := dtos.ScrapeStatusDTO{
		ScrapesToday:     count,
		MaxScrapesPerDay: s.cfg.MaxScrapesPerDay,
		CanScrape:        count < s.cfg.MaxScrapesPerDay,
	}

	last, err := s.logs.LastCompleted(ctx, userID, sessionID)
	if err == gorm.ErrRecordNotFound {
		return status, nil
	} else if err != nil {
		return dtos.ScrapeStatusDTO{}, err
	}
	if last.CompletedAt != nil {
		status.LastCompletedAt = last.CompletedAt
		if remaining := s.cooldown() - now.Sub(*last.CompletedAt); remaining > 0 {
			status.CooldownRemaining = remaining.Milliseconds()
			status.CanScrape = false
		}
	}
	return status, nil
}

func (s *service) ListContacts(ctx context.Context, userID uint, sessionID string) ([]entities.Contact, error) {
	return s.contacts.List(ctx, userID, sessionID)
}

func (s *service) ListGroups(ctx context.Context, userID uint, sessionID string) ([]entities.Group, error) {
	return s.groups.List(ctx, userID, sessionID)
}
