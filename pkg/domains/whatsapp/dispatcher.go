package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wagate/pkg/entities"
	apperrors "github.com/wagate/pkg/errors"
	"github.com/wagate/pkg/events"
	"github.com/wagate/pkg/logger"
	"github.com/wagate/pkg/utils"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"
	"gorm.io/gorm"
)

// TransportDirectory is the slice of the session manager the dispatcher
// needs: liveness checks and transport handles.
type TransportDirectory interface {
	GetTransport(sessionID string) Transport
	IsConnected(sessionID string) bool
}

// ContactSaver upserts contacts discovered from inbound traffic. The
// implementation must never clobber a human-assigned display name.
type ContactSaver interface {
	SaveInbound(ctx context.Context, contact entities.Contact) error
}

// GroupLedger records group membership observed on group messages.
type GroupLedger interface {
	SaveMember(ctx context.Context, userID uint, sessionID, groupJID string, member entities.GroupMember) error
}

// ConversationLedger maintains the per-conversation rows used for
// human-agent routing and AI history.
type ConversationLedger interface {
	Touch(ctx context.Context, sessionID, phone, pushName string, at time.Time) (entities.Conversation, error)
	Append(ctx context.Context, conversationID uint, direction entities.MessageDirection, content string) error
}

// ReplyScheduler hands an eligible inbound message to the auto-reply
// engine. Implementations must not block the dispatcher.
type ReplyScheduler func(session entities.Session, msg entities.Message, replyJID waTypes.JID)

// DispatcherConfig bounds how stale an accepted event may be. Live
// notifies get the strict window; offline-sync appends the permissive
// one.
type DispatcherConfig struct {
	NotifyFreshness time.Duration
	AppendFreshness time.Duration
}

// Dispatcher converts raw transport events into message rows with
// at-most-once semantics and routes them downstream.
type Dispatcher struct {
	dir           TransportDirectory
	sessions      SessionRepository
	messages      MessageRepository
	contacts      ContactSaver
	groups        GroupLedger
	conversations ConversationLedger
	hub           *events.Hub
	clock         utils.Clock
	rng           utils.Rand
	cfg           DispatcherConfig
	schedule      ReplyScheduler
	log           zerolog.Logger
}

func NewDispatcher(
	dir TransportDirectory,
	sessions SessionRepository,
	messages MessageRepository,
	contacts ContactSaver,
	groups GroupLedger,
	conversations ConversationLedger,
	hub *events.Hub,
	clock utils.Clock,
	rng utils.Rand,
	cfg DispatcherConfig,
) *Dispatcher {
	return &Dispatcher{
		dir:           dir,
		sessions:      sessions,
		messages:      messages,
		contacts:      contacts,
		groups:        groups,
		conversations: conversations,
		hub:           hub,
		clock:         clock,
		rng:           rng,
		cfg:           cfg,
		log:           logger.Get("dispatcher"),
	}
}

// BindReplies installs the auto-reply scheduler after construction, so
// the dispatcher and the reply engine stay acyclic.
func (d *Dispatcher) BindReplies(schedule ReplyScheduler) { d.schedule = schedule }

// Handle is the InboundHandler wired into the session manager.
func (d *Dispatcher) Handle(sessionID string, evt *waEvents.Message, origin InboundOrigin) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := d.process(ctx, sessionID, evt, origin); err != nil {
		d.log.Error().Err(err).
			Str("session_id", sessionID).
			Str("message_id", string(evt.Info.ID)).
			Msg("inbound dispatch failed")
	}
}

func (d *Dispatcher) process(ctx context.Context, sessionID string, evt *waEvents.Message, origin InboundOrigin) error {
	// Own messages never enter the pipeline.
	if evt.Info.IsFromMe {
		return nil
	}
	if !d.fresh(evt.Info.Timestamp, origin) {
		return nil
	}

	// 1. Session lookup.
	session, err := d.sessions.GetBySessionID(ctx, sessionID)
	if err == gorm.ErrRecordNotFound {
		return apperrors.NotFound(fmt.Sprintf("no session row for %s", sessionID))
	} else if err != nil {
		return err
	}

	// 2. Liveness gate.
	if !d.dir.IsConnected(sessionID) && session.Status != entities.SessionStatusConnected {
		return nil
	}

	// Sender identity: for group messages the participant JID carries
	// identity; the reply target stays the original chat JID either way.
	chatJID := evt.Info.Chat
	senderJID := evt.Info.Sender
	identity := IdentityFromJID(senderJID)
	replyJID := chatJID

	msgType, content, mediaMeta := describeMessage(evt.Message)

	msg := entities.Message{
		MessageID:  string(evt.Info.ID),
		SessionID:  sessionID,
		Direction:  entities.DirectionIncoming,
		Type:       msgType,
		FromNumber: identity.Phone(),
		ToNumber:   session.PhoneNumber,
		PushName:   evt.Info.PushName,
		Content:    content,
		Status:     entities.MessageStatusDelivered,
	}
	if mediaMeta != nil {
		if blob, err := json.Marshal(mediaMeta); err == nil {
			msg.MediaMeta = blob
		}
	}
	if replyCtx, err := json.Marshal(map[string]any{
		"reply_jid":     replyJID.String(),
		"is_lid_format": identity.IsLID(),
		"is_group":      IsGroupJID(chatJID),
	}); err == nil {
		msg.ReplyContext = replyCtx
	}
	// 3-4. Idempotent persist. A database failure after this point is
	// retried once; a re-synced event would otherwise re-arrive anyway.
	inserted, err := d.messages.InsertIfNew(ctx, &msg)
	if err != nil {
		inserted, err = d.messages.InsertIfNew(ctx, &msg)
		if err != nil {
			return err
		}
	}
	if !inserted {
		return nil
	}

	// 5. Contact auto-save (non-critical).
	if session.SettingBool("autoSaveContacts", true) && !identity.IsLID() {
		at := d.clock.Now()
		contact := entities.Contact{
			UserID:        session.UserID,
			SessionID:     sessionID,
			Phone:         identity.Value,
			PushName:      evt.Info.PushName,
			LastMessageAt: &at,
		}
		if meta, err := json.Marshal(map[string]any{
			"source":    "inbound",
			"fromGroup": IsGroupJID(chatJID),
			"jid":       senderJID.String(),
		}); err == nil {
			contact.Metadata = meta
		}
		if err := d.contacts.SaveInbound(ctx, contact); err != nil {
			d.log.Warn().Err(err).Str("session_id", sessionID).Msg("contact auto-save failed")
		}
	}

	// 6. Group member capture (non-critical).
	if IsGroupJID(chatJID) && !senderJID.IsEmpty() {
		member := entities.GroupMember{
			ParticipantJID: senderJID.String(),
			PushName:       evt.Info.PushName,
			IsLidFormat:    identity.IsLID(),
		}
		if !identity.IsLID() {
			member.Phone = identity.Value
		}
		if err := d.groups.SaveMember(ctx, session.UserID, sessionID, chatJID.String(), member); err != nil {
			d.log.Warn().Err(err).Str("session_id", sessionID).Msg("group member capture failed")
		}
	}

	// 7. Read-mark simulation, detached and jittered by message length.
	if transport := d.dir.GetTransport(sessionID); transport != nil {
		delay := readMarkDelay(len(content), d.rng)
		go func() {
			if err := d.clock.Sleep(context.Background(), delay); err != nil {
				return
			}
			if err := transport.MarkRead(chatJID, senderJID, []waTypes.MessageID{evt.Info.ID}); err != nil {
				d.log.Debug().Err(err).Str("session_id", sessionID).Msg("read mark failed")
			}
		}()
	}

	// 8. Conversation ledger. LID senders get a row keyed by their
	// pseudo phone so agent takeover works for them too.
	conversation, err := d.conversations.Touch(ctx, sessionID, identity.Phone(), evt.Info.PushName, d.clock.Now())
	if err != nil {
		d.log.Warn().Err(err).Str("session_id", sessionID).Msg("conversation upsert failed")
	} else if err := d.conversations.Append(ctx, conversation.ID, entities.DirectionIncoming, content); err != nil {
		d.log.Warn().Err(err).Str("session_id", sessionID).Msg("conversation append failed")
	}

	// 9. Live fan-out.
	d.hub.PublishToUserAndSession(session.UserID, sessionID, events.TypeMessageIncoming, msg)

	// 10. Auto-reply decision.
	if conversation.HumanAgentID != nil {
		return nil
	}
	if d.schedule != nil && msgType == entities.MessageTypeText && session.SettingBool("autoReplyEnabled", true) {
		d.schedule(session, msg, replyJID)
	}

	return nil
}

func (d *Dispatcher) fresh(ts time.Time, origin InboundOrigin) bool {
	window := d.cfg.NotifyFreshness
	if origin == OriginHistory {
		window = d.cfg.AppendFreshness
	}
	return d.clock.Now().Sub(ts) <= window
}

// readMarkDelay grows with message length (~50 ms per character, capped
// at 3 s) on top of a 0.5–2 s base, so read receipts look human.
func readMarkDelay(contentLen int, rng utils.Rand) time.Duration {
	base := 500*time.Millisecond + utils.JitterBetween(rng, 0, 1500*time.Millisecond)
	perChar := time.Duration(contentLen) * 50 * time.Millisecond
	if perChar > 3*time.Second {
		perChar = 3 * time.Second
	}
	return base + perChar
}

// describeMessage normalizes the provider payload into (type, textual
// content, media metadata).
func describeMessage(msg *waProto.Message) (entities.MessageType, string, map[string]any) {
	if msg == nil {
		return entities.MessageTypeOther, "", nil
	}

	switch {
	case msg.GetConversation() != "":
		return entities.MessageTypeText, msg.GetConversation(), nil
	case msg.GetExtendedTextMessage().GetText() != "":
		return entities.MessageTypeText, msg.GetExtendedTextMessage().GetText(), nil
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return entities.MessageTypeImage, img.GetCaption(), map[string]any{
			"mimetype": img.GetMimetype(),
			"size":     img.GetFileLength(),
		}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return entities.MessageTypeVideo, vid.GetCaption(), map[string]any{
			"mimetype": vid.GetMimetype(),
			"size":     vid.GetFileLength(),
			"seconds":  vid.GetSeconds(),
		}
	case msg.GetAudioMessage() != nil:
		aud := msg.GetAudioMessage()
		return entities.MessageTypeAudio, "", map[string]any{
			"mimetype": aud.GetMimetype(),
			"seconds":  aud.GetSeconds(),
			"ptt":      aud.GetPTT(),
		}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return entities.MessageTypeDocument, doc.GetFileName(), map[string]any{
			"mimetype": doc.GetMimetype(),
			"size":     doc.GetFileLength(),
			"title":    doc.GetTitle(),
		}
	case msg.GetStickerMessage() != nil:
		return entities.MessageTypeSticker, "", map[string]any{
			"mimetype": msg.GetStickerMessage().GetMimetype(),
		}
	case msg.GetLocationMessage() != nil:
		loc := msg.GetLocationMessage()
		return entities.MessageTypeLocation,
			fmt.Sprintf("%f,%f", loc.GetDegreesLatitude(), loc.GetDegreesLongitude()),
			map[string]any{"name": loc.GetName()}
	case msg.GetContactMessage() != nil:
		return entities.MessageTypeContact, msg.GetContactMessage().GetDisplayName(), nil
	}

	return entities.MessageTypeOther, "", nil
}
