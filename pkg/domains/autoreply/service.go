package autoreply

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wagate/pkg/clients/openai"
	"github.com/wagate/pkg/clients/rajaongkir"
	"github.com/wagate/pkg/constant"
	"github.com/wagate/pkg/domains/ratelimit"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/entities"
	"github.com/wagate/pkg/events"
	"github.com/wagate/pkg/logger"
	"github.com/wagate/pkg/utils"
	waTypes "go.mau.fi/whatsmeow/types"
)

// Engine produces at most one outbound reply per eligible inbound text,
// choosing a responder by priority: manual rules, the shipping command,
// then the AI fallback.
type Engine struct {
	dir           whatsapp.TransportDirectory
	messages      whatsapp.MessageRepository
	conversations ConversationRepository
	rules         RuleRepository
	limiter       *ratelimit.Limiter
	ai            openai.Client
	shipping      rajaongkir.Client
	hub           *events.Hub
	clock         utils.Clock
	rng           utils.Rand
	historyWindow int
	log           zerolog.Logger
}

func NewEngine(
	dir whatsapp.TransportDirectory,
	messages whatsapp.MessageRepository,
	conversations ConversationRepository,
	rules RuleRepository,
	limiter *ratelimit.Limiter,
	ai openai.Client,
	shipping rajaongkir.Client,
	hub *events.Hub,
	clock utils.Clock,
	rng utils.Rand,
	historyWindow int,
) *Engine {
	return &Engine{
		dir:           dir,
		messages:      messages,
		conversations: conversations,
		rules:         rules,
		limiter:       limiter,
		ai:            ai,
		shipping:      shipping,
		hub:           hub,
		clock:         clock,
		rng:           rng,
		historyWindow: historyWindow,
		log:           logger.Get("auto-reply"),
	}
}

// Schedule detaches the reply so the inbound dispatcher never blocks on
// pacing or collaborator latency.
func (e *Engine) Schedule(session entities.Session, inbound entities.Message, replyJID waTypes.JID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		e.Reply(ctx, session, inbound, replyJID)
	}()
}

// Reply runs responder selection and the humanized outbound path.
func (e *Engine) Reply(ctx context.Context, session entities.Session, inbound entities.Message, replyJID waTypes.JID) {
	reply, source := e.respond(ctx, session, inbound)
	if reply == "" {
		return
	}
	e.send(ctx, session, inbound, replyJID, reply, source)
}

// respond picks the responder, first match wins.
func (e *Engine) respond(ctx context.Context, session entities.Session, inbound entities.Message) (string, entities.AutoReplySource) {
	// 1. Manual rules.
	rules, err := e.rules.ActiveRules(ctx, session.SessionID)
	if err != nil {
		e.log.Warn().Err(err).Str("session_id", session.SessionID).Msg("rule lookup failed")
	} else if rule, ok := FirstMatch(rules, inbound.Content); ok {
		return rule.Reply, entities.AutoReplySourceManual
	}

	// 2. Shipping-cost command.
	if query, ok := ParseShippingQuery(inbound.Content); ok {
		result, err := e.shipping.Cost(ctx, query.Origin, query.Destination, query.WeightGrams, query.Courier)
		if err != nil {
			e.log.Warn().Err(err).Str("session_id", session.SessionID).Msg("shipping lookup failed")
			return ShippingHelpReply, entities.AutoReplySourceRajaOngkir
		}
		return FormatShippingReply(query, result), entities.AutoReplySourceRajaOngkir
	}

	// 3. AI fallback.
	history := e.chatHistory(ctx, session.SessionID, inbound.FromNumber)
	answer, err := e.ai.Chat(ctx, SystemPrompt(session), history, inbound.Content)
	if err != nil {
		e.log.Warn().Err(err).Str("session_id", session.SessionID).Msg("ai completion failed")
		return AIFailureReply, entities.AutoReplySourceOpenAI
	}
	return answer, entities.AutoReplySourceOpenAI
}

func (e *Engine) chatHistory(ctx context.Context, sessionID, phone string) []openai.ChatMessage {
	convo, err := e.conversations.Get(ctx, sessionID, phone)
	if err != nil {
		return nil
	}
	lines, err := e.conversations.History(ctx, convo.ID, e.historyWindow)
	if err != nil {
		return nil
	}

	history := make([]openai.ChatMessage, 0, len(lines))
	for _, line := range lines {
		role := "user"
		if line.Direction == entities.DirectionOutgoing {
			role = "assistant"
		}
		history = append(history, openai.ChatMessage{Role: role, Content: line.Content})
	}
	return history
}

// send walks the outbound path: pending row, rate-limit gate, adaptive
// delay, typing simulation, send, bookkeeping.
func (e *Engine) send(ctx context.Context, session entities.Session, inbound entities.Message, replyJID waTypes.JID, reply string, source entities.AutoReplySource) {
	out := entities.Message{
		MessageID:       "out-" + uuid.NewString(),
		SessionID:       session.SessionID,
		Direction:       entities.DirectionOutgoing,
		Type:            entities.MessageTypeText,
		FromNumber:      session.PhoneNumber,
		ToNumber:        inbound.FromNumber,
		Content:         reply,
		Status:          entities.MessageStatusPending,
		IsAutoReply:     true,
		AutoReplySource: source,
	}
	if replyCtx, err := json.Marshal(map[string]any{"in_reply_to": inbound.MessageID}); err == nil {
		out.ReplyContext = replyCtx
	}
	if err := e.messages.Create(ctx, &out); err != nil {
		e.log.Error().Err(err).Str("session_id", session.SessionID).Msg("failed to persist outgoing row")
		return
	}

	decision, err := e.limiter.Check(ctx, session.SessionID)
	if err != nil {
		e.fail(ctx, session, out, "rate limiter unavailable: "+err.Error())
		return
	}
	if !decision.CanSend {
		e.fail(ctx, session, out, "rate limit: "+decision.Reason)
		return
	}
	if err := e.clock.Sleep(ctx, time.Duration(decision.DelayMs)*time.Millisecond); err != nil {
		return
	}

	transport := e.dir.GetTransport(session.SessionID)
	if transport == nil {
		e.fail(ctx, session, out, constant.SESSION_NOT_CONNECTED)
		return
	}

	// Typing simulation. A presence failure on a dead transport aborts;
	// anything else is cosmetic and ignored.
	if aborted := e.presence(transport, replyJID, waTypes.ChatPresenceComposing); aborted {
		e.fail(ctx, session, out, constant.SESSION_NOT_CONNECTED)
		return
	}
	if err := e.clock.Sleep(ctx, TypingDelay(reply, e.rng)); err != nil {
		return
	}
	if aborted := e.presence(transport, replyJID, waTypes.ChatPresencePaused); aborted {
		e.fail(ctx, session, out, constant.SESSION_NOT_CONNECTED)
		return
	}
	if err := e.clock.Sleep(ctx, PostTypingPause(e.rng)); err != nil {
		return
	}

	receipt, err := transport.SendText(ctx, replyJID, reply)
	if err != nil {
		e.fail(ctx, session, out, err.Error())
		return
	}

	if err := e.messages.AdvanceStatus(ctx, out.MessageID, entities.MessageStatusSent, receipt.Timestamp); err != nil {
		e.log.Error().Err(err).Str("message_id", out.MessageID).Msg("failed to mark reply sent")
	}
	if err := e.limiter.RecordSent(ctx, session.SessionID); err != nil {
		e.log.Error().Err(err).Str("session_id", session.SessionID).Msg("failed to record send")
	}

	if convo, err := e.conversations.Touch(ctx, session.SessionID, inbound.FromNumber, inbound.PushName, e.clock.Now()); err == nil {
		if err := e.conversations.Append(ctx, convo.ID, entities.DirectionOutgoing, reply); err != nil {
			e.log.Warn().Err(err).Str("session_id", session.SessionID).Msg("conversation append failed")
		}
	}

	out.Status = entities.MessageStatusSent
	e.hub.PublishToUserAndSession(session.UserID, session.SessionID, events.TypeMessageSent, out)
}

// presence reports true when the send must be aborted because the
// transport is gone.
func (e *Engine) presence(transport whatsapp.Transport, to waTypes.JID, state waTypes.ChatPresence) bool {
	if err := transport.ChatPresence(to, state); err != nil {
		if !transport.IsConnected() {
			return true
		}
		e.log.Debug().Err(err).Msg("presence update failed")
	}
	return false
}

func (e *Engine) fail(ctx context.Context, session entities.Session, out entities.Message, reason string) {
	if err := e.messages.MarkFailed(ctx, out.MessageID, reason); err != nil {
		e.log.Error().Err(err).Str("message_id", out.MessageID).Msg("failed to mark reply failed")
	}
	out.Status = entities.MessageStatusFailed
	out.ErrorMessage = reason
	e.hub.PublishToUserAndSession(session.UserID, session.SessionID, events.TypeMessageStatus, out)
}
