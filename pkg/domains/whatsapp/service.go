package whatsapp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wagate/pkg/constant"
	"github.com/wagate/pkg/dtos"
	"github.com/wagate/pkg/entities"
	apperrors "github.com/wagate/pkg/errors"
	"github.com/wagate/pkg/events"
	"github.com/wagate/pkg/logger"
	"github.com/wagate/pkg/utils"
	"go.mau.fi/whatsmeow"
	waEvents "go.mau.fi/whatsmeow/types/events"
	"gorm.io/gorm"
)

// InboundOrigin tells the dispatcher whether an event arrived live or
// during the post-connect offline sync, which widens the freshness
// window it applies.
type InboundOrigin int

const (
	OriginLive InboundOrigin = iota
	OriginHistory
)

// InboundHandler receives raw transport message events.
type InboundHandler func(sessionID string, evt *waEvents.Message, origin InboundOrigin)

type Service interface {
	Create(ctx context.Context, userID uint, req dtos.CreateSessionDTO) (entities.Session, error)
	List(ctx context.Context, userID uint, activeOnly bool) ([]entities.Session, error)
	Status(ctx context.Context, userID uint, sessionID string) (dtos.SessionStatusDTO, error)
	QRCode(ctx context.Context, userID uint, sessionID string) (dtos.QRCodeDTO, error)
	Connect(ctx context.Context, userID uint, sessionID string) error
	Disconnect(ctx context.Context, userID uint, sessionID string, logout bool) error
	Cleanup(ctx context.Context, userID uint, sessionID string) error

	GetTransport(sessionID string) Transport
	IsActive(sessionID string) bool
	IsConnected(sessionID string) bool
	SendText(ctx context.Context, sessionID, phoneNumber, body string) (SendReceipt, error)
	SendMedia(ctx context.Context, sessionID, phoneNumber string, data []byte, mimeType, caption, fileName string) (SendReceipt, error)

	BindInbound(handler InboundHandler)
	Shutdown()
}

// liveSession pairs one session row with its single live transport.
type liveSession struct {
	sessionID string
	userID    uint
	transport Transport

	ctx    context.Context
	cancel context.CancelFunc

	manual       atomic.Bool // set on Disconnect/Logout; suppresses reconnection
	reconnecting atomic.Bool
	syncing      atomic.Bool // inside the offline sync replay window
}

type service struct {
	repo        SessionRepository
	hub         *events.Hub
	factory     TransportFactory
	clock       utils.Clock
	storagePath string
	log         zerolog.Logger

	inbound InboundHandler

	mu   sync.RWMutex
	live map[string]*liveSession
}

func NewService(repo SessionRepository, hub *events.Hub, factory TransportFactory, clock utils.Clock, storagePath string) Service {
	return &service{
		repo:        repo,
		hub:         hub,
		factory:     factory,
		clock:       clock,
		storagePath: storagePath,
		log:         logger.Get("session-manager"),
		live:        make(map[string]*liveSession),
	}
}

func (s *service) BindInbound(handler InboundHandler) { s.inbound = handler }

func (s *service) getLive(sessionID string) *liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[sessionID]
}

// Create is idempotent: an existing live session is returned untouched.
// Pairing completes asynchronously, so a pending QR is not an error.
func (s *service) Create(ctx context.Context, userID uint, req dtos.CreateSessionDTO) (entities.Session, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if ls := s.getLive(sessionID); ls != nil {
		if ls.userID != userID {
			return entities.Session{}, apperrors.Forbidden(constant.UNAUTHORIZED_ACCESS)
		}
		return s.repo.GetBySessionID(ctx, sessionID)
	}

	row, err := s.repo.GetBySessionID(ctx, sessionID)
	if err == gorm.ErrRecordNotFound {
		row = entities.Session{
			SessionID:       sessionID,
			UserID:          userID,
			Name:            req.Name,
			Status:          entities.SessionStatusQRPending,
			AIAssistantType: req.AIAssistantType,
			WebhookURL:      req.WebhookURL,
			IsActive:        true,
		}
		if req.AIConfig != nil {
			if blob, err := json.Marshal(req.AIConfig); err == nil {
				row.AIConfig = blob
			}
		}
		if req.Settings != nil {
			if blob, err := json.Marshal(req.Settings); err == nil {
				row.Settings = blob
			}
		}
		if err := s.repo.Create(ctx, &row); err != nil {
			return entities.Session{}, err
		}
	} else if err != nil {
		return entities.Session{}, err
	} else if row.UserID != userID {
		return entities.Session{}, apperrors.Forbidden(constant.UNAUTHORIZED_ACCESS)
	}

	if err := s.openTransport(ctx, &row); err != nil {
		return entities.Session{}, err
	}

	return s.repo.GetBySessionID(ctx, sessionID)
}

// openTransport wires a transport for the row and starts either a plain
// connect (credentials on disk) or the QR pairing flow.
func (s *service) openTransport(ctx context.Context, row *entities.Session) error {
	transport, err := s.factory(ctx, row.SessionID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to open transport", err)
	}

	lsCtx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{
		sessionID: row.SessionID,
		userID:    row.UserID,
		transport: transport,
		ctx:       lsCtx,
		cancel:    cancel,
	}
	transport.AddEventHandler(func(evt any) { s.handleEvent(ls, evt) })

	s.mu.Lock()
	s.live[row.SessionID] = ls
	s.mu.Unlock()

	if transport.IsLoggedIn() {
		if err := s.repo.MarkStatus(ctx, row.SessionID, entities.SessionStatusConnecting, s.clock.Now()); err != nil {
			s.log.Error().Err(err).Str("session_id", row.SessionID).Msg("failed to persist connecting status")
		}
		if err := transport.Connect(); err != nil {
			go s.reconnectLoop(ls)
		}
		return nil
	}

	return s.startPairing(ls)
}

func (s *service) startPairing(ls *liveSession) error {
	qrChan, err := ls.transport.QRChannel(ls.ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to open QR channel", err)
	}
	if err := ls.transport.Connect(); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to connect for pairing", err)
	}
	go s.consumeQR(ls, qrChan)
	return nil
}

// consumeQR drives one pairing round. The transport rotates codes on its
// own; every fresh code is persisted before it is published.
func (s *service) consumeQR(ls *liveSession, ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			img, err := encodeQRImage(item.Code)
			if err != nil {
				s.log.Error().Err(err).Str("session_id", ls.sessionID).Msg("failed to encode QR image")
				continue
			}
			expiresAt := s.clock.Now().Add(qrTTLSeconds * time.Second)
			if err := s.repo.SetQR(ls.ctx, ls.sessionID, img, expiresAt); err != nil {
				s.log.Error().Err(err).Str("session_id", ls.sessionID).Msg("failed to persist QR code")
			}
			s.hub.PublishToUserAndSession(ls.userID, ls.sessionID, events.TypeSessionQR, map[string]any{
				"session_id": ls.sessionID,
				"qr_code":    img,
				"expires_at": expiresAt,
			})
		case "success":
			// The Connected event finishes the row transition.
		case "timeout":
			if err := s.repo.MarkStatus(ls.ctx, ls.sessionID, entities.SessionStatusDisconnected, s.clock.Now()); err == nil {
				_ = s.repo.ClearQR(ls.ctx, ls.sessionID)
			}
			s.hub.PublishToUserAndSession(ls.userID, ls.sessionID, events.TypeSessionStatus, map[string]any{
				"session_id": ls.sessionID,
				"status":     entities.SessionStatusDisconnected,
				"reason":     "pairing window expired",
			})
		case "error":
			s.failSession(ls, "pairing failed")
		}
	}
}

// handleEvent is the single entry point for transport events. Row
// updates always land before the matching live event is published.
func (s *service) handleEvent(ls *liveSession, evt any) {
	switch v := evt.(type) {
	case *waEvents.Message:
		if s.inbound == nil {
			return
		}
		origin := OriginLive
		if ls.syncing.Load() {
			origin = OriginHistory
		}
		s.inbound(ls.sessionID, v, origin)

	case *waEvents.OfflineSyncPreview:
		ls.syncing.Store(true)
	case *waEvents.OfflineSyncCompleted:
		ls.syncing.Store(false)

	case *waEvents.Connected:
		phone := ls.transport.OwnPhone()
		if err := s.repo.MarkConnected(ls.ctx, ls.sessionID, phone, s.clock.Now()); err != nil {
			s.log.Error().Err(err).Str("session_id", ls.sessionID).Msg("failed to persist connected status")
		}
		s.hub.PublishToUserAndSession(ls.userID, ls.sessionID, events.TypeSessionConnected, map[string]any{
			"session_id":   ls.sessionID,
			"phone_number": phone,
		})

	case *waEvents.LoggedOut, *waEvents.StreamReplaced, *waEvents.ClientOutdated, *waEvents.TemporaryBan:
		_, reason := classifyClose(v)
		s.failSession(ls, reason)

	case *waEvents.ConnectFailure:
		kind, reason := classifyClose(v)
		if kind == closeFatal {
			s.failSession(ls, reason)
			return
		}
		s.onTransientClose(ls, reason)

	case *waEvents.Disconnected, *waEvents.StreamError:
		_, reason := classifyClose(v)
		s.onTransientClose(ls, reason)
	}
}

func (s *service) onTransientClose(ls *liveSession, reason string) {
	if ls.manual.Load() {
		return
	}
	if err := s.repo.MarkStatus(ls.ctx, ls.sessionID, entities.SessionStatusDisconnected, s.clock.Now()); err != nil {
		s.log.Error().Err(err).Str("session_id", ls.sessionID).Msg("failed to persist disconnected status")
	}
	s.hub.PublishToUserAndSession(ls.userID, ls.sessionID, events.TypeSessionDisconnected, map[string]any{
		"session_id": ls.sessionID,
		"reason":     reason,
	})
	if ls.reconnecting.CompareAndSwap(false, true) {
		go s.reconnectLoop(ls)
	}
}

// reconnectLoop retries with exponential backoff, then parks in a long
// cool-off and starts over. A manual disconnect stops it cold.
func (s *service) reconnectLoop(ls *liveSession) {
	defer ls.reconnecting.Store(false)

	for {
		for attempt := 1; attempt <= reconnectAttempts; attempt++ {
			if ls.manual.Load() || ls.ctx.Err() != nil {
				return
			}
			delay := backoffDelay(attempt, reconnectBase, reconnectCap)
			if err := s.clock.Sleep(ls.ctx, delay); err != nil {
				return
			}
			if ls.manual.Load() {
				return
			}

			if err := s.repo.MarkStatus(ls.ctx, ls.sessionID, entities.SessionStatusConnecting, s.clock.Now()); err == nil {
				s.hub.PublishToUserAndSession(ls.userID, ls.sessionID, events.TypeSessionStatus, map[string]any{
					"session_id": ls.sessionID,
					"status":     entities.SessionStatusConnecting,
					"attempt":    attempt,
				})
			}

			if err := ls.transport.Connect(); err == nil {
				return
			}
			s.log.Warn().Str("session_id", ls.sessionID).Int("attempt", attempt).Msg("reconnect attempt failed")
		}

		if err := s.repo.MarkStatus(ls.ctx, ls.sessionID, entities.SessionStatusDisconnected, s.clock.Now()); err == nil {
			s.hub.PublishToUserAndSession(ls.userID, ls.sessionID, events.TypeSessionDisconnected, map[string]any{
				"session_id": ls.sessionID,
				"reason":     "reconnect attempts exhausted",
			})
		}
		if err := s.clock.Sleep(ls.ctx, reconnectCoolOff); err != nil {
			return
		}
	}
}

// failSession handles a fatal closure: row to failed, credentials
// purged, QR cleared, then the failure event.
func (s *service) failSession(ls *liveSession, reason string) {
	ls.manual.Store(true)

	if err := s.repo.MarkStatus(ls.ctx, ls.sessionID, entities.SessionStatusFailed, s.clock.Now()); err != nil {
		s.log.Error().Err(err).Str("session_id", ls.sessionID).Msg("failed to persist failed status")
	}
	_ = s.repo.ClearQR(ls.ctx, ls.sessionID)
	s.purgeCredentials(ls.sessionID)

	s.hub.PublishToUserAndSession(ls.userID, ls.sessionID, events.TypeSessionConnectionFailed, map[string]any{
		"session_id": ls.sessionID,
		"reason":     reason,
	})

	s.removeLive(ls)
}

func (s *service) removeLive(ls *liveSession) {
	s.mu.Lock()
	delete(s.live, ls.sessionID)
	s.mu.Unlock()

	ls.cancel()
	if err := ls.transport.Close(); err != nil {
		s.log.Warn().Err(err).Str("session_id", ls.sessionID).Msg("transport close failed")
	}
}

func (s *service) purgeCredentials(sessionID string) {
	dir := filepath.Join(s.storagePath, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to purge credential directory")
	}
}

func (s *service) List(ctx context.Context, userID uint, activeOnly bool) ([]entities.Session, error) {
	return s.repo.List(ctx, userID, activeOnly)
}

// Status reconciles the persisted row with live transport truth, the
// same way a poller following a live event must see it.
func (s *service) Status(ctx context.Context, userID uint, sessionID string) (dtos.SessionStatusDTO, error) {
	row, err := s.repo.GetOwned(ctx, userID, sessionID)
	if err == gorm.ErrRecordNotFound {
		return dtos.SessionStatusDTO{}, apperrors.NotFound(constant.SESSION_NOT_FOUND)
	} else if err != nil {
		return dtos.SessionStatusDTO{}, err
	}

	ls := s.getLive(sessionID)
	connected := ls != nil && ls.transport.IsConnected()
	loggedIn := ls != nil && ls.transport.IsLoggedIn()

	if row.Status == entities.SessionStatusConnected && !connected {
		if err := s.repo.MarkStatus(ctx, sessionID, entities.SessionStatusDisconnected, s.clock.Now()); err == nil {
			row.Status = entities.SessionStatusDisconnected
		}
	}

	return dtos.SessionStatusDTO{
		SessionID:   row.SessionID,
		Status:      string(row.Status),
		PhoneNumber: row.PhoneNumber,
		IsActive:    row.IsActive,
		Connected:   connected,
		LoggedIn:    loggedIn,
		LastSeenAt:  row.LastConnectedAt,
	}, nil
}

func (s *service) QRCode(ctx context.Context, userID uint, sessionID string) (dtos.QRCodeDTO, error) {
	row, err := s.repo.GetOwned(ctx, userID, sessionID)
	if err == gorm.ErrRecordNotFound {
		return dtos.QRCodeDTO{}, apperrors.NotFound(constant.SESSION_NOT_FOUND)
	} else if err != nil {
		return dtos.QRCodeDTO{}, err
	}

	return dtos.QRCodeDTO{
		SessionID: row.SessionID,
		QRCode:    row.QRCode,
		ExpiresAt: row.QRExpiresAt,
		Expired:   !row.QRValid(s.clock.Now()),
	}, nil
}

// Connect re-attaches a disconnected session, or restarts pairing when
// no credentials survive.
func (s *service) Connect(ctx context.Context, userID uint, sessionID string) error {
	row, err := s.repo.GetOwned(ctx, userID, sessionID)
	if err == gorm.ErrRecordNotFound {
		return apperrors.NotFound(constant.SESSION_NOT_FOUND)
	} else if err != nil {
		return err
	}

	if ls := s.getLive(sessionID); ls != nil {
		ls.manual.Store(false)
		if ls.transport.IsConnected() {
			return nil
		}
		if ls.transport.IsLoggedIn() {
			if err := ls.transport.Connect(); err != nil {
				return apperrors.TransientTransport("failed to connect", err)
			}
			return nil
		}
		return s.startPairing(ls)
	}

	return s.openTransport(ctx, &row)
}

func (s *service) Disconnect(ctx context.Context, userID uint, sessionID string, logout bool) error {
	_, err := s.repo.GetOwned(ctx, userID, sessionID)
	if err == gorm.ErrRecordNotFound {
		return apperrors.NotFound(constant.SESSION_NOT_FOUND)
	} else if err != nil {
		return err
	}

	ls := s.getLive(sessionID)
	if ls != nil {
		ls.manual.Store(true)
		if logout {
			if err := ls.transport.Logout(ctx); err != nil {
				s.log.Warn().Err(err).Str("session_id", sessionID).Msg("provider logout failed")
			}
		} else {
			ls.transport.Disconnect()
		}
		s.removeLive(ls)
	}

	if err := s.repo.MarkStatus(ctx, sessionID, entities.SessionStatusDisconnected, s.clock.Now()); err != nil {
		return err
	}
	if logout {
		_ = s.repo.ClearQR(ctx, sessionID)
		s.purgeCredentials(sessionID)
	}

	s.hub.PublishToUserAndSession(userID, sessionID, events.TypeSessionDisconnected, map[string]any{
		"session_id": sessionID,
		"manual":     true,
		"logout":     logout,
	})
	return nil
}

// Cleanup purges on-disk credentials; the session must not be live.
func (s *service) Cleanup(ctx context.Context, userID uint, sessionID string) error {
	_, err := s.repo.GetOwned(ctx, userID, sessionID)
	if err == gorm.ErrRecordNotFound {
		return apperrors.NotFound(constant.SESSION_NOT_FOUND)
	} else if err != nil {
		return err
	}

	if ls := s.getLive(sessionID); ls != nil {
		return apperrors.FailedPrecondition("disconnect the session before cleanup")
	}

	s.purgeCredentials(sessionID)
	return s.repo.ClearQR(ctx, sessionID)
}

func (s *service) GetTransport(sessionID string) Transport {
	if ls := s.getLive(sessionID); ls != nil {
		return ls.transport
	}
	return nil
}

func (s *service) IsActive(sessionID string) bool {
	return s.getLive(sessionID) != nil
}

func (s *service) IsConnected(sessionID string) bool {
	ls := s.getLive(sessionID)
	return ls != nil && ls.transport.IsConnected() && ls.transport.IsLoggedIn()
}

// SendText sends one text message. Callers are expected to have passed
// the rate limiter first; transport errors surface unchanged.
func (s *service) SendText(ctx context.Context, sessionID, phoneNumber, body string) (SendReceipt, error) {
	ls := s.getLive(sessionID)
	if ls == nil || !ls.transport.IsConnected() || !ls.transport.IsLoggedIn() {
		return SendReceipt{}, apperrors.FailedPrecondition(constant.SESSION_NOT_CONNECTED)
	}

	to, err := PhoneToJID(phoneNumber)
	if err != nil {
		return SendReceipt{}, err
	}

	return ls.transport.SendText(ctx, to, body)
}

func (s *service) SendMedia(ctx context.Context, sessionID, phoneNumber string, data []byte, mimeType, caption, fileName string) (SendReceipt, error) {
	ls := s.getLive(sessionID)
	if ls == nil || !ls.transport.IsConnected() || !ls.transport.IsLoggedIn() {
		return SendReceipt{}, apperrors.FailedPrecondition(constant.SESSION_NOT_CONNECTED)
	}

	to, err := PhoneToJID(phoneNumber)
	if err != nil {
		return SendReceipt{}, err
	}

	if strings.HasPrefix(mimeType, "image/") {
		return ls.transport.SendImage(ctx, to, data, mimeType, caption)
	}
	return ls.transport.SendDocument(ctx, to, data, mimeType, fileName)
}

// Shutdown disconnects every live transport without touching rows.
func (s *service) Shutdown() {
	s.mu.Lock()
	sessions := make([]*liveSession, 0, len(s.live))
	for _, ls := range s.live {
		sessions = append(sessions, ls)
	}
	s.live = make(map[string]*liveSession)
	s.mu.Unlock()

	for _, ls := range sessions {
		ls.manual.Store(true)
		ls.cancel()
		if err := ls.transport.Close(); err != nil {
			s.log.Warn().Err(err).Str("session_id", ls.sessionID).Msg("transport close failed")
		}
	}
}
