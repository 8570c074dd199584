package routes

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wagate/pkg/constant"
	"github.com/wagate/pkg/domains/ratelimit"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/dtos"
	"github.com/wagate/pkg/entities"
	apperrors "github.com/wagate/pkg/errors"
	"github.com/wagate/pkg/middleware"
	"gorm.io/gorm"
)

// MessageRoutes mounts the one-shot send endpoints. They pass the same
// rate-limit gate as the pipelines; only successful sends are stored and
// counted against the limiter.
func MessageRoutes(r *gin.RouterGroup, s whatsapp.Service, sessions whatsapp.SessionRepository, messages whatsapp.MessageRepository, limiter *ratelimit.Limiter) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/send-message", sendMessage(s, sessions, messages, limiter))
		authGroup.POST("/send-media", sendMedia(s, sessions, messages, limiter))
	}
}

func gateSend(c *gin.Context, sessions whatsapp.SessionRepository, limiter *ratelimit.Limiter, sessionID string) (entities.Session, error) {
	session, err := sessions.GetOwned(c, currentUser(c), sessionID)
	if err == gorm.ErrRecordNotFound {
		return session, apperrors.NotFound(constant.SESSION_NOT_FOUND)
	} else if err != nil {
		return session, err
	}

	decision, err := limiter.Check(c, sessionID)
	if err != nil {
		return session, err
	}
	if !decision.CanSend {
		return session, apperrors.RateLimited("rate limit: "+decision.Reason, decision.DelayMs)
	}
	return session, nil
}

func sendMessage(s whatsapp.Service, sessions whatsapp.SessionRepository, messages whatsapp.MessageRepository, limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dtos.SendMessageDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			failBadRequest(c, constant.INVALID_REQUEST)
			return
		}

		session, err := gateSend(c, sessions, limiter, req.SessionID)
		if err != nil {
			fail(c, err)
			return
		}

		receipt, err := s.SendText(c, req.SessionID, req.PhoneNumber, req.Message)
		if err != nil {
			fail(c, err)
			return
		}
		if err := limiter.RecordSent(c, req.SessionID); err != nil {
			fail(c, err)
			return
		}

		sentAt := receipt.Timestamp
		row := entities.Message{
			MessageID:  receipt.ID,
			SessionID:  req.SessionID,
			Direction:  entities.DirectionOutgoing,
			Type:       entities.MessageTypeText,
			FromNumber: session.PhoneNumber,
			ToNumber:   req.PhoneNumber,
			Content:    req.Message,
			Status:     entities.MessageStatusSent,
			SentAt:     &sentAt,
		}
		if _, err := messages.InsertIfNew(c, &row); err != nil {
			fail(c, err)
			return
		}

		ok(c, dtos.MessageResponseDTO{
			MessageID: receipt.ID,
			Timestamp: receipt.Timestamp.Format(time.RFC3339),
			Status:    string(entities.MessageStatusSent),
			To:        req.PhoneNumber,
		})
	}
}

func sendMedia(s whatsapp.Service, sessions whatsapp.SessionRepository, messages whatsapp.MessageRepository, limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.PostForm("session_id")
		phoneNumber := c.PostForm("phone_number")
		caption := c.PostForm("caption")
		mimeType := c.PostForm("mime_type")
		if sessionID == "" || phoneNumber == "" || mimeType == "" {
			failBadRequest(c, "session_id, phone_number and mime_type are required")
			return
		}

		file, header, err := c.Request.FormFile("media")
		if err != nil {
			failBadRequest(c, constant.FILE_READ_FAILED)
			return
		}
		defer file.Close()

		mediaData, err := io.ReadAll(file)
		if err != nil {
			fail(c, apperrors.Internal(constant.FILE_READ_FAILED))
			return
		}

		session, err := gateSend(c, sessions, limiter, sessionID)
		if err != nil {
			fail(c, err)
			return
		}

		receipt, err := s.SendMedia(c, sessionID, phoneNumber, mediaData, mimeType, caption, header.Filename)
		if err != nil {
			fail(c, err)
			return
		}
		if err := limiter.RecordSent(c, sessionID); err != nil {
			fail(c, err)
			return
		}

		sentAt := receipt.Timestamp
		messageType := entities.MessageTypeDocument
		if len(mimeType) >= 6 && mimeType[:6] == "image/" {
			messageType = entities.MessageTypeImage
		}
		row := entities.Message{
			MessageID:  receipt.ID,
			SessionID:  sessionID,
			Direction:  entities.DirectionOutgoing,
			Type:       messageType,
			FromNumber: session.PhoneNumber,
			ToNumber:   phoneNumber,
			Content:    caption,
			Status:     entities.MessageStatusSent,
			SentAt:     &sentAt,
		}
		if _, err := messages.InsertIfNew(c, &row); err != nil {
			fail(c, err)
			return
		}

		ok(c, dtos.MessageResponseDTO{
			MessageID: receipt.ID,
			Timestamp: receipt.Timestamp.Format(time.RFC3339),
			Status:    string(entities.MessageStatusSent),
			To:        phoneNumber,
		})
	}
}
