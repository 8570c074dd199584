package routes

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/events"
	"github.com/wagate/pkg/logger"
	"github.com/wagate/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced at the HTTP layer; the handshake itself accepts
	// any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientCommand is what subscribers send upstream.
type clientCommand struct {
	Event      string `json:"event"`
	SessionID  string `json:"session_id,omitempty"`
	CampaignID uint   `json:"campaign_id,omitempty"`
}

// WSRoutes mounts the live-event endpoint. The handshake authenticates
// with a userId query parameter (replaced by JWT in production).
func WSRoutes(r *gin.RouterGroup, hub *events.Hub, sessions whatsapp.SessionRepository, clock utils.Clock) {
	log := logger.Get("ws")

	r.GET("/ws", func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.Query("userId"), 10, 64)
		if err != nil || userID == 0 {
			failBadRequest(c, "userId query parameter is required")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		sub := hub.Register(uint(userID), 128)
		defer hub.Unregister(sub)
		defer conn.Close()

		done := make(chan struct{})

		// Writer: per-subscriber FIFO from the hub.
		go func() {
			for evt := range sub.C() {
				if err := conn.WriteJSON(evt); err != nil {
					close(done)
					return
				}
			}
		}()

		// Reader: client subscribe/unsubscribe/ping commands.
		for {
			select {
			case <-done:
				return
			default:
			}

			var cmd clientCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}

			switch cmd.Event {
			case "subscribe:session":
				hub.Join(sub, events.SessionKey(cmd.SessionID))
				replayQR(c.Request.Context(), sub, sessions, cmd.SessionID, clock)
			case "unsubscribe:session":
				hub.Leave(sub, events.SessionKey(cmd.SessionID))
			case "subscribe:broadcast":
				hub.Join(sub, events.BroadcastKey(cmd.CampaignID))
			case "unsubscribe:broadcast":
				hub.Leave(sub, events.BroadcastKey(cmd.CampaignID))
			case "ping":
				_ = conn.WriteJSON(events.Event{Type: "pong", Timestamp: time.Now()})
			default:
				if strings.TrimSpace(cmd.Event) != "" {
					log.Debug().Str("event", cmd.Event).Msg("unknown client event")
				}
			}
		}
	})
}

// replayQR pushes the persisted QR to a fresh session subscriber so a
// client joining mid-pairing does not wait for the next rotation.
func replayQR(ctx context.Context, sub *events.Subscriber, sessions whatsapp.SessionRepository, sessionID string, clock utils.Clock) {
	row, err := sessions.GetBySessionID(ctx, sessionID)
	if err != nil || row.UserID != sub.UserID {
		return
	}
	if !row.QRValid(clock.Now()) {
		return
	}
	sub.Deliver(events.Event{
		Type: events.TypeSessionQR,
		Payload: map[string]any{
			"session_id": row.SessionID,
			"qr_code":    row.QRCode,
			"expires_at": row.QRExpiresAt,
		},
		Timestamp: clock.Now(),
	})
}
