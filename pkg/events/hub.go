package events

import (
	"fmt"
	"sync"
	"time"
)

// Event taxonomy. Every live event carries one of these types.
const (
	TypeSessionQR               = "session:qr"
	TypeSessionConnected        = "session:connected"
	TypeSessionDisconnected     = "session:disconnected"
	TypeSessionConnectionFailed = "session:connection_failed"
	TypeSessionStatus           = "session:status"

	TypeMessageIncoming = "message:incoming"
	TypeMessageSent     = "message:sent"
	TypeMessageStatus   = "message:status"

	TypeBroadcastStarted   = "broadcast:started"
	TypeBroadcastProgress  = "broadcast:progress"
	TypeBroadcastCompleted = "broadcast:completed"
	TypeBroadcastFailed    = "broadcast:failed"
)

// Routing keys.
func UserKey(userID uint) string          { return fmt.Sprintf("user:%d", userID) }
func SessionKey(sessionID string) string  { return "session:" + sessionID }
func BroadcastKey(campaignID uint) string { return fmt.Sprintf("broadcast:%d", campaignID) }

type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber receives events over a buffered channel. Delivery is
// best-effort: a subscriber that stops draining loses events rather than
// blocking publishers.
type Subscriber struct {
	UserID uint

	ch     chan Event
	closed bool
	mu     sync.Mutex
}

func (s *Subscriber) C() <-chan Event { return s.ch }

// Deliver pushes one event directly to this subscriber, bypassing the
// routing keys. Used for QR replay on subscribe.
func (s *Subscriber) Deliver(evt Event) bool {
	return s.deliver(evt)
}

func (s *Subscriber) deliver(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
	default:
		// Slow consumer: drop the event, keep the subscriber.
	}
	return true
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub is the process-wide publish-subscribe fan-out. Subscribers join
// routing keys (user:<id>, session:<id>, broadcast:<id>); dead ones are
// swept on publish.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscriber]struct{})}
}

// Register creates a subscriber owned by userID and joins it to the
// user's own channel.
func (h *Hub) Register(userID uint, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscriber{UserID: userID, ch: make(chan Event, buffer)}
	h.Join(sub, UserKey(userID))
	return sub
}

func (h *Hub) Join(sub *Subscriber, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[key] = set
	}
	set[sub] = struct{}{}
}

func (h *Hub) Leave(sub *Subscriber, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}

// Unregister closes the subscriber and removes it from every key.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	for key, set := range h.subs {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish fans an event out to every subscriber of key, FIFO per
// subscriber. Closed subscribers found on the way are swept.
func (h *Hub) Publish(key, evtType string, payload any) {
	evt := Event{Type: evtType, Payload: payload, Timestamp: time.Now()}

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs[key]))
	for sub := range h.subs[key] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var dead []*Subscriber
	for _, sub := range targets {
		if !sub.deliver(evt) {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		h.Unregister(sub)
	}
}

// PublishToUserAndSession is the common double-keyed publish for session
// lifecycle and message events.
func (h *Hub) PublishToUserAndSession(userID uint, sessionID, evtType string, payload any) {
	h.Publish(UserKey(userID), evtType, payload)
	h.Publish(SessionKey(sessionID), evtType, payload)
}
