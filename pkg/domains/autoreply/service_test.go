package autoreply

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/pkg/clients/openai"
	"github.com/wagate/pkg/clients/rajaongkir"
	"github.com/wagate/pkg/config"
	"github.com/wagate/pkg/domains/ratelimit"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/entities"
	"github.com/wagate/pkg/events"
	"go.mau.fi/whatsmeow"
	waTypes "go.mau.fi/whatsmeow/types"
	"gorm.io/gorm"
)

// --- fakes ---------------------------------------------------------------

type engineClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *engineClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *engineClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type engineRand struct{}

func (engineRand) Float64() float64 { return 0.5 }
func (engineRand) IntN(n int) int   { return 0 }

type memoryRateRepo struct {
	mu      sync.Mutex
	buckets map[string]entities.RateLimit
}

func (r *memoryRateRepo) GetOrCreate(_ context.Context, sessionID string) (entities.RateLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket, ok := r.buckets[sessionID]
	if !ok {
		bucket = entities.RateLimit{SessionID: sessionID}
		r.buckets[sessionID] = bucket
	}
	return bucket, nil
}

func (r *memoryRateRepo) Save(_ context.Context, bucket *entities.RateLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[bucket.SessionID] = *bucket
	return nil
}

type engineTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []string
	presences []waTypes.ChatPresence
}

func (f *engineTransport) Connect() error                   { return nil }
func (f *engineTransport) Disconnect()                      {}
func (f *engineTransport) Logout(context.Context) error     { return nil }
func (f *engineTransport) Close() error                     { return nil }
func (f *engineTransport) IsConnected() bool                { return f.connected }
func (f *engineTransport) IsLoggedIn() bool                 { return true }
func (f *engineTransport) OwnPhone() string                 { return "628111111111" }
func (f *engineTransport) AddEventHandler(func(any)) uint32 { return 1 }

func (f *engineTransport) QRChannel(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	ch := make(chan whatsmeow.QRChannelItem)
	close(ch)
	return ch, nil
}

func (f *engineTransport) SendText(_ context.Context, _ waTypes.JID, body string) (whatsapp.SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	return whatsapp.SendReceipt{ID: fmt.Sprintf("r-%d", len(f.sent)), Timestamp: time.Now()}, nil
}

func (f *engineTransport) SendImage(context.Context, waTypes.JID, []byte, string, string) (whatsapp.SendReceipt, error) {
	return whatsapp.SendReceipt{}, nil
}
func (f *engineTransport) SendDocument(context.Context, waTypes.JID, []byte, string, string) (whatsapp.SendReceipt, error) {
	return whatsapp.SendReceipt{}, nil
}

func (f *engineTransport) ChatPresence(_ waTypes.JID, state waTypes.ChatPresence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presences = append(f.presences, state)
	return nil
}

func (f *engineTransport) MarkRead(_, _ waTypes.JID, _ []waTypes.MessageID) error { return nil }
func (f *engineTransport) AllContacts(context.Context) (map[waTypes.JID]waTypes.ContactInfo, error) {
	return nil, nil
}
func (f *engineTransport) JoinedGroups(context.Context) ([]*waTypes.GroupInfo, error) {
	return nil, nil
}
func (f *engineTransport) GroupInfo(context.Context, waTypes.JID) (*waTypes.GroupInfo, error) {
	return nil, nil
}
func (f *engineTransport) ResolveLIDs(context.Context, []waTypes.JID) (map[waTypes.JID]waTypes.JID, error) {
	return nil, nil
}

type engineDir struct{ transport *engineTransport }

func (d *engineDir) GetTransport(string) whatsapp.Transport { return d.transport }
func (d *engineDir) IsConnected(string) bool                { return d.transport.connected }

type engineMessages struct {
	mu   sync.Mutex
	rows map[string]entities.Message
}

func (m *engineMessages) InsertIfNew(_ context.Context, msg *entities.Message) (bool, error) {
	return true, m.Create(context.Background(), msg)
}

func (m *engineMessages) Create(_ context.Context, msg *entities.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[msg.MessageID] = *msg
	return nil
}

func (m *engineMessages) GetByMessageID(_ context.Context, id string) (entities.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return entities.Message{}, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (m *engineMessages) AdvanceStatus(_ context.Context, id string, status entities.MessageStatus, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	if row.Status.CanProgressTo(status) {
		row.Status = status
		m.rows[id] = row
	}
	return nil
}

func (m *engineMessages) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.Status = entities.MessageStatusFailed
	row.ErrorMessage = reason
	m.rows[id] = row
	return nil
}

func (m *engineMessages) ListBySession(context.Context, string, int) ([]entities.Message, error) {
	return nil, nil
}
func (m *engineMessages) DistinctSenders(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func (m *engineMessages) outgoing() []entities.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Message
	for _, row := range m.rows {
		if row.Direction == entities.DirectionOutgoing {
			out = append(out, row)
		}
	}
	return out
}

type engineConversations struct {
	mu    sync.Mutex
	lines []entities.ConversationMessage
}

func (c *engineConversations) Touch(_ context.Context, sessionID, phone, _ string, _ time.Time) (entities.Conversation, error) {
	convo := entities.Conversation{SessionID: sessionID, CustomerPhone: phone}
	convo.ID = 1
	return convo, nil
}

func (c *engineConversations) Append(_ context.Context, id uint, direction entities.MessageDirection, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, entities.ConversationMessage{ConversationID: id, Direction: direction, Content: content})
	return nil
}

func (c *engineConversations) History(_ context.Context, _ uint, limit int) ([]entities.ConversationMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) > limit {
		return c.lines[len(c.lines)-limit:], nil
	}
	return c.lines, nil
}

func (c *engineConversations) Get(_ context.Context, sessionID, phone string) (entities.Conversation, error) {
	convo := entities.Conversation{SessionID: sessionID, CustomerPhone: phone}
	convo.ID = 1
	return convo, nil
}

type engineRules struct{ rules []entities.AutoReplyRule }

func (r *engineRules) ActiveRules(context.Context, string) ([]entities.AutoReplyRule, error) {
	return r.rules, nil
}

type fakeAI struct {
	reply string
	err   error
	calls int
}

func (a *fakeAI) Chat(_ context.Context, _ string, _ []openai.ChatMessage, _ string) (string, error) {
	a.calls++
	return a.reply, a.err
}

type fakeShipping struct {
	result rajaongkir.CostResult
	err    error
}

func (s *fakeShipping) Cost(context.Context, string, string, int, string) (rajaongkir.CostResult, error) {
	return s.result, s.err
}

// --- harness -------------------------------------------------------------

type engineHarness struct {
	engine    *Engine
	transport *engineTransport
	messages  *engineMessages
	ai        *fakeAI
	shipping  *fakeShipping
	rules     *engineRules
	limiter   *ratelimit.Limiter
}

func newEngineHarness(rateCfg config.RateLimit) *engineHarness {
	clock := &engineClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	transport := &engineTransport{connected: true}
	messages := &engineMessages{rows: map[string]entities.Message{}}
	ai := &fakeAI{reply: "ai answer"}
	shipping := &fakeShipping{}
	rules := &engineRules{}
	limiter := ratelimit.NewLimiter(rateCfg, &memoryRateRepo{buckets: map[string]entities.RateLimit{}}, clock, engineRand{})

	engine := NewEngine(
		&engineDir{transport: transport}, messages, &engineConversations{}, rules,
		limiter, ai, shipping, events.NewHub(), clock, engineRand{}, 10,
	)
	return &engineHarness{
		engine: engine, transport: transport, messages: messages,
		ai: ai, shipping: shipping, rules: rules, limiter: limiter,
	}
}

func relaxedRateConfig() config.RateLimit {
	return config.RateLimit{
		MessagesPerHour:       100,
		MessagesPerDay:        1000,
		MinDelayMs:            1,
		MaxDelayMs:            1,
		CooldownAfterMessages: 10000,
		CooldownDurationMs:    1,
	}
}

func testSession() entities.Session {
	return entities.Session{SessionID: "s1", UserID: 1, Name: "Toko Maju", PhoneNumber: "628111111111"}
}

func inbound(content string) entities.Message {
	return entities.Message{
		MessageID:  "m-1",
		SessionID:  "s1",
		Direction:  entities.DirectionIncoming,
		Type:       entities.MessageTypeText,
		FromNumber: "628122222222",
		Content:    content,
	}
}

func replyTarget() waTypes.JID {
	return waTypes.NewJID("628122222222", waTypes.DefaultUserServer)
}

// --- tests ---------------------------------------------------------------

func TestReplyPrefersManualRules(t *testing.T) {
	h := newEngineHarness(relaxedRateConfig())
	h.rules.rules = []entities.AutoReplyRule{
		{Trigger: "harga", MatchMode: entities.MatchModeContains, Reply: "Mulai dari Rp50.000"},
	}

	h.engine.Reply(context.Background(), testSession(), inbound("berapa harga nya?"), replyTarget())

	require.Len(t, h.transport.sent, 1)
	assert.Equal(t, "Mulai dari Rp50.000", h.transport.sent[0])
	assert.Zero(t, h.ai.calls, "rule match must short-circuit the AI")

	out := h.messages.outgoing()
	require.Len(t, out, 1)
	assert.Equal(t, entities.AutoReplySourceManual, out[0].AutoReplySource)
	assert.Equal(t, entities.MessageStatusSent, out[0].Status)
	assert.Equal(t, "628111111111", out[0].FromNumber)
	assert.Equal(t, "628122222222", out[0].ToNumber)
}

func TestReplyShippingCommand(t *testing.T) {
	h := newEngineHarness(relaxedRateConfig())
	h.shipping.result = rajaongkir.CostResult{
		Courier:  "JNE",
		Services: []rajaongkir.CostService{{Service: "REG", Description: "Reguler", Cost: 15000, ETA: "2-3"}},
	}

	h.engine.Reply(context.Background(), testSession(), inbound("cek ongkir jakarta ke bandung 1kg"), replyTarget())

	require.Len(t, h.transport.sent, 1)
	assert.Contains(t, h.transport.sent[0], "REG")
	out := h.messages.outgoing()
	require.Len(t, out, 1)
	assert.Equal(t, entities.AutoReplySourceRajaOngkir, out[0].AutoReplySource)
}

func TestReplyShippingErrorYieldsHelp(t *testing.T) {
	h := newEngineHarness(relaxedRateConfig())
	h.shipping.err = fmt.Errorf("provider down")

	h.engine.Reply(context.Background(), testSession(), inbound("cek ongkir jakarta ke bandung"), replyTarget())

	require.Len(t, h.transport.sent, 1)
	assert.Equal(t, ShippingHelpReply, h.transport.sent[0])
}

func TestReplyAIFallback(t *testing.T) {
	h := newEngineHarness(relaxedRateConfig())

	h.engine.Reply(context.Background(), testSession(), inbound("ceritakan produkmu"), replyTarget())

	require.Len(t, h.transport.sent, 1)
	assert.Equal(t, "ai answer", h.transport.sent[0])
	assert.Equal(t, 1, h.ai.calls)
	out := h.messages.outgoing()
	require.Len(t, out, 1)
	assert.Equal(t, entities.AutoReplySourceOpenAI, out[0].AutoReplySource)
}

func TestReplyAIErrorYieldsCannedMessage(t *testing.T) {
	h := newEngineHarness(relaxedRateConfig())
	h.ai.err = fmt.Errorf("quota exceeded")
	h.ai.reply = ""

	h.engine.Reply(context.Background(), testSession(), inbound("halo"), replyTarget())

	require.Len(t, h.transport.sent, 1)
	assert.Equal(t, AIFailureReply, h.transport.sent[0])
}

func TestReplyRateLimitDenialMarksFailed(t *testing.T) {
	cfg := relaxedRateConfig()
	cfg.MessagesPerHour = 3
	h := newEngineHarness(cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		msg := inbound("halo")
		msg.MessageID = fmt.Sprintf("m-%d", i)
		h.engine.Reply(ctx, testSession(), msg, replyTarget())
	}

	assert.Len(t, h.transport.sent, 3, "only three sends inside the hourly ceiling")

	var failed []entities.Message
	for _, out := range h.messages.outgoing() {
		if out.Status == entities.MessageStatusFailed {
			failed = append(failed, out)
		}
	}
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ErrorMessage, "rate limit")
}

func TestReplySimulatesTyping(t *testing.T) {
	h := newEngineHarness(relaxedRateConfig())
	h.rules.rules = []entities.AutoReplyRule{
		{Trigger: "halo", MatchMode: entities.MatchModeContains, Reply: "Halo juga!"},
	}

	h.engine.Reply(context.Background(), testSession(), inbound("halo"), replyTarget())

	require.Len(t, h.transport.presences, 2)
	assert.Equal(t, waTypes.ChatPresenceComposing, h.transport.presences[0])
	assert.Equal(t, waTypes.ChatPresencePaused, h.transport.presences[1])
}
