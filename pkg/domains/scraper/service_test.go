package scraper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/pkg/config"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/entities"
	apperrors "github.com/wagate/pkg/errors"
	"go.mau.fi/whatsmeow"
	waTypes "go.mau.fi/whatsmeow/types"
	"gorm.io/gorm"
)

// --- fakes ---------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.Advance(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixedRand struct{}

func (fixedRand) Float64() float64 { return 0.5 }
func (fixedRand) IntN(n int) int   { return 0 }

type fakeSessions struct{}

func (fakeSessions) GetOwned(_ context.Context, userID uint, sessionID string) (entities.Session, error) {
	if sessionID != "s1" || userID != 1 {
		return entities.Session{}, gorm.ErrRecordNotFound
	}
	return entities.Session{SessionID: "s1", UserID: 1, IsActive: true}, nil
}

type fakeTransport struct {
	contacts map[waTypes.JID]waTypes.ContactInfo
	groups   []*waTypes.GroupInfo
}

func (f *fakeTransport) Connect() error                   { return nil }
func (f *fakeTransport) Disconnect()                      {}
func (f *fakeTransport) Logout(context.Context) error     { return nil }
func (f *fakeTransport) Close() error                     { return nil }
func (f *fakeTransport) IsConnected() bool                { return true }
func (f *fakeTransport) IsLoggedIn() bool                 { return true }
func (f *fakeTransport) OwnPhone() string                 { return "628111111111" }
func (f *fakeTransport) AddEventHandler(func(any)) uint32 { return 1 }

func (f *fakeTransport) QRChannel(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	ch := make(chan whatsmeow.QRChannelItem)
	close(ch)
	return ch, nil
}

func (f *fakeTransport) SendText(context.Context, waTypes.JID, string) (whatsapp.SendReceipt, error) {
	return whatsapp.SendReceipt{}, nil
}
func (f *fakeTransport) SendImage(context.Context, waTypes.JID, []byte, string, string) (whatsapp.SendReceipt, error) {
	return whatsapp.SendReceipt{}, nil
}
func (f *fakeTransport) SendDocument(context.Context, waTypes.JID, []byte, string, string) (whatsapp.SendReceipt, error) {
	return whatsapp.SendReceipt{}, nil
}
func (f *fakeTransport) ChatPresence(waTypes.JID, waTypes.ChatPresence) error   { return nil }
func (f *fakeTransport) MarkRead(_, _ waTypes.JID, _ []waTypes.MessageID) error { return nil }

func (f *fakeTransport) AllContacts(context.Context) (map[waTypes.JID]waTypes.ContactInfo, error) {
	return f.contacts, nil
}
func (f *fakeTransport) JoinedGroups(context.Context) ([]*waTypes.GroupInfo, error) {
	return f.groups, nil
}
func (f *fakeTransport) GroupInfo(context.Context, waTypes.JID) (*waTypes.GroupInfo, error) {
	return nil, nil
}
func (f *fakeTransport) ResolveLIDs(_ context.Context, lids []waTypes.JID) (map[waTypes.JID]waTypes.JID, error) {
	// Resolve even-indexed LIDs, leave the rest opaque.
	out := map[waTypes.JID]waTypes.JID{}
	for i, lid := range lids {
		if i%2 == 0 {
			out[lid] = waTypes.NewJID(fmt.Sprintf("62899%010d", i), waTypes.DefaultUserServer)
		}
	}
	return out, nil
}

type fakeGate struct{ transport whatsapp.Transport }

func (f *fakeGate) GetTransport(string) whatsapp.Transport { return f.transport }
func (f *fakeGate) IsConnected(string) bool                { return true }

type memoryContacts struct {
	mu   sync.Mutex
	rows map[string]entities.Contact
}

func (m *memoryContacts) SaveInbound(_ context.Context, c entities.Contact) error {
	return m.upsert(c)
}

func (m *memoryContacts) UpsertBatch(_ context.Context, contacts []entities.Contact) error {
	for _, c := range contacts {
		if err := m.upsert(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryContacts) upsert(c entities.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[c.Phone]
	if ok {
		// display_name is user-owned and never overwritten.
		c.DisplayName = existing.DisplayName
	}
	m.rows[c.Phone] = c
	return nil
}

func (m *memoryContacts) List(context.Context, uint, string) ([]entities.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Contact
	for _, c := range m.rows {
		out = append(out, c)
	}
	return out, nil
}

type memoryGroups struct {
	mu      sync.Mutex
	groups  []entities.Group
	members map[uint][]entities.GroupMember
}

func (m *memoryGroups) UpsertGroup(_ context.Context, g *entities.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = uint(len(m.groups) + 1)
	m.groups = append(m.groups, *g)
	return nil
}

func (m *memoryGroups) UpsertMembers(_ context.Context, groupID uint, members []entities.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members == nil {
		m.members = map[uint][]entities.GroupMember{}
	}
	m.members[groupID] = members
	return nil
}

func (m *memoryGroups) SaveMember(context.Context, uint, string, string, entities.GroupMember) error {
	return nil
}

func (m *memoryGroups) Get(context.Context, uint) (entities.Group, error) {
	return entities.Group{}, gorm.ErrRecordNotFound
}

func (m *memoryGroups) List(context.Context, uint, string) ([]entities.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups, nil
}

type memoryLogs struct {
	mu     sync.Mutex
	nextID uint
	rows   []entities.ScrapingLog
}

func (m *memoryLogs) Start(_ context.Context, userID uint, sessionID string, kind entities.ScrapeKind, at time.Time) (entities.ScrapingLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	log := entities.ScrapingLog{UserID: userID, SessionID: sessionID, Kind: kind, Status: entities.ScrapeStatusInProgress, StartedAt: at}
	log.ID = m.nextID
	m.rows = append(m.rows, log)
	return log, nil
}

func (m *memoryLogs) Finish(_ context.Context, logID uint, status entities.ScrapeStatus, total int, errText string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == logID {
			m.rows[i].Status = status
			m.rows[i].TotalScraped = total
			m.rows[i].Error = errText
			m.rows[i].CompletedAt = &at
		}
	}
	return nil
}

func (m *memoryLogs) CompletedSince(_ context.Context, userID uint, sessionID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && row.SessionID == sessionID &&
			row.Status == entities.ScrapeStatusCompleted &&
			row.CompletedAt != nil && !row.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memoryLogs) LastCompleted(_ context.Context, userID uint, sessionID string) (entities.ScrapingLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *entities.ScrapingLog
	for i := range m.rows {
		row := &m.rows[i]
		if row.UserID == userID && row.SessionID == sessionID && row.Status == entities.ScrapeStatusCompleted {
			if latest == nil || row.CompletedAt.After(*latest.CompletedAt) {
				latest = row
			}
		}
	}
	if latest == nil {
		return entities.ScrapingLog{}, gorm.ErrRecordNotFound
	}
	return *latest, nil
}

type fakeMessages struct{ senders []string }

func (f *fakeMessages) InsertIfNew(context.Context, *entities.Message) (bool, error) { return true, nil }
func (f *fakeMessages) Create(context.Context, *entities.Message) error              { return nil }
func (f *fakeMessages) GetByMessageID(context.Context, string) (entities.Message, error) {
	return entities.Message{}, gorm.ErrRecordNotFound
}
func (f *fakeMessages) AdvanceStatus(context.Context, string, entities.MessageStatus, time.Time) error {
	return nil
}
func (f *fakeMessages) MarkFailed(context.Context, string, string) error { return nil }
func (f *fakeMessages) ListBySession(context.Context, string, int) ([]entities.Message, error) {
	return nil, nil
}
func (f *fakeMessages) DistinctSenders(context.Context, string, int) ([]string, error) {
	return f.senders, nil
}

// --- harness -------------------------------------------------------------

func testScraperConfig() config.Scraper {
	return config.Scraper{
		MaxScrapesPerDay:        3,
		CooldownBetweenScrapes:  60,
		MaxContactsPerScrape:    1000,
		ContactsPerBatch:        50,
		BatchSaveDelayMs:        10,
		MinDelayBetweenGroupsMs: 10,
		MaxDelayBetweenGroupsMs: 20,
	}
}

type scrapeHarness struct {
	svc      Service
	clock    *fakeClock
	contacts *memoryContacts
	groups   *memoryGroups
	logs     *memoryLogs
}

func newScrapeHarness(transport *fakeTransport, cfg config.Scraper) *scrapeHarness {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	contacts := &memoryContacts{rows: map[string]entities.Contact{}}
	groups := &memoryGroups{}
	logs := &memoryLogs{}
	svc := NewService(fakeSessions{}, &fakeGate{transport: transport}, contacts, groups, logs,
		&fakeMessages{senders: []string{"628155555555"}}, clock, fixedRand{}, cfg)
	return &scrapeHarness{svc: svc, clock: clock, contacts: contacts, groups: groups, logs: logs}
}

func phoneJID(phone string) waTypes.JID {
	return waTypes.NewJID(phone, waTypes.DefaultUserServer)
}

// --- tests ---------------------------------------------------------------

func TestScrapeContactsCollectsAndDedupes(t *testing.T) {
	transport := &fakeTransport{
		contacts: map[waTypes.JID]waTypes.ContactInfo{
			phoneJID("628122222222"): {FullName: "Budi", PushName: "budi"},
			phoneJID("628155555555"): {PushName: "dupe of chat sender"},
		},
		groups: []*waTypes.GroupInfo{
			{
				JID: waTypes.NewJID("12036301", waTypes.GroupServer),
				Participants: []waTypes.GroupParticipant{
					{JID: phoneJID("628133333333")},
					{JID: phoneJID("628122222222")}, // duplicate across sources
				},
			},
		},
	}
	h := newScrapeHarness(transport, testScraperConfig())

	result, err := h.svc.ScrapeContacts(context.Background(), 1, "s1")
	require.NoError(t, err)

	// 628122222222, 628155555555, 628133333333 — duplicates collapsed.
	assert.Equal(t, 3, result.TotalScraped)
	assert.Len(t, h.contacts.rows, 3)

	require.Len(t, h.logs.rows, 1)
	assert.Equal(t, entities.ScrapeStatusCompleted, h.logs.rows[0].Status)
	assert.Equal(t, 3, h.logs.rows[0].TotalScraped)
}

func TestScrapeContactsResolvesLIDs(t *testing.T) {
	lidA := waTypes.NewJID("998877665544332211", waTypes.HiddenUserServer)
	lidB := waTypes.NewJID("112233445566778899", waTypes.HiddenUserServer)
	transport := &fakeTransport{
		contacts: map[waTypes.JID]waTypes.ContactInfo{},
		groups: []*waTypes.GroupInfo{
			{
				JID: waTypes.NewJID("12036301", waTypes.GroupServer),
				Participants: []waTypes.GroupParticipant{
					{JID: lidA},
					{JID: lidB},
				},
			},
		},
	}
	h := newScrapeHarness(transport, testScraperConfig())

	_, err := h.svc.ScrapeContacts(context.Background(), 1, "s1")
	require.NoError(t, err)

	resolved, pseudo := 0, 0
	for phone := range h.contacts.rows {
		if len(phone) > 4 && phone[:4] == "LID_" {
			pseudo++
		} else if phone != "628155555555" {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved, "one LID resolves to a phone")
	assert.Equal(t, 1, pseudo, "the other stays a pseudo identifier")
}

func TestScrapeQuotaPerDay(t *testing.T) {
	cfg := testScraperConfig()
	cfg.CooldownBetweenScrapes = 0 // isolate the daily ceiling
	transport := &fakeTransport{contacts: map[waTypes.JID]waTypes.ContactInfo{}}
	h := newScrapeHarness(transport, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.svc.ScrapeContacts(ctx, 1, "s1")
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}

	_, err := h.svc.ScrapeContacts(ctx, 1, "s1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeRateLimited))

	// A new calendar day resets the quota.
	h.clock.Advance(24 * time.Hour)
	_, err = h.svc.ScrapeContacts(ctx, 1, "s1")
	assert.NoError(t, err)
}

func TestScrapeCooldownBetweenRuns(t *testing.T) {
	cfg := testScraperConfig()
	cfg.MaxScrapesPerDay = 10
	transport := &fakeTransport{contacts: map[waTypes.JID]waTypes.ContactInfo{}}
	h := newScrapeHarness(transport, cfg)
	ctx := context.Background()

	_, err := h.svc.ScrapeContacts(ctx, 1, "s1")
	require.NoError(t, err)

	// Halfway through the cooldown: denied with a remaining-time hint.
	h.clock.Advance(30 * time.Minute)
	_, err = h.svc.ScrapeContacts(ctx, 1, "s1")
	require.Error(t, err)
	app, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeRateLimited, app.Code)
	assert.Contains(t, app.Message, "minutes")
	assert.Greater(t, app.RetryAfterMs, int64(0))

	// Just past the cooldown: admitted again.
	h.clock.Advance(30*time.Minute + time.Second)
	_, err = h.svc.ScrapeContacts(ctx, 1, "s1")
	assert.NoError(t, err)
}

func TestScrapeStatusSnapshot(t *testing.T) {
	cfg := testScraperConfig()
	transport := &fakeTransport{contacts: map[waTypes.JID]waTypes.ContactInfo{}}
	h := newScrapeHarness(transport, cfg)
	ctx := context.Background()

	status, err := h.svc.Status(ctx, 1, "s1")
	require.NoError(t, err)
	assert.True(t, status.CanScrape)
	assert.Equal(t, 0, status.ScrapesToday)

	_, err = h.svc.ScrapeContacts(ctx, 1, "s1")
	require.NoError(t, err)

	status, err = h.svc.Status(ctx, 1, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.ScrapesToday)
	assert.False(t, status.CanScrape, "inside the cooldown window")
	assert.Greater(t, status.CooldownRemaining, int64(0))
}

func TestScrapeGroups(t *testing.T) {
	transport := &fakeTransport{
		groups: []*waTypes.GroupInfo{
			{
				JID:      waTypes.NewJID("12036301", waTypes.GroupServer),
				OwnerJID: phoneJID("628122222222"),
				Participants: []waTypes.GroupParticipant{
					{JID: phoneJID("628122222222"), IsAdmin: true},
					{JID: phoneJID("628133333333")},
				},
			},
			{
				JID:          waTypes.NewJID("12036302", waTypes.GroupServer),
				Participants: []waTypes.GroupParticipant{},
			},
		},
	}
	h := newScrapeHarness(transport, testScraperConfig())

	result, err := h.svc.ScrapeGroups(context.Background(), 1, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalScraped)

	require.Len(t, h.groups.groups, 2)
	assert.Equal(t, 2, h.groups.groups[0].ParticipantCount)
	assert.Equal(t, 1, h.groups.groups[0].AdminCount)
	assert.Len(t, h.groups.members[1], 2)
}
