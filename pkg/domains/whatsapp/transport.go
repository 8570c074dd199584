package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wagate/pkg/logger"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// SendReceipt is the provider's acknowledgement for one send.
type SendReceipt struct {
	ID        string
	Timestamp time.Time
}

// Transport is the slice of the underlying chat client the rest of the
// gateway is allowed to touch. The whatsmeow client never leaks past
// this interface, so the pipelines run against fakes in tests.
type Transport interface {
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	Close() error

	IsConnected() bool
	IsLoggedIn() bool
	OwnPhone() string

	QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	AddEventHandler(handler func(evt any)) uint32

	SendText(ctx context.Context, to waTypes.JID, text string) (SendReceipt, error)
	SendImage(ctx context.Context, to waTypes.JID, data []byte, mimeType, caption string) (SendReceipt, error)
	SendDocument(ctx context.Context, to waTypes.JID, data []byte, mimeType, fileName string) (SendReceipt, error)

	ChatPresence(to waTypes.JID, state waTypes.ChatPresence) error
	MarkRead(chat, sender waTypes.JID, ids []waTypes.MessageID) error

	AllContacts(ctx context.Context) (map[waTypes.JID]waTypes.ContactInfo, error)
	JoinedGroups(ctx context.Context) ([]*waTypes.GroupInfo, error)
	GroupInfo(ctx context.Context, jid waTypes.JID) (*waTypes.GroupInfo, error)
	ResolveLIDs(ctx context.Context, lids []waTypes.JID) (map[waTypes.JID]waTypes.JID, error)
}

// TransportFactory opens a transport with credentials rooted under the
// session's storage directory.
type TransportFactory func(ctx context.Context, sessionID string) (Transport, error)

// NewWhatsmeowFactory builds the production factory. Each session gets
// its own sqlite credential container at <storagePath>/<sessionID>/.
func NewWhatsmeowFactory(storagePath string) TransportFactory {
	return func(ctx context.Context, sessionID string) (Transport, error) {
		dir := filepath.Join(storagePath, sessionID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}

		waLogger := logger.Wa(sessionID)
		dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.Join(dir, "session.db"))
		container, err := sqlstore.New(ctx, "sqlite", dsn, waLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}

		device, err := container.GetFirstDevice(ctx)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to get device: %w", err)
		}

		client := whatsmeow.NewClient(device, waLogger)
		return &waTransport{cli: client, container: container}, nil
	}
}

// waTransport adapts *whatsmeow.Client to Transport. This is the only
// type in the repository that calls client methods directly.
type waTransport struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
}

func (t *waTransport) Connect() error { return t.cli.Connect() }

func (t *waTransport) Disconnect() { t.cli.Disconnect() }

func (t *waTransport) Logout(ctx context.Context) error { return t.cli.Logout(ctx) }

func (t *waTransport) Close() error {
	t.cli.Disconnect()
	return t.container.Close()
}

func (t *waTransport) IsConnected() bool { return t.cli.IsConnected() }

func (t *waTransport) IsLoggedIn() bool { return t.cli.Store.ID != nil }

func (t *waTransport) OwnPhone() string {
	if t.cli.Store.ID == nil {
		return ""
	}
	return t.cli.Store.ID.User
}

func (t *waTransport) QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return t.cli.GetQRChannel(ctx)
}

func (t *waTransport) AddEventHandler(handler func(evt any)) uint32 {
	return t.cli.AddEventHandler(func(evt interface{}) { handler(evt) })
}

func (t *waTransport) SendText(ctx context.Context, to waTypes.JID, text string) (SendReceipt, error) {
	msg := &waProto.Message{Conversation: proto.String(text)}
	resp, err := t.cli.SendMessage(ctx, to, msg)
	if err != nil {
		return SendReceipt{}, err
	}
	return SendReceipt{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (t *waTransport) SendImage(ctx context.Context, to waTypes.JID, data []byte, mimeType, caption string) (SendReceipt, error) {
	uploaded, err := t.cli.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waProto.Message{
		ImageMessage: &waProto.ImageMessage{
			URL:           &uploaded.URL,
			Mimetype:      &mimeType,
			Caption:       &caption,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
		},
	}

	resp, err := t.cli.SendMessage(ctx, to, msg)
	if err != nil {
		return SendReceipt{}, err
	}
	return SendReceipt{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (t *waTransport) SendDocument(ctx context.Context, to waTypes.JID, data []byte, mimeType, fileName string) (SendReceipt, error) {
	uploaded, err := t.cli.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waProto.Message{
		DocumentMessage: &waProto.DocumentMessage{
			URL:           &uploaded.URL,
			Mimetype:      &mimeType,
			Title:         &fileName,
			FileName:      &fileName,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
		},
	}

	resp, err := t.cli.SendMessage(ctx, to, msg)
	if err != nil {
		return SendReceipt{}, err
	}
	return SendReceipt{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (t *waTransport) ChatPresence(to waTypes.JID, state waTypes.ChatPresence) error {
	return t.cli.SendChatPresence(context.Background(), to, state, waTypes.ChatPresenceMediaText)
}

func (t *waTransport) MarkRead(chat, sender waTypes.JID, ids []waTypes.MessageID) error {
	return t.cli.MarkRead(context.Background(), ids, time.Now(), chat, sender)
}

func (t *waTransport) AllContacts(ctx context.Context) (map[waTypes.JID]waTypes.ContactInfo, error) {
	return t.cli.Store.Contacts.GetAllContacts(ctx)
}

func (t *waTransport) JoinedGroups(ctx context.Context) ([]*waTypes.GroupInfo, error) {
	return t.cli.GetJoinedGroups(ctx)
}

func (t *waTransport) GroupInfo(ctx context.Context, jid waTypes.JID) (*waTypes.GroupInfo, error) {
	return t.cli.GetGroupInfo(ctx, jid)
}

// ResolveLIDs maps linked identities back to phone JIDs through the
// client's identity store. Unresolvable entries are simply absent from
// the result.
func (t *waTransport) ResolveLIDs(ctx context.Context, lids []waTypes.JID) (map[waTypes.JID]waTypes.JID, error) {
	resolved := make(map[waTypes.JID]waTypes.JID, len(lids))
	for _, lid := range lids {
		pn, err := t.cli.Store.LIDs.GetPNForLID(ctx, lid)
		if err != nil {
			return resolved, err
		}
		if !pn.IsEmpty() {
			resolved[lid] = pn
		}
	}
	return resolved, nil
}
