// Package channel binds the bridge to the WhatsApp network through
// whatsmeow. It decodes protocol messages into the domain envelope union,
// implements domain.Session for the router, and feeds lifecycle events to
// the connection supervisor.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"salonbot/internal/domain"
	"salonbot/internal/router"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// maxDecodeDepth mirrors the unwrapper's wrapper-depth cap.
const maxDecodeDepth = 10

// WhatsAppConfig configures the WhatsApp channel.
type WhatsAppConfig struct {
	// SessionDB is the sqlite file holding the device credentials.
	SessionDB string
	Logger    *slog.Logger
}

// WhatsApp owns the whatsmeow client and its credential store.
type WhatsApp struct {
	client *whatsmeow.Client
	router *router.Router
	superv *router.Supervisor
	logger *slog.Logger

	// base context for event-driven work. Set once at construction and
	// never reassigned: the event-handler goroutine reads it concurrently
	// with reconnect attempts.
	ctx context.Context
}

// NewWhatsApp opens the credential store and builds the client. The
// supervisor owns reconnection, so whatsmeow's own auto-reconnect is off.
func NewWhatsApp(ctx context.Context, cfg WhatsAppConfig) (*WhatsApp, error) {
	dbLog := waLog.Stdout("session", "ERROR", false)
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", cfg.SessionDB), dbLog)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("client", "ERROR", false))
	client.EnableAutoReconnect = false

	return &WhatsApp{
		client: client,
		logger: cfg.Logger,
		ctx:    ctx,
	}, nil
}

// Bind attaches the router and supervisor and registers the event handler.
// Must be called before Connect.
func (w *WhatsApp) Bind(rt *router.Router, sup *router.Supervisor) {
	w.router = rt
	w.superv = sup
	w.client.AddEventHandler(w.handleEvent)
}

// Paired reports whether stored credentials exist.
func (w *WhatsApp) Paired() bool {
	return w.client.Store.ID != nil
}

// Connect opens the socket. When no credentials are stored yet it drives
// the pairing flow, surfacing QR codes through the supervisor.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.superv.Connecting()

	if !w.Paired() {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go w.consumeQR(qrChan)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect closes the socket without touching stored credentials.
func (w *WhatsApp) Disconnect() {
	w.client.Disconnect()
}

func (w *WhatsApp) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			w.superv.PairingCode(item.Code)
		case whatsmeow.QRChannelSuccess.Event:
			w.logger.Info("pairing complete")
		default:
			w.logger.Warn("pairing flow ended", "event", item.Event, "err", item.Error)
		}
	}
}

func (w *WhatsApp) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.Message:
		w.handleMessage(evt)
	case *events.Connected:
		w.superv.Opened()
	case *events.Disconnected:
		w.superv.Closed(domain.CloseReason{})
	case *events.LoggedOut:
		w.superv.Closed(domain.CloseReason{LoggedOut: true, Code: int(evt.Reason)})
	case *events.StreamReplaced:
		w.superv.Closed(domain.CloseReason{Err: errors.New("stream replaced by another session")})
	case *events.ConnectFailure:
		w.superv.Closed(domain.CloseReason{Code: int(evt.Reason), Err: errors.New(evt.Message)})
	case *events.TemporaryBan:
		w.superv.Closed(domain.CloseReason{Code: int(evt.Code), Err: fmt.Errorf("temporary ban for %s", evt.Expire)})
	}
}

func (w *WhatsApp) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	w.router.HandleEvent(w.ctx, w.decodeEvent(evt))
}

// decodeEvent maps a protocol message onto the domain event shape.
func (w *WhatsApp) decodeEvent(evt *events.Message) *domain.InboundEvent {
	info := evt.Info
	return &domain.InboundEvent{
		ID:          string(info.ID),
		Chat:        info.Chat.String(),
		Sender:      info.Sender.String(),
		PushName:    info.PushName,
		IsGroup:     info.IsGroup,
		IsStatus:    info.Chat == types.StatusBroadcastJID,
		IsBroadcast: info.Chat.Server == types.BroadcastServer,
		MentionsMe:  w.mentionsMe(evt.Message),
		Envelope:    decodeEnvelope(evt.Message, 0),
		Timestamp:   info.Timestamp,
		Raw:         evt,
	}
}

// decodeEnvelope maps a waE2E message onto the closed payload union,
// preserving wrapper nesting for the unwrapper.
func decodeEnvelope(msg *waE2E.Message, depth int) *domain.Envelope {
	if msg == nil || depth > maxDecodeDepth {
		return nil
	}
	switch {
	case msg.GetEphemeralMessage() != nil:
		return &domain.Envelope{Kind: domain.KindEphemeral, Inner: decodeEnvelope(msg.GetEphemeralMessage().GetMessage(), depth+1)}
	case msg.GetViewOnceMessage() != nil:
		return &domain.Envelope{Kind: domain.KindViewOnce, Inner: decodeEnvelope(msg.GetViewOnceMessage().GetMessage(), depth+1)}
	case msg.GetViewOnceMessageV2() != nil:
		return &domain.Envelope{Kind: domain.KindViewOnceV2, Inner: decodeEnvelope(msg.GetViewOnceMessageV2().GetMessage(), depth+1)}
	case msg.GetViewOnceMessageV2Extension() != nil:
		return &domain.Envelope{Kind: domain.KindViewOnceV2Extension, Inner: decodeEnvelope(msg.GetViewOnceMessageV2Extension().GetMessage(), depth+1)}
	case msg.GetConversation() != "":
		return &domain.Envelope{Kind: domain.KindText, Text: msg.GetConversation()}
	case msg.GetExtendedTextMessage() != nil:
		return &domain.Envelope{Kind: domain.KindExtendedText, Text: msg.GetExtendedTextMessage().GetText()}
	case msg.GetAudioMessage() != nil:
		audio := msg.GetAudioMessage()
		return &domain.Envelope{Kind: domain.KindAudio, Audio: &domain.AudioDescriptor{
			MimeType:        audio.GetMimetype(),
			DurationSeconds: int(audio.GetSeconds()),
			SizeBytes:       int64(audio.GetFileLength()),
			VoiceNote:       audio.GetPTT(),
		}}
	default:
		return &domain.Envelope{Kind: domain.KindUnknown}
	}
}

// unwrapRaw strips wrapper layers on the raw proto, mirroring
// envelope.Unwrap for callers that need the protocol message itself.
func unwrapRaw(msg *waE2E.Message) *waE2E.Message {
	for depth := 0; msg != nil && depth < maxDecodeDepth; depth++ {
		switch {
		case msg.GetEphemeralMessage() != nil:
			msg = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage() != nil:
			msg = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2() != nil:
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetViewOnceMessageV2Extension() != nil:
			msg = msg.GetViewOnceMessageV2Extension().GetMessage()
		default:
			return msg
		}
	}
	return msg
}

func (w *WhatsApp) mentionsMe(msg *waE2E.Message) bool {
	if w.client.Store.ID == nil {
		return false
	}
	ext := unwrapRaw(msg).GetExtendedTextMessage()
	if ext == nil {
		return false
	}
	own := w.client.Store.ID.User
	for _, mention := range ext.GetContextInfo().GetMentionedJID() {
		jid, err := types.ParseJID(mention)
		if err == nil && jid.User == own {
			return true
		}
	}
	return false
}

// --- domain.Session implementation ---

// SendText delivers a plain text message.
func (w *WhatsApp) SendText(ctx context.Context, to string, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", to, err)
	}
	_, err = w.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// SendMentionReply sends "@<user> <text>" quoting the original message.
// Falls back to a plain "<name>: <text>" send when tagging fails.
func (w *WhatsApp) SendMentionReply(ctx context.Context, evt *domain.InboundEvent, text string) error {
	fallback := func() error {
		return w.SendText(ctx, evt.Chat, fmt.Sprintf("%s: %s", evt.PushName, text))
	}

	raw, ok := evt.Raw.(*events.Message)
	if !ok {
		return fallback()
	}
	chat, err := types.ParseJID(evt.Chat)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", evt.Chat, err)
	}

	tag := "@" + strings.SplitN(evt.Sender, "@", 2)[0]
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text: proto.String(tag + " " + text),
		ContextInfo: &waE2E.ContextInfo{
			StanzaID:      proto.String(evt.ID),
			Participant:   proto.String(evt.Sender),
			MentionedJID:  []string{evt.Sender},
			QuotedMessage: raw.Message,
		},
	}}
	if _, err := w.client.SendMessage(ctx, chat, msg); err != nil {
		w.logger.Warn("mention reply failed, sending plain", "err", err, "chat", evt.Chat)
		return fallback()
	}
	return nil
}

// SendPresence updates the typing indicator for a chat.
func (w *WhatsApp) SendPresence(ctx context.Context, to string, state domain.PresenceState) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", to, err)
	}
	presence := types.ChatPresenceComposing
	if state == domain.PresencePaused {
		presence = types.ChatPresencePaused
	}
	return w.client.SendChatPresence(ctx, jid, presence, types.ChatPresenceMediaText)
}

// MarkRead issues a read receipt for the event.
func (w *WhatsApp) MarkRead(ctx context.Context, evt *domain.InboundEvent) error {
	chat, err := types.ParseJID(evt.Chat)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", evt.Chat, err)
	}
	sender, err := types.ParseJID(evt.Sender)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", evt.Sender, err)
	}
	return w.client.MarkRead(ctx, []types.MessageID{types.MessageID(evt.ID)}, time.Now(), chat, sender)
}

// DownloadAudio fetches the audio bytes for an event. On an expired media
// ticket it asks the sender's device to re-upload; the refreshed payload
// arrives as a new event, so this download still reports failure.
func (w *WhatsApp) DownloadAudio(ctx context.Context, evt *domain.InboundEvent) ([]byte, error) {
	raw, ok := evt.Raw.(*events.Message)
	if !ok {
		return nil, errors.New("event carries no transport handle")
	}
	audio := unwrapRaw(raw.Message).GetAudioMessage()
	if audio == nil {
		return nil, errors.New("event carries no audio payload")
	}

	data, err := w.client.Download(ctx, audio)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, whatsmeow.ErrMediaDownloadFailedWith404) || errors.Is(err, whatsmeow.ErrMediaDownloadFailedWith410) {
		if retryErr := w.client.SendMediaRetryReceipt(ctx, &raw.Info, audio.GetMediaKey()); retryErr != nil {
			w.logger.Warn("media retry receipt failed", "err", retryErr)
		}
	}
	return nil, fmt.Errorf("download audio: %w", err)
}
