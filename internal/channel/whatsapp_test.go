package channel

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"salonbot/internal/domain"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeEnvelope_Conversation(t *testing.T) {
	env := decodeEnvelope(&waE2E.Message{Conversation: proto.String("hello")}, 0)
	if env.Kind != domain.KindText || env.Text != "hello" {
		t.Errorf("got %+v", env)
	}
}

func TestDecodeEnvelope_ExtendedText(t *testing.T) {
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted")}}
	env := decodeEnvelope(msg, 0)
	if env.Kind != domain.KindExtendedText || env.Text != "quoted" {
		t.Errorf("got %+v", env)
	}
}

func TestDecodeEnvelope_Audio(t *testing.T) {
	msg := &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
		Mimetype:   proto.String("audio/ogg; codecs=opus"),
		Seconds:    proto.Uint32(7),
		FileLength: proto.Uint64(4096),
		PTT:        proto.Bool(true),
	}}
	env := decodeEnvelope(msg, 0)
	if env.Kind != domain.KindAudio {
		t.Fatalf("got %+v", env)
	}
	audio := env.Audio
	if audio.MimeType != "audio/ogg; codecs=opus" || audio.DurationSeconds != 7 ||
		audio.SizeBytes != 4096 || !audio.VoiceNote {
		t.Errorf("descriptor = %+v", audio)
	}
}

func TestDecodeEnvelope_EphemeralWrapperPreserved(t *testing.T) {
	msg := &waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{
		Message: &waE2E.Message{ViewOnceMessageV2: &waE2E.FutureProofMessage{
			Message: &waE2E.Message{Conversation: proto.String("secret")},
		}},
	}}
	env := decodeEnvelope(msg, 0)
	if env.Kind != domain.KindEphemeral {
		t.Fatalf("outer kind = %v", env.Kind)
	}
	if env.Inner == nil || env.Inner.Kind != domain.KindViewOnceV2 {
		t.Fatalf("middle = %+v", env.Inner)
	}
	inner := env.Inner.Inner
	if inner == nil || inner.Kind != domain.KindText || inner.Text != "secret" {
		t.Errorf("inner = %+v", inner)
	}
}

func TestDecodeEnvelope_UnknownPayload(t *testing.T) {
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/jpeg")}}
	env := decodeEnvelope(msg, 0)
	if env.Kind != domain.KindUnknown {
		t.Errorf("unsupported payload should decode as unknown, got %v", env.Kind)
	}
}

func TestDecodeEnvelope_Nil(t *testing.T) {
	if env := decodeEnvelope(nil, 0); env != nil {
		t.Errorf("expected nil, got %+v", env)
	}
}

func TestUnwrapRaw_NestedAudio(t *testing.T) {
	audio := &waE2E.AudioMessage{Mimetype: proto.String("audio/ogg")}
	msg := &waE2E.Message{ViewOnceMessage: &waE2E.FutureProofMessage{
		Message: &waE2E.Message{AudioMessage: audio},
	}}
	if got := unwrapRaw(msg).GetAudioMessage(); got != audio {
		t.Error("unwrapRaw should reach the wrapped audio message")
	}
}

func TestUnwrapRaw_PlainMessageUnchanged(t *testing.T) {
	msg := &waE2E.Message{Conversation: proto.String("hi")}
	if unwrapRaw(msg) != msg {
		t.Error("unwrapped message should be returned as-is")
	}
}

// The event-handler goroutine reads the stored context concurrently with
// reconnect attempts, so it must be bound once at construction and never
// reassigned by Connect.
func TestNewWhatsApp_EventContextFixedAtConstruction(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "construction")

	wa, err := NewWhatsApp(ctx, WhatsAppConfig{
		SessionDB: filepath.Join(t.TempDir(), "session.db"),
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("NewWhatsApp: %v", err)
	}
	if wa.ctx != ctx {
		t.Error("event context should be the construction context")
	}
	if wa.ctx.Value(ctxKey{}) != "construction" {
		t.Error("event context lost its values")
	}
	if wa.Paired() {
		t.Error("fresh store should have no credentials")
	}
}

func TestQRDisplay_RendersAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qr.png")
	var out bytes.Buffer

	q := &QRDisplay{ImagePath: path, Out: &out, Logger: testLogger()}
	q.ShowPairingCode("2@test-pairing-payload")

	if out.Len() == 0 {
		t.Error("expected terminal QR output")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected PNG at %s: %v", path, err)
	}
}

func TestQRDisplay_PersistFailureNonFatal(t *testing.T) {
	var out bytes.Buffer
	q := &QRDisplay{ImagePath: "/nonexistent-dir/qr.png", Out: &out, Logger: testLogger()}
	q.ShowPairingCode("2@test") // must not panic

	if out.Len() == 0 {
		t.Error("terminal output should still be rendered")
	}
}
