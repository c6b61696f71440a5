package envelope

import (
	"testing"

	"salonbot/internal/domain"
)

func eventWith(env *domain.Envelope) *domain.InboundEvent {
	return &domain.InboundEvent{Chat: "33612345678@s.whatsapp.net", Envelope: env}
}

func TestExtract_Conversation(t *testing.T) {
	res := Extract(eventWith(&domain.Envelope{Kind: domain.KindText, Text: "hello"}))
	if res.Text != "hello" || res.HasAudio() {
		t.Errorf("got %+v", res)
	}
}

func TestExtract_ExtendedText(t *testing.T) {
	res := Extract(eventWith(&domain.Envelope{Kind: domain.KindExtendedText, Text: "quoted reply"}))
	if res.Text != "quoted reply" {
		t.Errorf("got %q", res.Text)
	}
}

func TestExtract_AudioDescriptorOnly(t *testing.T) {
	desc := &domain.AudioDescriptor{MimeType: "audio/ogg; codecs=opus", DurationSeconds: 7, VoiceNote: true}
	res := Extract(eventWith(&domain.Envelope{Kind: domain.KindAudio, Audio: desc}))
	if !res.HasAudio() {
		t.Fatal("expected audio descriptor")
	}
	if res.Audio != desc {
		t.Error("descriptor should pass through without modification")
	}
	if res.Text != "" {
		t.Errorf("audio result should carry no text, got %q", res.Text)
	}
}

func TestExtract_WrappedText(t *testing.T) {
	env := &domain.Envelope{
		Kind:  domain.KindEphemeral,
		Inner: &domain.Envelope{Kind: domain.KindText, Text: "disappearing"},
	}
	res := Extract(eventWith(env))
	if res.Text != "disappearing" {
		t.Errorf("got %q", res.Text)
	}
}

func TestExtract_UnknownKind(t *testing.T) {
	res := Extract(eventWith(&domain.Envelope{Kind: domain.KindUnknown}))
	if res.Text != "" || res.HasAudio() {
		t.Errorf("unknown payload should yield empty text, got %+v", res)
	}
}

func TestExtract_NilEnvelope(t *testing.T) {
	res := Extract(eventWith(nil))
	if res.Text != "" || res.HasAudio() {
		t.Errorf("nil envelope should yield empty text, got %+v", res)
	}
}

func TestExtract_MalformedYieldsEmpty(t *testing.T) {
	env := &domain.Envelope{Kind: domain.KindEphemeral}
	env.Inner = env
	res := Extract(eventWith(env))
	if res.Text != "" || res.HasAudio() {
		t.Errorf("malformed envelope should yield empty text, got %+v", res)
	}
}
