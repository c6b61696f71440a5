package domain

import "time"

// PayloadKind identifies the decoded shape of an envelope node. The set is
// closed: the channel decoder maps every protocol message onto one of these,
// and anything it does not recognize becomes KindUnknown.
type PayloadKind int

const (
	KindUnknown PayloadKind = iota
	KindText
	KindExtendedText
	KindAudio
	KindEphemeral
	KindViewOnce
	KindViewOnceV2
	KindViewOnceV2Extension
)

// IsWrapper reports whether the kind is a transport wrapper layer that
// carries an inner envelope rather than content of its own.
func (k PayloadKind) IsWrapper() bool {
	switch k {
	case KindEphemeral, KindViewOnce, KindViewOnceV2, KindViewOnceV2Extension:
		return true
	}
	return false
}

func (k PayloadKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindExtendedText:
		return "extended-text"
	case KindAudio:
		return "audio"
	case KindEphemeral:
		return "ephemeral"
	case KindViewOnce:
		return "view-once"
	case KindViewOnceV2:
		return "view-once-v2"
	case KindViewOnceV2Extension:
		return "view-once-v2-extension"
	default:
		return "unknown"
	}
}

// Envelope is one node of the nested wrapper structure around a message
// payload. Wrapper kinds set Inner; payload kinds set Text or Audio.
type Envelope struct {
	Kind  PayloadKind
	Text  string
	Audio *AudioDescriptor
	Inner *Envelope
}

// AudioDescriptor describes an audio payload before its bytes are fetched.
type AudioDescriptor struct {
	MimeType        string
	DurationSeconds int
	SizeBytes       int64
	VoiceNote       bool
}

// InboundEvent is one message arrival, decoded by the channel. It is
// read-only to the pipeline and discarded after processing.
type InboundEvent struct {
	ID          string
	Chat        string // conversation JID; reply target
	Sender      string // author JID (group participant for group chats)
	PushName    string
	IsGroup     bool
	IsStatus    bool
	IsBroadcast bool
	MentionsMe  bool
	Envelope    *Envelope
	Timestamp   time.Time

	// Raw is an opaque transport handle understood only by the channel
	// that produced the event. It carries whatever the protocol client
	// needs for quoting and media download.
	Raw any
}

// ContentKind tags a NormalizedContent value.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentAudio
)

// NormalizedContent is what the pipeline hands to the forwarding client:
// either plain text or a fetched audio payload with its metadata.
type NormalizedContent struct {
	Kind  ContentKind
	Text  string
	Audio *AudioPayload
}

// TextContent wraps a string as forwardable text content.
func TextContent(s string) NormalizedContent {
	return NormalizedContent{Kind: ContentText, Text: s}
}

// AudioContent wraps a fetched audio payload as forwardable content.
func AudioContent(a *AudioPayload) NormalizedContent {
	return NormalizedContent{Kind: ContentAudio, Audio: a}
}

// AudioPayload is a fully acquired audio message: raw bytes plus the
// metadata the backend receives alongside them.
type AudioPayload struct {
	Data            []byte
	MimeType        string
	FileName        string
	VoiceNote       bool
	DurationSeconds int
	SizeBytes       int64
	SenderPhone     string
	SenderName      string
}

// ForwardResult is the backend's answer to a forward attempt.
type ForwardResult struct {
	Received bool
	Reply    string
}
