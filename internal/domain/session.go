package domain

import "context"

// PresenceState is the typing indicator state sent to a chat.
type PresenceState string

const (
	PresenceComposing PresenceState = "composing"
	PresencePaused    PresenceState = "paused"
)

// Session is the live protocol connection surface the router depends on.
// The channel adapter implements it; tests substitute fakes.
type Session interface {
	// SendText delivers a plain text message to a chat.
	SendText(ctx context.Context, to string, text string) error
	// SendMentionReply sends text prefixed with an @-tag for the event's
	// sender, quoting the original message. Implementations fall back to
	// a plain "<name>: <text>" send when tagging fails.
	SendMentionReply(ctx context.Context, evt *InboundEvent, text string) error
	// SendPresence updates the typing indicator for a chat. Best-effort.
	SendPresence(ctx context.Context, to string, state PresenceState) error
	// MarkRead issues a read receipt for the event. Best-effort.
	MarkRead(ctx context.Context, evt *InboundEvent) error
}

// MediaFetcher retrieves the raw media bytes for an event. It is a
// capability bound to the live connection; the caller owns the timeout.
type MediaFetcher func(ctx context.Context, evt *InboundEvent) ([]byte, error)

// ConnectionState is the observed state of the protocol connection.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// CloseReason describes why the connection dropped. LoggedOut is terminal:
// the stored credentials are invalid and re-pairing is required.
type CloseReason struct {
	LoggedOut bool
	Code      int
	Err       error
}
