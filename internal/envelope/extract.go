package envelope

import "salonbot/internal/domain"

// Result is the outcome of content extraction: either Text (possibly
// empty) or an audio descriptor whose bytes have not been fetched yet.
type Result struct {
	Text  string
	Audio *domain.AudioDescriptor
}

// HasAudio reports whether the event carried an audio payload.
func (r Result) HasAudio() bool { return r.Audio != nil }

// Extract unwraps the event's envelope and returns its content. Audio
// comes back as a descriptor only; byte retrieval is the acquirer's job.
// Unknown or malformed envelopes yield empty text, never an error.
func Extract(evt *domain.InboundEvent) Result {
	if evt == nil {
		return Result{}
	}
	env, err := Unwrap(evt.Envelope)
	if err != nil || env == nil {
		return Result{}
	}

	switch env.Kind {
	case domain.KindText, domain.KindExtendedText:
		return Result{Text: env.Text}
	case domain.KindAudio:
		return Result{Audio: env.Audio}
	default:
		// KindUnknown, or a wrapper kind that Unwrap could not resolve.
		return Result{}
	}
}
