package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salonbot/internal/contact"
	"salonbot/internal/domain"
	"salonbot/internal/metrics"
)

// acquireAudio fetches the payload bytes through the connection-bound
// media fetcher and attaches the sender metadata the backend receives.
// Any fetch failure is recoverable for the caller.
func (r *Router) acquireAudio(ctx context.Context, evt *domain.InboundEvent, desc *domain.AudioDescriptor) (*domain.AudioPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, r.mediaTimeout)
	defer cancel()

	data, err := r.fetch(ctx, evt)
	if err != nil {
		metrics.AudioDownloadFailures.Inc()
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	metrics.AudioDownloads.Inc()

	phone := contact.ExtractPhone(evt.Sender)
	return &domain.AudioPayload{
		Data:            data,
		MimeType:        desc.MimeType,
		FileName:        audioFileName(phone, desc, evt.Timestamp),
		VoiceNote:       desc.VoiceNote,
		DurationSeconds: desc.DurationSeconds,
		SizeBytes:       desc.SizeBytes,
		SenderPhone:     phone,
		SenderName:      evt.PushName,
	}, nil
}

// extensionForMime classifies the file extension from known mime-type
// substrings, falling back to a generic "audio" extension.
func extensionForMime(mime string) string {
	switch {
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "mpeg"):
		return "mp3"
	case strings.Contains(mime, "mp4"):
		return "m4a"
	case strings.Contains(mime, "wav"):
		return "wav"
	default:
		return "audio"
	}
}

var timestampSanitizer = strings.NewReplacer(":", "-", ".", "-")

// audioFileName builds "voice_<phone>_<timestamp>.<ext>" (or "audio_" for
// non-voice-note files) with filesystem-safe timestamp separators.
func audioFileName(phone string, desc *domain.AudioDescriptor, ts time.Time) string {
	prefix := "audio"
	if desc.VoiceNote {
		prefix = "voice"
	}
	stamp := timestampSanitizer.Replace(ts.UTC().Format("2006-01-02T15:04:05.000Z"))
	return fmt.Sprintf("%s_%s_%s.%s", prefix, phone, stamp, extensionForMime(desc.MimeType))
}
