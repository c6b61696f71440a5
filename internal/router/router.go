// Package router drives inbound events through the bridge pipeline:
// contact policy, content extraction, audio acquisition, backend forward,
// and reply relay. It also supervises the connection lifecycle.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"salonbot/internal/contact"
	"salonbot/internal/domain"
	"salonbot/internal/envelope"
	"salonbot/internal/metrics"
)

const (
	defaultMediaTimeout = 60 * time.Second
	receiptTimeout      = 5 * time.Second

	// forwardDebounce keeps the forward from racing the read receipt.
	forwardDebounce = 10 * time.Millisecond

	audioFailedPlaceholder = "[Audio message - download failed]"
	commandPrefix          = "/"
)

// Forwarder submits normalized content to the backend.
type Forwarder interface {
	Forward(ctx context.Context, content domain.NormalizedContent, senderID string) (*domain.ForwardResult, error)
}

// Config holds the router's collaborators and tuning.
type Config struct {
	Filter       *contact.Filter
	Forwarder    Forwarder
	Session      domain.Session
	Fetch        domain.MediaFetcher
	Logger       *slog.Logger
	MediaTimeout time.Duration // default 60s
	Debounce     time.Duration // default 10ms
}

// Router processes one event at a time; it holds no mutable state of its
// own, so concurrent invocations across senders are safe.
type Router struct {
	filter       *contact.Filter
	forwarder    Forwarder
	session      domain.Session
	fetch        domain.MediaFetcher
	logger       *slog.Logger
	mediaTimeout time.Duration
	debounce     time.Duration
}

// New creates a router.
func New(cfg Config) *Router {
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = defaultMediaTimeout
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = forwardDebounce
	}
	return &Router{
		filter:       cfg.Filter,
		forwarder:    cfg.Forwarder,
		session:      cfg.Session,
		fetch:        cfg.Fetch,
		logger:       cfg.Logger,
		mediaTimeout: cfg.MediaTimeout,
		debounce:     cfg.Debounce,
	}
}

// HandleEvent runs one inbound event through the pipeline. It never lets a
// failure escape: one event's problems must not affect the next.
func (r *Router) HandleEvent(ctx context.Context, evt *domain.InboundEvent) {
	if evt == nil || evt.Envelope == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event processing panicked", "panic", rec, "chat", evt.Chat)
		}
	}()

	if evt.IsStatus || evt.IsBroadcast {
		return
	}
	if !r.filter.IsAllowed(evt.Sender, evt.IsGroup) {
		metrics.PolicyRejections.Inc()
		r.logger.Info("message ignored: contact not authorized", "chat", evt.Chat)
		return
	}
	metrics.MessagesTotal.Inc()

	r.markRead(ctx, evt)

	extracted := envelope.Extract(evt)
	audioPresent := extracted.HasAudio()

	var content domain.NormalizedContent
	if audioPresent {
		r.logger.Info("audio message received", "from", evt.Chat, "sender", evt.PushName)
		audio, err := r.acquireAudio(ctx, evt, extracted.Audio)
		if err != nil {
			// Recoverable: forward a placeholder instead of the audio.
			r.logger.Warn("audio download failed", "err", err, "chat", evt.Chat)
			content = domain.TextContent(audioFailedPlaceholder)
		} else {
			content = domain.AudioContent(audio)
		}
	} else {
		content = domain.TextContent(extracted.Text)
	}

	if !r.shouldRespond(evt, content, audioPresent) {
		r.logger.Debug("message ignored: response not warranted", "chat", evt.Chat)
		return
	}
	if content.Kind == domain.ContentText && content.Text == "" {
		r.logger.Debug("empty content, nothing to forward", "chat", evt.Chat)
		return
	}

	r.forwardAndReply(ctx, evt, content)
}

// shouldRespond decides whether the event warrants a backend call: direct
// messages always do; group messages only when the bot is mentioned, the
// text is a command, or the message carried audio.
func (r *Router) shouldRespond(evt *domain.InboundEvent, content domain.NormalizedContent, audioPresent bool) bool {
	if !evt.IsGroup {
		return true
	}
	if evt.MentionsMe || audioPresent {
		return true
	}
	return content.Kind == domain.ContentText && strings.HasPrefix(content.Text, commandPrefix)
}

// forwardAndReply runs the compose → forward → reply sequence. The typing
// indicator is scoped to this call and always cleared before returning.
func (r *Router) forwardAndReply(ctx context.Context, evt *domain.InboundEvent, content domain.NormalizedContent) {
	r.sendPresence(ctx, evt.Chat, domain.PresenceComposing)
	defer r.sendPresence(ctx, evt.Chat, domain.PresencePaused)

	time.Sleep(r.debounce)

	senderID := contact.ExtractPhone(evt.Sender)
	start := time.Now()
	result, err := r.forwarder.Forward(ctx, content, senderID)
	metrics.ForwardLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ForwardErrors.Inc()
		r.logger.Error("forward failed", "err", err, "chat", evt.Chat, "kind", content.Kind)
		return
	}
	metrics.ForwardsTotal.Inc()
	r.logger.Info("message forwarded", "chat", evt.Chat, "kind", content.Kind)

	if result == nil || result.Reply == "" {
		return
	}
	r.relayReply(ctx, evt, result.Reply)
}

// relayReply sends the backend's reply to the original sender. Mentioned
// group messages get a tagged, quoted reply; everything else plain text.
func (r *Router) relayReply(ctx context.Context, evt *domain.InboundEvent, reply string) {
	var err error
	if evt.IsGroup && evt.MentionsMe {
		err = r.session.SendMentionReply(ctx, evt, reply)
	} else {
		err = r.session.SendText(ctx, evt.Chat, reply)
	}
	if err != nil {
		r.logger.Error("reply send failed", "err", err, "chat", evt.Chat)
		return
	}
	metrics.RepliesRelayed.Inc()
	r.logger.Info("reply relayed", "chat", evt.Chat, "len", len(reply))
}

func (r *Router) markRead(ctx context.Context, evt *domain.InboundEvent) {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	if err := r.session.MarkRead(ctx, evt); err != nil {
		r.logger.Warn("mark read failed", "err", err, "chat", evt.Chat)
	}
}

func (r *Router) sendPresence(ctx context.Context, to string, state domain.PresenceState) {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	if err := r.session.SendPresence(ctx, to, state); err != nil {
		r.logger.Debug("presence update failed", "err", err, "chat", to)
	}
}
