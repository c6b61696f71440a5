// Package forward submits normalized messages to the backend API.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"salonbot/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	receivePath    = "/messages/receive"
)

// Config configures the forwarding client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client talks to the backend's message intake endpoint. It performs no
// retries; a forward is one-shot best-effort and failures surface to the
// caller as errors.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a forwarding client with a pooled transport.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  newHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

type textSubmission struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id"`
}

// apiResponse mirrors the backend's reply body. Both fields are optional.
type apiResponse struct {
	Received bool   `json:"received"`
	Reply    string `json:"reply"`
}

// Forward submits content and returns the backend's result. Transport
// failures, timeouts, and non-2xx statuses come back as errors.
func (c *Client) Forward(ctx context.Context, content domain.NormalizedContent, senderID string) (*domain.ForwardResult, error) {
	switch content.Kind {
	case domain.ContentText:
		return c.forwardText(ctx, content.Text, senderID)
	case domain.ContentAudio:
		if content.Audio == nil {
			return nil, errors.New("forward: audio content without payload")
		}
		return c.forwardAudio(ctx, content.Audio, senderID)
	default:
		return nil, fmt.Errorf("forward: unsupported content kind %d", content.Kind)
	}
}

func (c *Client) forwardText(ctx context.Context, message, senderID string) (*domain.ForwardResult, error) {
	body, err := json.Marshal(textSubmission{Type: "text", Message: message, SenderID: senderID})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	c.logger.Debug("forwarding text", "sender", senderID, "len", len(message))
	return c.post(ctx, "application/json", bytes.NewReader(body))
}

func (c *Client) forwardAudio(ctx context.Context, audio *domain.AudioPayload, senderID string) (*domain.ForwardResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("type", "audio"); err != nil {
		return nil, fmt.Errorf("write field: %w", err)
	}
	if err := writer.WriteField("sender_id", senderID); err != nil {
		return nil, fmt.Errorf("write field: %w", err)
	}

	// CreateFormFile hardcodes application/octet-stream; build the part by
	// hand so the declared mime type survives.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.FileName))
	header.Set("Content-Type", audio.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	c.logger.Debug("forwarding audio",
		"sender", senderID,
		"bytes", len(audio.Data),
		"mime", audio.MimeType,
		"voice_note", audio.VoiceNote,
	)
	return c.post(ctx, writer.FormDataContentType(), &body)
}

func (c *Client) post(ctx context.Context, contentType string, body io.Reader) (*domain.ForwardResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+receivePath, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		// 2xx with an unparsable body still counts as delivered.
		c.logger.Warn("backend response not decodable", "err", err)
	}
	return &domain.ForwardResult{Received: parsed.Received, Reply: parsed.Reply}, nil
}
