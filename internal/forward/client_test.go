package forward

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salonbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(url string) *Client {
	return New(Config{BaseURL: url, Timeout: 2 * time.Second, Logger: testLogger()})
}

func TestForwardText_BodyAndReply(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/receive" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"received": true, "reply": "hi"})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Forward(context.Background(), domain.TextContent("hello"), "33612345678")
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if got["type"] != "text" || got["message"] != "hello" || got["sender_id"] != "33612345678" {
		t.Errorf("unexpected submission %v", got)
	}
	if !res.Received || res.Reply != "hi" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestForwardText_EmptyResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Forward(context.Background(), domain.TextContent("hello"), "1")
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if res.Reply != "" {
		t.Errorf("expected no reply, got %q", res.Reply)
	}
}

func TestForwardAudio_MultipartShape(t *testing.T) {
	audio := &domain.AudioPayload{
		Data:     []byte("OggS...opus"),
		MimeType: "audio/ogg; codecs=opus",
		FileName: "voice_33612345678_2026-08-27T10-00-00-000Z.ogg",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if v := r.FormValue("type"); v != "audio" {
			t.Errorf("type = %q", v)
		}
		if v := r.FormValue("sender_id"); v != "33612345678" {
			t.Errorf("sender_id = %q", v)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != audio.FileName {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != audio.MimeType {
			t.Errorf("part content type = %q", ct)
		}
		data, _ := io.ReadAll(file)
		if string(data) != string(audio.Data) {
			t.Error("file bytes do not round-trip")
		}
		json.NewEncoder(w).Encode(map[string]any{"received": true})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Forward(context.Background(), domain.AudioContent(audio), "33612345678")
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if !res.Received {
		t.Error("expected received=true")
	}
}

func TestNew_NilLoggerDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL})
	if _, err := client.Forward(context.Background(), domain.TextContent("hello"), "1"); err != nil {
		t.Fatalf("forward with default logger: %v", err)
	}
}

func TestForward_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Forward(context.Background(), domain.TextContent("x"), "1")
	if err == nil {
		t.Fatal("expected error for 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestForward_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down immediately to force a refused connection

	_, err := newTestClient(srv.URL).Forward(context.Background(), domain.TextContent("x"), "1")
	if err == nil {
		t.Fatal("expected transport error")
	}
}

func TestForward_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond, Logger: testLogger()})
	_, err := client.Forward(context.Background(), domain.TextContent("x"), "1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestForward_AudioWithoutPayload(t *testing.T) {
	_, err := newTestClient("http://localhost:0").Forward(context.Background(), domain.NormalizedContent{Kind: domain.ContentAudio}, "1")
	if err == nil {
		t.Fatal("expected error for missing payload")
	}
}
