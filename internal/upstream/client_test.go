package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riicode/rcbuilder/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []model.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

func newTestClient(t *testing.T, server *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	var buf bytes.Buffer
	return NewClient(Config{
		BaseURL:    server.URL,
		Timeout:    timeout,
		HTTPClient: server.Client(),
	}, newTestLogger(&buf))
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			},
		},
	})
}

func TestComplete_ReturnsFirstChoiceContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("X-Deepinfra-Source"); got != "web-page" {
			t.Errorf("X-Deepinfra-Source = %q, want web-page", got)
		}
		if got := r.Header.Get("Referer"); got != "https://deepinfra.com/chat" {
			t.Errorf("Referer = %q", got)
		}

		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "meta/llama" {
			t.Errorf("model = %q, want meta/llama", req.Model)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}

		writeCompletion(w, "hi there")
	}))
	defer server.Close()

	c := newTestClient(t, server, 5*time.Second)
	got, err := c.Complete(context.Background(), []model.ChatMessage{
		{Role: "system", Content: "be nice"},
		{Role: "user", Content: "hello"},
	}, "meta/llama")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "hi there" {
		t.Errorf("content = %q, want %q", got, "hi there")
	}
}

func TestComplete_SlowUpstream_ReturnsTimeoutWithoutRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c := newTestClient(t, server, 50*time.Millisecond)
	_, err := c.Complete(context.Background(), []model.ChatMessage{{Role: "user", Content: "x"}}, "m")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestComplete_NoChoices_ReturnsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, 5*time.Second)
	_, err := c.Complete(context.Background(), []model.ChatMessage{{Role: "user", Content: "x"}}, "m")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestComplete_EmptyContent_ReturnsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "")
	}))
	defer server.Close()

	c := newTestClient(t, server, 5*time.Second)
	_, err := c.Complete(context.Background(), []model.ChatMessage{{Role: "user", Content: "x"}}, "m")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestComplete_ErrorStatus_ReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, 5*time.Second)
	_, err := c.Complete(context.Background(), []model.ChatMessage{{Role: "user", Content: "x"}}, "m")

	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if upErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", upErr.StatusCode, http.StatusBadGateway)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("error status must not be classified as timeout")
	}
}

func TestComplete_ConnectionRefused_ReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, server, 5*time.Second)
	server.Close()

	_, err := c.Complete(context.Background(), []model.ChatMessage{{Role: "user", Content: "x"}}, "m")
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
}
