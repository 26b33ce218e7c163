package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meetcap/internal/services"
)

func reply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"content": content},
			},
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func fastClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithRetryBackoff(0, 0)}, opts...)
	return NewClient(Config{APIKey: "test", BaseURL: url, Model: "demo-model"}, opts...)
}

func TestCompleteSendsPromptsAndHeaders(t *testing.T) {
	var got request
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		reply(t, w, "  cleaned transcript  ")
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:      "secret",
		BaseURL:     server.URL,
		Model:       "gemini-2.0-flash",
		Referer:     "https://example.test",
		Title:       "meetcap",
		Temperature: 0.5,
	})
	text, err := client.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "cleaned transcript" {
		t.Fatalf("text = %q", text)
	}
	if got.Model != "gemini-2.0-flash" || got.Temperature != 0.5 || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Content != "user prompt" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if headers.Get("Authorization") != "Bearer secret" || headers.Get("X-Title") != "meetcap" || headers.Get("HTTP-Referer") != "https://example.test" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestCompleteValidatesInputs(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	if _, err := client.Complete(context.Background(), "", "user"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	noKey := NewClient(Config{})
	if _, err := noKey.Complete(context.Background(), "system", "user"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCompleteRetries(t *testing.T) {
	cases := []struct {
		name     string
		failures int
		fail     func(w http.ResponseWriter)
		wantErr  error
		wantHits int32
	}{
		{
			name:     "429 then success",
			failures: 2,
			fail:     func(w http.ResponseWriter) { http.Error(w, "slow down", http.StatusTooManyRequests) },
			wantHits: 3,
		},
		{
			name:     "empty reply then success",
			failures: 1,
			fail: func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"length","message":{"content":""}}]}`))
			},
			wantHits: 2,
		},
		{
			name:     "400 is final",
			failures: 10,
			fail:     func(w http.ResponseWriter) { http.Error(w, "bad model", http.StatusBadRequest) },
			wantErr:  services.ErrExternalTool,
			wantHits: 1,
		},
		{
			name:     "5xx exhausts attempts",
			failures: 10,
			fail:     func(w http.ResponseWriter) { http.Error(w, "boom", http.StatusBadGateway) },
			wantErr:  services.ErrTransient,
			wantHits: 3,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if int(hits.Add(1)) <= tc.failures {
					tc.fail(w)
					return
				}
				reply(t, w, "done")
			}))
			defer server.Close()

			text, err := fastClient(server.URL, WithRetryMaxAttempts(3)).Complete(context.Background(), "s", "u")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
			} else if err != nil || text != "done" {
				t.Fatalf("text=%q err=%v", text, err)
			}
			if hits.Load() != tc.wantHits {
				t.Fatalf("hits = %d, want %d", hits.Load(), tc.wantHits)
			}
		})
	}
}

func TestCompleteReportsAPIErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	}))
	defer server.Close()

	_, err := fastClient(server.URL).Complete(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("expected API error message, got %v", err)
	}
}

func TestCompleteStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, WithRetryBackoff(time.Hour, time.Hour))
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := client.Complete(ctx, "s", "u"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	for _, tc := range []struct {
		answer string
		ok     bool
	}{
		{"OK", true},
		{"ok.", true},
		{"I cannot help with that", false},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reply(t, w, tc.answer)
		}))
		err := fastClient(server.URL, WithRetryMaxAttempts(1)).HealthCheck(context.Background())
		server.Close()
		if tc.ok && err != nil {
			t.Fatalf("HealthCheck(%q): %v", tc.answer, err)
		}
		if !tc.ok && !errors.Is(err, services.ErrExternalTool) {
			t.Fatalf("HealthCheck(%q): expected ErrExternalTool, got %v", tc.answer, err)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, false},
		{"7", 7 * time.Second, true},
		{now.Add(3 * time.Second).Format(http.TimeFormat), 3 * time.Second, true},
		{"soon", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseRetryAfter(tc.in, now)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseRetryAfter(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
