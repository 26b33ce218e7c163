package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"meetcap/internal/config"
)

const userAgent = "meetcap/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventSessionStarted      Event = "session_started"
	EventSessionCompleted    Event = "session_completed"
	EventSessionFailed       Event = "session_failed"
	EventProcessingCompleted Event = "processing_completed"
	EventError               Event = "error"
	EventTest                Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventSessionStarted:      cfg.Notifications.SessionStart,
			EventSessionCompleted:    cfg.Notifications.SessionComplete,
			EventProcessingCompleted: cfg.Notifications.SessionComplete,
			EventSessionFailed:       cfg.Notifications.Errors,
			EventError:               cfg.Notifications.Errors,
			EventTest:                true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, fields Payload) error {
	if !n.enabled[event] {
		return nil
	}
	data, ok := format(event, fields)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func format(event Event, fields Payload) (payload, bool) {
	meeting := fields.str("meetingID")
	switch event {
	case EventSessionStarted:
		message := fmt.Sprintf("🎙️ Recording started: %s", meeting)
		if user := fields.str("username"); user != "" {
			message = fmt.Sprintf("%s (for %s)", message, user)
		}
		return payload{
			title:   "Meetcap - Recording Started",
			message: message,
			tags:    []string{"meetcap", "session", "started"},
		}, true
	case EventSessionCompleted:
		message := fmt.Sprintf("✅ Recording complete: %s", meeting)
		if d, ok := fields["duration"].(time.Duration); ok && d > 0 {
			message = fmt.Sprintf("%s in %s", message, d.Round(time.Second))
		}
		return payload{
			title:   "Meetcap - Recording Complete",
			message: message,
			tags:    []string{"meetcap", "session", "completed"},
		}, true
	case EventSessionFailed:
		kind := strings.ReplaceAll(fields.str("kind"), "_", " ")
		title := "Meetcap - Recording Failed"
		if kind != "" {
			title = fmt.Sprintf("%s (%s)", title, cases.Title(language.Und).String(kind))
		}
		return payload{
			title:    title,
			message:  fmt.Sprintf("❌ Recording failed: %s: %s", meeting, fields.str("error")),
			tags:     []string{"meetcap", "session", "failed"},
			priority: "high",
		}, true
	case EventProcessingCompleted:
		return payload{
			title:   "Meetcap - Minutes Ready",
			message: fmt.Sprintf("📝 Transcript and minutes ready: %s", meeting),
			tags:    []string{"meetcap", "processing", "completed"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := fields.str("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if msg := fields.str("error"); msg != "" {
			builder.WriteString(msg)
		} else {
			builder.WriteString("unknown")
		}
		return payload{
			title:    "Meetcap - Error",
			message:  builder.String(),
			tags:     []string{"meetcap", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "Meetcap - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"meetcap", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (p Payload) str(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
