// Package liveness decides whether a joined meeting is still running by
// inspecting the browser page.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"meetcap/internal/logging"
	"meetcap/internal/services"
)

// DefaultDomain is the host a live meeting page stays on.
const DefaultDomain = "meet.google.com"

// EndPhrases are matched case-insensitively against the visible page text.
var EndPhrases = []string{
	"rejoin",
	"the meeting has ended",
	"return to home screen",
	"meeting has been ended by host",
}

// Inspector is the slice of the browser session the monitor reads.
type Inspector interface {
	CurrentURL(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, label string) string
}

// Monitor reports whether the meeting is still active.
type Monitor struct {
	inspector Inspector
	domain    string
	logger    *slog.Logger
	checks    int
}

// New returns a monitor that expects pages on domain. An empty domain uses
// DefaultDomain.
func New(inspector Inspector, domain string, logger *slog.Logger) *Monitor {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		domain = DefaultDomain
	}
	return &Monitor{
		inspector: inspector,
		domain:    domain,
		logger:    logging.NewComponentLogger(logger, "liveness"),
	}
}

// IsActive returns false only when the page has left the meeting domain or
// shows an end-of-meeting phrase. Inspection errors count as active.
func (m *Monitor) IsActive(ctx context.Context) bool {
	m.checks++
	logger := logging.WithContext(ctx, m.logger)
	m.inspector.Screenshot(ctx, fmt.Sprintf("meeting_check_%d", m.checks))

	url, err := m.inspector.CurrentURL(ctx)
	if err != nil {
		m.failOpen(logger, "current url", err)
		return true
	}
	if !strings.Contains(strings.ToLower(url), m.domain) {
		logger.Info("meeting page left expected domain",
			logging.String(logging.FieldEventType, "meeting_ended"),
			logging.String("url", url),
			logging.String("expected_domain", m.domain),
		)
		return false
	}

	text, err := m.inspector.VisibleText(ctx)
	if err != nil {
		m.failOpen(logger, "visible text", err)
		return true
	}
	if phrase, ok := EndPhrase(text); ok {
		logger.Info("meeting end indicator found",
			logging.String(logging.FieldEventType, "meeting_ended"),
			logging.String("phrase", phrase),
		)
		return false
	}
	logger.Debug("meeting still active", logging.Int("check", m.checks))
	return true
}

// EndPhrase returns the first end-of-meeting phrase contained in text.
func EndPhrase(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range EndPhrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

func (m *Monitor) failOpen(logger *slog.Logger, operation string, err error) {
	logging.WarnWithContext(logger, "meeting inspection failed; assuming still active", "liveness_inspection",
		logging.Error(services.Wrap(services.ErrInspection, "liveness", operation, "", err)),
		logging.String(logging.FieldImpact, "meeting end may be detected late"),
	)
}
