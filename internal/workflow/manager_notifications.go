package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"meetcap/internal/logging"
	"meetcap/internal/notifications"
	"meetcap/internal/services"
	"meetcap/internal/session"
)

func (m *Manager) notifySessionStarted(ctx context.Context, logger *slog.Logger, desc session.Descriptor) {
	m.publish(ctx, logger, notifications.EventSessionStarted, notifications.Payload{
		"meetingID": desc.MeetingID,
		"username":  desc.Username,
	})
}

func (m *Manager) notifySessionCompleted(ctx context.Context, logger *slog.Logger, desc session.Descriptor, duration time.Duration) {
	m.publish(ctx, logger, notifications.EventSessionCompleted, notifications.Payload{
		"meetingID": desc.MeetingID,
		"duration":  duration,
	})
}

func (m *Manager) notifySessionFailed(ctx context.Context, logger *slog.Logger, desc session.Descriptor, err error) {
	m.publish(ctx, logger, notifications.EventSessionFailed, notifications.Payload{
		"meetingID": desc.MeetingID,
		"kind":      services.Kind(err),
		"error":     err,
	})
}

func (m *Manager) notifyProcessingCompleted(ctx context.Context, logger *slog.Logger, desc session.Descriptor) {
	m.publish(ctx, logger, notifications.EventProcessingCompleted, notifications.Payload{
		"meetingID": desc.MeetingID,
	})
}

func (m *Manager) notifyError(ctx context.Context, logger *slog.Logger, label string, err error) {
	m.publish(ctx, logger, notifications.EventError, notifications.Payload{
		"context": label,
		"error":   err,
	})
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
