package workflow

import (
	"context"
	"log/slog"
	"sync"

	"meetcap/internal/logging"
	"meetcap/internal/session"
)

// audioGraph tracks the machine-wide PulseAudio routing shared by every
// session of one manager. Rebuilding it resets the sinks other sessions are
// recording from, so it is built by the first session and reused until the
// last one ends.
type audioGraph struct {
	mu    sync.Mutex
	users int
}

// share wraps router so the graph is configured only when no other session
// holds it. The returned release must be called once the session has stopped
// capturing.
func (g *audioGraph) share(router session.AudioRouter, logger *slog.Logger) (session.AudioRouter, func()) {
	if router == nil {
		return nil, func() {}
	}
	s := &sharedAudio{graph: g, router: router, logger: logger}
	return s, s.release
}

type sharedAudio struct {
	graph  *audioGraph
	router session.AudioRouter
	logger *slog.Logger

	once   sync.Once
	joined bool
}

func (s *sharedAudio) ConfigureDevices(ctx context.Context) error {
	g := s.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.users > 0 {
		g.users++
		s.joined = true
		s.logger.Info("reusing audio routing of running session",
			logging.String(logging.FieldEventType, "audio_shared"),
			logging.Int("sessions", g.users),
		)
		return nil
	}
	if err := s.router.ConfigureDevices(ctx); err != nil {
		return err
	}
	g.users++
	s.joined = true
	return nil
}

func (s *sharedAudio) release() {
	s.once.Do(func() {
		g := s.graph
		g.mu.Lock()
		defer g.mu.Unlock()
		if s.joined && g.users > 0 {
			g.users--
		}
	})
}
