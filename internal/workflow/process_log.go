package workflow

import (
	"io"
	"log/slog"

	"meetcap/internal/config"
	"meetcap/internal/logging"
	"meetcap/internal/session"
)

// openProcessLog tees base into the session's process.log. The returned
// closer releases the file; it is never nil.
func openProcessLog(cfg *config.Config, base *slog.Logger, layout session.Layout) (*slog.Logger, io.Closer) {
	format, level := "json", "info"
	if cfg != nil {
		if cfg.Logging.Format != "" {
			format = cfg.Logging.Format
		}
		if cfg.Logging.Level != "" {
			level = cfg.Logging.Level
		}
	}
	handler, closer, err := logging.OpenFileHandler(layout.ProcessLogPath(), format, level)
	if err != nil {
		logging.WarnWithContext(base, "process log unavailable", "process_log_failed",
			logging.String("path", layout.ProcessLogPath()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "session logs go to the daemon log only"),
		)
		return base, nopCloser{}
	}
	return logging.TeeLogger(base, handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
