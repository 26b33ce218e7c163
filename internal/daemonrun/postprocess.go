package daemonrun

import (
	"context"
	"log/slog"

	"meetcap/internal/archive"
	"meetcap/internal/config"
	"meetcap/internal/logging"
	"meetcap/internal/processing"
	"meetcap/internal/workflow"
)

// NewPostProcessor builds the transcript pipeline from configuration, or
// returns nil when processing is disabled. An archive that cannot be
// initialised is logged and skipped; the transcripts still run.
func NewPostProcessor(ctx context.Context, cfg *config.Config, logger *slog.Logger) workflow.PostProcessor {
	if cfg == nil || !cfg.Processing.Enabled {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var opts []processing.Option
	archiver, err := archive.New(ctx, cfg, archive.WithLogger(logger))
	switch {
	case err != nil:
		logging.WarnWithContext(logger, "archive unavailable", "archive_init_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recordings stay in the local storage directory only"),
			logging.String(logging.FieldErrorHint, "check the archive section of the config"),
		)
	case archiver != nil:
		opts = append(opts, processing.WithArchiver(archiver))
	}
	return processing.NewPipeline(cfg, opts...)
}
