package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"meetcap/internal/config"
	"meetcap/internal/daemon"
	"meetcap/internal/ledger"
	"meetcap/internal/logging"
	"meetcap/internal/notifications"
	"meetcap/internal/preflight"
	"meetcap/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the meetcap daemon runtime loop and blocks until SIGINT/SIGTERM
// or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("meetcap-%s.log", runID))

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		RunID:            uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update meetcap.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "meetcap-*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(signalCtx, logger, cfg)

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		logger.Error("open session ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	managerOpts := []workflow.ManagerOption{
		workflow.WithLedger(store),
		workflow.WithNotifier(notifier),
	}
	if post := NewPostProcessor(signalCtx, cfg, logger); post != nil {
		managerOpts = append(managerOpts, workflow.WithPostProcessor(post))
	}
	manager := workflow.NewManager(cfg, logger, managerOpts...)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and the api_bind address"),
			logging.String(logging.FieldImpact, "no meetings will be recorded"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("meetcap daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "meetcap.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("transcription_backend", cfg.Transcription.Backend),
		logging.Bool("processing_enabled", cfg.Processing.Enabled),
		logging.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
		logging.Bool("archive_enabled", cfg.Archive.Enabled),
		logging.Bool("credentials_present", strings.TrimSpace(cfg.Browser.Email) != ""),
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		key := strings.ToLower(strings.ReplaceAll(dep.Name, " ", "_"))
		attrs = append(attrs, logging.Bool(key+"_available", dep.Available))
		if !dep.Available && !dep.Optional {
			logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
				logging.String("dependency", dep.Name),
				logging.String("command", dep.Command),
				logging.String("detail", dep.Detail),
				logging.String(logging.FieldImpact, "sessions will fail until it is installed"),
			)
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run meetcap doctor for details"),
		)
	}
}
