package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meetcap/internal/config"
)

const (
	formatConsole = "console"
	formatJSON    = "json"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// OutputPaths and ErrorOutputPaths accept "stdout", "stderr" or file
	// paths. Both lists feed the same writer; duplicates are opened once.
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
	// RunID, when set, is stamped on every record as run_id.
	RunID string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewHandler builds the handler behind New.
func NewHandler(opts Options) (slog.Handler, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = formatConsole
	}
	if format != formatConsole && format != formatJSON {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	errPaths := opts.ErrorOutputPaths
	if len(errPaths) == 0 {
		errPaths = []string{"stderr"}
	}
	out, err := sinks(append(append([]string(nil), paths...), errPaths...))
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	addSource := opts.Development || level.Level() <= slog.LevelDebug

	var handler slog.Handler
	if format == formatJSON {
		handler = newJSONHandler(out, level, addSource)
	} else {
		handler = newConsoleHandler(out, level, addSource)
	}
	if id := strings.TrimSpace(opts.RunID); id != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String(FieldRunID, id)})
	}
	return handler, nil
}

// NewFromConfig builds the logger used by one-shot CLI commands: stdout plus
// meetcap.log under paths.log_dir.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: formatConsole})
	}
	paths := []string{"stdout"}
	if dir := cfg.Paths.LogDir; dir != "" {
		paths = append(paths, filepath.Join(dir, "meetcap.log"))
	}
	return New(Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      paths,
		ErrorOutputPaths: paths,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// sinks opens every distinct destination and joins them into one writer.
func sinks(targets []string) (io.Writer, error) {
	opened := make(map[string]bool, len(targets))
	var writers []io.Writer
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" || opened[target] {
			continue
		}
		opened[target] = true
		switch target {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file, err := openAppend(target)
			if err != nil {
				return nil, err
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// newJSONHandler emits records with a "ts" key in RFC 3339 UTC, lowercase
// levels, and file:line sources.
func newJSONHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
				if a.Value.Kind() == slog.KindTime {
					a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
					a.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return a
		},
	})
}
