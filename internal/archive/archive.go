package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"meetcap/internal/config"
	"meetcap/internal/logging"
	"meetcap/internal/services"
	"meetcap/internal/textutil"
)

// Provider stores one file under a slash-separated key.
type Provider interface {
	Name() string
	Upload(ctx context.Context, localPath, key string) error
}

// Archiver uploads the artifacts of a session through a Provider.
type Archiver struct {
	provider Provider
	prefix   string
	logger   *slog.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) {
		if logger != nil {
			a.logger = logging.NewComponentLogger(logger, "archive")
		}
	}
}

// NewArchiver wraps provider. prefix is prepended to every key.
func NewArchiver(provider Provider, prefix string, opts ...Option) *Archiver {
	a := &Archiver{
		provider: provider,
		prefix:   strings.Trim(strings.TrimSpace(prefix), "/"),
		logger:   logging.NewComponentLogger(logging.NewNop(), "archive"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// New builds the archiver selected by the archive section. It returns nil
// when archiving is disabled.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Archiver, error) {
	if cfg == nil || !cfg.Archive.Enabled {
		return nil, nil
	}
	var (
		provider Provider
		err      error
	)
	switch cfg.Archive.Provider {
	case config.ArchiveProviderLocal:
		provider, err = NewLocalProvider(cfg.Archive.LocalDir)
	case config.ArchiveProviderS3, "":
		provider, err = NewS3Provider(ctx, S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			UsePathStyle:    cfg.Archive.UsePathStyle,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
	default:
		err = fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "init", cfg.Archive.Provider, err)
	}
	return NewArchiver(provider, cfg.Archive.Prefix, opts...), nil
}

// Key returns the object key for file of meetingID.
func (a *Archiver) Key(meetingID, file string) string {
	parts := []string{}
	if a.prefix != "" {
		parts = append(parts, a.prefix)
	}
	parts = append(parts, textutil.KeyToken(meetingID))
	if dir := filepath.Base(filepath.Dir(file)); dir != "." && dir != string(filepath.Separator) {
		parts = append(parts, dir)
	}
	parts = append(parts, filepath.Base(file))
	return path.Join(parts...)
}

// Archive uploads each file. Every file is attempted; the returned error
// joins the individual failures.
func (a *Archiver) Archive(ctx context.Context, meetingID string, files []string) error {
	if a == nil || a.provider == nil {
		return errors.New("archive: no provider configured")
	}
	var errs []error
	uploaded := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := a.Key(meetingID, file)
		if err := a.provider.Upload(ctx, file, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(file), err))
			continue
		}
		uploaded++
		a.logger.Debug("artifact archived", logging.String("file", file), logging.String("key", key))
	}
	a.logger.Info("session artifacts archived",
		logging.String(logging.FieldEventType, "archive_completed"),
		logging.String(logging.FieldMeetingID, meetingID),
		logging.String("provider", a.provider.Name()),
		logging.Int("uploaded", uploaded),
		logging.Int("failed", len(errs)),
	)
	if len(errs) > 0 {
		return services.Wrap(services.ErrTransient, "archive", "upload", fmt.Sprintf("%d of %d files failed", len(errs), len(files)), errors.Join(errs...))
	}
	return nil
}
