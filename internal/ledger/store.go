package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"meetcap/internal/retry"
)

// Store is the SQLite-backed ledger. It is safe for concurrent use; all
// statements share a single connection.
type Store struct {
	db    *sql.DB
	path  string
	clock clockwork.Clock
}

// Option configures Open.
type Option func(*Store)

// WithClock sets the clock used for timestamps the caller leaves zero and for
// busy backoff.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

const (
	busyAttempts  = 5
	busyBaseDelay = 10 * time.Millisecond
	busyMaxDelay  = 200 * time.Millisecond
	timeLayout    = "2006-01-02T15:04:05.000000000Z07:00"
)

var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// Open creates or opens the ledger at path and brings its schema up to date.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range connPragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) now() time.Time { return s.clock.Now() }

// withBusyRetry runs op again when SQLite reports the database locked,
// doubling the pause each time.
func (s *Store) withBusyRetry(ctx context.Context, op func(context.Context) error) error {
	delay := busyBaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil || !isBusy(err) || attempt == busyAttempts {
			return err
		}
		if sleepErr := retry.Sleep(ctx, s.clock, delay); sleepErr != nil {
			return sleepErr
		}
		delay = min(delay*2, busyMaxDelay)
	}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = orBackground(ctx)
	var res sql.Result
	err := s.withBusyRetry(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func isBusy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == 5 { // SQLITE_BUSY and its extended codes
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
