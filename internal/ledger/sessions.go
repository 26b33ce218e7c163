package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a session row does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one dispatched capture as tracked in the ledger.
type Session struct {
	ID           int64
	MeetingID    string
	TaskID       string
	Username     string
	Link         string
	Dir          string
	State        string
	ErrorKind    string
	ErrorMessage string
	Verified     bool
	Processed    bool
	StartedAt    time.Time
	UpdatedAt    time.Time
	EndedAt      time.Time
}

// Transition is one recorded state change.
type Transition struct {
	From  string
	To    string
	Error string
	At    time.Time
}

// NewSession holds the fields known at dispatch time.
type NewSession struct {
	MeetingID string
	TaskID    string
	Username  string
	Link      string
	Dir       string
	State     string
	StartedAt time.Time
}

// Outcome closes out a session row.
type Outcome struct {
	State        string
	ErrorKind    string
	ErrorMessage string
	Verified     bool
	EndedAt      time.Time
}

const sessionColumns = `id, meeting_id, task_id, username, link, session_dir, state,
error_kind, error_message, verified, processed, started_at, updated_at, ended_at`

// StartSession inserts a session row and returns its id.
func (s *Store) StartSession(ctx context.Context, in NewSession) (int64, error) {
	if strings.TrimSpace(in.MeetingID) == "" {
		return 0, errors.New("meeting id is required")
	}
	started := in.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	state := in.State
	if state == "" {
		state = "created"
	}
	res, err := s.exec(ctx,
		`INSERT INTO sessions (meeting_id, task_id, username, link, session_dir, state, started_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.MeetingID, nullable(in.TaskID), nullable(in.Username), in.Link, in.Dir, state,
		formatTime(started), formatTime(started),
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// RecordTransition appends a transition and moves the session to the new state.
func (s *Store) RecordTransition(ctx context.Context, id int64, from, to string, cause error, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	var msg any
	if cause != nil {
		msg = cause.Error()
	}
	ctx = orBackground(ctx)
	return s.withBusyRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transitions (session_id, from_state, to_state, error_message, at) VALUES (?, ?, ?, ?, ?)`,
			id, from, to, msg, formatTime(at),
		); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
			to, formatTime(at), id,
		)
		if err != nil {
			return fmt.Errorf("update session state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return tx.Commit()
	})
}

// FinishSession records the final outcome of a session.
func (s *Store) FinishSession(ctx context.Context, id int64, out Outcome) error {
	ended := out.EndedAt
	if ended.IsZero() {
		ended = s.now()
	}
	res, err := s.exec(ctx,
		`UPDATE sessions SET state = ?, error_kind = ?, error_message = ?, verified = ?, updated_at = ?, ended_at = ?
         WHERE id = ?`,
		out.State, nullable(out.ErrorKind), nullable(out.ErrorMessage), boolToInt(out.Verified),
		formatTime(ended), formatTime(ended), id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// MarkProcessed flags a session whose post-processing has completed.
func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	_, err := s.exec(ctx,
		`UPDATE sessions SET processed = 1, updated_at = ? WHERE id = ?`,
		formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkInterrupted fails every session left in a non-terminal state, which
// happens when the daemon exited mid-capture. Returns the number of rows changed.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(s.now())
	res, err := s.exec(ctx,
		`UPDATE sessions SET state = 'failed', error_kind = 'interrupted',
         error_message = 'daemon exited before the session finished', updated_at = ?, ended_at = ?
         WHERE state NOT IN ('completed', 'failed')`,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	ctx = orBackground(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns the most recent sessions first. A limit <= 0 returns all rows.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	ctx = orBackground(ctx)
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Transitions returns the recorded transitions of a session in order.
func (s *Store) Transitions(ctx context.Context, id int64) ([]Transition, error) {
	ctx = orBackground(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_state, to_state, error_message, at FROM transitions WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr  Transition
			msg sql.NullString
			at  sql.NullString
		)
		if err := rows.Scan(&tr.From, &tr.To, &msg, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Error = msg.String
		tr.At = parseTime(at)
		out = append(out, tr)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                    Session
		taskID, username, kind  sql.NullString
		message                 sql.NullString
		started, updated, ended sql.NullString
		verified, processed     int
	)
	err := row.Scan(&sess.ID, &sess.MeetingID, &taskID, &username, &sess.Link, &sess.Dir, &sess.State,
		&kind, &message, &verified, &processed, &started, &updated, &ended)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.TaskID = taskID.String
	sess.Username = username.String
	sess.ErrorKind = kind.String
	sess.ErrorMessage = message.String
	sess.Verified = verified != 0
	sess.Processed = processed != 0
	sess.StartedAt = parseTime(started)
	sess.UpdatedAt = parseTime(updated)
	sess.EndedAt = parseTime(ended)
	return &sess, nil
}

func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
