package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claim reserves a feed task id for dispatch. It returns true when this call
// made the reservation and false when the task was already claimed.
func (s *Store) Claim(ctx context.Context, taskID, meetingID string, start, at time.Time) (bool, error) {
	if strings.TrimSpace(taskID) == "" {
		return false, errors.New("task id is required")
	}
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.exec(ctx,
		`INSERT OR IGNORE INTO claims (task_id, meeting_id, start_time, claimed_at) VALUES (?, ?, ?, ?)`,
		taskID, meetingID, formatTime(start), formatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", taskID, err)
	}
	return n == 1, nil
}

// Release drops a claim so the task can be dispatched again.
func (s *Store) Release(ctx context.Context, taskID string) error {
	if _, err := s.exec(ctx, `DELETE FROM claims WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("release %s: %w", taskID, err)
	}
	return nil
}

// IsClaimed reports whether a task id has been claimed.
func (s *Store) IsClaimed(ctx context.Context, taskID string) (bool, error) {
	ctx = orBackground(ctx)
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM claims WHERE task_id = ?`, taskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup claim %s: %w", taskID, err)
	}
	return true, nil
}

// PruneClaims removes claims whose meeting started before cutoff.
func (s *Store) PruneClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM claims WHERE start_time < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune claims: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
