package api

import (
	"time"

	"meetcap/internal/deps"
	"meetcap/internal/ledger"
	"meetcap/internal/scheduler"
	"meetcap/internal/workflow"
)

// FromLedgerSession converts a ledger row to its API representation.
func FromLedgerSession(s *ledger.Session) Session {
	if s == nil {
		return Session{}
	}
	return Session{
		ID:           s.ID,
		MeetingID:    s.MeetingID,
		TaskID:       s.TaskID,
		Username:     s.Username,
		Link:         s.Link,
		Dir:          s.Dir,
		State:        s.State,
		ErrorKind:    s.ErrorKind,
		ErrorMessage: s.ErrorMessage,
		Verified:     s.Verified,
		Processed:    s.Processed,
		StartedAt:    formatTime(s.StartedAt),
		UpdatedAt:    formatTime(s.UpdatedAt),
		EndedAt:      formatTime(s.EndedAt),
	}
}

// FromLedgerSessions converts ledger rows, preserving order.
func FromLedgerSessions(rows []*ledger.Session) []Session {
	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromLedgerSession(row))
	}
	return out
}

// FromTransitions converts a session's recorded history.
func FromTransitions(rows []ledger.Transition) []Transition {
	out := make([]Transition, 0, len(rows))
	for _, row := range rows {
		out = append(out, Transition{From: row.From, To: row.To, Error: row.Error, At: formatTime(row.At)})
	}
	return out
}

// FromStatusSummary converts workflow diagnostics into the API shape.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	active := make([]ActiveSession, 0, len(summary.Active))
	for _, entry := range summary.Active {
		active = append(active, ActiveSession{
			MeetingID: entry.MeetingID,
			TaskID:    entry.TaskID,
			Username:  entry.Username,
			SessionID: entry.SessionID,
			State:     entry.State,
			Dir:       entry.Dir,
			StartedAt: formatTime(entry.StartedAt),
		})
	}
	return WorkflowStatus{
		Active:      active,
		Completed:   summary.Completed,
		Failed:      summary.Failed,
		LastMeeting: summary.LastMeeting,
		LastState:   summary.LastState,
		LastError:   summary.LastError,
	}
}

// FromSchedulerSummary converts the most recent poll summary. polls is the
// number of polls run so far; zero means no poll has completed.
func FromSchedulerSummary(enabled bool, last scheduler.Summary, polls int) SchedulerStatus {
	status := SchedulerStatus{Enabled: enabled, Polls: polls}
	if polls == 0 {
		return status
	}
	status.LastPollAt = formatTime(last.At)
	status.Fetched = last.Fetched
	status.InWindow = last.InWindow
	status.Dispatched = last.Dispatched
	status.AlreadyClaimed = last.AlreadyClaimed
	status.ClaimFailures = last.ClaimFailures
	status.DispatchFailures = last.DispatchFailures
	if last.Err != nil {
		status.LastError = last.Err.Error()
	}
	return status
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
