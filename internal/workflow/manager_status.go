package workflow

import (
	"sort"
	"time"

	"meetcap/internal/session"
)

// ActiveSession describes a running session.
type ActiveSession struct {
	MeetingID string    `json:"meeting_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Dir       string    `json:"dir"`
	StartedAt time.Time `json:"started_at"`
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Active      []ActiveSession `json:"active"`
	Completed   int             `json:"completed"`
	Failed      int             `json:"failed"`
	LastMeeting string          `json:"last_meeting,omitempty"`
	LastState   string          `json:"last_state,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.Lock()
	entries := make([]*activeSession, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	summary := StatusSummary{Completed: m.completed, Failed: m.failed}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.last != nil {
		summary.LastMeeting = m.last.Descriptor.MeetingID
		summary.LastState = m.last.State.String()
	}
	orchs := make([]*session.Orchestrator, len(entries))
	for i, entry := range entries {
		orchs[i] = entry.orch
	}
	m.mu.Unlock()

	summary.Active = make([]ActiveSession, 0, len(entries))
	for i, entry := range entries {
		state := session.StateCreated.String()
		if orchs[i] != nil {
			state = orchs[i].State().String()
		}
		summary.Active = append(summary.Active, ActiveSession{
			MeetingID: entry.desc.MeetingID,
			TaskID:    entry.desc.TaskID,
			Username:  entry.desc.Username,
			SessionID: entry.sessionID,
			State:     state,
			Dir:       entry.layout.Root,
			StartedAt: entry.started,
		})
	}
	sort.Slice(summary.Active, func(i, j int) bool {
		return summary.Active[i].StartedAt.Before(summary.Active[j].StartedAt)
	})
	return summary
}

// IsActive reports whether a session for meetingID is running.
func (m *Manager) IsActive(meetingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[meetingID]
	return ok
}
