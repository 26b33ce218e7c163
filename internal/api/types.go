package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RecordMeetingRequest asks the daemon to join and record a meeting now.
// Field names follow the meeting server's record format.
type RecordMeetingRequest struct {
	GoogleMeetingLink string `json:"google_meeting_link"`
	TaskID            string `json:"taskId,omitempty"`
	Username          string `json:"username,omitempty"`
}

// RecordMeetingResponse acknowledges an accepted recording request.
type RecordMeetingResponse struct {
	RecordingID string `json:"recording_id"`
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// ActiveSession describes a session that is still running.
type ActiveSession struct {
	MeetingID string `json:"meeting_id"`
	TaskID    string `json:"task_id,omitempty"`
	Username  string `json:"username,omitempty"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Dir       string `json:"dir"`
	StartedAt string `json:"started_at,omitempty"`
}

// WorkflowStatus summarizes session execution.
type WorkflowStatus struct {
	Active      []ActiveSession `json:"active"`
	Completed   int             `json:"completed"`
	Failed      int             `json:"failed"`
	LastMeeting string          `json:"last_meeting,omitempty"`
	LastState   string          `json:"last_state,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// SchedulerStatus summarizes the feed poll loop.
type SchedulerStatus struct {
	Enabled          bool   `json:"enabled"`
	Polls            int    `json:"polls"`
	LastPollAt       string `json:"last_poll_at,omitempty"`
	Fetched          int    `json:"fetched"`
	InWindow         int    `json:"in_window"`
	Dispatched       int    `json:"dispatched"`
	AlreadyClaimed   int    `json:"already_claimed"`
	ClaimFailures    int    `json:"claim_failures"`
	DispatchFailures int    `json:"dispatch_failures"`
	LastError        string `json:"last_error,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LedgerPath   string             `json:"ledger_path"`
	LockFilePath string             `json:"lock_file_path"`
	APIAddress   string             `json:"api_address,omitempty"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Scheduler    SchedulerStatus    `json:"scheduler"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Session is a ledger row in transport form.
type Session struct {
	ID           int64  `json:"id"`
	MeetingID    string `json:"meeting_id"`
	TaskID       string `json:"task_id,omitempty"`
	Username     string `json:"username,omitempty"`
	Link         string `json:"link"`
	Dir          string `json:"dir"`
	State        string `json:"state"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Verified     bool   `json:"verified"`
	Processed    bool   `json:"processed"`
	StartedAt    string `json:"started_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	EndedAt      string `json:"ended_at,omitempty"`
}

// SessionListResponse wraps ledger rows for API responses.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Transition is one recorded state change of a session.
type Transition struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Error string `json:"error,omitempty"`
	At    string `json:"at"`
}

// SessionDetailResponse is a ledger row with its state history. Claimed
// reports whether the session's feed task still holds a dispatch claim.
type SessionDetailResponse struct {
	Session     Session      `json:"session"`
	Transitions []Transition `json:"transitions"`
	Claimed     bool         `json:"claimed"`
}
