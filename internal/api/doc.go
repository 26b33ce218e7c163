// Package api defines the wire-format types served by the daemon's HTTP API
// and the converters from internal models.
//
// # Key Types
//
// RecordMeetingRequest/RecordMeetingResponse: the ad-hoc recording trigger.
// Request field names match the meeting server's record format
// (google_meeting_link, taskId, username).
//
// DaemonStatus: lock, ledger, scheduler and workflow state plus dependency
// availability.
//
// Session/SessionListResponse: ledger rows.
//
// # Converters
//
// FromLedgerSession(s): ledger.Session -> Session.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// FromSchedulerSummary: scheduler.Summary -> SchedulerStatus.
//
// FromDependencies: deps.Status -> DependencyStatus.
//
// Timestamps use RFC3339 with milliseconds in UTC; zero times are omitted.
package api
