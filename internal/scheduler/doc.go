// Package scheduler polls the meeting feed and dispatches capture sessions
// for meetings that are about to start.
//
// A meeting is dispatched when its start time is between zero and the
// dispatch window (120s by default) away. Before dispatch the scheduler takes
// a ledger claim on the task id, then deletes the record from the feed. A
// failed delete is logged and dispatch still happens; the ledger claim is what
// keeps a record that survives the delete from being dispatched twice.
package scheduler
