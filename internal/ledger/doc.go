// Package ledger keeps operational bookkeeping for meetcap in SQLite.
//
// Three tables back it: sessions (one row per dispatched capture), their
// state transitions, and claims (feed task ids that have already been
// dispatched). Claims are the idempotency token that stops two polls, or two
// processes, from dispatching the same feed record twice. Session artifacts
// themselves stay in the per-meeting storage directories; the ledger only
// indexes them.
package ledger
