// Command meetcap records scheduled online meetings.
//
// "meetcap run" starts the foreground daemon: it polls the meeting server,
// dispatches capture sessions, and serves the HTTP API. "meetcap record"
// captures a single meeting in the foreground. The remaining commands inspect
// the session ledger, check the host, and manage configuration.
package main
