// Package audit records every slash-command invocation.
//
// A Logger fans each invocation out to its sinks: the dated text file the
// operator reads, and optionally the SQLite invocation store behind the admin
// API.  Sink failures are logged and never reach the command reply.
package audit
