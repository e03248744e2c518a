// Package server implements the per-workspace tool-invocation daemon:
// a Registry of ServerInstance values, one per normalized workspace path,
// each listening on an ephemeral loopback TCP port.
//
// Each accepted connection becomes a Session. The session's framing mode
// (Content-Length headers or newline-delimited JSON) is decided by the
// first bytes the client sends, and every reply and broadcast to that
// session uses the same mode. Parsed messages flow through a Dispatcher
// whose method set is the closed protocol.Method enum; tool handlers run
// asynchronously on a Scheduler so network reads are never blocked by
// tool execution.
package server
