// Package protocol defines the core types and structures used on the wire.
// It provides the JSON-RPC 2.0 message types, the MCP method surface served
// by this daemon, and the parsed-message representation consumed by the
// dispatcher.
//
// Incoming messages are resolved into a closed Method set at parse time via
// ParseMessage; the dispatcher switches exhaustively over that set instead
// of comparing method strings at each call site.
package protocol
