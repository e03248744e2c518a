// Package framing converts the raw byte stream of a connection into
// discrete JSON message bodies and back.
//
// Two incompatible delimiting conventions are supported transparently on
// the same decoder:
//
//   - Header framing: "Content-Length: <n>\r\n\r\n" followed by exactly n
//     body bytes ("\n\n" is accepted as terminator, the field name is
//     matched case-insensitively).
//   - Line framing: one JSON document per newline-terminated line.
//
// The decoder is incremental: Feed is called with whatever bytes arrived,
// emits every message that is now complete, and retains the partial tail
// for the next call. Invalid JSON lines and bodies are dropped silently by
// policy; an unterminated line past LineOverflowLimit discards the whole
// buffer. Only a Content-Length token with no parsable length is an error,
// and the owning connection is expected to close on it.
package framing
