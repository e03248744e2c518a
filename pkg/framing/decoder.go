package framing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

const (
	// headerToken is the literal prefix that selects header framing for the
	// frame that begins with it.
	headerToken = "Content-Length:"

	// LineOverflowLimit is the maximum number of bytes buffered while
	// searching for a newline in line framing. A buffer that grows past
	// this limit with no newline is discarded wholesale; the data loss is
	// accepted policy, not an error.
	LineOverflowLimit = 10000
)

// ErrMalformedHeader reports a frame that begins with the Content-Length
// token but carries no parsable length. The byte stream cannot be
// resynchronized after this, so the caller is expected to drop the
// connection.
var ErrMalformedHeader = errors.New("framing: Content-Length header without parsable length")

// Mode identifies the framing convention a connection has committed to.
// Connections start in line framing and switch to header framing when the
// first Content-Length token is seen; replies are written in the same mode.
type Mode int

const (
	// ModeLine delimits one JSON document per newline-terminated line
	ModeLine Mode = iota
	// ModeHeader delimits messages with a Content-Length header block
	ModeHeader
)

// String returns a short name for the mode
func (m Mode) String() string {
	if m == ModeHeader {
		return "header"
	}
	return "line"
}

// DropReason classifies input the decoder discarded without emitting
type DropReason string

const (
	// DropInvalidJSON is a complete line or body that failed to parse as
	// one JSON document. Dropped silently, connection stays open.
	DropInvalidJSON DropReason = "invalid_json"
	// DropOverflow is an unterminated line-framing buffer past
	// LineOverflowLimit, discarded wholesale.
	DropOverflow DropReason = "overflow"
)

// decoder state: either searching for a header/line terminator, or
// accumulating a known-length body. Mutually exclusive and exhaustive.
type state int

const (
	stateHeaderSearch state = iota
	stateBodyAccumulation
)

// Decoder converts an append-only byte stream into a sequence of complete
// JSON message bodies. It supports both framing modes transparently and is
// re-invoked each time new bytes arrive; bytes of successfully extracted
// messages are consumed exactly once and never re-examined.
//
// Decoder is not safe for concurrent use; each Session owns one.
type Decoder struct {
	buf      []byte
	state    state
	expected int
	mode     Mode

	// OnDrop, when set, observes every discarded line, body, or
	// overflowed buffer. Used for metrics; never affects decoding.
	OnDrop func(reason DropReason, size int)
}

// NewDecoder creates a decoder in line mode with an empty buffer
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Mode returns the framing mode the stream has committed to so far
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Buffered returns the number of unconsumed bytes held by the decoder
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Feed appends data to the receive buffer and extracts every message that
// is now complete, in arrival order. It never blocks: when the buffer holds
// only a partial frame it returns what it has and waits for the next Feed.
//
// A non-nil error is returned only for a malformed Content-Length header
// (see ErrMalformedHeader); the caller should close the connection. All
// other bad input is dropped silently per the framing error policy.
func (d *Decoder) Feed(data []byte) ([][]byte, error) {
	d.buf = append(d.buf, data...)

	var msgs [][]byte
	for {
		if d.state == stateBodyAccumulation {
			if len(d.buf) < d.expected {
				return msgs, nil
			}
			body := d.consume(d.expected)
			d.state = stateHeaderSearch
			d.emit(&msgs, body)
			continue
		}

		// Header search: the literal token selects header framing for
		// this frame, anything else is treated as line framing.
		if bytes.HasPrefix(d.buf, []byte(headerToken)) {
			d.mode = ModeHeader
			block, sep := findHeaderTerminator(d.buf)
			if block < 0 {
				return msgs, nil // header block incomplete, wait
			}
			length, ok := parseContentLength(d.buf[:block])
			if !ok {
				// Fail closed rather than wedging the stream.
				return msgs, ErrMalformedHeader
			}
			d.consume(block + sep)
			d.expected = length
			d.state = stateBodyAccumulation
			continue
		}

		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			if len(d.buf) > LineOverflowLimit {
				d.drop(DropOverflow, len(d.buf))
				d.buf = nil
			}
			return msgs, nil
		}
		line := d.consume(nl + 1)
		d.emit(&msgs, bytes.TrimRight(line, "\r\n"))
	}
}

// emit appends body to out when it is one valid JSON document, otherwise
// drops it silently. Explicit policy: malformed payloads never produce a
// response or close the connection.
func (d *Decoder) emit(out *[][]byte, body []byte) {
	if json.Valid(body) {
		*out = append(*out, body)
		return
	}
	d.drop(DropInvalidJSON, len(body))
}

// consume removes and returns the first n buffered bytes. The returned
// slice is a copy; the receive buffer is only ever appended to and
// prefix-consumed.
func (d *Decoder) consume(n int) []byte {
	out := make([]byte, n)
	copy(out, d.buf[:n])
	d.buf = d.buf[n:]
	return out
}

func (d *Decoder) drop(reason DropReason, size int) {
	if d.OnDrop != nil {
		d.OnDrop(reason, size)
	}
}

// findHeaderTerminator locates the blank line ending a header block.
// It returns the header block length and the terminator length, preferring
// \r\n\r\n and falling back to \n\n, or (-1, 0) when no terminator is
// buffered yet.
func findHeaderTerminator(buf []byte) (block, sep int) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i, 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i, 2
	}
	return -1, 0
}

// parseContentLength extracts the decimal body length from a header block.
// The field name is matched case-insensitively.
func parseContentLength(header []byte) (int, bool) {
	for _, line := range bytes.Split(header, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(string(line[:colon]))
		if !strings.EqualFold(name, "content-length") {
			continue
		}
		value := strings.TrimSpace(string(line[colon+1:]))
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
