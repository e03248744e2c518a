package framing

import (
	"fmt"
)

// Encode frames one serialized message body for the given mode. Header mode
// produces an LSP-style Content-Length block, line mode a single
// newline-terminated line.
func Encode(mode Mode, body []byte) []byte {
	if mode == ModeHeader {
		return EncodeHeader(body)
	}
	return EncodeLine(body)
}

// EncodeHeader frames body as Content-Length: <n>\r\n\r\n<body>
func EncodeHeader(body []byte) []byte {
	header := fmt.Sprintf("%s %d\r\n\r\n", headerToken, len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}

// EncodeLine frames body as one newline-terminated line
func EncodeLine(body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, body...)
	return append(out, '\n')
}
