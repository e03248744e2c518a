package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Method identifies a supported protocol operation. Incoming messages are
// resolved to a Method exactly once, at parse time; dispatch is an
// exhaustive switch over this closed set rather than string comparison.
type Method int

const (
	// MethodOther is any method name outside the supported surface. For
	// requests it produces a method-not-found error; for notifications it
	// is ignored.
	MethodOther Method = iota
	MethodTypeInitialize
	MethodTypeInitialized
	MethodTypePing
	MethodTypeListPrompts
	MethodTypeListResources
	MethodTypeRootsListChanged
	MethodTypeListTools
	MethodTypeCallTool
)

// ParseMethod resolves a wire method name into the closed Method set
func ParseMethod(name string) Method {
	switch name {
	case MethodInitialize:
		return MethodTypeInitialize
	case MethodInitialized:
		return MethodTypeInitialized
	case MethodPing:
		return MethodTypePing
	case MethodListPrompts:
		return MethodTypeListPrompts
	case MethodListResources:
		return MethodTypeListResources
	case MethodRootsListChanged:
		return MethodTypeRootsListChanged
	case MethodListTools:
		return MethodTypeListTools
	case MethodCallTool:
		return MethodTypeCallTool
	default:
		return MethodOther
	}
}

// String returns the wire name of the method
func (m Method) String() string {
	switch m {
	case MethodTypeInitialize:
		return MethodInitialize
	case MethodTypeInitialized:
		return MethodInitialized
	case MethodTypePing:
		return MethodPing
	case MethodTypeListPrompts:
		return MethodListPrompts
	case MethodTypeListResources:
		return MethodListResources
	case MethodTypeRootsListChanged:
		return MethodRootsListChanged
	case MethodTypeListTools:
		return MethodListTools
	case MethodTypeCallTool:
		return MethodCallTool
	default:
		return "unknown"
	}
}

// Message is one decoded incoming message with its method resolved and its
// params decoded into the matching typed form. Exactly one of the typed
// param fields is populated, according to Method.
type Message struct {
	// ID is the raw request id; nil (or JSON null) means notification
	// semantics: no response is ever written, even on error.
	ID json.RawMessage

	Method    Method
	RawMethod string

	Initialize *InitializeParams
	CallTool   *CallToolParams
}

// IsNotification reports whether the message carries no usable id
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0 || bytes.Equal(m.ID, []byte("null"))
}

// ParseMessage decodes one JSON-RPC message body into a Message. Params
// that fail to decode into their typed form are left at their zero value;
// they are never validated against the tool's schema.
func ParseMessage(data []byte) (*Message, error) {
	var raw struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if raw.Method == "" {
		return nil, fmt.Errorf("message has no method")
	}

	msg := &Message{
		ID:        raw.ID,
		Method:    ParseMethod(raw.Method),
		RawMethod: raw.Method,
	}

	switch msg.Method {
	case MethodTypeInitialize:
		msg.Initialize = &InitializeParams{}
		if len(raw.Params) > 0 {
			_ = json.Unmarshal(raw.Params, msg.Initialize)
		}
	case MethodTypeCallTool:
		msg.CallTool = &CallToolParams{}
		if len(raw.Params) > 0 {
			_ = json.Unmarshal(raw.Params, msg.CallTool)
		}
		// Absent arguments default to an empty object.
		if len(msg.CallTool.Arguments) == 0 || bytes.Equal(msg.CallTool.Arguments, []byte("null")) {
			msg.CallTool.Arguments = json.RawMessage(`{}`)
		}
	}

	return msg, nil
}
