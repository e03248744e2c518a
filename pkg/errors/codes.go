package errors

// JSON-RPC 2.0 standard error codes. These are the only codes that appear
// on the wire; parse and invalid-request conditions are swallowed by the
// framing layer and never answered.
const (
	// CodeParseError indicates invalid JSON was received by the server
	CodeParseError int = -32700

	// CodeInvalidRequest indicates the JSON sent is not a valid Request object
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method does not exist / is not available
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates invalid method parameter(s)
	CodeInvalidParams int = -32602

	// CodeInternalError indicates internal JSON-RPC error; also used for
	// missing tools and tool handler failures
	CodeInternalError int = -32603
)

// Daemon-specific codes, used only on the host-facing API surface (never in
// a JSON-RPC error object).
const (
	// CodeServerNotFound indicates no server instance exists for a workspace path
	CodeServerNotFound int = -32000

	// CodeServerClosed indicates an operation on a stopped server instance
	CodeServerClosed int = -32001

	// CodeTransportError indicates a connection-level failure
	CodeTransportError int = -32002
)
