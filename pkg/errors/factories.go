package errors

import (
	"fmt"
)

// Tool errors

// ToolNotFound creates the error answered for tools/call on an unregistered
// name. The message format is part of the wire contract.
func ToolNotFound(name string) DaemonError {
	return NewError(
		CodeInternalError,
		fmt.Sprintf("Tool not found: %s", name),
		CategoryNotFound,
		SeverityError,
	)
}

// ToolExecutionFailed wraps a tool handler failure
func ToolExecutionFailed(name string, cause error) DaemonError {
	return WrapError(
		cause,
		CodeInternalError,
		fmt.Sprintf("Tool execution failed: %s: %s", name, cause.Error()),
		CategoryTool,
		SeverityError,
	)
}

// Protocol errors

// MethodNotFound creates the error answered for a request with an
// unsupported method
func MethodNotFound(method string) DaemonError {
	return NewError(
		CodeMethodNotFound,
		fmt.Sprintf("Method not found: %s", method),
		CategoryProtocol,
		SeverityError,
	)
}

// Transport errors

// ConnectionLost creates an error for a session whose socket failed
func ConnectionLost(sessionID string, cause error) DaemonError {
	return WrapError(
		cause,
		CodeTransportError,
		fmt.Sprintf("Connection lost for session %s", sessionID),
		CategoryTransport,
		SeverityWarning,
	)
}

// WriteFailed creates an error for a failed frame write
func WriteFailed(sessionID string, cause error) DaemonError {
	return WrapError(
		cause,
		CodeTransportError,
		fmt.Sprintf("Failed to write frame to session %s", sessionID),
		CategoryTransport,
		SeverityWarning,
	)
}

// Registry errors

// ServerNotFound creates an error for a workspace path with no server instance
func ServerNotFound(path string) DaemonError {
	return NewError(
		CodeServerNotFound,
		fmt.Sprintf("No server for workspace %q", path),
		CategoryRegistry,
		SeverityError,
	)
}

// ServerClosed creates an error for operations against a stopped instance
func ServerClosed(path string) DaemonError {
	return NewError(
		CodeServerClosed,
		fmt.Sprintf("Server for workspace %q is closed", path),
		CategoryRegistry,
		SeverityError,
	)
}

// BindFailed wraps a listener bind failure during server creation
func BindFailed(path string, cause error) DaemonError {
	return WrapError(
		cause,
		CodeTransportError,
		fmt.Sprintf("Failed to bind loopback listener for workspace %q", path),
		CategoryTransport,
		SeverityCritical,
	)
}
