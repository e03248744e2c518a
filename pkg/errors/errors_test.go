package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolNotFoundWireMessage(t *testing.T) {
	err := ToolNotFound("lint")

	assert.Equal(t, CodeInternalError, err.Code())
	assert.Equal(t, "Tool not found: lint", err.Message())
	assert.Equal(t, CategoryNotFound, err.Category())
}

func TestToolExecutionFailedWrapsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := ToolExecutionFailed("build", cause)

	assert.Equal(t, CodeInternalError, err.Code())
	assert.Contains(t, err.Message(), "build")
	assert.Contains(t, err.Message(), "exit status 1")
	assert.ErrorIs(t, err, cause)
}

func TestMethodNotFoundCode(t *testing.T) {
	err := MethodNotFound("resources/read")

	assert.Equal(t, CodeMethodNotFound, err.Code())
	assert.Contains(t, err.Message(), "resources/read")
	assert.Equal(t, CategoryProtocol, err.Category())
}

func TestRegistryFactories(t *testing.T) {
	assert.Equal(t, CodeServerNotFound, ServerNotFound("/ws").Code())
	assert.Equal(t, CodeServerClosed, ServerClosed("/ws").Code())
	assert.Equal(t, CodeTransportError, BindFailed("/ws", errors.New("in use")).Code())
}

func TestWithContextAndDetail(t *testing.T) {
	base := NewError(CodeInternalError, "boom", CategoryInternal, SeverityError)

	withCtx := base.WithContext(&Context{SessionID: "s1", Workspace: "/ws"})
	require.NotNil(t, withCtx.Context())
	assert.Equal(t, "s1", withCtx.Context().SessionID)
	// The original is unchanged.
	assert.Empty(t, base.Context().SessionID)

	detailed := base.WithDetail("while shutting down")
	assert.Equal(t, "boom: while shutting down", detailed.Error())
	assert.Equal(t, "boom", detailed.Message())
}

func TestAsDaemonError(t *testing.T) {
	de, ok := AsDaemonError(ToolNotFound("x"))
	require.True(t, ok)
	assert.Equal(t, CodeInternalError, de.Code())

	_, ok = AsDaemonError(errors.New("plain"))
	assert.False(t, ok)
	_, ok = AsDaemonError(nil)
	assert.False(t, ok)
}

func TestIsCategoryAndIsCode(t *testing.T) {
	err := ConnectionLost("s1", errors.New("reset"))

	assert.True(t, IsCategory(err, CategoryTransport))
	assert.False(t, IsCategory(err, CategoryTool))
	assert.True(t, IsCode(err, CodeTransportError))
	assert.False(t, IsCode(errors.New("plain"), CodeTransportError))
}
