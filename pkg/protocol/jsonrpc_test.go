package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseMarshal(t *testing.T) {
	resp, err := NewResponse(json.RawMessage(`1`), struct{}{})
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(data))
}

func TestNewErrorResponseMarshal(t *testing.T) {
	resp, err := NewErrorResponse(json.RawMessage(`"req-1"`), MethodNotFound, "Method not found: foo", nil)
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":"req-1","error":{"code":-32601,"message":"Method not found: foo"}}`,
		string(data))
}

func TestNewNotificationOmitsID(t *testing.T) {
	note, err := NewNotification(MethodToolsListChanged, nil)
	require.NoError(t, err)

	data, err := json.Marshal(note)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`, string(data))
}

func TestNewCallToolResultShape(t *testing.T) {
	result := NewCallToolResult("hello")
	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"hello"}],"isError":false}`, string(data))
}

func TestErrorImplementsError(t *testing.T) {
	e := &Error{Code: InternalError, Message: "boom"}
	assert.Contains(t, e.Error(), "boom")
	assert.Contains(t, e.Error(), "-32603")
}
