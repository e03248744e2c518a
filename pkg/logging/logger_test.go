package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	daemonerrors "github.com/zaucy/mcpd/pkg/errors"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestWithFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter()).WithFields(
		String("workspace", "/ws"),
		Int("port", 4242),
	)

	logger.Info("listening")
	out := buf.String()
	assert.Contains(t, out, "workspace=/ws")
	assert.Contains(t, out, "port=4242")
}

func TestJSONFormatterOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Info("hello", String("session_id", "s1"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "s1", entry["session_id"])
}

func TestWithErrorAddsDaemonContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	err := daemonerrors.ToolNotFound("lint").WithContext(&daemonerrors.Context{
		SessionID: "s9",
		Workspace: "/ws",
	})
	logger.WithError(err).Warn("call rejected")

	out := buf.String()
	assert.Contains(t, out, "s9")
	assert.Contains(t, out, "/ws")
	assert.Contains(t, out, "error_category=not_found")
}

func TestRequestIDContext(t *testing.T) {
	id := NewRequestID()
	assert.NotEmpty(t, id)
	assert.NotEqual(t, id, NewRequestID())

	ctx := ContextWithRequestID(context.Background(), id)
	assert.Equal(t, id, RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestNopLoggerDiscards(t *testing.T) {
	// Must not panic.
	Nop().Error("dropped", String("k", "v"))
}
