package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaucy/mcpd/pkg/client"
	"github.com/zaucy/mcpd/pkg/framing"
	"github.com/zaucy/mcpd/pkg/protocol"
	"github.com/zaucy/mcpd/pkg/utils"
)

// startTestServer brings up a registry with an echo and a failing tool and
// returns the address of one workspace instance.
func startTestServer(t *testing.T) (*Registry, string) {
	t.Helper()

	r := NewRegistry(testConfig())
	t.Cleanup(func() { _ = r.Shutdown() })

	r.Tools().Register(protocol.Tool{
		Name:        "echo",
		Description: "echoes text",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}, func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, err
		}
		return p.Text, nil
	})
	r.Tools().Register(protocol.Tool{Name: "fail"}, func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return nil, errors.New("kaboom")
	})

	entry, err := r.EnsureServer(t.TempDir())
	require.NoError(t, err)
	return r, fmt.Sprintf("127.0.0.1:%d", entry.Port)
}

func dialTest(t *testing.T, addr string, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.Dial(addr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestInitializeHandshake(t *testing.T) {
	_, addr := startTestServer(t)

	for _, mode := range []framing.Mode{framing.ModeHeader, framing.ModeLine} {
		t.Run(mode.String(), func(t *testing.T) {
			c := dialTest(t, addr, client.WithMode(mode), client.WithClientInfo("tester", "0.0.1"))

			result, err := c.Initialize(testCtx(t))
			require.NoError(t, err)
			assert.Equal(t, protocol.ProtocolBaseline, result.ProtocolVersion)
			assert.Equal(t, "mcpd", result.ServerInfo.Name)
			assert.True(t, result.Capabilities.Tools.ListChanged)
		})
	}
}

func TestInitializeEchoesRequestedVersion(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)
	ctx := testCtx(t)

	raw, err := c.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: "2025-03-26",
	})
	require.NoError(t, err)

	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "2025-03-26", result.ProtocolVersion)
}

func TestPing(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	require.NoError(t, c.Ping(testCtx(t)))
}

func TestEmptyPromptsAndResources(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)
	ctx := testCtx(t)

	raw, err := c.Call(ctx, protocol.MethodListPrompts, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompts":[]}`, string(raw))

	raw, err = c.Call(ctx, protocol.MethodListResources, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"resources":[]}`, string(raw))
}

func TestListToolsReflectsRegistry(t *testing.T) {
	r, addr := startTestServer(t)
	c := dialTest(t, addr)
	ctx := testCtx(t)

	list, err := c.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "echo", list[0].Name)
	assert.Equal(t, "fail", list[1].Name)

	// The list is live: later registrations show up without reconnecting.
	r.Tools().Register(protocol.Tool{Name: "added"}, func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return nil, nil
	})
	list, err = c.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestCallToolSuccess(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	result, err := c.CallTool(testCtx(t), "echo", map[string]string{"text": "round trip"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Equal(t, "round trip", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestCallToolNotFound(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	_, err := c.CallTool(testCtx(t), "nope", nil)
	require.Error(t, err)

	var rpcErr *protocol.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, protocol.InternalError, rpcErr.Code)
	assert.Equal(t, "Tool not found: nope", rpcErr.Message)
}

func TestCallToolHandlerError(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	_, err := c.CallTool(testCtx(t), "fail", nil)
	require.Error(t, err)

	var rpcErr *protocol.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, protocol.InternalError, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "fail")
	assert.Contains(t, rpcErr.Message, "kaboom")
}

func TestCallToolHandlerPanicContained(t *testing.T) {
	r, addr := startTestServer(t)
	r.Tools().Register(protocol.Tool{Name: "panic"}, func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		panic("handler bug")
	})

	c := dialTest(t, addr)
	ctx := testCtx(t)

	_, err := c.CallTool(ctx, "panic", nil)
	require.Error(t, err)

	// The connection and the scheduler survive.
	require.NoError(t, c.Ping(ctx))
	result, err := c.CallTool(ctx, "echo", map[string]string{"text": "still alive"})
	require.NoError(t, err)
	assert.Equal(t, "still alive", result.Content[0].Text)
}

func TestMethodNotFound(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	_, err := c.Call(testCtx(t), "resources/read", nil)
	require.Error(t, err)

	var rpcErr *protocol.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, protocol.MethodNotFound, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "resources/read")
}

func TestUnknownNotificationIgnored(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)
	ctx := testCtx(t)

	require.NoError(t, c.Notify("notifications/does_not_exist", nil))
	require.NoError(t, c.Notify(protocol.MethodRootsListChanged, nil))

	// The connection is still healthy.
	require.NoError(t, c.Ping(ctx))
}

func TestToolsListChangedBroadcast(t *testing.T) {
	r, addr := startTestServer(t)

	headerClient := dialTest(t, addr, client.WithMode(framing.ModeHeader))
	lineClient := dialTest(t, addr, client.WithMode(framing.ModeLine))
	ctx := testCtx(t)

	// Each client commits its framing mode with a first request.
	require.NoError(t, headerClient.Ping(ctx))
	require.NoError(t, lineClient.Ping(ctx))

	r.Tools().Register(protocol.Tool{Name: "late"}, func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return nil, nil
	})

	for _, c := range []*client.Client{headerClient, lineClient} {
		select {
		case note := <-c.Notifications:
			assert.Equal(t, protocol.MethodToolsListChanged, note.Method)
		case <-time.After(2 * time.Second):
			t.Fatal("tools/list_changed not received")
		}
	}
}

func TestNotifyAllSkipsNoSessions(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Shutdown()

	entry, err := r.EnsureServer(t.TempDir())
	require.NoError(t, err)

	// No sessions connected: must not panic or block.
	entry.Instance.NotifyAll(protocol.MethodToolsListChanged, nil)
}

func TestGarbageLineDroppedSilently(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("garbage that is not json\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	// The only reply is the ping response; the garbage got nothing.
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(buf[:n-1]))
}

func TestNotificationWithErrorGetsNoReply(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// An id-less tools/call for a missing tool would be an error for a
	// request, but notifications never get replies, even errors.
	_, err = conn.Write([]byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"nope"}}` + "\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}` + "\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{}}`, string(buf[:n-1]))
}

func TestMalformedContentLengthClosesConnection(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("Content-Length: abc\r\n\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestInstanceCloseDisconnectsClients(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t)
	detector.Start()

	r := NewRegistry(testConfig())
	entry, err := r.EnsureServer(t.TempDir())
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", entry.Port)

	c, err := client.Dial(addr)
	require.NoError(t, err)
	require.NoError(t, c.Ping(testCtx(t)))
	require.Equal(t, 1, entry.Instance.Sessions())

	require.NoError(t, r.Shutdown())
	assert.Equal(t, 0, entry.Instance.Sessions())

	// The client sees the disconnect as a failed call.
	err = c.Ping(testCtx(t))
	assert.Error(t, err)
	_ = c.Close()

	detector.Check()
}
