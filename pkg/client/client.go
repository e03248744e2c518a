// Package client is a small client for a workspace daemon server. It dials
// the loopback port, speaks either framing mode, and correlates responses
// to requests by id.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	daemonerrors "github.com/zaucy/mcpd/pkg/errors"
	"github.com/zaucy/mcpd/pkg/framing"
	"github.com/zaucy/mcpd/pkg/protocol"
)

// Option configures a Client
type Option func(*Client)

// WithMode selects the framing mode the client writes with. The server
// mirrors whatever mode the client's first message uses. Defaults to
// header framing.
func WithMode(mode framing.Mode) Option {
	return func(c *Client) { c.mode = mode }
}

// WithClientInfo sets the identity sent during initialize
func WithClientInfo(name, version string) Option {
	return func(c *Client) { c.info = protocol.ClientInfo{Name: name, Version: version} }
}

// WithDialTimeout bounds the TCP dial
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// Client is a connection to one workspace server
type Client struct {
	mode        framing.Mode
	info        protocol.ClientInfo
	dialTimeout time.Duration

	conn    net.Conn
	decoder *framing.Decoder

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *protocol.Response
	closed  bool

	// Notifications receives server-pushed notifications, such as
	// tools/list_changed. Unread notifications are dropped once the
	// buffer fills.
	Notifications chan *protocol.Notification

	done chan struct{}
}

// Dial connects to a server address such as "127.0.0.1:43210"
func Dial(addr string, opts ...Option) (*Client, error) {
	c := &Client{
		mode:          framing.ModeHeader,
		info:          protocol.ClientInfo{Name: "mcpd-client", Version: "0.1.0"},
		dialTimeout:   5 * time.Second,
		decoder:       framing.NewDecoder(),
		pending:       make(map[int64]chan *protocol.Response),
		Notifications: make(chan *protocol.Notification, 16),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return nil, daemonerrors.WrapError(err, daemonerrors.CodeTransportError,
			fmt.Sprintf("dial %s", addr), daemonerrors.CategoryTransport, daemonerrors.SeverityError)
	}
	c.conn = conn

	go c.readLoop()
	return c, nil
}

// Initialize performs the initialize handshake and sends
// notifications/initialized on success.
func (c *Client) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	raw, err := c.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolBaseline,
		ClientInfo:      &c.info,
	})
	if err != nil {
		return nil, err
	}
	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	if err := c.Notify(protocol.MethodInitialized, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping issues a ping request
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, protocol.MethodPing, nil)
	return err
}

// ListTools fetches the server's current tool list
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	raw, err := c.Call(ctx, protocol.MethodListTools, nil)
	if err != nil {
		return nil, err
	}
	var result protocol.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools list: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name
func (c *Client) CallTool(ctx context.Context, name string, args interface{}) (*protocol.CallToolResult, error) {
	var rawArgs json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal tool arguments: %w", err)
		}
		rawArgs = data
	}
	raw, err := c.Call(ctx, protocol.MethodCallTool, protocol.CallToolParams{Name: name, Arguments: rawArgs})
	if err != nil {
		return nil, err
	}
	var result protocol.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	return &result, nil
}

// Call sends a request and waits for its response or ctx cancellation.
// A response carrying a JSON-RPC error is returned as *protocol.Error.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, daemonerrors.ConnectionLost("", net.ErrClosed)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *protocol.Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		c.forget(id)
		return nil, err
	}
	if err := c.send(req); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, daemonerrors.ConnectionLost("", net.ErrClosed)
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Notify sends a notification; no response is expected
func (c *Client) Notify(method string, params interface{}) error {
	note, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.send(note)
}

// Close tears down the connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	_, err = c.conn.Write(framing.Encode(c.mode, body))
	if err != nil {
		return daemonerrors.WrapError(err, daemonerrors.CodeTransportError,
			"write request", daemonerrors.CategoryTransport, daemonerrors.SeverityError)
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer close(c.done)

	reader := bufio.NewReader(c.conn)
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			frames, ferr := c.decoder.Feed(buf[:n])
			for _, frame := range frames {
				c.handleFrame(frame)
			}
			if ferr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) handleFrame(frame []byte) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return
	}

	if probe.Method != "" && len(probe.ID) == 0 {
		var note protocol.Notification
		if err := json.Unmarshal(frame, &note); err == nil {
			select {
			case c.Notifications <- &note:
			default:
			}
		}
		return
	}

	var resp protocol.Response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return
	}
	var id int64
	if err := json.Unmarshal(probe.ID, &id); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		ch <- &resp
	}
}
