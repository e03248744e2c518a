package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	daemonerrors "github.com/zaucy/mcpd/pkg/errors"
	"github.com/zaucy/mcpd/pkg/logging"
	"github.com/zaucy/mcpd/pkg/observability"
	"github.com/zaucy/mcpd/pkg/protocol"
	"github.com/zaucy/mcpd/pkg/tools"
)

// tracerName identifies dispatcher spans in exported traces.
const tracerName = "github.com/zaucy/mcpd/pkg/server"

// Dispatcher routes parsed messages to their handlers. Methods are matched
// as the closed protocol.Method set, never by string comparison at dispatch
// time. Unknown requests get a method-not-found error; unknown notifications
// are ignored.
type Dispatcher struct {
	info      protocol.ServerInfo
	tools     *tools.Registry
	scheduler Scheduler
	logger    logging.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer

	// onInitialized fires after a client completes the initialize
	// handshake, once per notifications/initialized received.
	onInitialized func()
}

// NewDispatcher creates a dispatcher for one server instance
func NewDispatcher(info protocol.ServerInfo, registry *tools.Registry, scheduler Scheduler, logger logging.Logger, metrics *observability.Metrics, onInitialized func()) *Dispatcher {
	return &Dispatcher{
		info:          info,
		tools:         registry,
		scheduler:     scheduler,
		logger:        logger.WithFields(logging.String("component", "dispatcher")),
		metrics:       metrics,
		tracer:        otel.Tracer(tracerName),
		onInitialized: onInitialized,
	}
}

// Dispatch handles one parsed message from a session. It is safe to call
// concurrently from multiple session read loops: handlers that touch
// shared state run on the scheduler, not inline.
func (d *Dispatcher) Dispatch(sess *Session, msg *protocol.Message) {
	started := time.Now()
	status := "ok"
	ctx, span := d.tracer.Start(context.Background(), "mcpd.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.method", msg.RawMethod),
			attribute.String("session.id", sess.ID()),
		),
	)

	switch msg.Method {
	case protocol.MethodTypeInitialize:
		d.handleInitialize(sess, msg)

	case protocol.MethodTypeInitialized:
		if d.onInitialized != nil {
			d.onInitialized()
		}

	case protocol.MethodTypePing:
		d.respond(sess, msg, struct{}{})

	case protocol.MethodTypeListPrompts:
		d.respond(sess, msg, protocol.ListPromptsResult{Prompts: []protocol.Prompt{}})

	case protocol.MethodTypeListResources:
		d.respond(sess, msg, protocol.ListResourcesResult{Resources: []protocol.Resource{}})

	case protocol.MethodTypeRootsListChanged:
		// Roots changes carry no state the daemon tracks; acknowledged
		// by doing nothing.
		d.logger.Debug("client roots changed", logging.String("session_id", sess.ID()))

	case protocol.MethodTypeListTools:
		d.respond(sess, msg, protocol.ListToolsResult{Tools: d.tools.List()})

	case protocol.MethodTypeCallTool:
		// Asynchronous: the span and timing are closed by the completion
		// goroutine, not here.
		d.handleCallTool(ctx, span, started, sess, msg)
		return

	default:
		if msg.IsNotification() {
			// Unknown notifications are dropped without reply.
			d.logger.Debug("ignoring unknown notification",
				logging.String("method", msg.RawMethod))
		} else {
			status = "error"
			err := daemonerrors.MethodNotFound(msg.RawMethod)
			span.SetStatus(codes.Error, err.Message())
			d.respondError(sess, msg, err)
		}
	}

	span.End()
	d.metrics.RecordRequest(msg.RawMethod, status, time.Since(started))
}

func (d *Dispatcher) handleInitialize(sess *Session, msg *protocol.Message) {
	// The requested protocol version is echoed back; absent a request,
	// the baseline revision is advertised.
	version := protocol.ProtocolBaseline
	if msg.Initialize != nil && msg.Initialize.ProtocolVersion != "" {
		version = msg.Initialize.ProtocolVersion
	}
	if msg.Initialize != nil && msg.Initialize.ClientInfo != nil {
		d.logger.Info("client connected",
			logging.String("session_id", sess.ID()),
			logging.String("client_name", msg.Initialize.ClientInfo.Name),
			logging.String("client_version", msg.Initialize.ClientInfo.Version))
	}

	d.respond(sess, msg, protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities: protocol.ServerCapabilities{
			Tools: protocol.ToolsCapability{ListChanged: true},
		},
		ServerInfo: d.info,
	})
}

// handleCallTool runs the tool handler on the scheduler and answers the
// request when the handler's outcome arrives. The session's read loop is
// never blocked on tool execution.
func (d *Dispatcher) handleCallTool(ctx context.Context, span trace.Span, started time.Time, sess *Session, msg *protocol.Message) {
	name := msg.CallTool.Name
	span.SetAttributes(attribute.String("mcp.tool", name))

	handler, ok := d.tools.Resolve(name)
	if !ok {
		err := daemonerrors.ToolNotFound(name)
		span.SetStatus(codes.Error, err.Message())
		span.End()
		d.metrics.RecordRequest(msg.RawMethod, "error", time.Since(started))
		d.respondError(sess, msg, err)
		return
	}

	type outcome struct {
		value interface{}
		err   error
	}
	future := make(chan outcome, 1)
	args := msg.CallTool.Arguments

	d.scheduler.Schedule(func() {
		callStart := time.Now()
		value, err := d.safeInvoke(ctx, handler, args)
		status := "ok"
		if err != nil {
			status = "error"
		}
		d.metrics.RecordToolCall(name, status, time.Since(callStart))
		future <- outcome{value: value, err: err}
	})

	go func() {
		out := <-future
		defer span.End()

		if out.err != nil {
			err := daemonerrors.ToolExecutionFailed(name, out.err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Message())
			d.metrics.RecordRequest(msg.RawMethod, "error", time.Since(started))
			d.respondError(sess, msg, err)
			return
		}

		d.metrics.RecordRequest(msg.RawMethod, "ok", time.Since(started))
		d.respond(sess, msg, protocol.NewCallToolResult(coerceToolText(out.value)))
	}()
}

// safeInvoke runs a tool handler with panic recovery so a misbehaving
// handler fails its own call instead of taking down the scheduler.
func (d *Dispatcher) safeInvoke(ctx context.Context, handler tools.Handler, args json.RawMessage) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
			d.logger.Error("tool handler panic", logging.Any("panic", r))
		}
	}()
	return handler(ctx, args)
}

// coerceToolText converts a handler's return value into the textual
// payload of a tool result. Strings pass through verbatim; raw JSON and
// marshalable values are serialized; anything else is formatted.
func coerceToolText(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		return string(v)
	case []byte:
		return string(v)
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}

// respond writes a success response. Notifications never get one.
func (d *Dispatcher) respond(sess *Session, msg *protocol.Message, result interface{}) {
	if msg.IsNotification() {
		return
	}
	resp, err := protocol.NewResponse(msg.ID, result)
	if err != nil {
		d.logger.Error("marshal response", logging.ErrorField(err),
			logging.String("method", msg.RawMethod))
		return
	}
	if err := sess.Write(resp); err != nil {
		d.logger.WithError(err).Debug("response write failed",
			logging.String("method", msg.RawMethod))
	}
}

// respondError writes an error response. Notifications never get one,
// even on failure.
func (d *Dispatcher) respondError(sess *Session, msg *protocol.Message, derr daemonerrors.DaemonError) {
	if msg.IsNotification() {
		return
	}
	resp, err := protocol.NewErrorResponse(msg.ID, protocol.ErrorCode(derr.Code()), derr.Message(), nil)
	if err != nil {
		d.logger.Error("marshal error response", logging.ErrorField(err))
		return
	}
	if err := sess.Write(resp); err != nil {
		d.logger.WithError(err).Debug("error response write failed",
			logging.String("method", msg.RawMethod))
	}
}
