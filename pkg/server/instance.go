package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	daemonerrors "github.com/zaucy/mcpd/pkg/errors"
	"github.com/zaucy/mcpd/pkg/logging"
	"github.com/zaucy/mcpd/pkg/observability"
	"github.com/zaucy/mcpd/pkg/protocol"
	"github.com/zaucy/mcpd/pkg/tools"
)

// ServerInstance is one running per-workspace server: a loopback TCP
// listener plus the set of live sessions connected to it.
type ServerInstance struct {
	workspace  string
	listener   net.Listener
	port       int
	dispatcher *Dispatcher
	logger     logging.Logger
	metrics    *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool

	// toolsCancel detaches this instance's hook from the shared tool
	// registry; cleared once Close has run it.
	toolsCancel func()

	closeOnce sync.Once
}

// newServerInstance binds an ephemeral loopback port and starts accepting
// connections for the given workspace.
func newServerInstance(workspace string, cfg *Config) (*ServerInstance, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.ListenHost, "0"))
	if err != nil {
		return nil, daemonerrors.BindFailed(workspace, err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	inst := &ServerInstance{
		workspace: workspace,
		listener:  listener,
		port:      port,
		logger: cfg.Logger.WithFields(
			logging.String("component", "server"),
			logging.String("workspace", workspace),
			logging.String("port", strconv.Itoa(port)),
		),
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		group:    group,
		sessions: make(map[*Session]struct{}),
	}

	onInitialized := func() {
		if cfg.OnInitialized != nil {
			cfg.OnInitialized(workspace)
		}
	}
	inst.dispatcher = NewDispatcher(cfg.ServerInfo, cfg.Tools, cfg.Scheduler, inst.logger, cfg.Metrics, onInitialized)

	// A tool registry change is announced to every connected client. The
	// hook is released again in Close so stopped instances do not linger
	// on the shared registry.
	inst.toolsCancel = cfg.Tools.OnChanged(func() {
		inst.NotifyAll(protocol.MethodToolsListChanged, nil)
	})

	inst.group.Go(inst.acceptLoop)
	inst.logger.Info("workspace server listening")
	return inst, nil
}

// Workspace returns the normalized workspace path this instance serves.
func (si *ServerInstance) Workspace() string { return si.workspace }

// Port returns the bound loopback port.
func (si *ServerInstance) Port() int { return si.port }

// Addr returns the listener address.
func (si *ServerInstance) Addr() net.Addr { return si.listener.Addr() }

// Sessions returns the number of currently connected sessions.
func (si *ServerInstance) Sessions() int {
	si.mu.Lock()
	defer si.mu.Unlock()
	return len(si.sessions)
}

// Tools exposes the instance's tool registry.
func (si *ServerInstance) Tools() *tools.Registry { return si.dispatcher.tools }

func (si *ServerInstance) acceptLoop() error {
	for {
		conn, err := si.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || si.ctx.Err() != nil {
				return nil
			}
			si.logger.Warn("accept failed", logging.ErrorField(err))
			continue
		}

		sess := newSession(conn, si)
		if !si.addSession(sess) {
			_ = conn.Close()
			return nil
		}
		si.group.Go(func() error {
			sess.readLoop()
			return nil
		})
	}
}

func (si *ServerInstance) addSession(s *Session) bool {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.closed {
		return false
	}
	si.sessions[s] = struct{}{}
	si.metrics.SessionOpened()
	return true
}

func (si *ServerInstance) dropSession(s *Session) {
	si.mu.Lock()
	_, present := si.sessions[s]
	delete(si.sessions, s)
	si.mu.Unlock()
	if present {
		si.metrics.SessionClosed()
	}
}

// NotifyAll sends a JSON-RPC notification to every connected session.
// The body is marshaled once; each session frames it to match its own
// framing mode. Write failures on individual sessions are logged and
// do not affect delivery to the others.
func (si *ServerInstance) NotifyAll(method string, params interface{}) {
	si.mu.Lock()
	if si.closed {
		si.mu.Unlock()
		return
	}
	targets := make([]*Session, 0, len(si.sessions))
	for s := range si.sessions {
		targets = append(targets, s)
	}
	si.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	note, err := protocol.NewNotification(method, params)
	if err != nil {
		si.logger.Error("marshal notification params", logging.ErrorField(err),
			logging.String("method", method))
		return
	}
	body, err := json.Marshal(note)
	if err != nil {
		si.logger.Error("marshal notification", logging.ErrorField(err),
			logging.String("method", method))
		return
	}

	for _, s := range targets {
		if err := s.writeRaw(body); err != nil {
			si.logger.Debug("notification write failed",
				logging.String("method", method),
				logging.String("session_id", s.ID()),
				logging.ErrorField(err))
			continue
		}
		si.metrics.NotificationSent(method)
	}
}

// Close stops the listener and disconnects every session. Safe to call
// more than once; later calls are no-ops.
func (si *ServerInstance) Close() error {
	var err error
	si.closeOnce.Do(func() {
		if si.toolsCancel != nil {
			si.toolsCancel()
			si.toolsCancel = nil
		}

		si.mu.Lock()
		si.closed = true
		targets := make([]*Session, 0, len(si.sessions))
		for s := range si.sessions {
			targets = append(targets, s)
		}
		si.mu.Unlock()

		for _, s := range targets {
			s.close()
		}

		si.cancel()
		err = si.listener.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		_ = si.group.Wait()
		si.logger.Info("workspace server stopped")
	})
	return err
}
