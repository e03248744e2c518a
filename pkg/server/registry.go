package server

import (
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zaucy/mcpd/pkg/auth"
	daemonerrors "github.com/zaucy/mcpd/pkg/errors"
	"github.com/zaucy/mcpd/pkg/logging"
	"github.com/zaucy/mcpd/pkg/observability"
	"github.com/zaucy/mcpd/pkg/protocol"
	"github.com/zaucy/mcpd/pkg/tools"
)

// Entry is one registry record: a running instance plus its connection
// material. The auth token is minted per instance and handed to the
// creation callback so the host can pass it to clients out of band.
type Entry struct {
	Instance  *ServerInstance
	Port      int
	AuthToken string
}

// CreateCallback runs after a new instance is created, before EnsureServer
// returns. It does not run for lookups that find an existing instance.
type CreateCallback func(workspace string, entry *Entry)

// Config holds registry-wide settings shared by every instance it creates
type Config struct {
	// ServerInfo is advertised to clients during initialize.
	ServerInfo protocol.ServerInfo

	// ListenHost is the loopback address instances bind on.
	ListenHost string

	// Tools is the registry of invocable tools shared by all instances.
	// Nil gets a fresh empty registry.
	Tools *tools.Registry

	// Scheduler runs tool handlers. Nil gets a registry-owned Loop that
	// Shutdown stops.
	Scheduler Scheduler

	Logger  logging.Logger
	Metrics *observability.Metrics

	// OnCreate runs once per newly created instance.
	OnCreate CreateCallback

	// OnInitialized runs each time a client of the named workspace
	// completes the initialize handshake.
	OnInitialized func(workspace string)
}

// DefaultConfig returns the default registry configuration
func DefaultConfig() *Config {
	return &Config{
		ServerInfo: protocol.ServerInfo{Name: "mcpd", Version: "0.1.0"},
		ListenHost: "127.0.0.1",
	}
}

// Registry tracks at most one ServerInstance per normalized workspace
// path. It is a plain value the host constructs and owns; nothing here
// is process-global.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	config  *Config
	tokens  *auth.TokenStore

	// ownLoop is set when the registry created its own scheduler and is
	// responsible for stopping it.
	ownLoop *Loop
}

// NewRegistry creates a server registry, filling config defaults
func NewRegistry(config *Config) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ServerInfo.Name == "" {
		config.ServerInfo = protocol.ServerInfo{Name: "mcpd", Version: "0.1.0"}
	}
	if config.ListenHost == "" {
		config.ListenHost = "127.0.0.1"
	}
	if config.Tools == nil {
		config.Tools = tools.NewRegistry()
	}
	if config.Logger == nil {
		config.Logger = logging.New(os.Stderr, nil)
	}

	r := &Registry{
		entries: make(map[string]*Entry),
		config:  config,
		tokens:  auth.NewTokenStore(),
	}
	if config.Scheduler == nil {
		r.ownLoop = NewLoop()
		config.Scheduler = r.ownLoop
	}
	return r
}

// NormalizeWorkspacePath resolves a workspace path to the canonical form
// used as the registry key. "/a/b" and "/a/b/" normalize identically.
func NormalizeWorkspacePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", daemonerrors.WrapError(err, daemonerrors.CodeInvalidParams,
			"normalize workspace path", daemonerrors.CategoryValidation, daemonerrors.SeverityError)
	}
	return filepath.Clean(abs), nil
}

// EnsureServer returns the instance for the workspace, creating it on
// first use. Creation binds an ephemeral loopback port, mints an auth
// token, and fires the OnCreate callback; subsequent calls for the same
// normalized path return the existing entry untouched.
func (r *Registry) EnsureServer(workspace string) (*Entry, error) {
	key, err := NormalizeWorkspacePath(workspace)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if entry, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return entry, nil
	}

	inst, err := newServerInstance(key, r.config)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	entry := &Entry{
		Instance:  inst,
		Port:      inst.Port(),
		AuthToken: r.tokens.Issue(key),
	}
	r.entries[key] = entry
	r.mu.Unlock()

	// The callback runs without the registry lock so it can call back in
	// (GetServer, Workspaces, EnsureServer for a sibling workspace).
	if r.config.OnCreate != nil {
		r.config.OnCreate(key, entry)
	}
	return entry, nil
}

// Tools returns the tool registry shared by every instance
func (r *Registry) Tools() *tools.Registry {
	return r.config.Tools
}

// Tokens returns the store of per-workspace auth tokens. Tokens are issued
// on instance creation and revoked when StopAll tears the instance down,
// so the store always mirrors Entry.AuthToken for live workspaces.
func (r *Registry) Tokens() *auth.TokenStore {
	return r.tokens
}

// GetServer looks up the instance for a workspace without creating one
func (r *Registry) GetServer(workspace string) (*Entry, bool) {
	key, err := NormalizeWorkspacePath(workspace)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	return entry, ok
}

// Workspaces returns the normalized paths with a running instance
func (r *Registry) Workspaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.entries))
	for key := range r.entries {
		paths = append(paths, key)
	}
	return paths
}

// StopAll closes every instance and empties the registry. Instances shut
// down concurrently; the first close error, if any, is returned after all
// have stopped.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for key, entry := range r.entries {
		entries = append(entries, entry)
		r.tokens.Revoke(key)
	}
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	var group errgroup.Group
	for _, entry := range entries {
		inst := entry.Instance
		group.Go(inst.Close)
	}
	return group.Wait()
}

// RestartAll stops every instance and recreates one per previously served
// workspace. Ports and auth tokens are reissued; creation callbacks fire
// again for each workspace.
func (r *Registry) RestartAll() error {
	r.mu.Lock()
	paths := make([]string, 0, len(r.entries))
	for key := range r.entries {
		paths = append(paths, key)
	}
	r.mu.Unlock()

	if err := r.StopAll(); err != nil {
		return err
	}
	for _, path := range paths {
		if _, err := r.EnsureServer(path); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops every instance and, when the registry owns its
// scheduler, the scheduler too. The registry remains usable afterward,
// except that a registry-owned scheduler does not restart.
func (r *Registry) Shutdown() error {
	err := r.StopAll()
	if r.ownLoop != nil {
		r.ownLoop.Stop()
	}
	return err
}
