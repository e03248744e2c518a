// Package tools holds the name→handler registry of operations the host
// application exposes to connected clients.
package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/zaucy/mcpd/pkg/protocol"
)

// Handler executes one tool call. Handlers are scheduled onto the host's
// execution context by the dispatcher and are synchronous from its point of
// view: there is no timeout and no cancellation beyond the passed context.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

type entry struct {
	spec    protocol.Tool
	handler Handler
}

// Registry is a mutex-guarded table of registered tools. A name is unique;
// re-registering replaces the previous handler and specification.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]entry
	onChanged  map[int]func()
	nextHookID int
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]entry),
		onChanged: make(map[int]func()),
	}
}

// Register adds or replaces a tool and fires the change hooks
func (r *Registry) Register(spec protocol.Tool, handler Handler) {
	r.mu.Lock()
	r.tools[spec.Name] = entry{spec: spec, handler: handler}
	hooks := r.snapshotHooks()
	r.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// Unregister removes a tool by name; it reports whether the tool existed
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.tools[name]
	if ok {
		delete(r.tools, name)
	}
	hooks := r.snapshotHooks()
	r.mu.Unlock()

	if ok {
		for _, hook := range hooks {
			hook()
		}
	}
	return ok
}

// snapshotHooks copies the current hooks; callers hold r.mu.
func (r *Registry) snapshotHooks() []func() {
	hooks := make([]func(), 0, len(r.onChanged))
	for _, hook := range r.onChanged {
		hooks = append(hooks, hook)
	}
	return hooks
}

// Resolve looks up the handler for a tool name
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// List returns the full current specification list, sorted by name
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Tool, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// OnChanged registers a hook invoked after every Register/Unregister and
// returns a function that removes it. Server instances use the hook to
// broadcast tools/list_changed notifications and release it when they
// close, so restart cycles do not accumulate hooks on a shared registry.
func (r *Registry) OnChanged(hook func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextHookID
	r.nextHookID++
	r.onChanged[id] = hook

	return func() {
		r.mu.Lock()
		delete(r.onChanged, id)
		r.mu.Unlock()
	}
}
