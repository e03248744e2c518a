package mcpd

import (
	"github.com/zaucy/mcpd/pkg/client"
	"github.com/zaucy/mcpd/pkg/protocol"
	"github.com/zaucy/mcpd/pkg/server"
	"github.com/zaucy/mcpd/pkg/tools"
)

// Re-exported types so simple hosts can depend on the root package alone.
type (
	// Registry tracks one server instance per workspace path.
	Registry = server.Registry
	// Config configures a Registry.
	Config = server.Config
	// Entry is one workspace's running instance, port, and auth token.
	Entry = server.Entry
	// ServerInstance is a single workspace server.
	ServerInstance = server.ServerInstance

	// Tool describes an invocable tool.
	Tool = protocol.Tool
	// ToolHandler is the function invoked for tools/call.
	ToolHandler = tools.Handler
	// ToolRegistry holds the registered tools.
	ToolRegistry = tools.Registry

	// Client connects to a workspace server.
	Client = client.Client
)

// NewRegistry creates a server registry; nil config gets defaults
func NewRegistry(config *Config) *Registry {
	return server.NewRegistry(config)
}

// DefaultConfig returns the default registry configuration
func DefaultConfig() *Config {
	return server.DefaultConfig()
}

// NewToolRegistry creates an empty tool registry
func NewToolRegistry() *ToolRegistry {
	return tools.NewRegistry()
}

// Dial connects a client to a server address
func Dial(addr string, opts ...client.Option) (*Client, error) {
	return client.Dial(addr, opts...)
}
