package protocol

const (
	// ProtocolBaseline is the protocol revision advertised when the client
	// does not request a specific version during initialize.
	ProtocolBaseline = "2024-11-05"

	// Methods for lifecycle management
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"

	// Methods for server features
	MethodListTools     = "tools/list"
	MethodCallTool      = "tools/call"
	MethodListPrompts   = "prompts/list"
	MethodListResources = "resources/list"

	// Notifications
	MethodRootsListChanged = "notifications/roots/list_changed"
	MethodToolsListChanged = "notifications/tools/list_changed"

	// Methods for utilities
	MethodPing = "ping"
)

// ClientInfo describes the connecting client
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo describes the server identity advertised during initialize
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams defines parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string      `json:"protocolVersion,omitempty"`
	ClientInfo      *ClientInfo `json:"clientInfo,omitempty"`
}

// ToolsCapability declares tool-related capabilities
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerCapabilities declares the capability surface of the server.
// Resources and Prompts are advertised as empty objects: the methods are
// answered, but always with empty lists.
type ServerCapabilities struct {
	Tools     ToolsCapability `json:"tools"`
	Resources struct{}        `json:"resources"`
	Prompts   struct{}        `json:"prompts"`
}

// InitializeResult defines the response to an initialize request
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ListToolsResult defines the response for listing tools
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// ListPromptsResult defines the response for listing prompts
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// ListResourcesResult defines the response for listing resources
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// Prompt is a placeholder: the prompts feature is not supported and
// prompts/list always answers with an empty list.
type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Resource is a placeholder: the resources feature is not supported and
// resources/list always answers with an empty list.
type Resource struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}
