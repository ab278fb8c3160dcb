package mcprpc

// JSON-RPC methods implemented by the MCP plane (spec §6).
const (
	MethodInitialize        = "initialize"
	MethodNotificationsInit = "notifications/initialized"
	MethodToolsList         = "tools/list"
	MethodToolsCall         = "tools/call"
	MethodResourcesList     = "resources/list"
	MethodResourcesRead     = "resources/read"
	MethodPing              = "ping"
)

// DefaultProtocolVersion is the client's initial proposal on initialize
// (spec §4.3 step 2 / Open Question 4). The client must record and echo
// whatever the server actually negotiates, not this constant, on every
// subsequent exchange.
const DefaultProtocolVersion = "2025-06-18"

// InitializeParams is the params object sent with "initialize".
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// ClientInfo identifies the calling client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo identifies the responding server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result object returned by "initialize".
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ServerInfo             `json:"serverInfo"`
	Instructions    string                 `json:"instructions,omitempty"`
}

// ToolCallParams is the params object for "tools/call".
type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ContentBlock is a single piece of tool/resource output (spec §4.5
// "Output shaping").
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult is the result object for "tools/call". Metadata carries
// a taskId when the call is long-running (spec §4.3 "task-polling").
type ToolCallResult struct {
	Content  []ContentBlock         `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	IsError  bool                   `json:"isError,omitempty"`
}

// Tool describes a single MCP tool (spec §4.2 aggregator annotates name/metadata).
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ToolsListResult is the result object for "tools/list".
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// Resource describes a single MCP resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourcesListResult is the result object for "resources/list".
type ResourcesListResult struct {
	Resources []Resource `json:"resources"`
}

// ResourceReadParams is the params object for "resources/read".
type ResourceReadParams struct {
	URI string `json:"uri"`
}

// ResourceReadResult is the result object for "resources/read".
type ResourceReadResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent is one item of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}
