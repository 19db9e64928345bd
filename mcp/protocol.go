// Package mcp implements the Model Context Protocol surface served over
// stdio: initialization, ping, and the tool listing/invocation methods.
package mcp

import "github.com/google/jsonschema-go/jsonschema"

// Version is the Model Context Protocol version.
const Version = "2024-11-05"

// Role represents the sender or recipient of messages and data in a
// conversation.
type Role string

const (
	// RoleUser represents the user.
	RoleUser Role = "user"

	// RoleAssistant represents the assistant.
	RoleAssistant Role = "assistant"
)

// Content types
type (
	// Annotations represents optional annotations for objects.
	Annotations struct {
		// Describes who the intended customer of this object or data is
		Audience []Role `json:"audience,omitempty"`
		// Describes how important this data is for operating the server (0-1)
		Priority *float64 `json:"priority,omitempty"`
	}

	// Content represents the base content type.
	Content struct {
		Type        string       `json:"type"`
		Text        string       `json:"text,omitempty"`
		Data        string       `json:"data,omitempty"`
		MimeType    string       `json:"mimeType,omitempty"`
		Annotations *Annotations `json:"annotations,omitempty"`
	}
)

// NewTextContent creates a new text Content with the given text and
// optional annotations.
func NewTextContent(text string, audience []Role, priority *float64) Content {
	return Content{
		Type: "text",
		Text: text,
		Annotations: &Annotations{
			Audience: audience,
			Priority: priority,
		},
	}
}

// Initialize
type (
	// ServerCapabilities represents the server's supported capabilities.
	ServerCapabilities struct {
		Experimental map[string]interface{} `json:"experimental,omitempty"`
		Logging      *struct{}              `json:"logging,omitempty"`
		Tools        *struct {
			ListChanged bool `json:"listChanged"`
		} `json:"tools,omitempty"`
	}

	// ServerInfo represents information about an MCP implementation.
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	// InitializeResponse represents the server's response to an initialize
	// request.
	InitializeResponse struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ServerCapabilities `json:"capabilities"`
		ServerInfo      ServerInfo         `json:"serverInfo"`
		Instructions    string             `json:"instructions,omitempty"`
	}
)

// Tools
type (
	// Tool represents a single tool in the tools/list response.
	Tool struct {
		Name        string             `json:"name"`
		Description string             `json:"description,omitempty"`
		InputSchema *jsonschema.Schema `json:"inputSchema"`
	}

	// ToolsListRequest represents a request to list available tools.
	ToolsListRequest struct {
		Cursor string `json:"cursor,omitempty"`
	}

	// ToolsListResponse represents the response for the tools/list method.
	ToolsListResponse struct {
		Tools      []Tool `json:"tools"`
		NextCursor string `json:"nextCursor,omitempty"`
	}

	// ToolCallRequest represents a request to call a specific tool.
	ToolCallRequest struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments,omitempty"`
	}

	// ToolCallResponse represents the response from a tool call.
	ToolCallResponse struct {
		Content []Content `json:"content"`
		IsError bool      `json:"isError,omitempty"`
	}
)

// Ping
type (
	// PingRequest represents a ping request.
	PingRequest struct{}

	// PingResponse represents the response for ping.
	PingResponse struct{}
)
