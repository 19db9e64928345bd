package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/loopwork-ai/ignition-mcp/jsonrpc"
	"github.com/loopwork-ai/ignition-mcp/tools"
)

// Server translates JSON-RPC requests into tool dispatcher calls.
type Server struct {
	dispatcher *tools.Dispatcher
	info       ServerInfo
	logger     *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDispatcher sets the tool dispatcher backing the server.
func WithDispatcher(d *tools.Dispatcher) ServerOption {
	return func(s *Server) {
		s.dispatcher = d
	}
}

// WithServerInfo sets the name and version reported on initialize.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.info = ServerInfo{Name: name, Version: version}
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP server instance.
func NewServer(opts ...ServerOption) (*Server, error) {
	s := &Server{
		info:   ServerInfo{Name: "ignition-mcp", Version: "dev"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		return nil, fmt.Errorf("server requires a tool dispatcher")
	}
	return s, nil
}

var _ jsonrpc.Handler = &Server{}

// Handle processes a single JSON-RPC request and returns a response.
func (s *Server) Handle(ctx context.Context, request jsonrpc.Request) jsonrpc.Response {
	s.logger.Debug("handling request", "method", request.Method)

	switch request.Method {
	case "initialize":
		return s.handleInitialize(request)
	case "notifications/initialized", "initialized":
		// Notification; the transport drops the response.
		return jsonrpc.Response{}
	case "ping":
		return jsonrpc.NewResponse(request.Id, PingResponse{}, nil)
	case "tools/list":
		return s.handleToolsList(request)
	case "tools/call":
		return s.handleToolsCall(ctx, request)
	default:
		return jsonrpc.NewResponse(request.Id, nil, jsonrpc.NewError(jsonrpc.ErrMethodNotFound, nil))
	}
}

func (s *Server) handleInitialize(request jsonrpc.Request) jsonrpc.Response {
	response := InitializeResponse{
		ProtocolVersion: Version,
		Capabilities: ServerCapabilities{
			Tools: &struct {
				ListChanged bool `json:"listChanged"`
			}{ListChanged: false},
		},
		ServerInfo: s.info,
	}
	return jsonrpc.NewResponse(request.Id, response, nil)
}

func (s *Server) handleToolsList(request jsonrpc.Request) jsonrpc.Response {
	defs := s.dispatcher.List()

	listed := make([]Tool, 0, len(defs))
	for _, def := range defs {
		listed = append(listed, Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}

	return jsonrpc.NewResponse(request.Id, ToolsListResponse{Tools: listed}, nil)
}

func (s *Server) handleToolsCall(ctx context.Context, request jsonrpc.Request) jsonrpc.Response {
	var params ToolCallRequest
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return jsonrpc.NewResponse(request.Id, nil, jsonrpc.NewError(jsonrpc.ErrInvalidParams, err.Error()))
	}
	if params.Name == "" {
		return jsonrpc.NewResponse(request.Id, nil, jsonrpc.NewError(jsonrpc.ErrInvalidParams, "tool name is required"))
	}

	result := s.dispatcher.Execute(ctx, params.Name, params.Arguments)

	audience := []Role{RoleAssistant}
	if !result.Success {
		return jsonrpc.NewResponse(request.Id, ToolCallResponse{
			Content: []Content{NewTextContent(result.Error, audience, nil)},
			IsError: true,
		}, nil)
	}

	text, err := json.MarshalIndent(result.Data, "", "  ")
	if err != nil {
		return jsonrpc.NewResponse(request.Id, nil, jsonrpc.NewError(jsonrpc.ErrInternal, err.Error()))
	}

	return jsonrpc.NewResponse(request.Id, ToolCallResponse{
		Content: []Content{NewTextContent(string(text), audience, nil)},
	}, nil)
}
