package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/fastly-mcp/internal/logging"
	"github.com/aretw0/fastly-mcp/pkg/dispatch"
	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// Server exposes a Dispatcher as an MCP server.
type Server struct {
	dispatcher *dispatch.Dispatcher
	mcpServer  *server.MCPServer
	tools      []mcp.Tool
	name       string
	version    string
	logger     *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithName sets the server name reported on initialize.
func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version reported on initialize.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		name:       "fastly-mcp",
		version:    "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)

	s.mcpServer = server.NewMCPServer(s.name, s.version,
		server.WithToolCapabilities(false),
		server.WithToolHandlerMiddleware(s.recoverTool),
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	for _, desc := range s.dispatcher.Descriptors() {
		tool := toTool(desc)
		s.tools = append(s.tools, tool)
		s.mcpServer.AddTool(tool, s.handleCall)
	}
}

// Tools returns the tools in catalog order, as advertised on tools/list.
func (s *Server) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// HandleMessage answers one JSON-RPC message. It returns nil for notifications.
//
// tools/list is answered in catalog order, and tools/call for a name the
// registry lacks gets the dispatcher's error envelope instead of a protocol
// error. Everything else is handled by mcp-go.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	msg, ok := peek(raw)
	if ok && msg.isRequest() {
		switch mcp.MCPMethod(msg.Method) {
		case mcp.MethodToolsList:
			s.dispatcher.ListTools()
			return mcp.NewJSONRPCResultResponse(msg.id(), mcp.ListToolsResult{Tools: s.Tools()})
		case mcp.MethodToolsCall:
			if !s.dispatcher.Has(msg.Params.Name) {
				env := s.dispatcher.CallTool(ctx, domain.Invocation{
					Name:         msg.Params.Name,
					Arguments:    msg.arguments(),
					RawArguments: msg.Params.Arguments,
				})
				return mcp.NewJSONRPCResultResponse(msg.id(), toResult(env))
			}
			ctx = context.WithValue(ctx, rawArgumentsKey{}, msg.Params.Arguments)
		}
	}
	return s.mcpServer.HandleMessage(ctx, raw)
}

// rawArgumentsKey carries the undecoded tools/call arguments to handleCall.
type rawArgumentsKey struct{}

func (s *Server) handleCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, _ := ctx.Value(rawArgumentsKey{}).(json.RawMessage)
	env := s.dispatcher.CallTool(ctx, domain.Invocation{
		Name:         req.Params.Name,
		Arguments:    req.GetArguments(),
		RawArguments: raw,
	})
	return toResult(env), nil
}

// recoverTool keeps a fault in result conversion from escaping as a protocol error.
func (s *Server) recoverTool(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(fmt.Sprintf("Panic in tool handler %s: %v", req.Params.Name, r))
				result = mcp.NewToolResultError("Error: internal error handling " + req.Params.Name)
				err = nil
			}
		}()
		return next(ctx, req)
	}
}

func toTool(desc domain.ToolDescriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(desc.Description)}
	for _, p := range desc.InputSchema.Properties {
		popts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if desc.InputSchema.IsRequired(p.Name) {
			popts = append(popts, mcp.Required())
		}
		if len(p.Enum) > 0 {
			popts = append(popts, mcp.Enum(p.Enum...))
		}

		switch p.Type {
		case domain.PropertyObject:
			opts = append(opts, mcp.WithObject(p.Name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, popts...))
		}
	}
	return mcp.NewTool(desc.Name, opts...)
}

func toResult(env domain.Envelope) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(env.Content))
	for _, c := range env.Content {
		content = append(content, mcp.NewTextContent(c.Text))
	}
	return &mcp.CallToolResult{Content: content, IsError: env.IsError}
}

// message is the subset of a JSON-RPC message needed for routing.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"params"`
}

func peek(raw json.RawMessage) (message, bool) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return message{}, false
	}
	return msg, msg.JSONRPC == mcp.JSONRPC_VERSION
}

func (m message) isRequest() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null")) && m.Method != ""
}

func (m message) id() mcp.RequestId {
	var id mcp.RequestId
	_ = json.Unmarshal(m.ID, &id)
	return id
}

func (m message) arguments() map[string]any {
	var args map[string]any
	_ = json.Unmarshal(m.Params.Arguments, &args)
	return args
}
