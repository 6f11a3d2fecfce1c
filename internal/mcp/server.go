// Package mcp implements a minimal JSON-RPC 2.0 server for the Model
// Context Protocol. It exposes registered tools over a pluggable
// transport and knows nothing about OData; the bridge layer wires the
// two together.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/mcptools/odata-bridge/internal/constants"
	"github.com/mcptools/odata-bridge/internal/transport"
)

// Tool is a single MCP tool as advertised by tools/list.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler executes a tool call. The returned value is rendered as
// the text content of the tool result.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Request is a decoded JSON-RPC request.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Server dispatches MCP requests to registered tool handlers.
type Server struct {
	name            string
	version         string
	protocolVersion string
	tools           map[string]*Tool
	toolOrder       []string // tools/list preserves registration order
	handlers        map[string]ToolHandler
	transport       transport.Transport
	ctx             context.Context
	cancel          context.CancelFunc
	mu              sync.RWMutex
	initialized     bool
}

// NewServer creates an MCP server with the default protocol version.
func NewServer(name, version string) *Server {
	// The default logger would write to stderr alongside stdio framing;
	// silence it so transports own the process streams.
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		name:            name,
		version:         version,
		protocolVersion: constants.MCPProtocolVersion,
		tools:           make(map[string]*Tool),
		toolOrder:       make([]string, 0),
		handlers:        make(map[string]ToolHandler),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// SetProtocolVersion overrides the advertised MCP protocol version.
func (s *Server) SetProtocolVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolVersion = version
}

// AddTool registers a tool and its handler. Re-registering a name
// replaces the tool but keeps its original position in tools/list.
func (s *Server) AddTool(tool *Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[tool.Name]; !exists {
		s.toolOrder = append(s.toolOrder, tool.Name)
	}
	s.tools[tool.Name] = tool
	s.handlers[tool.Name] = handler
}

// RemoveTool unregisters a tool by name.
func (s *Server) RemoveTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tools, name)
	delete(s.handlers, name)
	for i, toolName := range s.toolOrder {
		if toolName == name {
			s.toolOrder = append(s.toolOrder[:i], s.toolOrder[i+1:]...)
			break
		}
	}
}

// SortTools reorders tools/list alphabetically by tool name.
func (s *Server) SortTools() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Strings(s.toolOrder)
}

// GetTools returns the registered tools in registration order.
func (s *Server) GetTools() []*Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderedTools()
}

func (s *Server) orderedTools() []*Tool {
	tools := make([]*Tool, 0, len(s.tools))
	for _, name := range s.toolOrder {
		if tool, exists := s.tools[name]; exists {
			tools = append(tools, tool)
		}
	}
	return tools
}

// SetTransport attaches the transport the server runs over.
func (s *Server) SetTransport(t interface{}) {
	if trans, ok := t.(transport.Transport); ok {
		s.transport = trans
	}
}

// Run starts serving requests on the configured transport and blocks
// until the transport stops.
func (s *Server) Run() error {
	if s.transport == nil {
		return fmt.Errorf("transport not set")
	}
	return s.transport.Start(s.ctx)
}

// Stop shuts the server down.
func (s *Server) Stop() {
	s.cancel()
}

// HandleMessage processes one incoming message and returns the reply,
// or nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	if msg.JSONRPC != "2.0" {
		return s.errorResponse(msg.ID, -32600, "Invalid Request", "JSON-RPC version must be 2.0"), nil
	}

	req := &Request{
		JSONRPC: msg.JSONRPC,
		ID:      msg.ID,
		Method:  msg.Method,
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &req.Params); err != nil {
			return s.errorResponse(msg.ID, -32700, "Parse error", err.Error()), nil
		}
	} else {
		req.Params = make(map[string]interface{})
	}

	// Notifications carry no ID and get no response.
	if req.Method == "initialized" || req.Method == "notifications/initialized" {
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.response(req.ID, map[string]interface{}{"resources": []interface{}{}})
	case "prompts/list":
		return s.response(req.ID, map[string]interface{}{"prompts": []interface{}{}})
	case "ping":
		return s.response(req.ID, map[string]interface{}{})
	default:
		return s.errorResponse(req.ID, -32601, "Method not found", req.Method), nil
	}
}

func (s *Server) handleInitialize(req *Request) (*transport.Message, error) {
	result := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"prompts": map[string]interface{}{
				"listChanged": false,
			},
			"resources": map[string]interface{}{
				"listChanged": false,
				"subscribe":   false,
			},
			"tools": map[string]interface{}{
				"listChanged": true,
			},
		},
		"protocolVersion": s.protocolVersion,
		"serverInfo": map[string]interface{}{
			"name":    s.name,
			"version": s.version,
		},
	}
	return s.response(req.ID, result)
}

func (s *Server) handleToolsList(req *Request) (*transport.Message, error) {
	s.mu.RLock()
	tools := s.orderedTools()
	s.mu.RUnlock()

	return s.response(req.ID, map[string]interface{}{"tools": tools})
}

// handleToolsCall dispatches a tool invocation. Handler failures are
// reported as tool results with isError set rather than JSON-RPC
// errors, so clients surface the message to the model instead of
// failing the request.
func (s *Server) handleToolsCall(ctx context.Context, req *Request) (*transport.Message, error) {
	name, ok := req.Params["name"].(string)
	if !ok {
		return s.errorResponse(req.ID, -32602, "Invalid params", "Missing tool name"), nil
	}
	args, ok := req.Params["arguments"].(map[string]interface{})
	if !ok {
		args = make(map[string]interface{})
	}

	s.mu.RLock()
	handler, exists := s.handlers[name]
	s.mu.RUnlock()
	if !exists {
		return s.errorResponse(req.ID, -32602, "Invalid params", fmt.Sprintf("Tool not found: %s", name)), nil
	}

	result, err := handler(ctx, args)
	if err != nil {
		return s.response(req.ID, toolResult(fmt.Sprintf("Error in %s: %v", name, err), true))
	}
	return s.response(req.ID, toolResult(result, false))
}

func toolResult(content interface{}, isError bool) map[string]interface{} {
	result := map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": content,
			},
		},
	}
	if isError {
		result["isError"] = true
	}
	return result
}

// SendNotification writes a JSON-RPC notification to the transport.
func (s *Server) SendNotification(method string, params interface{}) error {
	if s.transport == nil {
		return fmt.Errorf("transport not set")
	}

	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return s.transport.WriteMessage(&transport.Message{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsBytes,
	})
}

// normalizeID marshals a request ID, substituting 0 for null or absent
// IDs. Some clients reject responses whose id is literal null.
func normalizeID(id interface{}) json.RawMessage {
	switch v := id.(type) {
	case json.RawMessage:
		if len(v) == 0 || string(v) == "null" {
			return json.RawMessage("0")
		}
		return v
	case nil:
		return json.RawMessage("0")
	default:
		raw, _ := json.Marshal(id)
		return raw
	}
}

func (s *Server) response(id interface{}, result interface{}) (*transport.Message, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &transport.Message{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Result:  resultBytes,
	}, nil
}

func (s *Server) errorResponse(id interface{}, code int, message, data string) *transport.Message {
	dataBytes, _ := json.Marshal(data)
	return &transport.Message{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error: &transport.Error{
			Code:    code,
			Message: message,
			Data:    dataBytes,
		},
	}
}
