package mcpproto

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jaakkos/masc/internal/dispatcher"
)

// ServerInfo identifies this implementation in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises which optional protocol areas this server
// implements.
type Capabilities struct {
	Tools     map[string]any `json:"tools,omitempty"`
	Resources map[string]any `json:"resources,omitempty"`
	Prompts   map[string]any `json:"prompts,omitempty"`
}

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
	Instructions    string       `json:"instructions,omitempty"`
}

// SupportedProtocolVersion is what initialize echoes back regardless of
// the client's requested version, per spec §4.9's "echoes a normalized
// version" rule.
const SupportedProtocolVersion = "2024-11-05"

// ToolInvoker dispatches one tools/call request; *dispatcher.Dispatcher
// satisfies it directly.
type ToolInvoker interface {
	Dispatch(name string, arguments map[string]any, actx dispatcher.AgentContext) dispatcher.Result
}

// ToolCatalog lists tool schemas filtered by the room's enabled feature
// categories (spec §6 "modes").
type ToolCatalog interface {
	List() []mcp.Tool
}

// RegisterMethods wires initialize/initialized/resources/prompts/tools
// onto s. instructions is the static agent-facing text returned by
// initialize; actxFor resolves per-call agent context (session/terminal
// ids) from whatever transport-specific data the caller captures in it.
func RegisterMethods(s *Server, catalog ToolCatalog, invoker ToolInvoker, resources *ResourceCatalog, instructions string, actxFor func() dispatcher.AgentContext) {
	s.Handle("initialize", func(params json.RawMessage) (any, error) {
		var req struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, InvalidParams("invalid initialize params: " + err.Error())
			}
		}
		return InitializeResult{
			ProtocolVersion: SupportedProtocolVersion,
			ServerInfo:      ServerInfo{Name: "masc", Version: "1"},
			Capabilities: Capabilities{
				Tools:     map[string]any{"listChanged": false},
				Resources: map[string]any{"listChanged": false},
				Prompts:   map[string]any{"listChanged": false},
			},
			Instructions: instructions,
		}, nil
	})

	s.Handle("initialized", noopNotification)
	s.Handle("notifications/initialized", noopNotification)

	s.Handle("resources/list", func(params json.RawMessage) (any, error) {
		return map[string]any{"resources": resources.Resources}, nil
	})
	s.Handle("resources/templates/list", func(params json.RawMessage) (any, error) {
		return map[string]any{"resourceTemplates": resources.Templates}, nil
	})
	s.Handle("resources/read", func(params json.RawMessage) (any, error) {
		var req struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(params, &req); err != nil || req.URI == "" {
			return nil, InvalidParams("resources/read requires a non-empty uri")
		}
		content, err := resources.ReadResource(req.URI)
		if err != nil {
			return nil, err
		}
		return map[string]any{"contents": []*ResourceContent{content}}, nil
	})

	s.Handle("prompts/list", func(params json.RawMessage) (any, error) {
		return map[string]any{"prompts": []any{}}, nil
	})

	s.Handle("tools/list", func(params json.RawMessage) (any, error) {
		return map[string]any{"tools": catalog.List()}, nil
	})
	s.Handle("tools/call", func(params json.RawMessage) (any, error) {
		var req struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(params, &req); err != nil || req.Name == "" {
			return nil, InvalidParams("tools/call requires a non-empty name")
		}
		actx := dispatcher.AgentContext{}
		if actxFor != nil {
			actx = actxFor()
		}
		result := invoker.Dispatch(req.Name, req.Arguments, actx)
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": result.Text}},
			"isError": !result.Success,
		}, nil
	})
}

func noopNotification(params json.RawMessage) (any, error) { return nil, nil }
