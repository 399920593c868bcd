// Package mcpproto hand-rolls the JSON-RPC 2.0 parse/route/error-shape
// layer for the MCP Protocol Layer (spec §4.9). mark3labs/mcp-go's wire
// types (mcp.Tool, mcp.CallToolRequest, ...) are reused by the schema
// catalog and dispatcher adapters, but the request lifecycle itself —
// parsing, validating, routing to a method, shaping error responses — is
// implemented here because the dispatch/transport behavior this package
// embodies is itself core, testable surface, not glue to delegate to a
// third-party server runtime.
package mcpproto

import (
	"encoding/json"
)

// Error codes per spec §4.9 (matching the JSON-RPC 2.0 spec's reserved
// range).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ID is a JSON-RPC request id: string, number, or null. Only those shapes
// are legal; anything else is an Invalid Request.
type ID struct {
	value any
	isSet bool
}

// NewID wraps a decoded id value.
func NewID(v any) ID { return ID{value: v, isSet: v != nil} }

// IsNull reports whether this id is the JSON null (a notification carries
// no id at all, which is distinct from an explicit null id).
func (i ID) IsNull() bool { return i.isSet && i.value == nil }

// MarshalJSON renders the id back out, or JSON null if unset.
func (i ID) MarshalJSON() ([]byte, error) {
	if !i.isSet {
		return []byte("null"), nil
	}
	return json.Marshal(i.value)
}

// UnmarshalJSON accepts string, number, or null.
func (i *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case string, float64, nil:
		i.value = v
		i.isSet = true
		return nil
	default:
		return errInvalidIDType
	}
}

var errInvalidIDType = &jsonError{Code: CodeInvalidRequest, Message: "id must be a string, number, or null"}

type jsonError struct {
	Code    int
	Message string
}

func (e *jsonError) Error() string { return e.Message }

// Request is one decoded JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id (per spec, not
// to be answered).
func (r Request) IsNotification() bool { return r.ID == nil }

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is one JSON-RPC response.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      ID        `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

func errorResponse(id ID, code int, message string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func resultResponse(id ID, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// MethodFunc handles one parsed method call's params and returns a result
// (marshalled as the response's "result") or an error. Returning an
// *RPCError preserves its code/data; any other error becomes
// CodeInternalError with the error's type name as data.
type MethodFunc func(params json.RawMessage) (any, error)

// Server routes JSON-RPC requests to registered methods.
type Server struct {
	methods map[string]MethodFunc
}

// NewServer builds an empty Server.
func NewServer() *Server {
	return &Server{methods: make(map[string]MethodFunc)}
}

// Handle registers fn for method.
func (s *Server) Handle(method string, fn MethodFunc) {
	s.methods[method] = fn
}

// HandleRaw parses raw as a single JSON-RPC message, routes it, and returns
// the serialized response. It returns nil when raw is a notification or a
// bare response object from the peer (per spec, neither is answered).
func (s *Server) HandleRaw(raw []byte) []byte {
	resp := s.process(raw)
	if resp == nil {
		return nil
	}
	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(errorResponse(NewID(nil), CodeInternalError, "failed to encode response", nil))
	}
	return out
}

func (s *Server) process(raw []byte) *Response {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return errorResponse(NewID(nil), CodeParseError, "parse error: "+err.Error(), nil)
	}

	// Responses (result/error present, no method) from the peer are
	// dropped silently.
	if _, hasMethod := probe["method"]; !hasMethod {
		if _, hasResult := probe["result"]; hasResult {
			return nil
		}
		if _, hasError := probe["error"]; hasError {
			return nil
		}
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(NewID(nil), CodeInvalidRequest, "invalid request: "+err.Error(), nil)
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		id := NewID(nil)
		if req.ID != nil {
			id = *req.ID
		}
		return errorResponse(id, CodeInvalidRequest, "invalid request: jsonrpc must be \"2.0\" and method is required", nil)
	}

	fn, ok := s.methods[req.Method]
	if !ok {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(*req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	result, err := fn(req.Params)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok {
			return &Response{JSONRPC: "2.0", ID: *req.ID, Error: rpcErr}
		}
		return errorResponse(*req.ID, CodeInternalError, err.Error(), errorTypeName(err))
	}
	return resultResponse(*req.ID, result)
}

func errorTypeName(err error) string {
	switch err.(type) {
	case *jsonError:
		return "jsonError"
	default:
		return "error"
	}
}

// InvalidParams builds an *RPCError with CodeInvalidParams, for method
// handlers to return directly.
func InvalidParams(message string) error {
	return &RPCError{Code: CodeInvalidParams, Message: message}
}

func (e *RPCError) Error() string { return e.Message }
