// Package mcp provides the JSON-RPC 2.0 message types used by the
// flAPI MCP server: requests with verbatim-preserved IDs, responses
// that carry exactly one of result or error, and the protocol version
// negotiation rules.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SessionHeader is the HTTP header carrying the opaque session token.
const SessionHeader = "Mcp-Session-Id"

// RequestID is the polymorphic JSON-RPC id: string, number, or null/absent.
// The raw JSON is preserved so responses echo the id byte-for-byte.
type RequestID struct {
	raw json.RawMessage
}

// StringID builds a RequestID from a string value. Mostly useful in tests.
func StringID(s string) RequestID {
	b, _ := json.Marshal(s)
	return RequestID{raw: b}
}

// NumberID builds a RequestID from a numeric value.
func NumberID(n int64) RequestID {
	b, _ := json.Marshal(n)
	return RequestID{raw: b}
}

// IsNull reports whether the id was absent or JSON null.
func (id RequestID) IsNull() bool {
	return len(id.raw) == 0 || bytes.Equal(id.raw, []byte("null"))
}

// String renders the id for logging only; it is never written to the wire.
func (id RequestID) String() string {
	if id.IsNull() {
		return "<null>"
	}
	return string(id.raw)
}

// MarshalJSON writes the original bytes back out, or null when absent.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if len(id.raw) == 0 {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON keeps the raw bytes. Objects and arrays are rejected:
// JSON-RPC permits only strings, numbers, and null.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return fmt.Errorf("invalid request id type: %s", trimmed[0:1])
	}
	id.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// Request is an inbound JSON-RPC request. Params stay raw so each
// method handler decodes only the shape it needs.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      RequestID       `json:"id"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC response. Exactly one of Result or
// Error is set; the id echoes the request's id verbatim.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a success response, marshalling v as the result.
func NewResult(id RequestID, v any) *Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return NewError(id, InternalError, "Internal error: "+err.Error())
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}
}

// NewError builds an error response with the given code and message.
func NewError(id RequestID, code int, message string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// Content is one item of a tool or resource result payload.
type Content struct {
	Type     string `json:"type,omitempty"`
	Text     string `json:"text,omitempty"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the result shape of tools/call.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextToolResult wraps plain text in the tools/call result shape.
func TextToolResult(text string) ToolResult {
	return ToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// ResourceContents is the result shape of resources/read.
type ResourceContents struct {
	Contents []Content `json:"contents"`
}

// PromptMessage is a single message in a prompts/get result.
type PromptMessage struct {
	Role    string        `json:"role"`
	Content PromptContent `json:"content"`
}

// PromptContent is the content of a prompt message.
type PromptContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptResult is the result shape of prompts/get.
type PromptResult struct {
	Description string          `json:"description"`
	Messages    []PromptMessage `json:"messages"`
}

// CompletionResult is the result shape of completion/complete.
type CompletionResult struct {
	Values  []string `json:"values"`
	Total   int      `json:"total"`
	HasMore bool     `json:"hasMore"`
}
