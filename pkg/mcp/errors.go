package mcp

import "fmt"

// JSON-RPC 2.0 error codes, plus the server-side extensions for
// authentication (-32001) and session teardown (-32000).
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
	AuthRequired   = -32001
	SessionError   = -32000
)

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
