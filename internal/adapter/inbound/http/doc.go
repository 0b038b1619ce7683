// Package http is the inbound HTTP adapter: it serves the MCP
// JSON-RPC endpoint, the configured REST endpoints with their
// per-endpoint auth policies, and the health and metrics surfaces.
//
// Routes:
//
//	POST   /mcp/jsonrpc   one JSON-RPC exchange (session via Mcp-Session-Id header)
//	DELETE /mcp/jsonrpc   session teardown
//	GET    /mcp/health    server and registry status, no auth
//	GET    /metrics       Prometheus metrics
//	*      /api/...       configured REST endpoints (Layer-2 auth)
//
// JSON-RPC-level failures are carried in the response body with HTTP
// 200; HTTP status codes are reserved for transport-level problems.
package http
