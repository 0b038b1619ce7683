package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/flapi-dev/flapi/internal/service"
	"github.com/flapi-dev/flapi/pkg/mcp"
)

// maxBodySize bounds the JSON-RPC request body (1 MiB).
const maxBodySize = 1 << 20

// mcpHandler serves the JSON-RPC endpoint: POST runs one exchange
// through the dispatcher, DELETE tears the session down.
func mcpHandler(dispatcher *service.Dispatcher, metrics *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				writeJSONRPC(w, mcp.NewError(mcp.RequestID{}, mcp.ParseError, "Parse error: "+err.Error()), "")
				return
			}
			recordMethod(metrics, body)

			resp, sessionID := dispatcher.Dispatch(r.Context(), r, body)
			if metrics != nil && resp.Error != nil && resp.Error.Code == mcp.AuthRequired {
				metrics.AuthFailuresTotal.WithLabelValues("protocol").Inc()
			}
			writeJSONRPC(w, resp, sessionID)

		case http.MethodDelete:
			sessionID := r.Header.Get(mcp.SessionHeader)
			resp := dispatcher.Teardown(sessionID)
			writeJSONRPC(w, resp, sessionID)

		default:
			w.Header().Set("Allow", "POST, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// recordMethod counts the JSON-RPC method without disturbing the
// dispatcher's own parse handling.
func recordMethod(metrics *Metrics, body []byte) {
	if metrics == nil {
		return
	}
	var peek struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &peek); err == nil && peek.Method != "" {
		metrics.MCPMethodsTotal.WithLabelValues(peek.Method).Inc()
	}
}

// writeJSONRPC writes the response with HTTP 200. JSON-RPC errors ride
// in the body; the session header is echoed whenever a session is active.
func writeJSONRPC(w http.ResponseWriter, resp *mcp.Response, sessionID string) {
	w.Header().Set("Content-Type", "application/json")
	if sessionID != "" {
		w.Header().Set(mcp.SessionHeader, sessionID)
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
