package http

import (
	"encoding/json"
	"net/http"

	"github.com/flapi-dev/flapi/internal/domain/session"
	"github.com/flapi-dev/flapi/internal/service"
	"github.com/flapi-dev/flapi/pkg/mcp"
)

// HealthResponse is the JSON response from the /mcp/health endpoint.
type HealthResponse struct {
	Status          string `json:"status"`
	MCPAvailable    bool   `json:"mcp_available"`
	ServerName      string `json:"server_name"`
	ServerVersion   string `json:"server_version"`
	ProtocolVersion string `json:"protocol_version"`
	ToolsCount      int    `json:"tools_count"`
	ResourcesCount  int    `json:"resources_count"`
	PromptsCount    int    `json:"prompts_count"`
	ActiveSessions  int    `json:"active_sessions"`
}

// HealthChecker reports server identity and discovered registry sizes.
// Served without authentication.
type HealthChecker struct {
	info      service.ServerInfo
	discovery *service.Discovery
	sessions  *session.Manager
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(info service.ServerInfo, discovery *service.Discovery, sessions *session.Manager) *HealthChecker {
	return &HealthChecker{info: info, discovery: discovery, sessions: sessions}
}

// Check builds the current health payload.
func (h *HealthChecker) Check() HealthResponse {
	tools, resources, prompts := h.discovery.Counts()
	return HealthResponse{
		Status:          "healthy",
		MCPAvailable:    true,
		ServerName:      h.info.Name,
		ServerVersion:   h.info.Version,
		ProtocolVersion: mcp.LatestProtocolVersion,
		ToolsCount:      tools,
		ResourcesCount:  resources,
		PromptsCount:    prompts,
		ActiveSessions:  h.sessions.Len(),
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Check())
	})
}
