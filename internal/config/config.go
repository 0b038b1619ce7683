// Package config provides the project configuration schema and the
// YAML-directory endpoint loader.
//
// Two layers of configuration exist:
//
//   - The project file (flapi.yaml) configures the server listener, the
//     database, and the MCP section including protocol-level auth.
//   - The endpoints directory holds one YAML file per endpoint with its
//     URL path, request fields, auth policy, MCP entity blocks, and SQL
//     template.
package config

import (
	"fmt"
	"time"

	"github.com/flapi-dev/flapi/internal/domain/auth"
)

// Config is the top-level project configuration.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Database configures the embedded query engine.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// MCP configures the MCP protocol server.
	MCP MCPConfig `yaml:"mcp" mapstructure:"mcp"`

	// EndpointsDir is the directory holding per-endpoint YAML files.
	// Defaults to "./endpoints".
	EndpointsDir string `yaml:"endpoints-dir" mapstructure:"endpoints-dir"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TLSCert and TLSKey enable TLS when both are set.
	TLSCert string `yaml:"tls_cert" mapstructure:"tls_cert" validate:"omitempty,file"`
	TLSKey  string `yaml:"tls_key" mapstructure:"tls_key" validate:"omitempty,file"`
}

// DatabaseConfig configures the SQLite query engine.
type DatabaseConfig struct {
	// Path is the database file path. Empty means in-memory.
	Path string `yaml:"path" mapstructure:"path"`
}

// MCPConfig configures the MCP protocol server.
type MCPConfig struct {
	// ServerName and ServerVersion identify the server in initialize
	// responses and the health endpoint. ServerVersion defaults to the
	// build version when empty.
	ServerName    string `yaml:"server_name" mapstructure:"server_name"`
	ServerVersion string `yaml:"server_version" mapstructure:"server_version"`

	// Auth is the protocol-level (Layer 1) authentication policy.
	Auth auth.ProtocolConfig `yaml:"auth" mapstructure:"auth"`

	// InstructionsFile points to a text file whose contents are sent
	// as the instructions field of the initialize result.
	InstructionsFile string `yaml:"instructions_file" mapstructure:"instructions_file" validate:"omitempty,file"`

	// SessionTimeout is the idle duration before sessions are evicted
	// (e.g., "30m"). Empty or "0" disables eviction.
	SessionTimeout string `yaml:"session_timeout" mapstructure:"session_timeout" validate:"omitempty,duration"`

	// CleanupInterval is how often expired sessions are swept.
	// Defaults to "1m" when SessionTimeout is set.
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only unless explicitly configured otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.MCP.ServerName == "" {
		c.MCP.ServerName = "flapi"
	}
	if c.MCP.SessionTimeout != "" && c.MCP.CleanupInterval == "" {
		c.MCP.CleanupInterval = "1m"
	}

	if c.EndpointsDir == "" {
		c.EndpointsDir = "./endpoints"
	}
}

// SessionTimeoutDuration parses the configured idle timeout.
// Returns zero when eviction is disabled.
func (c *MCPConfig) SessionTimeoutDuration() (time.Duration, error) {
	return parseOptionalDuration(c.SessionTimeout)
}

// CleanupIntervalDuration parses the configured sweep interval.
func (c *MCPConfig) CleanupIntervalDuration() (time.Duration, error) {
	return parseOptionalDuration(c.CleanupInterval)
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
