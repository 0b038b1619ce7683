package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for flapi.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("flapi")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: FLAPI_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("FLAPI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a flapi config file with
// an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".flapi"),
		"/etc/flapi",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "flapi"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar config keys for environment variable
// support. Example: FLAPI_SERVER_HTTP_ADDR overrides server.http_addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tls_cert")
	_ = viper.BindEnv("server.tls_key")

	_ = viper.BindEnv("database.path")

	_ = viper.BindEnv("mcp.server_name")
	_ = viper.BindEnv("mcp.server_version")
	_ = viper.BindEnv("mcp.instructions_file")
	_ = viper.BindEnv("mcp.session_timeout")
	_ = viper.BindEnv("mcp.cleanup_interval")
	_ = viper.BindEnv("mcp.auth.enabled")
	_ = viper.BindEnv("mcp.auth.type")
	_ = viper.BindEnv("mcp.auth.jwt-secret")
	_ = viper.BindEnv("mcp.auth.jwt-issuer")
	// Note: mcp.auth.users and mcp.auth.methods are maps/arrays,
	// complex to override via env. Use the config file for these.

	_ = viper.BindEnv("endpoints-dir")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or an empty string in env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// LoadInstructions reads the MCP instructions file, if configured.
// Returns an empty string when no file is set.
func (c *MCPConfig) LoadInstructions() (string, error) {
	if c.InstructionsFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.InstructionsFile)
	if err != nil {
		return "", fmt.Errorf("failed to read instructions file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
