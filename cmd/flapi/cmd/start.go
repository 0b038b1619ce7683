package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flapi-dev/flapi/internal/adapter/inbound/http"
	"github.com/flapi-dev/flapi/internal/adapter/outbound/awssecret"
	"github.com/flapi-dev/flapi/internal/adapter/outbound/oidc"
	"github.com/flapi-dev/flapi/internal/adapter/outbound/sqlite"
	"github.com/flapi-dev/flapi/internal/config"
	"github.com/flapi-dev/flapi/internal/domain/auth"
	"github.com/flapi-dev/flapi/internal/domain/session"
	"github.com/flapi-dev/flapi/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server",
	Long: `Start the flapi server.

The server loads the endpoints directory, opens the database, syncs any
configured AWS Secrets Manager credentials, and serves:

  POST/DELETE /mcp/jsonrpc   MCP protocol (JSON-RPC 2.0)
  GET         /mcp/health    Health and registry counts
  GET         /metrics       Prometheus metrics
  *           /api/...       Configured REST endpoints

Examples:
  # Start with config file settings
  flapi start

  # Start with a specific config file
  flapi --config /path/to/flapi.yaml start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// The level var is shared with the dispatcher so logging/setLevel
	// changes take effect process-wide.
	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Write PID file so "flapi stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logLevel, logger); err != nil {
		return err
	}

	logger.Info("flapi stopped")
	return nil
}

// run wires all components together and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logLevel *slog.LevelVar, logger *slog.Logger) error {
	// Endpoints directory. Any bad endpoint file is fatal.
	repo, err := config.LoadEndpoints(cfg.EndpointsDir)
	if err != nil {
		return fmt.Errorf("failed to load endpoints: %w", err)
	}
	logger.Info("endpoints loaded", "dir", cfg.EndpointsDir, "count", len(repo.List()))

	// Database.
	db, err := sqlite.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Materialize AWS Secrets Manager credentials into local lookup
	// tables before any verifier is built. A failed sync is fatal: an
	// endpoint must not come up with an empty credential table.
	if err := syncSecrets(ctx, cfg, repo, db, logger); err != nil {
		return err
	}

	// Auth plumbing. The MCP auth handler builds its verifier eagerly so
	// a bad Layer 1 config aborts startup.
	oidcCache := oidc.NewHandlerCache(logger)
	factory := service.NewVerifierFactory(oidcCache, db, logger)
	authHandler, err := service.NewMCPAuthHandler(cfg.MCP.Auth, factory, logger)
	if err != nil {
		return fmt.Errorf("invalid mcp auth config: %w", err)
	}

	// Sessions, with optional idle eviction.
	idleTimeout, err := cfg.MCP.SessionTimeoutDuration()
	if err != nil {
		return err
	}
	cleanupInterval, err := cfg.MCP.CleanupIntervalDuration()
	if err != nil {
		return err
	}
	sessions := session.NewManager(session.Config{
		IdleTimeout:     idleTimeout,
		CleanupInterval: cleanupInterval,
	}, logger)
	if idleTimeout > 0 {
		sessions.StartCleanup(ctx)
		logger.Info("session eviction enabled", "idle_timeout", idleTimeout, "interval", cleanupInterval)
	}
	defer sessions.Stop()

	// MCP entity discovery.
	discovery := service.NewDiscovery(repo, logger)
	discovery.Discover()
	tools, resources, prompts := discovery.Counts()

	instructions, err := cfg.MCP.LoadInstructions()
	if err != nil {
		return err
	}

	serverVersion := cfg.MCP.ServerVersion
	if serverVersion == "" {
		serverVersion = Version
	}
	info := service.ServerInfo{Name: cfg.MCP.ServerName, Version: serverVersion}

	dispatcher := service.NewDispatcher(sessions, authHandler, discovery, repo, db, logLevel, info, instructions, logger)

	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithHealthChecker(http.NewHealthChecker(info, discovery, sessions)),
		http.WithRESTEndpoints(repo, factory, db),
	}
	if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
		opts = append(opts, http.WithTLS(cfg.Server.TLSCert, cfg.Server.TLSKey))
	}
	transport := http.NewTransport(dispatcher, sessions, opts...)

	logger.Info("flapi starting",
		"version", Version,
		"http_addr", cfg.Server.HTTPAddr,
		"tools", tools,
		"resources", resources,
		"prompts", prompts,
		"mcp_auth", authHandler.Enabled(),
	)

	return transport.Start(ctx)
}

// syncSecrets fetches every configured AWS Secrets Manager secret and
// materializes its credentials into the local database.
func syncSecrets(ctx context.Context, cfg *config.Config, repo *config.Store, db *sqlite.DB, logger *slog.Logger) error {
	secretCfgs := collectSecretConfigs(cfg, repo)
	if len(secretCfgs) == 0 {
		return nil
	}

	credStore := awssecret.NewCredentialStore()
	for _, sc := range secretCfgs {
		syncer, err := awssecret.NewSyncer(ctx, credStore.Resolve(sc.Region), db, logger)
		if err != nil {
			return fmt.Errorf("failed to create secrets client: %w", err)
		}
		if err := syncer.Sync(ctx, sc); err != nil {
			return fmt.Errorf("failed to sync secret %q: %w", sc.SecretName, err)
		}
	}
	logger.Info("aws secrets synced", "count", len(secretCfgs))
	return nil
}

// collectSecretConfigs gathers the AWS secret blocks from the protocol
// auth config and every endpoint, deduplicated by secret name and region.
func collectSecretConfigs(cfg *config.Config, repo *config.Store) []*auth.AWSSecretsConfig {
	var out []*auth.AWSSecretsConfig
	seen := make(map[string]bool)

	add := func(sc *auth.AWSSecretsConfig) {
		if sc == nil {
			return
		}
		key := sc.SecretName + "\x00" + sc.Region
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, sc)
	}

	add(cfg.MCP.Auth.AWSSecretsManager)
	for _, ep := range repo.List() {
		add(ep.Auth.AWSSecretsManager)
	}
	return out
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
