package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flapi-dev/flapi/internal/domain/endpoint"
	"github.com/flapi-dev/flapi/internal/domain/session"
	"github.com/flapi-dev/flapi/internal/port/outbound"
	"github.com/flapi-dev/flapi/internal/service"
)

// Transport is the inbound adapter that serves MCP and REST clients over
// HTTP. JSON-RPC exchanges go through the dispatcher; REST endpoints run
// through the query executor with their own auth gates.
type Transport struct {
	dispatcher    *service.Dispatcher
	sessions      *session.Manager
	server        *http.Server
	addr          string
	certFile      string
	keyFile       string
	logger        *slog.Logger
	metrics       *Metrics
	healthChecker *HealthChecker

	// REST serving is optional; nil repo disables the /api/ routes.
	repo     endpoint.Repository
	factory  *service.VerifierFactory
	executor outbound.QueryExecutor
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /mcp/health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) {
		t.healthChecker = hc
	}
}

// WithRESTEndpoints enables serving the configured REST endpoints
// under /api/.
func WithRESTEndpoints(repo endpoint.Repository, factory *service.VerifierFactory, executor outbound.QueryExecutor) Option {
	return func(t *Transport) {
		t.repo = repo
		t.factory = factory
		t.executor = executor
	}
}

// NewTransport creates an HTTP transport serving the given dispatcher.
func NewTransport(dispatcher *service.Dispatcher, sessions *session.Manager, opts ...Option) *Transport {
	t := &Transport{
		dispatcher: dispatcher,
		sessions:   sessions,
		addr:       "127.0.0.1:8080",
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections. It blocks until the context
// is cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg, func() float64 {
		return float64(t.sessions.Len())
	})

	mux := http.NewServeMux()
	mux.Handle("/mcp/jsonrpc", mcpHandler(t.dispatcher, t.metrics))
	if t.healthChecker != nil {
		mux.Handle("/mcp/health", t.healthChecker.Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	if t.repo != nil {
		rest, err := NewRESTHandler(t.repo, t.factory, t.executor, t.metrics)
		if err != nil {
			return err
		}
		mux.Handle("/api/", http.StripPrefix("/api", rest))
	}

	// Middleware order (outermost first):
	// 1. MetricsMiddleware - record duration and status for the full request
	// 2. RequestIDMiddleware - extract/generate request ID and enrich logger
	var handler http.Handler = mux
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
