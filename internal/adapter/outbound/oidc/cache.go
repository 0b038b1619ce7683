package oidc

import (
	"log/slog"
	"sync"

	"github.com/flapi-dev/flapi/internal/domain/auth"
)

// HandlerCache shares handlers across endpoints that point at the same
// provider. Keyed by issuer and client id, so two endpoints with the
// same provider settings reuse one discovery document and key set.
type HandlerCache struct {
	mu       sync.Mutex
	handlers map[string]*Handler
	logger   *slog.Logger
}

// NewHandlerCache creates an empty handler cache.
func NewHandlerCache(logger *slog.Logger) *HandlerCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerCache{
		handlers: make(map[string]*Handler),
		logger:   logger,
	}
}

// Get returns the handler for cfg, building it on first use.
func (c *HandlerCache) Get(cfg *auth.OIDCConfig) (*Handler, error) {
	key := cfg.CacheKey()

	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handlers[key]; ok {
		return h, nil
	}
	h, err := NewHandler(cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.handlers[key] = h
	c.logger.Debug("created oidc handler", "issuer", cfg.IssuerURL, "client_id", cfg.ClientID)
	return h, nil
}

// Len returns the number of cached handlers.
func (c *HandlerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
