package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flapi-dev/flapi/internal/adapter/outbound/awssecret"
	"github.com/flapi-dev/flapi/internal/adapter/outbound/oidc"
	"github.com/flapi-dev/flapi/internal/domain/auth"
	"github.com/flapi-dev/flapi/internal/domain/endpoint"
	"github.com/flapi-dev/flapi/internal/port/outbound"
)

// VerifierFactory builds credential verifiers from auth configuration.
// Both layers share it, so OIDC handlers end up in one cache and
// AWS-backed verifiers read the same materialized tables. Construction
// errors are configuration mistakes and fatal at startup.
type VerifierFactory struct {
	oidcCache   *oidc.HandlerCache
	secretStore outbound.SecretStore
	logger      *slog.Logger
}

// NewVerifierFactory creates a verifier factory.
func NewVerifierFactory(oidcCache *oidc.HandlerCache, secretStore outbound.SecretStore, logger *slog.Logger) *VerifierFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifierFactory{oidcCache: oidcCache, secretStore: secretStore, logger: logger}
}

// ForEndpoint builds the verifier for one endpoint's Layer-2 policy.
func (f *VerifierFactory) ForEndpoint(cfg *endpoint.AuthConfig) (auth.Verifier, error) {
	return f.build(cfg.Type, cfg.Users, cfg.JWTSecret, cfg.JWTIssuer, cfg.OIDC, cfg.AWSSecretsManager)
}

// ForProtocol builds the verifier for the Layer-1 protocol policy.
func (f *VerifierFactory) ForProtocol(cfg *auth.ProtocolConfig) (auth.Verifier, error) {
	return f.build(cfg.Type, cfg.Users, cfg.JWTSecret, cfg.JWTIssuer, cfg.OIDC, cfg.AWSSecretsManager)
}

func (f *VerifierFactory) build(authType string, users []auth.User, jwtSecret, jwtIssuer string,
	oidcCfg *auth.OIDCConfig, awsCfg *auth.AWSSecretsConfig) (auth.Verifier, error) {

	// A secret-backed credential table overrides inline users for basic auth.
	if awsCfg != nil {
		if awsCfg.SecretName == "" {
			return nil, fmt.Errorf("aws secrets auth requires 'secret-name'")
		}
		if f.secretStore == nil {
			return nil, fmt.Errorf("aws secrets auth configured but no secret store available")
		}
		return awssecret.NewVerifier(f.secretStore, awsCfg), nil
	}

	switch authType {
	case "basic":
		if len(users) == 0 {
			return nil, fmt.Errorf("basic auth requires at least one user")
		}
		return auth.NewBasicVerifier(users), nil
	case "bearer", "jwt":
		if jwtSecret == "" {
			return nil, fmt.Errorf("bearer auth requires 'jwt-secret'")
		}
		return auth.NewBearerVerifier(jwtSecret, jwtIssuer), nil
	case "oidc":
		if oidcCfg == nil {
			return nil, fmt.Errorf("oidc auth requires an 'oidc' configuration block")
		}
		return f.oidcCache.Get(oidcCfg)
	default:
		return nil, fmt.Errorf("unknown auth type %q", authType)
	}
}

// MCPAuthHandler is the Layer-1 policy: whether a JSON-RPC method
// requires authentication, and the verifier that gates it. It knows
// nothing about per-endpoint SQL auth.
type MCPAuthHandler struct {
	cfg      auth.ProtocolConfig
	verifier auth.Verifier
	logger   *slog.Logger
}

// NewMCPAuthHandler builds the protocol-level auth handler. When the
// policy is enabled, the verifier is built eagerly so configuration
// errors abort startup instead of surfacing per request.
func NewMCPAuthHandler(cfg auth.ProtocolConfig, factory *VerifierFactory, logger *slog.Logger) (*MCPAuthHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &MCPAuthHandler{cfg: cfg, logger: logger}
	if cfg.Enabled {
		verifier, err := factory.ForProtocol(&cfg)
		if err != nil {
			return nil, fmt.Errorf("mcp auth: %w", err)
		}
		h.verifier = verifier
	}
	return h, nil
}

// Enabled reports whether protocol-level auth is configured at all.
func (h *MCPAuthHandler) Enabled() bool { return h.cfg.Enabled }

// MethodRequiresAuth reports whether the named JSON-RPC method is
// gated. Methods without an explicit policy entry default to required
// while the layer is enabled.
func (h *MCPAuthHandler) MethodRequiresAuth(method string) bool {
	if !h.cfg.Enabled {
		return false
	}
	if policy, ok := h.cfg.Methods[method]; ok {
		return policy.Required
	}
	return true
}

// Authenticate verifies the raw HTTP request against the configured
// verifier.
func (h *MCPAuthHandler) Authenticate(ctx context.Context, r *http.Request) (*auth.Context, error) {
	if h.verifier == nil {
		return nil, fmt.Errorf("%w: no verifier configured", auth.ErrAuthFailed)
	}
	return h.verifier.Authenticate(ctx, r)
}
