package oidc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"

	"github.com/flapi-dev/flapi/internal/domain/auth"
)

// defaultJWKSCacheHours bounds how long a fetched discovery document
// and key set are reused before a rebuild.
const defaultJWKSCacheHours = 1

// Handler validates bearer tokens for one OIDC provider. Provider
// discovery and key fetches happen lazily on first use and are then
// reused until the cache TTL elapses; a failed fetch is retried on the
// next request rather than poisoning the handler.
type Handler struct {
	cfg    auth.OIDCConfig
	logger *slog.Logger

	mu        sync.Mutex
	verifier  *gooidc.IDTokenVerifier
	fetchedAt time.Time
}

// NewHandler builds a handler from cfg. The preset for cfg.Provider is
// applied first, then the config is validated; validation errors are
// configuration mistakes and should abort startup.
func NewHandler(cfg *auth.OIDCConfig, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved := *cfg
	if ApplyPreset(&resolved) {
		logger.Debug("applied oidc provider preset", "provider", resolved.Provider)
	}
	if err := ValidateConfig(&resolved); err != nil {
		return nil, err
	}
	return &Handler{cfg: resolved, logger: logger}, nil
}

// Config returns the handler's resolved configuration.
func (h *Handler) Config() auth.OIDCConfig { return h.cfg }

func (h *Handler) cacheTTL() time.Duration {
	hours := h.cfg.JWKSCacheHours
	if hours <= 0 {
		hours = defaultJWKSCacheHours
	}
	return time.Duration(hours) * time.Hour
}

// getVerifier returns the cached token verifier, running provider
// discovery when the cache is empty or past its TTL.
func (h *Handler) getVerifier(ctx context.Context) (*gooidc.IDTokenVerifier, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.verifier != nil && time.Since(h.fetchedAt) < h.cacheTTL() {
		return h.verifier, nil
	}

	provider, err := gooidc.NewProvider(ctx, h.cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", h.cfg.IssuerURL, err)
	}

	// Audience membership is checked separately against the allow-list,
	// which may be broader than the client id.
	vcfg := &gooidc.Config{SkipClientIDCheck: true}
	if skew := h.cfg.ClockSkewSeconds; skew > 0 {
		offset := time.Duration(skew) * time.Second
		vcfg.Now = func() time.Time { return time.Now().Add(-offset) }
	}
	h.verifier = provider.Verifier(vcfg)
	h.fetchedAt = time.Now()
	h.logger.Debug("refreshed oidc verifier", "issuer", h.cfg.IssuerURL)
	return h.verifier, nil
}

// Authenticate implements auth.Verifier. Every token failure collapses
// into auth.ErrAuthFailed; nothing provider-specific escapes.
func (h *Handler) Authenticate(ctx context.Context, r *http.Request) (*auth.Context, error) {
	raw, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	verifier, err := h.getVerifier(ctx)
	if err != nil {
		h.logger.Warn("oidc verifier unavailable", "error", err)
		return nil, fmt.Errorf("%w: provider unavailable", auth.ErrAuthFailed)
	}

	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrAuthFailed, err)
	}
	if !h.audienceAllowed(idToken.Audience) {
		return nil, fmt.Errorf("%w: token audience not in allowed list", auth.ErrAuthFailed)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrAuthFailed, err)
	}
	return h.mapClaims(claims)
}

// audienceAllowed checks the token's audiences against the configured
// allow-list. An empty allow-list falls back to the client id; an empty
// client id means no restriction.
func (h *Handler) audienceAllowed(audiences []string) bool {
	allowed := h.cfg.AllowedAudiences
	if len(allowed) == 0 {
		if h.cfg.ClientID == "" {
			return true
		}
		allowed = []string{h.cfg.ClientID}
	}
	for _, aud := range audiences {
		for _, want := range allowed {
			if aud == want {
				return true
			}
		}
	}
	return false
}

// mapClaims turns the token claims into an identity using the
// configured claim mappings.
func (h *Handler) mapClaims(claims map[string]any) (*auth.Context, error) {
	usernameClaim := h.cfg.UsernameClaim
	if usernameClaim == "" {
		usernameClaim = "sub"
	}
	username, _ := claimByPath(claims, usernameClaim).(string)
	if username == "" {
		// Tokens without the mapped claim still identify via sub.
		username, _ = claims["sub"].(string)
	}
	if username == "" {
		return nil, fmt.Errorf("%w: token carries no usable identity claim", auth.ErrAuthFailed)
	}

	authCtx := &auth.Context{
		Username:      username,
		Authenticated: true,
		AuthType:      "oidc",
	}

	rolesPath := h.cfg.RoleClaimPath
	if rolesPath == "" {
		rolesPath = h.cfg.RolesClaim
	}
	if rolesPath == "" {
		rolesPath = "roles"
	}
	authCtx.Roles = append(authCtx.Roles, stringSlice(claimByPath(claims, rolesPath))...)
	if h.cfg.GroupsClaim != "" {
		authCtx.Roles = append(authCtx.Roles, stringSlice(claimByPath(claims, h.cfg.GroupsClaim))...)
	}
	return authCtx, nil
}

// claimByPath resolves a claim name that may be a dotted path into
// nested claim objects (e.g. "realm_access.roles"). A claim whose name
// literally contains dots (Auth0 namespace URLs) is tried verbatim first.
func claimByPath(claims map[string]any, path string) any {
	if v, ok := claims[path]; ok {
		return v
	}
	parts := strings.Split(path, ".")
	var current any = claims
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var _ auth.Verifier = (*Handler)(nil)
