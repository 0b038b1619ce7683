// Package auth contains the domain types and logic for authentication:
// the authenticated context bound to sessions, the credential verifier
// contract shared by the protocol and endpoint layers, and the
// password/JWT verification primitives.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// ErrAuthFailed is the single failure result of every verifier.
// Internal verifier errors are wrapped into it; they never escalate
// past the authentication boundary.
var ErrAuthFailed = errors.New("authentication failed")

// Context is the identity bound to a session or request after a
// successful verification. Immutable once created.
type Context struct {
	Username      string
	Roles         []string
	Authenticated bool
	// AuthType records which verifier produced this context
	// ("basic", "bearer", "oidc", "aws-secretsmanager").
	AuthType string
}

// HasRole reports whether the context carries the given role.
func (c *Context) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Verifier converts raw request credentials into an authenticated
// context. Implementations return ErrAuthFailed (possibly wrapped) on
// any runtime failure; they never panic and never surface internals.
type Verifier interface {
	Authenticate(ctx context.Context, r *http.Request) (*Context, error)
}

// User is one stored credential. Password may be plaintext, a legacy
// 32-hex MD5 digest, or an argon2id PHC string (see VerifyPassword).
type User struct {
	Username string   `yaml:"username" mapstructure:"username"`
	Password string   `yaml:"password" mapstructure:"password"`
	Roles    []string `yaml:"roles,omitempty" mapstructure:"roles"`
}

// OIDCConfig configures token validation against one OIDC provider.
// Owned by configuration; read-only to auth code.
type OIDCConfig struct {
	// Provider selects a preset ("google", "microsoft", "keycloak",
	// "auth0", "okta", "github") or "generic"/empty for none.
	Provider         string   `yaml:"provider,omitempty" mapstructure:"provider"`
	IssuerURL        string   `yaml:"issuer-url,omitempty" mapstructure:"issuer-url"`
	ClientID         string   `yaml:"client-id,omitempty" mapstructure:"client-id"`
	ClientSecret     string   `yaml:"client-secret,omitempty" mapstructure:"client-secret"`
	AllowedAudiences []string `yaml:"allowed-audiences,omitempty" mapstructure:"allowed-audiences"`
	// ClockSkewSeconds tolerates clock drift when validating expiry.
	ClockSkewSeconds int `yaml:"clock-skew-seconds,omitempty" mapstructure:"clock-skew-seconds"`
	// Claim mappings.
	UsernameClaim string `yaml:"username-claim,omitempty" mapstructure:"username-claim"`
	EmailClaim    string `yaml:"email-claim,omitempty" mapstructure:"email-claim"`
	RolesClaim    string `yaml:"roles-claim,omitempty" mapstructure:"roles-claim"`
	GroupsClaim   string `yaml:"groups-claim,omitempty" mapstructure:"groups-claim"`
	// RoleClaimPath is a dotted path for nested role claims
	// (e.g. Keycloak's "realm_access.roles").
	RoleClaimPath string   `yaml:"role-claim-path,omitempty" mapstructure:"role-claim-path"`
	Scopes        []string `yaml:"scopes,omitempty" mapstructure:"scopes"`
	// JWKSCacheHours bounds how long fetched signing keys are reused.
	JWKSCacheHours int `yaml:"jwks-cache-hours,omitempty" mapstructure:"jwks-cache-hours"`
}

// CacheKey identifies the handler built from this config. Handlers are
// cached per (issuer, client) pair so discovery documents and JWKS are
// fetched once per provider, not per request.
func (c *OIDCConfig) CacheKey() string {
	return c.IssuerURL + ":" + c.ClientID
}

// AWSSecretsConfig configures basic auth backed by an AWS Secrets
// Manager secret materialized into a local credential table.
type AWSSecretsConfig struct {
	SecretName string `yaml:"secret-name" mapstructure:"secret-name"`
	// SecretTable is the local lookup table; derived from SecretName
	// when empty.
	SecretTable string `yaml:"secret-table,omitempty" mapstructure:"secret-table"`
	Region      string `yaml:"region,omitempty" mapstructure:"region"`
}

// MethodPolicy overrides the auth requirement for one JSON-RPC method.
type MethodPolicy struct {
	Required bool `yaml:"required" mapstructure:"required"`
}

// ProtocolConfig is the Layer-1 (protocol-level) auth policy for the
// MCP server: whether JSON-RPC methods require authentication, and
// which verifier gates them.
type ProtocolConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Type    string `yaml:"type,omitempty" mapstructure:"type"`
	Users   []User `yaml:"users,omitempty" mapstructure:"users"`

	JWTSecret string `yaml:"jwt-secret,omitempty" mapstructure:"jwt-secret"`
	JWTIssuer string `yaml:"jwt-issuer,omitempty" mapstructure:"jwt-issuer"`

	OIDC              *OIDCConfig       `yaml:"oidc,omitempty" mapstructure:"oidc"`
	AWSSecretsManager *AWSSecretsConfig `yaml:"from-aws-secretmanager,omitempty" mapstructure:"from-aws-secretmanager"`

	// Methods maps JSON-RPC method names to per-method overrides.
	// Absent methods default to Required=true while Enabled is set.
	Methods map[string]MethodPolicy `yaml:"methods,omitempty" mapstructure:"methods"`
}
