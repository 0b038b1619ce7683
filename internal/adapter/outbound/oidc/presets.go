// Package oidc verifies bearer tokens against OIDC providers: discovery,
// JWKS-backed signature checks, audience and expiry validation, and
// claim-to-identity mapping. Handlers are cached per provider so the
// discovery document and signing keys are fetched once, not per request.
package oidc

import (
	"fmt"
	"strings"

	"github.com/flapi-dev/flapi/internal/domain/auth"
)

// ApplyPreset fills provider-specific defaults into cfg based on
// cfg.Provider. Explicitly configured values always win. Returns false
// for "generic", empty, or unknown provider names.
func ApplyPreset(cfg *auth.OIDCConfig) bool {
	switch cfg.Provider {
	case "", "generic":
		return false
	case "google":
		setDefault(&cfg.IssuerURL, "https://accounts.google.com")
		if cfg.UsernameClaim == "" || cfg.UsernameClaim == "sub" {
			cfg.UsernameClaim = "email"
		}
		setDefault(&cfg.EmailClaim, "email")
		setDefault(&cfg.RolesClaim, "roles")
		setDefaultScopes(cfg, "openid", "profile", "email")
		return true
	case "microsoft":
		setDefault(&cfg.IssuerURL, "https://login.microsoftonline.com/{tenant}/v2.0")
		if cfg.UsernameClaim == "" || cfg.UsernameClaim == "sub" {
			cfg.UsernameClaim = "preferred_username"
		}
		setDefault(&cfg.EmailClaim, "email")
		setDefault(&cfg.RolesClaim, "roles")
		setDefaultScopes(cfg, "openid", "profile", "email")
		return true
	case "keycloak":
		setDefault(&cfg.IssuerURL, "https://keycloak.example.com/realms/{realm}")
		if cfg.UsernameClaim == "" || cfg.UsernameClaim == "sub" {
			cfg.UsernameClaim = "preferred_username"
		}
		setDefault(&cfg.EmailClaim, "email")
		setDefault(&cfg.RoleClaimPath, "realm_access.roles")
		setDefault(&cfg.RolesClaim, "roles")
		setDefault(&cfg.GroupsClaim, "groups")
		setDefaultScopes(cfg, "openid", "profile", "email")
		return true
	case "auth0":
		setDefault(&cfg.IssuerURL, "https://{domain}.auth0.com")
		if cfg.UsernameClaim == "" || cfg.UsernameClaim == "sub" {
			cfg.UsernameClaim = "email"
		}
		setDefault(&cfg.EmailClaim, "email")
		if cfg.RoleClaimPath == "" && cfg.RolesClaim == "" {
			cfg.RoleClaimPath = "https://your-namespace/roles"
		}
		setDefaultScopes(cfg, "openid", "profile", "email")
		return true
	case "okta":
		setDefault(&cfg.IssuerURL, "https://{domain}.okta.com/oauth2/default")
		if cfg.UsernameClaim == "" || cfg.UsernameClaim == "sub" {
			cfg.UsernameClaim = "preferred_username"
		}
		setDefault(&cfg.EmailClaim, "email")
		setDefault(&cfg.RolesClaim, "roles")
		setDefault(&cfg.GroupsClaim, "groups")
		setDefaultScopes(cfg, "openid", "profile", "email")
		return true
	case "github":
		// GitHub is OAuth 2.0, not full OIDC; no discovery endpoint.
		setDefault(&cfg.IssuerURL, "https://github.com")
		setDefault(&cfg.UsernameClaim, "login")
		setDefault(&cfg.EmailClaim, "email")
		setDefault(&cfg.RolesClaim, "roles")
		setDefaultScopes(cfg, "read:user", "user:email")
		return true
	}
	return false
}

// ValidateConfig checks that the config is complete enough to build a
// handler. Violations here are configuration mistakes and fatal at
// startup, unlike runtime token failures.
func ValidateConfig(cfg *auth.OIDCConfig) error {
	switch cfg.Provider {
	case "", "generic":
		if cfg.IssuerURL == "" {
			return fmt.Errorf("generic OIDC requires 'issuer-url' to be specified")
		}
		return nil
	case "microsoft":
		if !strings.Contains(cfg.IssuerURL, "{tenant}") && hasPlaceholders(cfg.IssuerURL) {
			return fmt.Errorf("microsoft OIDC requires 'issuer-url' with the {tenant} placeholder resolved")
		}
	case "keycloak", "auth0", "okta":
		// Issuer placeholders must be substituted before startup.
	}
	if hasPlaceholders(cfg.IssuerURL) {
		return fmt.Errorf("%s OIDC 'issuer-url' still contains unresolved placeholders: %s",
			cfg.Provider, cfg.IssuerURL)
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("%s OIDC requires 'client-id' to be specified", cfg.Provider)
	}
	return nil
}

func hasPlaceholders(issuerURL string) bool {
	open := strings.Index(issuerURL, "{")
	return open >= 0 && strings.Index(issuerURL[open:], "}") > 0
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setDefaultScopes(cfg *auth.OIDCConfig, scopes ...string) {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = scopes
	}
}
