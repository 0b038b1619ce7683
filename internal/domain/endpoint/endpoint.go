// Package endpoint holds the domain model for configured data endpoints:
// the mapping from a URL path or MCP entity name to a SQL template plus
// its request fields, validators, and auth policy.
package endpoint

import (
	"errors"

	"github.com/flapi-dev/flapi/internal/domain/auth"
)

// ErrEndpointNotFound is returned when no endpoint matches a lookup.
var ErrEndpointNotFound = errors.New("endpoint not found")

// Validator constrains one request field. Only the fields relevant to
// the configured Type are populated.
type Validator struct {
	// Type is the validator kind: "enum", "string", "int", "date", "email".
	Type string `yaml:"type"`
	// AllowedValues lists the permitted values for enum validators.
	AllowedValues []string `yaml:"allowed-values,omitempty"`
	// Min and Max bound numeric validators.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
	// Pattern is a regular expression for string validators.
	Pattern string `yaml:"pattern,omitempty"`
}

// RequestField is one declared parameter of an endpoint.
type RequestField struct {
	Name        string      `yaml:"field-name"`
	In          string      `yaml:"field-in,omitempty"` // query, path, body
	Description string      `yaml:"description,omitempty"`
	Required    bool        `yaml:"required,omitempty"`
	Validators  []Validator `yaml:"validators,omitempty"`
}

// EnumValidator returns the field's enum validator, if it has one.
func (f *RequestField) EnumValidator() *Validator {
	for i := range f.Validators {
		if f.Validators[i].Type == "enum" && len(f.Validators[i].AllowedValues) > 0 {
			return &f.Validators[i]
		}
	}
	return nil
}

// MCPTool marks an endpoint as callable through tools/call.
type MCPTool struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// MCPResource marks an endpoint as readable through resources/read.
type MCPResource struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	MimeType    string `yaml:"mime-type,omitempty"`
}

// MCPPrompt marks an endpoint as a prompt template for prompts/get.
type MCPPrompt struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Template    string   `yaml:"template"`
	Arguments   []string `yaml:"arguments,omitempty"`
}

// AuthConfig is the per-endpoint (Layer 2) authentication policy.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// Type selects the verifier: "basic", "bearer", "oidc", "aws-secretsmanager".
	Type  string      `yaml:"type,omitempty"`
	Users []auth.User `yaml:"users,omitempty"`
	// Bearer (HS256 JWT) settings.
	JWTSecret string `yaml:"jwt-secret,omitempty"`
	JWTIssuer string `yaml:"jwt-issuer,omitempty"`
	// OIDC settings, nil unless Type is "oidc".
	OIDC *auth.OIDCConfig `yaml:"oidc,omitempty"`
	// AWS Secrets Manager settings, nil unless Type is "aws-secretsmanager".
	AWSSecretsManager *auth.AWSSecretsConfig `yaml:"from-aws-secretmanager,omitempty"`
}

// Endpoint is one configured data source exposure.
type Endpoint struct {
	URLPath       string         `yaml:"url-path,omitempty"`
	Method        string         `yaml:"method,omitempty"`
	Description   string         `yaml:"description,omitempty"`
	RequestFields []RequestField `yaml:"request,omitempty"`
	Auth          AuthConfig     `yaml:"auth,omitempty"`
	Tool          *MCPTool       `yaml:"mcp-tool,omitempty"`
	Resource      *MCPResource   `yaml:"mcp-resource,omitempty"`
	Prompt        *MCPPrompt     `yaml:"mcp-prompt,omitempty"`
	// TemplateSource is the SQL template executed by the query engine.
	TemplateSource string `yaml:"template-source,omitempty"`
}

// IsRESTEndpoint reports whether the endpoint is exposed over HTTP.
func (e *Endpoint) IsRESTEndpoint() bool { return e.URLPath != "" }

// IsMCPTool reports whether the endpoint is exposed as an MCP tool.
func (e *Endpoint) IsMCPTool() bool { return e.Tool != nil && e.Tool.Name != "" }

// IsMCPResource reports whether the endpoint is exposed as an MCP resource.
func (e *Endpoint) IsMCPResource() bool { return e.Resource != nil && e.Resource.Name != "" }

// IsMCPPrompt reports whether the endpoint is exposed as an MCP prompt.
func (e *Endpoint) IsMCPPrompt() bool { return e.Prompt != nil && e.Prompt.Name != "" }

// Field returns the declared request field with the given name.
func (e *Endpoint) Field(name string) *RequestField {
	for i := range e.RequestFields {
		if e.RequestFields[i].Name == name {
			return &e.RequestFields[i]
		}
	}
	return nil
}

// Repository enumerates configured endpoints. Implementations must be
// safe for concurrent readers; List returns a snapshot the caller owns.
type Repository interface {
	// List returns all configured endpoints.
	List() []Endpoint

	// FindForRequest matches an inbound REST request to an endpoint.
	// Returns ErrEndpointNotFound when no endpoint claims the path.
	FindForRequest(path, method string) (*Endpoint, error)
}

// FindTool scans a repository for the tool endpoint with the given name.
func FindTool(repo Repository, name string) (*Endpoint, error) {
	for _, e := range repo.List() {
		if e.IsMCPTool() && e.Tool.Name == name {
			return &e, nil
		}
	}
	return nil, ErrEndpointNotFound
}

// FindResource scans a repository for the resource endpoint with the given name.
func FindResource(repo Repository, name string) (*Endpoint, error) {
	for _, e := range repo.List() {
		if e.IsMCPResource() && e.Resource.Name == name {
			return &e, nil
		}
	}
	return nil, ErrEndpointNotFound
}

// FindPrompt scans a repository for the prompt endpoint with the given name.
func FindPrompt(repo Repository, name string) (*Endpoint, error) {
	for _, e := range repo.List() {
		if e.IsMCPPrompt() && e.Prompt.Name == name {
			return &e, nil
		}
	}
	return nil, ErrEndpointNotFound
}

// FindToolOrPrompt resolves a completion "ref" against tools first, then prompts.
func FindToolOrPrompt(repo Repository, name string) (*Endpoint, error) {
	if e, err := FindTool(repo, name); err == nil {
		return e, nil
	}
	return FindPrompt(repo, name)
}
