// Package awssecret materializes basic auth credentials from AWS
// Secrets Manager into a local credential table and authenticates
// requests against it.
package awssecret

import (
	"os"
	"strings"
)

// Params are the transient cloud credentials used for one secret
// fetch. They are resolved from the credential store per call and
// never persisted beyond it.
type Params struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// HasStaticKeys reports whether explicit access keys were configured.
// Without them the SDK's default provider chain applies.
func (p Params) HasStaticKeys() bool {
	return p.AccessKeyID != "" && p.SecretAccessKey != ""
}

// CredentialStore resolves cloud credentials for secret fetches.
// Loaded once from the environment at startup.
type CredentialStore struct {
	params Params
}

// NewCredentialStore reads AWS credentials from the environment.
func NewCredentialStore() *CredentialStore {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	return &CredentialStore{params: Params{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Region:          region,
	}}
}

// Resolve returns credentials for a fetch. An explicitly configured
// region overrides the environment's.
func (s *CredentialStore) Resolve(region string) Params {
	p := s.params
	if region != "" {
		p.Region = region
	}
	return p
}

// TableName derives a credential table name from a secret name when no
// explicit table is configured. Secret names may contain path and
// version separators that are not valid identifier characters.
func TableName(secretName string) string {
	var b strings.Builder
	for _, c := range secretName {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "secret_" + name
	}
	return name
}
