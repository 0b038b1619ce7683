package awssecret

import (
	"context"
	"fmt"
	"net/http"

	"github.com/flapi-dev/flapi/internal/domain/auth"
	"github.com/flapi-dev/flapi/internal/port/outbound"
)

// Verifier authenticates HTTP Basic credentials against a credential
// table previously materialized by the Syncer.
type Verifier struct {
	store outbound.SecretStore
	table string
}

// NewVerifier creates a verifier reading from the given table.
func NewVerifier(store outbound.SecretStore, cfg *auth.AWSSecretsConfig) *Verifier {
	table := cfg.SecretTable
	if table == "" {
		table = TableName(cfg.SecretName)
	}
	return &Verifier{store: store, table: table}
}

// Authenticate implements auth.Verifier. Store errors degrade to a
// plain authentication failure on the request path.
func (v *Verifier) Authenticate(ctx context.Context, r *http.Request) (*auth.Context, error) {
	username, password, err := auth.BasicCredentials(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	cred, err := v.store.LookupUser(ctx, v.table, username)
	if err != nil {
		return nil, fmt.Errorf("%w: credential lookup failed", auth.ErrAuthFailed)
	}
	if cred == nil || !auth.VerifyPassword(password, cred.Password) {
		return nil, fmt.Errorf("%w: unknown user or bad password", auth.ErrAuthFailed)
	}
	return &auth.Context{
		Username:      username,
		Roles:         append([]string(nil), cred.Roles...),
		Authenticated: true,
		AuthType:      "aws-secretsmanager",
	}, nil
}

var _ auth.Verifier = (*Verifier)(nil)
