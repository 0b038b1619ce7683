package awssecret

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/flapi-dev/flapi/internal/domain/auth"
	"github.com/flapi-dev/flapi/internal/port/outbound"
)

// SecretsAPI is the slice of the Secrets Manager client the syncer
// uses. Narrowed for test fakes.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretPayload is the expected shape of the secret's JSON string:
// an "auth" array of credential rows.
type secretPayload struct {
	Auth []struct {
		Username string   `json:"username"`
		Password string   `json:"password"`
		Roles    []string `json:"roles"`
	} `json:"auth"`
}

// Syncer fetches named secrets and replaces their credential tables in
// the local store. One client is built per process; syncs run at
// startup and on explicit trigger only, never on secret rotation.
type Syncer struct {
	client SecretsAPI
	store  outbound.SecretStore
	logger *slog.Logger
}

// NewSyncer builds the process-scoped Secrets Manager client using the
// resolved credentials and wraps it with the local store.
func NewSyncer(ctx context.Context, params Params, store outbound.SecretStore, logger *slog.Logger) (*Syncer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if params.Region != "" {
		opts = append(opts, awsconfig.WithRegion(params.Region))
	}
	if params.HasStaticKeys() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				params.AccessKeyID, params.SecretAccessKey, params.SessionToken)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Syncer{
		client: secretsmanager.NewFromConfig(cfg),
		store:  store,
		logger: logger,
	}, nil
}

// NewSyncerWithClient wires an existing client, used by tests.
func NewSyncerWithClient(client SecretsAPI, store outbound.SecretStore, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{client: client, store: store, logger: logger}
}

// Sync fetches the configured secret and replaces its credential
// table. A missing secret name is a configuration error; callers treat
// failures during startup as fatal.
func (s *Syncer) Sync(ctx context.Context, cfg *auth.AWSSecretsConfig) error {
	if cfg.SecretName == "" {
		return fmt.Errorf("aws secrets sync: secret-name is required")
	}
	table := cfg.SecretTable
	if table == "" {
		table = TableName(cfg.SecretName)
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.SecretName),
	})
	if err != nil {
		return fmt.Errorf("fetch secret %q: %w", cfg.SecretName, err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("secret %q has no string payload", cfg.SecretName)
	}

	var payload secretPayload
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return fmt.Errorf("parse secret %q payload: %w", cfg.SecretName, err)
	}
	if len(payload.Auth) == 0 {
		return fmt.Errorf("secret %q payload has no auth entries", cfg.SecretName)
	}

	creds := make([]outbound.StoredCredential, len(payload.Auth))
	for i, entry := range payload.Auth {
		creds[i] = outbound.StoredCredential{
			Username: entry.Username,
			Password: entry.Password,
			Roles:    entry.Roles,
		}
	}
	if err := s.store.ReplaceCredentialTable(ctx, table, creds); err != nil {
		return fmt.Errorf("materialize secret %q into %q: %w", cfg.SecretName, table, err)
	}
	s.logger.Info("synced secret into credential table",
		"secret", cfg.SecretName, "table", table, "users", len(creds))
	return nil
}
