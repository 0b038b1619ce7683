// Package outbound defines the outbound port interfaces for the query
// engine and the materialized credential store.
package outbound

import (
	"context"
)

// QueryExecutor is the outbound port for running an endpoint's SQL
// template against the embedded query engine. Adapters implement this
// over a concrete database driver.
type QueryExecutor interface {
	// Execute runs the template with the given named parameters and
	// returns the result rows as generic maps, ready for JSON encoding.
	Execute(ctx context.Context, template string, params map[string]any) ([]map[string]any, error)

	// Close releases the underlying database handle.
	Close() error
}

// StoredCredential is one row of a materialized credential table.
type StoredCredential struct {
	Username string
	Password string
	Roles    []string
}

// SecretStore is the outbound port for credential tables materialized
// from an external secret source. Lookups happen on the request path,
// so implementations must be safe for concurrent readers.
type SecretStore interface {
	// ReplaceCredentialTable atomically replaces the named table's
	// contents with the given credentials.
	ReplaceCredentialTable(ctx context.Context, table string, creds []StoredCredential) error

	// LookupUser fetches one credential by username. Returns
	// (nil, nil) when the user is absent.
	LookupUser(ctx context.Context, table, username string) (*StoredCredential, error)
}
