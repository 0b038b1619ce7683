// Package sqlite implements the query engine and credential store
// ports over an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/flapi-dev/flapi/internal/port/outbound"
)

// identifierPattern restricts table names used in dynamic DDL. Table
// names come from configuration, not request input, but they are still
// interpolated into SQL text and must stay plain identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB wraps a SQLite handle and implements both the QueryExecutor and
// SecretStore ports.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps in-memory databases coherent and
	// serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{db: db, logger: logger}, nil
}

// Execute implements outbound.QueryExecutor. Parameters bind by name,
// so templates reference them as :name (or @name / $name).
func (d *DB) Execute(ctx context.Context, template string, params map[string]any) ([]map[string]any, error) {
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}

	rows, err := d.db.QueryContext(ctx, template, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close implements outbound.QueryExecutor.
func (d *DB) Close() error {
	return d.db.Close()
}

// ReplaceCredentialTable implements outbound.SecretStore. The swap runs
// in one transaction so readers never observe a half-filled table.
func (d *DB) ReplaceCredentialTable(ctx context.Context, table string, creds []outbound.StoredCredential) error {
	if !identifierPattern.MatchString(table) {
		return fmt.Errorf("invalid credential table name %q", table)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (username TEXT PRIMARY KEY, password TEXT NOT NULL, roles TEXT NOT NULL DEFAULT '[]')`,
		table)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create credential table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("clear credential table: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (username, password, roles) VALUES (?, ?, ?)`, table)
	for _, cred := range creds {
		roles, err := json.Marshal(cred.Roles)
		if err != nil {
			return fmt.Errorf("encode roles for %q: %w", cred.Username, err)
		}
		if _, err := tx.ExecContext(ctx, insert, cred.Username, cred.Password, string(roles)); err != nil {
			return fmt.Errorf("insert credential %q: %w", cred.Username, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credential table: %w", err)
	}
	d.logger.Debug("replaced credential table", "table", table, "count", len(creds))
	return nil
}

// LookupUser implements outbound.SecretStore.
func (d *DB) LookupUser(ctx context.Context, table, username string) (*outbound.StoredCredential, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid credential table name %q", table)
	}

	query := fmt.Sprintf(`SELECT password, roles FROM %s WHERE username = ?`, table)
	var password, rolesJSON string
	err := d.db.QueryRowContext(ctx, query, username).Scan(&password, &rolesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	cred := &outbound.StoredCredential{Username: username, Password: password}
	if rolesJSON != "" {
		if err := json.Unmarshal([]byte(rolesJSON), &cred.Roles); err != nil {
			return nil, fmt.Errorf("decode roles for %q: %w", username, err)
		}
	}
	return cred, nil
}

var (
	_ outbound.QueryExecutor = (*DB)(nil)
	_ outbound.SecretStore   = (*DB)(nil)
)
