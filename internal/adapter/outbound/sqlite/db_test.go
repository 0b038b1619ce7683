package sqlite

import (
	"context"
	"testing"

	"github.com/flapi-dev/flapi/internal/port/outbound"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExecuteNamedParams(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Execute(ctx, `CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, region TEXT)`, nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
	seed := []struct {
		id     int
		name   string
		region string
	}{
		{1, "acme", "eu"},
		{2, "globex", "us"},
		{3, "initech", "eu"},
	}
	for _, s := range seed {
		_, err := db.Execute(ctx, `INSERT INTO customers (id, name, region) VALUES (:id, :name, :region)`,
			map[string]any{"id": s.id, "name": s.name, "region": s.region})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := db.Execute(ctx, `SELECT name FROM customers WHERE region = :region ORDER BY id`,
		map[string]any{"region": "eu"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["name"] != "acme" || rows[1]["name"] != "initech" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestExecuteBadSQL(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute(context.Background(), `SELECT FROM WHERE`, nil); err == nil {
		t.Fatal("Execute accepted invalid SQL")
	}
}

func TestCredentialTableRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	creds := []outbound.StoredCredential{
		{Username: "alice", Password: "5f4dcc3b5aa765d61d8327deb882cf99", Roles: []string{"admin"}},
		{Username: "bob", Password: "secret"},
	}
	if err := db.ReplaceCredentialTable(ctx, "auth_users", creds); err != nil {
		t.Fatalf("ReplaceCredentialTable: %v", err)
	}

	got, err := db.LookupUser(ctx, "auth_users", "alice")
	if err != nil {
		t.Fatalf("LookupUser: %v", err)
	}
	if got == nil {
		t.Fatal("LookupUser returned nil for existing user")
	}
	if got.Password != creds[0].Password {
		t.Errorf("Password = %q, want %q", got.Password, creds[0].Password)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "admin" {
		t.Errorf("Roles = %v, want [admin]", got.Roles)
	}

	missing, err := db.LookupUser(ctx, "auth_users", "mallory")
	if err != nil {
		t.Fatalf("LookupUser missing: %v", err)
	}
	if missing != nil {
		t.Errorf("LookupUser for missing user = %v, want nil", missing)
	}
}

func TestReplaceCredentialTableOverwrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := []outbound.StoredCredential{{Username: "alice", Password: "old"}}
	if err := db.ReplaceCredentialTable(ctx, "auth_users", first); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	second := []outbound.StoredCredential{{Username: "bob", Password: "new"}}
	if err := db.ReplaceCredentialTable(ctx, "auth_users", second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	if got, _ := db.LookupUser(ctx, "auth_users", "alice"); got != nil {
		t.Errorf("stale credential survived replace: %v", got)
	}
	got, err := db.LookupUser(ctx, "auth_users", "bob")
	if err != nil || got == nil {
		t.Fatalf("LookupUser bob: got %v, err %v", got, err)
	}
	if got.Password != "new" {
		t.Errorf("Password = %q, want new", got.Password)
	}
}

func TestInvalidTableName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.ReplaceCredentialTable(ctx, "users; DROP TABLE x", nil); err == nil {
		t.Fatal("ReplaceCredentialTable accepted malicious table name")
	}
	if _, err := db.LookupUser(ctx, "users--", "alice"); err == nil {
		t.Fatal("LookupUser accepted malicious table name")
	}
}
