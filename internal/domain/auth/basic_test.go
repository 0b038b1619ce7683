package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"
)

func basicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestBasicCredentials(t *testing.T) {
	tests := []struct {
		name         string
		header       string
		wantUser     string
		wantPassword string
		wantErr      bool
	}{
		{"valid", basicHeader("alice", "secret"), "alice", "secret", false},
		{"password with colon", basicHeader("alice", "se:cret"), "alice", "se:cret", false},
		{"empty password", basicHeader("alice", ""), "alice", "", false},
		{"missing header", "", "", "", true},
		{"wrong scheme", "Bearer abc", "", "", true},
		{"bad base64", "Basic %%%", "", "", true},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("alicesecret")), "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, pass, err := BasicCredentials(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BasicCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrAuthFailed) {
					t.Errorf("error %v is not ErrAuthFailed", err)
				}
				return
			}
			if user != tt.wantUser || pass != tt.wantPassword {
				t.Errorf("got (%q, %q), want (%q, %q)", user, pass, tt.wantUser, tt.wantPassword)
			}
		})
	}
}

func TestBasicVerifierAuthenticate(t *testing.T) {
	verifier := NewBasicVerifier([]User{
		{Username: "alice", Password: "secret", Roles: []string{"admin"}},
		{Username: "bob", Password: "5f4dcc3b5aa765d61d8327deb882cf99"},
	})

	tests := []struct {
		name      string
		header    string
		wantUser  string
		wantRoles []string
		wantErr   bool
	}{
		{"plaintext user", basicHeader("alice", "secret"), "alice", []string{"admin"}, false},
		{"md5 user", basicHeader("bob", "password"), "bob", nil, false},
		{"wrong password", basicHeader("alice", "wrong"), "", nil, true},
		{"unknown user", basicHeader("mallory", "secret"), "", nil, true},
		{"no header", "", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/mcp/jsonrpc", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := verifier.Authenticate(context.Background(), req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrAuthFailed) {
					t.Errorf("error %v is not ErrAuthFailed", err)
				}
				return
			}
			if got.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", got.Username, tt.wantUser)
			}
			if !got.Authenticated {
				t.Error("Authenticated = false, want true")
			}
			if got.AuthType != "basic" {
				t.Errorf("AuthType = %q, want basic", got.AuthType)
			}
			if len(got.Roles) != len(tt.wantRoles) {
				t.Fatalf("Roles = %v, want %v", got.Roles, tt.wantRoles)
			}
			for i, r := range tt.wantRoles {
				if got.Roles[i] != r {
					t.Errorf("Roles[%d] = %q, want %q", i, got.Roles[i], r)
				}
			}
		})
	}
}

func TestContextHasRole(t *testing.T) {
	ctx := &Context{Username: "alice", Roles: []string{"admin", "reader"}}
	if !ctx.HasRole("admin") {
		t.Error("HasRole(admin) = false, want true")
	}
	if ctx.HasRole("writer") {
		t.Error("HasRole(writer) = true, want false")
	}
}
