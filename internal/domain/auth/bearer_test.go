package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mintHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc", "", true},
		{"empty token", "Bearer ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BearerToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBearerVerifierAuthenticate(t *testing.T) {
	const secret = "test-signing-secret"
	const issuer = "flapi-test"
	verifier := NewBearerVerifier(secret, issuer)

	valid := jwt.MapClaims{
		"sub":   "alice",
		"iss":   issuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": []string{"admin", "reader"},
	}

	tests := []struct {
		name      string
		token     string
		wantUser  string
		wantRoles int
		wantErr   bool
	}{
		{
			name:      "valid token with roles",
			token:     mintHS256(t, secret, valid),
			wantUser:  "alice",
			wantRoles: 2,
		},
		{
			name: "valid token without roles",
			token: mintHS256(t, secret, jwt.MapClaims{
				"sub": "bob",
				"iss": issuer,
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantUser: "bob",
		},
		{
			name:    "wrong secret",
			token:   mintHS256(t, "other-secret", valid),
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: mintHS256(t, secret, jwt.MapClaims{
				"sub": "alice",
				"iss": "someone-else",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "expired",
			token: mintHS256(t, secret, jwt.MapClaims{
				"sub": "alice",
				"iss": issuer,
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "missing sub",
			token: mintHS256(t, secret, jwt.MapClaims{
				"iss": issuer,
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name:    "garbage token",
			token:   "not.a.jwt",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/mcp/jsonrpc", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
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
			if got.AuthType != "bearer" {
				t.Errorf("AuthType = %q, want bearer", got.AuthType)
			}
			if len(got.Roles) != tt.wantRoles {
				t.Errorf("len(Roles) = %d, want %d", len(got.Roles), tt.wantRoles)
			}
		})
	}
}

func TestBearerVerifierRejectsNonHMACAlg(t *testing.T) {
	// Tokens signed with "none" must never validate.
	verifier := NewBearerVerifier("secret", "flapi-test")
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice",
		"iss": "flapi-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	req := httptest.NewRequest("POST", "/mcp/jsonrpc", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	if _, err := verifier.Authenticate(context.Background(), req); err == nil {
		t.Fatal("Authenticate() accepted a none-signed token")
	}
}
