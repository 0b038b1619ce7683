package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// BasicCredentials extracts the username and password from a Basic
// Authorization header value. Returns ErrAuthFailed on any malformed input.
func BasicCredentials(header string) (username, password string, err error) {
	if !strings.HasPrefix(header, "Basic ") {
		return "", "", fmt.Errorf("%w: not a Basic authorization header", ErrAuthFailed)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid base64 credentials", ErrAuthFailed)
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", fmt.Errorf("%w: missing colon separator", ErrAuthFailed)
	}
	return username, password, nil
}

// BasicVerifier authenticates HTTP Basic credentials against a
// configured user list.
type BasicVerifier struct {
	users []User
}

// NewBasicVerifier creates a BasicVerifier for the given users.
func NewBasicVerifier(users []User) *BasicVerifier {
	return &BasicVerifier{users: users}
}

// Authenticate implements Verifier.
func (v *BasicVerifier) Authenticate(_ context.Context, r *http.Request) (*Context, error) {
	username, password, err := BasicCredentials(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	for _, u := range v.users {
		if u.Username != username {
			continue
		}
		if VerifyPassword(password, u.Password) {
			return &Context{
				Username:      username,
				Roles:         append([]string(nil), u.Roles...),
				Authenticated: true,
				AuthType:      "basic",
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown user or bad password", ErrAuthFailed)
}

var _ Verifier = (*BasicVerifier)(nil)
