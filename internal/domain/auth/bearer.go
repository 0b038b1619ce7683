package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// BearerToken extracts the token from a Bearer Authorization header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("%w: not a Bearer authorization header", ErrAuthFailed)
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", ErrAuthFailed)
	}
	return token, nil
}

// BearerVerifier authenticates HS256-signed JWTs against a shared
// secret and expected issuer. The "sub" claim becomes the username and
// an optional "roles" array claim becomes the role set.
type BearerVerifier struct {
	secret []byte
	issuer string
}

// NewBearerVerifier creates a BearerVerifier with the given shared
// secret and issuer claim.
func NewBearerVerifier(secret, issuer string) *BearerVerifier {
	return &BearerVerifier{secret: []byte(secret), issuer: issuer}
}

// Authenticate implements Verifier. Any verification error, including
// a wrong signing method or issuer mismatch, is a plain auth failure.
func (v *BearerVerifier) Authenticate(_ context.Context, r *http.Request) (*Context, error) {
	tokenString, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrAuthFailed)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrAuthFailed)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrAuthFailed)
	}

	authCtx := &Context{
		Username:      sub,
		Authenticated: true,
		AuthType:      "bearer",
	}
	// A missing or malformed roles claim is acceptable; roles stay empty.
	if rawRoles, ok := claims["roles"].([]any); ok {
		for _, role := range rawRoles {
			if s, ok := role.(string); ok {
				authCtx.Roles = append(authCtx.Roles, s)
			}
		}
	}
	return authCtx, nil
}

var _ Verifier = (*BearerVerifier)(nil)
