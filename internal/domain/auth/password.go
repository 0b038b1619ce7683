package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/alexedwards/argon2id"
)

// argon2idPrefix marks the modern versioned credential format.
const argon2idPrefix = "$argon2id$"

// VerifyPassword compares a supplied password against a stored
// credential. Three stored formats are recognized:
//
//   - "$argon2id$..." PHC strings, the format new deployments should use;
//   - 32 hex digits, treated as a legacy MD5 digest of the password
//     (kept for compatibility with existing flAPI credential files);
//   - anything else, compared as plaintext in constant time.
func VerifyPassword(supplied, stored string) bool {
	if strings.HasPrefix(stored, argon2idPrefix) {
		match, err := argon2id.ComparePasswordAndHash(supplied, stored)
		return err == nil && match
	}
	if isMD5Digest(stored) {
		sum := md5.Sum([]byte(supplied))
		digest := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(digest), []byte(strings.ToLower(stored))) == 1
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}

// isMD5Digest reports whether s looks like a hex-encoded MD5 digest.
func isMD5Digest(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
