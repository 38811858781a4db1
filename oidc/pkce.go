package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hashicorp/cap-cognito/sdk/id"
)

const (
	// DefaultRandomBytes is the number of random bytes behind states and
	// nonces.
	DefaultRandomBytes = 32

	// DefaultCodeVerifierBytes is the number of random bytes a code verifier
	// is generated from.
	DefaultCodeVerifierBytes = 32

	// MinCodeVerifierLength and MaxCodeVerifierLength are the bounds RFC 7636
	// puts on a code verifier.
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128

	// S256 is the only code challenge method Cognito supports.
	S256 = "S256"
)

// SecureRandom returns nBytes of secure random data, base64url encoded
// without padding.
func SecureRandom(nBytes int) (string, error) {
	const op = "oidc.SecureRandom"
	b, err := id.RandomBytes(nBytes)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewCodeVerifier returns a PKCE code verifier: SecureRandom(nBytes) with
// every non alphanumeric character removed. Stripping can leave fewer than
// MinCodeVerifierLength characters, in which case more random characters are
// appended until it's long enough. nBytes must be between
// DefaultCodeVerifierBytes and 96, which keeps the verifier within
// MaxCodeVerifierLength.
func NewCodeVerifier(nBytes int) (string, error) {
	const op = "oidc.NewCodeVerifier"
	if nBytes < DefaultCodeVerifierBytes || nBytes > 96 {
		return "", fmt.Errorf("%s: %d bytes is outside of [%d, 96]: %w", op, nBytes, DefaultCodeVerifierBytes, ErrInvalidParameter)
	}
	var sb strings.Builder
	for n := nBytes; sb.Len() < MinCodeVerifierLength; n = 8 {
		r, err := SecureRandom(n)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		sb.WriteString(alphanumeric(r))
	}
	v := sb.String()
	if len(v) > MaxCodeVerifierLength {
		v = v[:MaxCodeVerifierLength]
	}
	return v, nil
}

// CodeChallenge returns the S256 code challenge of a verifier: its SHA-256
// digest, base64url encoded without padding.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func alphanumeric(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, s)
}
