package oidc

import (
	"errors"

	"github.com/hashicorp/cap-cognito/jwt"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")

	// ErrConfiguration is returned when a required configuration value is
	// missing or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrProtocol is returned for malformed or unexpected interactions with
	// the provider: missing code or state, state mismatch, token endpoint
	// error responses and responses that aren't JSON when JSON is expected.
	ErrProtocol = errors.New("protocol error")

	ErrMissingAccessToken = errors.New("access_token is missing")

	// ErrTokenVerify is returned for every access or id token that fails
	// verification. A more specific error is always wrapped alongside it.
	ErrTokenVerify = errors.New("token verification failed")

	ErrMissingToken    = errors.New("no token provided")
	ErrInvalidClientId = errors.New("invalid client_id")
	ErrInvalidNonce    = errors.New("invalid nonce")

	// ErrDecryption is returned when a ciphertext is invalid or has been
	// tampered with.
	ErrDecryption = errors.New("decryption failed")

	ErrUserInfoFailed = errors.New("user info failed")
)

// Errors shared with the jwt package so callers only need this package to
// tell verification failures apart.
var (
	ErrKeyResolution    = jwt.ErrKeyResolution
	ErrInvalidSignature = jwt.ErrInvalidSignature
	ErrUnsupportedAlg   = jwt.ErrUnsupportedAlg
	ErrMalformedToken   = jwt.ErrMalformedToken
	ErrExpiredToken     = jwt.ErrExpiredToken
	ErrIssuedInFuture   = jwt.ErrIssuedInFuture
	ErrInvalidIssuer    = jwt.ErrInvalidIssuer
	ErrInvalidAudience  = jwt.ErrInvalidAudience
	ErrMissingClaim     = jwt.ErrMissingClaim
	ErrInvalidClaim     = jwt.ErrInvalidClaim
)

// ProviderError is an error response from the provider, either as the
// "error" and "error_description" fields of a token endpoint response or as
// the same query parameters of a redirect. It is always an ErrProtocol.
type ProviderError struct {
	Code        string
	Description string
}

// Error returns the code, followed by " - " and the description when there
// is one.
func (e *ProviderError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + " - " + e.Description
}

// Unwrap returns ErrProtocol.
func (e *ProviderError) Unwrap() error { return ErrProtocol }
