package jwt

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrEmptyToken       = errors.New("no token provided")
	ErrMalformedToken   = errors.New("malformed token")
	ErrUnsupportedAlg   = errors.New("unsupported signing algorithm")
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrKeyResolution is returned when a signing key can't be found for a
	// token: the key set couldn't be fetched or parsed, or no key matches the
	// token's kid.
	ErrKeyResolution = errors.New("unable to resolve signing key")

	ErrMissingClaim    = errors.New("missing required claim")
	ErrInvalidClaim    = errors.New("invalid claim")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrInvalidSubject  = errors.New("invalid subject")
	ErrInvalidID       = errors.New("invalid jwt id")
	ErrExpiredToken    = errors.New("token is expired")
	ErrIssuedInFuture  = errors.New("token issued in the future")
)
