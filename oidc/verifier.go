package oidc

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/hashicorp/cap-cognito/jwt"
	sdkHttp "github.com/hashicorp/cap-cognito/sdk/http"
	"github.com/hashicorp/go-hclog"
)

// Verifier verifies the access and id tokens issued by a user pool to one app
// client. Claims are never cached: every call checks the token against the
// current time.
type Verifier struct {
	config    *Config
	validator *jwt.Validator
	logger    hclog.Logger
	now       func() time.Time
}

// NewVerifier creates a new Verifier. Unless WithKeySet is given, signing
// keys are fetched from the user pool's JWKS endpoint the first time they're
// needed and cached afterwards.
//
// Supported options: WithKeySet, WithLogger, WithNow
func NewVerifier(c *Config, opt ...Option) (*Verifier, error) {
	const op = "oidc.NewVerifier"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getVerifierOpts(opt...)

	keySet := opts.withKeySet
	if keySet == nil {
		client, err := sdkHttp.NewClient(c.ProviderCA, c.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidCACert, err)
		}
		if keySet, err = jwt.NewJSONWebKeySet(c.JWKSEndpoint(), "", jwt.WithHTTPClient(client)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	validator, err := jwt.NewValidator(keySet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Verifier{
		config:    c,
		validator: validator,
		logger:    opts.withLogger,
		now:       opts.withNow,
	}, nil
}

// VerifyAccessToken verifies an access token's signature, issuer, expiry and
// issued at time, and that its client_id claim is the configured client id.
// Access tokens have no aud claim, so none is checked. Failures are always an
// ErrTokenVerify.
func (v *Verifier) VerifyAccessToken(ctx context.Context, token AccessToken) (Claims, error) {
	const op = "Verifier.VerifyAccessToken"
	if token == "" {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenVerify, ErrMissingToken)
	}
	claims, err := v.validator.Validate(ctx, string(token), v.expected("client_id"))
	if err != nil {
		v.logger.Debug("access token verification failed", "error", err)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenVerify, err)
	}
	if got, _ := claims["client_id"].(string); got != v.config.ClientId {
		v.logger.Debug("access token issued to another client", "client_id", got)
		return nil, fmt.Errorf("%s: token issued to %q: %w: %w", op, got, ErrTokenVerify, ErrInvalidClientId)
	}
	return Claims(claims), nil
}

// VerifyIdToken verifies an id token's signature, issuer, expiry and issued
// at time, and that its aud claim includes the configured client id. When a
// nonce is given it must equal the token's nonce claim. Failures are always
// an ErrTokenVerify.
func (v *Verifier) VerifyIdToken(ctx context.Context, token IdToken, nonce string) (Claims, error) {
	const op = "Verifier.VerifyIdToken"
	if token == "" {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenVerify, ErrMissingToken)
	}
	expected := v.expected("aud")
	expected.Audiences = []string{v.config.ClientId}
	claims, err := v.validator.Validate(ctx, string(token), expected)
	if err != nil {
		v.logger.Debug("id token verification failed", "error", err)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenVerify, err)
	}
	if nonce != "" {
		got, _ := claims["nonce"].(string)
		if subtle.ConstantTimeCompare([]byte(got), []byte(nonce)) != 1 {
			v.logger.Debug("id token nonce mismatch")
			return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenVerify, ErrInvalidNonce)
		}
	}
	return Claims(claims), nil
}

func (v *Verifier) expected(required ...string) jwt.Expected {
	return jwt.Expected{
		Issuer:            v.config.Issuer(),
		SigningAlgorithms: v.config.SupportedSigningAlgs,
		RequiredClaims:    append([]string{"exp", "iat", "iss"}, required...),
		Leeway:            v.config.ExpirationLeeway,
		Now:               v.now,
	}
}
