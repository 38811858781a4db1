package jwt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Validator validates JSON Web Tokens (JWT) by providing signature
// verification and claims set validation.
type Validator struct {
	keySet KeySet
}

// NewValidator returns a Validator that uses the given KeySet to verify JWT signatures.
func NewValidator(keySet KeySet) (*Validator, error) {
	const op = "jwt.NewValidator"
	if keySet == nil {
		return nil, fmt.Errorf("%s: keySet must not be nil: %w", op, ErrInvalidParameter)
	}
	return &Validator{
		keySet: keySet,
	}, nil
}

// Expected defines the expected claims values to assert when validating a JWT.
// For claims that involve validation of the JWT with respect to time, leeway
// fields are provided to account for potential clock skew.
type Expected struct {
	// The expected JWT "iss" (issuer) claim value. If empty, validation is skipped.
	Issuer string

	// The expected JWT "sub" (subject) claim value. If empty, validation is skipped.
	Subject string

	// The expected JWT "jti" (JWT ID) claim value. If empty, validation is skipped.
	ID string

	// The list of expected JWT "aud" (audience) claim values to match against.
	// The JWT claim will be considered valid if it matches any of the expected
	// audiences. If empty, validation is skipped.
	Audiences []string

	// SigningAlgorithms provides the list of expected JWS "alg" (algorithm) header
	// parameter values to match against. The JWS header parameter will be considered
	// valid if it matches any of the expected signing algorithms. The following
	// algorithms are supported: RS256, RS384, RS512, ES256, ES384, ES512, PS256,
	// PS384, PS512, EdDSA. If empty, defaults to RS256.
	SigningAlgorithms []Alg

	// RequiredClaims names claims that must be present in the token, whatever
	// their value.
	RequiredClaims []string

	// Leeway is added to "exp" and to the current time when checking "iat".
	// Both comparisons are made in whole seconds. "nbf" is never checked.
	Leeway time.Duration

	// Now provides the current time used during claims validation.
	// If nil, defaults to time.Now.
	Now func() time.Time
}

// Validate validates JWTs of the JWS compact serialization form.
//
// The given JWT is considered valid if:
//  1. Its signature is successfully verified.
//  2. Its claims set and header parameter values match what's given by Expected.
//  3. It's valid with respect to the current time. This means that the current
//     time must be before the expiration time (exp) plus leeway and the token
//     must not be issued (iat) after the current time plus leeway.
func (v *Validator) Validate(ctx context.Context, token string, expected Expected) (map[string]interface{}, error) {
	const op = "Validator.Validate"
	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyToken)
	}

	// If no algorithms are expected, RS256 is expected by default.
	algs := expected.SigningAlgorithms
	if len(algs) == 0 {
		algs = []Alg{RS256}
	}
	if err := SupportedSigningAlgorithm(algs...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// First, verify the signature to ensure subsequent validation is against verified claims
	claims, err := v.keySet.VerifySignature(ctx, token, algs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, c := range expected.RequiredClaims {
		if _, ok := claims[c]; !ok {
			return nil, fmt.Errorf("%s: %q: %w", op, c, ErrMissingClaim)
		}
	}

	if expected.Issuer != "" {
		iss, _ := claims["iss"].(string)
		if iss != expected.Issuer {
			return nil, fmt.Errorf("%s: got %q, want %q: %w", op, iss, expected.Issuer, ErrInvalidIssuer)
		}
	}
	if expected.Subject != "" {
		if sub, _ := claims["sub"].(string); sub != expected.Subject {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidSubject)
		}
	}
	if expected.ID != "" {
		if jti, _ := claims["jti"].(string); jti != expected.ID {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidID)
		}
	}

	now := time.Now
	if expected.Now != nil {
		now = expected.Now
	}
	if err := validateTimes(claims, now(), expected.Leeway); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(expected.Audiences) > 0 {
		aud, err := audiences(claims)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := validateAudience(expected.Audiences, aud); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return claims, nil
}

// validateTimes checks exp and iat when they're present. A token is expired
// when now is strictly after exp + leeway, and rejected as issued in the
// future when iat is strictly after now + leeway.
func validateTimes(claims map[string]interface{}, now time.Time, leeway time.Duration) error {
	nowSec := now.Unix()
	leewaySec := int64(leeway / time.Second)
	if _, ok := claims["exp"]; ok {
		exp, err := NumericDate(claims, "exp")
		if err != nil {
			return err
		}
		if nowSec > exp+leewaySec {
			return fmt.Errorf("expired at %s: %w", time.Unix(exp, 0).UTC(), ErrExpiredToken)
		}
	}
	if _, ok := claims["iat"]; ok {
		iat, err := NumericDate(claims, "iat")
		if err != nil {
			return err
		}
		if iat > nowSec+leewaySec {
			return fmt.Errorf("issued at %s: %w", time.Unix(iat, 0).UTC(), ErrIssuedInFuture)
		}
	}
	return nil
}

// NumericDate returns the named claim as seconds since the epoch. Fractional
// seconds are truncated.
func NumericDate(claims map[string]interface{}, name string) (int64, error) {
	var f float64
	switch v := claims[name].(type) {
	case float64:
		f = v
	case json.Number:
		var err error
		if f, err = v.Float64(); err != nil {
			return 0, fmt.Errorf("%q is not a number: %w", name, ErrInvalidClaim)
		}
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("%q: %w", name, ErrMissingClaim)
	default:
		return 0, fmt.Errorf("%q is not a number: %w", name, ErrInvalidClaim)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number: %w", name, ErrInvalidClaim)
	}
	return int64(f), nil
}

// audiences returns the "aud" claim, which may be a single string or a list.
func audiences(claims map[string]interface{}) ([]string, error) {
	switch v := claims["aud"].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		aud := make([]string, 0, len(v))
		for _, a := range v {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("aud contains a non-string value: %w", ErrInvalidClaim)
			}
			aud = append(aud, s)
		}
		return aud, nil
	default:
		return nil, fmt.Errorf("aud is not a string or list: %w", ErrInvalidClaim)
	}
}

// validateAudience returns an error if audClaim does not contain any audiences
// given by expectedAudiences.
func validateAudience(expectedAudiences, audClaim []string) error {
	for _, v := range expectedAudiences {
		if contains(audClaim, v) {
			return nil
		}
	}

	return fmt.Errorf("audience claim does not match any expected audience: %w", ErrInvalidAudience)
}

func contains(sl []string, st string) bool {
	for _, s := range sl {
		if s == st {
			return true
		}
	}
	return false
}
