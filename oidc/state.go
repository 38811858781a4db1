package oidc

import (
	"fmt"
	"strings"
)

// StateDelimiter joins the random part of a state to a caller's custom state.
const StateDelimiter = "__"

// AuthorizationRequest represents one login attempt. It holds the values
// sent to the provider's authorize endpoint which have to be kept until the
// callback: the code verifier for the token exchange, the state to defeat
// CSRF and the nonce to defeat replays of the id token.
type AuthorizationRequest struct {
	// CodeVerifier is the PKCE secret sent to the token endpoint.
	CodeVerifier string

	// CodeChallenge is CodeChallenge(CodeVerifier), sent to the authorize
	// endpoint.
	CodeChallenge string

	// State is a random alphanumeric value, optionally followed by
	// StateDelimiter and a custom state.
	State string

	// Nonce is a random value the id token must carry.
	Nonce string
}

// NewAuthorizationRequest creates a new AuthorizationRequest with fresh
// random values. A non empty customState is appended to the random state so
// it can be recovered by CustomState once the provider redirects back.
func NewAuthorizationRequest(customState string) (*AuthorizationRequest, error) {
	const op = "oidc.NewAuthorizationRequest"
	verifier, err := NewCodeVerifier(DefaultCodeVerifierBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate code verifier: %w", op, err)
	}
	nonce, err := SecureRandom(DefaultRandomBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}
	state, err := SecureRandom(DefaultRandomBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	// the random part can't contain the delimiter
	state = alphanumeric(state)
	if customState != "" {
		state += StateDelimiter + customState
	}
	return &AuthorizationRequest{
		CodeVerifier:  verifier,
		CodeChallenge: CodeChallenge(verifier),
		State:         state,
		Nonce:         nonce,
	}, nil
}

// CustomState returns what follows the last StateDelimiter in state, or ""
// when state has no custom part. A custom state which itself contains the
// delimiter is only partly recovered.
func CustomState(state string) string {
	i := strings.LastIndex(state, StateDelimiter)
	if i < 0 {
		return ""
	}
	return state[i+len(StateDelimiter):]
}
