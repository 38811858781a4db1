package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/cap-cognito/internal/strutils"
	"github.com/hashicorp/cap-cognito/oidc"
	"github.com/hashicorp/go-hclog"
)

// Authenticator runs the login, callback, refresh and logout flows of a web
// application against a Cognito user pool, and checks the access token of
// every protected request. It holds no per user state: sessions and cookies
// are passed to every call. It's safe for concurrent use.
type Authenticator struct {
	config   *oidc.Config
	provider *oidc.Provider
	verifier *oidc.Verifier
	cipher   *oidc.TokenCipher
	logger   hclog.Logger
}

// Result is the outcome of a successful callback or refresh.
type Result struct {
	// Claims are the verified claims of the access token.
	Claims oidc.Claims

	// UserInfo are the verified claims of the id token, or nil when no id
	// token was issued.
	UserInfo oidc.Claims

	// CustomState is the custom state given to Login, if any.
	CustomState string

	// Token is the provider's token response.
	Token *oidc.TokenResponse
}

// Requirement is what Authorize requires of a request, beyond a valid access
// token.
type Requirement struct {
	// Groups the user must be in. None are required when empty.
	Groups []string

	// AnyGroup requires membership of any of the Groups rather than all of
	// them.
	AnyGroup bool
}

// NewAuthenticator creates a new Authenticator for c. Unless given as
// options, its Provider and Verifier are built from c, and no request is made
// to the provider.
//
// Supported options: WithProvider, WithVerifier, WithLogger
func NewAuthenticator(c *oidc.Config, opt ...Option) (*Authenticator, error) {
	const op = "auth.NewAuthenticator"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, oidc.ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getAuthenticatorOpts(opt...)

	a := &Authenticator{
		config:   c,
		provider: opts.withProvider,
		verifier: opts.withVerifier,
		logger:   opts.withLogger,
	}
	var err error
	if a.provider == nil {
		if a.provider, err = oidc.NewProvider(c, oidc.WithLogger(a.logger)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if a.verifier == nil {
		if a.verifier, err = oidc.NewVerifier(c, oidc.WithLogger(a.logger)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if c.RefreshFlowEnabled && c.RefreshCookieEncrypted {
		if a.cipher, err = oidc.NewTokenCipher(c.SecretKey); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if c.Disabled {
		a.logger.Warn("authorization is disabled, every request will be allowed", "client_id", c.ClientId)
	}
	return a, nil
}

// Config returns the Authenticator's config.
func (a *Authenticator) Config() *oidc.Config {
	return a.config
}

// Login starts a login: it stores the code verifier, code challenge, nonce
// and state of a new authorization request in s and returns the sign in url
// to redirect the user to. A non empty customState is handed back by
// Callback.
//
// Supported options: the sign in options of oidc.Provider.SignInURL
func (a *Authenticator) Login(ctx context.Context, s SessionStore, customState string, opt ...oidc.Option) (string, error) {
	const op = "Authenticator.Login"
	if s == nil {
		return "", fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	req, err := oidc.NewAuthorizationRequest(customState)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.Set(SessionCodeVerifier, req.CodeVerifier)
	s.Set(SessionCodeChallenge, req.CodeChallenge)
	s.Set(SessionNonce, req.Nonce)
	s.Set(SessionState, req.State)
	return a.provider.SignInURL(req.CodeChallenge, req.State, req.Nonce, opt...), nil
}

// Callback completes a login with the query of the provider's redirect. The
// returned state must be the one stored by Login, and the code is exchanged
// for tokens which are then verified. The claims of the tokens are stored in
// s, the one-time values of the login are removed from it and only the
// custom state is kept. Tokens are written as cookies with c.
func (a *Authenticator) Callback(ctx context.Context, s SessionStore, query url.Values, c CookieWriter) (*Result, error) {
	const op = "Authenticator.Callback"
	switch {
	case s == nil:
		return nil, fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	case c == nil:
		return nil, fmt.Errorf("%s: cookie writer is nil: %w", op, oidc.ErrNilParameter)
	}
	verifier, okVerifier := s.Get(SessionCodeVerifier)
	expectedState, okState := s.Get(SessionState)
	nonce, okNonce := s.Get(SessionNonce)
	if !okVerifier || !okState || !okNonce {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionDataMissing)
	}

	if e := query.Get("error"); e != "" {
		return nil, fmt.Errorf("%s: %w", op, &oidc.ProviderError{Code: e, Description: query.Get("error_description")})
	}
	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		return nil, fmt.Errorf("%s: code or state is missing: %w", op, oidc.ErrProtocol)
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(expectedState)) != 1 {
		return nil, fmt.Errorf("%s: %w", op, ErrStateMismatch)
	}

	tokens, err := a.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange code: %w", op, err)
	}
	r, err := a.storeTokens(ctx, s, tokens, nonce)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, k := range []string{SessionCodeChallenge, SessionCodeVerifier, SessionNonce} {
		s.Delete(k)
	}
	r.CustomState = oidc.CustomState(state)
	if r.CustomState != "" {
		s.Set(SessionState, r.CustomState)
	} else {
		s.Delete(SessionState)
	}

	if err := a.setCookies(c, tokens); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// Refresh exchanges the refresh token cookie for new tokens, which are
// verified and stored like Callback does. The login's custom state in s is
// left alone.
func (a *Authenticator) Refresh(ctx context.Context, s SessionStore, c CookieJar) (*Result, error) {
	const op = "Authenticator.Refresh"
	if !a.config.RefreshFlowEnabled {
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshDisabled)
	}
	switch {
	case s == nil:
		return nil, fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	case c == nil:
		return nil, fmt.Errorf("%s: cookie jar is nil: %w", op, oidc.ErrNilParameter)
	}
	refreshToken, err := a.readRefreshToken(c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tokens, err := a.provider.ExchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to refresh tokens: %w", op, err)
	}
	r, err := a.storeTokens(ctx, s, tokens, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.setCookies(c, tokens); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// Authorize checks the access token cookie of a request and that its user
// meets req. When the config is disabled every request is allowed, with nil
// claims. A missing or invalid token is an ErrAuthorizationRequired, and
// failing the group check is an ErrGroupMembership.
func (a *Authenticator) Authorize(ctx context.Context, c CookieReader, req Requirement) (oidc.Claims, error) {
	const op = "Authenticator.Authorize"
	if a.config.Disabled {
		return nil, nil
	}
	if c == nil {
		return nil, fmt.Errorf("%s: cookie reader is nil: %w: %w", op, ErrAuthorizationRequired, oidc.ErrNilParameter)
	}
	token, ok := c.Cookie(a.config.AccessCookieName)
	if !ok || token == "" {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrAuthorizationRequired, oidc.ErrMissingToken)
	}
	claims, err := a.verifier.VerifyAccessToken(ctx, oidc.AccessToken(token))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrAuthorizationRequired, err)
	}
	if len(req.Groups) == 0 {
		return claims, nil
	}

	groups, found, err := claims.Groups(a.config.GroupsClaim)
	switch {
	case !found:
		return nil, fmt.Errorf("%s: %q: %w", op, a.config.GroupsClaim, ErrMissingGroupsClaim)
	case err != nil:
		return nil, fmt.Errorf("%s: %w: %w", op, ErrGroupMembership, err)
	}
	member := strutils.StrListContainsAll(groups, req.Groups)
	if req.AnyGroup {
		member = strutils.StrListContainsAny(groups, req.Groups)
	}
	if !member {
		return nil, fmt.Errorf("%s: %w", op, ErrGroupMembership)
	}
	return claims, nil
}

// Logout deletes the token cookies and returns the provider's logout url to
// redirect the user to. A refresh token cookie is revoked first, but a
// failed revocation is only logged.
func (a *Authenticator) Logout(ctx context.Context, c CookieJar) (string, error) {
	const op = "Authenticator.Logout"
	if c == nil {
		return "", fmt.Errorf("%s: cookie jar is nil: %w", op, oidc.ErrNilParameter)
	}
	attrs := a.cookieAttrs(a.config.CookieMaxAge)
	c.DeleteCookie(a.config.AccessCookieName, attrs)

	if v, ok := c.Cookie(a.config.RefreshCookieName); ok {
		if v != "" {
			refreshToken, err := a.readRefreshToken(c)
			if err != nil {
				a.logger.Warn("unable to read refresh token, it will not be revoked", "op", op, "error", err)
			} else if err := a.provider.RevokeRefreshToken(ctx, refreshToken); err != nil {
				a.logger.Warn("unable to revoke refresh token", "op", op, "error", err)
			}
		}
		c.DeleteCookie(a.config.RefreshCookieName, a.cookieAttrs(a.config.RefreshCookieMaxAge))
	}
	if _, ok := c.Cookie(a.config.IdCookieName); ok {
		c.DeleteCookie(a.config.IdCookieName, attrs)
	}
	return a.provider.LogoutURL(), nil
}

// storeTokens verifies the access token and, when there is one, the id token
// of a token response and stores their claims in s.
func (a *Authenticator) storeTokens(ctx context.Context, s SessionStore, tokens *oidc.TokenResponse, nonce string) (*Result, error) {
	claims, err := a.verifier.VerifyAccessToken(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	r := &Result{Claims: claims, Token: tokens}
	if tokens.IdToken != "" {
		if r.UserInfo, err = a.verifier.VerifyIdToken(ctx, tokens.IdToken, nonce); err != nil {
			return nil, err
		}
	}

	raw, err := json.Marshal(r.Claims)
	if err != nil {
		return nil, fmt.Errorf("unable to encode claims: %w", err)
	}
	s.Set(SessionClaims, string(raw))
	if r.UserInfo != nil {
		if raw, err = json.Marshal(r.UserInfo); err != nil {
			return nil, fmt.Errorf("unable to encode user info: %w", err)
		}
		s.Set(SessionUserInfo, string(raw))
	}
	return r, nil
}

// setCookies writes the tokens of a response as cookies. The refresh token
// is only written when the refresh flow is enabled.
func (a *Authenticator) setCookies(c CookieWriter, tokens *oidc.TokenResponse) error {
	attrs := a.cookieAttrs(a.config.CookieMaxAge)
	c.SetCookie(a.config.AccessCookieName, string(tokens.AccessToken), attrs)
	if a.config.RefreshFlowEnabled && tokens.RefreshToken != "" {
		value := string(tokens.RefreshToken)
		if a.cipher != nil {
			var err error
			if value, err = a.cipher.Encrypt(value, oidc.WithAssociatedData([]byte(a.config.RefreshCookieName))); err != nil {
				return fmt.Errorf("unable to encrypt refresh token: %w", err)
			}
		}
		c.SetCookie(a.config.RefreshCookieName, value, a.cookieAttrs(a.config.RefreshCookieMaxAge))
	}
	if tokens.IdToken != "" {
		c.SetCookie(a.config.IdCookieName, string(tokens.IdToken), attrs)
	}
	return nil
}

func (a *Authenticator) readRefreshToken(c CookieReader) (oidc.RefreshToken, error) {
	value, ok := c.Cookie(a.config.RefreshCookieName)
	if !ok || value == "" {
		return "", ErrMissingRefreshToken
	}
	if a.cipher == nil {
		return oidc.RefreshToken(value), nil
	}
	plaintext, err := a.cipher.Decrypt(value, oidc.WithAssociatedData([]byte(a.config.RefreshCookieName)))
	if err != nil {
		return "", err
	}
	return oidc.RefreshToken(plaintext), nil
}

// cookieAttrs returns the attributes of the token cookies: HttpOnly and
// Secure, with the configured domain and SameSite policy.
func (a *Authenticator) cookieAttrs(maxAge time.Duration) CookieAttrs {
	return CookieAttrs{
		MaxAge:   maxAge,
		Domain:   a.config.CookieDomain,
		SameSite: a.config.CookieSameSite,
		HttpOnly: true,
		Secure:   true,
	}
}
