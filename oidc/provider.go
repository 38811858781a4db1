package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	sdkHttp "github.com/hashicorp/cap-cognito/sdk/http"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// Provider talks to the endpoints of a Cognito user pool's hosted UI on
// behalf of one app client: it builds sign in and logout urls, exchanges
// authorization codes and refresh tokens for tokens, revokes refresh tokens
// and reads user info.
type Provider struct {
	config    *Config
	client    *http.Client
	transport Transport
	logger    hclog.Logger
}

// NewProvider creates and initializes a Provider. No request is made to the
// provider.
//
// Supported options: WithTransport, WithLogger
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "oidc.NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getProviderOpts(opt...)

	client, err := sdkHttp.NewClient(c.ProviderCA, c.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidCACert, err)
	}
	transport := opts.withTransport
	if transport == nil {
		if transport, err = NewHTTPTransport(client); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &Provider{
		config:    c,
		client:    client,
		transport: transport,
		logger:    opts.withLogger,
	}, nil
}

// HTTPClient returns the client used to reach the provider.
func (p *Provider) HTTPClient() *http.Client {
	return p.client
}

// SignInURL returns the authorize endpoint url a user is redirected to.
// Parameters are always in this order: response_type, client_id,
// redirect_uri, state, nonce, code_challenge, code_challenge_method, then
// scope when scopes are configured (joined with "+"), then the optional
// identity_provider, idp_identifier, lang and login_hint.
//
// Supported options: WithSignInScopes, WithIdentityProvider,
// WithIdpIdentifier, WithLang, WithLoginHint
func (p *Provider) SignInURL(challenge, state, nonce string, opt ...Option) string {
	opts := getSignInOpts(opt...)
	scopes := p.config.Scopes
	if opts.withScopes != nil {
		scopes = opts.withScopes
	}

	var sb strings.Builder
	sb.WriteString(p.config.AuthorizeEndpoint())
	sb.WriteString("?response_type=code")
	sb.WriteString("&client_id=" + p.config.ClientId)
	sb.WriteString("&redirect_uri=" + quote(p.config.RedirectUrl))
	sb.WriteString("&state=" + url.QueryEscape(state))
	sb.WriteString("&nonce=" + url.QueryEscape(nonce))
	sb.WriteString("&code_challenge=" + url.QueryEscape(challenge))
	sb.WriteString("&code_challenge_method=" + S256)
	if len(scopes) > 0 {
		escaped := make([]string, 0, len(scopes))
		for _, s := range scopes {
			escaped = append(escaped, quote(s))
		}
		sb.WriteString("&scope=" + strings.Join(escaped, "+"))
	}
	for _, param := range []struct{ name, value string }{
		{"identity_provider", opts.withIdentityProvider},
		{"idp_identifier", opts.withIdpIdentifier},
		{"lang", langParam(opts.withLang)},
		{"login_hint", opts.withLoginHint},
	} {
		if param.value != "" {
			sb.WriteString("&" + param.name + "=" + url.QueryEscape(param.value))
		}
	}
	return sb.String()
}

func langParam(tag language.Tag) string {
	if tag.IsRoot() {
		return ""
	}
	return tag.String()
}

// LogoutURL returns the hosted UI logout url.
func (p *Provider) LogoutURL() string {
	return p.config.LogoutEndpoint()
}

// ExchangeCode exchanges an authorization code and the code verifier sent
// with its authorization request for tokens.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	const op = "Provider.ExchangeCode"
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.config.ClientId},
		"redirect_uri":  {p.config.RedirectUrl},
		"code":          {code},
		"code_verifier": {verifier},
	}
	tr, err := p.requestToken(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tr, nil
}

// ExchangeRefreshToken exchanges a refresh token for new access and id
// tokens.
func (p *Provider) ExchangeRefreshToken(ctx context.Context, refreshToken RefreshToken) (*TokenResponse, error) {
	const op = "Provider.ExchangeRefreshToken"
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.config.ClientId},
		"refresh_token": {string(refreshToken)},
	}
	tr, err := p.requestToken(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tr, nil
}

// RevokeRefreshToken revokes a refresh token and the access tokens issued
// with it. Responses that aren't JSON are a success.
func (p *Provider) RevokeRefreshToken(ctx context.Context, refreshToken RefreshToken) error {
	const op = "Provider.RevokeRefreshToken"
	if refreshToken == "" {
		return fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	form := url.Values{
		"client_id": {p.config.ClientId},
		"token":     {string(refreshToken)},
	}
	resp, err := p.post(ctx, p.config.RevokeEndpoint(), form)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		if resp.StatusCode/100 != 2 {
			p.logger.Warn("revoke returned a non JSON error response", "status", resp.StatusCode)
		}
		return nil
	}
	if err := providerError(body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UserInfo reads the claims of the user an access token was issued to from
// the userInfo endpoint.
func (p *Provider) UserInfo(ctx context.Context, accessToken AccessToken) (Claims, error) {
	const op = "Provider.UserInfo"
	if accessToken == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	pc := &oidc.ProviderConfig{
		IssuerURL:   p.config.Issuer(),
		AuthURL:     p.config.AuthorizeEndpoint(),
		TokenURL:    p.config.TokenEndpoint(),
		UserInfoURL: p.config.UserInfoEndpoint(),
		JWKSURL:     p.config.JWKSEndpoint(),
	}
	for _, a := range p.config.SupportedSigningAlgs {
		pc.Algorithms = append(pc.Algorithms, string(a))
	}
	ctx = sdkHttp.OidcClientContext(ctx, p.client)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(accessToken), TokenType: "Bearer"})
	ui, err := pc.NewProvider(ctx).UserInfo(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, err)
	}
	claims := Claims{}
	if err := ui.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode claims: %w: %w", op, ErrUserInfoFailed, err)
	}
	return claims, nil
}

func (p *Provider) requestToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	resp, err := p.post(ctx, p.config.TokenEndpoint(), form)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("token response (%d) is not JSON: %w: %w", resp.StatusCode, ErrProtocol, err)
	}
	if err := providerError(raw); err != nil {
		return nil, err
	}
	var tr tokenResponseJSON
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return nil, fmt.Errorf("unable to decode token response: %w: %w", ErrProtocol, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, ErrMissingAccessToken)
	}
	return tr.tokenResponse(), nil
}

func (p *Provider) post(ctx context.Context, endpoint string, form url.Values) (*TransportResponse, error) {
	var auth *BasicAuth
	if !p.config.publicClient() {
		auth = &BasicAuth{Username: p.config.ClientId, Password: p.config.ClientSecret}
	}
	resp, err := p.transport.PostForm(ctx, endpoint, form, auth)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w: %w", endpoint, ErrProtocol, err)
	}
	return resp, nil
}

// providerError returns a *ProviderError when the response has an error
// field.
func providerError(body map[string]interface{}) error {
	code, ok := body["error"]
	if !ok {
		return nil
	}
	e := &ProviderError{Code: fmt.Sprint(code)}
	if desc, ok := body["error_description"]; ok {
		e.Description = fmt.Sprint(desc)
	}
	return e
}
