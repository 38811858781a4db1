package oidc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/cap-cognito/internal/strutils"
	"github.com/hashicorp/cap-cognito/jwt"
	"github.com/hashicorp/go-multierror"
)

const (
	DefaultAccessCookieName  = "cognito_access_token"
	DefaultRefreshCookieName = "cognito_refresh_token"
	DefaultIdCookieName      = "cognito_id_token"

	DefaultCookieMaxAge        = 1800 * time.Second
	DefaultRefreshCookieMaxAge = 86400 * time.Second

	// DefaultGroupsClaim is the access token claim Cognito uses to list the
	// user's groups.
	DefaultGroupsClaim = "cognito:groups"

	// DefaultHTTPTimeout bounds every request to the provider.
	DefaultHTTPTimeout = 10 * time.Second
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// SecretKey is the application secret the refresh token cipher and cookie
// sessions derive their key from.
type SecretKey string

// RedactedSecretKey is the redacted string or json for a SecretKey.
const RedactedSecretKey = "[REDACTED: secret key]"

// String will redact the key.
func (k SecretKey) String() string {
	return RedactedSecretKey
}

// MarshalJSON will redact the key.
func (k SecretKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedSecretKey)
}

// Config represents the configuration of a relying party using a Cognito user
// pool app client for the authorization code flow with PKCE. It's read-only
// once constructed and is shared by the Provider, the Verifier and the
// authenticator built from it.
type Config struct {
	// Region is the AWS region of the user pool, e.g. eu-west-1.
	Region string

	// UserPoolId identifies the user pool, e.g. eu-west-1_c7O90SNDF.
	UserPoolId string

	// Domain is the base URL of the user pool's hosted UI, e.g.
	// https://webapp.auth.eu-west-1.amazoncognito.com
	Domain string

	// ClientId is the app client id
	ClientId string

	// ClientSecret is the app client secret. When it's empty the client is a
	// public client and no basic auth credentials are sent to the provider.
	ClientSecret ClientSecret

	// RedirectUrl is where the provider sends the user after login.
	RedirectUrl string

	// LogoutRedirectUrl is where the provider sends the user after logout.
	LogoutRedirectUrl string

	// Scopes is an optional list of scopes to request. When empty the
	// provider grants every scope associated with the app client.
	Scopes []string

	// ExpirationLeeway is the clock skew allowed when checking the exp and iat
	// claims. It should be zero in production.
	ExpirationLeeway time.Duration

	// SupportedSigningAlgs is the list of algs tokens may be signed with.
	SupportedSigningAlgs []jwt.Alg

	// Disabled turns off every authorization check. It's meant for local
	// development only.
	Disabled bool

	// RefreshFlowEnabled stores refresh tokens in a cookie and allows tokens
	// to be refreshed.
	RefreshFlowEnabled bool

	// RefreshCookieEncrypted encrypts the refresh token cookie with a key
	// derived from SecretKey.
	RefreshCookieEncrypted bool

	// SecretKey is the application secret. It's required when refresh
	// cookies are encrypted.
	SecretKey SecretKey

	AccessCookieName    string
	RefreshCookieName   string
	IdCookieName        string
	CookieMaxAge        time.Duration
	RefreshCookieMaxAge time.Duration
	CookieDomain        string
	CookieSameSite      http.SameSite

	// GroupsClaim is the access token claim listing the user's groups.
	GroupsClaim string

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider.
	ProviderCA string

	// HTTPTimeout bounds every request to the provider.
	HTTPTimeout time.Duration

	// IssuerUrl and JwksUrl override the urls derived from Region and
	// UserPoolId.
	IssuerUrl string
	JwksUrl   string
}

// NewConfig composes a new config for a Cognito user pool app client.
//
// Supported options: WithClientSecret, WithLogoutRedirectUrl, WithScopes,
// WithExpirationLeeway, WithSigningAlgs, WithDisabled, WithRefreshFlow,
// WithRefreshCookieEncrypted, WithSecretKey, WithCookieNames,
// WithCookieMaxAge, WithRefreshCookieMaxAge, WithCookieDomain,
// WithCookieSameSite, WithGroupsClaim, WithProviderCA, WithHTTPTimeout,
// WithIssuerUrl, WithJwksUrl
func NewConfig(region, userPoolId, domain, clientId, redirectUrl string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Region:                 region,
		UserPoolId:             userPoolId,
		Domain:                 strings.TrimSuffix(domain, "/"),
		ClientId:               clientId,
		ClientSecret:           opts.withClientSecret,
		RedirectUrl:            redirectUrl,
		LogoutRedirectUrl:      opts.withLogoutRedirectUrl,
		Scopes:                 opts.withScopes,
		ExpirationLeeway:       opts.withExpirationLeeway,
		SupportedSigningAlgs:   opts.withSigningAlgs,
		Disabled:               opts.withDisabled,
		RefreshFlowEnabled:     opts.withRefreshFlow,
		RefreshCookieEncrypted: opts.withRefreshCookieEncrypted,
		SecretKey:              opts.withSecretKey,
		AccessCookieName:       opts.withAccessCookieName,
		RefreshCookieName:      opts.withRefreshCookieName,
		IdCookieName:           opts.withIdCookieName,
		CookieMaxAge:           opts.withCookieMaxAge,
		RefreshCookieMaxAge:    opts.withRefreshCookieMaxAge,
		CookieDomain:           opts.withCookieDomain,
		CookieSameSite:         opts.withCookieSameSite,
		GroupsClaim:            opts.withGroupsClaim,
		ProviderCA:             opts.withProviderCA,
		HTTPTimeout:            opts.withHTTPTimeout,
		IssuerUrl:              opts.withIssuerUrl,
		JwksUrl:                opts.withJwksUrl,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the configuration. Every problem found is reported, not just the
// first one, and the returned error is always an ErrConfiguration.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w: %w", op, ErrConfiguration, ErrNilParameter)
	}
	var retErr *multierror.Error
	if c.IssuerUrl == "" {
		if c.Region == "" {
			retErr = multierror.Append(retErr, fmt.Errorf("region is empty: %w", ErrInvalidParameter))
		}
		if c.UserPoolId == "" {
			retErr = multierror.Append(retErr, fmt.Errorf("user pool id is empty: %w", ErrInvalidParameter))
		}
	} else if err := validateUrl("issuer", c.IssuerUrl); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if c.JwksUrl != "" {
		if err := validateUrl("jwks", c.JwksUrl); err != nil {
			retErr = multierror.Append(retErr, err)
		}
	}
	if c.Domain == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("domain is empty: %w", ErrInvalidParameter))
	} else if err := validateUrl("domain", c.Domain); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if c.ClientId == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if c.RedirectUrl == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	} else if err := validateUrl("redirect", c.RedirectUrl); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if c.LogoutRedirectUrl != "" {
		if err := validateUrl("logout redirect", c.LogoutRedirectUrl); err != nil {
			retErr = multierror.Append(retErr, err)
		}
	}
	if c.ExpirationLeeway < 0 {
		retErr = multierror.Append(retErr, fmt.Errorf("expiration leeway %s is negative: %w", c.ExpirationLeeway, ErrInvalidParameter))
	}
	if len(c.SupportedSigningAlgs) == 0 {
		retErr = multierror.Append(retErr, fmt.Errorf("supported algorithms is empty: %w", ErrInvalidParameter))
	} else if err := jwt.SupportedSigningAlgorithm(c.SupportedSigningAlgs...); err != nil {
		retErr = multierror.Append(retErr, fmt.Errorf("%w: %w", ErrInvalidParameter, err))
	}
	if c.RefreshFlowEnabled && c.RefreshCookieEncrypted && c.SecretKey == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("secret key is required to encrypt refresh cookies: %w", ErrInvalidParameter))
	}
	for name, v := range map[string]string{
		"access cookie name":  c.AccessCookieName,
		"refresh cookie name": c.RefreshCookieName,
		"id cookie name":      c.IdCookieName,
		"groups claim":        c.GroupsClaim,
	} {
		if v == "" {
			retErr = multierror.Append(retErr, fmt.Errorf("%s is empty: %w", name, ErrInvalidParameter))
		}
	}
	if names := []string{c.AccessCookieName, c.RefreshCookieName, c.IdCookieName}; len(strutils.RemoveDuplicatesStable(names, false)) != len(names) {
		retErr = multierror.Append(retErr, fmt.Errorf("cookie names must be unique: %w", ErrInvalidParameter))
	}
	if c.CookieMaxAge <= 0 || c.RefreshCookieMaxAge <= 0 {
		retErr = multierror.Append(retErr, fmt.Errorf("cookie max ages must be positive: %w", ErrInvalidParameter))
	}
	if c.HTTPTimeout < 0 {
		retErr = multierror.Append(retErr, fmt.Errorf("http timeout %s is negative: %w", c.HTTPTimeout, ErrInvalidParameter))
	}
	if err := retErr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	return nil
}

func validateUrl(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s URL %q is invalid: %w: %w", name, raw, ErrInvalidParameter, err)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%s URL %q is not an http or https URL: %w", name, raw, ErrInvalidParameter)
	}
	return nil
}

// Issuer returns the issuer tokens of the user pool must carry:
// https://cognito-idp.<region>.amazonaws.com/<user pool id>
func (c *Config) Issuer() string {
	if c.IssuerUrl != "" {
		return c.IssuerUrl
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolId)
}

// JWKSEndpoint returns the url of the user pool's signing keys.
func (c *Config) JWKSEndpoint() string {
	if c.JwksUrl != "" {
		return c.JwksUrl
	}
	return c.Issuer() + "/.well-known/jwks.json"
}

func (c *Config) AuthorizeEndpoint() string { return c.Domain + "/oauth2/authorize" }
func (c *Config) TokenEndpoint() string     { return c.Domain + "/oauth2/token" }
func (c *Config) UserInfoEndpoint() string  { return c.Domain + "/oauth2/userInfo" }
func (c *Config) RevokeEndpoint() string    { return c.Domain + "/oauth2/revoke" }

// LogoutEndpoint returns the hosted UI logout url, including the client id
// and the escaped logout redirect url.
func (c *Config) LogoutEndpoint() string {
	return fmt.Sprintf("%s/logout?client_id=%s&logout_uri=%s", c.Domain, c.ClientId, quote(c.LogoutRedirectUrl))
}

// quote escapes s for use in a query string, leaving "/" as is so urls read
// the way the hosted UI expects them: http%3A//localhost%3A5000/postlogin
func quote(s string) string {
	s = url.QueryEscape(s)
	s = strings.ReplaceAll(s, "+", "%20")
	return strings.ReplaceAll(s, "%2F", "/")
}

// publicClient reports whether the app client has no secret.
func (c *Config) publicClient() bool { return c.ClientSecret == "" }
