package oidc

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvRegion                 = "AWS_REGION"
	EnvUserPoolId             = "AWS_COGNITO_USER_POOL_ID"
	EnvClientId               = "AWS_COGNITO_USER_POOL_CLIENT_ID"
	EnvClientSecret           = "AWS_COGNITO_USER_POOL_CLIENT_SECRET"
	EnvRedirectUrl            = "AWS_COGNITO_REDIRECT_URL"
	EnvLogoutUrl              = "AWS_COGNITO_LOGOUT_URL"
	EnvDomain                 = "AWS_COGNITO_DOMAIN"
	EnvCookieAgeSeconds       = "AWS_COGNITO_COOKIE_AGE_SECONDS"
	EnvExpirationLeeway       = "AWS_COGNITO_EXPIRATION_LEEWAY"
	EnvScopes                 = "AWS_COGNITO_SCOPES"
	EnvCookieDomain           = "AWS_COGNITO_COOKIE_DOMAIN"
	EnvCookieSameSite         = "AWS_COGNITO_COOKIE_SAMESITE"
	EnvDisabled               = "AWS_COGNITO_DISABLED"
	EnvRefreshFlowEnabled     = "AWS_COGNITO_REFRESH_FLOW_ENABLED"
	EnvRefreshCookieEncrypted = "AWS_COGNITO_REFRESH_COOKIE_ENCRYPTED"
	EnvRefreshCookieAge       = "AWS_COGNITO_REFRESH_COOKIE_AGE_SECONDS"
	EnvSecretKey              = "SECRET_KEY"
)

// LookupFunc looks up a configuration value by name, in the manner of
// os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ConfigFromEnv builds a Config from AWS_REGION, SECRET_KEY and the
// AWS_COGNITO_* variables. Scopes are separated by commas or spaces, ages and
// the leeway are whole seconds. A nil lookup reads the process environment.
// Options given are applied after the ones read from the environment.
func ConfigFromEnv(lookup LookupFunc, opt ...Option) (*Config, error) {
	const op = "oidc.ConfigFromEnv"
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	var retErr *multierror.Error
	var opts []Option
	if v := get(EnvClientSecret); v != "" {
		opts = append(opts, WithClientSecret(ClientSecret(v)))
	}
	if v := get(EnvLogoutUrl); v != "" {
		opts = append(opts, WithLogoutRedirectUrl(v))
	}
	if v := get(EnvScopes); v != "" {
		opts = append(opts, WithScopes(splitScopes(v)...))
	}
	if v := get(EnvCookieDomain); v != "" {
		opts = append(opts, WithCookieDomain(v))
	}
	if v := get(EnvSecretKey); v != "" {
		opts = append(opts, WithSecretKey(SecretKey(v)))
	}
	if v := get(EnvCookieSameSite); v != "" {
		s, err := ParseSameSite(v)
		if err != nil {
			retErr = multierror.Append(retErr, fmt.Errorf("%s: %w", EnvCookieSameSite, err))
		}
		opts = append(opts, WithCookieSameSite(s))
	}
	for _, s := range []struct {
		key string
		fn  func(time.Duration) Option
	}{
		{EnvCookieAgeSeconds, WithCookieMaxAge},
		{EnvExpirationLeeway, WithExpirationLeeway},
		{EnvRefreshCookieAge, WithRefreshCookieMaxAge},
	} {
		if v := get(s.key); v != "" {
			d, err := parseSeconds(v)
			if err != nil {
				retErr = multierror.Append(retErr, fmt.Errorf("%s: %w", s.key, err))
				continue
			}
			opts = append(opts, s.fn(d))
		}
	}
	for _, b := range []struct {
		key string
		fn  func(bool) Option
	}{
		{EnvDisabled, func(v bool) Option {
			if v {
				return WithDisabled()
			}
			return nil
		}},
		{EnvRefreshFlowEnabled, func(v bool) Option {
			if v {
				return WithRefreshFlow()
			}
			return nil
		}},
		{EnvRefreshCookieEncrypted, WithRefreshCookieEncrypted},
	} {
		if v := get(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				retErr = multierror.Append(retErr, fmt.Errorf("%s: %q is not a boolean: %w", b.key, v, ErrInvalidParameter))
				continue
			}
			opts = append(opts, b.fn(parsed))
		}
	}
	if err := retErr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}

	opts = append(opts, opt...)
	c, err := NewConfig(get(EnvRegion), get(EnvUserPoolId), get(EnvDomain), get(EnvClientId), get(EnvRedirectUrl), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// fileConfig is the yaml layout read by LoadConfigFile.
type fileConfig struct {
	Region                 string   `yaml:"region"`
	UserPoolId             string   `yaml:"user_pool_id"`
	Domain                 string   `yaml:"domain"`
	ClientId               string   `yaml:"client_id"`
	ClientSecret           string   `yaml:"client_secret"`
	RedirectUrl            string   `yaml:"redirect_url"`
	LogoutRedirectUrl      string   `yaml:"logout_redirect_url"`
	Scopes                 []string `yaml:"scopes"`
	ExpirationLeeway       int      `yaml:"expiration_leeway_seconds"`
	Disabled               bool     `yaml:"disabled"`
	RefreshFlowEnabled     bool     `yaml:"refresh_flow_enabled"`
	RefreshCookieEncrypted *bool    `yaml:"refresh_cookie_encrypted"`
	SecretKey              string   `yaml:"secret_key"`
	GroupsClaim            string   `yaml:"groups_claim"`
	ProviderCA             string   `yaml:"provider_ca"`
	HTTPTimeout            int      `yaml:"http_timeout_seconds"`
	IssuerUrl              string   `yaml:"issuer_url"`
	JwksUrl                string   `yaml:"jwks_url"`
	Cookies                struct {
		AccessName           string `yaml:"access_name"`
		RefreshName          string `yaml:"refresh_name"`
		IdName               string `yaml:"id_name"`
		MaxAgeSeconds        int    `yaml:"max_age_seconds"`
		RefreshMaxAgeSeconds int    `yaml:"refresh_max_age_seconds"`
		Domain               string `yaml:"domain"`
		SameSite             string `yaml:"same_site"`
	} `yaml:"cookies"`
}

// LoadConfigFile builds a Config from a yaml file. Unknown keys are an error.
// Options given are applied after the ones read from the file.
func LoadConfigFile(path string, opt ...Option) (*Config, error) {
	const op = "oidc.LoadConfigFile"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("%s: unable to parse %s: %w: %w", op, path, ErrConfiguration, err)
	}

	opts := []Option{
		WithClientSecret(ClientSecret(fc.ClientSecret)),
		WithLogoutRedirectUrl(fc.LogoutRedirectUrl),
		WithExpirationLeeway(time.Duration(fc.ExpirationLeeway) * time.Second),
		WithSecretKey(SecretKey(fc.SecretKey)),
		WithCookieNames(fc.Cookies.AccessName, fc.Cookies.RefreshName, fc.Cookies.IdName),
		WithCookieDomain(fc.Cookies.Domain),
		WithProviderCA(fc.ProviderCA),
		WithIssuerUrl(fc.IssuerUrl),
		WithJwksUrl(fc.JwksUrl),
	}
	if len(fc.Scopes) > 0 {
		opts = append(opts, WithScopes(fc.Scopes...))
	}
	if fc.Disabled {
		opts = append(opts, WithDisabled())
	}
	if fc.RefreshFlowEnabled {
		opts = append(opts, WithRefreshFlow())
	}
	if fc.RefreshCookieEncrypted != nil {
		opts = append(opts, WithRefreshCookieEncrypted(*fc.RefreshCookieEncrypted))
	}
	if fc.GroupsClaim != "" {
		opts = append(opts, WithGroupsClaim(fc.GroupsClaim))
	}
	if fc.Cookies.MaxAgeSeconds != 0 {
		opts = append(opts, WithCookieMaxAge(time.Duration(fc.Cookies.MaxAgeSeconds)*time.Second))
	}
	if fc.Cookies.RefreshMaxAgeSeconds != 0 {
		opts = append(opts, WithRefreshCookieMaxAge(time.Duration(fc.Cookies.RefreshMaxAgeSeconds)*time.Second))
	}
	if fc.HTTPTimeout != 0 {
		opts = append(opts, WithHTTPTimeout(time.Duration(fc.HTTPTimeout)*time.Second))
	}
	if fc.Cookies.SameSite != "" {
		s, err := ParseSameSite(fc.Cookies.SameSite)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
		}
		opts = append(opts, WithCookieSameSite(s))
	}

	opts = append(opts, opt...)
	c, err := NewConfig(fc.Region, fc.UserPoolId, fc.Domain, fc.ClientId, fc.RedirectUrl, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// ParseSameSite parses Strict, Lax or None, in any case, into a SameSite
// policy.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return http.SameSiteDefaultMode, fmt.Errorf("unknown same site policy %q: %w", s, ErrInvalidParameter)
	}
}

func parseSeconds(s string) (time.Duration, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number of seconds: %w", s, ErrInvalidParameter)
	}
	return time.Duration(n) * time.Second, nil
}

func splitScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
