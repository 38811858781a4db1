package oidc

import (
	"net/http"
	"time"

	"github.com/hashicorp/cap-cognito/internal/strutils"
	"github.com/hashicorp/cap-cognito/jwt"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/text/language"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// configOptions is the set of available options for Config functions
type configOptions struct {
	withClientSecret           ClientSecret
	withLogoutRedirectUrl      string
	withScopes                 []string
	withExpirationLeeway       time.Duration
	withSigningAlgs            []jwt.Alg
	withDisabled               bool
	withRefreshFlow            bool
	withRefreshCookieEncrypted bool
	withSecretKey              SecretKey
	withAccessCookieName       string
	withRefreshCookieName      string
	withIdCookieName           string
	withCookieMaxAge           time.Duration
	withRefreshCookieMaxAge    time.Duration
	withCookieDomain           string
	withCookieSameSite         http.SameSite
	withGroupsClaim            string
	withProviderCA             string
	withHTTPTimeout            time.Duration
	withIssuerUrl              string
	withJwksUrl                string
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withSigningAlgs:            []jwt.Alg{jwt.RS256},
		withRefreshCookieEncrypted: true,
		withAccessCookieName:       DefaultAccessCookieName,
		withRefreshCookieName:      DefaultRefreshCookieName,
		withIdCookieName:           DefaultIdCookieName,
		withCookieMaxAge:           DefaultCookieMaxAge,
		withRefreshCookieMaxAge:    DefaultRefreshCookieMaxAge,
		withCookieSameSite:         http.SameSiteLaxMode,
		withGroupsClaim:            DefaultGroupsClaim,
		withHTTPTimeout:            DefaultHTTPTimeout,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithClientSecret provides the app client secret. Without it the client is
// treated as a public client.
func WithClientSecret(secret ClientSecret) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientSecret = secret
		}
	}
}

// WithLogoutRedirectUrl provides the url the provider redirects to after
// logout.
func WithLogoutRedirectUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogoutRedirectUrl = u
		}
	}
}

// WithScopes provides the scopes to request. Duplicates are removed.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = strutils.RemoveDuplicatesStable(scopes, false)
		}
	}
}

// WithExpirationLeeway provides the clock skew allowed when checking a
// token's exp and iat claims.
func WithExpirationLeeway(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withExpirationLeeway = d
		}
	}
}

// WithSigningAlgs provides the algs tokens may be signed with. The default is
// RS256, which is what Cognito uses.
func WithSigningAlgs(algs ...jwt.Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSigningAlgs = algs
		}
	}
}

// WithDisabled turns off every authorization check.
func WithDisabled() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withDisabled = true
		}
	}
}

// WithRefreshFlow enables the refresh token flow.
func WithRefreshFlow() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRefreshFlow = true
		}
	}
}

// WithRefreshCookieEncrypted sets whether refresh token cookies are
// encrypted. They are by default.
func WithRefreshCookieEncrypted(encrypted bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRefreshCookieEncrypted = encrypted
		}
	}
}

// WithSecretKey provides the application secret.
func WithSecretKey(k SecretKey) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSecretKey = k
		}
	}
}

// WithCookieNames overrides the access, refresh and id token cookie names.
// Empty names keep their default.
func WithCookieNames(access, refresh, id string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			if access != "" {
				o.withAccessCookieName = access
			}
			if refresh != "" {
				o.withRefreshCookieName = refresh
			}
			if id != "" {
				o.withIdCookieName = id
			}
		}
	}
}

// WithCookieMaxAge provides the max age of access and id token cookies.
func WithCookieMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCookieMaxAge = d
		}
	}
}

// WithRefreshCookieMaxAge provides the max age of refresh token cookies.
func WithRefreshCookieMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRefreshCookieMaxAge = d
		}
	}
}

// WithCookieDomain provides the domain of every cookie set.
func WithCookieDomain(domain string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCookieDomain = domain
		}
	}
}

// WithCookieSameSite provides the SameSite policy of every cookie set.
func WithCookieSameSite(s http.SameSite) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCookieSameSite = s
		}
	}
}

// WithGroupsClaim provides the name of the claim listing a user's groups.
func WithGroupsClaim(claim string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withGroupsClaim = claim
		}
	}
}

// WithProviderCA provides optional CA certs (PEM encoded) for the
// provider's TLS connections.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithHTTPTimeout bounds every request to the provider.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withHTTPTimeout = d
		}
	}
}

// WithIssuerUrl overrides the issuer derived from the region and user pool.
func WithIssuerUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withIssuerUrl = u
		}
	}
}

// WithJwksUrl overrides the JWKS url derived from the issuer.
func WithJwksUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withJwksUrl = u
		}
	}
}

// providerOptions is the set of available options for Provider functions
type providerOptions struct {
	withLogger    hclog.Logger
	withTransport Transport
}

func providerDefaults() providerOptions {
	return providerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// verifierOptions is the set of available options for Verifier functions
type verifierOptions struct {
	withLogger hclog.Logger
	withKeySet jwt.KeySet
	withNow    func() time.Time
}

func verifierDefaults() verifierOptions {
	return verifierOptions{
		withLogger: hclog.NewNullLogger(),
		withNow:    time.Now,
	}
}

func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger for: Provider, Verifier
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *providerOptions:
			v.withLogger = l
		case *verifierOptions:
			v.withLogger = l
		}
	}
}

// WithTransport provides the transport a Provider posts forms with.
func WithTransport(t Transport) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withTransport = t
		}
	}
}

// WithKeySet provides the key set a Verifier resolves signing keys with,
// instead of the user pool's JWKS endpoint.
func WithKeySet(ks jwt.KeySet) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifierOptions); ok {
			o.withKeySet = ks
		}
	}
}

// WithNow provides a time source for: Verifier
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifierOptions); ok && now != nil {
			o.withNow = now
		}
	}
}

// signInOptions is the set of available options for Provider.SignInURL
type signInOptions struct {
	withScopes           []string
	withIdentityProvider string
	withIdpIdentifier    string
	withLang             language.Tag
	withLoginHint        string
}

func getSignInOpts(opt ...Option) signInOptions {
	var opts signInOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSignInScopes overrides the configured scopes for one sign in url.
func WithSignInScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok {
			o.withScopes = strutils.RemoveDuplicatesStable(scopes, false)
		}
	}
}

// WithIdentityProvider sends the user straight to a federated identity
// provider, skipping the hosted UI.
func WithIdentityProvider(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok {
			o.withIdentityProvider = name
		}
	}
}

// WithIdpIdentifier selects a federated identity provider by one of its
// identifiers.
func WithIdpIdentifier(id string) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok {
			o.withIdpIdentifier = id
		}
	}
}

// WithLang sets the language of the hosted UI.
func WithLang(tag language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok {
			o.withLang = tag
		}
	}
}

// WithLoginHint pre fills the username field of the hosted UI.
func WithLoginHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok {
			o.withLoginHint = hint
		}
	}
}

// cipherOptions is the set of available options for TokenCipher functions
type cipherOptions struct {
	withAssociatedData []byte
}

func getCipherOpts(opt ...Option) cipherOptions {
	var opts cipherOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAssociatedData binds a ciphertext to data that isn't encrypted, such as
// the name of the cookie it's stored in. The same data must be given to
// decrypt it.
func WithAssociatedData(ad []byte) Option {
	return func(o interface{}) {
		if o, ok := o.(*cipherOptions); ok {
			o.withAssociatedData = ad
		}
	}
}
