package auth

import (
	"net/http"
	"time"

	"github.com/hashicorp/cap-cognito/oidc"
	"github.com/hashicorp/go-hclog"
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

// authenticatorOptions is the set of available options for Authenticator
// functions
type authenticatorOptions struct {
	withLogger   hclog.Logger
	withProvider *oidc.Provider
	withVerifier *oidc.Verifier
}

func authenticatorDefaults() authenticatorOptions {
	return authenticatorOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getAuthenticatorOpts(opt ...Option) authenticatorOptions {
	opts := authenticatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// sessionOptions is the set of available options for MemorySessions and
// CookieSessions
type sessionOptions struct {
	withLogger     hclog.Logger
	withCookieName string
	withMaxAge     time.Duration
	withNow        func() time.Time
}

func sessionDefaults() sessionOptions {
	return sessionOptions{
		withLogger:     hclog.NewNullLogger(),
		withCookieName: DefaultSessionCookieName,
		withMaxAge:     DefaultSessionMaxAge,
		withNow:        time.Now,
	}
}

func getSessionOpts(opt ...Option) sessionOptions {
	opts := sessionDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// handlerOptions is the set of available options for the http handlers
type handlerOptions struct {
	withCustomState   func(*http.Request) string
	withSignInOptions []oidc.Option
	withSuccess       SuccessResponseFunc
	withError         ErrorResponseFunc
}

func handlerDefaults() handlerOptions {
	return handlerOptions{
		withSuccess: DefaultSuccessResponse,
		withError:   DefaultErrorResponse,
	}
}

func getHandlerOpts(opt ...Option) handlerOptions {
	opts := handlerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger for: Authenticator, MemorySessions,
// CookieSessions
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *authenticatorOptions:
			v.withLogger = l
		case *sessionOptions:
			v.withLogger = l
		}
	}
}

// WithProvider provides the oidc.Provider an Authenticator uses, instead of
// one built from its config.
func WithProvider(p *oidc.Provider) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withProvider = p
		}
	}
}

// WithVerifier provides the oidc.Verifier an Authenticator uses, instead of
// one built from its config.
func WithVerifier(v *oidc.Verifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withVerifier = v
		}
	}
}

// WithSessionCookieName overrides DefaultSessionCookieName.
func WithSessionCookieName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok && name != "" {
			o.withCookieName = name
		}
	}
}

// WithSessionMaxAge overrides DefaultSessionMaxAge.
func WithSessionMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withMaxAge = d
		}
	}
}

// WithNow provides a time source for session expiry.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok && now != nil {
			o.withNow = now
		}
	}
}

// WithCustomState provides a func returning the custom state of a login,
// which is handed back after the callback. Without it LoginHandler uses the
// "state" value of the session, if any.
func WithCustomState(fn func(*http.Request) string) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withCustomState = fn
		}
	}
}

// WithSignInOptions provides options for the sign in url built by
// LoginHandler, such as oidc.WithIdentityProvider.
func WithSignInOptions(opt ...oidc.Option) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withSignInOptions = opt
		}
	}
}

// WithSuccessResponse overrides DefaultSuccessResponse.
func WithSuccessResponse(fn SuccessResponseFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok && fn != nil {
			o.withSuccess = fn
		}
	}
}

// WithErrorResponse overrides DefaultErrorResponse.
func WithErrorResponse(fn ErrorResponseFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok && fn != nil {
			o.withError = fn
		}
	}
}
