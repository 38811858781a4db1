// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"net/http"
	"time"
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

// DefaultMinRefreshInterval is the minimum time between two fetches of a
// remote key set triggered by unknown key ids.
const DefaultMinRefreshInterval = 5 * time.Second

type keySetOptions struct {
	withHTTPClient         *http.Client
	withTimeout            time.Duration
	withMinRefreshInterval time.Duration
	withNowFunc            func() time.Time
}

func keySetDefaults() keySetOptions {
	return keySetOptions{
		withMinRefreshInterval: DefaultMinRefreshInterval,
		withNowFunc:            time.Now,
	}
}

func getKeySetOpts(opt ...Option) keySetOptions {
	opts := keySetDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithHTTPClient provides the http client used to fetch a remote key set. When
// set, the CA PEM given to NewJSONWebKeySet is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withHTTPClient = c
		}
	}
}

// WithTimeout bounds every fetch of a remote key set.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withTimeout = d
		}
	}
}

// WithMinRefreshInterval sets the minimum time between fetches of a remote
// key set caused by unknown key ids. Zero allows a fetch on every miss, which
// is still bounded to one fetch per lookup.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withMinRefreshInterval = d
		}
	}
}

// WithNow provides a time source.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withNowFunc = now
		}
	}
}
