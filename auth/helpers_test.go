package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/hashicorp/cap-cognito/oidc"
	"github.com/stretchr/testify/require"
)

const (
	testRedirectUrl = "https://app.example.com/postlogin"
	testLogoutUrl   = "https://app.example.com/postlogout"
	testSecretKey   = "very-secure"
)

// testSetup starts a test provider and returns it with an Authenticator for
// its app client.
func testSetup(t *testing.T, configOpt []oidc.Option, opt ...Option) (*oidc.TestProvider, *Authenticator) {
	t.Helper()
	tp := oidc.StartTestProvider(t, 0)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	c := tp.Config(testRedirectUrl, append([]oidc.Option{oidc.WithLogoutRedirectUrl(testLogoutUrl)}, configOpt...)...)
	a, err := NewAuthenticator(c, opt...)
	require.NoError(t, err)
	return tp, a
}

type testCookie struct {
	value string
	attrs CookieAttrs
}

// testCookieJar is a CookieJar which records what's written to it.
type testCookieJar struct {
	values  map[string]string
	set     map[string]testCookie
	deleted map[string]CookieAttrs
}

func newTestCookieJar(values map[string]string) *testCookieJar {
	if values == nil {
		values = map[string]string{}
	}
	return &testCookieJar{
		values:  values,
		set:     map[string]testCookie{},
		deleted: map[string]CookieAttrs{},
	}
}

func (j *testCookieJar) Cookie(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func (j *testCookieJar) SetCookie(name, value string, attrs CookieAttrs) {
	j.values[name] = value
	j.set[name] = testCookie{value: value, attrs: attrs}
}

func (j *testCookieJar) DeleteCookie(name string, attrs CookieAttrs) {
	delete(j.values, name)
	j.deleted[name] = attrs
}

// testLogin runs Login and returns the session it filled and the query
// parameters of the sign in url.
func testLogin(t *testing.T, a *Authenticator, customState string) (*Session, url.Values) {
	t.Helper()
	s := NewSession()
	signInURL, err := a.Login(context.Background(), s, customState)
	require.NoError(t, err)
	u, err := url.Parse(signInURL)
	require.NoError(t, err)
	return s, u.Query()
}

// testFailingTransport is an oidc.Transport which never gets a response.
type testFailingTransport struct{}

func (testFailingTransport) PostForm(context.Context, string, url.Values, *oidc.BasicAuth) (*oidc.TransportResponse, error) {
	return nil, errors.New("connection refused")
}
