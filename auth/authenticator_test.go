package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/cap-cognito/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthenticator(t *testing.T) {
	t.Parallel()
	t.Run("nil-config", func(t *testing.T) {
		_, err := NewAuthenticator(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, oidc.ErrNilParameter)
	})
	t.Run("invalid-config", func(t *testing.T) {
		c := &oidc.Config{}
		_, err := NewAuthenticator(c)
		require.Error(t, err)
		assert.ErrorIs(t, err, oidc.ErrConfiguration)
	})
	t.Run("refresh-cipher", func(t *testing.T) {
		_, a := testSetup(t, []oidc.Option{oidc.WithRefreshFlow(), oidc.WithSecretKey(testSecretKey)})
		assert.NotNil(t, a.cipher)
		_, a = testSetup(t, []oidc.Option{oidc.WithRefreshFlow(), oidc.WithRefreshCookieEncrypted(false)})
		assert.Nil(t, a.cipher)
	})
}

func TestAuthenticator_Login(t *testing.T) {
	t.Parallel()
	tp, a := testSetup(t, []oidc.Option{oidc.WithScopes("openid", "email")})

	tests := []struct {
		name        string
		customState string
	}{
		{name: "no-custom-state"},
		{name: "custom-state", customState: "page-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			s := NewSession()
			signInURL, err := a.Login(context.Background(), s, tt.customState)
			require.NoError(err)
			assert.True(strings.HasPrefix(signInURL, tp.Addr()+"/oauth2/authorize?response_type=code&client_id=test-client-id&redirect_uri="))

			verifier, ok := s.Get(SessionCodeVerifier)
			require.True(ok)
			challenge, ok := s.Get(SessionCodeChallenge)
			require.True(ok)
			nonce, ok := s.Get(SessionNonce)
			require.True(ok)
			state, ok := s.Get(SessionState)
			require.True(ok)
			assert.Equal(oidc.CodeChallenge(verifier), challenge)
			assert.Equal(tt.customState, oidc.CustomState(state))

			u, err := url.Parse(signInURL)
			require.NoError(err)
			q := u.Query()
			assert.Equal(testRedirectUrl, q.Get("redirect_uri"))
			assert.Equal(challenge, q.Get("code_challenge"))
			assert.Equal("S256", q.Get("code_challenge_method"))
			assert.Equal(nonce, q.Get("nonce"))
			assert.Equal(state, q.Get("state"))
			assert.Equal("openid email", q.Get("scope"))
		})
	}
	t.Run("nil-session", func(t *testing.T) {
		_, err := a.Login(context.Background(), nil, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, oidc.ErrNilParameter)
	})
}

func TestAuthenticator_Callback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, a := testSetup(t, []oidc.Option{
			oidc.WithRefreshFlow(),
			oidc.WithSecretKey(testSecretKey),
			oidc.WithCookieDomain("example.com"),
		})
		s, q := testLogin(t, a, "page-2")
		verifier, _ := s.Get(SessionCodeVerifier)
		tp.SetExpectedAuthCode("valid-code", oidc.CodeChallenge(verifier))
		tp.SetExpectedAuthNonce(q.Get("nonce"))

		jar := newTestCookieJar(nil)
		r, err := a.Callback(ctx, s, url.Values{"code": {"valid-code"}, "state": {q.Get("state")}}, jar)
		require.NoError(err)
		assert.Equal("page-2", r.CustomState)
		assert.Equal("test-client-id", r.Claims["client_id"])
		assert.Equal("alice@example.com", r.UserInfo["email"])

		for _, k := range []string{SessionCodeVerifier, SessionCodeChallenge, SessionNonce} {
			_, ok := s.Get(k)
			assert.Falsef(ok, "%s is still in the session", k)
		}
		state, _ := s.Get(SessionState)
		assert.Equal("page-2", state)
		claims, ok, err := StoredClaims(s, SessionClaims)
		require.NoError(err)
		require.True(ok)
		assert.Equal(r.Claims, claims)
		userInfo, ok, err := StoredClaims(s, SessionUserInfo)
		require.NoError(err)
		require.True(ok)
		assert.Equal("alice@example.com", userInfo["email"])

		access := jar.set[oidc.DefaultAccessCookieName]
		assert.Equal(string(r.Token.AccessToken), access.value)
		assert.Equal(CookieAttrs{
			MaxAge:   oidc.DefaultCookieMaxAge,
			Domain:   "example.com",
			SameSite: http.SameSiteLaxMode,
			HttpOnly: true,
			Secure:   true,
		}, access.attrs)
		assert.Equal(string(r.Token.IdToken), jar.set[oidc.DefaultIdCookieName].value)

		refresh := jar.set[oidc.DefaultRefreshCookieName]
		assert.Equal(oidc.DefaultRefreshCookieMaxAge, refresh.attrs.MaxAge)
		assert.NotEqual("test-refresh-token", refresh.value)
		cipher, err := oidc.NewTokenCipher(testSecretKey)
		require.NoError(err)
		plaintext, err := cipher.Decrypt(refresh.value, oidc.WithAssociatedData([]byte(oidc.DefaultRefreshCookieName)))
		require.NoError(err)
		assert.Equal("test-refresh-token", plaintext)
	})

	t.Run("success-without-custom-state", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, a := testSetup(t, nil)
		s, q := testLogin(t, a, "")
		tp.SetExpectedAuthCode("valid-code", "")
		tp.SetExpectedAuthNonce(q.Get("nonce"))

		jar := newTestCookieJar(nil)
		r, err := a.Callback(ctx, s, url.Values{"code": {"valid-code"}, "state": {q.Get("state")}}, jar)
		require.NoError(err)
		assert.Empty(r.CustomState)
		_, ok := s.Get(SessionState)
		assert.False(ok)
		// the refresh flow isn't enabled
		assert.NotContains(jar.set, oidc.DefaultRefreshCookieName)
	})

	t.Run("unencrypted-refresh-cookie", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, a := testSetup(t, []oidc.Option{oidc.WithRefreshFlow(), oidc.WithRefreshCookieEncrypted(false)})
		s, q := testLogin(t, a, "")
		tp.SetExpectedAuthCode("valid-code", "")
		tp.SetExpectedAuthNonce(q.Get("nonce"))

		jar := newTestCookieJar(nil)
		_, err := a.Callback(ctx, s, url.Values{"code": {"valid-code"}, "state": {q.Get("state")}}, jar)
		require.NoError(err)
		assert.Equal("test-refresh-token", jar.set[oidc.DefaultRefreshCookieName].value)
	})

	t.Run("failures", func(t *testing.T) {
		tests := []struct {
			name          string
			setup         func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values
			wantIs        []error
			wantNoRequest bool
		}{
			{
				name: "session-data-missing",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					s.Clear()
					return url.Values{"code": {"valid-code"}, "state": {q.Get("state")}}
				},
				wantIs:        []error{ErrSessionDataMissing},
				wantNoRequest: true,
			},
			{
				name: "provider-error",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					return url.Values{"error": {"access_denied"}, "error_description": {"user cancelled"}, "state": {q.Get("state")}}
				},
				wantIs:        []error{oidc.ErrProtocol},
				wantNoRequest: true,
			},
			{
				name: "missing-code",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					return url.Values{"state": {q.Get("state")}}
				},
				wantIs:        []error{oidc.ErrProtocol},
				wantNoRequest: true,
			},
			{
				name: "missing-state",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					return url.Values{"code": {"valid-code"}}
				},
				wantIs:        []error{oidc.ErrProtocol},
				wantNoRequest: true,
			},
			{
				name: "state-mismatch-valid-code",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					return url.Values{"code": {"valid-code"}, "state": {q.Get("state") + "x"}}
				},
				wantIs:        []error{ErrStateMismatch, oidc.ErrProtocol},
				wantNoRequest: true,
			},
			{
				name: "invalid-code",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					return url.Values{"code": {"invalid-code"}, "state": {q.Get("state")}}
				},
				wantIs: []error{oidc.ErrProtocol},
			},
			{
				name: "wrong-nonce",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					tp.SetExpectedAuthNonce("some-other-nonce")
					return url.Values{"code": {"valid-code"}, "state": {q.Get("state")}}
				},
				wantIs: []error{oidc.ErrTokenVerify, oidc.ErrInvalidNonce},
			},
			{
				name: "access-token-for-other-client",
				setup: func(tp *oidc.TestProvider, s *Session, q url.Values) url.Values {
					tp.SetCustomClaims(map[string]interface{}{"client_id": "someone-else"})
					return url.Values{"code": {"valid-code"}, "state": {q.Get("state")}}
				},
				wantIs: []error{oidc.ErrTokenVerify, oidc.ErrInvalidClientId},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				tp, a := testSetup(t, nil)
				s, q := testLogin(t, a, "")
				tp.SetExpectedAuthCode("valid-code", "")
				tp.SetExpectedAuthNonce(q.Get("nonce"))

				jar := newTestCookieJar(nil)
				r, err := a.Callback(ctx, s, tt.setup(tp, s, q), jar)
				require.Error(err)
				assert.Nil(r)
				for _, e := range tt.wantIs {
					assert.ErrorIs(err, e)
				}
				assert.Empty(jar.set)
				_, ok := s.Get(SessionClaims)
				assert.False(ok)
				if tt.wantNoRequest {
					assert.Zero(tp.TokenRequests())
				}
			})
		}
	})

	t.Run("provider-error-type", func(t *testing.T) {
		_, a := testSetup(t, nil)
		s, q := testLogin(t, a, "")
		_, err := a.Callback(ctx, s, url.Values{"error": {"access_denied"}, "state": {q.Get("state")}}, newTestCookieJar(nil))
		var pe *oidc.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "access_denied", pe.Code)
	})
}

func TestAuthenticator_Callback_customState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []string{
		"/orders?page=2&sort=asc",
		"a+b",
		"50%off",
		"x#frag",
		"/search?q=a b&lang=fr",
	}
	for _, customState := range tests {
		t.Run(customState, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			tp, a := testSetup(t, nil)
			s, q := testLogin(t, a, customState)
			wantState, _ := s.Get(SessionState)
			require.Equal(wantState, q.Get("state"))
			wantNonce, _ := s.Get(SessionNonce)
			require.Equal(wantNonce, q.Get("nonce"))

			verifier, _ := s.Get(SessionCodeVerifier)
			tp.SetExpectedAuthCode("valid-code", oidc.CodeChallenge(verifier))
			tp.SetExpectedAuthNonce(q.Get("nonce"))

			r, err := a.Callback(ctx, s, url.Values{"code": {"valid-code"}, "state": {q.Get("state")}}, newTestCookieJar(nil))
			require.NoError(err)
			assert.Equal(customState, r.CustomState)
		})
	}
}

func TestAuthenticator_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	refreshConfig := []oidc.Option{oidc.WithRefreshFlow(), oidc.WithSecretKey(testSecretKey)}

	encrypt := func(t *testing.T, token string) string {
		t.Helper()
		cipher, err := oidc.NewTokenCipher(testSecretKey)
		require.NoError(t, err)
		ct, err := cipher.Encrypt(token, oidc.WithAssociatedData([]byte(oidc.DefaultRefreshCookieName)))
		require.NoError(t, err)
		return ct
	}

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, a := testSetup(t, refreshConfig)
		s := NewSession()
		s.Set(SessionState, "page-2")
		jar := newTestCookieJar(map[string]string{
			oidc.DefaultRefreshCookieName: encrypt(t, "test-refresh-token"),
		})

		r, err := a.Refresh(ctx, s, jar)
		require.NoError(err)
		assert.Equal("test-client-id", r.Claims["client_id"])
		assert.Equal(string(r.Token.AccessToken), jar.set[oidc.DefaultAccessCookieName].value)
		assert.Equal(string(r.Token.IdToken), jar.set[oidc.DefaultIdCookieName].value)
		// no new refresh token is issued by a refresh
		assert.NotContains(jar.set, oidc.DefaultRefreshCookieName)

		state, _ := s.Get(SessionState)
		assert.Equal("page-2", state)
		_, ok := s.Get(SessionClaims)
		assert.True(ok)
		assert.Equal(1, tp.TokenRequests())
	})

	t.Run("unencrypted", func(t *testing.T) {
		_, a := testSetup(t, []oidc.Option{oidc.WithRefreshFlow(), oidc.WithRefreshCookieEncrypted(false)})
		jar := newTestCookieJar(map[string]string{oidc.DefaultRefreshCookieName: "test-refresh-token"})
		_, err := a.Refresh(ctx, NewSession(), jar)
		require.NoError(t, err)
	})

	tests := []struct {
		name      string
		configOpt []oidc.Option
		cookies   func(t *testing.T) map[string]string
		wantIs    []error
	}{
		{
			name:    "disabled",
			cookies: func(t *testing.T) map[string]string { return nil },
			wantIs:  []error{ErrRefreshDisabled, oidc.ErrConfiguration},
		},
		{
			name:      "missing-cookie",
			configOpt: refreshConfig,
			cookies:   func(t *testing.T) map[string]string { return nil },
			wantIs:    []error{ErrMissingRefreshToken},
		},
		{
			name:      "tampered-cookie",
			configOpt: refreshConfig,
			cookies: func(t *testing.T) map[string]string {
				ct := encrypt(t, "test-refresh-token")
				return map[string]string{oidc.DefaultRefreshCookieName: ct[:len(ct)-2] + "AA"}
			},
			wantIs: []error{oidc.ErrDecryption},
		},
		{
			name:      "plaintext-cookie-when-encrypted",
			configOpt: refreshConfig,
			cookies: func(t *testing.T) map[string]string {
				return map[string]string{oidc.DefaultRefreshCookieName: "test-refresh-token"}
			},
			wantIs: []error{oidc.ErrDecryption},
		},
		{
			name:      "revoked-token",
			configOpt: refreshConfig,
			cookies: func(t *testing.T) map[string]string {
				return map[string]string{oidc.DefaultRefreshCookieName: encrypt(t, "some-other-token")}
			},
			wantIs: []error{oidc.ErrProtocol},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			_, a := testSetup(t, tt.configOpt)
			jar := newTestCookieJar(tt.cookies(t))
			r, err := a.Refresh(ctx, NewSession(), jar)
			require.Error(err)
			assert.Nil(r)
			for _, e := range tt.wantIs {
				assert.ErrorIs(err, e)
			}
			assert.Empty(jar.set)
		})
	}
}

func TestAuthenticator_Authorize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp, a := testSetup(t, nil)

	withGroups := func(groups interface{}) map[string]string {
		return map[string]string{
			oidc.DefaultAccessCookieName: string(tp.AccessToken(map[string]interface{}{oidc.DefaultGroupsClaim: groups})),
		}
	}

	tests := []struct {
		name    string
		cookies map[string]string
		req     Requirement
		wantIs  []error
	}{
		{
			name:    "valid",
			cookies: map[string]string{oidc.DefaultAccessCookieName: string(tp.AccessToken(nil))},
		},
		{
			name:   "missing-cookie",
			wantIs: []error{ErrAuthorizationRequired, oidc.ErrMissingToken},
		},
		{
			name:    "empty-cookie",
			cookies: map[string]string{oidc.DefaultAccessCookieName: ""},
			wantIs:  []error{ErrAuthorizationRequired},
		},
		{
			name:    "expired",
			cookies: map[string]string{oidc.DefaultAccessCookieName: string(tp.AccessToken(map[string]interface{}{"exp": time.Now().Add(-time.Minute).Unix()}))},
			wantIs:  []error{ErrAuthorizationRequired, oidc.ErrExpiredToken},
		},
		{
			name:    "other-client",
			cookies: map[string]string{oidc.DefaultAccessCookieName: string(tp.AccessToken(map[string]interface{}{"client_id": "someone-else"}))},
			wantIs:  []error{ErrAuthorizationRequired, oidc.ErrInvalidClientId},
		},
		{
			name:    "garbage",
			cookies: map[string]string{oidc.DefaultAccessCookieName: "garbage"},
			wantIs:  []error{ErrAuthorizationRequired},
		},
		{
			name:    "all-groups",
			cookies: withGroups([]string{"admin", "dev", "ops"}),
			req:     Requirement{Groups: []string{"admin", "dev"}},
		},
		{
			name:    "all-groups-not-member",
			cookies: withGroups([]string{"admin"}),
			req:     Requirement{Groups: []string{"admin", "dev"}},
			wantIs:  []error{ErrGroupMembership},
		},
		{
			name:    "any-group",
			cookies: withGroups([]string{"dev"}),
			req:     Requirement{Groups: []string{"admin", "dev"}, AnyGroup: true},
		},
		{
			name:    "any-group-not-member",
			cookies: withGroups([]string{"ops"}),
			req:     Requirement{Groups: []string{"admin", "dev"}, AnyGroup: true},
			wantIs:  []error{ErrGroupMembership},
		},
		{
			name:    "empty-groups-claim",
			cookies: withGroups([]string{}),
			req:     Requirement{Groups: []string{"admin"}},
			wantIs:  []error{ErrGroupMembership},
		},
		{
			name:    "missing-groups-claim",
			cookies: map[string]string{oidc.DefaultAccessCookieName: string(tp.AccessToken(nil))},
			req:     Requirement{Groups: []string{"admin"}},
			wantIs:  []error{ErrMissingGroupsClaim, ErrGroupMembership},
		},
		{
			name:    "invalid-groups-claim",
			cookies: withGroups(42),
			req:     Requirement{Groups: []string{"admin"}},
			wantIs:  []error{ErrGroupMembership, oidc.ErrInvalidClaim},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			claims, err := a.Authorize(ctx, newTestCookieJar(tt.cookies), tt.req)
			if len(tt.wantIs) > 0 {
				require.Error(err)
				assert.Nil(claims)
				for _, e := range tt.wantIs {
					assert.ErrorIs(err, e)
				}
				if tt.wantIs[0] != ErrAuthorizationRequired {
					assert.NotErrorIs(err, ErrAuthorizationRequired)
				}
				return
			}
			require.NoError(err)
			assert.Equal("test-client-id", claims["client_id"])
		})
	}

	t.Run("disabled", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, a := testSetup(t, []oidc.Option{oidc.WithDisabled()})
		claims, err := a.Authorize(ctx, newTestCookieJar(nil), Requirement{Groups: []string{"admin"}})
		require.NoError(err)
		assert.Nil(claims)
	})
}

func TestAuthenticator_Logout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("revokes-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, a := testSetup(t, []oidc.Option{oidc.WithRefreshFlow(), oidc.WithSecretKey(testSecretKey)})
		cipher, err := oidc.NewTokenCipher(testSecretKey)
		require.NoError(err)
		ct, err := cipher.Encrypt("test-refresh-token", oidc.WithAssociatedData([]byte(oidc.DefaultRefreshCookieName)))
		require.NoError(err)

		jar := newTestCookieJar(map[string]string{
			oidc.DefaultAccessCookieName:  "access",
			oidc.DefaultRefreshCookieName: ct,
			oidc.DefaultIdCookieName:      "id",
		})
		logoutURL, err := a.Logout(ctx, jar)
		require.NoError(err)
		assert.Equal(tp.Addr()+"/logout?client_id=test-client-id&logout_uri=https%3A//app.example.com/postlogout", logoutURL)
		assert.Equal([]string{"test-refresh-token"}, tp.RevokedTokens())
		assert.Contains(jar.deleted, oidc.DefaultAccessCookieName)
		assert.Contains(jar.deleted, oidc.DefaultRefreshCookieName)
		assert.Contains(jar.deleted, oidc.DefaultIdCookieName)
		assert.Empty(jar.values)
	})

	t.Run("no-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, a := testSetup(t, nil)
		jar := newTestCookieJar(map[string]string{oidc.DefaultAccessCookieName: "access"})
		_, err := a.Logout(ctx, jar)
		require.NoError(err)
		assert.Empty(tp.RevokedTokens())
		assert.Contains(jar.deleted, oidc.DefaultAccessCookieName)
		assert.NotContains(jar.deleted, oidc.DefaultRefreshCookieName)
		assert.NotContains(jar.deleted, oidc.DefaultIdCookieName)
	})

	t.Run("revocation-failure-does-not-block", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t, 0)
		c := tp.Config(testRedirectUrl, oidc.WithRefreshFlow(), oidc.WithRefreshCookieEncrypted(false))
		p, err := oidc.NewProvider(c, oidc.WithTransport(testFailingTransport{}))
		require.NoError(err)
		a, err := NewAuthenticator(c, WithProvider(p))
		require.NoError(err)

		jar := newTestCookieJar(map[string]string{oidc.DefaultRefreshCookieName: "test-refresh-token"})
		logoutURL, err := a.Logout(ctx, jar)
		require.NoError(err)
		assert.Equal(c.LogoutEndpoint(), logoutURL)
		assert.Contains(jar.deleted, oidc.DefaultRefreshCookieName)
	})

	t.Run("undecryptable-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, a := testSetup(t, []oidc.Option{oidc.WithRefreshFlow(), oidc.WithSecretKey(testSecretKey)})
		jar := newTestCookieJar(map[string]string{oidc.DefaultRefreshCookieName: "v1.tampered"})
		_, err := a.Logout(ctx, jar)
		require.NoError(err)
		assert.Empty(tp.RevokedTokens())
		assert.Contains(jar.deleted, oidc.DefaultRefreshCookieName)
	})
}
