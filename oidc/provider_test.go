// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewProvider(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p, err := NewProvider(testNewConfig(t), WithLogger(hclog.NewNullLogger()))
		require.NoError(err)
		assert.NotNil(p.HTTPClient())
		assert.IsType(&HTTPTransport{}, p.transport)
	})
	t.Run("nil-config", func(t *testing.T) {
		_, err := NewProvider(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("invalid-config", func(t *testing.T) {
		c := testNewConfig(t)
		c.ClientId = ""
		_, err := NewProvider(c)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
	t.Run("invalid-ca", func(t *testing.T) {
		_, err := NewProvider(testNewConfig(t, WithProviderCA("not a pem")))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCACert)
	})
}

func TestProvider_SignInURL(t *testing.T) {
	t.Parallel()
	const base = testDomain + "/oauth2/authorize" +
		"?response_type=code" +
		"&client_id=" + testClientId +
		"&redirect_uri=http%3A//localhost%3A5000/postlogin" +
		"&state=1234" +
		"&nonce=6789" +
		"&code_challenge=asdf" +
		"&code_challenge_method=S256"

	tests := []struct {
		name      string
		configOpt []Option
		opt       []Option
		want      string
	}{
		{
			name: "no-scopes",
			want: base,
		},
		{
			name: "sign-in-scopes",
			opt:  []Option{WithSignInScopes("openid", "profile")},
			want: base + "&scope=openid+profile",
		},
		{
			name:      "configured-scopes",
			configOpt: []Option{WithScopes("openid", "email", "aws.cognito.signin.user.admin")},
			want:      base + "&scope=openid+email+aws.cognito.signin.user.admin",
		},
		{
			name:      "sign-in-scopes-override-configured",
			configOpt: []Option{WithScopes("openid", "email")},
			opt:       []Option{WithSignInScopes("openid")},
			want:      base + "&scope=openid",
		},
		{
			name: "every-parameter",
			opt: []Option{
				WithSignInScopes("openid", "profile"),
				WithIdentityProvider("Google"),
				WithIdpIdentifier("example.com"),
				WithLang(language.French),
				WithLoginHint("alice@example.com"),
			},
			want: base + "&scope=openid+profile" +
				"&identity_provider=Google" +
				"&idp_identifier=example.com" +
				"&lang=fr" +
				"&login_hint=alice%40example.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			p, err := NewProvider(testNewConfig(t, tt.configOpt...))
			require.NoError(err)
			assert.Equal(t, tt.want, p.SignInURL("asdf", "1234", "6789", tt.opt...))
		})
	}
}

func TestProvider_SignInURL_escaping(t *testing.T) {
	t.Parallel()
	p, err := NewProvider(testNewConfig(t))
	require.NoError(t, err)

	tests := []struct {
		name  string
		state string
		nonce string
	}{
		{name: "query", state: "abc__/orders?page=2&sort=asc", nonce: "n&scope=admin"},
		{name: "plus", state: "abc__a+b", nonce: "a+b"},
		{name: "percent", state: "abc__50%off", nonce: "50%off"},
		{name: "fragment", state: "abc__x#frag", nonce: "x#frag"},
		{name: "spaces", state: "abc__a b", nonce: " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			u, err := url.Parse(p.SignInURL("chal=lenge", tt.state, tt.nonce))
			require.NoError(err)
			assert.Empty(u.Fragment)
			q := u.Query()
			assert.Equal(tt.state, q.Get("state"))
			assert.Equal(tt.nonce, q.Get("nonce"))
			assert.Equal("chal=lenge", q.Get("code_challenge"))
			assert.Equal(S256, q.Get("code_challenge_method"))
			assert.Empty(q.Get("sort"))
			assert.Empty(q.Get("page"))
		})
	}
}

func TestProvider_LogoutURL(t *testing.T) {
	t.Parallel()
	p, err := NewProvider(testNewConfig(t))
	require.NoError(t, err)
	assert.Equal(t,
		testDomain+"/logout?client_id="+testClientId+"&logout_uri=http%3A//localhost%3A5000/postlogout",
		p.LogoutURL(),
	)
}

func TestProvider_ExchangeCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		configOpt  []Option
		resp       *TransportResponse
		respErr    error
		wantAccess AccessToken
		wantIs     []error
		wantMsg    string
	}{
		{
			name:       "confidential-client",
			resp:       testJSONResponse(http.StatusOK, `{"access_token":"test_access_token","id_token":"test_id_token","refresh_token":"test_refresh_token","token_type":"Bearer","expires_in":3600}`),
			wantAccess: "test_access_token",
		},
		{
			name:       "public-client",
			configOpt:  []Option{WithClientSecret("")},
			resp:       testJSONResponse(http.StatusOK, `{"access_token":"test_access_token"}`),
			wantAccess: "test_access_token",
		},
		{
			name:    "transport-error",
			respErr: errors.New("404"),
			wantIs:  []error{ErrProtocol},
		},
		{
			name:    "not-json",
			resp:    testJSONResponse(http.StatusBadGateway, `<html>bad gateway</html>`),
			wantIs:  []error{ErrProtocol},
			wantMsg: "502",
		},
		{
			name:    "error-code",
			resp:    testJSONResponse(http.StatusOK, `{"error":"some error code"}`),
			wantIs:  []error{ErrProtocol},
			wantMsg: "some error code",
		},
		{
			name:    "error-code-and-description",
			resp:    testJSONResponse(http.StatusBadRequest, `{"error":"invalid_grant","error_description":"code expired"}`),
			wantIs:  []error{ErrProtocol},
			wantMsg: "invalid_grant - code expired",
		},
		{
			name:   "missing-access-token",
			resp:   testJSONResponse(http.StatusOK, `{"id_token":"test_id_token"}`),
			wantIs: []error{ErrProtocol, ErrMissingAccessToken},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c := testNewConfig(t, tt.configOpt...)
			tr := &testTransport{resp: tt.resp, err: tt.respErr}
			p, err := NewProvider(c, WithTransport(tr))
			require.NoError(err)

			got, err := p.ExchangeCode(context.Background(), "test_code", "asdf")
			req := tr.lastRequest()
			assert.Equal(c.TokenEndpoint(), req.endpoint)
			assert.Equal("authorization_code", req.form.Get("grant_type"))
			assert.Equal(testClientId, req.form.Get("client_id"))
			assert.Equal(testRedirectUrl, req.form.Get("redirect_uri"))
			assert.Equal("test_code", req.form.Get("code"))
			assert.Equal("asdf", req.form.Get("code_verifier"))
			if c.publicClient() {
				assert.Nil(req.auth)
			} else {
				require.NotNil(req.auth)
				assert.Equal(testClientId, req.auth.Username)
				assert.Equal(ClientSecret(testSecret), req.auth.Password)
			}

			if len(tt.wantIs) > 0 {
				require.Error(err)
				assert.Nil(got)
				for _, e := range tt.wantIs {
					assert.ErrorIs(err, e)
				}
				if tt.wantMsg != "" {
					assert.Contains(err.Error(), tt.wantMsg)
				}
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantAccess, got.AccessToken)
		})
	}

	t.Run("provider-error-type", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tr := &testTransport{resp: testJSONResponse(http.StatusBadRequest, `{"error":"invalid_grant","error_description":"code expired"}`)}
		p, err := NewProvider(testNewConfig(t), WithTransport(tr))
		require.NoError(err)
		_, err = p.ExchangeCode(context.Background(), "test_code", "asdf")
		var pe *ProviderError
		require.ErrorAs(err, &pe)
		assert.Equal("invalid_grant", pe.Code)
		assert.Equal("code expired", pe.Description)
	})
}

func TestProvider_ExchangeRefreshToken(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tr := &testTransport{resp: testJSONResponse(http.StatusOK, `{"access_token":"new_access","id_token":"new_id","token_type":"Bearer","expires_in":3600}`)}
	p, err := NewProvider(testNewConfig(t), WithTransport(tr))
	require.NoError(err)

	got, err := p.ExchangeRefreshToken(context.Background(), "test_refresh_token")
	require.NoError(err)
	assert.Equal(AccessToken("new_access"), got.AccessToken)
	assert.Equal(IdToken("new_id"), got.IdToken)
	assert.Empty(got.RefreshToken)

	req := tr.lastRequest()
	assert.Equal("refresh_token", req.form.Get("grant_type"))
	assert.Equal(testClientId, req.form.Get("client_id"))
	assert.Equal("test_refresh_token", req.form.Get("refresh_token"))

	_, err = p.ExchangeRefreshToken(context.Background(), "")
	require.Error(err)
	assert.ErrorIs(err, ErrInvalidParameter)
}

func TestProvider_RevokeRefreshToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		resp    *TransportResponse
		respErr error
		token   RefreshToken
		wantIs  error
	}{
		{name: "empty-body", resp: testJSONResponse(http.StatusOK, ``), token: "rt"},
		{name: "non-json-error-status", resp: testJSONResponse(http.StatusBadRequest, `bad request`), token: "rt"},
		{name: "json-without-error", resp: testJSONResponse(http.StatusOK, `{}`), token: "rt"},
		{name: "json-error", resp: testJSONResponse(http.StatusBadRequest, `{"error":"unsupported_token_type"}`), token: "rt", wantIs: ErrProtocol},
		{name: "transport-error", respErr: errors.New("unreachable"), token: "rt", wantIs: ErrProtocol},
		{name: "empty-token", token: "", wantIs: ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c := testNewConfig(t)
			tr := &testTransport{resp: tt.resp, err: tt.respErr}
			p, err := NewProvider(c, WithTransport(tr))
			require.NoError(err)

			err = p.RevokeRefreshToken(context.Background(), tt.token)
			if tt.wantIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIs)
			} else {
				require.NoError(err)
			}
			if tt.token == "" {
				assert.Empty(tr.requests)
				return
			}
			req := tr.lastRequest()
			assert.Equal(c.RevokeEndpoint(), req.endpoint)
			assert.Equal(string(tt.token), req.form.Get("token"))
			assert.Equal(testClientId, req.form.Get("client_id"))
			assert.NotNil(req.auth)
		})
	}
}

func TestProvider_withTestProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t, 0)
	tp.SetClientCreds("test-client", "test-secret")

	authReq, err := NewAuthorizationRequest("")
	require.NoError(t, err)
	tp.SetExpectedAuthCode("valid-code", authReq.CodeChallenge)
	tp.SetExpectedAuthNonce(authReq.Nonce)

	p, err := NewProvider(tp.Config("https://app.example.com/callback"))
	require.NoError(t, err)

	t.Run("exchange-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := p.ExchangeCode(ctx, "valid-code", authReq.CodeVerifier)
		require.NoError(err)
		assert.NotEmpty(got.AccessToken)
		assert.NotEmpty(got.IdToken)
		assert.Equal(RefreshToken("test-refresh-token"), got.RefreshToken)
		assert.Equal("Bearer", got.TokenType)
		assert.Equal(3600, got.ExpiresIn)
		assert.Contains(tp.LastTokenAuthorization(), "Basic ")
	})
	t.Run("wrong-verifier", func(t *testing.T) {
		_, err := p.ExchangeCode(ctx, "valid-code", "not-the-verifier-not-the-verifier-not-the-verifier")
		require.Error(t, err)
		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "invalid_grant", pe.Code)
	})
	t.Run("wrong-code", func(t *testing.T) {
		_, err := p.ExchangeCode(ctx, "invalid-code", authReq.CodeVerifier)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
	})
	t.Run("user-info", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		claims, err := p.UserInfo(ctx, tp.AccessToken(nil))
		require.NoError(err)
		assert.Equal("alice@example.com", claims["email"])
		assert.Equal("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", claims.Subject())

		_, err = p.UserInfo(ctx, "")
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}

func TestProvider_refreshAndRevokeWithTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := StartTestProvider(t, 0)
	tp.SetClientCreds("public-client", "")

	p, err := NewProvider(tp.Config("https://app.example.com/callback"))
	require.NoError(err)

	got, err := p.ExchangeRefreshToken(ctx, "test-refresh-token")
	require.NoError(err)
	assert.NotEmpty(got.AccessToken)
	assert.Empty(got.RefreshToken)
	assert.Empty(tp.LastTokenAuthorization())

	require.NoError(p.RevokeRefreshToken(ctx, "test-refresh-token"))
	assert.Equal([]string{"test-refresh-token"}, tp.RevokedTokens())

	_, err = p.ExchangeRefreshToken(ctx, "test-refresh-token")
	require.Error(err)
	assert.ErrorIs(err, ErrProtocol)
}

func TestProvider_UserInfoFailure(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t, 0)
	tp.DisableUserInfo()
	p, err := NewProvider(tp.Config("https://app.example.com/callback"))
	require.NoError(t, err)

	_, err = p.UserInfo(context.Background(), tp.AccessToken(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserInfoFailed)
}
