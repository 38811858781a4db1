package oidc

import (
	"bytes"
	"crypto"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/hashicorp/cap-cognito/jwt"
	"github.com/stretchr/testify/require"
)

// TestProvider is a local server that stands in for a Cognito user pool and
// its hosted UI, which makes writing tests much easier. The issuer, the JWKS
// endpoint and the hosted UI endpoints are all served from Addr().
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	keyID   string
	pubKey  crypto.PublicKey
	privKey crypto.PrivateKey
	jwks    *jose.JSONWebKeySet

	mu                     sync.Mutex
	clientID               string
	clientSecret           string
	expectedAuthCode       string
	expectedCodeChallenge  string
	expectedAuthNonce      string
	refreshToken           string
	customClaims           map[string]interface{}
	customIdClaims         map[string]interface{}
	replyUserinfo          map[string]interface{}
	tokenError             *ProviderError
	omitRefreshToken       bool
	disableUserInfo        bool
	revoked                []string
	tokenRequests          int
	lastTokenAuthorization string
	now                    func() time.Time

	t *testing.T
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider. A zero port picks any
// free port.
func StartTestProvider(t *testing.T, port int) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:            t,
		keyID:        "test-key-1",
		clientID:     "test-client-id",
		refreshToken: "test-refresh-token",
		replyUserinfo: map[string]interface{}{
			"sub":            "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			"email":          "alice@example.com",
			"email_verified": "true",
			"username":       "alice",
		},
		now: time.Now,
	}
	p.pubKey, p.privKey = TestGenerateKeys(t)
	p.jwks = &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       p.pubKey,
				KeyID:     p.keyID,
				Algorithm: string(jwt.RS256),
				Use:       "sig",
			},
		},
	}

	p.httpServer = httptestNewUnstartedServerWithPort(t, p, port)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Addr returns the current base URL for the test provider's running webserver,
// which can be used as the issuer and hosted UI domain.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's signing key pair and its kid.
func (p *TestProvider) SigningKeys() (keyID string, pub crypto.PublicKey, priv crypto.PrivateKey) {
	return p.keyID, p.pubKey, p.privKey
}

// Config returns a Config for the test provider's app client, using
// redirectUrl. The provider's CA is trusted.
func (p *TestProvider) Config(redirectUrl string, opt ...Option) *Config {
	p.t.Helper()
	p.mu.Lock()
	clientID, clientSecret := p.clientID, p.clientSecret
	p.mu.Unlock()

	opts := []Option{
		WithIssuerUrl(p.Addr()),
		WithProviderCA(p.caCert),
		WithClientSecret(ClientSecret(clientSecret)),
	}
	c, err := NewConfig("us-east-1", "us-east-1_testpool", p.Addr(), clientID, redirectUrl, append(opts, opt...)...)
	require.NoError(p.t, err)
	return c
}

// SetClientCreds configures the app client. An empty secret makes it a
// public client.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code the token endpoint accepts
// and the code challenge its code verifier must match. An empty challenge
// disables the verifier check.
func (p *TestProvider) SetExpectedAuthCode(code, codeChallenge string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
	p.expectedCodeChallenge = codeChallenge
}

// SetExpectedAuthNonce configures the nonce put in issued id tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetRefreshToken configures the refresh token issued by, and accepted by,
// the token endpoint.
func (p *TestProvider) SetRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshToken = token
}

// SetCustomClaims merges claims into issued access tokens.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomIdClaims merges claims into issued id tokens.
func (p *TestProvider) SetCustomIdClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customIdClaims = customClaims
}

// SetTokenError makes the token endpoint reply with e.
func (p *TestProvider) SetTokenError(e *ProviderError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenError = e
}

// SetNow sets the clock used for the iat and exp of issued tokens.
func (p *TestProvider) SetNow(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// OmitRefreshTokens stops the token endpoint from issuing refresh tokens.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableUserInfo makes the userInfo endpoint reject every request.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// RevokedTokens returns the tokens received by the revoke endpoint.
func (p *TestProvider) RevokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// TokenRequests returns how many requests the token endpoint received.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// LastTokenAuthorization returns the Authorization header of the last token
// request.
func (p *TestProvider) LastTokenAuthorization() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTokenAuthorization
}

// AccessToken returns an access token signed by the test provider, with
// overrides merged into its claims. A nil override value removes the claim.
func (p *TestProvider) AccessToken(overrides map[string]interface{}) AccessToken {
	p.t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	return AccessToken(p.signAccessToken(overrides))
}

// IdToken returns an id token signed by the test provider, with overrides
// merged into its claims. A nil override value removes the claim.
func (p *TestProvider) IdToken(nonce string, overrides map[string]interface{}) IdToken {
	p.t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	return IdToken(p.signIdToken(nonce, overrides))
}

func (p *TestProvider) signAccessToken(overrides ...map[string]interface{}) string {
	claims := TestAccessTokenClaims(p.Addr(), p.clientID, p.now())
	return TestSignJWT(p.t, p.privKey, jwt.RS256, mergeClaims(claims, append([]map[string]interface{}{p.customClaims}, overrides...)...), p.keyID)
}

func (p *TestProvider) signIdToken(nonce string, overrides ...map[string]interface{}) string {
	claims := TestIdTokenClaims(p.Addr(), p.clientID, nonce, p.now())
	if nonce == "" {
		delete(claims, "nonce")
	}
	return TestSignJWT(p.t, p.privKey, jwt.RS256, mergeClaims(claims, append([]map[string]interface{}{p.customIdClaims}, overrides...)...), p.keyID)
}

func mergeClaims(claims map[string]interface{}, overrides ...map[string]interface{}) map[string]interface{} {
	for _, o := range overrides {
		for k, v := range o {
			if v == nil {
				delete(claims, k)
				continue
			}
			claims[k] = v
		}
	}
	return claims
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// validClient checks the client credentials of a token or revoke request.
func (p *TestProvider) validClient(req *http.Request) bool {
	user, pass, ok := req.BasicAuth()
	if p.clientSecret == "" {
		return !ok && req.FormValue("client_id") == p.clientID
	}
	return ok && user == p.clientID && pass == p.clientSecret
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/jwks.json":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := p.writeJSON(w, p.jwks); err != nil {
			return
		}

	case "/oauth2/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		redirectURI := qv.Get("redirect_uri") + "?state=" + url.QueryEscape(qv.Get("state"))
		switch {
		case qv.Get("response_type") != "code", qv.Get("client_id") != p.clientID:
			redirectURI += "&error=unauthorized_client"
		case p.expectedAuthCode == "":
			redirectURI += "&error=access_denied"
		default:
			redirectURI += "&code=" + url.QueryEscape(p.expectedAuthCode)
		}
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/oauth2/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenRequests++
		p.lastTokenAuthorization = req.Header.Get("Authorization")
		if p.tokenError != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, p.tokenError.Code, p.tokenError.Description)
			return
		}
		if !p.validClient(req) {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "")
			return
		}

		reply := struct {
			AccessToken  string `json:"access_token"`
			IdToken      string `json:"id_token,omitempty"`
			RefreshToken string `json:"refresh_token,omitempty"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int    `json:"expires_in"`
		}{
			TokenType: "Bearer",
			ExpiresIn: 3600,
		}
		switch req.FormValue("grant_type") {
		case "authorization_code":
			if p.expectedAuthCode == "" || req.FormValue("code") != p.expectedAuthCode {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "")
				return
			}
			if p.expectedCodeChallenge != "" && CodeChallenge(req.FormValue("code_verifier")) != p.expectedCodeChallenge {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code verifier mismatch")
				return
			}
			if !p.omitRefreshToken {
				reply.RefreshToken = p.refreshToken
			}
		case "refresh_token":
			if req.FormValue("refresh_token") != p.refreshToken || strings.Contains(strings.Join(p.revoked, " "), p.refreshToken) {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Invalid Refresh Token")
				return
			}
		default:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
			return
		}
		reply.AccessToken = p.signAccessToken()
		reply.IdToken = p.signIdToken(p.expectedAuthNonce)
		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/oauth2/revoke":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.validClient(req) {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_client", "")
			return
		}
		if token := req.FormValue("token"); token != "" {
			p.revoked = append(p.revoked, token)
		}
		// the hosted UI replies to a revocation with an empty body
		w.Header().Del("Content-Type")
		w.WriteHeader(http.StatusOK)

	case "/oauth2/userInfo":
		if req.Method != http.MethodGet && req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.disableUserInfo || !strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ") {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_token", "Access token is missing")
			return
		}
		if err := p.writeJSON(w, p.replyUserinfo); err != nil {
			return
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)

	if port == 0 {
		return httptest.NewUnstartedServer(handler)
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
