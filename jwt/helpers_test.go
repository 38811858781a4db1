package jwt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/require"
)

const (
	wellKnownJWKS = "/.well-known/jwks.json"
	testKeyID     = "test-key"
	testIssuer    = "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_c7O90SNDF"
)

// testJWKSServer serves a JSON Web Key Set that tests can replace at any
// time, and counts the number of fetches.
type testJWKSServer struct {
	*httptest.Server

	mu      sync.Mutex
	keys    []jose.JSONWebKey
	status  int
	body    string
	fetches atomic.Int32
}

func startTestJWKSServer(t *testing.T, keys ...jose.JSONWebKey) *testJWKSServer {
	t.Helper()
	s := &testJWKSServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wellKnownJWKS {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.fetches.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		if s.body != "" {
			_, _ = w.Write([]byte(s.body))
			return
		}
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: s.keys})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testJWKSServer) jwksURL() string { return s.URL + wellKnownJWKS }

func (s *testJWKSServer) setKeys(keys ...jose.JSONWebKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func (s *testJWKSServer) setResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

func testGenerateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

// testJWK returns the public JWK for priv, published with the given kid and
// alg. An empty alg leaves the JWK's alg unset.
func testJWK(priv crypto.Signer, kid string, alg Alg) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       priv.Public(),
		KeyID:     kid,
		Algorithm: string(alg),
		Use:       "sig",
	}
}

// testSignJWT signs claims with key using alg, setting the kid header when
// keyID isn't empty.
func testSignJWT(t *testing.T, key interface{}, alg Alg, claims interface{}, keyID string) string {
	t.Helper()
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if keyID != "" {
		opts = opts.WithHeader(jose.HeaderKey("kid"), keyID)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key}, opts)
	require.NoError(t, err)

	raw, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	require.NoError(t, err)
	return raw
}

func testJWTClaims(t *testing.T, now time.Time) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"iss":       testIssuer,
		"sub":       "alice",
		"aud":       "client-id",
		"client_id": "client-id",
		"iat":       float64(now.Unix()),
		"exp":       float64(now.Add(time.Hour).Unix()),
	}
}
