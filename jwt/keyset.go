package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	gojwt "github.com/golang-jwt/jwt/v5"
	sdkHttp "github.com/hashicorp/cap-cognito/sdk/http"
)

// maxKeySetSize bounds the JWKS response body read from a remote endpoint.
const maxKeySetSize = 1 << 20

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local or remote keys.
type KeySet interface {

	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	// Only tokens signed with one of algs are accepted, or with any supported
	// algorithm when none are given.
	VerifySignature(ctx context.Context, token string, algs ...Alg) (claims map[string]interface{}, err error)
}

// JSONWebKeySet verifies JWT signatures using keys obtained from a JWKS URL.
// Keys are cached by key id after the first fetch. A lookup for a key id that
// isn't cached triggers at most one refetch of the set, and refetches are
// rate limited by the min refresh interval. It's safe for concurrent use.
type JSONWebKeySet struct {
	jwksURL            string
	client             *http.Client
	minRefreshInterval time.Duration
	now                func() time.Time

	mu         sync.RWMutex
	keys       map[string]jose.JSONWebKey
	generation uint64
	lastFetch  time.Time

	// refreshMu serializes fetches; cached lookups never wait on it.
	refreshMu sync.Mutex
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys
// from the JSON Web Key Set (JWKS) at the given jwksURL. The client used to
// obtain the remote JWKS will verify server certificates using the root
// certificates provided by jwksCAPEM. No request is made until a key is
// needed.
//
// Supported options: WithHTTPClient, WithTimeout, WithMinRefreshInterval and
// WithNow.
func NewJSONWebKeySet(jwksURL string, jwksCAPEM string, opt ...Option) (*JSONWebKeySet, error) {
	const op = "jwt.NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwksURL must not be empty: %w", op, ErrInvalidParameter)
	}
	opts := getKeySetOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = sdkHttp.NewClient(jwksCAPEM, opts.withTimeout); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if opts.withMinRefreshInterval < 0 {
		return nil, fmt.Errorf("%s: min refresh interval must not be negative: %w", op, ErrInvalidParameter)
	}
	return &JSONWebKeySet{
		jwksURL:            jwksURL,
		client:             client,
		minRefreshInterval: opts.withMinRefreshInterval,
		now:                opts.withNowFunc,
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using JWKS keys, and returns
// the claims in its payload. The given JWT must be of the JWS compact serialization form.
func (ks *JSONWebKeySet) VerifySignature(ctx context.Context, token string, algs ...Alg) (map[string]interface{}, error) {
	const op = "JSONWebKeySet.VerifySignature"
	claims, err := verifySignature(token, algs, func(kid string, alg Alg) (interface{}, error) {
		jwk, err := ks.ResolveKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		if jwk.Algorithm != "" && jwk.Algorithm != string(alg) {
			return nil, fmt.Errorf("key %q is published for %s, token uses %s: %w", kid, jwk.Algorithm, alg, ErrInvalidSignature)
		}
		key := publicKey(jwk)
		if !keyMatchesAlg(key, alg) {
			return nil, fmt.Errorf("key %q can't verify %s signatures: %w", kid, alg, ErrInvalidSignature)
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

// ResolveKey returns the signing key published with the given key id. When
// the id isn't cached the key set is refetched at most once before giving up
// with ErrKeyResolution.
func (ks *JSONWebKeySet) ResolveKey(ctx context.Context, kid string) (*jose.JSONWebKey, error) {
	const op = "JSONWebKeySet.ResolveKey"
	key, gen, ok := ks.cached(kid)
	if ok {
		return key, nil
	}
	if err := ks.refresh(ctx, gen); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if key, _, ok = ks.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%s: no key found for kid %q: %w", op, kid, ErrKeyResolution)
}

func (ks *JSONWebKeySet) cached(kid string) (*jose.JSONWebKey, uint64, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[kid]
	if !ok {
		return nil, ks.generation, false
	}
	return &key, ks.generation, true
}

// refresh fetches the key set unless another caller already replaced the
// generation seen by this caller, or the last fetch is too recent.
func (ks *JSONWebKeySet) refresh(ctx context.Context, seen uint64) error {
	ks.refreshMu.Lock()
	defer ks.refreshMu.Unlock()

	ks.mu.RLock()
	gen, last, fetched := ks.generation, ks.lastFetch, ks.keys != nil
	ks.mu.RUnlock()
	switch {
	case gen != seen:
		return nil
	case fetched && ks.now().Sub(last) < ks.minRefreshInterval:
		return nil
	}

	keys, err := ks.fetch(ctx)
	if err != nil {
		return err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys = keys
	ks.generation++
	ks.lastFetch = ks.now()
	return nil
}

func (ks *JSONWebKeySet) fetch(ctx context.Context) (map[string]jose.JSONWebKey, error) {
	const op = "JSONWebKeySet.fetch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w: %w", op, ErrKeyResolution, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to fetch keys: %w: %w", op, ErrKeyResolution, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read keys: %w: %w", op, ErrKeyResolution, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s: %s: %w", op, resp.Status, body, ErrKeyResolution)
	}
	var set jose.JSONWebKeySet
	if err := unmarshalResp(resp, body, &set); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrKeyResolution, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		keys[k.KeyID] = k
	}
	return keys, nil
}

// unmarshalResp JSON unmarshals the given body into the value pointed to by v.
// If it is unable to JSON unmarshal body into v, then it returns an appropriate
// error based on the Content-Type header of r.
func unmarshalResp(r *http.Response, body []byte, v interface{}) error {
	err := json.Unmarshal(body, &v)
	if err == nil {
		return nil
	}
	ct := r.Header.Get("Content-Type")
	mediaType, _, parseErr := mime.ParseMediaType(ct)
	if parseErr == nil && mediaType == "application/json" {
		return fmt.Errorf("got Content-Type = application/json, but could not unmarshal as JSON: %w", err)
	}
	return fmt.Errorf("expected Content-Type = application/json, got %q: %w", ct, err)
}

// StaticKeySet verifies JWT signatures using local PEM-encoded public keys.
type StaticKeySet struct {
	publicKeys []interface{}
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using PEM-encoded public keys.
// The given publicKeys must be of PEM-encoded x509 certificate or PKIX public key forms.
func NewStaticKeySet(publicKeys []string) (*StaticKeySet, error) {
	const op = "jwt.NewStaticKeySet"
	parsedPublicKeys := make([]interface{}, 0, len(publicKeys))
	for _, k := range publicKeys {
		key, err := ParsePublicKeyPEM([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		parsedPublicKeys = append(parsedPublicKeys, key)
	}
	return &StaticKeySet{
		publicKeys: parsedPublicKeys,
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using local PEM-encoded public keys,
// and returns the claims in its payload. The given JWT must be of the JWS compact serialization form.
func (ks *StaticKeySet) VerifySignature(_ context.Context, token string, algs ...Alg) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	var lastErr error
	for _, k := range ks.publicKeys {
		key := k
		claims, err := verifySignature(token, algs, func(_ string, alg Alg) (interface{}, error) {
			if !keyMatchesAlg(key, alg) {
				return nil, fmt.Errorf("key can't verify %s signatures: %w", alg, ErrKeyResolution)
			}
			return key, nil
		})
		switch {
		case err == nil:
			return claims, nil
		case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrEmptyToken), errors.Is(err, ErrUnsupportedAlg):
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if lastErr == nil || !errors.Is(err, ErrKeyResolution) {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no keys configured: %w", ErrKeyResolution)
	}
	return nil, fmt.Errorf("%s: no known key successfully validated the token signature: %w", op, lastErr)
}

// keyLookup returns the key for a token's kid and header alg.
type keyLookup func(kid string, alg Alg) (interface{}, error)

func verifySignature(token string, algs []Alg, lookup keyLookup) (map[string]interface{}, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	names := supportedAlgNames()
	if len(algs) > 0 {
		names = make([]string, 0, len(algs))
		for _, a := range algs {
			names = append(names, string(a))
		}
	}
	parser := gojwt.NewParser(
		gojwt.WithValidMethods(names),
		gojwt.WithoutClaimsValidation(),
	)
	claims := gojwt.MapClaims{}
	// the alg is checked against names before any key is looked up
	var lookedUp bool
	_, err := parser.ParseWithClaims(token, claims, func(t *gojwt.Token) (interface{}, error) {
		lookedUp = true
		kid, _ := t.Header["kid"].(string)
		return lookup(kid, Alg(t.Method.Alg()))
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, ErrKeyResolution):
		return nil, err
	case errors.Is(err, gojwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case !lookedUp && errors.Is(err, gojwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("token signed with an unexpected algorithm: %w: %w", ErrUnsupportedAlg, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
}

func publicKey(jwk *jose.JSONWebKey) interface{} {
	if jwk.IsPublic() {
		return jwk.Key
	}
	return jwk.Public().Key
}

// ParsePublicKeyPEM is used to parse RSA, ECDSA and Ed25519 public keys from
// PEMs. It returns a *rsa.PublicKey, *ecdsa.PublicKey or ed25519.PublicKey.
func ParsePublicKeyPEM(data []byte) (interface{}, error) {
	const op = "jwt.ParsePublicKeyPEM"
	block, _ := pem.Decode(data)
	if block != nil {
		var rawKey interface{}
		var err error
		if rawKey, err = x509.ParsePKIXPublicKey(block.Bytes); err != nil {
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				rawKey = cert.PublicKey
			} else {
				return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, err)
			}
		}

		switch k := rawKey.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
			return k, nil
		}
	}
	return nil, fmt.Errorf("%s: data does not contain any valid RSA, ECDSA or Ed25519 public keys: %w", op, ErrInvalidParameter)
}
