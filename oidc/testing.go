package oidc

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	capjwt "github.com/hashicorp/cap-cognito/jwt"
	"github.com/stretchr/testify/require"
)

// TestGenerateKeys will generate a test RSA 2048 pub/priv key pair, the key
// type Cognito signs its tokens with.
func TestGenerateKeys(t *testing.T) (crypto.PublicKey, crypto.PrivateKey) {
	t.Helper()
	require := require.New(t)
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	return priv.Public(), priv
}

// TestSignJWT will bundle the provided claims into a test signed JWT with the
// given kid header (when not empty).
func TestSignJWT(t *testing.T, key crypto.PrivateKey, alg capjwt.Alg, claims interface{}, keyID string) string {
	t.Helper()
	require := require.New(t)

	opts := (&jose.SignerOptions{}).WithType("JWT")
	if keyID != "" {
		opts = opts.WithHeader(jose.HeaderKey("kid"), keyID)
	}
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key},
		opts,
	)
	require.NoError(err)

	raw, err := jwt.Signed(sig).
		Claims(claims).
		CompactSerialize()
	require.NoError(err)
	return raw
}

// TestAccessTokenClaims returns the claims of a Cognito access token for
// clientId, issued now and expiring in an hour.
func TestAccessTokenClaims(issuer, clientId string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"sub":        "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		"iss":        issuer,
		"client_id":  clientId,
		"origin_jti": "bbbbbbbb-cccc-dddd-eeee-ffffffffffff",
		"event_id":   "cccccccc-dddd-eeee-ffff-000000000000",
		"token_use":  "access",
		"scope":      "openid email",
		"auth_time":  now.Unix(),
		"iat":        now.Unix(),
		"exp":        now.Add(time.Hour).Unix(),
		"jti":        "dddddddd-eeee-ffff-0000-111111111111",
		"username":   "alice",
	}
}

// TestIdTokenClaims returns the claims of a Cognito id token for clientId
// and nonce, issued now and expiring in an hour.
func TestIdTokenClaims(issuer, clientId, nonce string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"sub":              "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		"aud":              clientId,
		"email_verified":   true,
		"iss":              issuer,
		"cognito:username": "alice",
		"nonce":            nonce,
		"origin_jti":       "bbbbbbbb-cccc-dddd-eeee-ffffffffffff",
		"token_use":        "id",
		"auth_time":        now.Unix(),
		"iat":              now.Unix(),
		"exp":              now.Add(time.Hour).Unix(),
		"email":            "alice@example.com",
	}
}

// TestGenerateCA will generate a test x509 CA cert encoded in a PEM format.
func TestGenerateCA(t *testing.T, hosts []string) string {
	t.Helper()
	require := require.New(t)

	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(err)

	// ECDSA, ED25519 and RSA subject keys should have the DigitalSignature
	// KeyUsage bits set in the x509.Certificate template
	keyUsage := x509.KeyUsageDigitalSignature

	notBefore := time.Now()
	notAfter := notBefore.Add(2 * time.Minute)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	require.NoError(err)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Acme Co"},
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,

		KeyUsage:              keyUsage | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}))
}
