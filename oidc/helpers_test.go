package oidc

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testRegion      = "eu-west-1"
	testUserPoolId  = "eu-west-1_c7O90SNDF"
	testDomain      = "https://webapp-test.auth.eu-west-1.amazoncognito.com"
	testClientId    = "4lln66726pp3f4gi1krj0sta9h"
	testSecret      = "secure-client-secret"
	testRedirectUrl = "http://localhost:5000/postlogin"
	testLogoutUrl   = "http://localhost:5000/postlogout"
)

// testNewConfig returns the config of the user pool used throughout the
// tests.
func testNewConfig(t *testing.T, opt ...Option) *Config {
	t.Helper()
	opts := append([]Option{
		WithClientSecret(testSecret),
		WithLogoutRedirectUrl(testLogoutUrl),
	}, opt...)
	c, err := NewConfig(testRegion, testUserPoolId, testDomain, testClientId, testRedirectUrl, opts...)
	require.NoError(t, err)
	return c
}

// testTransport is a Transport which replies with a canned response and
// records the requests it receives.
type testTransport struct {
	mu       sync.Mutex
	resp     *TransportResponse
	err      error
	requests []testTransportRequest
}

type testTransportRequest struct {
	endpoint string
	form     url.Values
	auth     *BasicAuth
}

func (tt *testTransport) PostForm(_ context.Context, endpoint string, form url.Values, auth *BasicAuth) (*TransportResponse, error) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.requests = append(tt.requests, testTransportRequest{endpoint: endpoint, form: form, auth: auth})
	if tt.err != nil {
		return nil, tt.err
	}
	return tt.resp, nil
}

func (tt *testTransport) lastRequest() testTransportRequest {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.requests[len(tt.requests)-1]
}

func testJSONResponse(status int, body string) *TransportResponse {
	return &TransportResponse{StatusCode: status, Body: []byte(body)}
}
