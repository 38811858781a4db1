package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseSize bounds the body read from a provider response.
const maxResponseSize = 1 << 20

// BasicAuth holds the credentials of a confidential client.
type BasicAuth struct {
	Username string
	Password ClientSecret
}

// TransportResponse is the raw response to a form post.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport posts url encoded forms to the provider. Implementations must
// only send an Authorization header when auth is not nil, and must return an
// error only when no response was received.
type Transport interface {
	PostForm(ctx context.Context, endpoint string, form url.Values, auth *BasicAuth) (*TransportResponse, error)
}

// HTTPTransport is the Transport used by default, backed by an *http.Client.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a new HTTPTransport which sends requests with
// client.
func NewHTTPTransport(client *http.Client) (*HTTPTransport, error) {
	const op = "oidc.NewHTTPTransport"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	return &HTTPTransport{client: client}, nil
}

// PostForm implements Transport.
func (t *HTTPTransport) PostForm(ctx context.Context, endpoint string, form url.Values, auth *BasicAuth) (*TransportResponse, error) {
	const op = "HTTPTransport.PostForm"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if auth != nil {
		req.SetBasicAuth(auth.Username, string(auth.Password))
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response: %w", op, err)
	}
	return &TransportResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
