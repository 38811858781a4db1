package oidc

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// TokenResponse is the response of the provider's token endpoint. Every
// field is optional since error responses carry no tokens. The token fields
// redact themselves when printed or marshalled.
type TokenResponse struct {
	AccessToken      AccessToken
	IdToken          IdToken
	RefreshToken     RefreshToken
	TokenType        string
	ExpiresIn        int
	Error            string
	ErrorDescription string
}

// tokenResponseJSON is the wire format of a TokenResponse; the redacted
// types can't be used to decode it since they never marshal their value.
type tokenResponseJSON struct {
	AccessToken      string `json:"access_token"`
	IdToken          string `json:"id_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (r *tokenResponseJSON) tokenResponse() *TokenResponse {
	return &TokenResponse{
		AccessToken:      AccessToken(r.AccessToken),
		IdToken:          IdToken(r.IdToken),
		RefreshToken:     RefreshToken(r.RefreshToken),
		TokenType:        r.TokenType,
		ExpiresIn:        r.ExpiresIn,
		Error:            r.Error,
		ErrorDescription: r.ErrorDescription,
	}
}

// OAuth2Token converts the response into an *oauth2.Token with an expiry
// relative to now. The id token is available as the "id_token" extra.
func (r *TokenResponse) OAuth2Token(now time.Time) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  string(r.AccessToken),
		TokenType:    r.TokenType,
		RefreshToken: string(r.RefreshToken),
	}
	if r.ExpiresIn > 0 {
		t.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	if r.IdToken != "" {
		t = t.WithExtra(map[string]interface{}{"id_token": string(r.IdToken)})
	}
	return t
}
