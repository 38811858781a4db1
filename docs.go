// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// cap (collection of authentication packages) for Cognito provides the
// packages a web application needs to log its users in with an Amazon Cognito
// user pool, using the OAuth2 authorization code flow with PKCE, and to
// authorize their requests with the resulting access tokens.
//
// The oidc package configures the user pool and talks to its hosted UI, the
// jwt package verifies tokens against the user pool's JWKS, and the auth
// package runs the login, callback, refresh and logout flows over net/http.
//
// See README.md
package cap
