/*
oidc is a package for writing relying parties of an AWS Cognito user pool
using the OAuth2 authorization code flow with PKCE.

# Primary types provided by the package

* Config: provides the configuration of a user pool app client (region, user
pool id, hosted UI domain, client id/secret, redirect urls, scopes, cookie
settings, etc). Config values may be read from the environment or a YAML file.

* AuthorizationRequest: the one-time values (code verifier, code challenge,
state and nonce) of a single sign in attempt. The state may carry a custom
suffix which is handed back after the callback.

* Provider: builds hosted UI sign in and logout urls, exchanges authorization
codes and refresh tokens for tokens, revokes refresh tokens and reads user
info.

* Verifier: verifies access and id tokens against the user pool's signing
keys, which are fetched once and refreshed when an unknown key id appears.

* TokenCipher: authenticated encryption of tokens stored in cookies, keyed by
the application's secret key.

* Claims: the verified claims of a token.

The auth package builds the login, callback, refresh, authorization and logout
flows of a web application on top of these types.
*/
package oidc
