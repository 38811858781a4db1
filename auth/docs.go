// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
auth is a package for protecting a web application with a Cognito user pool.

An Authenticator drives the login, callback, refresh and logout flows, and
checks the access token cookie of every protected request. Sessions and
cookies are passed to each call through the SessionStore, CookieReader and
CookieWriter interfaces, so it can be used with any web framework.

For net/http applications the package provides LoginHandler,
CallbackHandler, RefreshHandler, LogoutHandler and the Require middleware,
along with two SessionManagers: MemorySessions, which keeps sessions on the
server, and CookieSessions, which keeps them encrypted in a cookie.

Both a failed authorization check (ErrAuthorizationRequired) and a failed
group check (ErrGroupMembership) are answered with a 403 by default.
*/
package auth
