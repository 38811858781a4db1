// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/hashicorp/cap-cognito/oidc"
)

// SuccessResponseFunc is used by CallbackHandler and RefreshHandler to
// create a http response once tokens have been verified, stored in the
// session and written as cookies.
//
// The function should use the http.ResponseWriter to send back whatever
// content (headers, html, JSON, redirect, etc) it wishes. The cookies are
// already set, so it must not replace the response's headers.
type SuccessResponseFunc func(r *Result, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by the handlers and Require to create a http
// response when a flow or an authorization check fails.
//
// The function should use errors.Is on e to tell failures apart: for
// example, ErrAuthorizationRequired is usually answered with a redirect to
// the login handler.
type ErrorResponseFunc func(e error, w http.ResponseWriter, req *http.Request)

// DefaultSuccessResponse replies 200 with a short text body.
func DefaultSuccessResponse(_ *Result, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("authenticated\n"))
}

// DefaultErrorResponse replies with StatusCode(e) and a body which names
// the kind of failure, never its cause.
func DefaultErrorResponse(e error, w http.ResponseWriter, _ *http.Request) {
	status := StatusCode(e)
	var msg string
	switch {
	case errors.Is(e, ErrGroupMembership):
		msg = ErrGroupMembership.Error()
	case errors.Is(e, ErrAuthorizationRequired), errors.Is(e, oidc.ErrTokenVerify):
		msg = ErrAuthorizationRequired.Error()
	default:
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
}

// StatusCode returns the http status for an error of this package: 403 for
// authorization and group membership failures and failed token
// verifications, 400 for protocol failures and missing session data, 500
// otherwise.
func StatusCode(e error) int {
	switch {
	case errors.Is(e, ErrAuthorizationRequired),
		errors.Is(e, ErrGroupMembership),
		errors.Is(e, oidc.ErrTokenVerify):
		return http.StatusForbidden
	case errors.Is(e, ErrSessionDataMissing),
		errors.Is(e, ErrMissingRefreshToken),
		errors.Is(e, oidc.ErrDecryption),
		errors.Is(e, oidc.ErrProtocol):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// LoginHandler creates a handler which starts a login and redirects to the
// provider's sign in page.
//
// Supported options: WithCustomState, WithSignInOptions, WithErrorResponse
func LoginHandler(a *Authenticator, sm SessionManager, opt ...Option) http.HandlerFunc {
	opts := getHandlerOpts(opt...)
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := sm.Load(req)
		if err != nil {
			opts.withError(err, w, req)
			return
		}
		customState, _ := s.Get(SessionState)
		if _, pending := s.Get(SessionCodeVerifier); pending {
			// an unfinished login left its whole state behind
			customState = oidc.CustomState(customState)
		}
		if opts.withCustomState != nil {
			customState = opts.withCustomState(req)
		}
		signInURL, err := a.Login(req.Context(), s, customState, opts.withSignInOptions...)
		if err != nil {
			opts.withError(err, w, req)
			return
		}
		if err := sm.Save(w, req, s); err != nil {
			opts.withError(err, w, req)
			return
		}
		http.Redirect(w, req, signInURL, http.StatusFound)
	}
}

// CallbackHandler creates a handler for the redirect url, which completes a
// login.
//
// Supported options: WithSuccessResponse, WithErrorResponse
func CallbackHandler(a *Authenticator, sm SessionManager, opt ...Option) http.HandlerFunc {
	opts := getHandlerOpts(opt...)
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := sm.Load(req)
		if err != nil {
			opts.withError(err, w, req)
			return
		}
		r, err := a.Callback(req.Context(), s, req.URL.Query(), NewHTTPCookies(w, req))
		if err != nil {
			a.logger.Debug("callback failed", "error", err)
			opts.withError(err, w, req)
			return
		}
		if err := sm.Save(w, req, s); err != nil {
			opts.withError(err, w, req)
			return
		}
		opts.withSuccess(r, w, req)
	}
}

// RefreshHandler creates a handler which refreshes the user's tokens.
//
// Supported options: WithSuccessResponse, WithErrorResponse
func RefreshHandler(a *Authenticator, sm SessionManager, opt ...Option) http.HandlerFunc {
	opts := getHandlerOpts(opt...)
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := sm.Load(req)
		if err != nil {
			opts.withError(err, w, req)
			return
		}
		r, err := a.Refresh(req.Context(), s, NewHTTPCookies(w, req))
		if err != nil {
			a.logger.Debug("refresh failed", "error", err)
			opts.withError(err, w, req)
			return
		}
		if err := sm.Save(w, req, s); err != nil {
			opts.withError(err, w, req)
			return
		}
		opts.withSuccess(r, w, req)
	}
}

// LogoutHandler creates a handler which logs the user out, removes the
// claims from the session and redirects to the provider's logout page.
//
// Supported options: WithErrorResponse
func LogoutHandler(a *Authenticator, sm SessionManager, opt ...Option) http.HandlerFunc {
	opts := getHandlerOpts(opt...)
	return func(w http.ResponseWriter, req *http.Request) {
		logoutURL, err := a.Logout(req.Context(), NewHTTPCookies(w, req))
		if err != nil {
			opts.withError(err, w, req)
			return
		}
		if s, err := sm.Load(req); err == nil {
			s.Delete(SessionClaims)
			s.Delete(SessionUserInfo)
			if err := sm.Save(w, req, s); err != nil {
				a.logger.Warn("unable to save session on logout", "error", err)
			}
		}
		http.Redirect(w, req, logoutURL, http.StatusFound)
	}
}

type claimsKey struct{}

// Require creates a middleware which only lets requests meeting req through
// to the next handler, which can read the verified claims with
// ClaimsFromContext. Other requests get the error response, a 403 by default.
//
// Supported options: WithErrorResponse
func Require(a *Authenticator, req Requirement, opt ...Option) func(http.Handler) http.Handler {
	opts := getHandlerOpts(opt...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.Authorize(r.Context(), NewHTTPCookies(w, r), req)
			if err != nil {
				a.logger.Debug("request not authorized", "path", r.URL.Path, "error", err)
				opts.withError(err, w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// ClaimsFromContext returns the claims verified by Require. They're nil when
// authorization is disabled.
func ClaimsFromContext(ctx context.Context) (oidc.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(oidc.Claims)
	return c, ok
}
