package auth

import (
	"errors"
	"fmt"

	"github.com/hashicorp/cap-cognito/oidc"
)

var (
	// ErrSessionDataMissing is returned by a callback when the session holds
	// no pending login, usually because the session expired in between.
	ErrSessionDataMissing = errors.New("session data missing or expired")

	// ErrStateMismatch is returned by a callback when the returned state
	// isn't the one sent. It is an oidc.ErrProtocol.
	ErrStateMismatch = fmt.Errorf("state mismatch: %w", oidc.ErrProtocol)

	// ErrRefreshDisabled is returned by Refresh when the refresh flow isn't
	// enabled. It is an oidc.ErrConfiguration.
	ErrRefreshDisabled = fmt.Errorf("refresh flow is disabled: %w", oidc.ErrConfiguration)

	ErrMissingRefreshToken = errors.New("refresh token is missing")

	// ErrAuthorizationRequired is returned by Authorize for a missing or
	// invalid access token. The cause is wrapped for logging, callers should
	// only act on this error.
	ErrAuthorizationRequired = errors.New("authorization required")

	// ErrGroupMembership is returned by Authorize when the user isn't in the
	// required groups.
	ErrGroupMembership = errors.New("group membership required")

	// ErrMissingGroupsClaim is returned by Authorize when a verified token
	// has no groups claim at all. It is an ErrGroupMembership.
	ErrMissingGroupsClaim = fmt.Errorf("groups claim is missing: %w", ErrGroupMembership)

	// ErrSessionTooLarge is returned when a session doesn't fit in a cookie.
	ErrSessionTooLarge = errors.New("session too large for a cookie")
)
