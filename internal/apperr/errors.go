// Package apperr holds the error taxonomy shared by the realtime core.
//
// Callers classify failures with errors.Is and decide locally how to
// surface them: socket handlers turn everything into an error event for
// the originating connection, REST handlers map to HTTP statuses.
package apperr

import "errors"

var (
	// ErrAuth means the credential was missing, malformed or expired.
	// The connection is closed; no room joins happen.
	ErrAuth = errors.New("authentication failed")

	// ErrPermission means the caller is not allowed to perform the
	// action (e.g. editing someone else's message). Reported only to
	// the originator; the group never sees it.
	ErrPermission = errors.New("permission denied")

	// ErrValidation means the input was rejected before any state
	// mutation or broadcast (empty message body, malformed id).
	ErrValidation = errors.New("invalid input")

	// ErrNotFound covers unknown groups, messages and notifications.
	// Cross-user mutations also report not-found so callers cannot
	// probe for existence.
	ErrNotFound = errors.New("not found")
)
