// Package provider talks to the external session provider: given a
// monitored account it returns the set of live sessions the account is
// currently hosting.
package provider

import (
	"context"
	"errors"

	"github.com/spacewatch/backend/internal/session"
)

// ErrUnavailable wraps transient provider failures (network errors,
// 5xx responses, rate limiting). Callers isolate these per account:
// one account's provider failure must not stop the others.
var ErrUnavailable = errors.New("provider unavailable")

// User is the provider-side profile of a monitored account.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Provider resolves account names to provider users and lists the live
// sessions a user is currently hosting.
//
// Implementations must be safe for concurrent use: the poll
// orchestrator fans accounts out on separate goroutines.
type Provider interface {
	// ResolveUser looks up the provider user for an account name.
	ResolveUser(ctx context.Context, username string) (User, error)

	// LiveSessions returns the sessions the given user is currently
	// hosting. A user with no live sessions yields an empty slice,
	// not an error.
	LiveSessions(ctx context.Context, userID string) ([]session.Session, error)
}
