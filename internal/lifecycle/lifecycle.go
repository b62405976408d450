// Package lifecycle records when sessions start and end. One record is
// created per session id the first time the session is observed live,
// and patched with an end time when the session disappears.
package lifecycle

import (
	"context"
	"errors"
	"time"
)

// ErrExists is returned by Store.Create when a record for the session
// id already exists. Given the diff invariant this should not happen
// within one snapshot lineage; when it does it is logged and the cycle
// continues.
var ErrExists = errors.New("lifecycle record already exists")

// ErrNotFound is returned by Store.SetEnded when there is no open
// record for the session id, e.g. when the creation record was lost to
// an earlier transient failure.
var ErrNotFound = errors.New("lifecycle record not found")

// Record is the persisted start/end entry for one session.
type Record struct {
	SessionID string     `json:"sessionId"`
	Account   string     `json:"account"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Store persists lifecycle records. Create fails with ErrExists on a
// duplicate session id; SetEnded fails with ErrNotFound when no open
// record exists. The end time is set at most once.
type Store interface {
	Create(ctx context.Context, rec Record) error
	SetEnded(ctx context.Context, sessionID string, endedAt time.Time) error
	Get(ctx context.Context, sessionID string) (Record, error)
}
