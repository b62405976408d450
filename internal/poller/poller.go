// Package poller drives the poll-diff-notify cycle: on every tick it
// takes the run lock, fetches each monitored account's live sessions,
// diffs them against the persisted snapshot, fans out notifications
// for started sessions, records lifecycle transitions, and writes the
// new snapshot back.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spacewatch/backend/internal/notify"
	"github.com/spacewatch/backend/internal/provider"
	"github.com/spacewatch/backend/internal/runlock"
	"github.com/spacewatch/backend/internal/session"
)

// SnapshotStore persists the last observed session list per account.
type SnapshotStore interface {
	Get(account string) ([]session.Session, bool, error)
	Set(account string, sessions []session.Session) error
}

// Lock is the cycle-level mutual exclusion guard. Acquire returns
// runlock.ErrLocked when another cycle holds it.
type Lock interface {
	Acquire() error
	Release() error
}

// Recorder persists session lifecycle transitions. Errors are already
// logged by the implementation; the poller treats them as non-fatal.
type Recorder interface {
	RecordStart(ctx context.Context, account string, sess session.Session) error
	RecordEnd(ctx context.Context, account string, sess session.Session) error
}

// Dispatcher fans a started-session notification out to the account's
// destinations.
type Dispatcher interface {
	Notify(ctx context.Context, user provider.User, sess session.Session) (notify.Result, error)
}

// Deps are the collaborators a Poller drives. All of them are
// constructed once at startup and injected; the poller holds no global
// state beyond what they persist.
type Deps struct {
	Provider   provider.Provider
	Snapshots  SnapshotStore
	Lock       Lock
	Recorder   Recorder
	Dispatcher Dispatcher
	Events     EventSink // optional; nil disables event publishing
}

type Poller struct {
	accounts []string
	interval time.Duration
	deps     Deps
	status   *StatusStore
	logger   *zap.SugaredLogger
}

func New(accounts []string, interval time.Duration, deps Deps, status *StatusStore, logger *zap.SugaredLogger) *Poller {
	return &Poller{
		accounts: accounts,
		interval: interval,
		deps:     deps,
		status:   status,
		logger:   logger.Named("poller"),
	}
}

// Status exposes the per-account status store for API handlers.
func (p *Poller) Status() *StatusStore {
	return p.status
}

// Start runs an initial cycle immediately, then one per interval until
// the context is cancelled. A tick that fires while a previous cycle
// is still draining is skipped via the run lock, not queued.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Infow("poller started", "interval", p.interval, "accounts", p.accounts)

	if err := p.RunCycle(ctx); err != nil {
		p.logger.Errorw("cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			if err := p.RunCycle(ctx); err != nil {
				p.logger.Errorw("cycle failed", "error", err)
			}
		}
	}
}

// RunCycle executes one poll cycle. Lock contention is not an error:
// the cycle is skipped and the next tick retries. Accounts are
// processed concurrently and settle independently; a failure in one
// never stops the others. The lock is released on every exit path.
func (p *Poller) RunCycle(ctx context.Context) error {
	start := time.Now()

	if err := p.deps.Lock.Acquire(); err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			p.logger.Infow("cycle skipped: run lock held by another cycle")
			p.publish(Event{Type: EventCycleSkipped, Time: start})
			return nil
		}
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := p.deps.Lock.Release(); err != nil {
			p.logger.Errorw("failed to release run lock", "error", err)
		}
	}()

	p.logger.Infow("cycle started", "accounts", len(p.accounts))
	p.publish(Event{Type: EventCycleStarted, Time: start})

	var wg sync.WaitGroup
	for _, account := range p.accounts {
		wg.Add(1)
		go func(account string) {
			defer wg.Done()
			p.pollAccount(ctx, account)
		}(account)
	}
	wg.Wait()

	elapsed := time.Since(start)
	p.logger.Infow("cycle completed", "duration", elapsed)
	p.publish(Event{Type: EventCycleCompleted, Time: time.Now(), DurationMS: elapsed.Milliseconds()})
	return nil
}

// pollAccount runs the full pipeline for one account. Failures are
// contained here: the account's snapshot is only written when the
// pipeline reached the end, so a failed account re-diffs against the
// same baseline on the next cycle.
func (p *Poller) pollAccount(ctx context.Context, account string) {
	status := AccountStatus{Account: account, PolledAt: time.Now()}

	user, err := p.deps.Provider.ResolveUser(ctx, account)
	if err != nil {
		p.failAccount(status, "resolve user", err)
		return
	}

	current, err := p.deps.Provider.LiveSessions(ctx, user.ID)
	if err != nil {
		p.failAccount(status, "fetch live sessions", err)
		return
	}

	previous, _, err := p.deps.Snapshots.Get(account)
	if err != nil {
		p.failAccount(status, "load snapshot", err)
		return
	}

	diff := session.Diff(previous, current)
	p.logger.Infow("diff computed",
		"account", account, "live", len(current),
		"created", len(diff.Created), "removed", len(diff.Removed))

	status.LiveCount = len(current)
	status.Created = len(diff.Created)
	status.Removed = len(diff.Removed)

	// Notification fan-out and lifecycle writes for the same session
	// run concurrently and settle independently: neither blocks or
	// undoes the other, and none of them block the other sessions.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, sess := range diff.Created {
		wg.Add(2)
		go func(sess session.Session) {
			defer wg.Done()
			res, err := p.deps.Dispatcher.Notify(ctx, user, sess)
			if err != nil {
				p.logger.Errorw("fan-out aborted", "account", account, "sessionId", sess.ID, "error", err)
			}
			mu.Lock()
			status.Dispatched.Attempted += res.Attempted
			status.Dispatched.Succeeded += res.Succeeded
			status.Dispatched.Failed += res.Failed
			mu.Unlock()
		}(sess)
		go func(sess session.Session) {
			defer wg.Done()
			// Conflicts are logged by the recorder and non-fatal.
			_ = p.deps.Recorder.RecordStart(ctx, account, sess)
		}(sess)
	}
	for _, sess := range diff.Removed {
		wg.Add(1)
		go func(sess session.Session) {
			defer wg.Done()
			_ = p.deps.Recorder.RecordEnd(ctx, account, sess)
		}(sess)
	}
	wg.Wait()

	// The snapshot write happens only after this account's dispatch
	// settled. On failure the previous snapshot stays in place and the
	// next cycle re-detects the same created/removed sets.
	if err := p.deps.Snapshots.Set(account, current); err != nil {
		p.failAccount(status, "persist snapshot", err)
		return
	}

	p.status.Update(status)
	p.publish(Event{Type: EventAccountPolled, Time: time.Now(), Account: account, Status: &status})
	p.logger.Infow("account completed", "account", account)
}

// failAccount records and reports a per-account failure. Other
// accounts are unaffected; the snapshot for this account is untouched.
func (p *Poller) failAccount(status AccountStatus, op string, err error) {
	p.logger.Errorw("account failed", "account", status.Account, "op", op, "error", err)
	status.LastError = fmt.Sprintf("%s: %v", op, err)
	p.status.Update(status)
	p.publish(Event{Type: EventAccountPolled, Time: time.Now(), Account: status.Account, Status: &status})
}

func (p *Poller) publish(ev Event) {
	if p.deps.Events == nil {
		return
	}
	p.deps.Events.Publish(ev)
}
