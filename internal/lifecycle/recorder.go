package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spacewatch/backend/internal/session"
)

// Recorder writes lifecycle records for detected session transitions.
// Store conflicts are logged and reported to the caller but are never
// fatal: a failed lifecycle write must not block notification delivery
// or the snapshot update for the same cycle.
type Recorder struct {
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRecorder(store Store, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.Named("lifecycle"),
		now:    time.Now,
	}
}

// RecordStart creates the record for a newly detected session.
func (r *Recorder) RecordStart(ctx context.Context, account string, sess session.Session) error {
	err := r.store.Create(ctx, Record{
		SessionID: sess.ID,
		Account:   account,
		StartedAt: r.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			r.logger.Warnw("session already recorded", "account", account, "sessionId", sess.ID)
		} else {
			r.logger.Errorw("failed to record session start", "account", account, "sessionId", sess.ID, "error", err)
		}
		return err
	}
	r.logger.Infow("recorded session start", "account", account, "sessionId", sess.ID)
	return nil
}

// RecordEnd patches the end time of a session that disappeared. A
// missing record (e.g. its creation was lost to an earlier transient
// failure) is logged and not retried within the cycle.
func (r *Recorder) RecordEnd(ctx context.Context, account string, sess session.Session) error {
	err := r.store.SetEnded(ctx, sess.ID, r.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Warnw("no open record for ended session", "account", account, "sessionId", sess.ID)
		} else {
			r.logger.Errorw("failed to record session end", "account", account, "sessionId", sess.ID, "error", err)
		}
		return err
	}
	r.logger.Infow("recorded session end", "account", account, "sessionId", sess.ID)
	return nil
}
