package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/ignite/tubefeed/internal/pkg/logger"
)

const (
	// DefaultRecoveryInterval is how often the recovery worker scans for
	// stuck jobs.
	DefaultRecoveryInterval = 2 * time.Minute

	// DefaultStaleAge is how long a job can sit in processing before its
	// worker is presumed dead.
	DefaultStaleAge = 10 * time.Minute
)

// RecoveryWorker reclaims jobs stuck in processing after a worker crash.
// Under the attempt cap they return to pending; at the cap they fail
// terminally. Safe because every handler is idempotent.
type RecoveryWorker struct {
	db       *sql.DB
	interval time.Duration
	staleAge time.Duration
}

// NewRecoveryWorker creates a recovery worker with default timing.
func NewRecoveryWorker(db *sql.DB) *RecoveryWorker {
	return &RecoveryWorker{
		db:       db,
		interval: DefaultRecoveryInterval,
		staleAge: DefaultStaleAge,
	}
}

// Start begins the recovery loop. It blocks until ctx is cancelled.
func (rw *RecoveryWorker) Start(ctx context.Context) {
	logger.Info("queue recovery starting", "interval", rw.interval.String(), "stale_age", rw.staleAge.String())

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("queue recovery stopping")
			return
		case <-ticker.C:
			rw.recoverStuckJobs(ctx)
		}
	}
}

func (rw *RecoveryWorker) recoverStuckJobs(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Requeue stuck jobs still under the retry limit.
	res, err := rw.db.ExecContext(queryCtx, `
		UPDATE job_queue
		SET status = 'pending',
		    next_visible_at = NOW()
		WHERE status = 'processing'
		  AND started_at < NOW() - $1::interval
		  AND attempts < max_attempts
	`, rw.staleAge.String())
	if err != nil {
		logger.Error("queue recovery requeue failed", "error", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		logger.Warn("requeued stuck jobs", "count", n)
	}

	// Fail stuck jobs that already exhausted their attempts.
	res, err = rw.db.ExecContext(queryCtx, `
		UPDATE job_queue
		SET status = 'failed',
		    last_error = 'worker lost: exceeded stale age',
		    completed_at = NOW()
		WHERE status = 'processing'
		  AND started_at < NOW() - $1::interval
		  AND attempts >= max_attempts
	`, rw.staleAge.String())
	if err != nil {
		logger.Error("queue recovery dead-letter failed", "error", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		logger.Warn("failed stuck jobs at attempt cap", "count", n)
	}
}
