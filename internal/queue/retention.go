package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/ignite/tubefeed/internal/pkg/logger"
)

const (
	// DefaultRetentionInterval is how often terminal jobs are swept.
	DefaultRetentionInterval = time.Hour

	// CompletedRetention bounds how long completed jobs are kept. The
	// window also bounds idempotency-key dedup, so it must be long enough
	// to cover realistic redelivery gaps.
	CompletedRetention = 24 * time.Hour

	// FailedRetention keeps failed jobs around longer for inspection.
	FailedRetention = 7 * 24 * time.Hour
)

// RetentionWorker deletes terminal jobs past their retention window.
type RetentionWorker struct {
	db       *sql.DB
	interval time.Duration
}

// NewRetentionWorker creates a retention worker with default timing.
func NewRetentionWorker(db *sql.DB) *RetentionWorker {
	return &RetentionWorker{db: db, interval: DefaultRetentionInterval}
}

// Start begins the sweep loop. It blocks until ctx is cancelled. One sweep
// runs immediately so a restart after long downtime catches up right away.
func (rw *RetentionWorker) Start(ctx context.Context) {
	logger.Info("queue retention starting", "interval", rw.interval.String())

	rw.sweep(ctx)

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("queue retention stopping")
			return
		case <-ticker.C:
			rw.sweep(ctx)
		}
	}
}

func (rw *RetentionWorker) sweep(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := rw.db.ExecContext(queryCtx, `
		DELETE FROM job_queue
		WHERE status = 'completed' AND completed_at < NOW() - $1::interval
	`, CompletedRetention.String())
	if err != nil {
		logger.Error("retention sweep of completed jobs failed", "error", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("swept completed jobs", "count", n)
	}

	res, err = rw.db.ExecContext(queryCtx, `
		DELETE FROM job_queue
		WHERE status = 'failed' AND completed_at < NOW() - $1::interval
	`, FailedRetention.String())
	if err != nil {
		logger.Error("retention sweep of failed jobs failed", "error", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("swept failed jobs", "count", n)
	}
}
