// Package queue implements the durable Postgres-backed job queue that binds
// the pipeline stages together: at-least-once delivery, exponential backoff,
// idempotency-key deduplication, and per-queue attempt caps.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/pkg/backoff"
)

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is one unit of queued work as claimed by a worker.
type Job struct {
	ID             uuid.UUID
	Queue          string
	Payload        json.RawMessage
	IdempotencyKey string
	Attempts       int
	MaxAttempts    int
	Status         string
	NextVisibleAt  time.Time
	LastError      string
	CreatedAt      time.Time
}

// Queue provides durable job operations over Postgres. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
type Queue struct {
	db          *sql.DB
	backoffBase time.Duration
	backoffMax  time.Duration
}

// New creates a queue with the given redelivery backoff base. The cap keeps
// a deep retry from pushing redelivery out beyond an hour.
func New(db *sql.DB, backoffBase time.Duration) *Queue {
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Queue{
		db:          db,
		backoffBase: backoffBase,
		backoffMax:  time.Hour,
	}
}

// Enqueue adds a job. An empty idempotencyKey always creates a new job;
// otherwise repeated enqueues with the same (queue, key) within the
// retention window collapse to the one already stored.
func (q *Queue) Enqueue(ctx context.Context, queue string, payload any, idempotencyKey string, maxAttempts int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	query := `INSERT INTO job_queue (id, queue, payload, idempotency_key, max_attempts, status, next_visible_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, 'pending', NOW(), NOW())
		ON CONFLICT (queue, idempotency_key) DO NOTHING`

	_, err = q.db.ExecContext(ctx, query, uuid.New(), queue, data, idempotencyKey, maxAttempts)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// Claim pulls the oldest visible pending job from a queue, marking it
// processing and bumping its attempt count. Returns nil when the queue is
// empty.
func (q *Queue) Claim(ctx context.Context, queue string) (*Job, error) {
	query := `UPDATE job_queue SET
			status = 'processing',
			attempts = attempts + 1,
			started_at = NOW()
		WHERE id = (
			SELECT id FROM job_queue
			WHERE queue = $1 AND status = 'pending' AND next_visible_at <= NOW()
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, queue, payload, COALESCE(idempotency_key, ''), attempts, max_attempts,
			status, next_visible_at, COALESCE(last_error, ''), created_at`

	j := &Job{}
	err := q.db.QueryRowContext(ctx, query, queue).Scan(
		&j.ID, &j.Queue, &j.Payload, &j.IdempotencyKey, &j.Attempts, &j.MaxAttempts,
		&j.Status, &j.NextVisibleAt, &j.LastError, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim from %s: %w", queue, err)
	}
	return j, nil
}

// Complete marks a job done. Completed rows stay briefly for inspection and
// dedup, then fall to the retention worker.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID) error {
	query := `UPDATE job_queue SET status = 'completed', completed_at = NOW() WHERE id = $1`
	_, err := q.db.ExecContext(ctx, query, jobID)
	return err
}

// Fail records a handler error. Under the attempt cap the job returns to
// pending with an exponentially backed-off visibility time; at the cap it
// becomes terminally failed.
func (q *Queue) Fail(ctx context.Context, job *Job, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}

	if job.Attempts >= job.MaxAttempts {
		query := `UPDATE job_queue SET status = 'failed', last_error = $2, completed_at = NOW() WHERE id = $1`
		_, err := q.db.ExecContext(ctx, query, job.ID, msg)
		return err
	}

	// Exact (un-jittered) backoff so redelivery times are predictable.
	delay := backoff.Exact(q.backoffBase, q.backoffMax, job.Attempts)
	query := `UPDATE job_queue SET status = 'pending', last_error = $2,
		next_visible_at = NOW() + $3 * INTERVAL '1 second' WHERE id = $1`
	_, err := q.db.ExecContext(ctx, query, job.ID, msg, delay.Seconds())
	return err
}

// Requeue returns a job to pending with an explicit delay, without counting
// the delivery against the attempt cap. Used when enrichment hits the daily
// quota: the job waits out the quota window rather than burning retries.
func (q *Queue) Requeue(ctx context.Context, jobID uuid.UUID, delay time.Duration, reason string) error {
	query := `UPDATE job_queue SET status = 'pending', attempts = attempts - 1, last_error = $2,
		next_visible_at = NOW() + $3 * INTERVAL '1 second' WHERE id = $1`
	_, err := q.db.ExecContext(ctx, query, jobID, reason, delay.Seconds())
	return err
}

// Depth returns the count of pending jobs per queue, for the health surface.
func (q *Queue) Depth(ctx context.Context) (map[string]int, error) {
	query := `SELECT queue, COUNT(*) FROM job_queue WHERE status = 'pending' GROUP BY queue`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}
