// Package worker wires the pipeline stages to the durable queue: a pool of
// long-lived workers per queue, each pulling one job at a time up to its
// concurrency cap, with graceful drain on shutdown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ignite/tubefeed/internal/pkg/logger"
	"github.com/ignite/tubefeed/internal/queue"
)

const (
	// pollInterval is the idle wait between claim attempts on an empty queue.
	pollInterval = 500 * time.Millisecond

	// DefaultDrainTimeout bounds how long in-flight jobs may run after a
	// shutdown signal before being abandoned to queue redelivery.
	DefaultDrainTimeout = 30 * time.Second
)

// Handler processes one claimed job. Handlers must be idempotent: the queue
// delivers at least once.
type Handler func(ctx context.Context, job *queue.Job) error

// RequeueError tells the runner to push the job back with an explicit delay
// instead of burning a retry attempt. The enrich handler uses it to wait
// out the daily quota window.
type RequeueError struct {
	Delay  time.Duration
	Reason string
}

func (e *RequeueError) Error() string {
	return fmt.Sprintf("requeue after %s: %s", e.Delay, e.Reason)
}

// Registration binds a handler to a queue with its concurrency cap and an
// optional job-start rate limit.
type Registration struct {
	Queue       string
	Concurrency int
	Handler     Handler

	// RateLimit caps job starts as N per window; zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Runner owns the worker pools for all registered queues.
type Runner struct {
	queue   *queue.Queue
	limiter *queue.RateLimiter
	regs    []Registration

	drainTimeout time.Duration
	wg           sync.WaitGroup
}

// NewRunner creates a runner. The rate limiter may be nil when no
// registration uses one.
func NewRunner(q *queue.Queue, limiter *queue.RateLimiter) *Runner {
	return &Runner{queue: q, limiter: limiter, drainTimeout: DefaultDrainTimeout}
}

// Register adds a queue's worker pool configuration. Must be called before
// Start.
func (r *Runner) Register(reg Registration) {
	if reg.Concurrency <= 0 {
		reg.Concurrency = 1
	}
	r.regs = append(r.regs, reg)
}

// Start launches all pools and blocks until ctx is cancelled, then waits up
// to the drain timeout for in-flight jobs. Jobs still running past the
// deadline stay in processing and are reclaimed by the recovery worker.
func (r *Runner) Start(ctx context.Context) {
	for _, reg := range r.regs {
		logger.Info("starting worker pool", "queue", reg.Queue, "concurrency", reg.Concurrency)
		for i := 0; i < reg.Concurrency; i++ {
			r.wg.Add(1)
			go r.workLoop(ctx, reg)
		}
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, draining workers")

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("all workers drained")
	case <-time.After(r.drainTimeout):
		logger.Warn("drain deadline exceeded, abandoning in-flight jobs to redelivery")
	}
}

func (r *Runner) workLoop(ctx context.Context, reg Registration) {
	defer r.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if reg.RateLimit > 0 && r.limiter != nil {
			if err := r.limiter.Wait(ctx, "queue", reg.Queue, reg.RateLimit, reg.RateWindow); err != nil {
				return
			}
		}

		job, err := r.queue.Claim(ctx, reg.Queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim failed", "queue", reg.Queue, "error", err)
			r.idle(ctx)
			continue
		}
		if job == nil {
			r.idle(ctx)
			continue
		}

		r.runJob(ctx, reg, job)
	}
}

// runJob executes one handler and settles the job. In-flight jobs finish
// even after ctx cancels; the handler gets a detached context with a
// deadline matching the drain budget.
func (r *Runner) runJob(ctx context.Context, reg Registration, job *queue.Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.drainTimeout)
	defer cancel()

	start := time.Now()
	err := reg.Handler(jobCtx, job)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if cerr := r.queue.Complete(jobCtx, job.ID); cerr != nil {
			logger.Error("complete failed", "queue", reg.Queue, "job_id", job.ID.String(), "error", cerr)
		}
		logger.Debug("job complete", "queue", reg.Queue, "job_id", job.ID.String(),
			"attempt", job.Attempts, "duration_ms", elapsed.Milliseconds())

	case isRequeue(err):
		var rq *RequeueError
		errors.As(err, &rq)
		logger.Warn("job requeued with delay", "queue", reg.Queue, "job_id", job.ID.String(),
			"delay", rq.Delay.String(), "reason", rq.Reason)
		if qerr := r.queue.Requeue(jobCtx, job.ID, rq.Delay, rq.Reason); qerr != nil {
			logger.Error("requeue failed", "job_id", job.ID.String(), "error", qerr)
		}

	default:
		logger.Error("job failed", "queue", reg.Queue, "job_id", job.ID.String(),
			"attempt", job.Attempts, "max_attempts", job.MaxAttempts, "error", err)
		if ferr := r.queue.Fail(jobCtx, job, err); ferr != nil {
			logger.Error("fail bookkeeping failed", "job_id", job.ID.String(), "error", ferr)
		}
	}
}

func isRequeue(err error) bool {
	var rq *RequeueError
	return errors.As(err, &rq)
}

// idle sleeps a jittered poll interval so a fleet of idle workers does not
// hit the queue table in lockstep.
func (r *Runner) idle(ctx context.Context) {
	d := pollInterval + time.Duration(rand.Int63n(int64(pollInterval)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
