package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/gmail"
	"github.com/ignite/tubefeed/internal/pkg/distlock"
	"github.com/ignite/tubefeed/internal/pkg/logger"
	"github.com/ignite/tubefeed/internal/queue"
	"github.com/ignite/tubefeed/internal/store"
)

// syncLockTTL bounds how long a crashed worker can hold a per-user sync
// lock before a peer may take over.
const syncLockTTL = 10 * time.Minute

// SyncScheduler periodically enqueues one inbox-sync job per syncable user.
// The idempotency key is bucketed by interval, so overlapping scheduler
// instances collapse to one job per user per tick.
type SyncScheduler struct {
	store       *store.Store
	jobs        *queue.Queue
	interval    time.Duration
	maxAttempts int
}

// NewSyncScheduler creates the scheduler. Interval must be positive.
func NewSyncScheduler(st *store.Store, jobs *queue.Queue, interval time.Duration, maxAttempts int) *SyncScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &SyncScheduler{store: st, jobs: jobs, interval: interval, maxAttempts: maxAttempts}
}

// Start runs the scheduling loop until ctx is cancelled. The first pass runs
// immediately so a fresh deploy does not wait a full interval.
func (s *SyncScheduler) Start(ctx context.Context) {
	logger.Info("starting sync scheduler", "interval", s.interval.String())
	s.schedulePass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.schedulePass(ctx)
		}
	}
}

func (s *SyncScheduler) schedulePass(ctx context.Context) {
	users, err := s.store.ListSyncableUsers(ctx)
	if err != nil {
		logger.Error("list syncable users failed", "error", err)
		return
	}

	bucket := time.Now().Unix() / int64(s.interval.Seconds())
	enqueued := 0
	for _, user := range users {
		payload := domain.InboxSyncPayload{UserID: user.ID}
		key := fmt.Sprintf("sync:%s:%d", user.ID, bucket)
		if err := s.jobs.Enqueue(ctx, domain.QueueInboxSync, payload, key, s.maxAttempts); err != nil {
			logger.Error("enqueue sync job failed", "user_id", user.ID.String(), "error", err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		logger.Debug("sync pass scheduled", "users", enqueued)
	}
}

// InboxSyncHandler handles inbox-sync jobs under a per-user distributed
// lock, so two workers never advance the same cursor concurrently.
type InboxSyncHandler struct {
	store *store.Store
	sync  *gmail.Synchronizer

	redis *redis.Client
	db    *sql.DB
}

// NewInboxSyncHandler creates the inbox-sync handler. The Redis client may
// be nil; locking then falls back to Postgres advisory locks.
func NewInboxSyncHandler(st *store.Store, sync *gmail.Synchronizer, redisClient *redis.Client, db *sql.DB) *InboxSyncHandler {
	return &InboxSyncHandler{store: st, sync: sync, redis: redisClient, db: db}
}

// Handle runs one catch-up pass for the payload's user. A held lock means a
// peer is already syncing; the job completes as a no-op and the next
// scheduled tick tries again.
func (h *InboxSyncHandler) Handle(ctx context.Context, job *queue.Job) error {
	var payload domain.InboxSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	user, err := h.store.GetUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.NeedsReauth {
		return nil
	}

	lock := distlock.New(h.redis, h.db, "sync:user:"+user.ID.String(), syncLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		logger.Debug("sync already in progress elsewhere", "user_id", user.ID.String())
		return nil
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warn("release sync lock failed", "user_id", user.ID.String(), "error", err)
		}
	}()

	return h.sync.SyncUser(ctx, user)
}
