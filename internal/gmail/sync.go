package gmail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/pkg/backoff"
	"github.com/ignite/tubefeed/internal/pkg/logger"
)

const (
	// DefaultInitialQuery pre-filters the bounded initial sync to messages
	// that can plausibly contain a YouTube link.
	DefaultInitialQuery = "youtube.com OR youtu.be"

	// DefaultInitialLimit bounds how many messages a first sync pulls in.
	DefaultInitialLimit = 50

	maxPageAttempts = 3
	pageBackoffBase = time.Second
	pageBackoffMax  = 30 * time.Second
)

// UserStore is the slice of persistence the synchronizer mutates.
type UserStore interface {
	UpdateCursor(ctx context.Context, id uuid.UUID, cursor string) error
	MarkNeedsReauth(ctx context.Context, id uuid.UUID) error
}

// Enqueuer is the queue surface the synchronizer produces into.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any, idempotencyKey string, maxAttempts int) error
}

// MailboxFactory builds a Mailbox bound to one user's credential.
type MailboxFactory func(ctx context.Context, user *domain.User) (Mailbox, error)

// Synchronizer advances each user's change cursor to the head of their
// inbox, emitting one email-process job per newly observed message. The
// cursor commits only after a listing pass fully enqueues; a failed pass
// leaves it untouched and the next pass re-runs from the same point, safe
// because enqueues deduplicate on (user, message id).
type Synchronizer struct {
	users       UserStore
	jobs        Enqueuer
	newMailbox  MailboxFactory
	query       string
	initialMax  int64
	maxAttempts int
}

// NewSynchronizer creates a synchronizer. Zero values fall back to defaults.
func NewSynchronizer(users UserStore, jobs Enqueuer, factory MailboxFactory, query string, initialMax int64, maxAttempts int) *Synchronizer {
	if query == "" {
		query = DefaultInitialQuery
	}
	if initialMax <= 0 {
		initialMax = DefaultInitialLimit
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Synchronizer{
		users:       users,
		jobs:        jobs,
		newMailbox:  factory,
		query:       query,
		initialMax:  initialMax,
		maxAttempts: maxAttempts,
	}
}

// SyncUser runs one catch-up pass for a user. A revoked credential marks
// the user for re-authorization and returns nil: there is nothing to retry
// until they come back.
func (s *Synchronizer) SyncUser(ctx context.Context, user *domain.User) error {
	mailbox, err := s.newMailbox(ctx, user)
	if err != nil {
		return s.handleAuthErr(ctx, user, fmt.Errorf("create mailbox: %w", err))
	}

	var newCursor uint64
	if user.HistoryCursor != "" {
		newCursor, err = s.syncFromCursor(ctx, mailbox, user)
		if errors.Is(err, ErrCursorExpired) {
			logger.Warn("history cursor expired, falling back to initial sync",
				"user_id", user.ID.String())
			newCursor, err = s.initialSync(ctx, mailbox, user)
		}
	} else {
		newCursor, err = s.initialSync(ctx, mailbox, user)
	}
	if err != nil {
		return s.handleAuthErr(ctx, user, err)
	}

	if newCursor == 0 {
		return nil
	}
	cursor := strconv.FormatUint(newCursor, 10)
	if err := s.users.UpdateCursor(ctx, user.ID, cursor); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	logger.Debug("sync pass complete", "user_id", user.ID.String(), "cursor", cursor)
	return nil
}

// syncFromCursor pages the history delta since the stored cursor, enqueueing
// every added message.
func (s *Synchronizer) syncFromCursor(ctx context.Context, mailbox Mailbox, user *domain.User) (uint64, error) {
	var (
		pageToken string
		newCursor uint64
		enqueued  int
	)
	for {
		var (
			ids  []string
			next string
			cur  uint64
		)
		err := s.withRetry(ctx, func() error {
			var pageErr error
			ids, next, cur, pageErr = mailbox.ListHistory(ctx, user.HistoryCursor, pageToken)
			return pageErr
		})
		if err != nil {
			return 0, err
		}

		if err := s.enqueueAll(ctx, user.ID, ids); err != nil {
			return 0, err
		}
		enqueued += len(ids)

		if cur != 0 {
			newCursor = cur
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	if enqueued > 0 {
		logger.Info("incremental sync enqueued messages",
			"user_id", user.ID.String(), "count", enqueued)
	}
	return newCursor, nil
}

// initialSync lists the most recent messages under the platform pre-filter
// and anchors the cursor at the mailbox head.
func (s *Synchronizer) initialSync(ctx context.Context, mailbox Mailbox, user *domain.User) (uint64, error) {
	// Capture the head cursor before listing so messages arriving mid-sync
	// are picked up by the next incremental pass rather than lost.
	var headCursor uint64
	err := s.withRetry(ctx, func() error {
		var profErr error
		_, headCursor, profErr = mailbox.Profile(ctx)
		return profErr
	})
	if err != nil {
		return 0, err
	}

	var (
		pageToken string
		remaining = s.initialMax
	)
	for remaining > 0 {
		var (
			ids  []string
			next string
		)
		err := s.withRetry(ctx, func() error {
			var pageErr error
			ids, next, pageErr = mailbox.ListMessages(ctx, s.query, remaining, pageToken)
			return pageErr
		})
		if err != nil {
			return 0, err
		}

		if int64(len(ids)) > remaining {
			ids = ids[:remaining]
		}
		if err := s.enqueueAll(ctx, user.ID, ids); err != nil {
			return 0, err
		}
		remaining -= int64(len(ids))

		if next == "" || len(ids) == 0 {
			break
		}
		pageToken = next
	}

	logger.Info("initial sync complete", "user_id", user.ID.String(),
		"enqueued", s.initialMax-remaining)
	return headCursor, nil
}

func (s *Synchronizer) enqueueAll(ctx context.Context, userID uuid.UUID, messageIDs []string) error {
	for _, id := range messageIDs {
		payload := domain.EmailProcessPayload{UserID: userID, MessageID: id}
		if err := s.jobs.Enqueue(ctx, domain.QueueEmailProcess, payload, payload.IdempotencyKey(), s.maxAttempts); err != nil {
			return fmt.Errorf("enqueue message %s: %w", id, err)
		}
	}
	return nil
}

// withRetry retries transient page failures with exponential backoff.
// Revocation and cursor expiry pass through untouched; they are decisions,
// not transients.
func (s *Synchronizer) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxPageAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrAuthorizationRevoked) || errors.Is(lastErr, ErrCursorExpired) {
			return lastErr
		}
		if code := apiCode(lastErr); code != 0 && !backoff.IsRetryableStatus(code) {
			return lastErr
		}
		if attempt < maxPageAttempts {
			if err := backoff.Sleep(ctx, backoff.Delay(pageBackoffBase, pageBackoffMax, attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// handleAuthErr converts a revocation into a user flag and a clean return;
// everything else propagates for queue-level retry.
func (s *Synchronizer) handleAuthErr(ctx context.Context, user *domain.User, err error) error {
	if errors.Is(err, ErrAuthorizationRevoked) {
		logger.Warn("authorization revoked, flagging user for re-auth",
			"user_id", user.ID.String(), "email", user.Email)
		if markErr := s.users.MarkNeedsReauth(ctx, user.ID); markErr != nil {
			return fmt.Errorf("mark needs reauth: %w", markErr)
		}
		return nil
	}
	return err
}
