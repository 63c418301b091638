package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/gmail"
	"github.com/ignite/tubefeed/internal/links"
	"github.com/ignite/tubefeed/internal/pkg/logger"
	"github.com/ignite/tubefeed/internal/queue"
	"github.com/ignite/tubefeed/internal/store"
)

// EmailProcessor handles email-process jobs: fetch one message, extract and
// canonicalize its video links, persist email + links + sender stats in one
// transaction, then fan out enrichment and scoring work.
type EmailProcessor struct {
	store      *store.Store
	jobs       *queue.Queue
	newMailbox gmail.MailboxFactory

	enrichAttempts int
	rankAttempts   int
}

// NewEmailProcessor creates the email-process handler.
func NewEmailProcessor(st *store.Store, jobs *queue.Queue, factory gmail.MailboxFactory, enrichAttempts, rankAttempts int) *EmailProcessor {
	if enrichAttempts <= 0 {
		enrichAttempts = 3
	}
	if rankAttempts <= 0 {
		rankAttempts = 3
	}
	return &EmailProcessor{
		store:          st,
		jobs:           jobs,
		newMailbox:     factory,
		enrichAttempts: enrichAttempts,
		rankAttempts:   rankAttempts,
	}
}

// Handle processes one email-process job. Redeliveries short-circuit on the
// existing email row before any upstream fetch.
func (p *EmailProcessor) Handle(ctx context.Context, job *queue.Job) error {
	var payload domain.EmailProcessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	exists, err := p.store.EmailExists(ctx, payload.UserID, payload.MessageID)
	if err != nil {
		return fmt.Errorf("check email exists: %w", err)
	}
	if exists {
		return nil
	}

	user, err := p.store.GetUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.NeedsReauth {
		logger.Warn("skipping message for missing or unauthorized user",
			"user_id", payload.UserID.String(), "message_id", payload.MessageID)
		return nil
	}

	mailbox, err := p.newMailbox(ctx, user)
	if err != nil {
		return p.handleAuthErr(ctx, user, fmt.Errorf("create mailbox: %w", err))
	}

	msg, err := mailbox.GetMessage(ctx, payload.MessageID)
	if err != nil {
		if isMessageGone(err) {
			logger.Warn("message no longer exists upstream, dropping",
				"user_id", user.ID.String(), "message_id", payload.MessageID)
			return nil
		}
		return p.handleAuthErr(ctx, user, fmt.Errorf("fetch message: %w", err))
	}

	canonical := links.Extract(msg.Subject + "\n" + msg.Snippet + "\n" + msg.Body)

	replyCount := 0
	if msg.ThreadID != "" {
		size, terr := mailbox.ThreadSize(ctx, msg.ThreadID)
		if terr != nil {
			// Reply count is a ranking hint, not worth failing the job over.
			logger.Warn("thread size lookup failed",
				"thread_id", msg.ThreadID, "error", terr)
		} else if size > 1 {
			replyCount = size - 1
		}
	}

	email := &domain.Email{
		UserID:           user.ID,
		MessageID:        msg.ID,
		ThreadID:         msg.ThreadID,
		SenderAddress:    msg.SenderAddress,
		SenderName:       msg.SenderName,
		Subject:          msg.Subject,
		ReceivedAt:       msg.ReceivedAt,
		Snippet:          msg.Snippet,
		Labels:           msg.Labels,
		ThreadReplyCount: replyCount,
		IsThreadReply:    msg.InReplyTo != "",
	}

	linkRows := make([]*domain.Link, 0, len(canonical))
	for _, c := range canonical {
		linkRows = append(linkRows, &domain.Link{
			UserID:       user.ID,
			VideoID:      c.VideoID,
			PlaylistID:   c.PlaylistID,
			CanonicalURL: c.CanonicalURL,
		})
	}

	inserted, err := p.store.SaveEmailWithLinks(ctx, email, linkRows)
	if err != nil {
		return fmt.Errorf("persist email: %w", err)
	}
	if len(inserted) == 0 {
		return nil
	}

	return p.fanOut(ctx, user.ID, inserted, payload.IdempotencyKey())
}

// fanOut splits the inserted links into those waiting on metadata and those
// already scoreable, and enqueues the corresponding downstream jobs.
func (p *EmailProcessor) fanOut(ctx context.Context, userID uuid.UUID, inserted []*domain.Link, baseKey string) error {
	videoIDs := make([]string, 0, len(inserted))
	for _, l := range inserted {
		if l.VideoID != "" {
			videoIDs = append(videoIDs, l.VideoID)
		}
	}

	missing, err := p.store.MissingMetadata(ctx, videoIDs)
	if err != nil {
		return fmt.Errorf("check missing metadata: %w", err)
	}
	missingSet := make(map[string]bool, len(missing))
	for _, id := range missing {
		missingSet[id] = true
	}

	var pending, ready []uuid.UUID
	for _, l := range inserted {
		if l.VideoID != "" && missingSet[l.VideoID] {
			pending = append(pending, l.ID)
		} else {
			ready = append(ready, l.ID)
		}
	}

	if len(pending) > 0 {
		enrich := domain.EnrichPayload{UserID: userID, VideoIDs: missing, LinkIDs: pending}
		if err := p.jobs.Enqueue(ctx, domain.QueueEnrich, enrich, "enrich:"+baseKey, p.enrichAttempts); err != nil {
			return fmt.Errorf("enqueue enrich: %w", err)
		}
	}
	if len(ready) > 0 {
		rank := domain.RankComputePayload{UserID: userID, LinkIDs: ready}
		if err := p.jobs.Enqueue(ctx, domain.QueueRankCompute, rank, "rank:"+baseKey, p.rankAttempts); err != nil {
			return fmt.Errorf("enqueue rank: %w", err)
		}
	}
	logger.Debug("email processed", "user_id", userID.String(),
		"links", len(inserted), "awaiting_metadata", len(pending))
	return nil
}

func (p *EmailProcessor) handleAuthErr(ctx context.Context, user *domain.User, err error) error {
	if errors.Is(err, gmail.ErrAuthorizationRevoked) {
		logger.Warn("authorization revoked during processing, flagging re-auth",
			"user_id", user.ID.String(), "email", logger.RedactEmail(user.Email))
		if markErr := p.store.MarkNeedsReauth(ctx, user.ID); markErr != nil {
			return fmt.Errorf("mark needs reauth: %w", markErr)
		}
		return nil
	}
	return err
}

// isMessageGone reports whether the upstream says the message was deleted
// between sync and processing.
func isMessageGone(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
