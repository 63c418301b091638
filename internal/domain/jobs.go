package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Queue names. One queue per pipeline stage; ordering between stages is
// enforced by enqueueing the next stage only after the producing
// transaction commits.
const (
	QueueInboxSync    = "inbox-sync"
	QueueEmailProcess = "email-process"
	QueueEnrich       = "link-enrich"
	QueueRankCompute  = "rank-compute"
)

// InboxSyncPayload asks the synchronizer to catch one user's mailbox up to
// head from the stored history cursor.
type InboxSyncPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// EmailProcessPayload identifies one inbox message to decode, extract, and
// persist. Handlers must be idempotent: the queue delivers at least once.
type EmailProcessPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	MessageID string    `json:"message_id"`
}

// IdempotencyKey collapses repeated enqueues of the same message within the
// queue retention window.
func (p EmailProcessPayload) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", p.UserID, p.MessageID)
}

// EnrichPayload carries the video ids that need metadata plus the link rows
// waiting on them, so the enrich handler can fan out rank jobs on success.
type EnrichPayload struct {
	UserID   uuid.UUID   `json:"user_id"`
	VideoIDs []string    `json:"video_ids"`
	LinkIDs  []uuid.UUID `json:"link_ids"`
}

// RankComputePayload identifies links ready for a scoring pass. The rank
// queue runs with concurrency 1 so per-user passes are serialized.
type RankComputePayload struct {
	UserID  uuid.UUID   `json:"user_id"`
	LinkIDs []uuid.UUID `json:"link_ids"`
}
