package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/pkg/logger"
	"github.com/ignite/tubefeed/internal/queue"
	"github.com/ignite/tubefeed/internal/store"
	"github.com/ignite/tubefeed/internal/youtube"
)

// quotaResetMargin pads the wait past UTC midnight so the first retry lands
// comfortably inside the fresh quota window.
const quotaResetMargin = 5 * time.Minute

// MetadataFetcher is the slice of the enrichment client the handler uses.
type MetadataFetcher interface {
	GetMetadata(ctx context.Context, videoIDs []string) (map[string]*domain.VideoMetadata, error)
}

// MetadataEnricher handles link-enrich jobs: fetch metadata for the videos
// the payload names, persist it, and release the waiting links to scoring.
type MetadataEnricher struct {
	store  *store.Store
	jobs   *queue.Queue
	client MetadataFetcher

	rankAttempts int
	now          func() time.Time
}

// NewMetadataEnricher creates the link-enrich handler.
func NewMetadataEnricher(st *store.Store, jobs *queue.Queue, client MetadataFetcher, rankAttempts int) *MetadataEnricher {
	if rankAttempts <= 0 {
		rankAttempts = 3
	}
	return &MetadataEnricher{
		store:        st,
		jobs:         jobs,
		client:       client,
		rankAttempts: rankAttempts,
		now:          time.Now,
	}
}

// Handle fetches and persists metadata for one job's videos. Quota
// exhaustion parks the job until the daily window resets without burning a
// retry; an open circuit or transient failure goes through normal backoff.
func (e *MetadataEnricher) Handle(ctx context.Context, job *queue.Job) error {
	var payload domain.EnrichPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(payload.VideoIDs) == 0 {
		return e.enqueueRank(ctx, payload)
	}

	meta, err := e.client.GetMetadata(ctx, payload.VideoIDs)
	if err != nil {
		if errors.Is(err, youtube.ErrQuotaExceeded) {
			return &RequeueError{
				Delay:  e.untilQuotaReset(),
				Reason: "daily quota exhausted",
			}
		}
		return fmt.Errorf("fetch metadata: %w", err)
	}

	for _, m := range meta {
		if err := e.store.UpsertVideoMetadata(ctx, m); err != nil {
			return fmt.Errorf("persist metadata %s: %w", m.VideoID, err)
		}
	}
	if missing := len(payload.VideoIDs) - len(meta); missing > 0 {
		// Deleted or private videos; the links still get scored with
		// neutral freshness and no topic text.
		logger.Debug("some videos returned no metadata",
			"requested", len(payload.VideoIDs), "resolved", len(meta))
	}

	return e.enqueueRank(ctx, payload)
}

func (e *MetadataEnricher) enqueueRank(ctx context.Context, payload domain.EnrichPayload) error {
	if len(payload.LinkIDs) == 0 {
		return nil
	}
	rank := domain.RankComputePayload{UserID: payload.UserID, LinkIDs: payload.LinkIDs}
	if err := e.jobs.Enqueue(ctx, domain.QueueRankCompute, rank, "", e.rankAttempts); err != nil {
		return fmt.Errorf("enqueue rank: %w", err)
	}
	return nil
}

// untilQuotaReset returns the delay until shortly after the next UTC
// midnight, when the upstream daily budget renews.
func (e *MetadataEnricher) untilQuotaReset() time.Duration {
	now := e.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(now) + quotaResetMargin
}
