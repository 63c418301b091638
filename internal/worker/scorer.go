package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/pkg/logger"
	"github.com/ignite/tubefeed/internal/queue"
	"github.com/ignite/tubefeed/internal/ranking"
	"github.com/ignite/tubefeed/internal/store"
)

// LinkScorer handles rank-compute jobs: assemble the scoring context for
// each link and write one ranking row per link. The queue runs this handler
// with concurrency 1, so passes over a user's links are serialized.
type LinkScorer struct {
	store    *store.Store
	ranker   *ranking.Ranker
	halfLife float64
}

// NewLinkScorer creates the rank-compute handler.
func NewLinkScorer(st *store.Store, ranker *ranking.Ranker, freshnessHalfLifeDays float64) *LinkScorer {
	return &LinkScorer{store: st, ranker: ranker, halfLife: freshnessHalfLifeDays}
}

// Handle scores every link the payload names. Links whose email or row has
// vanished are skipped; one bad link does not fail the batch.
func (s *LinkScorer) Handle(ctx context.Context, job *queue.Job) error {
	var payload domain.RankComputePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	user, err := s.store.GetUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		logger.Warn("rank job for missing user", "user_id", payload.UserID.String())
		return nil
	}

	linkRows, err := s.store.GetLinksByIDs(ctx, payload.LinkIDs)
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	if len(linkRows) == 0 {
		return nil
	}

	videoIDs := make([]string, 0, len(linkRows))
	for _, l := range linkRows {
		if l.VideoID != "" {
			videoIDs = append(videoIDs, l.VideoID)
		}
	}
	metaByID, err := s.store.GetVideoMetadata(ctx, videoIDs)
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	emails := make(map[uuid.UUID]*domain.Email)
	stats := make(map[string]*domain.SenderStats)
	rankedAt := time.Now().UTC()
	scored := 0

	for _, link := range linkRows {
		email, ok := emails[link.EmailID]
		if !ok {
			email, err = s.store.GetEmail(ctx, link.EmailID)
			if err != nil {
				return fmt.Errorf("load email %s: %w", link.EmailID, err)
			}
			emails[link.EmailID] = email
		}
		if email == nil {
			logger.Warn("link without email row, skipping", "link_id", link.ID.String())
			continue
		}

		senderStats, ok := stats[email.SenderAddress]
		if !ok {
			senderStats, err = s.store.GetSenderStats(ctx, user.ID, email.SenderAddress)
			if err != nil {
				return fmt.Errorf("load sender stats: %w", err)
			}
			stats[email.SenderAddress] = senderStats
		}

		rctx := ranking.Context{
			SenderStats:      senderStats,
			ThreadReplyCount: email.ThreadReplyCount,
			ReceivedAt:       email.ReceivedAt,
			LearningGoals:    user.LearningGoals,
			Now:              rankedAt,
		}
		if meta := metaByID[link.VideoID]; meta != nil {
			rctx.PublishedAt = meta.PublishedAt
			rctx.Title = meta.Title
			rctx.Description = strings.Join(meta.DescriptionKeywords, " ")
		}

		fv, score, class, explanation, tags := s.ranker.Rank(rctx, s.halfLife)
		r := &domain.Ranking{
			UserID:         user.ID,
			LinkID:         link.ID,
			Features:       fv,
			FinalScore:     score,
			Classification: class,
			Explanation:    explanation,
			TopicTags:      tags,
			RankedAt:       rankedAt,
		}
		if err := s.store.InsertRanking(ctx, r); err != nil {
			return fmt.Errorf("insert ranking for link %s: %w", link.ID, err)
		}
		scored++
	}

	logger.Debug("scoring pass complete", "user_id", user.ID.String(), "scored", scored)
	return nil
}
