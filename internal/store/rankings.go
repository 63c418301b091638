package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/tubefeed/internal/domain"
)

// InsertRanking appends one scoring pass. Two passes for the same link
// within the same second collapse into one row with the latest values;
// otherwise history accumulates for the stability metric.
func (s *Store) InsertRanking(ctx context.Context, r *domain.Ranking) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RankedAt.IsZero() {
		r.RankedAt = time.Now().Truncate(time.Second)
	}

	query := `INSERT INTO rankings (id, user_id, link_id, sender_score, thread_score,
			freshness_score, topic_score, noise_penalty, final_score,
			classification, explanation, topic_tags, ranked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, link_id, ranked_at) DO UPDATE SET
			sender_score = EXCLUDED.sender_score,
			thread_score = EXCLUDED.thread_score,
			freshness_score = EXCLUDED.freshness_score,
			topic_score = EXCLUDED.topic_score,
			noise_penalty = EXCLUDED.noise_penalty,
			final_score = EXCLUDED.final_score,
			classification = EXCLUDED.classification,
			explanation = EXCLUDED.explanation,
			topic_tags = EXCLUDED.topic_tags`

	_, err := s.db.ExecContext(ctx, query, r.ID, r.UserID, r.LinkID,
		r.Features.Sender, r.Features.Thread, r.Features.Freshness,
		r.Features.Topic, r.Features.NoisePenalty, r.FinalScore,
		r.Classification, r.Explanation, pq.Array(r.TopicTags), r.RankedAt)
	if err != nil {
		return fmt.Errorf("insert ranking: %w", err)
	}
	return nil
}

const rankingColumns = `id, user_id, link_id, sender_score, thread_score, freshness_score,
	topic_score, noise_penalty, final_score, classification, explanation, topic_tags, ranked_at`

func scanRanking(row interface{ Scan(...any) error }) (*domain.Ranking, error) {
	r := &domain.Ranking{}
	err := row.Scan(&r.ID, &r.UserID, &r.LinkID,
		&r.Features.Sender, &r.Features.Thread, &r.Features.Freshness,
		&r.Features.Topic, &r.Features.NoisePenalty, &r.FinalScore,
		&r.Classification, &r.Explanation, pq.Array(&r.TopicTags), &r.RankedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RankingsInRange returns all rankings for a user in [start, end), ordered
// by final score then recency. This is the evaluation harness's input order
// for precision@k.
func (s *Store) RankingsInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.Ranking, error) {
	query := `SELECT ` + rankingColumns + ` FROM rankings
		WHERE user_id = $1 AND ranked_at >= $2 AND ranked_at < $3
		ORDER BY final_score DESC, ranked_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rankings []*domain.Ranking
	for rows.Next() {
		r, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, r)
	}
	return rankings, rows.Err()
}

// FeedItem is one row of the ranked feed: the latest ranking for a link
// joined with the link and its video metadata.
type FeedItem struct {
	Ranking  *domain.Ranking       `json:"ranking"`
	Link     *domain.Link          `json:"link"`
	Metadata *domain.VideoMetadata `json:"metadata,omitempty"`
}

// GetFeed returns the latest ranking per link for a user, best first.
// Metadata may be nil for links whose enrichment has not completed.
func (s *Store) GetFeed(ctx context.Context, userID uuid.UUID, limit int) ([]*FeedItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT DISTINCT ON (r.link_id)
			r.id, r.user_id, r.link_id, r.sender_score, r.thread_score, r.freshness_score,
			r.topic_score, r.noise_penalty, r.final_score, r.classification, r.explanation,
			r.topic_tags, r.ranked_at,
			l.id, l.email_id, COALESCE(l.video_id, ''), COALESCE(l.playlist_id, ''),
			l.canonical_url, l.is_duplicate, l.extracted_at,
			m.video_id, m.title, m.channel_id, m.channel_title, m.published_at,
			m.duration_seconds, m.category, m.description_keywords, m.thumbnail_url,
			m.view_count, m.like_count, m.fetched_at
		FROM rankings r
		JOIN youtube_links l ON l.id = r.link_id
		LEFT JOIN video_metadata m ON m.video_id = l.video_id
		WHERE r.user_id = $1
		ORDER BY r.link_id, r.ranked_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*FeedItem
	for rows.Next() {
		r := &domain.Ranking{}
		l := &domain.Link{}
		var (
			mVideoID      *string
			mTitle        *string
			mChannelID    *string
			mChannelTitle *string
			mPublishedAt  *time.Time
			mDuration     *int
			mCategory     *string
			mKeywords     []string
			mThumbnail    *string
			mViews        *int64
			mLikes        *int64
			mFetchedAt    *time.Time
		)
		err := rows.Scan(&r.ID, &r.UserID, &r.LinkID,
			&r.Features.Sender, &r.Features.Thread, &r.Features.Freshness,
			&r.Features.Topic, &r.Features.NoisePenalty, &r.FinalScore,
			&r.Classification, &r.Explanation, pq.Array(&r.TopicTags), &r.RankedAt,
			&l.ID, &l.EmailID, &l.VideoID, &l.PlaylistID,
			&l.CanonicalURL, &l.IsDuplicate, &l.ExtractedAt,
			&mVideoID, &mTitle, &mChannelID, &mChannelTitle, &mPublishedAt,
			&mDuration, &mCategory, pq.Array(&mKeywords), &mThumbnail,
			&mViews, &mLikes, &mFetchedAt)
		if err != nil {
			return nil, err
		}
		l.UserID = r.UserID

		item := &FeedItem{Ranking: r, Link: l}
		if mVideoID != nil {
			item.Metadata = &domain.VideoMetadata{
				VideoID:             *mVideoID,
				Title:               *mTitle,
				ChannelID:           *mChannelID,
				ChannelTitle:        *mChannelTitle,
				PublishedAt:         *mPublishedAt,
				DurationSeconds:     *mDuration,
				Category:            *mCategory,
				DescriptionKeywords: mKeywords,
				ThumbnailURL:        *mThumbnail,
				ViewCount:           *mViews,
				LikeCount:           *mLikes,
				FetchedAt:           *mFetchedAt,
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DISTINCT ON forces link_id ordering in SQL; re-sort best first here.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Ranking.FinalScore != items[j].Ranking.FinalScore {
			return items[i].Ranking.FinalScore > items[j].Ranking.FinalScore
		}
		return items[i].Ranking.RankedAt.After(items[j].Ranking.RankedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// InsertFeedback appends one feedback row. Append-only by design.
func (s *Store) InsertFeedback(ctx context.Context, f *domain.Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.ProvidedAt.IsZero() {
		f.ProvidedAt = time.Now()
	}
	query := `INSERT INTO feedback (id, user_id, link_id, ranking_id, action, label, provided_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`
	_, err := s.db.ExecContext(ctx, query, f.ID, f.UserID, f.LinkID, f.RankingID,
		f.Action, f.Label, f.ProvidedAt)
	return err
}

// FeedbackInRange returns all feedback for a user in [start, end).
func (s *Store) FeedbackInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.Feedback, error) {
	query := `SELECT id, user_id, link_id, ranking_id, action, COALESCE(label, ''), provided_at
		FROM feedback
		WHERE user_id = $1 AND provided_at >= $2 AND provided_at < $3
		ORDER BY provided_at`

	rows, err := s.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Feedback
	for rows.Next() {
		f := &domain.Feedback{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.LinkID, &f.RankingID, &f.Action, &f.Label, &f.ProvidedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
