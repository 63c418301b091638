package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/tubefeed/internal/domain"
)

// UpsertVideoMetadata writes or refreshes one video record. Metadata is
// global (shared across users), so conflicts simply refresh in place.
func (s *Store) UpsertVideoMetadata(ctx context.Context, m *domain.VideoMetadata) error {
	if m.FetchedAt.IsZero() {
		m.FetchedAt = time.Now()
	}
	query := `INSERT INTO video_metadata (video_id, title, channel_id, channel_title,
			published_at, duration_seconds, category, description_keywords,
			thumbnail_url, view_count, like_count, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (video_id) DO UPDATE SET
			title = EXCLUDED.title,
			channel_id = EXCLUDED.channel_id,
			channel_title = EXCLUDED.channel_title,
			published_at = EXCLUDED.published_at,
			duration_seconds = EXCLUDED.duration_seconds,
			category = EXCLUDED.category,
			description_keywords = EXCLUDED.description_keywords,
			thumbnail_url = EXCLUDED.thumbnail_url,
			view_count = EXCLUDED.view_count,
			like_count = EXCLUDED.like_count,
			fetched_at = EXCLUDED.fetched_at`

	_, err := s.db.ExecContext(ctx, query, m.VideoID, m.Title, m.ChannelID, m.ChannelTitle,
		m.PublishedAt, m.DurationSeconds, m.Category, pq.Array(m.DescriptionKeywords),
		m.ThumbnailURL, m.ViewCount, m.LikeCount, m.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert video metadata %s: %w", m.VideoID, err)
	}
	return nil
}

// GetVideoMetadata loads metadata rows for the given ids, keyed by video id.
// Missing ids are simply absent from the map.
func (s *Store) GetVideoMetadata(ctx context.Context, videoIDs []string) (map[string]*domain.VideoMetadata, error) {
	if len(videoIDs) == 0 {
		return map[string]*domain.VideoMetadata{}, nil
	}
	query := `SELECT video_id, title, channel_id, channel_title, published_at,
			duration_seconds, category, description_keywords, thumbnail_url,
			view_count, like_count, fetched_at
		FROM video_metadata WHERE video_id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(videoIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*domain.VideoMetadata, len(videoIDs))
	for rows.Next() {
		m := &domain.VideoMetadata{}
		if err := rows.Scan(&m.VideoID, &m.Title, &m.ChannelID, &m.ChannelTitle,
			&m.PublishedAt, &m.DurationSeconds, &m.Category, pq.Array(&m.DescriptionKeywords),
			&m.ThumbnailURL, &m.ViewCount, &m.LikeCount, &m.FetchedAt); err != nil {
			return nil, err
		}
		out[m.VideoID] = m
	}
	return out, rows.Err()
}

// MissingMetadata returns the subset of video ids with no metadata row yet.
// The email processor uses this to decide which links need an enrich job.
func (s *Store) MissingMetadata(ctx context.Context, videoIDs []string) ([]string, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}
	query := `SELECT id FROM unnest($1::text[]) AS id
		WHERE id NOT IN (SELECT video_id FROM video_metadata WHERE video_id = ANY($1))`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(videoIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}
