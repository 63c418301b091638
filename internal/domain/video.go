package domain

import "time"

// VideoMetadata is the authoritative per-video record fetched from the
// YouTube Data API. Identity is the video id, shared across users. Rows may
// be refreshed in place but are never deleted by the pipeline.
type VideoMetadata struct {
	VideoID             string    `json:"video_id" db:"video_id"`
	Title               string    `json:"title" db:"title"`
	ChannelID           string    `json:"channel_id" db:"channel_id"`
	ChannelTitle        string    `json:"channel_title" db:"channel_title"`
	PublishedAt         time.Time `json:"published_at" db:"published_at"`
	DurationSeconds     int       `json:"duration_seconds" db:"duration_seconds"`
	Category            string    `json:"category" db:"category"`
	DescriptionKeywords []string  `json:"description_keywords" db:"description_keywords"`
	ThumbnailURL        string    `json:"thumbnail_url" db:"thumbnail_url"`
	ViewCount           int64     `json:"view_count" db:"view_count"`
	LikeCount           int64     `json:"like_count" db:"like_count"`
	FetchedAt           time.Time `json:"fetched_at" db:"fetched_at"`
}
