package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/pkg/logger"
)

// DefaultCacheTTL matches the upstream refresh cadence: stale view counts
// are acceptable for a week, title or channel changes are rare.
const DefaultCacheTTL = 7 * 24 * time.Hour

// MetadataCache is the Redis-backed write-through cache in front of the
// videos API. The relational store stays authoritative; a cold cache only
// costs quota, never correctness.
type MetadataCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewMetadataCache creates a cache with the given TTL (0 means default).
func NewMetadataCache(redisClient *redis.Client, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MetadataCache{redis: redisClient, ttl: ttl}
}

func cacheKey(videoID string) string {
	return fmt.Sprintf("video:metadata:%s", videoID)
}

// GetMany probes the cache for all ids in one MGET. Misses and undecodable
// entries are simply absent from the result; a Redis outage degrades to an
// all-miss, which the client treats as a normal fetch.
func (c *MetadataCache) GetMany(ctx context.Context, videoIDs []string) (map[string]*domain.VideoMetadata, error) {
	if len(videoIDs) == 0 {
		return map[string]*domain.VideoMetadata{}, nil
	}
	keys := make([]string, len(videoIDs))
	for i, id := range videoIDs {
		keys[i] = cacheKey(id)
	}

	values, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("metadata cache read failed", "error", err)
		return map[string]*domain.VideoMetadata{}, nil
	}

	out := make(map[string]*domain.VideoMetadata)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		m := &domain.VideoMetadata{}
		if err := json.Unmarshal([]byte(raw), m); err != nil {
			logger.Warn("metadata cache entry corrupt", "video_id", videoIDs[i], "error", err)
			continue
		}
		out[videoIDs[i]] = m
	}
	return out, nil
}

// Put writes one entry through with the cache TTL. Write failures are
// logged, not returned: the caller already holds the authoritative data.
func (c *MetadataCache) Put(ctx context.Context, m *domain.VideoMetadata) {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Error("metadata cache marshal failed", "video_id", m.VideoID, "error", err)
		return
	}
	if err := c.redis.Set(ctx, cacheKey(m.VideoID), data, c.ttl).Err(); err != nil {
		logger.Warn("metadata cache write failed", "video_id", m.VideoID, "error", err)
	}
}
