// Package youtube implements the batched metadata enrichment client: cache
// probe, shared rate limit, quota accounting, retry with backoff, and a
// circuit breaker whose state is shared through Redis so every worker
// process fails fast while any one of them has tripped.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
	yt "google.golang.org/api/youtube/v3"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/pkg/backoff"
	"github.com/ignite/tubefeed/internal/pkg/logger"
	"github.com/ignite/tubefeed/internal/queue"
)

const (
	// maxKeywords bounds how much of a video description is retained.
	maxKeywords = 20
	// minKeywordLen filters filler words out of the keyword list.
	minKeywordLen = 3

	maxBatchAttempts = 3
)

// VideoLister is the upstream videos.list call. The production
// implementation wraps the Data API service; tests substitute a stub.
type VideoLister interface {
	ListVideos(ctx context.Context, videoIDs []string) ([]*yt.Video, error)
}

// Options configures a Client.
type Options struct {
	BatchSize         int
	RequestsPerSecond int
	QuotaUnitsPerDay  int
	FailureThreshold  int
	ResetTimeout      time.Duration
	CacheTTL          time.Duration
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 || o.BatchSize > 50 {
		o.BatchSize = 50
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 10
	}
	if o.QuotaUnitsPerDay <= 0 {
		o.QuotaUnitsPerDay = 10000
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = 60 * time.Second
	}
}

// Client fetches video metadata with batching and full upstream protection.
// One instance per worker process; the breaker is per-instance but its state
// is published to Redis and consulted before each batch, and the rate limit
// and quota counters are shared so workers cannot collectively exceed the
// upstream budget.
type Client struct {
	api     VideoLister
	cache   *MetadataCache
	limiter *queue.RateLimiter
	redis   *redis.Client
	breaker *gobreaker.CircuitBreaker
	opts    Options
}

// NewClient assembles the enrichment client.
func NewClient(api VideoLister, redisClient *redis.Client, opts Options) *Client {
	opts.applyDefaults()

	c := &Client{
		api:     api,
		cache:   NewMetadataCache(redisClient, opts.CacheTTL),
		limiter: queue.NewRateLimiter(redisClient),
		redis:   redisClient,
		opts:    opts,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "youtube-api",
		MaxRequests: 1, // single probe in half-open
		Timeout:     opts.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(opts.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name,
				"from", from.String(), "to", to.String())
			c.mirrorBreakerState(to)
		},
	})
	return c
}

// GetMetadata resolves metadata for the given video ids: cache first, then
// batched API calls for the misses, written back through the cache. The
// returned map holds every id that could be resolved; ids the upstream does
// not know (deleted or private videos) are absent without error.
func (c *Client) GetMetadata(ctx context.Context, videoIDs []string) (map[string]*domain.VideoMetadata, error) {
	if len(videoIDs) == 0 {
		return map[string]*domain.VideoMetadata{}, nil
	}

	out, err := c.cache.GetMany(ctx, videoIDs)
	if err != nil {
		return nil, err
	}

	var misses []string
	for _, id := range videoIDs {
		if _, ok := out[id]; !ok {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	for start := 0; start < len(misses); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(misses) {
			end = len(misses)
		}
		videos, err := c.fetchBatch(ctx, misses[start:end])
		if err != nil {
			return nil, err
		}
		for _, v := range videos {
			m := parseVideo(v)
			out[m.VideoID] = m
			c.cache.Put(ctx, m)
		}
	}
	return out, nil
}

// fetchBatch issues one videos.list call under the breaker, retrying
// transient failures up to the attempt budget. Rate-limit (429) sleeps and
// quota exhaustion deliberately do not count as breaker failures: neither
// says the upstream is unhealthy.
func (c *Client) fetchBatch(ctx context.Context, ids []string) ([]*yt.Video, error) {
	if c.peerBreakerOpen(ctx) {
		return nil, ErrCircuitOpen
	}
	if err := c.consumeQuota(ctx); err != nil {
		return nil, err
	}

	var quotaErr error
	result, err := c.breaker.Execute(func() (any, error) {
		var lastErr error
		for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
			if err := c.limiter.Wait(ctx, "youtube", "shared", c.opts.RequestsPerSecond, time.Second); err != nil {
				return nil, err
			}

			videos, err := c.api.ListVideos(ctx, ids)
			if err == nil {
				return videos, nil
			}
			lastErr = err

			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch {
				case isQuotaExhausted(apiErr):
					quotaErr = ErrQuotaExceeded
					return nil, nil
				case apiErr.Code == 429:
					delay, ok := backoff.RetryAfter(apiErr.Header)
					if !ok {
						delay = time.Duration(1<<attempt) * time.Second
					}
					if err := backoff.Sleep(ctx, delay); err != nil {
						return nil, err
					}
					continue
				case apiErr.Code >= 400 && apiErr.Code < 500:
					// Non-retryable client error.
					return nil, err
				}
			}

			if attempt < maxBatchAttempts {
				if err := backoff.Sleep(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
					return nil, err
				}
			}
		}
		return nil, &TransientError{Err: lastErr}
	})

	if quotaErr != nil {
		return nil, quotaErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.([]*yt.Video), nil
}

// consumeQuota counts one list call (1 unit) against the shared daily
// budget. The counter key rolls with the calendar day and outlives the
// window by a day so late readers still see it.
func (c *Client) consumeQuota(ctx context.Context) error {
	day := time.Now().UTC().Format("2006-01-02")
	key := fmt.Sprintf("rate_limit:youtube:quota:%s", day)

	used, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		logger.Warn("quota counter unavailable", "error", err)
		return nil
	}
	if used == 1 {
		c.redis.Expire(ctx, key, 48*time.Hour)
	}
	if used > int64(c.opts.QuotaUnitsPerDay) {
		return ErrQuotaExceeded
	}
	return nil
}

// peerBreakerOpen reports whether another worker's breaker tripped open
// recently enough that its reset timeout has not elapsed. Only consulted
// while the local breaker is closed: once local state is open or half-open
// the local breaker already governs, and its probe must not be suppressed
// by the mirror it wrote itself.
func (c *Client) peerBreakerOpen(ctx context.Context) bool {
	if c.breaker.State() != gobreaker.StateClosed {
		return false
	}
	vals, err := c.redis.MGet(ctx,
		"circuit_breaker:youtube:state",
		"circuit_breaker:youtube:last_failure").Result()
	if err != nil || len(vals) != 2 {
		return false
	}
	state, _ := vals[0].(string)
	if state != gobreaker.StateOpen.String() {
		return false
	}
	ts, _ := vals[1].(string)
	trippedAt, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		// Unreadable mirror fails open; the local breaker still protects.
		return false
	}
	return time.Since(trippedAt) < c.opts.ResetTimeout
}

func (c *Client) mirrorBreakerState(state gobreaker.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts := c.breaker.Counts()
	pipe := c.redis.Pipeline()
	pipe.Set(ctx, "circuit_breaker:youtube:state", state.String(), 0)
	pipe.Set(ctx, "circuit_breaker:youtube:failures", int64(counts.ConsecutiveFailures), 0)
	pipe.Set(ctx, "circuit_breaker:youtube:last_failure", time.Now().UTC().Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("breaker state mirror failed", "error", err)
	}
}

func isQuotaExhausted(apiErr *googleapi.Error) bool {
	if apiErr.Code != 403 {
		return false
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" {
			return true
		}
	}
	return false
}

// parseVideo maps one API item onto the domain record.
func parseVideo(v *yt.Video) *domain.VideoMetadata {
	m := &domain.VideoMetadata{
		VideoID:   v.Id,
		FetchedAt: time.Now(),
	}
	if v.Snippet != nil {
		m.Title = v.Snippet.Title
		m.ChannelID = v.Snippet.ChannelId
		m.ChannelTitle = v.Snippet.ChannelTitle
		m.Category = v.Snippet.CategoryId
		if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			m.PublishedAt = t
		}
		m.DescriptionKeywords = descriptionKeywords(v.Snippet.Description)
		if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.High != nil {
			m.ThumbnailURL = v.Snippet.Thumbnails.High.Url
		}
	}
	if v.ContentDetails != nil {
		m.DurationSeconds = ParseISODuration(v.ContentDetails.Duration)
	}
	if v.Statistics != nil {
		m.ViewCount = int64(v.Statistics.ViewCount)
		m.LikeCount = int64(v.Statistics.LikeCount)
	}
	return m
}

// descriptionKeywords keeps the first meaningful tokens of a description.
func descriptionKeywords(desc string) []string {
	if desc == "" {
		return nil
	}
	var keywords []string
	for _, tok := range strings.Fields(desc) {
		if len(tok) > minKeywordLen {
			keywords = append(keywords, tok)
			if len(keywords) == maxKeywords {
				break
			}
		}
	}
	return keywords
}
