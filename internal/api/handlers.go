// Package api exposes the read side of the pipeline: the ranked feed,
// feedback intake, on-demand evaluation, and health.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/evaluation"
	"github.com/ignite/tubefeed/internal/pkg/httputil"
	"github.com/ignite/tubefeed/internal/store"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// FeedStore is the slice of persistence the handlers read and write.
type FeedStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetFeed(ctx context.Context, userID uuid.UUID, limit int) ([]*store.FeedItem, error)
	InsertFeedback(ctx context.Context, f *domain.Feedback) error
}

// Evaluator runs an offline evaluation pass.
type Evaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID, r evaluation.Range, ks []int) (*evaluation.Result, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	store     FeedStore
	evaluator Evaluator
	health    *HealthChecker
}

// NewHandlers creates the handler set.
func NewHandlers(st FeedStore, evaluator Evaluator, health *HealthChecker) *Handlers {
	return &Handlers{store: st, evaluator: evaluator, health: health}
}

// FeedEntry is one row of the feed response.
type FeedEntry struct {
	LinkID         uuid.UUID             `json:"link_id"`
	CanonicalURL   string                `json:"canonical_url"`
	VideoID        string                `json:"video_id,omitempty"`
	Title          string                `json:"title,omitempty"`
	ChannelTitle   string                `json:"channel_title,omitempty"`
	ThumbnailURL   string                `json:"thumbnail_url,omitempty"`
	DurationSec    int                   `json:"duration_seconds,omitempty"`
	FinalScore     float64               `json:"final_score"`
	Classification domain.Classification `json:"classification"`
	Explanation    string                `json:"explanation"`
	TopicTags      []string              `json:"topic_tags,omitempty"`
	RankedAt       time.Time             `json:"ranked_at"`
}

// FeedResponse is the envelope for GET /api/feed.
type FeedResponse struct {
	Items       []FeedEntry `json:"items"`
	NeedsReauth bool        `json:"needs_reauth"`
}

// GetFeed returns the latest ranking per link for a user, best first.
//
//	GET /api/feed?user_id=&classification=&limit=
func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if user == nil {
		httputil.NotFound(w, "user not found")
		return
	}

	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		if n > maxFeedLimit {
			n = maxFeedLimit
		}
		limit = n
	}

	classFilter := domain.Classification(r.URL.Query().Get("classification"))
	switch classFilter {
	case "", domain.ClassWatchNow, domain.ClassSave, domain.ClassSkip:
	default:
		httputil.BadRequest(w, "unknown classification")
		return
	}

	items, err := h.store.GetFeed(r.Context(), userID, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	entries := make([]FeedEntry, 0, len(items))
	for _, item := range items {
		if classFilter != "" && item.Ranking.Classification != classFilter {
			continue
		}
		entry := FeedEntry{
			LinkID:         item.Link.ID,
			CanonicalURL:   item.Link.CanonicalURL,
			VideoID:        item.Link.VideoID,
			FinalScore:     item.Ranking.FinalScore,
			Classification: item.Ranking.Classification,
			Explanation:    item.Ranking.Explanation,
			TopicTags:      item.Ranking.TopicTags,
			RankedAt:       item.Ranking.RankedAt,
		}
		if item.Metadata != nil {
			entry.Title = item.Metadata.Title
			entry.ChannelTitle = item.Metadata.ChannelTitle
			entry.ThumbnailURL = item.Metadata.ThumbnailURL
			entry.DurationSec = item.Metadata.DurationSeconds
		}
		entries = append(entries, entry)
	}

	httputil.OK(w, FeedResponse{Items: entries, NeedsReauth: user.NeedsReauth})
}

// FeedbackRequest is the body for POST /api/feedback.
type FeedbackRequest struct {
	UserID    uuid.UUID             `json:"user_id"`
	LinkID    uuid.UUID             `json:"link_id"`
	RankingID *uuid.UUID            `json:"ranking_id,omitempty"`
	Action    domain.FeedbackAction `json:"action"`
	Label     string                `json:"label,omitempty"`
}

// PostFeedback records one user signal about a ranked link.
//
//	POST /api/feedback
func (h *Handlers) PostFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil || req.LinkID == uuid.Nil {
		httputil.BadRequest(w, "user_id and link_id are required")
		return
	}
	if !domain.ValidFeedbackAction(req.Action) {
		httputil.BadRequest(w, "unknown action")
		return
	}
	if req.Label != "" {
		switch domain.Classification(req.Label) {
		case domain.ClassWatchNow, domain.ClassSave, domain.ClassSkip:
		default:
			httputil.BadRequest(w, "unknown label")
			return
		}
	}

	f := &domain.Feedback{
		UserID:     req.UserID,
		LinkID:     req.LinkID,
		RankingID:  req.RankingID,
		Action:     req.Action,
		Label:      req.Label,
		ProvidedAt: time.Now().UTC(),
	}
	if err := h.store.InsertFeedback(r.Context(), f); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, f)
}

// EvaluateRequest is the body for POST /api/evaluate.
type EvaluateRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Ks     []int     `json:"k_values,omitempty"`
}

// PostEvaluate runs an offline evaluation for a user over a time window.
//
//	POST /api/evaluate
func (h *Handlers) PostEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		httputil.BadRequest(w, "user_id is required")
		return
	}
	if !req.End.After(req.Start) {
		httputil.BadRequest(w, "end must be after start")
		return
	}

	result, err := h.evaluator.Evaluate(r.Context(), req.UserID,
		evaluation.Range{Start: req.Start, End: req.End}, req.Ks)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		httputil.BadRequest(w, "user_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.BadRequest(w, "user_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
