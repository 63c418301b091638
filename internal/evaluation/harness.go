package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/pkg/logger"
)

// DefaultKs is the precision@k cut-off list used when the caller passes none.
var DefaultKs = []int{5, 10, 20}

// Store is the slice of persistence the harness reads. Nothing here writes:
// re-running an evaluation on the same snapshot yields identical results.
type Store interface {
	RankingsInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.Ranking, error)
	FeedbackInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.Feedback, error)
	CountLinksExtracted(ctx context.Context, userID uuid.UUID, start, end time.Time) (int, error)
	GetLinksByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Link, error)
	GetVideoMetadata(ctx context.Context, videoIDs []string) (map[string]*domain.VideoMetadata, error)
}

// Result is one evaluation run.
type Result struct {
	UserID       uuid.UUID       `json:"user_id"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	Rankings     int             `json:"rankings"`
	Feedback     int             `json:"feedback"`
	PrecisionAtK map[int]float64 `json:"precision_at_k"`
	Coverage     float64         `json:"coverage"`
	Novelty      float64         `json:"novelty"`
	Stability    float64         `json:"stability"`
}

// Harness runs offline evaluations against the relational store.
type Harness struct {
	store Store
}

// NewHarness creates an evaluation harness.
func NewHarness(store Store) *Harness {
	return &Harness{store: store}
}

// Evaluate replays the user's rankings in [start, end) against feedback in
// the same window.
func (h *Harness) Evaluate(ctx context.Context, userID uuid.UUID, r Range, ks []int) (*Result, error) {
	if !r.End.After(r.Start) {
		return nil, fmt.Errorf("invalid range: end %s not after start %s", r.End, r.Start)
	}
	if len(ks) == 0 {
		ks = DefaultKs
	}

	rankings, err := h.store.RankingsInRange(ctx, userID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("load rankings: %w", err)
	}
	feedback, err := h.store.FeedbackInRange(ctx, userID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	linksExtracted, err := h.store.CountLinksExtracted(ctx, userID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("count links: %w", err)
	}
	channelByLink, err := h.channelMap(ctx, rankings)
	if err != nil {
		return nil, err
	}

	relevant := RelevanceMap(feedback)
	result := &Result{
		UserID:       userID,
		Start:        r.Start,
		End:          r.End,
		Rankings:     len(rankings),
		Feedback:     len(feedback),
		PrecisionAtK: make(map[int]float64, len(ks)),
		Coverage:     Coverage(rankings, linksExtracted),
		Novelty:      Novelty(rankings, channelByLink),
		Stability:    Stability(rankings),
	}
	for _, k := range ks {
		result.PrecisionAtK[k] = PrecisionAtK(rankings, relevant, k)
	}

	logger.Info("evaluation complete", "user_id", userID.String(),
		"rankings", result.Rankings, "feedback", result.Feedback,
		"coverage", result.Coverage, "stability", result.Stability)
	return result, nil
}

// channelMap resolves each ranked link to its video's channel id.
func (h *Harness) channelMap(ctx context.Context, rankings []*domain.Ranking) (map[uuid.UUID]string, error) {
	linkIDs := make([]uuid.UUID, 0, len(rankings))
	seen := make(map[uuid.UUID]bool)
	for _, r := range rankings {
		if !seen[r.LinkID] {
			seen[r.LinkID] = true
			linkIDs = append(linkIDs, r.LinkID)
		}
	}
	links, err := h.store.GetLinksByIDs(ctx, linkIDs)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}

	videoIDs := make([]string, 0, len(links))
	for _, l := range links {
		if l.VideoID != "" {
			videoIDs = append(videoIDs, l.VideoID)
		}
	}
	metadata, err := h.store.GetVideoMetadata(ctx, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	out := make(map[uuid.UUID]string, len(links))
	for _, l := range links {
		if m, ok := metadata[l.VideoID]; ok {
			out[l.ID] = m.ChannelID
		}
	}
	return out, nil
}
