package domain

import (
	"time"

	"github.com/google/uuid"
)

// Classification buckets a final score. Ordering (most to least favorable):
// watch_now > save > skip.
type Classification string

const (
	ClassWatchNow Classification = "watch_now"
	ClassSave     Classification = "save"
	ClassSkip     Classification = "skip"
)

// Favorability returns a comparable rank for classification ordering.
func (c Classification) Favorability() int {
	switch c {
	case ClassWatchNow:
		return 2
	case ClassSave:
		return 1
	default:
		return 0
	}
}

// FeatureVector holds the five normalized feature scores, each in [0,1].
type FeatureVector struct {
	Sender       float64 `json:"sender"`
	Thread       float64 `json:"thread"`
	Freshness    float64 `json:"freshness"`
	Topic        float64 `json:"topic"`
	NoisePenalty float64 `json:"noise_penalty"`
}

// Ranking is one scoring pass over a link. A link accumulates many rankings
// over time; the history feeds the stability metric in the evaluation
// harness and is never deleted.
type Ranking struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	UserID         uuid.UUID      `json:"user_id" db:"user_id"`
	LinkID         uuid.UUID      `json:"link_id" db:"link_id"`
	Features       FeatureVector  `json:"features"`
	FinalScore     float64        `json:"final_score" db:"final_score"`
	Classification Classification `json:"classification" db:"classification"`
	Explanation    string         `json:"explanation" db:"explanation"`
	TopicTags      []string       `json:"topic_tags" db:"topic_tags"`
	RankedAt       time.Time      `json:"ranked_at" db:"ranked_at"`
}

// FeedbackAction enumerates what the user did with a ranked link.
type FeedbackAction string

const (
	ActionWatched   FeedbackAction = "watched"
	ActionSaved     FeedbackAction = "saved"
	ActionSkipped   FeedbackAction = "skipped"
	ActionDismissed FeedbackAction = "dismissed"
)

// ValidFeedbackAction reports whether a is one of the known actions.
func ValidFeedbackAction(a FeedbackAction) bool {
	switch a {
	case ActionWatched, ActionSaved, ActionSkipped, ActionDismissed:
		return true
	}
	return false
}

// Feedback is an append-only user signal about a link. A link counts as
// relevant for evaluation iff the action is watched or the label is
// watch_now.
type Feedback struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	UserID     uuid.UUID      `json:"user_id" db:"user_id"`
	LinkID     uuid.UUID      `json:"link_id" db:"link_id"`
	RankingID  *uuid.UUID     `json:"ranking_id,omitempty" db:"ranking_id"`
	Action     FeedbackAction `json:"action" db:"action"`
	Label      string         `json:"label,omitempty" db:"label"`
	ProvidedAt time.Time      `json:"provided_at" db:"provided_at"`
}

// Relevant reports whether this feedback marks its link relevant.
func (f Feedback) Relevant() bool {
	return f.Action == ActionWatched || f.Label == string(ClassWatchNow)
}
