package ranking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ignite/tubefeed/internal/domain"
)

const maxTopicTags = 5

// Weights holds the linear combination weights for the five features.
type Weights struct {
	Sender       float64
	Thread       float64
	Freshness    float64
	Topic        float64
	NoisePenalty float64
}

// DefaultWeights is the production weighting, sender-heavy.
var DefaultWeights = Weights{
	Sender:       0.3,
	Thread:       0.2,
	Freshness:    0.2,
	Topic:        0.2,
	NoisePenalty: 0.1,
}

// Ranker turns a feature vector into a score, a classification, and a
// deterministic explanation.
type Ranker struct {
	weights           Weights
	watchNowThreshold float64
	saveThreshold     float64
}

// NewRanker builds a ranker. Zero thresholds fall back to 0.7/0.4.
func NewRanker(weights Weights, watchNow, save float64) *Ranker {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if watchNow <= 0 {
		watchNow = 0.7
	}
	if save <= 0 {
		save = 0.4
	}
	return &Ranker{weights: weights, watchNowThreshold: watchNow, saveThreshold: save}
}

// Score computes the weighted linear combination, clamped to [0,1].
func (r *Ranker) Score(fv domain.FeatureVector) float64 {
	score := r.weights.Sender*fv.Sender +
		r.weights.Thread*fv.Thread +
		r.weights.Freshness*fv.Freshness +
		r.weights.Topic*fv.Topic +
		r.weights.NoisePenalty*fv.NoisePenalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Classify buckets a final score.
func (r *Ranker) Classify(score float64) domain.Classification {
	switch {
	case score >= r.watchNowThreshold:
		return domain.ClassWatchNow
	case score >= r.saveThreshold:
		return domain.ClassSave
	default:
		return domain.ClassSkip
	}
}

// Explain lists the contributing reasons in a fixed feature order so the
// same vector always produces the same string.
func (r *Ranker) Explain(fv domain.FeatureVector, score float64, class domain.Classification) string {
	var reasons []string
	if fv.Sender > 0.7 {
		reasons = append(reasons, "from an important sender")
	}
	if fv.Thread > 0.5 {
		reasons = append(reasons, "part of an active thread")
	}
	if fv.Freshness > 0.7 {
		reasons = append(reasons, "recently published")
	}
	if fv.Topic > 0.5 {
		reasons = append(reasons, "matches your learning goals")
	}
	if fv.NoisePenalty < 0.7 {
		reasons = append(reasons, "from a frequent sender")
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("classified %s with score %.2f", class, score)
	}
	return strings.Join(reasons, "; ")
}

// Rank runs one full pass: extract, score, classify, explain, tag.
func (r *Ranker) Rank(c Context, freshnessHalfLifeDays float64) (domain.FeatureVector, float64, domain.Classification, string, []string) {
	fv := ExtractFeatures(c, freshnessHalfLifeDays)
	score := r.Score(fv)
	class := r.Classify(score)
	explanation := r.Explain(fv, score, class)
	tags := TopicTags(c.Title)
	return fv, score, class, explanation, tags
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// TopicTags extracts up to five vocabulary words from a title. Tokens are
// lowercased, stripped of punctuation, and matched against the curated
// domain vocabulary.
func TopicTags(title string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(title) {
		word := nonAlnumRe.ReplaceAllString(strings.ToLower(tok), "")
		if len(word) <= 3 || seen[word] {
			continue
		}
		if vocabulary[word] {
			seen[word] = true
			tags = append(tags, word)
			if len(tags) == maxTopicTags {
				break
			}
		}
	}
	return tags
}
