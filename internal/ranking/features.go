// Package ranking implements the deterministic feature extractor and the
// weighted linear ranker. Every computation here is pure given its inputs;
// the only I/O in a ranking pass is the point read of sender stats done by
// the caller.
package ranking

import (
	"math"
	"strings"
	"time"

	"github.com/ignite/tubefeed/internal/domain"
)

const (
	unknownSenderScore = 0.1
	contactsBoost      = 1.5
	senderRecencyDays  = 30.0
	threadSaturation   = 3.0
	noiseSaturation    = 100.0
)

// Context carries everything a scoring pass needs. SenderStats is nil for
// senders never seen before; PublishedAt is zero when enrichment has not
// completed for the video.
type Context struct {
	SenderStats      *domain.SenderStats
	ThreadReplyCount int
	ReceivedAt       time.Time
	PublishedAt      time.Time
	Title            string
	Description      string
	LearningGoals    []string

	// Now anchors the sender-recency decay; injectable for determinism.
	Now time.Time
}

// ExtractFeatures computes the five normalized scores, each in [0,1].
func ExtractFeatures(c Context, freshnessHalfLifeDays float64) domain.FeatureVector {
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	if freshnessHalfLifeDays <= 0 {
		freshnessHalfLifeDays = 30
	}
	return domain.FeatureVector{
		Sender:       senderScore(c.SenderStats, c.Now),
		Thread:       threadScore(c.ThreadReplyCount),
		Freshness:    freshnessScore(c.ReceivedAt, c.PublishedAt, freshnessHalfLifeDays),
		Topic:        topicMatchScore(c.Title, c.Description, c.LearningGoals),
		NoisePenalty: noisePenalty(c.SenderStats),
	}
}

// senderScore rewards senders who write often, wrote recently, and are in
// the user's contacts. The log normalization saturates at 1000 emails.
func senderScore(st *domain.SenderStats, now time.Time) float64 {
	if st == nil {
		return unknownSenderScore
	}
	normLog := math.Log(float64(st.EmailCount)+1) / math.Log(1001)
	if normLog > 1 {
		normLog = 1
	}
	daysSince := now.Sub(st.LastEmailAt).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	recency := math.Exp(-daysSince / senderRecencyDays)
	boost := 1.0
	if st.InContacts {
		boost = contactsBoost
	}
	return math.Min(1, normLog*recency*boost)
}

func threadScore(replies int) float64 {
	if replies <= 0 {
		return 0
	}
	return math.Min(float64(replies)/threadSaturation, 1)
}

// freshnessScore decays with the gap between publish and arrival. A zero
// publish time (metadata not yet fetched) or a publish date after arrival
// both yield no decay.
func freshnessScore(receivedAt, publishedAt time.Time, halfLifeDays float64) float64 {
	if publishedAt.IsZero() {
		return 1
	}
	days := receivedAt.Sub(publishedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / halfLifeDays)
}

// topicMatchScore is the fraction of learning goals found as substrings of
// the lowercased title plus description. No goals configured means neutral.
func topicMatchScore(title, description string, goals []string) float64 {
	if len(goals) == 0 {
		return 0.5
	}
	haystack := strings.ToLower(title + " " + description)
	matched := 0
	for _, g := range goals {
		if g == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(g)) {
			matched++
		}
	}
	return float64(matched) / float64(len(goals))
}

// noisePenalty discounts very chatty senders. Higher is better; the floor
// of 0.5 keeps even the noisiest newsletter in contention.
func noisePenalty(st *domain.SenderStats) float64 {
	if st == nil {
		return 1
	}
	return 1 - math.Min(float64(st.EmailCount)/noiseSaturation, 0.5)
}
