// Package evaluation implements the offline evaluation harness: it replays
// stored rankings against stored feedback and computes precision@k,
// coverage, novelty, and stability. Every metric is a deterministic
// function of persisted data.
package evaluation

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/domain"
)

const stabilityTopN = 20

// PrecisionAtK is the fraction of the top-k rankings whose link is relevant.
// Rankings must already be ordered best first. The denominator is
// min(k, len(rankings)) so short ranges are not unfairly penalized.
func PrecisionAtK(rankings []*domain.Ranking, relevant map[uuid.UUID]bool, k int) float64 {
	if k <= 0 || len(rankings) == 0 {
		return 0
	}
	n := k
	if len(rankings) < n {
		n = len(rankings)
	}
	hits := 0
	for _, r := range rankings[:n] {
		if relevant[r.LinkID] {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

// RelevanceMap flags each link with relevant feedback: an action of watched
// or a provided label of watch_now.
func RelevanceMap(feedback []*domain.Feedback) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	for _, f := range feedback {
		if f.Relevant() {
			out[f.LinkID] = true
		}
	}
	return out
}

// Coverage is the share of extracted links that received at least one
// ranking. Zero when nothing was extracted.
func Coverage(rankings []*domain.Ranking, linksExtracted int) float64 {
	if linksExtracted == 0 {
		return 0
	}
	distinct := make(map[uuid.UUID]bool)
	for _, r := range rankings {
		distinct[r.LinkID] = true
	}
	return float64(len(distinct)) / float64(linksExtracted)
}

// Novelty is the ratio of distinct channels to rankings: 1.0 means every
// ranked video came from a different channel. Links without metadata (or
// playlist-only links) contribute no channel.
func Novelty(rankings []*domain.Ranking, channelByLink map[uuid.UUID]string) float64 {
	if len(rankings) == 0 {
		return 0
	}
	channels := make(map[string]bool)
	for _, r := range rankings {
		if ch := channelByLink[r.LinkID]; ch != "" {
			channels[ch] = true
		}
	}
	return float64(len(channels)) / float64(len(rankings))
}

// Stability measures day-over-day agreement of the top-20: the mean Jaccard
// similarity of adjacent days' top link sets. With fewer than two days of
// data there is nothing to compare, so the result is a perfect 1.0.
func Stability(rankings []*domain.Ranking) float64 {
	byDay := make(map[string][]*domain.Ranking)
	for _, r := range rankings {
		day := r.RankedAt.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], r)
	}
	if len(byDay) < 2 {
		return 1.0
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	var sum float64
	pairs := 0
	for i := 1; i < len(days); i++ {
		s1 := topLinkSet(byDay[days[i-1]])
		s2 := topLinkSet(byDay[days[i]])
		sum += jaccard(s1, s2)
		pairs++
	}
	return sum / float64(pairs)
}

// topLinkSet takes a day's rankings, orders them best first, and returns
// the link ids of the top entries.
func topLinkSet(rankings []*domain.Ranking) map[uuid.UUID]bool {
	sorted := make([]*domain.Ranking, len(rankings))
	copy(sorted, rankings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FinalScore != sorted[j].FinalScore {
			return sorted[i].FinalScore > sorted[j].FinalScore
		}
		return sorted[i].RankedAt.After(sorted[j].RankedAt)
	})

	out := make(map[uuid.UUID]bool)
	for _, r := range sorted {
		out[r.LinkID] = true
		if len(out) == stabilityTopN {
			break
		}
	}
	return out
}

func jaccard(a, b map[uuid.UUID]bool) float64 {
	union := make(map[uuid.UUID]bool, len(a)+len(b))
	inter := 0
	for id := range a {
		union[id] = true
		if b[id] {
			inter++
		}
	}
	for id := range b {
		union[id] = true
	}
	if len(union) == 0 {
		return 1.0
	}
	return float64(inter) / float64(len(union))
}

// Range is a half-open [Start, End) evaluation window.
type Range struct {
	Start time.Time
	End   time.Time
}
