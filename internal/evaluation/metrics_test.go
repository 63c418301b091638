package evaluation

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/domain"
)

func mkRankings(n int, base time.Time) []*domain.Ranking {
	out := make([]*domain.Ranking, n)
	for i := 0; i < n; i++ {
		out[i] = &domain.Ranking{
			ID:         uuid.New(),
			LinkID:     uuid.New(),
			FinalScore: 1.0 - float64(i)*0.05,
			RankedAt:   base,
		}
	}
	return out
}

func TestPrecisionAtK(t *testing.T) {
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	rankings := mkRankings(10, base)

	// Relevance pattern over the ordered top 10: 1,1,0,1,0,0,1,0,0,0
	relevant := map[uuid.UUID]bool{}
	for i, flag := range []int{1, 1, 0, 1, 0, 0, 1, 0, 0, 0} {
		if flag == 1 {
			relevant[rankings[i].LinkID] = true
		}
	}

	if got := PrecisionAtK(rankings, relevant, 5); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("precision@5 = %v, want 0.6", got)
	}
	if got := PrecisionAtK(rankings, relevant, 10); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("precision@10 = %v, want 0.4", got)
	}
}

func TestPrecisionAtKShortList(t *testing.T) {
	base := time.Now()
	rankings := mkRankings(3, base)
	relevant := map[uuid.UUID]bool{rankings[0].LinkID: true}

	// k=5 but only 3 rankings: denominator is 3.
	if got := PrecisionAtK(rankings, relevant, 5); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("precision@5 = %v, want 1/3", got)
	}
	if got := PrecisionAtK(nil, relevant, 5); got != 0 {
		t.Errorf("precision of empty = %v, want 0", got)
	}
}

func TestRelevanceMap(t *testing.T) {
	watched := uuid.New()
	labeled := uuid.New()
	skipped := uuid.New()
	feedback := []*domain.Feedback{
		{LinkID: watched, Action: domain.ActionWatched},
		{LinkID: labeled, Action: domain.ActionSaved, Label: "watch_now"},
		{LinkID: skipped, Action: domain.ActionSkipped},
	}
	m := RelevanceMap(feedback)
	if !m[watched] || !m[labeled] {
		t.Error("watched action and watch_now label must both count as relevant")
	}
	if m[skipped] {
		t.Error("skipped action must not count as relevant")
	}
}

func TestCoverage(t *testing.T) {
	base := time.Now()
	rankings := mkRankings(4, base)
	// Re-rank one link: distinct links stays 4.
	rankings = append(rankings, &domain.Ranking{LinkID: rankings[0].LinkID, RankedAt: base})

	if got := Coverage(rankings, 8); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("coverage = %v, want 0.5", got)
	}
	if got := Coverage(rankings, 0); got != 0 {
		t.Errorf("coverage with no links = %v, want 0", got)
	}
}

func TestNovelty(t *testing.T) {
	base := time.Now()
	rankings := mkRankings(4, base)
	channels := map[uuid.UUID]string{
		rankings[0].LinkID: "chan-a",
		rankings[1].LinkID: "chan-a",
		rankings[2].LinkID: "chan-b",
		// rankings[3] has no metadata yet
	}
	if got := Novelty(rankings, channels); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("novelty = %v, want 0.5", got)
	}
	if got := Novelty(nil, channels); got != 0 {
		t.Errorf("novelty of empty = %v, want 0", got)
	}
}

func TestStability(t *testing.T) {
	day1 := time.Date(2026, 8, 18, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	t.Run("identical days", func(t *testing.T) {
		shared := mkRankings(5, day1)
		var rankings []*domain.Ranking
		rankings = append(rankings, shared...)
		for _, r := range shared {
			rankings = append(rankings, &domain.Ranking{
				LinkID: r.LinkID, FinalScore: r.FinalScore, RankedAt: day2,
			})
		}
		if got := Stability(rankings); math.Abs(got-1.0) > 1e-9 {
			t.Errorf("stability = %v, want 1.0", got)
		}
	})

	t.Run("disjoint days", func(t *testing.T) {
		rankings := mkRankings(5, day1)
		rankings = append(rankings, mkRankings(5, day2)...)
		if got := Stability(rankings); got != 0 {
			t.Errorf("stability = %v, want 0", got)
		}
	})

	t.Run("half overlap", func(t *testing.T) {
		a := mkRankings(2, day1)
		b := []*domain.Ranking{
			{LinkID: a[0].LinkID, FinalScore: 0.9, RankedAt: day2},
			{LinkID: uuid.New(), FinalScore: 0.8, RankedAt: day2},
		}
		rankings := append(append([]*domain.Ranking{}, a...), b...)
		// |{a0}| / |{a0, a1, b1}| = 1/3
		if got := Stability(rankings); math.Abs(got-1.0/3.0) > 1e-9 {
			t.Errorf("stability = %v, want 1/3", got)
		}
	})

	t.Run("fewer than two days", func(t *testing.T) {
		if got := Stability(mkRankings(5, day1)); got != 1.0 {
			t.Errorf("stability = %v, want 1.0", got)
		}
		if got := Stability(nil); got != 1.0 {
			t.Errorf("stability of empty = %v, want 1.0", got)
		}
	})

	t.Run("only top twenty considered", func(t *testing.T) {
		// 25 rankings per day; the bottom 5 differ but fall outside the
		// top-20 window.
		top := mkRankings(20, day1)
		var rankings []*domain.Ranking
		rankings = append(rankings, top...)
		rankings = append(rankings, mkRankingsWithScore(5, day1, 0.01)...)
		for _, r := range top {
			rankings = append(rankings, &domain.Ranking{
				LinkID: r.LinkID, FinalScore: r.FinalScore, RankedAt: day2,
			})
		}
		rankings = append(rankings, mkRankingsWithScore(5, day2, 0.01)...)
		if got := Stability(rankings); math.Abs(got-1.0) > 1e-9 {
			t.Errorf("stability = %v, want 1.0", got)
		}
	})
}

func mkRankingsWithScore(n int, at time.Time, score float64) []*domain.Ranking {
	out := make([]*domain.Ranking, n)
	for i := 0; i < n; i++ {
		out[i] = &domain.Ranking{ID: uuid.New(), LinkID: uuid.New(), FinalScore: score, RankedAt: at}
	}
	return out
}
