package engine_test

import (
	"math"
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
)

func TestRelevanceScorer_Decay(t *testing.T) {
	scorer := engine.NewRelevanceScorer(engine.WithHalfLife(24 * time.Hour))

	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"zero age", 0, 1.0},
		{"negative age clamps to 1.0", -time.Hour, 1.0},
		{"one half-life", 24 * time.Hour, 0.5},
		{"two half-lives", 48 * time.Hour, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Decay(tt.age)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Decay(%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestRelevanceScorer_Decay_Monotonic(t *testing.T) {
	scorer := engine.NewRelevanceScorer()

	prev := scorer.Decay(0)
	for h := 1; h <= 96; h++ {
		cur := scorer.Decay(time.Duration(h) * time.Hour)
		if cur > prev {
			t.Fatalf("Decay not monotonic at %dh: %v > %v", h, cur, prev)
		}
		if cur <= 0 {
			t.Fatalf("Decay(%dh) = %v, want positive", h, cur)
		}
		prev = cur
	}
}

func TestRelevanceScorer_Score_DependencyBonus(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	scorer := engine.NewRelevanceScorer(engine.WithDependencyBonus(0.1))

	prereqs := map[string]struct{}{
		"m-basics": {},
		"m-setup":  {},
	}

	base := engine.ContextItem{
		ID:        "item-1",
		RawScore:  0.8,
		CreatedAt: now,
	}

	noMatch := base
	noMatch.MilestoneTags = []string{"m-unrelated"}

	oneMatch := base
	oneMatch.MilestoneTags = []string{"m-basics"}

	twoMatches := base
	twoMatches.MilestoneTags = []string{"m-basics", "m-setup"}

	scoreNone := scorer.Score(noMatch, now, prereqs)
	scoreOne := scorer.Score(oneMatch, now, prereqs)
	scoreTwo := scorer.Score(twoMatches, now, prereqs)

	if math.Abs(scoreOne-scoreNone-0.1) > 1e-9 {
		t.Errorf("bonus = %v, want 0.1", scoreOne-scoreNone)
	}
	// 多个标签命中也只加一次分
	if scoreTwo != scoreOne {
		t.Errorf("bonus applied more than once: %v != %v", scoreTwo, scoreOne)
	}
}

func TestRelevanceScorer_Score_Pure(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	scorer := engine.NewRelevanceScorer()

	it := engine.ContextItem{
		ID:            "item-1",
		RawScore:      0.73,
		CreatedAt:     now.Add(-13 * time.Hour),
		MilestoneTags: []string{"m-basics"},
	}
	prereqs := map[string]struct{}{"m-basics": {}}

	first := scorer.Score(it, now, prereqs)
	for i := 0; i < 100; i++ {
		if got := scorer.Score(it, now, prereqs); got != first {
			t.Fatalf("Score not deterministic: %v != %v", got, first)
		}
	}
}

func TestScoreAll_DoesNotMutateInput(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	scorer := engine.NewRelevanceScorer()

	items := []engine.ContextItem{
		{ID: "a", RawScore: 0.9, CreatedAt: now.Add(-time.Hour)},
		{ID: "b", RawScore: 0.5, CreatedAt: now},
	}

	scored := scorer.ScoreAll(items, now, nil)

	if len(scored) != 2 {
		t.Fatalf("ScoreAll returned %d items, want 2", len(scored))
	}
	for _, it := range items {
		if it.FinalScore != 0 {
			t.Errorf("input item %q mutated: FinalScore = %v", it.ID, it.FinalScore)
		}
	}
	for _, it := range scored {
		if it.FinalScore == 0 {
			t.Errorf("scored item %q has zero FinalScore", it.ID)
		}
	}
}

func TestLessByRank(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b engine.ContextItem
		want bool
	}{
		{
			name: "higher score first",
			a:    engine.ContextItem{ID: "a", FinalScore: 0.9},
			b:    engine.ContextItem{ID: "b", FinalScore: 0.5},
			want: true,
		},
		{
			name: "equal score, newer first",
			a:    engine.ContextItem{ID: "a", FinalScore: 0.5, CreatedAt: now},
			b:    engine.ContextItem{ID: "b", FinalScore: 0.5, CreatedAt: now.Add(-time.Hour)},
			want: true,
		},
		{
			name: "equal score and time, smaller ID first",
			a:    engine.ContextItem{ID: "a", FinalScore: 0.5, CreatedAt: now},
			b:    engine.ContextItem{ID: "b", FinalScore: 0.5, CreatedAt: now},
			want: true,
		},
		{
			name: "lower score last",
			a:    engine.ContextItem{ID: "a", FinalScore: 0.1},
			b:    engine.ContextItem{ID: "b", FinalScore: 0.5},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.LessByRank(tt.a, tt.b); got != tt.want {
				t.Errorf("LessByRank() = %v, want %v", got, tt.want)
			}
		})
	}
}
