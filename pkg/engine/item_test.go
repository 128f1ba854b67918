package engine_test

import (
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
)

func TestNewContextItem_Defaults(t *testing.T) {
	it := engine.NewContextItem("hello world, this is a test", engine.LayerJourney)

	if it.ID == "" {
		t.Error("ID should be auto-generated")
	}
	if it.SourceLayer != engine.LayerJourney {
		t.Errorf("SourceLayer = %q, want journey", it.SourceLayer)
	}
	if it.TokenCount <= 0 {
		t.Errorf("TokenCount = %d, should be auto-calculated", it.TokenCount)
	}
	if it.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestNewContextItem_Options(t *testing.T) {
	ts := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)

	it := engine.NewContextItem("content", engine.LayerKnowledge,
		engine.WithItemID("fixed-id"),
		engine.WithTokenCount(42),
		engine.WithRawScore(0.85),
		engine.WithCreatedAt(ts),
		engine.WithMilestoneTags("m-basics", "m-setup"),
		engine.WithEmbedding([]float32{0.1, 0.2}),
	)

	if it.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", it.ID)
	}
	if it.TokenCount != 42 {
		t.Errorf("TokenCount = %d, want 42", it.TokenCount)
	}
	if it.RawScore != 0.85 {
		t.Errorf("RawScore = %v, want 0.85", it.RawScore)
	}
	if !it.CreatedAt.Equal(ts) {
		t.Errorf("CreatedAt = %v, want %v", it.CreatedAt, ts)
	}
	if len(it.MilestoneTags) != 2 {
		t.Errorf("MilestoneTags = %v, want 2 tags", it.MilestoneTags)
	}
	if len(it.Embedding) != 2 {
		t.Errorf("Embedding = %v, want 2 dimensions", it.Embedding)
	}
}

func TestContextItem_Age(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	it := engine.ContextItem{CreatedAt: now.Add(-3 * time.Hour)}
	if got := it.Age(now); got != 3*time.Hour {
		t.Errorf("Age() = %v, want 3h", got)
	}

	// 时钟偏差导致的未来时间戳按 0 处理
	future := engine.ContextItem{CreatedAt: now.Add(time.Minute)}
	if got := future.Age(now); got != 0 {
		t.Errorf("Age() = %v, want 0 for future timestamp", got)
	}
}

func TestSourceLayer_Priority(t *testing.T) {
	if engine.LayerSession.Priority() >= engine.LayerJourney.Priority() {
		t.Error("session should have higher priority than journey")
	}
	if engine.LayerJourney.Priority() >= engine.LayerKnowledge.Priority() {
		t.Error("journey should have higher priority than knowledge")
	}
}

func TestSessionState_Live(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state *engine.SessionState
		want  bool
	}{
		{"nil state", nil, false},
		{"expires in the future", &engine.SessionState{ExpiresAt: now.Add(time.Minute)}, true},
		{"expires exactly now", &engine.SessionState{ExpiresAt: now}, false},
		{"expired one millisecond ago", &engine.SessionState{ExpiresAt: now.Add(-time.Millisecond)}, false},
		{"expires one millisecond from now", &engine.SessionState{ExpiresAt: now.Add(time.Millisecond)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Live(now); got != tt.want {
				t.Errorf("Live() = %v, want %v", got, tt.want)
			}
		})
	}
}
