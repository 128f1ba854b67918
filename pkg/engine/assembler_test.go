package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/otel"

	cerrors "github.com/easyops/contextengine-go/pkg/core/errors"
)

type fakeSessionStore struct {
	state  *engine.SessionState
	err    error
	delay  time.Duration
	called bool
}

func (f *fakeSessionStore) Get(ctx context.Context, userID, milestoneID string) (*engine.SessionState, error) {
	f.called = true
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.state, f.err
}

func (f *fakeSessionStore) Append(ctx context.Context, userID, milestoneID string, ex engine.Exchange) error {
	return nil
}

type fakeJourneyStore struct {
	items []engine.ContextItem
	err   error
	delay time.Duration
}

func (f *fakeJourneyStore) Search(ctx context.Context, userID string, queryEmbedding []float32, limit int, milestoneID string) ([]engine.ContextItem, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

type fakeKnowledgeStore struct {
	items []engine.ContextItem
	err   error
}

func (f *fakeKnowledgeStore) Lookup(ctx context.Context, domainKeys []string) ([]engine.ContextItem, error) {
	return f.items, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeResolver struct {
	prereqs []string
	keys    []string
	err     error
}

func (f *fakeResolver) Prerequisites(ctx context.Context, milestoneID string) ([]string, error) {
	return f.prereqs, f.err
}

func (f *fakeResolver) DomainKeys(ctx context.Context, milestoneID string) ([]string, error) {
	return f.keys, f.err
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func testRequest() engine.ContextRequest {
	return engine.ContextRequest{
		UserID:      "user-1",
		MilestoneID: "m-payments",
		QueryText:   "how do refunds work",
	}
}

func newTestAssembler(now time.Time, opts ...engine.AssemblerOption) *engine.Assembler {
	sessionState := &engine.SessionState{
		UserID:      "user-1",
		MilestoneID: "m-payments",
		ExpiresAt:   now.Add(time.Hour),
		Exchanges: []engine.Exchange{
			{ID: "ex-1", Role: "user", Content: "start refund", TokenCount: 20, CreatedAt: now.Add(-2 * time.Minute)},
			{ID: "ex-2", Role: "assistant", Content: "sure, which order", TokenCount: 25, CreatedAt: now.Add(-time.Minute)},
		},
	}

	journeyItems := []engine.ContextItem{
		{ID: "j-1", SourceLayer: engine.LayerJourney, Text: "asked about refunds before", TokenCount: 30, RawScore: 0.92, CreatedAt: now.Add(-12 * time.Hour)},
		{ID: "j-2", SourceLayer: engine.LayerJourney, Text: "completed payments basics", TokenCount: 35, RawScore: 0.81, CreatedAt: now.Add(-36 * time.Hour), MilestoneTags: []string{"m-basics"}},
	}

	knowledgeItems := []engine.ContextItem{
		{ID: "k-1", SourceLayer: engine.LayerKnowledge, Text: "refund policy: 30 days", TokenCount: 40, RawScore: 1.0, CreatedAt: now.Add(-240 * time.Hour)},
	}

	base := []engine.AssemblerOption{
		engine.WithSessionStore(&fakeSessionStore{state: sessionState}),
		engine.WithJourneyStore(&fakeJourneyStore{items: journeyItems}),
		engine.WithKnowledgeStore(&fakeKnowledgeStore{items: knowledgeItems}),
		engine.WithEmbedder(&fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}),
		engine.WithMilestoneResolver(&fakeResolver{prereqs: []string{"m-basics"}, keys: []string{"refund-policy"}}),
		engine.WithClock(fixedClock(now)),
	}

	return engine.NewAssembler(append(base, opts...)...)
}

func TestAssembler_Assemble_AllLayers(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assembler := newTestAssembler(now)

	result, err := assembler.Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if result.Degraded {
		t.Error("Degraded = true, want false when all layers succeed")
	}
	if len(result.Items) != 5 {
		t.Errorf("Items = %d, want 5", len(result.Items))
	}
	if result.TotalTokens > engine.DefaultBudget().MaxTokens {
		t.Errorf("TotalTokens = %d exceeds budget", result.TotalTokens)
	}

	// 各层内条目按最终分数排序，层之间按优先级拼接
	lastPriority := -1
	for _, it := range result.Items {
		p := it.SourceLayer.Priority()
		if p < lastPriority {
			t.Errorf("items not ordered by layer priority: %q after priority %d", it.SourceLayer, lastPriority)
		}
		lastPriority = p
	}
}

func TestAssembler_Assemble_Deterministic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first, err := newTestAssembler(now).Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := newTestAssembler(now).Assemble(context.Background(), testRequest())
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Assemble not deterministic:\nfirst = %+v\nagain = %+v", first, again)
		}
	}
}

func TestAssembler_Assemble_PartialFailureDegrades(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assembler := newTestAssembler(now,
		engine.WithJourneyStore(&fakeJourneyStore{err: errors.New("connection refused")}),
	)

	result, err := assembler.Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v, partial failure should not be fatal", err)
	}

	if !result.Degraded {
		t.Error("Degraded = false, want true when a layer fails")
	}
	for _, it := range result.Items {
		if it.SourceLayer == engine.LayerJourney {
			t.Errorf("unexpected journey item %q in degraded result", it.ID)
		}
	}
	if len(result.Items) == 0 {
		t.Error("surviving layers should still contribute items")
	}
}

func TestAssembler_Assemble_AllLayersFailed(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assembler := newTestAssembler(now,
		engine.WithSessionStore(&fakeSessionStore{err: errors.New("down")}),
		engine.WithJourneyStore(&fakeJourneyStore{err: errors.New("down")}),
		engine.WithKnowledgeStore(&fakeKnowledgeStore{err: errors.New("down")}),
	)

	_, err := assembler.Assemble(context.Background(), testRequest())
	if !errors.Is(err, cerrors.ErrNoContextAvailable) {
		t.Errorf("Assemble() error = %v, want ErrNoContextAvailable", err)
	}
}

func TestAssembler_Assemble_EmbedderFailureSkipsJourney(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assembler := newTestAssembler(now,
		engine.WithEmbedder(&fakeEmbedder{err: errors.New("rate limited")}),
	)

	result, err := assembler.Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if !result.Degraded {
		t.Error("Degraded = false, want true when embedding is unavailable")
	}
	for _, it := range result.Items {
		if it.SourceLayer == engine.LayerJourney {
			t.Errorf("journey item %q should be absent without an embedding", it.ID)
		}
	}
}

func TestAssembler_Assemble_LayerTimeout(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assembler := newTestAssembler(now,
		engine.WithFetchDeadline(20*time.Millisecond),
		engine.WithJourneyStore(&fakeJourneyStore{
			delay: 200 * time.Millisecond,
			items: []engine.ContextItem{{ID: "slow", SourceLayer: engine.LayerJourney, TokenCount: 10, RawScore: 0.9, CreatedAt: now}},
		}),
	)

	result, err := assembler.Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if !result.Degraded {
		t.Error("Degraded = false, want true when a layer times out")
	}
	for _, it := range result.Items {
		if it.ID == "slow" {
			t.Error("timed out layer should contribute no items")
		}
	}
}

func TestAssembler_Assemble_InvalidBudgetRejectedEagerly(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sessions := &fakeSessionStore{}
	assembler := newTestAssembler(now,
		engine.WithSessionStore(sessions),
		engine.WithDefaultBudget(engine.ContextBudget{MaxTokens: -1}),
	)

	_, err := assembler.Assemble(context.Background(), testRequest())
	if !errors.Is(err, cerrors.ErrInvalidBudgetConfig) {
		t.Fatalf("Assemble() error = %v, want ErrInvalidBudgetConfig", err)
	}
	if sessions.called {
		t.Error("stores should not be touched when the budget is invalid")
	}
}

func TestAssembler_Assemble_ExpiredSessionIsEmpty(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// 合约要求存储对过期状态返回 (nil, nil)，装配器视为空层而非失败
	assembler := newTestAssembler(now,
		engine.WithSessionStore(&fakeSessionStore{state: nil}),
	)

	result, err := assembler.Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if result.Degraded {
		t.Error("empty session layer is not a failure")
	}
	for _, it := range result.Items {
		if it.SourceLayer == engine.LayerSession {
			t.Errorf("unexpected session item %q", it.ID)
		}
	}
}

func TestAssembler_Assemble_PrerequisiteBonusAppliedOnce(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assembler := newTestAssembler(now)

	result, err := assembler.Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	scorer := engine.NewRelevanceScorer()
	for _, it := range result.Items {
		if it.ID != "j-2" {
			continue
		}
		// j-2 携带前置里程碑标签 m-basics，应获得依赖加分
		want := it.RawScore*scorer.Decay(it.Age(now)) + 0.1
		if diff := it.FinalScore - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("FinalScore = %v, want %v", it.FinalScore, want)
		}
		return
	}
	t.Error("item j-2 missing from result")
}

func TestAssembler_Assemble_RecordsMetrics(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	metrics := otel.NewInMemoryMetrics()
	assembler := newTestAssembler(now,
		engine.WithMetrics(metrics),
		engine.WithJourneyStore(&fakeJourneyStore{err: errors.New("down")}),
	)

	result, err := assembler.Assemble(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if got := metrics.GetCounterValue(otel.MetricAssemblyRequests); got != 1 {
		t.Errorf("assembly requests = %d, want 1", got)
	}
	if got := metrics.GetCounterValue(otel.MetricAssemblyDegraded); got != 1 {
		t.Errorf("degraded count = %d, want 1", got)
	}
	if got := metrics.GetCounterValue(otel.MetricLayerFailures); got != 1 {
		t.Errorf("layer failures = %d, want 1", got)
	}
	if got := metrics.GetCounterValue(otel.MetricAssemblyTokens); got != int64(result.TotalTokens) {
		t.Errorf("assembly tokens = %d, want %d", got, result.TotalTokens)
	}

	items := metrics.GetHistogramValues(otel.MetricAssemblyItems)
	if len(items) != 1 || items[0] != float64(len(result.Items)) {
		t.Errorf("assembly items histogram = %v, want one record of %d", items, len(result.Items))
	}
}

func TestAssembler_BudgetFor(t *testing.T) {
	override := engine.ContextBudget{
		MaxTokens:   500,
		LayerShares: map[engine.SourceLayer]float64{engine.LayerSession: 1.0},
	}

	assembler := engine.NewAssembler(
		engine.WithMilestoneBudget("m-onboarding", override),
	)

	if got := assembler.BudgetFor("m-onboarding"); got.MaxTokens != 500 {
		t.Errorf("BudgetFor(override) MaxTokens = %d, want 500", got.MaxTokens)
	}
	if got := assembler.BudgetFor("m-other"); got.MaxTokens != engine.DefaultBudget().MaxTokens {
		t.Errorf("BudgetFor(default) MaxTokens = %d, want default", got.MaxTokens)
	}
}
