package engine

import (
	"context"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/otel"
)

// Phase 表示装配过程的阶段。
type Phase string

const (
	// PhaseIdle 空闲
	PhaseIdle Phase = "idle"
	// PhaseFetching 并发获取各层候选
	PhaseFetching Phase = "fetching"
	// PhaseScoring 评分
	PhaseScoring Phase = "scoring"
	// PhaseBudgeting 预算剪裁
	PhaseBudgeting Phase = "budgeting"
	// PhaseAssembled 装配完成（终态）
	PhaseAssembled Phase = "assembled"
)

// DefaultFetchDeadline 三路存储获取共享的默认截止时间。
const DefaultFetchDeadline = 100 * time.Millisecond

// Assembler 上下文装配器。
//
// 对每个 ContextRequest 并发发起三路存储获取（共享截止时间、
// 各自可取消），将原始候选交给评分器，再由预算管理器剪裁合并。
// 单层失败只导致降级；全部失败才返回 ErrNoContextAvailable。
// 每个请求相互独立，装配器自身无共享可变状态。
type Assembler struct {
	sessions  SessionStore
	journeys  JourneyStore
	knowledge KnowledgeStore

	embedder Embedder
	resolver MilestoneResolver
	scorer   Scorer
	budgets  *BudgetManager

	defaultBudget    ContextBudget
	milestoneBudgets map[string]ContextBudget

	fetchDeadline time.Duration
	journeyLimit  int
	clock         func() time.Time

	logger  otel.Logger
	tracer  otel.Tracer
	metrics otel.Metrics
}

// AssemblerOption 配置 Assembler。
type AssemblerOption func(*Assembler)

// WithSessionStore 设置会话存储。
func WithSessionStore(s SessionStore) AssemblerOption {
	return func(a *Assembler) {
		a.sessions = s
	}
}

// WithJourneyStore 设置旅程存储。
func WithJourneyStore(s JourneyStore) AssemblerOption {
	return func(a *Assembler) {
		a.journeys = s
	}
}

// WithKnowledgeStore 设置知识存储。
func WithKnowledgeStore(s KnowledgeStore) AssemblerOption {
	return func(a *Assembler) {
		a.knowledge = s
	}
}

// WithEmbedder 设置嵌入服务。
func WithEmbedder(e Embedder) AssemblerOption {
	return func(a *Assembler) {
		a.embedder = e
	}
}

// WithMilestoneResolver 设置里程碑元数据解析器。
func WithMilestoneResolver(r MilestoneResolver) AssemblerOption {
	return func(a *Assembler) {
		a.resolver = r
	}
}

// WithScorer 设置评分器。
func WithScorer(s Scorer) AssemblerOption {
	return func(a *Assembler) {
		a.scorer = s
	}
}

// WithDefaultBudget 设置默认预算。
func WithDefaultBudget(b ContextBudget) AssemblerOption {
	return func(a *Assembler) {
		a.defaultBudget = b
	}
}

// WithMilestoneBudget 设置某个里程碑的预算覆盖。
func WithMilestoneBudget(milestoneID string, b ContextBudget) AssemblerOption {
	return func(a *Assembler) {
		a.milestoneBudgets[milestoneID] = b
	}
}

// WithFetchDeadline 设置存储获取的共享截止时间。
// 调用方上下文中更短的截止时间优先生效，但不能延长此值。
func WithFetchDeadline(d time.Duration) AssemblerOption {
	return func(a *Assembler) {
		a.fetchDeadline = d
	}
}

// WithJourneyLimit 设置旅程层返回的最大候选数。
func WithJourneyLimit(limit int) AssemblerOption {
	return func(a *Assembler) {
		a.journeyLimit = limit
	}
}

// WithClock 设置时间源（测试用，保证评分可复现）。
func WithClock(clock func() time.Time) AssemblerOption {
	return func(a *Assembler) {
		a.clock = clock
	}
}

// WithLogger 设置日志器。
func WithLogger(l otel.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = l
	}
}

// WithTracer 设置追踪器。
func WithTracer(t otel.Tracer) AssemblerOption {
	return func(a *Assembler) {
		a.tracer = t
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(m otel.Metrics) AssemblerOption {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// NewAssembler 使用给定选项创建装配器。
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		scorer:           NewRelevanceScorer(),
		budgets:          NewBudgetManager(),
		defaultBudget:    DefaultBudget(),
		milestoneBudgets: make(map[string]ContextBudget),
		fetchDeadline:    DefaultFetchDeadline,
		journeyLimit:     10,
		clock:            time.Now,
		logger:           otel.GetLogger(),
		tracer:           otel.GetTracer(),
		metrics:          otel.GetMetrics(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// BudgetFor 返回某个里程碑生效的预算。
func (a *Assembler) BudgetFor(milestoneID string) ContextBudget {
	if b, ok := a.milestoneBudgets[milestoneID]; ok {
		return b
	}
	return a.defaultBudget
}

// layerResult 单层获取结果。
type layerResult struct {
	layer SourceLayer
	items []ContextItem
	err   error
}

// Assemble 执行一次上下文装配。
//
// 返回的 AssembledContext 满足 totalTokens <= budget.MaxTokens；
// degraded=true 表示部分层失败，结果仍然有效可用。
// 仅当三层全部失败时返回 ErrNoContextAvailable。
func (a *Assembler) Assemble(ctx context.Context, req ContextRequest) (*AssembledContext, error) {
	budget := a.BudgetFor(req.MilestoneID)
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "context.assemble",
		otel.WithAttributes(otel.MilestoneID(req.MilestoneID)))
	defer span.End()

	start := time.Now()
	now := a.clock()
	a.metrics.Counter(otel.MetricAssemblyRequests).Add(ctx, 1)

	fctx, cancel := context.WithTimeout(ctx, a.fetchDeadline)
	defer cancel()

	prereqs, domainKeys := a.resolveMilestone(fctx, req.MilestoneID)

	queryVec, embedErr := a.embedQuery(fctx, req.QueryText)

	span.AddEvent(string(PhaseFetching))
	results := a.fetchAll(fctx, req, queryVec, embedErr, domainKeys)

	span.AddEvent(string(PhaseScoring))
	candidates := make(map[SourceLayer][]ContextItem, len(Layers))
	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			a.logger.WithContext(ctx).Warn("layer fetch failed",
				"layer", string(res.layer), "error", res.err)
			a.metrics.Counter(otel.MetricLayerFailures).Add(ctx, 1,
				otel.NewAttr(otel.AttrLayer, string(res.layer)))
			continue
		}
		candidates[res.layer] = scoreAll(a.scorer, res.items, now, prereqs)
		a.metrics.Histogram(otel.MetricLayerCandidates).Record(ctx,
			float64(len(res.items)), otel.NewAttr(otel.AttrLayer, string(res.layer)))
	}

	if failed == len(Layers) {
		span.RecordError(errors.ErrNoContextAvailable)
		span.SetStatus(otel.StatusError, "all layers failed")
		a.metrics.Counter(otel.MetricAssemblyEmpty).Add(ctx, 1)
		return nil, errors.ErrNoContextAvailable
	}

	span.AddEvent(string(PhaseBudgeting))
	assembled, err := a.budgets.Allocate(candidates, budget)
	if err != nil {
		return nil, err
	}
	assembled.Degraded = failed > 0

	span.AddEvent(string(PhaseAssembled))
	span.SetAttributes(
		otel.Degraded(assembled.Degraded),
		otel.TokensTotal(assembled.TotalTokens),
		otel.ItemCount(len(assembled.Items)),
	)

	a.metrics.Histogram(otel.MetricAssemblyDuration).Record(ctx,
		float64(time.Since(start).Milliseconds()))
	a.metrics.Histogram(otel.MetricAssemblyItems).Record(ctx, float64(len(assembled.Items)))
	a.metrics.Counter(otel.MetricAssemblyTokens).Add(ctx, int64(assembled.TotalTokens))
	if assembled.Degraded {
		a.metrics.Counter(otel.MetricAssemblyDegraded).Add(ctx, 1)
	}

	return assembled, nil
}

// resolveMilestone 解析前置里程碑集合和知识领域键。
// 解析失败不会中断装配，只是失去依赖加分和知识检索范围。
func (a *Assembler) resolveMilestone(ctx context.Context, milestoneID string) (map[string]struct{}, []string) {
	if a.resolver == nil {
		return nil, nil
	}

	var prereqs map[string]struct{}
	ids, err := a.resolver.Prerequisites(ctx, milestoneID)
	if err != nil {
		a.logger.WithContext(ctx).Warn("prerequisite lookup failed",
			"milestone_id", milestoneID, "error", err)
	} else if len(ids) > 0 {
		prereqs = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			prereqs[id] = struct{}{}
		}
	}

	keys, err := a.resolver.DomainKeys(ctx, milestoneID)
	if err != nil {
		a.logger.WithContext(ctx).Warn("domain key lookup failed",
			"milestone_id", milestoneID, "error", err)
		keys = nil
	}

	return prereqs, keys
}

// embedQuery 嵌入查询文本。失败时旅程层整体跳过（降级），不是硬错误。
func (a *Assembler) embedQuery(ctx context.Context, queryText string) ([]float32, error) {
	if a.embedder == nil {
		return nil, errors.ErrEmbeddingUnavailable
	}

	a.metrics.Counter(otel.MetricEmbeddingRequests).Add(ctx, 1)
	vecs, err := a.embedder.Embed(ctx, []string{queryText})
	if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
		a.metrics.Counter(otel.MetricEmbeddingErrors).Add(ctx, 1)
		a.logger.WithContext(ctx).Warn("query embedding failed, skipping journey layer", "error", err)
		return nil, errors.WrapError(errors.ErrEmbeddingUnavailable, "embed query")
	}

	return vecs[0], nil
}

// fetchAll 并发获取三层候选，阻塞直到每层完成或被截止时间取消。
// 单层超时记为该层失败，不影响其他层。
func (a *Assembler) fetchAll(ctx context.Context, req ContextRequest, queryVec []float32, embedErr error, domainKeys []string) []layerResult {
	ch := make(chan layerResult, len(Layers))

	go a.fetchLayer(ctx, ch, LayerSession, func(ctx context.Context) ([]ContextItem, error) {
		return a.fetchSession(ctx, req)
	})

	go a.fetchLayer(ctx, ch, LayerJourney, func(ctx context.Context) ([]ContextItem, error) {
		if embedErr != nil {
			return nil, embedErr
		}
		if a.journeys == nil {
			return nil, errors.WrapError(errors.ErrStoreUnavailable, "journey store not configured")
		}
		return a.journeys.Search(ctx, req.UserID, queryVec, a.journeyLimit, req.MilestoneID)
	})

	go a.fetchLayer(ctx, ch, LayerKnowledge, func(ctx context.Context) ([]ContextItem, error) {
		if a.knowledge == nil {
			return nil, errors.WrapError(errors.ErrStoreUnavailable, "knowledge store not configured")
		}
		if len(domainKeys) == 0 {
			return nil, nil
		}
		return a.knowledge.Lookup(ctx, domainKeys)
	})

	results := make([]layerResult, 0, len(Layers))
	for range Layers {
		results = append(results, <-ch)
	}

	return results
}

// fetchLayer 执行单层获取并保证在截止时间内返回结果。
func (a *Assembler) fetchLayer(ctx context.Context, ch chan<- layerResult, layer SourceLayer, fn func(context.Context) ([]ContextItem, error)) {
	start := time.Now()
	done := make(chan layerResult, 1)

	go func() {
		items, err := fn(ctx)
		done <- layerResult{layer: layer, items: items, err: err}
	}()

	var res layerResult
	select {
	case res = <-done:
		if res.err != nil && ctx.Err() != nil {
			// 截止时间触发的取消统一归为层超时
			res = layerResult{layer: layer, err: errors.WrapError(errors.ErrLayerTimeout, string(layer))}
		}
	case <-ctx.Done():
		res = layerResult{layer: layer, err: errors.WrapError(errors.ErrLayerTimeout, string(layer))}
	}

	a.metrics.Histogram(otel.MetricLayerFetchDuration).Record(ctx,
		float64(time.Since(start).Milliseconds()),
		otel.NewAttr(otel.AttrLayer, string(layer)))

	ch <- res
}

// fetchSession 获取会话层候选并转换为上下文条目。
func (a *Assembler) fetchSession(ctx context.Context, req ContextRequest) ([]ContextItem, error) {
	if a.sessions == nil {
		return nil, errors.WrapError(errors.ErrStoreUnavailable, "session store not configured")
	}

	state, err := a.sessions.Get(ctx, req.UserID, req.MilestoneID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	items := make([]ContextItem, 0, len(state.Exchanges))
	for _, ex := range state.Exchanges {
		items = append(items, ContextItem{
			ID:            ex.ID,
			SourceLayer:   LayerSession,
			Text:          ex.Role + ": " + ex.Content,
			MilestoneTags: []string{state.MilestoneID},
			CreatedAt:     ex.CreatedAt,
			TokenCount:    ex.TokenCount,
			RawScore:      1.0,
		})
	}

	return items, nil
}

// scoreAll 用任意 Scorer 为候选生成评分拷贝。
func scoreAll(s Scorer, items []ContextItem, now time.Time, prereqs map[string]struct{}) []ContextItem {
	if len(items) == 0 {
		return nil
	}

	scored := make([]ContextItem, 0, len(items))
	for _, it := range items {
		scored = append(scored, it.scored(s.Score(it, now, prereqs)))
	}
	return scored
}
