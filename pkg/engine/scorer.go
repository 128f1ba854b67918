package engine

import (
	"math"
	"time"
)

// Scorer 定义相关性评分接口。
type Scorer interface {
	// Score 计算条目的最终分数；必须是 (rawScore, age, 依赖匹配) 的纯函数
	Score(item ContextItem, now time.Time, prereqs map[string]struct{}) float64
}

// RelevanceScorer 默认评分实现。
//
// finalScore = rawScore * decay(age) + dependencyBonus。
// decay 为半衰期指数衰减：每经过一个半衰期分数减半，
// 等价于"较新的上下文权重翻倍"。
type RelevanceScorer struct {
	// HalfLife 衰减半衰期。
	HalfLife time.Duration

	// DependencyBonus 条目属于前置里程碑时的固定加分。
	DependencyBonus float64
}

// ScorerOption 配置 RelevanceScorer。
type ScorerOption func(*RelevanceScorer)

// WithHalfLife 设置衰减半衰期。
func WithHalfLife(d time.Duration) ScorerOption {
	return func(s *RelevanceScorer) {
		s.HalfLife = d
	}
}

// WithDependencyBonus 设置依赖加分。
func WithDependencyBonus(bonus float64) ScorerOption {
	return func(s *RelevanceScorer) {
		s.DependencyBonus = bonus
	}
}

// NewRelevanceScorer 创建默认评分器。
func NewRelevanceScorer(opts ...ScorerOption) *RelevanceScorer {
	s := &RelevanceScorer{
		HalfLife:        24 * time.Hour,
		DependencyBonus: 0.1,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Decay 返回给定年龄的衰减系数（单调不增，范围 (0, 1]）。
func (s *RelevanceScorer) Decay(age time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	if s.HalfLife <= 0 {
		return 1.0
	}
	return math.Exp2(-age.Seconds() / s.HalfLife.Seconds())
}

// Score 计算条目的最终分数。
//
// prereqs 是请求里程碑的前置里程碑集合；条目的任一标签命中即加分。
// 相同的 (rawScore, age, 依赖匹配) 输入始终得到相同输出。
func (s *RelevanceScorer) Score(item ContextItem, now time.Time, prereqs map[string]struct{}) float64 {
	score := item.RawScore * s.Decay(item.Age(now))

	for _, tag := range item.MilestoneTags {
		if _, ok := prereqs[tag]; ok {
			score += s.DependencyBonus
			break
		}
	}

	return score
}

// ScoreAll 返回带有最终分数的条目拷贝列表（原条目不变）。
func (s *RelevanceScorer) ScoreAll(items []ContextItem, now time.Time, prereqs map[string]struct{}) []ContextItem {
	if len(items) == 0 {
		return nil
	}

	scored := make([]ContextItem, 0, len(items))
	for _, it := range items {
		scored = append(scored, it.scored(s.Score(it, now, prereqs)))
	}
	return scored
}

// LessByRank 定义条目的全序排名：分数降序，平分时较新的在前，
// 仍平分时按 ID 升序。剪裁和最终排序都必须使用同一顺序，
// 以保证装配结果逐字节可复现。
func LessByRank(a, b ContextItem) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// 编译时接口检查
var _ Scorer = (*RelevanceScorer)(nil)
