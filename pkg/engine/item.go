package engine

import (
	"time"

	"github.com/google/uuid"
)

// SourceLayer 表示上下文条目的来源层。
type SourceLayer string

const (
	// LayerSession 会话层（当前对话的短期状态）。
	LayerSession SourceLayer = "session"

	// LayerJourney 旅程层（用户的持久历史，支持相似度检索）。
	LayerJourney SourceLayer = "journey"

	// LayerKnowledge 知识层（共享参考资料，键值检索）。
	LayerKnowledge SourceLayer = "knowledge"
)

// Layers 固定的层优先级顺序（最贴近当前对话的在前）。
var Layers = []SourceLayer{LayerSession, LayerJourney, LayerKnowledge}

// Priority 返回层的优先级（0 = 最高，用于最终拼接顺序）。
func (l SourceLayer) Priority() int {
	switch l {
	case LayerSession:
		return 0
	case LayerJourney:
		return 1
	case LayerKnowledge:
		return 2
	default:
		return 3
	}
}

// ContextItem 表示一条候选上下文。
//
// 构造完成后不可变；评分阶段通过值拷贝生成带 FinalScore 的新条目。
type ContextItem struct {
	// ID 唯一标识
	ID string

	// SourceLayer 来源层
	SourceLayer SourceLayer

	// Text 条目文本内容
	Text string

	// Embedding 定长向量；知识层的关键词命中可为 nil
	Embedding []float32

	// MilestoneTags 此条目关联的里程碑（用于依赖加分）
	MilestoneTags []string

	// CreatedAt 创建时间
	CreatedAt time.Time

	// TokenCount Token 数量，入库时计算一次
	TokenCount int

	// RawScore 原始相似度分数（0-1）
	RawScore float64

	// FinalScore 经过新近性衰减和依赖加分后的最终分数
	FinalScore float64
}

// ItemOption 配置 ContextItem。
type ItemOption func(*ContextItem)

// WithItemID 设置条目 ID。
func WithItemID(id string) ItemOption {
	return func(it *ContextItem) {
		it.ID = id
	}
}

// WithEmbedding 设置条目向量。
func WithEmbedding(vec []float32) ItemOption {
	return func(it *ContextItem) {
		it.Embedding = vec
	}
}

// WithMilestoneTags 设置里程碑标签。
func WithMilestoneTags(tags ...string) ItemOption {
	return func(it *ContextItem) {
		it.MilestoneTags = tags
	}
}

// WithCreatedAt 设置创建时间。
func WithCreatedAt(ts time.Time) ItemOption {
	return func(it *ContextItem) {
		it.CreatedAt = ts
	}
}

// WithTokenCount 设置 Token 数量（跳过自动计算）。
func WithTokenCount(count int) ItemOption {
	return func(it *ContextItem) {
		it.TokenCount = count
	}
}

// WithRawScore 设置原始分数。
func WithRawScore(score float64) ItemOption {
	return func(it *ContextItem) {
		it.RawScore = score
	}
}

// NewContextItem 使用给定的文本、来源层和选项创建 ContextItem。
// 如果未提供，ID 自动生成，Token 数量自动计算。
func NewContextItem(text string, layer SourceLayer, opts ...ItemOption) ContextItem {
	it := ContextItem{
		Text:        text,
		SourceLayer: layer,
		CreatedAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(&it)
	}

	if it.ID == "" {
		it.ID = uuid.New().String()
	}

	if it.TokenCount == 0 {
		it.TokenCount = DefaultTokenCounter().Count(text)
	}

	return it
}

// Age 返回条目相对于 now 的年龄（负值按 0 处理）。
func (it ContextItem) Age(now time.Time) time.Duration {
	age := now.Sub(it.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}

// scored 返回带有最终分数的条目拷贝（保持原条目不可变）。
func (it ContextItem) scored(final float64) ContextItem {
	it.FinalScore = final
	return it
}

// ContextRequest 是一次装配请求。
type ContextRequest struct {
	// UserID 用户标识
	UserID string

	// MilestoneID 当前里程碑
	MilestoneID string

	// QueryText 当前用户输入，用于相似度检索
	QueryText string
}

// AssembledContext 是装配结果：去重、按层排序、预算内的条目序列。
type AssembledContext struct {
	// Items 最终条目序列
	Items []ContextItem

	// TotalTokens 已包含条目的 Token 总和
	TotalTokens int

	// Degraded 任一层失败或超时则为 true；降级结果仍然可用
	Degraded bool
}
