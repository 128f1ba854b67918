package engine

import (
	"math"
	"sort"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// shareEpsilon 容忍 layerShares 求和时的浮点误差。
const shareEpsilon = 1e-9

// ContextBudget 定义单次装配的 Token 预算。
type ContextBudget struct {
	// MaxTokens 总 Token 上限
	MaxTokens int

	// LayerShares 各层占总预算的份额，之和必须 <= 1.0；
	// 未列出的层份额为 0（该层不参与装配）
	LayerShares map[SourceLayer]float64
}

// DefaultBudget 返回默认预算（预留 10% 不分配）。
func DefaultBudget() ContextBudget {
	return ContextBudget{
		MaxTokens: 8000,
		LayerShares: map[SourceLayer]float64{
			LayerSession:   0.25,
			LayerJourney:   0.45,
			LayerKnowledge: 0.20,
		},
	}
}

// Validate 校验预算配置。
//
// maxTokens 必须为正，各层份额非负且总和不超过 1.0。
// 在任何存储访问之前校验，配置错误立即拒绝。
func (b ContextBudget) Validate() error {
	if b.MaxTokens <= 0 {
		return errors.WrapError(errors.ErrInvalidBudgetConfig, "maxTokens must be positive")
	}

	sum := 0.0
	for layer, share := range b.LayerShares {
		if share < 0 {
			return errors.WrapError(errors.ErrInvalidBudgetConfig, "negative share for layer "+string(layer))
		}
		sum += share
	}

	if sum > 1.0+shareEpsilon {
		return errors.WrapError(errors.ErrInvalidBudgetConfig, "layer shares sum exceeds 1.0")
	}

	return nil
}

// LayerCeiling 返回某层的绝对 Token 上限（向上取整）。
func (b ContextBudget) LayerCeiling(layer SourceLayer) int {
	share, ok := b.LayerShares[layer]
	if !ok || share <= 0 {
		return 0
	}
	return int(math.Ceil(float64(b.MaxTokens) * share))
}

// BudgetManager 在各层之间分配并强制执行 Token 上限。
type BudgetManager struct{}

// NewBudgetManager 创建预算管理器。
func NewBudgetManager() *BudgetManager {
	return &BudgetManager{}
}

// Allocate 对已评分的各层候选执行剪裁并合并为最终结果。
//
// 每层内按 LessByRank 排序后贪心装入：放不下的条目被跳过（而非截断），
// 继续检查后面分数更低但可能更小的候选。各层上限是硬性的，
// 未用满的份额不会转给其他层。幸存条目按层优先级顺序拼接，
// 跨层按 ID 去重（先到的层保留）。
func (m *BudgetManager) Allocate(candidatesByLayer map[SourceLayer][]ContextItem, budget ContextBudget) (*AssembledContext, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	result := &AssembledContext{}
	seen := make(map[string]struct{})

	// 份额向上取整可能使各层上限之和略超总预算，
	// 全局余量保证 totalTokens <= maxTokens 无条件成立
	remaining := budget.MaxTokens

	for _, layer := range Layers {
		candidates := candidatesByLayer[layer]
		if len(candidates) == 0 {
			continue
		}

		ceiling := budget.LayerCeiling(layer)
		if ceiling <= 0 {
			continue
		}

		ranked := make([]ContextItem, len(candidates))
		copy(ranked, candidates)
		sort.SliceStable(ranked, func(i, j int) bool {
			return LessByRank(ranked[i], ranked[j])
		})

		used := 0
		for _, it := range ranked {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			// 条目要么完整包含要么完整排除，不做截断
			if it.TokenCount <= 0 || used+it.TokenCount > ceiling || it.TokenCount > remaining {
				continue
			}
			seen[it.ID] = struct{}{}
			result.Items = append(result.Items, it)
			used += it.TokenCount
			remaining -= it.TokenCount
		}

		result.TotalTokens += used
	}

	return result, nil
}
