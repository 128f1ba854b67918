package config

import (
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
)

// EngineConfig 装配引擎配置
type EngineConfig struct {
	// MaxTokens 总 Token 上限
	// 默认: 8000
	MaxTokens int `koanf:"max_tokens"`
	// SessionShare 会话层份额
	// 默认: 0.25
	SessionShare float64 `koanf:"session_share"`
	// JourneyShare 旅程层份额
	// 默认: 0.45
	JourneyShare float64 `koanf:"journey_share"`
	// KnowledgeShare 知识层份额
	// 默认: 0.20
	KnowledgeShare float64 `koanf:"knowledge_share"`
	// FetchDeadline 存储获取的共享截止时间
	// 默认: 100ms
	FetchDeadline time.Duration `koanf:"fetch_deadline"`
	// JourneyLimit 旅程层最大候选数
	// 默认: 10
	JourneyLimit int `koanf:"journey_limit"`
	// HalfLife 新近性衰减半衰期
	// 默认: 24h
	HalfLife time.Duration `koanf:"half_life"`
	// DependencyBonus 前置里程碑条目的固定加分
	// 默认: 0.1
	DependencyBonus float64 `koanf:"dependency_bonus"`
}

// applyDefaults 应用默认值
func (c *EngineConfig) applyDefaults() {
	defaults := engine.DefaultBudget()

	if c.MaxTokens == 0 {
		c.MaxTokens = defaults.MaxTokens
	}
	// 三个份额作为整体看待：只有全部未设置时才应用默认值。
	// 与非零份额同时配置的 0 表示禁用该层，不会被默认值覆盖。
	if c.SessionShare == 0 && c.JourneyShare == 0 && c.KnowledgeShare == 0 {
		c.SessionShare = defaults.LayerShares[engine.LayerSession]
		c.JourneyShare = defaults.LayerShares[engine.LayerJourney]
		c.KnowledgeShare = defaults.LayerShares[engine.LayerKnowledge]
	}
	if c.FetchDeadline == 0 {
		c.FetchDeadline = engine.DefaultFetchDeadline
	}
	if c.JourneyLimit == 0 {
		c.JourneyLimit = 10
	}
	if c.HalfLife == 0 {
		c.HalfLife = 24 * time.Hour
	}
	if c.DependencyBonus == 0 {
		c.DependencyBonus = 0.1
	}
}

// Budget 构造预算对象
func (c EngineConfig) Budget() engine.ContextBudget {
	return engine.ContextBudget{
		MaxTokens: c.MaxTokens,
		LayerShares: map[engine.SourceLayer]float64{
			engine.LayerSession:   c.SessionShare,
			engine.LayerJourney:   c.JourneyShare,
			engine.LayerKnowledge: c.KnowledgeShare,
		},
	}
}

// Validate 验证引擎配置
func (c EngineConfig) Validate() error {
	if err := c.Budget().Validate(); err != nil {
		return err
	}
	if c.FetchDeadline < 0 {
		return ErrInvalidDeadline
	}
	if c.JourneyLimit < 0 {
		return ErrInvalidJourneyLimit
	}
	return nil
}
