// Package config 提供配置加载和管理功能
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/store"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "CONTEXTENGINE_"

// Config 全局配置结构
type Config struct {
	// Engine 装配引擎配置
	Engine EngineConfig `koanf:"engine"`
	// Session 会话存储配置
	Session store.SessionConfig `koanf:"session"`
	// Journey 旅程存储配置
	Journey store.JourneyConfig `koanf:"journey"`
	// Knowledge 知识存储配置
	Knowledge store.KnowledgeConfig `koanf:"knowledge"`
	// Embedding 嵌入服务配置
	Embedding EmbeddingConfig `koanf:"embedding"`
	// Observability 可观测性配置
	Observability otel.Config `koanf:"observability"`
}

// EmbeddingConfig 嵌入服务配置
type EmbeddingConfig struct {
	// APIKey API 密钥
	APIKey string `koanf:"api_key"`
	// BaseURL 自定义端点
	BaseURL string `koanf:"base_url"`
	// Model 嵌入模型
	Model string `koanf:"model"`
	// MaxRetries 最大重试次数
	MaxRetries int `koanf:"max_retries"`
	// RetryDelay 重试间隔
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadEnv 从环境变量加载配置
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.Provider(prefix, ".", func(s string) string {
		// 转换环境变量名: CONTEXTENGINE_ENGINE__MAX_TOKENS -> engine.max_tokens
		// 双下划线是层级分隔符，单下划线保留在键名内
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil)
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// Get 获取配置值
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt 获取整数配置值
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool 获取布尔配置值
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Load 从环境变量加载完整配置并应用默认值
func Load() (*Config, error) {
	loader := NewLoader()

	if err := loader.LoadEnv(EnvPrefix); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults 应用默认配置值
func applyDefaults(cfg *Config) {
	cfg.Engine.applyDefaults()

	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = store.DefaultSessionTTL
	}
	if cfg.Session.MaxExchanges == 0 {
		cfg.Session.MaxExchanges = store.DefaultMaxExchanges
	}
	if cfg.Journey.MinSimilarity == 0 {
		cfg.Journey.MinSimilarity = store.DefaultMinSimilarity
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 2
	}
	if cfg.Embedding.RetryDelay == 0 {
		cfg.Embedding.RetryDelay = 200 * time.Millisecond
	}
}
