// Package store 提供三个上下文存储层的后端实现。
//
// 每个存储层都有内存实现（测试和轻量级场景）和持久化实现：
//
//   - 会话层：内存 map 或 Redis
//   - 旅程层：内存暴力扫描、SQLite 或 Qdrant
//   - 知识层：内存 map 或 SQLite，可叠加读穿缓存
//
// 所有实现满足 pkg/engine 中定义的存储契约。
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
)

// Backend 存储后端类型。
type Backend string

const (
	// BackendMemory 内存后端
	BackendMemory Backend = "memory"
	// BackendRedis Redis 后端（仅会话层）
	BackendRedis Backend = "redis"
	// BackendSQLite SQLite 后端（旅程层和知识层）
	BackendSQLite Backend = "sqlite"
	// BackendQdrant Qdrant 后端（仅旅程层）
	BackendQdrant Backend = "qdrant"
)

// SessionConfig 会话存储配置。
type SessionConfig struct {
	// Backend 后端类型（memory, redis）
	Backend Backend `koanf:"backend"`
	// TTL 会话存活时间
	TTL time.Duration `koanf:"ttl"`
	// MaxExchanges 滑动窗口大小
	MaxExchanges int `koanf:"max_exchanges"`
	// RedisURL Redis 连接串（backend=redis 时必填）
	RedisURL string `koanf:"redis_url"`
}

// JourneyConfig 旅程存储配置。
type JourneyConfig struct {
	// Backend 后端类型（memory, sqlite, qdrant）
	Backend Backend `koanf:"backend"`
	// Path SQLite 数据库路径
	Path string `koanf:"path"`
	// MinSimilarity 最小相似度阈值
	MinSimilarity float64 `koanf:"min_similarity"`
	// QdrantURL Qdrant 端点
	QdrantURL string `koanf:"qdrant_url"`
	// QdrantAPIKey Qdrant API 密钥
	QdrantAPIKey string `koanf:"qdrant_api_key"`
	// QdrantCollection Qdrant 集合名
	QdrantCollection string `koanf:"qdrant_collection"`
	// Dimensions 向量维度
	Dimensions int `koanf:"dimensions"`
}

// KnowledgeConfig 知识存储配置。
type KnowledgeConfig struct {
	// Backend 后端类型（memory, sqlite）
	Backend Backend `koanf:"backend"`
	// Path SQLite 数据库路径
	Path string `koanf:"path"`
	// CacheTTL 读穿缓存存活时间；0 表示不缓存
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// NewSessionStore 按配置创建会话存储。
func NewSessionStore(ctx context.Context, cfg SessionConfig) (engine.SessionStore, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		var opts []MemorySessionOption
		if cfg.TTL > 0 {
			opts = append(opts, WithSessionTTL(cfg.TTL))
		}
		if cfg.MaxExchanges > 0 {
			opts = append(opts, WithMaxExchanges(cfg.MaxExchanges))
		}
		return NewMemorySessionStore(opts...), nil
	case BackendRedis:
		var opts []RedisSessionOption
		if cfg.TTL > 0 {
			opts = append(opts, WithRedisTTL(cfg.TTL))
		}
		if cfg.MaxExchanges > 0 {
			opts = append(opts, WithRedisMaxExchanges(cfg.MaxExchanges))
		}
		return NewRedisSessionStoreFromURL(ctx, cfg.RedisURL, opts...)
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}

// NewJourneyStore 按配置创建旅程存储。
func NewJourneyStore(cfg JourneyConfig) (engine.JourneyStore, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		var opts []MemoryJourneyOption
		if cfg.MinSimilarity > 0 {
			opts = append(opts, WithMinSimilarity(cfg.MinSimilarity))
		}
		return NewMemoryJourneyStore(opts...), nil
	case BackendSQLite:
		var opts []SQLiteJourneyOption
		if cfg.MinSimilarity > 0 {
			opts = append(opts, WithSQLiteMinSimilarity(cfg.MinSimilarity))
		}
		return NewSQLiteJourneyStore(cfg.Path, opts...)
	case BackendQdrant:
		return NewQdrantJourneyStore(QdrantConfig{
			URL:           cfg.QdrantURL,
			APIKey:        cfg.QdrantAPIKey,
			Collection:    cfg.QdrantCollection,
			Dimensions:    cfg.Dimensions,
			MinSimilarity: cfg.MinSimilarity,
		})
	default:
		return nil, fmt.Errorf("unsupported journey backend: %s", cfg.Backend)
	}
}

// NewKnowledgeStore 按配置创建知识存储，CacheTTL > 0 时叠加读穿缓存。
func NewKnowledgeStore(cfg KnowledgeConfig) (engine.KnowledgeStore, error) {
	var (
		inner engine.KnowledgeStore
		err   error
	)

	switch cfg.Backend {
	case BackendMemory, "":
		inner = NewMemoryKnowledgeStore()
	case BackendSQLite:
		inner, err = NewSQLiteKnowledgeStore(cfg.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported knowledge backend: %s", cfg.Backend)
	}

	if cfg.CacheTTL > 0 {
		return NewCachedKnowledgeStore(inner, WithCacheTTL(cfg.CacheTTL)), nil
	}

	return inner, nil
}
