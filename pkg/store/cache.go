package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/otel"
)

// DefaultKnowledgeCacheTTL 知识缓存条目的默认存活时间。
const DefaultKnowledgeCacheTTL = 5 * time.Minute

// CachedKnowledgeStore 知识层的读穿缓存
//
// 知识由外部摄取流程低频更新，请求路径只读，
// 按领域键组合缓存完整的查询结果。
type CachedKnowledgeStore struct {
	inner   engine.KnowledgeStore
	ttl     time.Duration
	clock   func() time.Time
	metrics otel.Metrics

	entries map[string]cacheEntry
	mu      sync.Mutex
}

type cacheEntry struct {
	items     []engine.ContextItem
	expiresAt time.Time
}

// CacheOption 配置 CachedKnowledgeStore。
type CacheOption func(*CachedKnowledgeStore)

// WithCacheTTL 设置缓存存活时间。
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedKnowledgeStore) {
		c.ttl = ttl
	}
}

// WithCacheClock 设置时间源（测试用）。
func WithCacheClock(clock func() time.Time) CacheOption {
	return func(c *CachedKnowledgeStore) {
		c.clock = clock
	}
}

// WithCacheMetrics 设置指标收集器。
func WithCacheMetrics(m otel.Metrics) CacheOption {
	return func(c *CachedKnowledgeStore) {
		c.metrics = m
	}
}

// NewCachedKnowledgeStore 包装一个知识存储并缓存其查询结果。
func NewCachedKnowledgeStore(inner engine.KnowledgeStore, opts ...CacheOption) *CachedKnowledgeStore {
	c := &CachedKnowledgeStore{
		inner:   inner,
		ttl:     DefaultKnowledgeCacheTTL,
		clock:   time.Now,
		metrics: otel.GetMetrics(),
		entries: make(map[string]cacheEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Lookup 先查缓存，未命中或过期时回源并回填。
func (c *CachedKnowledgeStore) Lookup(ctx context.Context, domainKeys []string) ([]engine.ContextItem, error) {
	if len(domainKeys) == 0 {
		return nil, nil
	}

	key := strings.Join(domainKeys, "\x00")
	now := c.clock()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && now.Before(entry.expiresAt) {
		c.mu.Unlock()
		c.metrics.Counter(otel.MetricKnowledgeCacheHits).Add(ctx, 1)
		return entry.items, nil
	}
	c.mu.Unlock()

	c.metrics.Counter(otel.MetricKnowledgeCacheMisses).Add(ctx, 1)

	items, err := c.inner.Lookup(ctx, domainKeys)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{items: items, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return items, nil
}

// Invalidate 清空全部缓存条目（摄取流程更新知识后调用）。
func (c *CachedKnowledgeStore) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// 编译时接口检查
var _ engine.KnowledgeStore = (*CachedKnowledgeStore)(nil)
