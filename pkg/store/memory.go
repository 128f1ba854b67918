package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/otel"
)

// DefaultSessionTTL 会话的默认存活时间。
const DefaultSessionTTL = 30 * time.Minute

// DefaultMaxExchanges 会话滑动窗口保留的最大对话轮数。
const DefaultMaxExchanges = 50

// DefaultMinSimilarity 旅程检索的默认最小相似度阈值。
const DefaultMinSimilarity = 0.7

// ============================================================================
// Memory Session Store
// ============================================================================

// MemorySessionStore 内存会话存储
//
// 按 (userId, milestoneId) O(1) 查找。存储的状态是不可变快照，
// 追加以写时复制的方式替换快照，同一用户的追加由用户级互斥锁串行化；
// 读取不取任何锁，不同用户之间互不阻塞。
// TTL 在读取时强制执行，过期状态被惰性删除并按不存在处理；
// 追加会刷新过期时间并裁剪滑动窗口。
type MemorySessionStore struct {
	sessions     sync.Map // sessionKey -> *engine.SessionState（不可变快照）
	ttl          time.Duration
	maxExchanges int
	clock        func() time.Time
	metrics      otel.Metrics
	userLocks    sync.Map // userID -> *sync.Mutex
}

// MemorySessionOption 配置 MemorySessionStore。
type MemorySessionOption func(*MemorySessionStore)

// WithSessionTTL 设置会话存活时间。
func WithSessionTTL(ttl time.Duration) MemorySessionOption {
	return func(s *MemorySessionStore) {
		s.ttl = ttl
	}
}

// WithMaxExchanges 设置滑动窗口大小。
func WithMaxExchanges(n int) MemorySessionOption {
	return func(s *MemorySessionStore) {
		s.maxExchanges = n
	}
}

// WithSessionClock 设置时间源（测试用）。
func WithSessionClock(clock func() time.Time) MemorySessionOption {
	return func(s *MemorySessionStore) {
		s.clock = clock
	}
}

// WithSessionMetrics 设置指标收集器。
func WithSessionMetrics(m otel.Metrics) MemorySessionOption {
	return func(s *MemorySessionStore) {
		s.metrics = m
	}
}

// NewMemorySessionStore 创建内存会话存储。
func NewMemorySessionStore(opts ...MemorySessionOption) *MemorySessionStore {
	s := &MemorySessionStore{
		ttl:          DefaultSessionTTL,
		maxExchanges: DefaultMaxExchanges,
		clock:        time.Now,
		metrics:      otel.GetMetrics(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func sessionKey(userID, milestoneID string) string {
	return userID + "\x00" + milestoneID
}

func (s *MemorySessionStore) userLock(userID string) *sync.Mutex {
	mu, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get 获取会话状态；不存在或已过期时返回 (nil, nil)。
// 无锁读取，不同用户的并发读互不阻塞。
func (s *MemorySessionStore) Get(ctx context.Context, userID, milestoneID string) (*engine.SessionState, error) {
	key := sessionKey(userID, milestoneID)
	v, ok := s.sessions.Load(key)
	if !ok {
		return nil, nil
	}

	state := v.(*engine.SessionState)
	if !state.Live(s.clock()) {
		// 只删除读到的那个快照，不影响并发追加刚写入的新快照
		s.sessions.CompareAndDelete(key, v)
		s.metrics.Counter(otel.MetricSessionExpired).Add(ctx, 1)
		return nil, nil
	}

	// 返回拷贝，调用方不能改动存储内部状态
	cp := *state
	cp.Exchanges = make([]engine.Exchange, len(state.Exchanges))
	copy(cp.Exchanges, state.Exchanges)
	return &cp, nil
}

// Append 追加一轮对话。用户级互斥锁将同一用户的并发追加串行化，
// 不同用户的追加并行执行。已存储的快照不被修改，整体替换。
func (s *MemorySessionStore) Append(ctx context.Context, userID, milestoneID string, ex engine.Exchange) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	key := sessionKey(userID, milestoneID)

	next := &engine.SessionState{
		UserID:      userID,
		MilestoneID: milestoneID,
	}
	if v, ok := s.sessions.Load(key); ok {
		if prev := v.(*engine.SessionState); prev.Live(now) {
			next.Exchanges = append(next.Exchanges, prev.Exchanges...)
		}
	}

	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = now
	}

	next.Exchanges = append(next.Exchanges, ex)
	if s.maxExchanges > 0 && len(next.Exchanges) > s.maxExchanges {
		next.Exchanges = next.Exchanges[len(next.Exchanges)-s.maxExchanges:]
	}
	next.ExpiresAt = now.Add(s.ttl)

	s.sessions.Store(key, next)
	s.metrics.Counter(otel.MetricSessionAppends).Add(ctx, 1)
	return nil
}

// ============================================================================
// Memory Journey Store
// ============================================================================

// MemoryJourneyStore 内存旅程存储
//
// 只追加的记录列表，检索时对用户的全部记录做余弦相似度暴力扫描。
// 适用于测试和小规模数据集。
type MemoryJourneyStore struct {
	records       []engine.JourneyRecord
	minSimilarity float64
	mu            sync.RWMutex
}

// MemoryJourneyOption 配置 MemoryJourneyStore。
type MemoryJourneyOption func(*MemoryJourneyStore)

// WithMinSimilarity 设置最小相似度阈值。
func WithMinSimilarity(min float64) MemoryJourneyOption {
	return func(s *MemoryJourneyStore) {
		s.minSimilarity = min
	}
}

// NewMemoryJourneyStore 创建内存旅程存储。
func NewMemoryJourneyStore(opts ...MemoryJourneyOption) *MemoryJourneyStore {
	s := &MemoryJourneyStore{
		minSimilarity: DefaultMinSimilarity,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add 追加一条旅程记录。记录创建后不再修改。
func (s *MemoryJourneyStore) Add(ctx context.Context, rec engine.JourneyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Search 返回至多 limit 条按相似度排名的候选。
// 低于阈值的记录在源头丢弃；维度不一致立即报错。
func (s *MemoryJourneyStore) Search(ctx context.Context, userID string, queryEmbedding []float32, limit int, milestoneID string) ([]engine.ContextItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []engine.ContextItem
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if !matchesMilestone(rec.MilestoneTags, milestoneID) {
			continue
		}

		score, err := CosineSimilarity(queryEmbedding, rec.Embedding)
		if err != nil {
			return nil, err
		}
		if score < s.minSimilarity {
			continue
		}

		items = append(items, engine.ContextItem{
			ID:            rec.ID,
			SourceLayer:   engine.LayerJourney,
			Text:          rec.Content,
			Embedding:     rec.Embedding,
			MilestoneTags: rec.MilestoneTags,
			CreatedAt:     rec.CreatedAt,
			TokenCount:    rec.TokenCount,
			RawScore:      score,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RawScore != items[j].RawScore {
			return items[i].RawScore > items[j].RawScore
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items, nil
}

// ============================================================================
// Memory Knowledge Store
// ============================================================================

// MemoryKnowledgeStore 内存知识存储
//
// 按领域键的结构化查找。底层数据不变时重复查询返回相同结果。
type MemoryKnowledgeStore struct {
	entries map[string]engine.KnowledgeEntry
	mu      sync.RWMutex
}

// NewMemoryKnowledgeStore 创建内存知识存储。
func NewMemoryKnowledgeStore() *MemoryKnowledgeStore {
	return &MemoryKnowledgeStore{
		entries: make(map[string]engine.KnowledgeEntry),
	}
}

// Put 写入或更新一条知识。
func (s *MemoryKnowledgeStore) Put(ctx context.Context, entry engine.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.DomainKey] = entry
	return nil
}

// Lookup 按领域键返回知识条目，顺序与请求键的顺序一致。
// 不存在的键被静默跳过。
func (s *MemoryKnowledgeStore) Lookup(ctx context.Context, domainKeys []string) ([]engine.ContextItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []engine.ContextItem
	for _, key := range domainKeys {
		entry, ok := s.entries[key]
		if !ok {
			continue
		}
		items = append(items, engine.ContextItem{
			ID:          "knowledge:" + entry.DomainKey,
			SourceLayer: engine.LayerKnowledge,
			Text:        entry.Content,
			CreatedAt:   entry.LastUpdated,
			TokenCount:  entry.TokenCount,
			RawScore:    1.0,
		})
	}

	return items, nil
}

// 编译时接口检查
var _ engine.SessionStore = (*MemorySessionStore)(nil)
var _ engine.JourneyStore = (*MemoryJourneyStore)(nil)
var _ engine.KnowledgeStore = (*MemoryKnowledgeStore)(nil)
