package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/otel"
)

// RedisSessionStore Redis 会话存储
//
// 会话状态以 JSON 存储，Redis 键级 TTL 与状态内的过期时间双重兜底。
// 同一用户的追加通过进程内互斥锁串行化。
type RedisSessionStore struct {
	client       *redis.Client
	ttl          time.Duration
	maxExchanges int
	keyPrefix    string
	clock        func() time.Time
	metrics      otel.Metrics
	userLocks    sync.Map // userID -> *sync.Mutex
}

// RedisSessionOption 配置 RedisSessionStore。
type RedisSessionOption func(*RedisSessionStore)

// WithRedisTTL 设置会话存活时间。
func WithRedisTTL(ttl time.Duration) RedisSessionOption {
	return func(s *RedisSessionStore) {
		s.ttl = ttl
	}
}

// WithRedisMaxExchanges 设置滑动窗口大小。
func WithRedisMaxExchanges(n int) RedisSessionOption {
	return func(s *RedisSessionStore) {
		s.maxExchanges = n
	}
}

// WithRedisKeyPrefix 设置键前缀。
func WithRedisKeyPrefix(prefix string) RedisSessionOption {
	return func(s *RedisSessionStore) {
		s.keyPrefix = prefix
	}
}

// WithRedisClock 设置时间源（测试用）。
func WithRedisClock(clock func() time.Time) RedisSessionOption {
	return func(s *RedisSessionStore) {
		s.clock = clock
	}
}

// WithRedisMetrics 设置指标收集器。
func WithRedisMetrics(m otel.Metrics) RedisSessionOption {
	return func(s *RedisSessionStore) {
		s.metrics = m
	}
}

// NewRedisSessionStore 创建 Redis 会话存储。
func NewRedisSessionStore(client *redis.Client, opts ...RedisSessionOption) *RedisSessionStore {
	s := &RedisSessionStore{
		client:       client,
		ttl:          DefaultSessionTTL,
		maxExchanges: DefaultMaxExchanges,
		keyPrefix:    "session",
		clock:        time.Now,
		metrics:      otel.GetMetrics(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewRedisSessionStoreFromURL 从 Redis URL 创建会话存储并测试连接。
func NewRedisSessionStoreFromURL(ctx context.Context, redisURL string, opts ...RedisSessionOption) (*RedisSessionStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(parsed)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.WrapError(errors.ErrStoreUnavailable, "failed to connect to redis: "+err.Error())
	}

	return NewRedisSessionStore(client, opts...), nil
}

func (s *RedisSessionStore) key(userID, milestoneID string) string {
	return fmt.Sprintf("%s:%s:%s", s.keyPrefix, userID, milestoneID)
}

func (s *RedisSessionStore) userLock(userID string) *sync.Mutex {
	mu, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get 获取会话状态；不存在或已过期时返回 (nil, nil)。
func (s *RedisSessionStore) Get(ctx context.Context, userID, milestoneID string) (*engine.SessionState, error) {
	data, err := s.client.Get(ctx, s.key(userID, milestoneID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapError(errors.ErrStoreUnavailable, "failed to get session: "+err.Error())
	}

	var state engine.SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	// Redis TTL 之外再按状态内的过期时间兜底
	if !state.Live(s.clock()) {
		s.metrics.Counter(otel.MetricSessionExpired).Add(ctx, 1)
		return nil, nil
	}

	return &state, nil
}

// Append 追加一轮对话并刷新 TTL。
func (s *RedisSessionStore) Append(ctx context.Context, userID, milestoneID string, ex engine.Exchange) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()

	state, err := s.Get(ctx, userID, milestoneID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &engine.SessionState{
			UserID:      userID,
			MilestoneID: milestoneID,
		}
	}

	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = now
	}

	state.Exchanges = append(state.Exchanges, ex)
	if s.maxExchanges > 0 && len(state.Exchanges) > s.maxExchanges {
		state.Exchanges = state.Exchanges[len(state.Exchanges)-s.maxExchanges:]
	}
	state.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(userID, milestoneID), data, s.ttl).Err(); err != nil {
		return errors.WrapError(errors.ErrStoreUnavailable, "failed to set session: "+err.Error())
	}

	s.metrics.Counter(otel.MetricSessionAppends).Add(ctx, 1)
	return nil
}

// Close 关闭 Redis 连接
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// 编译时接口检查
var _ engine.SessionStore = (*RedisSessionStore)(nil)
