package engine

import (
	"context"
	"time"
)

// Exchange 表示会话中的一轮对话。
type Exchange struct {
	// ID 唯一标识
	ID string

	// Role 发言角色（user 或 assistant）
	Role string

	// Content 发言内容
	Content string

	// TokenCount Token 数量，追加时计算一次
	TokenCount int

	// CreatedAt 发言时间
	CreatedAt time.Time
}

// SessionState 表示每个 (userId, milestoneId) 的会话状态。
//
// 由 Session Store 独占持有；同一用户的写入串行化。
type SessionState struct {
	// UserID 用户标识
	UserID string

	// MilestoneID 里程碑标识
	MilestoneID string

	// Exchanges 最近 N 轮对话（滑动窗口，有序）
	Exchanges []Exchange

	// ExpiresAt 过期时间；过期状态在读取时视为不存在
	ExpiresAt time.Time
}

// Live 返回会话状态在 now 时刻是否有效。
func (s *SessionState) Live(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// SessionStore 会话存储契约。
//
// 按 (userId, milestoneId) O(1) 查找；TTL 在读取时强制执行——
// 过期状态返回 nil 而不是错误。
type SessionStore interface {
	// Get 获取会话状态；不存在或已过期时返回 (nil, nil)
	Get(ctx context.Context, userID, milestoneID string) (*SessionState, error)

	// Append 追加一轮对话；同一用户的并发追加被串行化
	Append(ctx context.Context, userID, milestoneID string, ex Exchange) error
}

// JourneyStore 旅程存储契约。
//
// 按余弦相似度检索限定于 milestoneId（或无标签限制）的记录，
// 低于最小相似度阈值的候选在源头丢弃。请求路径只读。
type JourneyStore interface {
	// Search 返回至多 limit 条候选，RawScore 为余弦相似度
	Search(ctx context.Context, userID string, queryEmbedding []float32, limit int, milestoneID string) ([]ContextItem, error)
}

// KnowledgeStore 知识存储契约。
//
// 结构化键值检索（非相似度检索），确定且幂等：
// 底层数据不变时重复查询返回相同结果。
type KnowledgeStore interface {
	// Lookup 按领域键返回知识条目
	Lookup(ctx context.Context, domainKeys []string) ([]ContextItem, error)
}

// JourneyRecord 表示一条持久的旅程记录。只追加，创建后不再修改。
type JourneyRecord struct {
	// ID 唯一标识
	ID string

	// UserID 所属用户
	UserID string

	// Embedding 内容向量
	Embedding []float32

	// Content 记录内容
	Content string

	// MilestoneTags 此记录关联的里程碑；为空表示不限
	MilestoneTags []string

	// TokenCount Token 数量，入库时计算一次
	TokenCount int

	// CreatedAt 创建时间
	CreatedAt time.Time
}

// KnowledgeEntry 表示一条共享知识。由外部摄取流程写入，本引擎只读。
type KnowledgeEntry struct {
	// DomainKey 领域键
	DomainKey string

	// Content 知识内容
	Content string

	// TokenCount Token 数量
	TokenCount int

	// LastUpdated 最后更新时间
	LastUpdated time.Time
}

// Embedder 嵌入服务契约（外部协作方）。
type Embedder interface {
	// Embed 将文本转换为向量
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// MilestoneResolver 里程碑元数据解析契约。
//
// 提供依赖加分所需的前置里程碑集合，以及知识层检索使用的领域键。
type MilestoneResolver interface {
	// Prerequisites 返回里程碑的前置里程碑列表
	Prerequisites(ctx context.Context, milestoneID string) ([]string, error)

	// DomainKeys 返回里程碑关联的知识领域键
	DomainKeys(ctx context.Context, milestoneID string) ([]string, error)
}
