package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/easyops/contextengine-go/pkg/engine"
)

// ============================================================================
// SQLite Journey Store
// ============================================================================

// SQLiteJourneyStore SQLite 旅程存储
//
// 基于 SQLite 的持久化旅程存储。向量以 JSON 形式存储，
// 相似度在进程内计算，适用于单机生产环境。
type SQLiteJourneyStore struct {
	db            *sql.DB
	minSimilarity float64
}

// SQLiteJourneyOption 配置 SQLiteJourneyStore。
type SQLiteJourneyOption func(*SQLiteJourneyStore)

// WithSQLiteMinSimilarity 设置最小相似度阈值。
func WithSQLiteMinSimilarity(min float64) SQLiteJourneyOption {
	return func(s *SQLiteJourneyStore) {
		s.minSimilarity = min
	}
}

// NewSQLiteJourneyStore 创建 SQLite 旅程存储。
func NewSQLiteJourneyStore(dbPath string, opts ...SQLiteJourneyOption) (*SQLiteJourneyStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteJourneyStore{
		db:            db,
		minSimilarity: DefaultMinSimilarity,
	}

	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return store, nil
}

// initSchema 初始化表结构
func (s *SQLiteJourneyStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS journey_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		embedding TEXT NOT NULL,
		content TEXT,
		milestone_tags TEXT,
		token_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journey_user ON journey_records(user_id);
	CREATE INDEX IF NOT EXISTS idx_journey_user_created ON journey_records(user_id, created_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Add 追加一条旅程记录。记录只追加，创建后不再修改。
func (s *SQLiteJourneyStore) Add(ctx context.Context, rec engine.JourneyRecord) error {
	embedding, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	tags, err := json.Marshal(rec.MilestoneTags)
	if err != nil {
		return fmt.Errorf("failed to marshal milestone tags: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
	INSERT INTO journey_records (id, user_id, embedding, content, milestone_tags, token_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, string(embedding), rec.Content, string(tags), rec.TokenCount, createdAt.UnixMilli())
	return err
}

// Search 扫描用户的全部记录并按余弦相似度排名。
func (s *SQLiteJourneyStore) Search(ctx context.Context, userID string, queryEmbedding []float32, limit int, milestoneID string) ([]engine.ContextItem, error) {
	query := `SELECT id, embedding, content, milestone_tags, token_count, created_at
	FROM journey_records WHERE user_id = ?`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []engine.ContextItem
	for rows.Next() {
		var (
			id, embeddingStr, content, tagsStr string
			tokenCount                         int
			createdAt                          int64
		)
		if err := rows.Scan(&id, &embeddingStr, &content, &tagsStr, &tokenCount, &createdAt); err != nil {
			return nil, err
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingStr), &embedding); err != nil {
			continue // 跳过无效记录
		}

		var tags []string
		if tagsStr != "" {
			if err := json.Unmarshal([]byte(tagsStr), &tags); err != nil {
				continue
			}
		}

		if !matchesMilestone(tags, milestoneID) {
			continue
		}

		score, err := CosineSimilarity(queryEmbedding, embedding)
		if err != nil {
			return nil, err
		}
		if score < s.minSimilarity {
			continue
		}

		items = append(items, engine.ContextItem{
			ID:            id,
			SourceLayer:   engine.LayerJourney,
			Text:          content,
			Embedding:     embedding,
			MilestoneTags: tags,
			CreatedAt:     time.UnixMilli(createdAt),
			TokenCount:    tokenCount,
			RawScore:      score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

// Close 关闭连接
func (s *SQLiteJourneyStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// SQLite Knowledge Store
// ============================================================================

// SQLiteKnowledgeStore SQLite 知识存储
//
// 按领域键的主键查找，由外部摄取流程写入。
type SQLiteKnowledgeStore struct {
	db *sql.DB
}

// NewSQLiteKnowledgeStore 创建 SQLite 知识存储。
func NewSQLiteKnowledgeStore(dbPath string) (*SQLiteKnowledgeStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteKnowledgeStore{db: db}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return store, nil
}

// initSchema 初始化表结构
func (s *SQLiteKnowledgeStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS knowledge_entries (
		domain_key TEXT PRIMARY KEY,
		content TEXT,
		token_count INTEGER NOT NULL,
		last_updated INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// Put 写入或更新一条知识。
func (s *SQLiteKnowledgeStore) Put(ctx context.Context, entry engine.KnowledgeEntry) error {
	lastUpdated := entry.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	query := `
	INSERT INTO knowledge_entries (domain_key, content, token_count, last_updated)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(domain_key) DO UPDATE SET
		content = excluded.content,
		token_count = excluded.token_count,
		last_updated = excluded.last_updated
	`

	_, err := s.db.ExecContext(ctx, query, entry.DomainKey, entry.Content, entry.TokenCount, lastUpdated.UnixMilli())
	return err
}

// Lookup 按领域键返回知识条目，顺序与请求键的顺序一致。
func (s *SQLiteKnowledgeStore) Lookup(ctx context.Context, domainKeys []string) ([]engine.ContextItem, error) {
	if len(domainKeys) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(domainKeys))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(
		"SELECT domain_key, content, token_count, last_updated FROM knowledge_entries WHERE domain_key IN (%s)",
		placeholders,
	)

	args := make([]interface{}, len(domainKeys))
	for i, key := range domainKeys {
		args[i] = key
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[string]engine.ContextItem, len(domainKeys))
	for rows.Next() {
		var (
			key, content string
			tokenCount   int
			lastUpdated  int64
		)
		if err := rows.Scan(&key, &content, &tokenCount, &lastUpdated); err != nil {
			return nil, err
		}
		byKey[key] = engine.ContextItem{
			ID:          "knowledge:" + key,
			SourceLayer: engine.LayerKnowledge,
			Text:        content,
			CreatedAt:   time.UnixMilli(lastUpdated),
			TokenCount:  tokenCount,
			RawScore:    1.0,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 结果顺序跟随请求键的顺序，保证确定性
	var items []engine.ContextItem
	for _, key := range domainKeys {
		if it, ok := byKey[key]; ok {
			items = append(items, it)
		}
	}

	return items, nil
}

// Close 关闭连接
func (s *SQLiteKnowledgeStore) Close() error {
	return s.db.Close()
}

// 编译时接口检查
var _ engine.JourneyStore = (*SQLiteJourneyStore)(nil)
var _ engine.KnowledgeStore = (*SQLiteKnowledgeStore)(nil)
