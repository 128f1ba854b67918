package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
)

// QdrantJourneyStore Qdrant 旅程存储
//
// 基于 Qdrant REST API 的向量检索实现。相似度过滤和排序由
// Qdrant 服务端完成，score_threshold 在源头丢弃低分候选。
type QdrantJourneyStore struct {
	baseURL       string
	apiKey        string
	collection    string
	dimensions    int
	minSimilarity float64
	httpClient    *http.Client
}

// QdrantConfig Qdrant 配置
type QdrantConfig struct {
	URL           string
	APIKey        string
	Collection    string
	Dimensions    int
	MinSimilarity float64
	Timeout       time.Duration
}

// NewQdrantJourneyStore 创建 Qdrant 旅程存储。
func NewQdrantJourneyStore(config QdrantConfig) (*QdrantJourneyStore, error) {
	if config.URL == "" {
		config.URL = "http://localhost:6333"
	}
	if config.Collection == "" {
		config.Collection = "journey"
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 1536
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = DefaultMinSimilarity
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &QdrantJourneyStore{
		baseURL:       config.URL,
		apiKey:        config.APIKey,
		collection:    config.Collection,
		dimensions:    config.Dimensions,
		minSimilarity: config.MinSimilarity,
		httpClient:    &http.Client{Timeout: config.Timeout},
	}, nil
}

// ensureCollection 确保集合存在
func (s *QdrantJourneyStore) ensureCollection(ctx context.Context) error {
	req, err := s.newRequest(ctx, "GET", fmt.Sprintf("/collections/%s", s.collection), nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	createBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.dimensions,
			"distance": "Cosine",
		},
	}

	req, err = s.newRequest(ctx, "PUT", fmt.Sprintf("/collections/%s", s.collection), createBody)
	if err != nil {
		return err
	}

	resp, err = s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to create collection: %s", string(body))
	}

	return nil
}

// Add 追加一条旅程记录。
func (s *QdrantJourneyStore) Add(ctx context.Context, rec engine.JourneyRecord) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{
				"id":     rec.ID,
				"vector": rec.Embedding,
				"payload": map[string]interface{}{
					"user_id":        rec.UserID,
					"content":        rec.Content,
					"milestone_tags": rec.MilestoneTags,
					"token_count":    rec.TokenCount,
					"created_at":     createdAt.UnixMilli(),
				},
			},
		},
	}

	req, err := s.newRequest(ctx, "PUT", fmt.Sprintf("/collections/%s/points", s.collection), body)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to upsert record: %s", string(respBody))
	}

	return nil
}

// Search 按余弦相似度检索用户的旅程记录。
func (s *QdrantJourneyStore) Search(ctx context.Context, userID string, queryEmbedding []float32, limit int, milestoneID string) ([]engine.ContextItem, error) {
	must := []map[string]interface{}{
		{
			"key":   "user_id",
			"match": map[string]interface{}{"value": userID},
		},
	}

	filter := map[string]interface{}{"must": must}
	if milestoneID != "" {
		// 无标签的记录不限定里程碑，也要命中
		filter["should"] = []map[string]interface{}{
			{
				"key":   "milestone_tags",
				"match": map[string]interface{}{"value": milestoneID},
			},
			{
				"is_empty": map[string]interface{}{"key": "milestone_tags"},
			},
		}
		filter["min_should"] = map[string]interface{}{"min_count": 1}
	}

	body := map[string]interface{}{
		"vector":          queryEmbedding,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": s.minSimilarity,
		"filter":          filter,
	}

	req, err := s.newRequest(ctx, "POST", fmt.Sprintf("/collections/%s/points/search", s.collection), body)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search failed: %s", string(respBody))
	}

	var result struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	items := make([]engine.ContextItem, 0, len(result.Result))
	for _, r := range result.Result {
		it := engine.ContextItem{
			ID:          r.ID,
			SourceLayer: engine.LayerJourney,
			RawScore:    r.Score,
		}

		if content, ok := r.Payload["content"].(string); ok {
			it.Text = content
		}
		if count, ok := r.Payload["token_count"].(float64); ok {
			it.TokenCount = int(count)
		}
		if createdAt, ok := r.Payload["created_at"].(float64); ok {
			it.CreatedAt = time.UnixMilli(int64(createdAt))
		}
		if tags, ok := r.Payload["milestone_tags"].([]interface{}); ok {
			for _, tag := range tags {
				if str, ok := tag.(string); ok {
					it.MilestoneTags = append(it.MilestoneTags, str)
				}
			}
		}

		items = append(items, it)
	}

	return items, nil
}

// newRequest 构建带认证头的请求
func (s *QdrantJourneyStore) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	return req, nil
}

// 编译时接口检查
var _ engine.JourneyStore = (*QdrantJourneyStore)(nil)
