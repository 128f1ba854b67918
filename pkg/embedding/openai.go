// Package embedding 提供查询嵌入客户端。
//
// 嵌入服务是外部协作方：失败时装配器跳过旅程层并降级，
// 因此这里的实现只做有限重试，不做长时间阻塞。
package embedding

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/engine"
)

// OpenAIEmbedder 基于 OpenAI 兼容 API 的嵌入实现。
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

// Options OpenAI 嵌入配置。
type Options struct {
	// APIKey API 密钥
	APIKey string
	// BaseURL 自定义端点（兼容 OpenAI 协议的服务）
	BaseURL string
	// Model 嵌入模型
	Model string
	// MaxRetries 最大重试次数
	MaxRetries int
	// RetryDelay 重试间隔
	RetryDelay time.Duration
}

// NewOpenAIEmbedder 创建 OpenAI 嵌入器。
func NewOpenAIEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.WrapError(errors.ErrInvalidConfig, "embedding API key is required")
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(config),
		model:      opts.Model,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}, nil
}

// Model 返回嵌入模型名称。
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed 将文本转换为向量。
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	var resp openai.EmbeddingResponse
	var err error

	for attempt := 0; ; attempt++ {
		resp, err = e.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}
		if attempt >= e.maxRetries {
			return nil, errors.WrapError(errors.ErrEmbeddingUnavailable, err.Error())
		}
		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			return nil, errors.WrapError(errors.ErrEmbeddingUnavailable, ctx.Err().Error())
		}
	}

	result := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		result[i] = data.Embedding
	}

	return result, nil
}

// 编译时接口检查
var _ engine.Embedder = (*OpenAIEmbedder)(nil)
