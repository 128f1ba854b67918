package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
// 遵循 OpenTelemetry 语义约定
const (
	// 装配相关属性
	AttrUserID      = "context.user_id"
	AttrMilestoneID = "context.milestone_id"
	AttrDegraded    = "context.degraded"
	AttrTokensTotal = "context.tokens.total"
	AttrItemCount   = "context.item_count"
	AttrPhase       = "context.phase"

	// 存储层相关属性
	AttrLayer        = "layer.name"
	AttrLayerCeiling = "layer.ceiling"
	AttrLayerBackend = "layer.backend"

	// 嵌入相关属性
	AttrEmbeddingModel     = "embedding.model"
	AttrEmbeddingDimension = "embedding.dimension"

	// Error 相关属性
	AttrErrorType      = "error.type"
	AttrErrorMessage   = "error.message"
	AttrErrorRetryable = "error.retryable"
)

// UserID 创建用户标识属性
func UserID(id string) attribute.KeyValue {
	return attribute.String(AttrUserID, id)
}

// MilestoneID 创建里程碑标识属性
func MilestoneID(id string) attribute.KeyValue {
	return attribute.String(AttrMilestoneID, id)
}

// Degraded 创建降级标志属性
func Degraded(degraded bool) attribute.KeyValue {
	return attribute.Bool(AttrDegraded, degraded)
}

// TokensTotal 创建装配 Token 总数属性
func TokensTotal(tokens int) attribute.KeyValue {
	return attribute.Int(AttrTokensTotal, tokens)
}

// ItemCount 创建装配条目数属性
func ItemCount(count int) attribute.KeyValue {
	return attribute.Int(AttrItemCount, count)
}

// Layer 创建存储层名称属性
func Layer(name string) attribute.KeyValue {
	return attribute.String(AttrLayer, name)
}

// LayerBackend 创建存储后端属性
func LayerBackend(backend string) attribute.KeyValue {
	return attribute.String(AttrLayerBackend, backend)
}

// EmbeddingModel 创建嵌入模型属性
func EmbeddingModel(model string) attribute.KeyValue {
	return attribute.String(AttrEmbeddingModel, model)
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string, retryable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
		attribute.Bool(AttrErrorRetryable, retryable),
	}
}
