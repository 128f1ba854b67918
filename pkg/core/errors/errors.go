// Package errors 定义引擎的通用错误类型
package errors

import (
	"errors"
	"fmt"
)

// 通用错误
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidInput 输入无效
	ErrInvalidInput = errors.New("invalid input")
)

// 上下文装配相关错误
var (
	// ErrNoContextAvailable 所有层都失败，无法提供任何上下文
	ErrNoContextAvailable = errors.New("no context available: all layers failed")
	// ErrInvalidBudgetConfig 预算配置无效（份额之和超过 1.0 或 maxTokens <= 0）
	ErrInvalidBudgetConfig = errors.New("invalid budget configuration")
	// ErrLayerTimeout 单层获取超时
	ErrLayerTimeout = errors.New("layer fetch timeout")
	// ErrEmbeddingUnavailable 嵌入服务不可用
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrVectorDimensionMismatch 查询向量与存储向量维度不一致
	ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")
)

// 存储相关错误
var (
	// ErrNotFound 记录未找到
	ErrNotFound = errors.New("not found")
	// ErrSessionExpired 会话已过期
	ErrSessionExpired = errors.New("session expired")
	// ErrStoreUnavailable 存储后端不可用
	ErrStoreUnavailable = errors.New("store unavailable")
)

// 里程碑相关错误
var (
	// ErrMilestoneNotFound 里程碑未定义
	ErrMilestoneNotFound = errors.New("milestone not found")
)

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsRecoverable 判断错误是否可在装配过程中局部恢复
//
// 可恢复错误只会导致降级（degraded=true），不会中断装配。
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrLayerTimeout) ||
		errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrVectorDimensionMismatch) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsFatal 判断错误是否为致命错误（应直接返回给调用方）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNoContextAvailable) ||
		errors.Is(err, ErrInvalidBudgetConfig) ||
		errors.Is(err, ErrInvalidConfig)
}
