package config

import "errors"

// 配置验证相关错误
var (
	// ErrInvalidDeadline 截止时间无效
	ErrInvalidDeadline = errors.New("fetch deadline must not be negative")
	// ErrInvalidJourneyLimit 旅程候选数无效
	ErrInvalidJourneyLimit = errors.New("journey limit must not be negative")
)
