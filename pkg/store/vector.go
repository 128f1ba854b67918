package store

import (
	"math"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// CosineSimilarity 计算两个向量的余弦相似度。
// 维度不一致时返回 ErrVectorDimensionMismatch。
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.ErrVectorDimensionMismatch
	}
	if len(a) == 0 {
		return 0, nil
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// matchesMilestone 判断旅程记录是否落在请求的里程碑范围内。
// 无标签的记录不限定里程碑，对所有请求可见。
func matchesMilestone(tags []string, milestoneID string) bool {
	if len(tags) == 0 || milestoneID == "" {
		return true
	}
	for _, tag := range tags {
		if tag == milestoneID {
			return true
		}
	}
	return false
}
