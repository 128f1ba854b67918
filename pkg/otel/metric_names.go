package otel

// 预定义的指标名称
// 遵循 OpenTelemetry 语义约定
const (
	// 装配指标
	MetricAssemblyRequests = "context.assembly.requests" // 计数器: 装配请求次数
	MetricAssemblyDuration = "context.assembly.duration" // 直方图: 装配耗时(ms)
	MetricAssemblyDegraded = "context.assembly.degraded" // 计数器: 降级结果次数
	MetricAssemblyEmpty    = "context.assembly.empty"    // 计数器: 三层全部失败次数
	MetricAssemblyTokens   = "context.assembly.tokens"   // 计数器: 装配消耗 Token 总数
	MetricAssemblyItems    = "context.assembly.items"    // 直方图: 单次装配条目数

	// 存储层指标
	MetricLayerFetchDuration = "context.layer.fetch.duration" // 直方图: 单层获取耗时(ms)
	MetricLayerFailures      = "context.layer.failures"       // 计数器: 单层失败次数
	MetricLayerCandidates    = "context.layer.candidates"     // 直方图: 单层候选数

	// 会话指标
	MetricSessionAppends = "session.appends" // 计数器: 会话追加次数
	MetricSessionExpired = "session.expired" // 计数器: 读取时发现过期的次数

	// 嵌入指标
	MetricEmbeddingRequests = "embedding.requests"         // 计数器: 嵌入请求次数
	MetricEmbeddingErrors   = "embedding.errors"           // 计数器: 嵌入失败次数
	MetricEmbeddingDuration = "embedding.request.duration" // 直方图: 嵌入请求耗时(ms)

	// 知识缓存指标
	MetricKnowledgeCacheHits   = "knowledge.cache.hits"   // 计数器: 知识缓存命中
	MetricKnowledgeCacheMisses = "knowledge.cache.misses" // 计数器: 知识缓存未命中
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitSeconds      MetricUnit = "s"
	UnitBytes        MetricUnit = "By"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricAssemblyRequests, "Number of context assembly requests", UnitCount, "counter"},
	{MetricAssemblyDuration, "Duration of context assembly", UnitMilliseconds, "histogram"},
	{MetricAssemblyDegraded, "Number of degraded assembly results", UnitCount, "counter"},
	{MetricAssemblyEmpty, "Number of requests where all layers failed", UnitCount, "counter"},
	{MetricAssemblyTokens, "Total tokens included in assembled contexts", UnitCount, "counter"},
	{MetricAssemblyItems, "Number of items per assembled context", UnitCount, "histogram"},

	{MetricLayerFetchDuration, "Duration of per-layer fetches", UnitMilliseconds, "histogram"},
	{MetricLayerFailures, "Number of per-layer fetch failures", UnitCount, "counter"},
	{MetricLayerCandidates, "Number of candidates returned per layer", UnitCount, "histogram"},

	{MetricSessionAppends, "Number of session exchange appends", UnitCount, "counter"},
	{MetricSessionExpired, "Number of expired sessions observed on read", UnitCount, "counter"},

	{MetricEmbeddingRequests, "Number of embedding requests", UnitCount, "counter"},
	{MetricEmbeddingErrors, "Number of embedding errors", UnitCount, "counter"},
	{MetricEmbeddingDuration, "Duration of embedding requests", UnitMilliseconds, "histogram"},

	{MetricKnowledgeCacheHits, "Number of knowledge cache hits", UnitCount, "counter"},
	{MetricKnowledgeCacheMisses, "Number of knowledge cache misses", UnitCount, "counter"},
}
