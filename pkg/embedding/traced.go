package embedding

import (
	"context"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/otel"
)

// TracedEmbedder 为任意嵌入实现附加追踪和指标。
type TracedEmbedder struct {
	inner   engine.Embedder
	model   string
	tracer  otel.Tracer
	metrics otel.Metrics
}

// TracedOption 配置 TracedEmbedder。
type TracedOption func(*TracedEmbedder)

// WithTracer 设置追踪器。
func WithTracer(tracer otel.Tracer) TracedOption {
	return func(e *TracedEmbedder) {
		e.tracer = tracer
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(metrics otel.Metrics) TracedOption {
	return func(e *TracedEmbedder) {
		e.metrics = metrics
	}
}

// WithModelName 设置属性中记录的模型名称。
func WithModelName(model string) TracedOption {
	return func(e *TracedEmbedder) {
		e.model = model
	}
}

// NewTracedEmbedder 包装一个嵌入实现。
func NewTracedEmbedder(inner engine.Embedder, opts ...TracedOption) *TracedEmbedder {
	e := &TracedEmbedder{
		inner:   inner,
		tracer:  otel.GetTracer(),
		metrics: otel.GetMetrics(),
	}

	if m, ok := inner.(interface{ Model() string }); ok {
		e.model = m.Model()
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Embed 执行嵌入并记录耗时、错误和模型属性。
func (e *TracedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := e.tracer.Start(ctx, "embedding.embed",
		otel.WithSpanKind(otel.SpanKindClient),
		otel.WithAttributes(otel.EmbeddingModel(e.model)),
	)
	defer span.End()

	start := time.Now()

	vecs, err := e.inner.Embed(ctx, texts)

	// 请求和错误计数由装配器负责，这里只记录耗时
	e.metrics.Histogram(otel.MetricEmbeddingDuration).Record(ctx,
		float64(time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return nil, err
	}

	span.SetStatus(otel.StatusOK, "")
	return vecs, nil
}

// 编译时接口检查
var _ engine.Embedder = (*TracedEmbedder)(nil)
