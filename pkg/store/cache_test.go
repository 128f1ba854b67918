package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/store"
)

type countingKnowledgeStore struct {
	inner engine.KnowledgeStore
	calls int
}

func (c *countingKnowledgeStore) Lookup(ctx context.Context, domainKeys []string) ([]engine.ContextItem, error) {
	c.calls++
	return c.inner.Lookup(ctx, domainKeys)
}

func TestCachedKnowledgeStore_ReadThrough(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	inner := store.NewMemoryKnowledgeStore()
	if err := inner.Put(ctx, engine.KnowledgeEntry{DomainKey: "refund-policy", Content: "30 days", TokenCount: 5, LastUpdated: now}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	metrics := otel.NewInMemoryMetrics()
	counting := &countingKnowledgeStore{inner: inner}
	cached := store.NewCachedKnowledgeStore(counting,
		store.WithCacheTTL(time.Minute),
		store.WithCacheClock(func() time.Time { return now }),
		store.WithCacheMetrics(metrics),
	)

	for i := 0; i < 3; i++ {
		items, err := cached.Lookup(ctx, []string{"refund-policy"})
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("Lookup() returned %d items, want 1", len(items))
		}
	}

	if counting.calls != 1 {
		t.Errorf("inner store called %d times, want 1 (cache hit on repeats)", counting.calls)
	}
	if hits := metrics.GetCounterValue(otel.MetricKnowledgeCacheHits); hits != 2 {
		t.Errorf("cache hits = %d, want 2", hits)
	}
	if misses := metrics.GetCounterValue(otel.MetricKnowledgeCacheMisses); misses != 1 {
		t.Errorf("cache misses = %d, want 1", misses)
	}
}

func TestCachedKnowledgeStore_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	inner := store.NewMemoryKnowledgeStore()
	if err := inner.Put(ctx, engine.KnowledgeEntry{DomainKey: "shipping", Content: "2-5 days", TokenCount: 4, LastUpdated: now}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	counting := &countingKnowledgeStore{inner: inner}
	cached := store.NewCachedKnowledgeStore(counting,
		store.WithCacheTTL(time.Minute),
		store.WithCacheClock(func() time.Time { return now }),
	)

	if _, err := cached.Lookup(ctx, []string{"shipping"}); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cached.Lookup(ctx, []string{"shipping"}); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	if counting.calls != 2 {
		t.Errorf("inner store called %d times, want 2 (expired entry refetched)", counting.calls)
	}
}

func TestCachedKnowledgeStore_Invalidate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	inner := store.NewMemoryKnowledgeStore()
	if err := inner.Put(ctx, engine.KnowledgeEntry{DomainKey: "k", Content: "v1", TokenCount: 1, LastUpdated: now}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	cached := store.NewCachedKnowledgeStore(inner,
		store.WithCacheTTL(time.Hour),
		store.WithCacheClock(func() time.Time { return now }),
	)

	if _, err := cached.Lookup(ctx, []string{"k"}); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	if err := inner.Put(ctx, engine.KnowledgeEntry{DomainKey: "k", Content: "v2", TokenCount: 1, LastUpdated: now}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	cached.Invalidate()

	items, err := cached.Lookup(ctx, []string{"k"})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(items) != 1 || items[0].Text != "v2" {
		t.Errorf("Lookup() after Invalidate = %+v, want updated content v2", items)
	}
}
