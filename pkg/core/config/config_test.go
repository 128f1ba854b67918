package config_test

import (
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/config"
	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/store"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.MaxTokens != 8000 {
		t.Errorf("Engine.MaxTokens = %d, want 8000", cfg.Engine.MaxTokens)
	}
	if cfg.Engine.FetchDeadline != 100*time.Millisecond {
		t.Errorf("Engine.FetchDeadline = %v, want 100ms", cfg.Engine.FetchDeadline)
	}
	if cfg.Engine.HalfLife != 24*time.Hour {
		t.Errorf("Engine.HalfLife = %v, want 24h", cfg.Engine.HalfLife)
	}
	if cfg.Session.TTL != store.DefaultSessionTTL {
		t.Errorf("Session.TTL = %v, want default", cfg.Session.TTL)
	}
	if cfg.Journey.MinSimilarity != store.DefaultMinSimilarity {
		t.Errorf("Journey.MinSimilarity = %v, want default", cfg.Journey.MinSimilarity)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("Embedding.Model = %q, want text-embedding-3-small", cfg.Embedding.Model)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONTEXTENGINE_ENGINE__MAX_TOKENS", "4000")
	t.Setenv("CONTEXTENGINE_SESSION__BACKEND", "redis")
	t.Setenv("CONTEXTENGINE_EMBEDDING__MODEL", "text-embedding-3-large")
	t.Setenv("CONTEXTENGINE_OBSERVABILITY__LOGGING__LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.MaxTokens != 4000 {
		t.Errorf("Engine.MaxTokens = %d, want 4000", cfg.Engine.MaxTokens)
	}
	if cfg.Session.Backend != store.BackendRedis {
		t.Errorf("Session.Backend = %q, want redis", cfg.Session.Backend)
	}
	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Errorf("Embedding.Model = %q, want text-embedding-3-large", cfg.Embedding.Model)
	}
	if cfg.Observability.Logging.Level != "debug" {
		t.Errorf("Observability.Logging.Level = %q, want debug", cfg.Observability.Logging.Level)
	}
}

func TestLoad_ZeroShareDisablesLayer(t *testing.T) {
	t.Setenv("CONTEXTENGINE_ENGINE__SESSION_SHARE", "0")
	t.Setenv("CONTEXTENGINE_ENGINE__JOURNEY_SHARE", "0.7")
	t.Setenv("CONTEXTENGINE_ENGINE__KNOWLEDGE_SHARE", "0.3")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// 与非零份额一起配置的 0 份额不能被默认值顶掉
	if cfg.Engine.SessionShare != 0 {
		t.Errorf("Engine.SessionShare = %v, want 0 (layer disabled)", cfg.Engine.SessionShare)
	}
	if cfg.Engine.JourneyShare != 0.7 {
		t.Errorf("Engine.JourneyShare = %v, want 0.7", cfg.Engine.JourneyShare)
	}
	if cfg.Engine.KnowledgeShare != 0.3 {
		t.Errorf("Engine.KnowledgeShare = %v, want 0.3", cfg.Engine.KnowledgeShare)
	}
}

func TestEngineConfig_Budget(t *testing.T) {
	cfg := config.EngineConfig{
		MaxTokens:      1000,
		SessionShare:   0.3,
		JourneyShare:   0.4,
		KnowledgeShare: 0.2,
	}

	budget := cfg.Budget()
	if budget.MaxTokens != 1000 {
		t.Errorf("MaxTokens = %d, want 1000", budget.MaxTokens)
	}
	if budget.LayerShares[engine.LayerJourney] != 0.4 {
		t.Errorf("journey share = %v, want 0.4", budget.LayerShares[engine.LayerJourney])
	}
	if err := budget.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	bad := config.EngineConfig{
		MaxTokens:    1000,
		SessionShare: 0.8,
		JourneyShare: 0.8,
	}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() = nil, want error for shares above 1.0")
	}
}
