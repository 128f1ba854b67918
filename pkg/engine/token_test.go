package engine_test

import (
	"testing"

	"github.com/easyops/contextengine-go/pkg/engine"
)

func TestEstimatedCounter_Count(t *testing.T) {
	counter := engine.NewEstimatedCounter()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{
			name:     "empty string",
			text:     "",
			expected: 0,
		},
		{
			name:     "short text",
			text:     "hello",
			expected: 1, // 5 chars / 4 = 1
		},
		{
			name:     "longer text",
			text:     "hello world, this is a test",
			expected: 6, // 27 chars / 4 = 6
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := counter.Count(tt.text)
			if result != tt.expected {
				t.Errorf("Count(%q) = %d, want %d", tt.text, result, tt.expected)
			}
		})
	}
}

func TestDefaultTokenCounter(t *testing.T) {
	counter := engine.DefaultTokenCounter()
	if counter == nil {
		t.Fatal("DefaultTokenCounter() returned nil")
	}

	count := counter.Count("The quick brown fox jumps over the lazy dog")
	if count <= 0 {
		t.Errorf("Count() = %d, want positive", count)
	}
}

func TestTokenCounter_Stable(t *testing.T) {
	counter := engine.DefaultTokenCounter()

	text := "如何配置退款流程？Token counts must not change between calls."
	first := counter.Count(text)
	for i := 0; i < 10; i++ {
		if got := counter.Count(text); got != first {
			t.Fatalf("Count not stable: %d != %d", got, first)
		}
	}
}
