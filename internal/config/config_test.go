package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Save original env and restore after test
	originalEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, env := range originalEnv {
			for i, c := range env {
				if c == '=' {
					os.Setenv(env[:i], env[i+1:])
					break
				}
			}
		}
	}()

	os.Clearenv()

	cfg := Load()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Port", cfg.Port, 8080},
		{"LogLevel", cfg.LogLevel, "info"},
		{"StoreProvider", cfg.StoreProvider, "postgres"},
		{"VectorProvider", cfg.VectorProvider, "pgvector"},
		{"QueueProvider", cfg.QueueProvider, "nats"},
		{"CacheProvider", cfg.CacheProvider, "noop"},
		{"LLMModel", cfg.LLMModel, "gpt-4o-mini"},
		{"EmbeddingModel", cfg.EmbeddingModel, "text-embedding-3-small"},
		{"EmbeddingDimension", cfg.EmbeddingDimension, 1024},
		{"ChunkTokens", cfg.ChunkTokens, 512},
		{"ChunkOverlap", cfg.ChunkOverlap, 50},
		{"TopK", cfg.TopK, 5},
		{"HistoryTurns", cfg.HistoryTurns, 6},
		{"StallAfter", cfg.StallAfter, 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	originalPort := os.Getenv("PORT")
	originalVector := os.Getenv("VECTOR_PROVIDER")
	defer func() {
		os.Setenv("PORT", originalPort)
		os.Setenv("VECTOR_PROVIDER", originalVector)
	}()

	os.Setenv("PORT", "9090")
	os.Setenv("VECTOR_PROVIDER", "memory")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.VectorProvider != "memory" {
		t.Errorf("expected vector provider 'memory', got %s", cfg.VectorProvider)
	}
}
