package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestBuild_Defaults(t *testing.T) {
	cfg := build(mapLookup(nil))

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 24, cfg.Chunking.MinCharacters)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, "random", cfg.RAG.SessionIDMode)
	assert.False(t, cfg.Ingest.PurgeExistingChunks)
	assert.Equal(t, 1, cfg.Ingest.Concurrency)
	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, []string{"localhost:6379"}, cfg.VectorStore.Redis.Addrs)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	require.NoError(t, cfg.Validate())
}

func TestBuild_Overrides(t *testing.T) {
	cfg := build(mapLookup(map[string]string{
		"INGEST_PURGE_EXISTING_CHUNKS": "true",
		"INGEST_CONCURRENCY":           "4",
		"CHAT_SESSION_ID_MODE":         "hash",
		"TIMEOUT_EMBEDDING":            "3s",
		"REDIS_ADDRS":                  "a:1, b:2,",
		"EMBEDDING_DIM":                "not-a-number",
	}))

	assert.True(t, cfg.Ingest.PurgeExistingChunks)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Equal(t, "hash", cfg.RAG.SessionIDMode)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Embedding)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.VectorStore.Redis.Addrs)
	assert.Equal(t, 1024, cfg.Embedding.Dimension, "invalid numbers fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero dimension", map[string]string{"EMBEDDING_DIM": "0"}},
		{"unknown backend", map[string]string{"VECTOR_BACKEND": "milvus"}},
		{"unknown storage", map[string]string{"STORAGE_BACKEND": "s3"}},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "llama"}},
		{"unknown session mode", map[string]string{"CHAT_SESSION_ID_MODE": "sticky"}},
		{"min above max", map[string]string{"CHUNK_SIZE": "20", "CHUNK_MIN_CHARACTERS": "24"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := build(mapLookup(tt.env))
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_YAMLUnderEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "vector_backend: redis\nredis_addrs:\n  - r1:6379\n  - r2:6379\nrag_top_k: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_TOP_K", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.VectorStore.Backend)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.VectorStore.Redis.Addrs)
	assert.Equal(t, 3, cfg.RAG.TopK, "environment wins over the file")
}
