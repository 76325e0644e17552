package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 384, cfg.Embedder.Hashing.Dimension)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "extractive", cfg.Completion.Type)
	assert.Equal(t, "file", cfg.Sessions.Backend)
	assert.Equal(t, "chat_history", filepath.Base(cfg.Sessions.Dir))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
embedder:
  type: openai
  openai:
    model: nomic-embed-text
    base_url: http://localhost:11434/v1
    dimension: 768
vector_store:
  type: qdrant
completion:
  type: langchain
  provider: ollama
sessions:
  backend: redis
  redis:
    ttl_hours: 24
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nomic-embed-text", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 768, cfg.Embedder.OpenAI.Dimension)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "openai", cfg.Embedder.OpenAI.Provider)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "Cosine", cfg.VectorStore.Qdrant.Distance)
	assert.Equal(t, "llama3.2", cfg.Completion.Model)
	assert.Equal(t, 5, cfg.Completion.TopK)
	assert.Equal(t, "ragchat:", cfg.Sessions.Redis.Prefix)
	assert.Equal(t, 24*60*60.0, cfg.Sessions.Redis.TTL().Seconds())
	assert.Equal(t, 5, cfg.Chunker.SentencesPerChunk)
}

func TestLoad_RejectsUnknownTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: tfidf\nsessions:\n  backend: s3\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder.type")
	assert.Contains(t, err.Error(), "sessions.backend")
}

func TestLoad_ProviderDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
embedder:
  type: openai
  openai:
    provider: ollama
completion:
  type: langchain
  provider: googleai
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nomic-embed-text", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 768, cfg.Embedder.OpenAI.Dimension)
	assert.Empty(t, cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "gemini-2.5-flash", cfg.Completion.Model)
	assert.Equal(t, "GOOGLE_API_KEY", cfg.Completion.APIKeyEnv)
}

func TestLoad_RejectsUnknownProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "embedder:\n  type: openai\n  openai:\n    provider: cohere\ncompletion:\n  type: langchain\n  provider: mistral\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder.openai.provider")
	assert.Contains(t, err.Error(), "completion.provider")
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Completion.TopK = 8
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var console, file bytes.Buffer
	logger := SetupLoggerWithWriters(&console, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("session created", "id", "abc")

	assert.Contains(t, console.String(), "session created")
	assert.NotContains(t, console.String(), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &rec))
	assert.Equal(t, "session created", rec["msg"])
	assert.Equal(t, "abc", rec["id"])
}

func TestSetupLogger_FileOnly(t *testing.T) {
	cfg := defaultConfig().Logging
	cfg.File = filepath.Join(t.TempDir(), "logs", "ragchat.log")
	cfg.Level = "warn"

	logger, cleanup, err := SetupLogger(cfg)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.NotContains(t, string(data), "dropped")

	_, _, err = SetupLogger(LoggingConfig{File: cfg.File, Level: "loud"})
	assert.Error(t, err)
}
