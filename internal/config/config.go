package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const appDir = "ragchat"

// OpenAIEmbedderConfig holds configuration for the langchaingo embedder.
// Provider is "openai" (any OpenAI-compatible API) or "ollama".
type OpenAIEmbedderConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
// Collection is a prefix; every knowledge base gets its own collection.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// CompletionConfig selects the answer generator.
type CompletionConfig struct {
	Type         string   `yaml:"type"`
	TopK         int      `yaml:"top_k"`
	MaxSentences int      `yaml:"max_sentences"`
	Provider     string   `yaml:"provider,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	BaseURL      string   `yaml:"base_url,omitempty"`
	APIKeyEnv    string   `yaml:"api_key_env,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	Condense     *bool    `yaml:"condense,omitempty"`
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Prefix   string `yaml:"prefix"`
	TTLHours int    `yaml:"ttl_hours"`
}

// TTL is zero when sessions never expire.
func (r RedisConfig) TTL() time.Duration { return time.Duration(r.TTLHours) * time.Hour }

// SessionsConfig selects where chat transcripts are kept.
type SessionsConfig struct {
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// LoggingConfig configures the rotating log file.
type LoggingConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Completion  CompletionConfig  `yaml:"completion"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserPath("config.yaml")
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types.
func (c *AppConfig) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"embedder.type", c.Embedder.Type, []string{"hashing", "openai"}},
		{"chunker.type", c.Chunker.Type, []string{"sentence"}},
		{"vector_store.type", c.VectorStore.Type, []string{"memory", "qdrant"}},
		{"summarizer.type", c.Summarizer.Type, []string{"frequency"}},
		{"completion.type", c.Completion.Type, []string{"extractive", "langchain"}},
		{"sessions.backend", c.Sessions.Backend, []string{"memory", "file", "redis"}},
	}
	if c.Embedder.Type == "openai" && c.Embedder.OpenAI != nil {
		checks = append(checks, struct {
			field, value string
			allowed      []string
		}{"embedder.openai.provider", c.Embedder.OpenAI.Provider, []string{"openai", "ollama"}})
	}
	if c.Completion.Type == "langchain" {
		checks = append(checks, struct {
			field, value string
			allowed      []string
		}{"completion.provider", c.Completion.Provider, []string{"openai", "ollama", "anthropic", "googleai"}})
	}
	var errs []error
	for _, ch := range checks {
		ok := false
		for _, a := range ch.allowed {
			ok = ok || ch.value == a
		}
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %v)", ch.field, ch.value, ch.allowed))
		}
	}
	return errors.Join(errs...)
}

func defaultUserPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDir, name), nil
}

func defaultDataDir() string {
	if p, err := defaultUserPath(""); err == nil {
		return p
	}
	return "." + appDir
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		Chunker:     ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Completion:  CompletionConfig{Type: "extractive"},
		Sessions:    SessionsConfig{Backend: "file"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.Provider == "" {
			o.Provider = "openai"
		}
		if o.Provider == "openai" {
			if o.BaseURL == "" {
				o.BaseURL = "https://api.openai.com/v1"
			}
			if o.APIKeyEnv == "" {
				o.APIKeyEnv = "OPENAI_API_KEY"
			}
			if o.Model == "" {
				o.Model = "text-embedding-3-small"
			}
			if o.Dimension == 0 {
				o.Dimension = 1536
			}
		}
		if o.Provider == "ollama" {
			if o.Model == "" {
				o.Model = "nomic-embed-text"
			}
			if o.Dimension == 0 {
				o.Dimension = 768
			}
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "ragchat"
		}
		if q.Distance == "" {
			q.Distance = "Cosine"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 10
		}
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}

	c := &cfg.Completion
	if c.Type == "" {
		c.Type = "extractive"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MaxSentences == 0 {
		c.MaxSentences = 3
	}
	if c.Type == "langchain" {
		if c.Provider == "" {
			c.Provider = "openai"
		}
		if c.Model == "" {
			c.Model = defaultModels[c.Provider]
		}
		if c.APIKeyEnv == "" {
			c.APIKeyEnv = defaultKeyEnvs[c.Provider]
		}
	}

	s := &cfg.Sessions
	if s.Backend == "" {
		s.Backend = "file"
	}
	if s.Dir == "" {
		s.Dir = filepath.Join(defaultDataDir(), "chat_history")
	}
	if s.Backend == "redis" {
		if s.Redis == nil {
			s.Redis = &RedisConfig{}
		}
		if s.Redis.URL == "" {
			s.Redis.URL = "redis://localhost:6379/0"
		}
		if s.Redis.Prefix == "" {
			s.Redis.Prefix = "ragchat:"
		}
	}

	l := &cfg.Logging
	if l.File == "" {
		l.File = filepath.Join(defaultDataDir(), "ragchat.log")
	}
	if l.Level == "" {
		l.Level = "info"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 5
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 30
	}
}

var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"ollama":    "llama3.2",
	"anthropic": "claude-3-5-haiku-latest",
	"googleai":  "gemini-2.5-flash",
}

var defaultKeyEnvs = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"googleai":  "GOOGLE_API_KEY",
}
