// Package openai embeds text through langchaingo's embeddings package, backed
// by an OpenAI-compatible API or an Ollama server.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"ragchat/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	hostedURL = "https://api.openai.com/v1"
	// localToken satisfies langchaingo for compatible servers that ignore auth.
	localToken = "unused"
)

// Client implements domain.Embedder on top of a langchaingo embedder.
// Failures are returned as-is; callers own any retry policy.
type Client struct {
	model     embeddings.Embedder
	name      string
	dimension int
}

// Config configures the embedder.
type Config struct {
	Provider  string
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// NewClient creates the provider's langchaingo client and wraps it in an
// embeddings.Embedder. Compatible servers at a custom BaseURL may run without
// an API key; the hosted OpenAI API may not.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = "text-embedding-3-small"
		}
		key := ""
		if cfg.APIKeyEnv != "" {
			key = os.Getenv(cfg.APIKeyEnv)
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = hostedURL
		}
		if key == "" {
			if cfg.BaseURL == hostedURL {
				return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
			}
			key = localToken
		}
		llm, err := lcopenai.New(
			lcopenai.WithToken(key),
			lcopenai.WithBaseURL(cfg.BaseURL),
			lcopenai.WithEmbeddingModel(cfg.Model),
			lcopenai.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		client = llm
	case ProviderOllama:
		if cfg.Model == "" {
			cfg.Model = "nomic-embed-text"
		}
		opts := []ollama.Option{ollama.WithModel(cfg.Model), ollama.WithHTTPClient(httpClient)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Client{model: model, name: cfg.Provider + ":" + cfg.Model, dimension: cfg.Dimension}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return c.name }

// Dimension returns the configured dimensionality of the embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.model.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("no embedding returned")
	}
	if len(vectors[0]) != c.dimension {
		return nil, fmt.Errorf("%w: %s returned %d values, want %d", domain.ErrDimensionMismatch, c.name, len(vectors[0]), c.dimension)
	}
	out := make([]float64, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float64(v)
	}
	return out, nil
}
