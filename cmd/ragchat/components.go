package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragchat/internal/chunker"
	"ragchat/internal/completion"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/hashing"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/extract"
	"ragchat/internal/knowledge"
	"ragchat/internal/service"
	"ragchat/internal/session"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

func buildManager(ctx context.Context, cfg *config.AppConfig, backend session.Backend, logger *slog.Logger) (*service.Manager, error) {
	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
	stores, err := buildStores(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	comp, err := buildCompleter(ctx, cfg.Completion)
	if err != nil {
		return nil, err
	}
	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	store, err := session.Open(ctx, backend, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	builder := knowledge.NewBuilder(ch, emb, stores, comp,
		knowledge.WithTopK(cfg.Completion.TopK),
		knowledge.WithLogger(logger),
	)
	logger.Info("components ready", "embedder", emb.Name(), "dimension", emb.Dimension(),
		"vector_store", cfg.VectorStore.Type, "completer", comp.Name(), "sessions", cfg.Sessions.Backend)
	return service.NewManager(store, extract.New(extract.WithLogger(logger)), builder, sum,
		service.WithSummarySentences(cfg.Summarizer.MaxSentences),
		service.WithLogger(logger),
	), nil
}

func buildEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Hashing.Dimension), nil
	case "openai":
		o := cfg.OpenAI
		client, err := openai.NewClient(openai.Config{
			Provider:  o.Provider,
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Dimension: o.Dimension,
			Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("%s embedder init failed: %w", o.Provider, err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func buildStores(cfg config.VectorStoreConfig) (vectorstore.Factory, error) {
	switch cfg.Type {
	case "memory":
		return memory.Factory(), nil
	case "qdrant":
		q := cfg.Qdrant
		return qdrant.Factory(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Distance:   q.Distance,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func buildCompleter(ctx context.Context, cfg config.CompletionConfig) (domain.Completer, error) {
	switch cfg.Type {
	case "extractive":
		return completion.NewExtractive(cfg.MaxSentences), nil
	case "langchain":
		model, err := completion.NewModel(ctx, completion.ModelConfig{
			Provider:  cfg.Provider,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
		})
		if err != nil {
			return nil, fmt.Errorf("completion model init failed: %w", err)
		}
		var opts []completion.LangChainOption
		if cfg.Temperature != nil {
			opts = append(opts, completion.WithTemperature(*cfg.Temperature))
		}
		if cfg.Condense != nil {
			opts = append(opts, completion.WithCondense(*cfg.Condense))
		}
		return completion.NewLangChain(model, cfg.Provider+"/"+cfg.Model, opts...), nil
	default:
		return nil, fmt.Errorf("unknown completer: %s", cfg.Type)
	}
}

func openBackend(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (session.Backend, error) {
	s := cfg.Sessions
	switch s.Backend {
	case "memory":
		return session.NewMemoryBackend(), nil
	case "file":
		return session.NewFileBackend(s.Dir, logger)
	case "redis":
		return session.NewRedisBackend(ctx, s.Redis.URL, s.Redis.Prefix, s.Redis.TTL(), logger)
	default:
		return nil, fmt.Errorf("unknown session backend: %s", s.Backend)
	}
}
