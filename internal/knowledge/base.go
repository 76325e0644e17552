// Package knowledge implements the per-session knowledge base: a similarity
// index that only ever grows, plus the chat engine bound to it.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ragchat/internal/chatlog"
	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// EmbeddingConfig is fixed when a knowledge base is created.
type EmbeddingConfig struct {
	Model     string
	Dimension int
}

// DocumentInfo describes an indexed document.
type DocumentInfo struct {
	ID     string
	Name   string
	Title  string
	Chunks int
}

// Builder creates knowledge bases sharing one set of collaborators.
type Builder struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	stores    vectorstore.Factory
	completer domain.Completer
	topK      int
	logger    *slog.Logger
	newID     func() string
}

// Option configures a Builder.
type Option func(*Builder)

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(b *Builder) {
		if k > 0 {
			b.topK = k
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithIDGenerator overrides knowledge base id generation.
func WithIDGenerator(f func() string) Option {
	return func(b *Builder) { b.newID = f }
}

func NewBuilder(chunker domain.Chunker, embedder domain.Embedder, stores vectorstore.Factory, completer domain.Completer, opts ...Option) *Builder {
	b := &Builder{
		chunker:   chunker,
		embedder:  embedder,
		stores:    stores,
		completer: completer,
		topK:      5,
		logger:    slog.Default(),
		newID:     func() string { return uuid.NewString()[:8] },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Base is a knowledge base handle. It is not safe for concurrent use.
type Base struct {
	id        string
	config    EmbeddingConfig
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     vectorstore.Storage
	completer domain.Completer
	topK      int
	logger    *slog.Logger

	docs   []DocumentInfo
	known  map[string]struct{}
	chunks []domain.Chunk
	engine *Engine
}

// Create builds a new knowledge base from scratch.
func (b *Builder) Create(ctx context.Context, docs []domain.Document) (*Base, error) {
	if len(docs) == 0 {
		return nil, domain.ErrEmptyInput
	}
	kb := &Base{
		id:        b.newID(),
		config:    EmbeddingConfig{Model: b.embedder.Name(), Dimension: b.embedder.Dimension()},
		chunker:   b.chunker,
		embedder:  b.embedder,
		completer: b.completer,
		topK:      b.topK,
		logger:    b.logger,
		known:     map[string]struct{}{},
	}
	if kb.config.Dimension <= 0 {
		return nil, domain.Upstream("create knowledge base", fmt.Errorf("embedder %s reports no dimension", kb.config.Model))
	}
	batch, err := kb.prepare(ctx, dedupe(docs, nil))
	if err != nil {
		return nil, err
	}
	if len(batch.chunks) == 0 {
		return nil, domain.ErrEmptyInput
	}
	store, err := b.stores(ctx, kb.id)
	if err != nil {
		return nil, domain.Upstream("open index", err)
	}
	if err := store.Init(ctx, kb.config.Dimension); err != nil {
		return nil, domain.Upstream("init index", err)
	}
	if err := store.Upsert(ctx, batch.chunks, batch.vectors); err != nil {
		_ = store.Drop(ctx)
		return nil, domain.Upstream("index documents", err)
	}
	kb.store = store
	kb.commit(batch)
	kb.logger.Info("knowledge base created", "kb", kb.id, "documents", len(batch.infos), "chunks", len(batch.chunks), "embedder", kb.config.Model, "dimension", kb.config.Dimension)
	return kb, nil
}

// Merge adds documents to the existing index without re-embedding what is
// already there. Documents already indexed are skipped. Nothing is inserted
// unless every new vector matches the knowledge base dimension. The chat
// engine is re-derived before Merge returns.
func (kb *Base) Merge(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return domain.ErrEmptyInput
	}
	fresh := dedupe(docs, kb.known)
	if len(fresh) == 0 {
		kb.logger.Info("merge skipped, documents already indexed", "kb", kb.id, "documents", len(docs))
		return nil
	}
	if d := kb.embedder.Dimension(); d != kb.config.Dimension {
		return domain.Upstream("merge documents", fmt.Errorf("%w: knowledge base uses %d, embedder produces %d", domain.ErrDimensionMismatch, kb.config.Dimension, d))
	}
	batch, err := kb.prepare(ctx, fresh)
	if err != nil {
		return err
	}
	if len(batch.chunks) == 0 {
		return domain.ErrEmptyInput
	}
	if err := kb.store.Upsert(ctx, batch.chunks, batch.vectors); err != nil {
		return domain.Upstream("index documents", err)
	}
	kb.commit(batch)
	kb.logger.Info("knowledge base merged", "kb", kb.id, "added_documents", len(batch.infos), "added_chunks", len(batch.chunks), "total_documents", len(kb.docs))
	return nil
}

// Answer replies to query using the conversation in history as context.
// history is expected to already contain the question (commit-then-generate).
func (kb *Base) Answer(ctx context.Context, query string, history []chatlog.Message) (string, error) {
	return kb.engine.Chat(ctx, query, chatlog.Turns(history))
}

// Search retrieves the chunks most relevant to query.
func (kb *Base) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	return kb.engine.Retrieve(ctx, query)
}

func (kb *Base) ID() string              { return kb.id }
func (kb *Base) Config() EmbeddingConfig { return kb.config }
func (kb *Base) ChunkCount() int         { return len(kb.chunks) }

// Documents lists the indexed documents in ingestion order.
func (kb *Base) Documents() []DocumentInfo {
	out := make([]DocumentInfo, len(kb.docs))
	copy(out, kb.docs)
	return out
}

// Close releases the index.
func (kb *Base) Close(ctx context.Context) error {
	return kb.store.Drop(ctx)
}

type preparedBatch struct {
	infos   []DocumentInfo
	chunks  []domain.Chunk
	vectors [][]float64
}

func (kb *Base) prepare(ctx context.Context, docs []domain.Document) (preparedBatch, error) {
	var batch preparedBatch
	for _, d := range docs {
		chunks, err := kb.chunker.Chunk(d)
		if err != nil {
			return preparedBatch{}, domain.Upstream("chunk "+d.Name, err)
		}
		if len(chunks) == 0 {
			continue
		}
		for _, ch := range chunks {
			vec, err := kb.embedder.Embed(ctx, ch.Text)
			if err != nil {
				return preparedBatch{}, domain.Upstream("embed "+d.Name, err)
			}
			if len(vec) != kb.config.Dimension {
				return preparedBatch{}, domain.Upstream("embed "+d.Name, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), kb.config.Dimension))
			}
			batch.vectors = append(batch.vectors, vec)
		}
		batch.chunks = append(batch.chunks, chunks...)
		batch.infos = append(batch.infos, DocumentInfo{ID: d.ID, Name: d.Name, Title: d.Title, Chunks: len(chunks)})
	}
	return batch, nil
}

// commit records an indexed batch and re-derives the engine so the next
// question sees it.
func (kb *Base) commit(batch preparedBatch) {
	for _, info := range batch.infos {
		kb.known[info.ID] = struct{}{}
	}
	kb.docs = append(kb.docs, batch.infos...)
	kb.chunks = append(kb.chunks, batch.chunks...)
	kb.engine = newEngine(kb.store, kb.embedder, kb.completer, kb.chunks, kb.topK)
}

// dedupe drops documents already in known or repeated within docs.
func dedupe(docs []domain.Document, known map[string]struct{}) []domain.Document {
	seen := map[string]struct{}{}
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if _, ok := known[d.ID]; ok {
			continue
		}
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}
