package knowledge

import (
	"context"
	"sort"

	"ragchat/internal/domain"
	"ragchat/internal/textproc"
	"ragchat/internal/vectorstore"
)

// Engine answers questions against one snapshot of a knowledge base index.
type Engine struct {
	store     vectorstore.Storage
	embedder  domain.Embedder
	completer domain.Completer
	chunks    []domain.Chunk
	topK      int
}

func newEngine(store vectorstore.Storage, embedder domain.Embedder, completer domain.Completer, chunks []domain.Chunk, topK int) *Engine {
	snapshot := make([]domain.Chunk, len(chunks))
	copy(snapshot, chunks)
	return &Engine{store: store, embedder: embedder, completer: completer, chunks: snapshot, topK: topK}
}

// Chat condenses the question, retrieves context for it and asks the
// completer for an answer. No step is retried.
func (e *Engine) Chat(ctx context.Context, query string, history []domain.Turn) (string, error) {
	standalone, err := e.completer.Condense(ctx, query, history)
	if err != nil {
		return "", domain.Upstream("condense question", err)
	}
	results, err := e.Retrieve(ctx, standalone)
	if err != nil {
		return "", err
	}
	answer, err := e.completer.Complete(ctx, domain.CompletionRequest{Query: query, History: history, Context: results})
	if err != nil {
		return "", domain.Upstream("complete answer", err)
	}
	return answer, nil
}

// Retrieve returns the top chunks for query, falling back to lexical overlap
// when the embedding carries no signal.
func (e *Engine) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.Upstream("embed query", err)
	}
	if isZero(vec) {
		return e.lexicalSearch(query), nil
	}
	res, err := e.store.Search(ctx, vec, e.topK)
	if err != nil {
		return nil, domain.Upstream("search index", err)
	}
	for _, r := range res {
		if r.Score > 1e-9 {
			return res, nil
		}
	}
	return e.lexicalSearch(query), nil
}

func (e *Engine) lexicalSearch(query string) []domain.SearchResult {
	qset := textproc.TermSet(query)
	out := make([]domain.SearchResult, 0, len(e.chunks))
	for _, ch := range e.chunks {
		if s := textproc.Ochiai(qset, ch.Text); s > 0 {
			out = append(out, domain.SearchResult{Chunk: ch, Score: s})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out[:min(e.topK, len(out))]
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
