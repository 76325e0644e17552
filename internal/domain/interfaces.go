package domain

import "context"

// RawFile is an uploaded file before extraction.
type RawFile struct {
	Name string
	Data []byte
}

// Document represents normalized text extracted from a single uploaded file.
type Document struct {
	ID       string
	Name     string
	Title    string
	Content  string
	Metadata map[string]string
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Turn is one prior conversational message handed to a completer.
type Turn struct {
	Role    string
	Content string
}

// CompletionRequest carries everything a completer needs to produce an answer.
type CompletionRequest struct {
	Query   string
	History []Turn
	Context []SearchResult
}

// Embedder converts free text into a vector of fixed dimensionality.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Completer turns a question, the conversation so far and retrieved context
// into a grounded answer.
type Completer interface {
	Name() string
	// Condense rewrites a follow-up question into a standalone one.
	Condense(ctx context.Context, query string, history []Turn) (string, error)
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
