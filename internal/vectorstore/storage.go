package vectorstore

import (
	"context"

	"ragchat/internal/domain"
)

// Storage holds the vectors of one knowledge base and supports similarity
// search. The dimension is fixed by Init; Upsert appends without touching
// previously stored vectors.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Drop(ctx context.Context) error
}

// Factory opens a fresh, empty storage for the knowledge base with the given id.
type Factory func(ctx context.Context, kbID string) (Storage, error)
