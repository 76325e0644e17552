// Package hashing implements an offline embedder that projects the
// stopword-filtered terms of a text into a fixed number of buckets.
//
// Unlike a corpus-fitted TF-IDF vocabulary, the output dimension never depends
// on what has been indexed, so new documents can be embedded into an existing
// index without re-embedding the old ones.
package hashing

import (
	"context"
	"errors"
	"hash/fnv"
	"math"

	"ragchat/internal/textproc"
)

// DefaultDimension matches the small sentence-embedding models the index was
// originally sized for.
const DefaultDimension = 384

// Embedder is a signed feature-hashing embedder.
type Embedder struct {
	dimension int
}

// NewEmbedder creates an embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed term-frequency embedding for the given text.
// Text without any indexable term yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.dimension <= 0 {
		return nil, errors.New("hashing embedder has no dimension")
	}
	vec := make([]float64, e.dimension)
	tf := make(map[string]int)
	for _, tok := range textproc.Terms(text) {
		tf[tok]++
	}
	for tok, count := range tf {
		idx, sign := e.bucket(tok)
		// sublinear tf dampens long repetitive chunks
		vec[idx] += sign * (1 + math.Log(float64(count)))
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (e *Embedder) bucket(tok string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dimension)), sign
}
