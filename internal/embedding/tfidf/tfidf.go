// Package tfidf fits a TF-IDF vocabulary over a small, fixed corpus. Its
// dimension depends on the corpus, so it scores text against that corpus
// only and never feeds a persistent index.
package tfidf

import (
	"errors"
	"math"
	"sort"

	"ragchat/internal/textproc"
)

// ErrNoTerms is returned by Fit when the corpus has no indexable terms.
var ErrNoTerms = errors.New("no terms found in corpus")

// Vectorizer maps text to TF-IDF vectors over the vocabulary of its corpus.
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// Fit builds the vocabulary and IDF values from the provided corpus.
func Fit(corpus []string) (*Vectorizer, error) {
	df := make(map[string]int)
	for _, text := range corpus {
		for tok := range textproc.TermSet(text) {
			df[tok]++
		}
	}
	if len(df) == 0 {
		return nil, ErrNoTerms
	}
	// stable ordering for the vocabulary
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	v := &Vectorizer{vocabulary: make(map[string]int, len(terms)), idf: make([]float64, len(terms))}
	n := float64(len(corpus))
	for i, term := range terms {
		v.vocabulary[term] = i
		// smoothed IDF
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return v, nil
}

// Dimension is the vocabulary size.
func (v *Vectorizer) Dimension() int { return len(v.idf) }

// Transform computes the L2-normalised TF-IDF vector of text. Terms outside
// the vocabulary are ignored.
func (v *Vectorizer) Transform(text string) []float64 {
	vec := make([]float64, len(v.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range textproc.Terms(text) {
		if idx, ok := v.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	norm := 0.0
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * v.idf[idx]
		norm += vec[idx] * vec[idx]
	}
	norm = math.Sqrt(norm)
	for idx := range tf {
		vec[idx] /= norm
	}
	return vec
}

// Similarity is the cosine similarity of a and b under the fitted vocabulary.
func (v *Vectorizer) Similarity(a, b string) float64 {
	va, vb := v.Transform(a), v.Transform(b)
	dot := 0.0
	for i := range va {
		dot += va[i] * vb[i]
	}
	return dot
}
