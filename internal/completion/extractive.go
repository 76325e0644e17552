// Package completion provides the answer generators used by knowledge bases.
package completion

import (
	"context"
	"sort"
	"strings"

	"ragchat/internal/domain"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/textproc"
)

// NoContextAnswer is returned when retrieval produced nothing to answer from.
const NoContextAnswer = "I could not find anything relevant to that in the uploaded documents."

// Extractive answers offline by quoting the retrieved sentences that best
// match the question.
type Extractive struct {
	maxSentences int
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Extractive{maxSentences: maxSentences}
}

func (e *Extractive) Name() string { return "extractive" }

// Condense folds the previous user question into very short follow-ups so
// retrieval has something to match on.
func (e *Extractive) Condense(_ context.Context, query string, history []domain.Turn) (string, error) {
	if len(textproc.Terms(query)) > 1 {
		return query, nil
	}
	// history ends with the question being asked
	for i := len(history) - 2; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content + " " + query, nil
		}
	}
	return query, nil
}

func (e *Extractive) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	if len(req.Context) == 0 {
		return NoContextAnswer, nil
	}
	type candidate struct {
		text   string
		source string
		score  float64
		rank   int
	}
	var cands []candidate
	seen := map[string]struct{}{}
	for _, r := range req.Context {
		for _, s := range textproc.Sentences(r.Chunk.Text) {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			cands = append(cands, candidate{text: s, source: r.Chunk.Source, rank: len(cands)})
		}
	}
	if len(cands) == 0 {
		return NoContextAnswer, nil
	}
	// sentences are weighted against each other; rare shared terms count most
	corpus := make([]string, len(cands))
	for i, c := range cands {
		corpus[i] = c.text
	}
	if vec, err := tfidf.Fit(corpus); err == nil {
		for i := range cands {
			cands[i].score = vec.Similarity(req.Query, cands[i].text)
		}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].score > cands[b].score })
	var picked []candidate
	for _, c := range cands[:min(e.maxSentences, len(cands))] {
		if c.score > 0 {
			picked = append(picked, c)
		}
	}
	if len(picked) == 0 {
		// nothing overlaps: fall back to the first retrieved sentence
		picked = []candidate{cands[0]}
	}
	sort.Slice(picked, func(a, b int) bool { return picked[a].rank < picked[b].rank })

	var b strings.Builder
	var sources []string
	srcSeen := map[string]struct{}{}
	for _, c := range picked {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(c.text)
		if _, ok := srcSeen[c.source]; !ok && c.source != "" {
			srcSeen[c.source] = struct{}{}
			sources = append(sources, c.source)
		}
	}
	if len(sources) > 0 {
		b.WriteString("\n\nSources: ")
		b.WriteString(strings.Join(sources, ", "))
	}
	return b.String(), nil
}
