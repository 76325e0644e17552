package tui

import (
	"strings"

	"ragchat/internal/textproc"
)

// highlightBestSentence emphasises the sentence of an answer that shares the
// most terms with the question. A trailing "Sources:" block is left as is.
func highlightBestSentence(text, query string) string {
	body, sources, hasSources := strings.Cut(text, "\n\nSources: ")
	q := textproc.TermSet(query)
	sentences := textproc.Sentences(body)
	if len(q) == 0 || len(sentences) < 2 {
		return text
	}
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := textproc.Overlap(q, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 {
		return text
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	out := strings.Join(sentences, " ")
	if hasSources {
		out += "\n\nSources: " + sources
	}
	return out
}
