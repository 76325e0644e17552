// Package textproc holds the tokenizer, stopword list and sentence splitter
// shared by chunking, embedding, summarizing and answer rendering.
package textproc

import (
	"math"
	"regexp"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	stopwords  = buildStopwords()
)

// Words returns the lower-cased word tokens of text, stopwords included.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Terms returns the lower-cased word tokens of text with stopwords removed.
func Terms(text string) []string {
	raw := Words(text)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TermSet returns the distinct non-stopword terms of text.
func TermSet(text string) map[string]struct{} {
	terms := Terms(text)
	m := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		m[t] = struct{}{}
	}
	return m
}

// IsStopword reports whether the lower-cased token is a stopword.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Sentences splits text into trimmed sentences. Text without terminal
// punctuation is returned as a single sentence.
func Sentences(text string) []string {
	raw := sentenceRe.FindAllString(text, -1)
	if len(raw) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	out := make([]string, 0, len(raw)+1)
	consumed := 0
	for _, s := range raw {
		consumed += len(s)
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	// trailing text after the last terminator
	if consumed < len(text) {
		if idx := strings.LastIndexAny(text, ".!?"); idx >= 0 {
			if tail := strings.TrimSpace(text[idx+1:]); tail != "" {
				out = append(out, tail)
			}
		}
	}
	return out
}

// Ochiai returns |A∩B| / sqrt(|A||B|) between the query term set and the
// distinct terms of text.
func Ochiai(query map[string]struct{}, text string) float64 {
	seen := TermSet(text)
	if len(query) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := query[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(query))*float64(len(seen)))
}

// Overlap counts the distinct terms of text that appear in the query set.
func Overlap(query map[string]struct{}, text string) int {
	score := 0
	for t := range TermSet(text) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "when", "where", "do", "does", "did", "i", "you", "me", "my", "we", "our", "your", "its", "tell",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
