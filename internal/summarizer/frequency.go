package summarizer

import (
	"math"
	"sort"
	"strings"

	"ragchat/internal/textproc"
)

// FrequencySummarizer ranks sentences by normalized term frequency.
type FrequencySummarizer struct{}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

// Summarize returns up to maxSentences of the highest scoring sentences in
// their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := textproc.Sentences(text)
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " "), nil
	}
	freq := map[string]float64{}
	terms := make([][]string, len(sentences))
	maxF := 0.0
	for i, sent := range sentences {
		terms[i] = textproc.Terms(sent)
		for _, tok := range terms[i] {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i := range sentences {
		total := 0.0
		for _, tok := range terms[i] {
			total += freq[tok] / maxF
		}
		// length normalization keeps long sentences from dominating
		if n := len(textproc.Words(sentences[i])); n > 0 {
			total /= math.Sqrt(float64(n))
		}
		scores[i] = scored{i, total}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}
