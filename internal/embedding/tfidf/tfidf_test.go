package tfidf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	_, err := Fit([]string{"the and of", ""})
	require.ErrorIs(t, err, ErrNoTerms)

	v, err := Fit([]string{"Bees make honey.", "Bees live in hives."})
	require.NoError(t, err)
	assert.Equal(t, 5, v.Dimension())
}

func TestTransform(t *testing.T) {
	v, err := Fit([]string{"Bees make honey.", "Bees live in hives."})
	require.NoError(t, err)

	vec := v.Transform("honey bees honey")
	norm := 0.0
	for _, x := range vec {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
	assert.Equal(t, make([]float64, v.Dimension()), v.Transform("zebra"))
}

func TestSimilarity_RareTermsWeighMore(t *testing.T) {
	corpus := []string{
		"Tides rise twice a day.",
		"The moon causes ocean tides.",
		"Spring tides follow the full moon.",
	}
	v, err := Fit(corpus)
	require.NoError(t, err)

	q := "what causes tides"
	assert.Greater(t, v.Similarity(q, corpus[1]), v.Similarity(q, corpus[0]))
	assert.Zero(t, v.Similarity("zebra", corpus[0]))
}
