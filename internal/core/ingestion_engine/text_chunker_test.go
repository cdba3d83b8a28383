package ingestion_engine

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentences builds n sentences of wordsPer unique words each.
func sentences(n, wordsPer int) string {
	var b strings.Builder
	w := 0
	for i := 0; i < n; i++ {
		for j := 0; j < wordsPer; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(fmt.Sprintf("w%d", w))
			w++
		}
		b.WriteString(". ")
	}
	return b.String()
}

// stitch removes the overlap between consecutive segments.
func stitch(segments []string) []string {
	var acc []string
	for _, s := range segments {
		words := strings.Fields(s)
		k := min(len(acc), len(words))
		for ; k > 0; k-- {
			if slices.Equal(acc[len(acc)-k:], words[:k]) {
				break
			}
		}
		acc = append(acc, words[k:]...)
	}
	return acc
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("   "))
	assert.Equal(t, 13, EstimateTokens(strings.Repeat("word ", 10)))
	assert.Equal(t, 2, EstimateTokens("one"))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("What is a DFA? Define it formally. Explain!\n\nPART B\nAnswer any two. Value of pi is 3.14 roughly")
	assert.Equal(t, []string{
		"What is a DFA?",
		"Define it formally.",
		"Explain!",
		"PART B\nAnswer any two.",
		"Value of pi is 3.14 roughly",
	}, got)
}

func TestSplitByTokensEmpty(t *testing.T) {
	c := DefaultTextChunker()
	assert.Empty(t, c.SplitByTokens(""))
	assert.Empty(t, c.SplitByTokens(" \n\n\t "))
}

func TestSplitByTokensShortTextIsOneSegment(t *testing.T) {
	c := DefaultTextChunker()
	got := c.SplitByTokens("Answer all questions.  Each carries ten marks.")
	assert.Equal(t, []string{"Answer all questions. Each carries ten marks."}, got)
}

func TestSplitByTokensLongTextProperties(t *testing.T) {
	c := DefaultTextChunker()
	text := sentences(300, 10)

	segments := c.SplitByTokens(text)
	require.Greater(t, len(segments), 1)

	for i, s := range segments {
		assert.NotEmpty(t, strings.TrimSpace(s), "segment %d", i)
		assert.LessOrEqual(t, EstimateTokens(s), c.Max+c.Min, "segment %d", i)
	}
	for i, s := range segments[:len(segments)-1] {
		assert.LessOrEqual(t, EstimateTokens(s), c.Max, "segment %d", i)
	}
	assert.Equal(t, strings.Fields(text), stitch(segments))
}

func TestSplitByTokensOverlapsBySentences(t *testing.T) {
	c := DefaultTextChunker()
	segments := c.SplitByTokens(sentences(100, 10))
	require.GreaterOrEqual(t, len(segments), 2)

	first := SplitSentences(segments[0])
	second := SplitSentences(segments[1])
	// three 13-token sentences fit in the 50 token overlap budget
	assert.Equal(t, first[len(first)-3:], second[:3])
}

func TestSplitByTokensCarriesLongLastSentence(t *testing.T) {
	c := DefaultTextChunker()
	// 45 words is 59 tokens: over the overlap budget, inside the headroom
	text := sentences(20, 45)
	segments := c.SplitByTokens(text)
	require.Len(t, segments, 2)

	first := SplitSentences(segments[0])
	second := SplitSentences(segments[1])
	assert.Equal(t, first[len(first)-1], second[0])
	assert.NotEqual(t, first[len(first)-2], second[0])
	assert.Equal(t, strings.Fields(text), stitch(segments))
}

func TestSplitByTokensNoOverlapBeyondHeadroom(t *testing.T) {
	c := DefaultTextChunker()
	// 80 words is 104 tokens, larger than the 100 token headroom
	segments := c.SplitByTokens(sentences(20, 80))
	require.GreaterOrEqual(t, len(segments), 2)

	first := SplitSentences(segments[0])
	second := SplitSentences(segments[1])
	assert.NotEqual(t, first[len(first)-1], second[0])
}

func TestSplitByTokensMergesShortTail(t *testing.T) {
	c := DefaultTextChunker()
	text := sentences(40, 10)

	segments := c.SplitByTokens(text)
	require.Len(t, segments, 1)
	assert.Equal(t, strings.Fields(text), strings.Fields(segments[0]))
}

func TestSplitByTokensForceSplitsOversizedSentence(t *testing.T) {
	c := DefaultTextChunker()
	words := make([]string, 1000)
	for i := range words {
		words[i] = fmt.Sprintf("t%d", i)
	}
	text := strings.Join(words, " ")

	segments := c.SplitByTokens(text)
	require.Greater(t, len(segments), 1)
	for _, s := range segments {
		assert.NotEmpty(t, s)
		assert.LessOrEqual(t, EstimateTokens(s), c.Max+c.Min)
	}
	assert.Equal(t, words, stitch(segments))
}

func TestSplitByTokensOversizedSentenceBetweenShortOnes(t *testing.T) {
	c := DefaultTextChunker()
	long := make([]string, 900)
	for i := range long {
		long[i] = fmt.Sprintf("x%d", i)
	}
	text := "Intro line one. Intro line two. " + strings.Join(long, " ") + ". Closing remark here."

	segments := c.SplitByTokens(text)
	assert.Equal(t, strings.Fields(text), stitch(segments))
	assert.True(t, strings.HasPrefix(segments[0], "Intro line one."))
}
