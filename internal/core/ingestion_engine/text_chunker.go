package ingestion_engine

import (
	"math"
	"regexp"
	"strings"
)

// maxOverlapSentences caps how many trailing sentences seed the next segment.
const maxOverlapSentences = 3

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+|\n\s*\n`)

// TextChunker splits text into token-bounded segments that overlap by a few sentences.
type TextChunker struct {
	Target  int
	Min     int
	Max     int
	Overlap int
}

func NewTextChunker(target, minTokens, maxTokens, overlap int) TextChunker {
	return TextChunker{Target: target, Min: minTokens, Max: maxTokens, Overlap: overlap}
}

func DefaultTextChunker() TextChunker {
	return NewTextChunker(500, 400, 600, 50)
}

// EstimateTokens approximates model tokens as words * 1.3.
func EstimateTokens(s string) int {
	return wordsToTokens(len(strings.Fields(s)))
}

func wordsToTokens(words int) int {
	return int(math.Ceil(float64(words) * 1.3))
}

func tokensToWords(tokens int) int {
	return int(math.Floor(float64(tokens) / 1.3))
}

// SplitSentences breaks text after ., ! or ? followed by whitespace, and at blank lines.
func SplitSentences(text string) []string {
	var out []string
	prev := 0
	for _, m := range sentenceBoundary.FindAllStringIndex(text, -1) {
		end := m[0]
		if strings.ContainsRune(".!?", rune(text[m[0]])) {
			end++
		}
		if s := strings.TrimSpace(text[prev:end]); s != "" {
			out = append(out, s)
		}
		prev = m[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		out = append(out, s)
	}
	return out
}

type piece struct {
	text    string
	tokens  int
	overlap bool
}

type segment struct {
	pieces []piece
	tokens int
	fresh  int
}

func (s *segment) add(p piece) {
	s.pieces = append(s.pieces, p)
	s.tokens += p.tokens
	if !p.overlap {
		s.fresh++
	}
}

func (s *segment) text() string {
	parts := make([]string, len(s.pieces))
	for i, p := range s.pieces {
		parts[i] = p.text
	}
	return strings.Join(parts, " ")
}

func (s *segment) freshText() string {
	var parts []string
	for _, p := range s.pieces {
		if !p.overlap {
			parts = append(parts, p.text)
		}
	}
	return strings.Join(parts, " ")
}

// SplitByTokens returns ordered, non-empty segments of text.
func (c TextChunker) SplitByTokens(text string) []string {
	var (
		out []string
		cur segment
	)

	closeCurrent := func() {
		if cur.fresh == 0 {
			cur = segment{}
			return
		}
		out = append(out, cur.text())
		cur = c.overlapSeed(cur)
	}

	for _, sentence := range SplitSentences(text) {
		tokens := EstimateTokens(sentence)

		if tokens > c.Max {
			closeCurrent()
			cur = c.forceSplit(sentence, &out)
			continue
		}

		if cur.tokens+tokens > c.Max {
			closeCurrent()
			if cur.tokens+tokens > c.Max {
				cur = segment{}
			}
		}
		cur.add(piece{text: sentence, tokens: tokens})
		if cur.tokens >= c.Target {
			closeCurrent()
		}
	}

	if cur.fresh == 0 {
		return out
	}
	if len(out) > 0 && cur.tokens < c.Min {
		out[len(out)-1] += " " + cur.freshText()
		return out
	}
	return append(out, cur.text())
}

// overlapSeed starts the next segment with the tail sentences of closed. The
// last sentence is always carried when it fits in the Max-Target headroom;
// earlier ones only while the Overlap budget lasts.
func (c TextChunker) overlapSeed(closed segment) segment {
	var seed segment
	if c.Overlap <= 0 {
		return seed
	}
	budget := c.Overlap
	start := len(closed.pieces)
	for i := len(closed.pieces) - 1; i >= 0 && len(closed.pieces)-i <= maxOverlapSentences; i-- {
		limit := budget
		if i == len(closed.pieces)-1 {
			limit = max(budget, c.Max-c.Target)
		}
		if closed.pieces[i].tokens > limit {
			break
		}
		budget -= closed.pieces[i].tokens
		start = i
	}
	for _, p := range closed.pieces[start:] {
		p.overlap = true
		seed.add(p)
	}
	return seed
}

// forceSplit cuts an oversized sentence at word boundaries. All windows but the
// last are emitted; the last one is returned as the open segment.
func (c TextChunker) forceSplit(sentence string, out *[]string) segment {
	words := strings.Fields(sentence)
	size := max(tokensToWords(c.Target), 1)
	overlap := tokensToWords(c.Overlap)
	if overlap >= size {
		overlap = 0
	}

	start := 0
	for {
		end := min(start+size, len(words))
		if end == len(words) {
			var seg segment
			if start > 0 && overlap > 0 {
				lead := words[start : start+min(overlap, end-start)]
				seg.add(piece{text: strings.Join(lead, " "), tokens: wordsToTokens(len(lead)), overlap: true})
				start += len(lead)
			}
			if start < end {
				rest := words[start:end]
				seg.add(piece{text: strings.Join(rest, " "), tokens: wordsToTokens(len(rest))})
			}
			return seg
		}
		*out = append(*out, strings.Join(words[start:end], " "))
		start = end - overlap
	}
}
