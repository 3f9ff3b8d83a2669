package summarizer

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// BasicSummarizer shortens text to at most maxSummaryLen bytes, preferring
// to cut at a sentence boundary, then at a word boundary.
type BasicSummarizer struct {
	maxSummaryLen int
}

// NewBasicSummarizer creates a new BasicSummarizer instance.
func NewBasicSummarizer(maxSummaryLen int) *BasicSummarizer {
	if maxSummaryLen <= 0 {
		maxSummaryLen = 200
	}
	return &BasicSummarizer{
		maxSummaryLen: maxSummaryLen,
	}
}

// Initialize is a no-op.
func (s *BasicSummarizer) Initialize() error {
	return nil
}

// Summarize returns text unchanged when it fits, otherwise the longest
// prefix ending in a sentence terminator, otherwise a word-boundary prefix
// followed by an ellipsis. Cuts never split a UTF-8 sequence.
func (s *BasicSummarizer) Summarize(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) <= s.maxSummaryLen {
		return text, nil
	}

	truncated := text[:runeBoundary(text, s.maxSummaryLen)]
	if end := strings.LastIndexAny(truncated, ".?!"); end > 0 {
		return text[:end+1], nil
	}

	cut := runeBoundary(text, max(s.maxSummaryLen-len(ellipsis), 0))
	truncated = text[:cut]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		return text[:lastSpace] + ellipsis, nil
	}
	return truncated + ellipsis, nil
}

// runeBoundary returns the largest index <= n that starts a rune in text.
func runeBoundary(text string, n int) int {
	if n >= len(text) {
		return len(text)
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return n
}
