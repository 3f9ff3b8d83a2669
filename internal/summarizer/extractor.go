package summarizer

import (
	"regexp"
	"strings"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string
	Content string
}

var (
	sentenceEnd = regexp.MustCompile(`[.!?\n]+`)

	// Sentences that talk about the speaker are the ones worth keeping.
	firstPerson = regexp.MustCompile(`(?i)\b(i|i'm|i've|i'd|i'll|me|my|mine|we|our)\b`)

	// Questions and pleasantries carry no facts.
	smallTalk = regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you)\b`)
)

// FactExtractor picks self-describing sentences out of the user's turns.
type FactExtractor struct {
	summarizer Summarizer
	minWords   int
}

// NewFactExtractor creates an extractor that condenses each fact with s.
func NewFactExtractor(s Summarizer) *FactExtractor {
	if s == nil {
		s = NewBasicSummarizer(DefaultMaxSummaryLength)
	}
	return &FactExtractor{summarizer: s, minWords: 3}
}

// Extract returns the distinct facts stated by the user, in order. Assistant
// turns are ignored.
func (e *FactExtractor) Extract(turns []Turn) ([]string, error) {
	facts := make([]string, 0)
	seen := make(map[string]struct{})

	for _, turn := range turns {
		if turn.Role != "user" {
			continue
		}
		for _, sentence := range splitSentences(turn.Content) {
			if !e.isFact(sentence) {
				continue
			}
			fact, err := e.summarizer.Summarize(sentence)
			if err != nil {
				return nil, err
			}
			key := strings.ToLower(fact)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			facts = append(facts, fact)
		}
	}
	return facts, nil
}

func (e *FactExtractor) isFact(sentence string) bool {
	if strings.HasSuffix(sentence, "?") || smallTalk.MatchString(sentence) {
		return false
	}
	return len(strings.Fields(sentence)) >= e.minWords && firstPerson.MatchString(sentence)
}

// splitSentences splits text after each terminator, keeping the terminator
// (so questions stay recognisable) and trimming whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
