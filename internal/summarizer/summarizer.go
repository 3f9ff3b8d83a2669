// Package summarizer condenses text and extracts memorable facts from
// conversations for the local development backend.
package summarizer

const (
	// DefaultMaxSummaryLength is the default maximum length, in bytes, of a
	// stored memory.
	DefaultMaxSummaryLength = 500
)

// Summarizer condenses text.
type Summarizer interface {
	// Summarize takes a text input and returns a condensed summary.
	Summarize(text string) (string, error)

	// Initialize sets up the summarizer with any required configuration.
	Initialize() error
}
