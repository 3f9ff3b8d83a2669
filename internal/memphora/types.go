package memphora

// Memory is a single remembered fact as returned by the Memphora API.
// Absent optional fields stay at their zero value: nil Metadata, nil
// Similarity and an empty CreatedAt.
type Memory struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Similarity *float64               `json:"similarity,omitempty"`
	CreatedAt  string                 `json:"created_at,omitempty"`
}

// SearchResult holds the memories matching a query in the order the remote
// service ranked them.
type SearchResult struct {
	Query      string   `json:"query"`
	Memories   []Memory `json:"memories"`
	SearchPath string   `json:"search_path,omitempty"`
	LatencyMS  *float64 `json:"latency_ms,omitempty"`
}

// Message is one turn of a conversation submitted for extraction.
type Message struct {
	Role    string `json:"role" mapstructure:"role"`
	Content string `json:"content" mapstructure:"content"`
}

// Float returns a pointer to f. Handy for building Memory values.
func Float(f float64) *float64 {
	return &f
}
