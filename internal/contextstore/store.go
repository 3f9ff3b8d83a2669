// Package contextstore provides persistent storage of memories for the local
// development backend.
package contextstore

import (
	"errors"
	"time"
)

// ErrNotInitialized is returned when the store is used before Initialize.
var ErrNotInitialized = errors.New("memory store not initialized")

// Record is a stored memory.
type Record struct {
	ID        string
	UserID    string
	Content   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// ScoredRecord is a search hit with its cosine similarity to the query.
type ScoredRecord struct {
	Record
	Similarity float64
}

// Stats summarises one user's memories.
type Stats struct {
	Total      int
	Categories map[string]int
	Oldest     time.Time
	Newest     time.Time
}

// MemoryStore stores memories together with their embeddings.
type MemoryStore interface {
	// Initialize opens the store at dbPath, creating the schema if needed.
	Initialize(dbPath string) error

	// Close closes the store and releases any resources.
	Close() error

	// Insert stores a record with its encoded embedding.
	Insert(rec Record, embedding []byte) error

	// Search returns the user's records whose similarity to queryEmbedding
	// is at least minSimilarity, best first, at most limit.
	Search(userID string, queryEmbedding []float32, limit int, minSimilarity float64) ([]ScoredRecord, error)

	// List returns the user's records, newest first, at most limit.
	List(userID string, limit int) ([]Record, error)

	// Delete removes a record owned by userID and reports whether it existed.
	Delete(userID, id string) (bool, error)

	// Stats summarises the user's records.
	Stats(userID string) (Stats, error)
}
