// Package vector provides text embedding and vector similarity for the
// local development backend.
package vector

const (
	// DefaultEmbeddingDimensions is the size of vectors produced by the
	// hashing embedder.
	DefaultEmbeddingDimensions = 256
)

// Embedder converts text into a vector representation.
type Embedder interface {
	// CreateEmbedding converts text into a vector representation.
	CreateEmbedding(text string) ([]float32, error)

	// Initialize sets up the embedder with any required configuration.
	Initialize() error
}
