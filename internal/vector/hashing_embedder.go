package vector

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// stopWords are dropped before hashing; they carry no topical signal.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "i": {}, "in": {}, "is": {}, "it": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "what": {},
	"where": {}, "with": {}, "me": {}, "do": {}, "am": {},
}

// HashingEmbedder maps text to a bag-of-words vector using the hashing
// trick: each token is hashed into a signed bucket and the result is
// normalised to unit length. Texts sharing words score a positive cosine
// similarity; unrelated texts score near zero.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a HashingEmbedder with the given dimensions.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Initialize is a no-op; the embedder has no external state.
func (e *HashingEmbedder) Initialize() error {
	return nil
}

// Dimensions returns the vector size.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// CreateEmbedding returns the normalised hashed bag of words for text. Text
// without any tokens yields the zero vector.
func (e *HashingEmbedder) CreateEmbedding(text string) ([]float32, error) {
	embedding := make([]float32, e.dimensions)

	for _, token := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()

		idx := int(sum % uint32(e.dimensions))
		if sum&(1<<31) != 0 {
			embedding[idx]--
		} else {
			embedding[idx]++
		}
	}

	normalize(embedding)
	return embedding, nil
}

// Tokenize lower-cases text, splits it on anything that is not a letter or
// digit and drops stop words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func normalize(embedding []float32) {
	var sumSquares float64
	for _, val := range embedding {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}

	magnitude := float32(math.Sqrt(sumSquares))
	for i := range embedding {
		embedding[i] /= magnitude
	}
}
