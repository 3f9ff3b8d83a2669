package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Float32SliceToBytes encodes a vector as a little-endian length prefix
// followed by the values.
func Float32SliceToBytes(floats []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(4 + 4*len(floats))

	if err := binary.Write(buf, binary.LittleEndian, int32(len(floats))); err != nil {
		return nil, fmt.Errorf("failed to write vector length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, floats); err != nil {
		return nil, fmt.Errorf("failed to write vector values: %w", err)
	}

	return buf.Bytes(), nil
}

// BytesToFloat32Slice decodes a vector written by Float32SliceToBytes.
func BytesToFloat32Slice(data []byte) ([]float32, error) {
	buf := bytes.NewReader(data)

	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read vector length: %w", err)
	}
	if length < 0 || int64(length)*4 > int64(buf.Len()) {
		return nil, fmt.Errorf("invalid vector length %d for %d bytes", length, len(data))
	}

	floats := make([]float32, length)
	if err := binary.Read(buf, binary.LittleEndian, floats); err != nil {
		return nil, fmt.Errorf("failed to read vector values: %w", err)
	}

	return floats, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors,
// a value between -1 and 1.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same dimension: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("one or both vectors have zero magnitude")
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
