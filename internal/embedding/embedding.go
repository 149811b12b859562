// Package embedding provides the vector type, cosine scoring and the
// storage codec for persisted embeddings.
package embedding

import (
	"encoding/json"
	"fmt"
	"math"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// CosineSimilarity computes cosine similarity between two vectors.
// Defined as 0 when either vector has zero norm or lengths differ.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Encode serializes a vector for the embeddings table (JSON float array).
func Encode(v Vector) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode embedding: %w", err)
	}
	return string(b), nil
}

// Decode parses a vector stored by Encode.
func Decode(s string) (Vector, error) {
	var v Vector
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}
