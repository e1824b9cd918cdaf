// Package archival implements long-term agent memory: user-scoped entries
// with embeddings, searched by cosine similarity rather than recency.
package archival

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Vector is an embedding vector.
type Vector = []float64

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dimensions() int
}

// CosineSimilarity computes cosine similarity between two vectors. Vectors
// of different lengths or zero norm score 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashEmbedder is a deterministic, offline embedder: each token is hashed
// into a bucket of a fixed-size bag-of-words vector. Useful for tests and
// local development without an embedding API.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder with the given dimension count.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	vec := make(Vector, e.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dims]++
	}
	return vec, nil
}

// Dimensions implements Embedder.
func (e *HashEmbedder) Dimensions() int { return e.dims }
