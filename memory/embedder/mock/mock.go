// Package mock provides a deterministic embedder for tests and offline
// development. No network, no model files.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"

	"github.com/markhodierne/curriculum-agent/core"
)

// DefaultDimensions matches the all-MiniLM-L6-v2 vector size.
const DefaultDimensions = 384

// Embedder generates deterministic unit vectors from a text hash. Equal
// inputs always embed to equal vectors, which is all similarity tests
// need. Safe for concurrent use, matching the real embedders it stands
// in for.
type Embedder struct {
	dimensions int
	calls      atomic.Int64
}

// New creates a mock embedder. dims <= 0 falls back to DefaultDimensions.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims}
}

// Embed creates a deterministic embedding from the text hash. The
// emptiness check runs before anything else, matching the contract that
// invalid input never reaches a provider.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &core.ValidationError{Field: "text", Reason: "empty or whitespace-only"}
	}
	m.calls.Add(1)

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// LCG keeps the sequence reproducible from the hash seed.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// Calls returns how many embeddings were actually generated. Tests use
// it to assert that invalid input never reached the provider.
func (m *Embedder) Calls() int {
	return int(m.calls.Load())
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
