package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markhodierne/curriculum-agent/core"
)

// Store is the vector storage backend for curated memories.
// Implementations: ChromemStore (embedded, local), or a hosted vector
// index behind the same contract.
//
// The store is append-only. A memory, once appended, is permanent
// history: there is no update and no delete.
type Store interface {
	// Append saves a memory with its embedding. The embedding must be
	// set before calling Append.
	Append(ctx context.Context, mem core.Memory) error

	// QueryNearest retrieves up to k memories by vector similarity,
	// keeping only those whose stored overall quality is strictly
	// greater than minQuality. Results are ordered by similarity,
	// highest first.
	QueryNearest(ctx context.Context, embedding []float32, k int, minQuality float64) ([]Scored, error)

	// Close releases resources.
	Close() error
}

// Scored is a memory with the similarity score the index assigned it.
type Scored struct {
	core.Memory
	Score float32
}

// Embedder converts text to vector embeddings.
// Implementations: MockEmbedder (testing), OpenAIEmbedder (hosted),
// ONNXEmbedder (local, behind the onnx build tag).
//
// Contract: empty or whitespace-only input fails validation before any
// provider call; a provider failure is a TransientServiceError; a
// returned vector whose length differs from Dimensions() is a
// SchemaError, never silently truncated or padded.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Build assembles a Memory exemplar from a completed interaction
// snapshot, its evaluation, and the embedding of the source query.
func Build(snap core.InteractionCompleted, eval core.Evaluation, embedding []float32) core.Memory {
	return core.Memory{
		ID:            uuid.New().String(),
		InteractionID: snap.InteractionID,
		Query:         snap.Query,
		Answer:        snap.Answer,
		QueryPatterns: snap.CypherQueries,
		Grounding:     eval.Grounding,
		Accuracy:      eval.Accuracy,
		Completeness:  eval.Completeness,
		Pedagogy:      eval.Pedagogy,
		Clarity:       eval.Clarity,
		Overall:       eval.Overall,
		Notes:         FormatNotes(eval),
		Embedding:     embedding,
		MemoriesUsed:  snap.MemoriesUsed,
		CreatedAt:     time.Now().UTC(),
	}
}

// FormatNotes flattens the evaluator's qualitative lists into a single
// notes field stored alongside the scores.
func FormatNotes(eval core.Evaluation) string {
	var parts []string
	if len(eval.Strengths) > 0 {
		parts = append(parts, fmt.Sprintf("Strengths: %s.", strings.Join(eval.Strengths, "; ")))
	}
	if len(eval.Weaknesses) > 0 {
		parts = append(parts, fmt.Sprintf("Weaknesses: %s.", strings.Join(eval.Weaknesses, "; ")))
	}
	if len(eval.Suggestions) > 0 {
		parts = append(parts, fmt.Sprintf("Suggestions: %s.", strings.Join(eval.Suggestions, "; ")))
	}
	return strings.Join(parts, " ")
}
