// Package chromem backs the memory store with chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/markhodierne/curriculum-agent/core"
	"github.com/markhodierne/curriculum-agent/memory"
)

// collectionName holds every curated memory. Memories are global
// exemplars, so a single collection is enough.
const collectionName = "memories"

// overfetch widens the candidate set before the quality filter runs.
// chromem's where clause only supports exact string match, so the
// numeric quality predicate is applied here after the similarity search.
const overfetch = 4

// Compile-time check that Store implements memory.Store.
var _ memory.Store = (*Store)(nil)

// Store wraps a chromem-go collection as an append-only memory store.
type Store struct {
	db  *chromem.DB
	col *chromem.Collection
}

// New creates an in-memory chromem-backed store.
func New() (*Store, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(
		collectionName,
		nil, // embeddings are provided by the caller
		nil, // default cosine distance
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{db: db, col: col}, nil
}

// Append saves a memory with its embedding. There is no update path: an
// id is written once and never touched again.
func (s *Store) Append(ctx context.Context, mem core.Memory) error {
	if err := mem.Validate(); err != nil {
		return err
	}
	if len(mem.Embedding) == 0 {
		return &core.SchemaError{Field: "embedding", Reason: "missing"}
	}

	doc, err := serialize(mem)
	if err != nil {
		return &core.StorageError{Op: "serialize memory", Err: err}
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return &core.StorageError{Op: "append memory", Err: err}
	}

	log.Printf("[CHROMEM] Appended memory %s (interaction %s, overall %.2f)",
		mem.ID, mem.InteractionID, mem.Overall)
	return nil
}

// QueryNearest retrieves up to k memories by similarity, keeping only
// rows whose stored overall quality is strictly greater than minQuality.
// Malformed rows are dropped with a log line, never returned.
func (s *Store) QueryNearest(ctx context.Context, embedding []float32, k int, minQuality float64) ([]memory.Scored, error) {
	if k <= 0 {
		return nil, nil
	}

	results, err := s.queryEmbedding(ctx, embedding, k*overfetch)
	if err != nil {
		return nil, err
	}

	var out []memory.Scored
	for i, result := range results {
		mem, err := deserialize(result)
		if err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}
		if mem.Overall <= minQuality {
			continue
		}
		out = append(out, memory.Scored{Memory: mem, Score: result.Similarity})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// queryEmbedding runs the similarity search, shrinking the requested
// result count when the collection holds fewer documents than asked for.
func (s *Store) queryEmbedding(ctx context.Context, embedding []float32, limit int) ([]chromem.Result, error) {
	for ; limit >= 1; limit-- {
		results, err := s.col.QueryEmbedding(ctx, embedding, limit, nil, nil)
		if err == nil {
			return results, nil
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil // empty collection
			}
			continue
		}
		return nil, &core.StorageError{Op: "query memories", Err: err}
	}
	return nil, nil
}

// Close releases resources. chromem keeps everything in memory, so
// there is nothing to tear down.
func (s *Store) Close() error {
	return nil
}

// storedContent is the JSON document body for one memory. Scores and
// timestamps travel in metadata so they survive without re-parsing the
// body during filtering.
type storedContent struct {
	Query         string   `json:"query"`
	Answer        string   `json:"answer"`
	QueryPatterns []string `json:"queryPatterns"`
	Notes         string   `json:"notes"`
	MemoriesUsed  []string `json:"memoriesUsed"`
}

func serialize(mem core.Memory) (chromem.Document, error) {
	body, err := json.Marshal(storedContent{
		Query:         mem.Query,
		Answer:        mem.Answer,
		QueryPatterns: mem.QueryPatterns,
		Notes:         mem.Notes,
		MemoriesUsed:  mem.MemoriesUsed,
	})
	if err != nil {
		return chromem.Document{}, err
	}

	return chromem.Document{
		ID:        mem.ID,
		Content:   string(body),
		Embedding: mem.Embedding,
		Metadata: map[string]string{
			"interaction_id": mem.InteractionID,
			"grounding":      formatScore(mem.Grounding),
			"accuracy":       formatScore(mem.Accuracy),
			"completeness":   formatScore(mem.Completeness),
			"pedagogy":       formatScore(mem.Pedagogy),
			"clarity":        formatScore(mem.Clarity),
			"overall":        formatScore(mem.Overall),
			"created_at":     mem.CreatedAt.Format(time.RFC3339),
		},
	}, nil
}

func deserialize(result chromem.Result) (core.Memory, error) {
	var content storedContent
	if err := json.Unmarshal([]byte(result.Content), &content); err != nil {
		return core.Memory{}, &core.SchemaError{Field: "content", Reason: err.Error()}
	}

	scores := make(map[string]float64, 6)
	for _, name := range []string{"grounding", "accuracy", "completeness", "pedagogy", "clarity", "overall"} {
		v, err := strconv.ParseFloat(result.Metadata[name], 64)
		if err != nil {
			return core.Memory{}, &core.SchemaError{Field: name, Reason: "unparseable score"}
		}
		scores[name] = v
	}

	createdAt, err := time.Parse(time.RFC3339, result.Metadata["created_at"])
	if err != nil {
		return core.Memory{}, &core.SchemaError{Field: "created_at", Reason: err.Error()}
	}

	mem := core.Memory{
		ID:            result.ID,
		InteractionID: result.Metadata["interaction_id"],
		Query:         content.Query,
		Answer:        content.Answer,
		QueryPatterns: content.QueryPatterns,
		Grounding:     scores["grounding"],
		Accuracy:      scores["accuracy"],
		Completeness:  scores["completeness"],
		Pedagogy:      scores["pedagogy"],
		Clarity:       scores["clarity"],
		Overall:       scores["overall"],
		Notes:         content.Notes,
		Embedding:     result.Embedding,
		MemoriesUsed:  content.MemoriesUsed,
		CreatedAt:     createdAt,
	}
	if err := mem.Validate(); err != nil {
		return core.Memory{}, err
	}
	return mem, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// isInsufficientDocsError checks whether a query failed only because it
// asked for more results than the collection holds.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
