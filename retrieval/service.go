// Package retrieval serves similar past memories for few-shot use when
// answering a new query. Retrieval is best-effort: a query that cannot
// be served returns no memories, never an error, because answering must
// not depend on the memory system being healthy.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/markhodierne/curriculum-agent/memory"
)

// Config tunes retrieval. Zero or negative fields select the defaults;
// a quality floor of zero is not a valid setting (config validation
// rejects it). CacheTTL is the exception: zero disables the cache.
type Config struct {
	// DefaultLimit is the number of memories returned when the caller
	// does not ask for a specific count.
	DefaultLimit int

	// MinQuality is the retrieval quality floor: only memories scored
	// strictly above it are served. Deliberately lower than the
	// promotion threshold so early memories are usable while the store
	// bootstraps.
	MinQuality float64

	// EmbedTimeout bounds the query embedding call.
	EmbedTimeout time.Duration

	// SearchTimeout bounds the vector index search. The store contract
	// admits hosted indexes, so the search must not hang unboundedly.
	SearchTimeout time.Duration

	// CacheTTL is how long a query's results are served from cache.
	// Zero disables the cache.
	CacheTTL time.Duration
}

// DefaultConfig returns the production retrieval settings.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:  3,
		MinQuality:    0.25,
		EmbedTimeout:  10 * time.Second,
		SearchTimeout: 10 * time.Second,
		CacheTTL:      5 * time.Minute,
	}
}

// Service retrieves similar memories by vector search, with a
// read-through cache in front of the embed-and-search path.
type Service struct {
	store    memory.Store
	embedder memory.Embedder
	cfg      Config
	cache    *ristretto.Cache
}

// New creates a retrieval Service. Zero-value config fields fall back
// to DefaultConfig; CacheTTL of zero keeps the cache disabled.
func New(store memory.Store, embedder memory.Embedder, cfg Config) (*Service, error) {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = def.MinQuality
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = def.EmbedTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}

	s := &Service{store: store, embedder: embedder, cfg: cfg}
	if cfg.CacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     1 << 24,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("creating retrieval cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// RetrieveSimilar returns up to k memories similar to query, best
// first. k <= 0 selects the configured default. Failures anywhere in
// the path degrade to an empty result.
func (s *Service) RetrieveSimilar(ctx context.Context, query string, k int) []memory.Scored {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if k <= 0 {
		k = s.cfg.DefaultLimit
	}

	cacheKey := fmt.Sprintf("%d|%s", k, query)
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			if scored, ok := cached.([]memory.Scored); ok {
				// Hand out a copy so a caller mutating its results
				// cannot poison later cache hits.
				return copyScored(scored)
			}
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	embedding, err := s.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		log.Printf("[RETRIEVE] Embedding failed, returning no memories: %v", err)
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	scored, err := s.store.QueryNearest(searchCtx, embedding, k, s.cfg.MinQuality)
	cancel()
	if err != nil {
		log.Printf("[RETRIEVE] Query failed, returning no memories: %v", err)
		return nil
	}

	if s.cache != nil {
		cost := int64(1)
		for _, m := range scored {
			cost += int64(len(m.Query) + len(m.Answer) + len(m.Notes))
		}
		s.cache.SetWithTTL(cacheKey, copyScored(scored), cost, s.cfg.CacheTTL)
	}
	return scored
}

func copyScored(scored []memory.Scored) []memory.Scored {
	if scored == nil {
		return nil
	}
	out := make([]memory.Scored, len(scored))
	copy(out, scored)
	return out
}

// Close releases the cache.
func (s *Service) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return nil
}

// FormatFewShot renders retrieved memories as a prompt block of past
// exemplars. Returns "" when there is nothing to show.
func FormatFewShot(memories []memory.Scored) string {
	if len(memories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Past high-quality exchanges on similar questions:\n")
	for i, m := range memories {
		fmt.Fprintf(&b, "\n--- Exemplar %d (quality %.2f, similarity %.2f) ---\n", i+1, m.Overall, m.Score)
		fmt.Fprintf(&b, "Question: %s\n", m.Query)
		fmt.Fprintf(&b, "Answer: %s\n", m.Answer)
		if len(m.QueryPatterns) > 0 {
			fmt.Fprintf(&b, "Graph queries that worked: %s\n", strings.Join(m.QueryPatterns, "; "))
		}
		if m.Notes != "" {
			fmt.Fprintf(&b, "Reviewer notes: %s\n", m.Notes)
		}
	}
	return b.String()
}
