package memory

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/markhodierne/curriculum-agent/bus"
	"github.com/markhodierne/curriculum-agent/core"
)

// StatusSetter is the slice of the interaction store the curator needs:
// it only ever advances lifecycle status.
type StatusSetter interface {
	SetStatus(ctx context.Context, id string, status core.Status) error
}

// CuratorConfig tunes promotion behaviour. Zero or negative fields
// select the defaults; a threshold of zero is not a valid setting
// (config validation rejects it).
type CuratorConfig struct {
	// PromotionThreshold is the curation bar: an evaluation must score
	// strictly above it for the interaction to become a memory.
	// Distinct from the retrieval quality filter, which is a looser
	// bootstrap bar.
	PromotionThreshold float64

	// EmbedTimeout bounds the embedding call during curation.
	EmbedTimeout time.Duration

	// StoreTimeout bounds the memory append. The store contract admits
	// hosted vector indexes, so the write must not hang unboundedly.
	StoreTimeout time.Duration
}

// DefaultCuratorConfig returns the production curation settings.
func DefaultCuratorConfig() CuratorConfig {
	return CuratorConfig{
		PromotionThreshold: 0.75,
		EmbedTimeout:       15 * time.Second,
		StoreTimeout:       10 * time.Second,
	}
}

// Curator subscribes to reflection.complete and promotes high-scoring
// interactions into the memory store. Everything it does happens after
// the user already has an answer, so no failure here ever surfaces
// upstream: below-threshold and embedding-failure outcomes are terminal
// discards, logged and done.
type Curator struct {
	store    Store
	embedder Embedder
	statuses StatusSetter
	cfg      CuratorConfig

	promoted  atomic.Int64
	discarded atomic.Int64
}

// NewCurator creates a Curator. Zero-value config fields fall back to
// DefaultCuratorConfig.
func NewCurator(store Store, embedder Embedder, statuses StatusSetter, cfg CuratorConfig) *Curator {
	def := DefaultCuratorConfig()
	if cfg.PromotionThreshold <= 0 {
		cfg.PromotionThreshold = def.PromotionThreshold
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = def.EmbedTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	return &Curator{store: store, embedder: embedder, statuses: statuses, cfg: cfg}
}

// Promoted returns the number of interactions promoted into memories.
func (c *Curator) Promoted() int64 { return c.promoted.Load() }

// Discarded returns the number of interactions discarded from curation.
func (c *Curator) Discarded() int64 { return c.discarded.Load() }

// Handle processes one reflection.complete delivery. A returned error
// asks the transport to redeliver; it is only used for storage-append
// failures, where a retry can still succeed. Every judgment outcome
// (promote or discard) returns nil.
func (c *Curator) Handle(ctx context.Context, evt bus.Event) error {
	refl, ok := evt.Payload.(core.ReflectionCompleted)
	if !ok {
		log.Printf("[CURATE] Dropping %s: unexpected payload %T", evt.Name, evt.Payload)
		return nil
	}

	if refl.Evaluation.Overall <= c.cfg.PromotionThreshold {
		log.Printf("[CURATE] Interaction %s scored %.2f (<= %.2f), discarding",
			refl.InteractionID, refl.Evaluation.Overall, c.cfg.PromotionThreshold)
		c.discard(ctx, refl.InteractionID)
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	embedding, err := c.embedder.Embed(embedCtx, refl.Query)
	cancel()
	if err != nil {
		// Embedding failure is not retried inline; the interaction is
		// simply never promoted.
		log.Printf("[CURATE] Embedding failed for %s, discarding: %v", refl.InteractionID, err)
		c.discard(ctx, refl.InteractionID)
		return nil
	}

	mem := Build(refl.InteractionCompleted, refl.Evaluation, embedding)
	appendCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	err = c.store.Append(appendCtx, mem)
	cancel()
	if err != nil {
		log.Printf("[CURATE] Append failed for %s: %v", refl.InteractionID, err)
		return err
	}

	if err := c.statuses.SetStatus(ctx, refl.InteractionID, core.StatusPromoted); err != nil {
		log.Printf("[CURATE] Could not mark %s promoted: %v", refl.InteractionID, err)
	}
	c.promoted.Add(1)
	log.Printf("[CURATE] Promoted interaction %s to memory %s (overall %.2f)",
		refl.InteractionID, mem.ID, refl.Evaluation.Overall)
	return nil
}

func (c *Curator) discard(ctx context.Context, interactionID string) {
	c.discarded.Add(1)
	if err := c.statuses.SetStatus(ctx, interactionID, core.StatusDiscarded); err != nil {
		log.Printf("[CURATE] Could not mark %s discarded: %v", interactionID, err)
	}
}
