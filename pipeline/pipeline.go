// Package pipeline wires the interaction store, event bus, evaluation
// engine, curator, and retrieval service into one running system.
// Construction is explicit: every component is passed in, nothing is a
// package-level singleton.
package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/markhodierne/curriculum-agent/bus"
	"github.com/markhodierne/curriculum-agent/core"
	"github.com/markhodierne/curriculum-agent/evaluation"
	"github.com/markhodierne/curriculum-agent/interaction"
	"github.com/markhodierne/curriculum-agent/memory"
	"github.com/markhodierne/curriculum-agent/retrieval"
)

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Begun      int64 `json:"begun"`
	Completed  int64 `json:"completed"`
	Evaluated  int64 `json:"evaluated"`
	EvalFailed int64 `json:"evalFailed"`
	Promoted   int64 `json:"promoted"`
	Discarded  int64 `json:"discarded"`
}

// Pipeline owns the full interaction lifecycle: capture, background
// evaluation, curation, and retrieval.
type Pipeline struct {
	store     interaction.Store
	eventBus  *bus.Bus
	engine    *evaluation.Engine
	curator   *memory.Curator
	retriever *retrieval.Service
	embedder  memory.Embedder

	begun     atomic.Int64
	completed atomic.Int64

	// background tracks detached completions so Close can drain them.
	background sync.WaitGroup
	started    bool
}

// New assembles a Pipeline from its components.
func New(
	store interaction.Store,
	eventBus *bus.Bus,
	engine *evaluation.Engine,
	curator *memory.Curator,
	retriever *retrieval.Service,
	embedder memory.Embedder,
) *Pipeline {
	return &Pipeline{
		store:     store,
		eventBus:  eventBus,
		engine:    engine,
		curator:   curator,
		retriever: retriever,
		embedder:  embedder,
	}
}

// Start subscribes the evaluation engine and the curator to the bus.
// Must be called once before any interaction begins.
func (p *Pipeline) Start() {
	if p.started {
		return
	}
	p.eventBus.Subscribe(core.EventInteractionComplete, p.engine.Handle)
	p.eventBus.Subscribe(core.EventReflectionComplete, p.curator.Handle)
	p.started = true
	log.Printf("[PIPELINE] Started")
}

// BeginInteraction captures a new interaction and returns its id. This
// is the synchronous part of the request path: the id exists before the
// answer does.
func (p *Pipeline) BeginInteraction(ctx context.Context, draft core.Draft) (string, error) {
	if draft.Query == "" {
		return "", &core.ValidationError{Field: "query", Reason: "missing"}
	}
	id, err := p.store.Create(ctx, draft)
	if err != nil {
		return "", err
	}
	p.begun.Add(1)
	return id, nil
}

// CompleteInteraction records the answer and kicks off background
// evaluation. It returns immediately: persistence and the event publish
// run on a detached goroutine, and their failure never reaches the
// caller, who already has the answer in hand.
func (p *Pipeline) CompleteInteraction(id string, c core.Completion) {
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[PIPELINE] Panic completing %s: %v", id, r)
			}
		}()

		ctx := context.Background()
		if err := p.store.Update(ctx, id, c); err != nil {
			log.Printf("[PIPELINE] Could not complete %s: %v", id, err)
			return
		}
		snap, err := p.store.Get(ctx, id)
		if err != nil {
			log.Printf("[PIPELINE] Could not load completed %s: %v", id, err)
			return
		}
		p.completed.Add(1)
		p.eventBus.Publish(core.EventInteractionComplete, core.SnapshotCompleted(snap))
	}()
}

// RetrieveSimilar returns memories similar to query for few-shot use.
// Best-effort: failures come back as an empty slice.
func (p *Pipeline) RetrieveSimilar(ctx context.Context, query string, k int) []memory.Scored {
	return p.retriever.RetrieveSimilar(ctx, query, k)
}

// Embed exposes the configured embedder to callers that vectorize text
// outside the memory path.
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.Embed(ctx, text)
}

// Stats returns current pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Begun:      p.begun.Load(),
		Completed:  p.completed.Load(),
		Evaluated:  p.engine.Evaluated(),
		EvalFailed: p.engine.Failed(),
		Promoted:   p.curator.Promoted(),
		Discarded:  p.curator.Discarded(),
	}
}

// Close drains in-flight background completions, stops the bus, and
// closes the retrieval service and store, in that order.
func (p *Pipeline) Close() error {
	p.background.Wait()
	p.eventBus.Close()
	if err := p.retriever.Close(); err != nil {
		log.Printf("[PIPELINE] Closing retrieval: %v", err)
	}
	return p.store.Close()
}
