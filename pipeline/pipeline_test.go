package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/markhodierne/curriculum-agent/bus"
	"github.com/markhodierne/curriculum-agent/core"
	"github.com/markhodierne/curriculum-agent/evaluation"
	"github.com/markhodierne/curriculum-agent/interaction"
	"github.com/markhodierne/curriculum-agent/memory"
	"github.com/markhodierne/curriculum-agent/memory/embedder/mock"
	chromemstore "github.com/markhodierne/curriculum-agent/memory/store/chromem"
	"github.com/markhodierne/curriculum-agent/retrieval"
)

type fixedScorer struct {
	eval core.Evaluation
	err  error
}

func (f *fixedScorer) Score(ctx context.Context, req evaluation.Request) (core.Evaluation, error) {
	if f.err != nil {
		return core.Evaluation{}, f.err
	}
	return f.eval, nil
}

func scoredEval(score float64) core.Evaluation {
	return core.Evaluation{
		Grounding:    score,
		Accuracy:     score,
		Completeness: score,
		Pedagogy:     score,
		Clarity:      score,
		Strengths:    []string{"a", "b", "c"},
		Weaknesses:   []string{"d", "e", "f"},
		Suggestions:  []string{"g", "h", "i"},
	}
}

// newPipeline builds a full pipeline on in-memory backends with the
// given judge behaviour.
func newPipeline(t *testing.T, scorer evaluation.Scorer) (*Pipeline, interaction.Store) {
	t.Helper()

	store, err := interaction.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	memStore, err := chromemstore.New()
	if err != nil {
		t.Fatalf("chromem.New() error = %v", err)
	}

	embedder := mock.New(0)
	eventBus := bus.New(bus.Config{Workers: 2, MaxAttempts: 2, RetryBase: 10 * time.Millisecond, QueueSize: 16})
	engine := evaluation.NewEngine(scorer, store, eventBus, evaluation.EngineConfig{})
	curator := memory.NewCurator(memStore, embedder, store, memory.CuratorConfig{})
	retriever, err := retrieval.New(memStore, embedder, retrieval.Config{})
	if err != nil {
		t.Fatalf("retrieval.New() error = %v", err)
	}

	p := New(store, eventBus, engine, curator, retriever, embedder)
	p.Start()
	t.Cleanup(func() { p.Close() })
	return p, store
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func completion() core.Completion {
	return core.Completion{
		Answer:          "Teach arrays before the times tables facts.",
		CypherQueries:   []string{"MATCH (o:Objective {year: 3}) RETURN o"},
		GraphResults:    []map[string]any{{"code": "Y3-M-002"}},
		EvidenceNodeIDs: []string{"Y3-M-002"},
		Confidence:      0.9,
		GroundingRate:   0.1,
		StepCount:       2,
		LatencyMs:       1200,
	}
}

func TestFullLoopPromotesAndRetrieves(t *testing.T) {
	p, store := newPipeline(t, &fixedScorer{eval: scoredEval(0.9)})
	ctx := context.Background()

	id, err := p.BeginInteraction(ctx, core.Draft{Query: "When should I introduce arrays?", Model: "test-model"})
	if err != nil {
		t.Fatalf("BeginInteraction() error = %v", err)
	}

	p.CompleteInteraction(id, completion())

	waitFor(t, 3*time.Second, func() bool {
		got, err := store.Get(ctx, id)
		return err == nil && got.Status == core.StatusPromoted
	})

	memories := p.RetrieveSimilar(ctx, "When should I introduce arrays?", 3)
	if len(memories) != 1 {
		t.Fatalf("retrieved %d memories, want 1", len(memories))
	}
	if memories[0].InteractionID != id {
		t.Errorf("memory lineage = %q, want %q", memories[0].InteractionID, id)
	}

	stats := p.Stats()
	if stats.Begun != 1 || stats.Completed != 1 || stats.Evaluated != 1 || stats.Promoted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFullLoopDiscardsLowScore(t *testing.T) {
	p, store := newPipeline(t, &fixedScorer{eval: scoredEval(0.5)})
	ctx := context.Background()

	id, err := p.BeginInteraction(ctx, core.Draft{Query: "What is a number bond?"})
	if err != nil {
		t.Fatalf("BeginInteraction() error = %v", err)
	}
	p.CompleteInteraction(id, completion())

	waitFor(t, 3*time.Second, func() bool {
		got, err := store.Get(ctx, id)
		return err == nil && got.Status == core.StatusDiscarded
	})

	if memories := p.RetrieveSimilar(ctx, "What is a number bond?", 3); len(memories) != 0 {
		t.Errorf("retrieved %d memories from a discarded interaction, want 0", len(memories))
	}
	if stats := p.Stats(); stats.Discarded != 1 || stats.Promoted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestJudgeFailureLeavesInteractionCompleted(t *testing.T) {
	scorer := &fixedScorer{err: &core.TransientServiceError{Service: "anthropic", Err: errors.New("timeout")}}
	p, store := newPipeline(t, scorer)
	ctx := context.Background()

	id, err := p.BeginInteraction(ctx, core.Draft{Query: "How do I assess subtraction?"})
	if err != nil {
		t.Fatalf("BeginInteraction() error = %v", err)
	}
	p.CompleteInteraction(id, completion())

	waitFor(t, 3*time.Second, func() bool {
		return p.Stats().EvalFailed >= 1
	})

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != core.StatusCompleted {
		t.Errorf("status = %q, want %q: a failed judge leaves the interaction unevaluated", got.Status, core.StatusCompleted)
	}
	if stats := p.Stats(); stats.Evaluated != 0 || stats.Promoted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBeginInteractionRejectsEmptyQuery(t *testing.T) {
	p, _ := newPipeline(t, &fixedScorer{eval: scoredEval(0.9)})

	if _, err := p.BeginInteraction(context.Background(), core.Draft{}); err == nil {
		t.Fatal("BeginInteraction() = nil for an empty query, want error")
	}
}

func TestCompleteUnknownIDIsSwallowed(t *testing.T) {
	p, _ := newPipeline(t, &fixedScorer{eval: scoredEval(0.9)})

	// Must not panic or surface anything; the id simply does not exist.
	p.CompleteInteraction("no-such-id", completion())

	waitFor(t, time.Second, func() bool {
		return p.Stats().Completed == 0
	})
}
