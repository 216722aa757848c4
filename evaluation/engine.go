// Package evaluation turns completed interactions into scored
// evaluations. The engine subscribes to interaction.complete, asks a
// judge to score the answer against the rubric, and publishes
// reflection.complete for curation. It never blocks or fails the
// interaction that triggered it.
package evaluation

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/markhodierne/curriculum-agent/bus"
	"github.com/markhodierne/curriculum-agent/core"
)

// Request is everything a judge needs to score one interaction.
type Request struct {
	Query         string
	Answer        string
	CypherQueries []string
	// Evidence is the graph results serialized as JSON, truncated to
	// MaxEvidenceBytes when oversized.
	Evidence          string
	EvidenceTruncated bool
	GroundingRate     float64
	Confidence        float64
}

// Scorer scores one interaction against the rubric. Implementations:
// the Anthropic judge (production), fakes (tests).
//
// The returned evaluation's Overall field is ignored; the engine always
// recomputes it from the dimension scores.
type Scorer interface {
	Score(ctx context.Context, req Request) (core.Evaluation, error)
}

// Publisher is the slice of the event bus the engine publishes on.
type Publisher interface {
	Publish(name string, payload any)
}

// StatusSetter advances interaction lifecycle status. Setting Evaluated
// doubles as the dedup gate: a redelivered interaction.complete finds
// the status already advanced and is skipped.
type StatusSetter interface {
	SetStatus(ctx context.Context, id string, status core.Status) error
}

// EngineConfig tunes the evaluation engine.
type EngineConfig struct {
	// ScoreTimeout bounds a single judge call.
	ScoreTimeout time.Duration

	// MaxEvidenceBytes caps the serialized graph results sent to the
	// judge. Oversized evidence is truncated, and the truncation is
	// flagged in the request rather than hidden.
	MaxEvidenceBytes int
}

// DefaultEngineConfig returns the production evaluation settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ScoreTimeout:     60 * time.Second,
		MaxEvidenceBytes: 32 * 1024,
	}
}

// Engine evaluates completed interactions in the background.
type Engine struct {
	scorer   Scorer
	statuses StatusSetter
	pub      Publisher
	cfg      EngineConfig

	evaluated atomic.Int64
	failed    atomic.Int64
}

// NewEngine creates an Engine. Zero-value config fields fall back to
// DefaultEngineConfig.
func NewEngine(scorer Scorer, statuses StatusSetter, pub Publisher, cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.ScoreTimeout <= 0 {
		cfg.ScoreTimeout = def.ScoreTimeout
	}
	if cfg.MaxEvidenceBytes <= 0 {
		cfg.MaxEvidenceBytes = def.MaxEvidenceBytes
	}
	return &Engine{scorer: scorer, statuses: statuses, pub: pub, cfg: cfg}
}

// Evaluated returns the number of interactions successfully evaluated.
func (e *Engine) Evaluated() int64 { return e.evaluated.Load() }

// Failed returns the number of evaluation attempts that produced no
// evaluation.
func (e *Engine) Failed() int64 { return e.failed.Load() }

// Handle processes one interaction.complete delivery. It always returns
// nil: a judge failure means the interaction is simply never evaluated,
// and no reflection.complete is ever published for it. Redelivering the
// event would re-run a judge call that already failed terminally, so
// nothing here asks the transport for a retry.
func (e *Engine) Handle(ctx context.Context, evt bus.Event) error {
	snap, ok := evt.Payload.(core.InteractionCompleted)
	if !ok {
		log.Printf("[EVAL] Dropping %s: unexpected payload %T", evt.Name, evt.Payload)
		return nil
	}

	req := e.buildRequest(snap)
	if req.EvidenceTruncated {
		log.Printf("[EVAL] Evidence for %s truncated to %d bytes", snap.InteractionID, e.cfg.MaxEvidenceBytes)
	}

	scoreCtx, cancel := context.WithTimeout(ctx, e.cfg.ScoreTimeout)
	eval, err := e.scorer.Score(scoreCtx, req)
	cancel()
	if err != nil {
		e.failed.Add(1)
		log.Printf("[EVAL] Judge failed for %s: %v", snap.InteractionID, err)
		return nil
	}

	eval.InteractionID = snap.InteractionID
	eval.Overall = eval.ComputeOverall()
	if err := eval.Validate(); err != nil {
		e.failed.Add(1)
		log.Printf("[EVAL] Judge returned invalid evaluation for %s: %v", snap.InteractionID, err)
		return nil
	}

	// Advance status before publishing. On redelivery the transition
	// is rejected and the duplicate reflection is never emitted.
	if err := e.statuses.SetStatus(ctx, snap.InteractionID, core.StatusEvaluated); err != nil {
		log.Printf("[EVAL] Skipping reflection for %s: %v", snap.InteractionID, err)
		return nil
	}

	e.evaluated.Add(1)
	log.Printf("[EVAL] Interaction %s scored %.2f", snap.InteractionID, eval.Overall)
	e.pub.Publish(core.EventReflectionComplete, core.ReflectionCompleted{
		InteractionCompleted: snap,
		Evaluation:           eval,
	})
	return nil
}

func (e *Engine) buildRequest(snap core.InteractionCompleted) Request {
	evidence, truncated := serializeEvidence(snap.GraphResults, e.cfg.MaxEvidenceBytes)
	return Request{
		Query:             snap.Query,
		Answer:            snap.Answer,
		CypherQueries:     snap.CypherQueries,
		Evidence:          evidence,
		EvidenceTruncated: truncated,
		GroundingRate:     snap.GroundingRate,
		Confidence:        snap.Confidence,
	}
}

// serializeEvidence renders graph results as JSON and truncates at the
// byte cap. An unserializable result set degrades to an empty evidence
// block rather than aborting the evaluation.
func serializeEvidence(results []map[string]any, maxBytes int) (string, bool) {
	if len(results) == 0 {
		return "[]", false
	}
	raw, err := json.Marshal(results)
	if err != nil {
		log.Printf("[EVAL] Could not serialize graph results: %v", err)
		return "[]", false
	}
	if len(raw) <= maxBytes {
		return string(raw), false
	}
	// Back off to a rune boundary so the cut never produces invalid
	// UTF-8 in the judge prompt.
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return string(raw[:cut]), true
}
