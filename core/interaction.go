package core

import "time"

// Status is the lifecycle state of an Interaction.
//
// Transitions are strictly ordered: Created -> Completed -> Evaluated ->
// (Promoted | Discarded). An interaction that never
// receives an answer stays in Created; one whose evaluation never lands
// stays in Completed. Both are harmless terminal stalls, not errors.
type Status string

const (
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
	StatusEvaluated Status = "evaluated"
	StatusPromoted  Status = "promoted"
	StatusDiscarded Status = "discarded"
)

// CanTransitionTo reports whether next is a legal successor of s.
// No transition may skip a predecessor.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusCompleted
	case StatusCompleted:
		return next == StatusEvaluated
	case StatusEvaluated:
		return next == StatusPromoted || next == StatusDiscarded
	default:
		// Promoted and Discarded are terminal.
		return false
	}
}

// Interaction is one captured user turn: the query, the final answer, and
// the execution metadata gathered while the answer was produced.
//
// Interactions are owned by the InteractionStore and mutated only through
// its Create/Update/SetStatus operations. They are never deleted.
type Interaction struct {
	ID              string
	Query           string
	Answer          string
	Model           string
	Temperature     float64
	CypherQueries   []string
	GraphResults    []map[string]any
	EvidenceNodeIDs []string
	Confidence      float64
	GroundingRate   float64
	StepCount       int
	LatencyMs       int64
	MemoriesUsed    []string
	CreatedAt       time.Time
	Status          Status
}

// Draft carries the fields known when an interaction is first captured,
// before any answer exists. Metric fields default to zero.
type Draft struct {
	Query       string
	Model       string
	Temperature float64
}

// Completion carries the answer and execution metrics written by the
// single Update that moves an interaction from Created to Completed.
type Completion struct {
	Answer          string
	CypherQueries   []string
	GraphResults    []map[string]any
	EvidenceNodeIDs []string
	Confidence      float64
	GroundingRate   float64
	StepCount       int
	LatencyMs       int64
	MemoriesUsed    []string
}

// DefaultExpectedEvidence is the evidence-node count a fully grounded
// answer is expected to cite.
const DefaultExpectedEvidence = 10

// ComputeGroundingRate returns the fraction of cited evidence nodes
// relative to expected, capped at 1.0. An answer produced without any
// executed queries cites nothing and scores zero.
func ComputeGroundingRate(evidenceCount, executedQueries, expected int) float64 {
	if executedQueries == 0 || expected <= 0 {
		return 0
	}
	rate := float64(evidenceCount) / float64(expected)
	if rate > 1.0 {
		rate = 1.0
	}
	return rate
}
