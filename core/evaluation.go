package core

import (
	"fmt"
	"math"
)

// Rubric weights. Overall is always recomputed from these; a judge-reported
// overall is never trusted.
const (
	WeightGrounding    = 0.30
	WeightAccuracy     = 0.30
	WeightCompleteness = 0.20
	WeightPedagogy     = 0.10
	WeightClarity      = 0.10
)

// OverallTolerance is the floating tolerance when checking the weighted
// overall invariant.
const OverallTolerance = 1e-6

// Evaluation is the five-dimension quality judgment of one Interaction.
// All dimension scores live in [0,1]. The qualitative lists each hold
// exactly three entries. Evaluations are immutable once created and
// reference their interaction by id.
type Evaluation struct {
	InteractionID string   `json:"interactionId"`
	Grounding     float64  `json:"grounding"`
	Accuracy      float64  `json:"accuracy"`
	Completeness  float64  `json:"completeness"`
	Pedagogy      float64  `json:"pedagogy"`
	Clarity       float64  `json:"clarity"`
	Overall       float64  `json:"overall"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Suggestions   []string `json:"suggestions"`
}

// ComputeOverall returns the deterministic weighted overall for the five
// dimension scores.
func (e Evaluation) ComputeOverall() float64 {
	return WeightGrounding*e.Grounding +
		WeightAccuracy*e.Accuracy +
		WeightCompleteness*e.Completeness +
		WeightPedagogy*e.Pedagogy +
		WeightClarity*e.Clarity
}

// Validate domain-checks every dimension, the overall invariant, and the
// cardinality of the qualitative lists. Violations are SchemaErrors.
func (e Evaluation) Validate() error {
	dims := []struct {
		name  string
		score float64
	}{
		{"grounding", e.Grounding},
		{"accuracy", e.Accuracy},
		{"completeness", e.Completeness},
		{"pedagogy", e.Pedagogy},
		{"clarity", e.Clarity},
		{"overall", e.Overall},
	}
	for _, d := range dims {
		if math.IsNaN(d.score) || d.score < 0 || d.score > 1 {
			return &SchemaError{Field: d.name, Reason: fmt.Sprintf("score %v out of range [0,1]", d.score)}
		}
	}
	if math.Abs(e.Overall-e.ComputeOverall()) > OverallTolerance {
		return &SchemaError{Field: "overall", Reason: "overall does not match weighted dimension scores"}
	}
	lists := []struct {
		name  string
		items []string
	}{
		{"strengths", e.Strengths},
		{"weaknesses", e.Weaknesses},
		{"suggestions", e.Suggestions},
	}
	for _, l := range lists {
		if len(l.items) != 3 {
			return &SchemaError{Field: l.name, Reason: fmt.Sprintf("expected exactly 3 entries, got %d", len(l.items))}
		}
	}
	return nil
}
