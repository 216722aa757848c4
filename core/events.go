package core

import "time"

// Event names published on the bus. Payloads are immutable snapshots;
// nothing downstream mutates them.
const (
	EventInteractionComplete = "interaction.complete"
	EventReflectionComplete  = "reflection.complete"
)

// InteractionCompleted is the payload of interaction.complete: a full
// snapshot of the interaction at the moment its answer landed.
type InteractionCompleted struct {
	InteractionID   string           `json:"interactionId"`
	Query           string           `json:"query"`
	Answer          string           `json:"answer"`
	Model           string           `json:"model"`
	Temperature     float64          `json:"temperature"`
	CypherQueries   []string         `json:"cypherQueries"`
	GraphResults    []map[string]any `json:"graphResults"`
	EvidenceNodeIDs []string         `json:"evidenceNodeIds"`
	Confidence      float64          `json:"confidence"`
	GroundingRate   float64          `json:"groundingRate"`
	StepCount       int              `json:"stepCount"`
	LatencyMs       int64            `json:"latencyMs"`
	MemoriesUsed    []string         `json:"memoriesUsed"`
	Timestamp       time.Time        `json:"timestamp"`
}

// ReflectionCompleted is the payload of reflection.complete: the original
// interaction snapshot plus its evaluation.
type ReflectionCompleted struct {
	InteractionCompleted
	Evaluation Evaluation `json:"evaluation"`
}

// SnapshotCompleted builds the interaction.complete payload from a
// completed interaction.
func SnapshotCompleted(i Interaction) InteractionCompleted {
	return InteractionCompleted{
		InteractionID:   i.ID,
		Query:           i.Query,
		Answer:          i.Answer,
		Model:           i.Model,
		Temperature:     i.Temperature,
		CypherQueries:   i.CypherQueries,
		GraphResults:    i.GraphResults,
		EvidenceNodeIDs: i.EvidenceNodeIDs,
		Confidence:      i.Confidence,
		GroundingRate:   i.GroundingRate,
		StepCount:       i.StepCount,
		LatencyMs:       i.LatencyMs,
		MemoriesUsed:    i.MemoriesUsed,
		Timestamp:       time.Now().UTC(),
	}
}
