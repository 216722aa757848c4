package core

import "time"

// Memory is a curated, retrievable exemplar distilled from an Interaction
// whose Evaluation cleared the curation threshold. Memories are permanent
// history: the store is append-only and never updates or deletes them.
type Memory struct {
	ID            string
	InteractionID string
	Query         string
	Answer        string
	QueryPatterns []string
	Grounding     float64
	Accuracy      float64
	Completeness  float64
	Pedagogy      float64
	Clarity       float64
	Overall       float64
	Notes         string
	Embedding     []float32
	MemoriesUsed  []string
	CreatedAt     time.Time
}

// Validate checks the fields a Memory must carry to be usable as few-shot
// context. Rows failing validation are discarded at the retrieval boundary,
// never returned to callers.
func (m Memory) Validate() error {
	if m.ID == "" {
		return &SchemaError{Field: "id", Reason: "missing"}
	}
	if m.Query == "" {
		return &SchemaError{Field: "query", Reason: "missing"}
	}
	if m.Answer == "" {
		return &SchemaError{Field: "answer", Reason: "missing"}
	}
	if m.Overall < 0 || m.Overall > 1 {
		return &SchemaError{Field: "overall", Reason: "score out of range [0,1]"}
	}
	return nil
}
