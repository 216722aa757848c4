package core

import "testing"

func TestComputeGroundingRate(t *testing.T) {
	// Two evidence nodes cited out of an expected ten.
	if got := ComputeGroundingRate(2, 1, DefaultExpectedEvidence); got != 0.2 {
		t.Fatalf("grounding rate = %v, want 0.2", got)
	}

	// Capped at 1.0.
	if got := ComputeGroundingRate(25, 3, DefaultExpectedEvidence); got != 1.0 {
		t.Fatalf("grounding rate = %v, want 1.0", got)
	}

	// No executed queries means nothing was cited.
	if got := ComputeGroundingRate(2, 0, DefaultExpectedEvidence); got != 0 {
		t.Fatalf("grounding rate = %v, want 0", got)
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusCreated, StatusCompleted},
		{StatusCompleted, StatusEvaluated},
		{StatusEvaluated, StatusPromoted},
		{StatusEvaluated, StatusDiscarded},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusCreated, StatusEvaluated},  // cannot skip Completed
		{StatusCreated, StatusPromoted},
		{StatusCompleted, StatusPromoted}, // cannot skip Evaluated
		{StatusCompleted, StatusDiscarded},
		{StatusPromoted, StatusDiscarded}, // terminal
		{StatusDiscarded, StatusCompleted},
		{StatusEvaluated, StatusCompleted}, // no going back
	}
	for _, tr := range forbidden {
		if tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be forbidden", tr.from, tr.to)
		}
	}
}
