package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/markhodierne/curriculum-agent/core"
)

func TestEmbedIsDeterministic(t *testing.T) {
	e := New(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "number bonds to ten")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := e.Embed(ctx, "number bonds to ten")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEmbedDiffersAcrossInputs(t *testing.T) {
	e := New(0)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "fractions")
	b, _ := e.Embed(ctx, "decimals")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct inputs embedded to identical vectors")
	}
}

func TestEmbedReturnsUnitVector(t *testing.T) {
	e := New(0)
	vec, err := e.Embed(context.Background(), "perimeter of a rectangle")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != DefaultDimensions {
		t.Fatalf("len = %d, want %d", len(vec), DefaultDimensions)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	e := New(0)
	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := e.Embed(context.Background(), text)
		if err == nil {
			t.Fatalf("Embed(%q) = nil, want validation error", text)
		}
		var valErr *core.ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("Embed(%q) error = %T, want *core.ValidationError", text, err)
		}
	}
	if e.Calls() != 0 {
		t.Errorf("Calls() = %d after invalid input only, want 0", e.Calls())
	}
}

func TestEmbedCountsConcurrentCalls(t *testing.T) {
	e := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Embed(context.Background(), "shape patterns"); err != nil {
				t.Errorf("Embed() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if e.Calls() != 16 {
		t.Errorf("Calls() = %d, want 16", e.Calls())
	}
}

func TestDimensionsConfigurable(t *testing.T) {
	e := New(128)
	if e.Dimensions() != 128 {
		t.Errorf("Dimensions() = %d, want 128", e.Dimensions())
	}
	vec, err := e.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 128 {
		t.Errorf("len = %d, want 128", len(vec))
	}
}
