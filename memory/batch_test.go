package memory

import (
	"context"
	"errors"
	"testing"
)

type selectiveEmbedder struct {
	failOn string
}

func (s *selectiveEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == s.failOn {
		return nil, errors.New("provider rejected input")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (s *selectiveEmbedder) Dimensions() int { return 2 }

func TestEmbedBatchKeepsOrder(t *testing.T) {
	texts := []string{"a", "bb", "ccc", "dddd"}
	out, err := EmbedBatch(context.Background(), &selectiveEmbedder{}, texts, 2)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("got %d embeddings, want %d", len(out), len(texts))
	}
	for i, text := range texts {
		if out[i][0] != float32(len(text)) {
			t.Errorf("embedding %d belongs to a different input", i)
		}
	}
}

func TestEmbedBatchPropagatesFailure(t *testing.T) {
	texts := []string{"a", "bad", "c"}
	if _, err := EmbedBatch(context.Background(), &selectiveEmbedder{failOn: "bad"}, texts, 2); err == nil {
		t.Fatal("EmbedBatch() = nil, want the provider error")
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	out, err := EmbedBatch(context.Background(), &selectiveEmbedder{}, nil, 2)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if out != nil {
		t.Errorf("got %v, want nil", out)
	}
}
