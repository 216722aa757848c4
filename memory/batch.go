package memory

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// EmbedBatch embeds texts with at most concurrency in-flight provider
// calls. Results keep input order. The first failure cancels the rest
// and is returned.
func EmbedBatch(ctx context.Context, embedder Embedder, texts []string, concurrency int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := embedder.Embed(ctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
