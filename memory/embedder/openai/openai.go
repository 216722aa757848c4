// Package openai embeds text through the OpenAI embeddings API.
package openai

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/markhodierne/curriculum-agent/core"
)

// DefaultDimensions is the vector size of the text-embedding-ada-002
// family.
const DefaultDimensions = 1536

// Config configures the OpenAI embedder.
type Config struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string

	// Model is the embedding model. Default: text-embedding-ada-002.
	Model string

	// Dimensions is the expected vector size. A response of any other
	// length is rejected as a SchemaError. Default: 1536.
	Dimensions int
}

// Embedder calls the OpenAI embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// New creates an OpenAI embedder.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, &core.ValidationError{Field: "apiKey", Reason: "missing"}
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AdaEmbeddingV2)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	return &Embedder{
		client:     openai.NewClient(cfg.APIKey),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts text to an embedding vector. Empty input fails before
// any network call; a provider failure is transient; a wrong-length
// vector is a schema violation, never padded or truncated.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &core.ValidationError{Field: "text", Reason: "empty or whitespace-only"}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, &core.TransientServiceError{Service: "openai embeddings", Err: err}
	}
	if len(resp.Data) != 1 {
		return nil, &core.SchemaError{Field: "data", Reason: "expected exactly one embedding in response"}
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, &core.SchemaError{Field: "embedding", Reason: "dimension mismatch"}
	}
	return vec, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
