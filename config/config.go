// Package config loads runtime configuration from defaults, an optional
// .env file, and CURRICULUM_* environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/markhodierne/curriculum-agent/core"
)

// Config is the full runtime configuration.
type Config struct {
	Anthropic AnthropicConfig
	Embedding EmbeddingConfig
	Storage   StorageConfig
	Curation  CurationConfig
	Retrieval RetrievalConfig
}

// AnthropicConfig configures the evaluation judge.
type AnthropicConfig struct {
	APIKey     string
	JudgeModel string
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	// Provider is "openai", "onnx", or "mock".
	Provider string

	OpenAIAPIKey string
	OpenAIModel  string

	ONNXModelPath     string
	ONNXTokenizerPath string
}

// StorageConfig configures the interaction database.
type StorageConfig struct {
	// DataDir holds the sqlite database. ":memory:" keeps everything
	// in process, which tests use.
	DataDir string
}

// CurationConfig tunes memory promotion.
type CurationConfig struct {
	PromotionThreshold float64
}

// RetrievalConfig tunes memory retrieval.
type RetrievalConfig struct {
	MinQuality float64
	Limit      int
	CacheTTL   time.Duration
}

func defaults() Config {
	return Config{
		Anthropic: AnthropicConfig{
			JudgeModel: "claude-3-5-haiku-latest",
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			OpenAIModel: "text-embedding-ada-002",
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Curation: CurationConfig{
			PromotionThreshold: 0.75,
		},
		Retrieval: RetrievalConfig{
			MinQuality: 0.25,
			Limit:      3,
			CacheTTL:   5 * time.Minute,
		},
	}
}

// Load reads configuration. A .env file in the working directory is
// applied first when present; CURRICULUM_* environment variables
// override everything.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field and range constraints.
func (c Config) Validate() error {
	// Thresholds must be strictly positive: downstream components treat
	// a zero threshold as unset and would silently substitute their
	// defaults, so zero is rejected here rather than accepted ambiguously.
	if c.Curation.PromotionThreshold <= 0 || c.Curation.PromotionThreshold > 1 {
		return &core.ValidationError{Field: "promotionThreshold",
			Reason: fmt.Sprintf("%v out of range (0,1]", c.Curation.PromotionThreshold)}
	}
	if c.Retrieval.MinQuality <= 0 || c.Retrieval.MinQuality > 1 {
		return &core.ValidationError{Field: "retrievalMinQuality",
			Reason: fmt.Sprintf("%v out of range (0,1]", c.Retrieval.MinQuality)}
	}
	if c.Retrieval.Limit <= 0 {
		return &core.ValidationError{Field: "retrievalLimit", Reason: "must be positive"}
	}
	switch c.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		return &core.ValidationError{Field: "embeddingProvider",
			Reason: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString("CURRICULUM_ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey)
	setString("CURRICULUM_JUDGE_MODEL", &cfg.Anthropic.JudgeModel)
	setString("CURRICULUM_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	setString("CURRICULUM_OPENAI_API_KEY", &cfg.Embedding.OpenAIAPIKey)
	setString("CURRICULUM_OPENAI_EMBED_MODEL", &cfg.Embedding.OpenAIModel)
	setString("CURRICULUM_ONNX_MODEL_PATH", &cfg.Embedding.ONNXModelPath)
	setString("CURRICULUM_ONNX_TOKENIZER_PATH", &cfg.Embedding.ONNXTokenizerPath)
	setString("CURRICULUM_DATA_DIR", &cfg.Storage.DataDir)
	setFloat("CURRICULUM_PROMOTION_THRESHOLD", &cfg.Curation.PromotionThreshold)
	setFloat("CURRICULUM_RETRIEVAL_MIN_QUALITY", &cfg.Retrieval.MinQuality)
	setInt("CURRICULUM_RETRIEVAL_LIMIT", &cfg.Retrieval.Limit)
	setDuration("CURRICULUM_RETRIEVAL_CACHE_TTL", &cfg.Retrieval.CacheTTL)
}

func setString(env string, dst *string) {
	if raw := os.Getenv(env); raw != "" {
		*dst = raw
	}
}

func setFloat(env string, dst *float64) {
	raw := os.Getenv(env)
	if raw == "" {
		return
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*dst = f
	} else {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", env, raw, err)
	}
}

func setInt(env string, dst *int) {
	raw := os.Getenv(env)
	if raw == "" {
		return
	}
	if i, err := strconv.Atoi(raw); err == nil {
		*dst = i
	} else {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", env, raw, err)
	}
}

func setDuration(env string, dst *time.Duration) {
	raw := os.Getenv(env)
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	} else {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", env, raw, err)
	}
}
