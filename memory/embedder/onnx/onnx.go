//go:build onnx

// Package onnx embeds text with a local sentence-transformer model via
// ONNX Runtime. No network dependency; suitable for offline use with
// all-MiniLM-L6-v2 or a compatible BERT-family model.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/markhodierne/curriculum-agent/core"
)

// Config configures the local embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the HuggingFace tokenizer.json.
	TokenizerPath string

	// LibraryPath locates libonnxruntime. Falls back to the
	// ONNXRUNTIME_LIB environment variable.
	LibraryPath string

	// Dimensions is the embedding vector size. Default: 384
	// (all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequence is the token window including [CLS]/[SEP].
	// Default: 128.
	MaxSequence int
}

// Embedder runs a BERT-family model locally through ONNX Runtime.
type Embedder struct {
	session     *ort.DynamicAdvancedSession
	vocab       map[string]int
	dimensions  int
	maxSequence int
}

// WordPiece special token ids for BERT-family vocabularies.
const (
	unkTokenID int64 = 100
	clsTokenID int64 = 101
	sepTokenID int64 = 102
)

// New creates a local embedder from a model and tokenizer on disk.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, &core.ValidationError{Field: "modelPath", Reason: "missing"}
	}
	if cfg.TokenizerPath == "" {
		return nil, &core.ValidationError{Field: "tokenizerPath", Reason: "missing"}
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSequence <= 0 {
		cfg.MaxSequence = 128
	}

	lib := cfg.LibraryPath
	if lib == "" {
		lib = os.Getenv("ONNXRUNTIME_LIB")
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initializing onnx runtime: %w", err)
	}

	vocab, err := loadVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating onnx session: %w", err)
	}

	return &Embedder{
		session:     session,
		vocab:       vocab,
		dimensions:  cfg.Dimensions,
		maxSequence: cfg.MaxSequence,
	}, nil
}

// Embed tokenizes, runs the model, and mean-pools the hidden states into
// a unit vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &core.ValidationError{Field: "text", Reason: "empty or whitespace-only"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.encode(text)

	shape := ort.NewShape(1, int64(e.maxSequence))
	inputIDs, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attention, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	defer attention.Destroy()

	tokenTypes, err := ort.NewTensor(shape, make([]int64, e.maxSequence))
	if err != nil {
		return nil, fmt.Errorf("creating token_type_ids tensor: %w", err)
	}
	defer tokenTypes.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attention, tokenTypes}, outputs); err != nil {
		return nil, &core.TransientServiceError{Service: "onnx inference", Err: err}
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, &core.SchemaError{Field: "last_hidden_state", Reason: "unexpected tensor type"}
	}

	vec, err := meanPool(hidden.GetData(), hidden.GetShape(), mask, e.dimensions)
	if err != nil {
		return nil, err
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// encode lowercases, WordPiece-tokenizes, and frames the text as
// [CLS] tokens... [SEP] padded to the sequence window.
func (e *Embedder) encode(text string) (ids, mask []int64) {
	ids = make([]int64, e.maxSequence)
	mask = make([]int64, e.maxSequence)

	ids[0] = clsTokenID
	mask[0] = 1
	pos := 1

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		for _, id := range e.wordPiece(word) {
			if pos >= e.maxSequence-1 {
				break
			}
			ids[pos] = id
			mask[pos] = 1
			pos++
		}
	}

	ids[pos] = sepTokenID
	mask[pos] = 1
	return ids, mask
}

// wordPiece greedily matches the longest vocabulary prefix, marking
// continuations with the ## prefix. Unmatched characters map to [UNK].
func (e *Embedder) wordPiece(word string) []int64 {
	var out []int64
	start := 0
	for start < len(word) {
		matched := false
		for end := len(word); end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := e.vocab[piece]; ok {
				out = append(out, int64(id))
				start = end
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, unkTokenID)
			start++
		}
	}
	return out
}

// meanPool averages hidden states over attended positions.
// Expects shape [1, seq, hidden].
func meanPool(data []float32, shape []int64, mask []int64, dims int) ([]float32, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, &core.SchemaError{Field: "last_hidden_state", Reason: fmt.Sprintf("unexpected shape %v", shape)}
	}
	seqLen, hidden := int(shape[1]), int(shape[2])
	if hidden != dims {
		return nil, &core.SchemaError{Field: "embedding", Reason: "dimension mismatch"}
	}

	vec := make([]float32, dims)
	var attended float32
	for i := 0; i < seqLen && i < len(mask); i++ {
		if mask[i] == 0 {
			continue
		}
		attended++
		row := data[i*hidden : (i+1)*hidden]
		for j, v := range row {
			vec[j] += v
		}
	}
	if attended == 0 {
		return nil, &core.SchemaError{Field: "attention_mask", Reason: "no attended tokens"}
	}
	for j := range vec {
		vec[j] /= attended
	}
	return vec, nil
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i, v := range vec {
		vec[i] = v / n
	}
	return vec
}

// loadVocab reads the WordPiece vocabulary out of a HuggingFace
// tokenizer.json.
func loadVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocabulary", path)
	}
	return parsed.Model.Vocab, nil
}
