// Package anthropic implements the evaluation judge on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/markhodierne/curriculum-agent/core"
	"github.com/markhodierne/curriculum-agent/evaluation"
)

// Config configures the judge.
type Config struct {
	// APIKey authenticates with the Anthropic API. Required.
	APIKey string

	// Model is the judge model. Default: claude-3-5-haiku-latest.
	// A small model is enough for rubric scoring and keeps the
	// background evaluation cheap.
	Model string

	// MaxTokens caps the judge response. Default: 1024.
	MaxTokens int
}

// Judge scores interactions with a Claude model.
type Judge struct {
	client    sdk.Client
	model     string
	maxTokens int
}

// Compile-time check that Judge implements evaluation.Scorer.
var _ evaluation.Scorer = (*Judge)(nil)

// New creates a Judge.
func New(cfg Config) (*Judge, error) {
	if cfg.APIKey == "" {
		return nil, &core.ValidationError{Field: "apiKey", Reason: "missing"}
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Judge{
		client:    sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

const systemPrompt = `You are a strict evaluator of answers produced by a curriculum
question-answering assistant. The assistant answers teachers' questions about
primary maths curriculum objectives, grounded in a curriculum knowledge graph.

Score the answer on five dimensions, each in [0.0, 1.0]:

- grounding: is every claim supported by the graph evidence provided?
  1.0 = fully evidenced, 0.5 = partially evidenced, 0.0 = unsupported.
- accuracy: is the curriculum content correct?
  1.0 = no errors, 0.5 = minor errors, 0.0 = materially wrong.
- completeness: does the answer cover what the question asked?
  1.0 = complete, 0.5 = notable gaps, 0.0 = misses the question.
- pedagogy: is the teaching guidance sound and age-appropriate?
- clarity: is the answer well structured and plainly written?

Also list exactly three strengths, exactly three weaknesses, and exactly
three suggestions for improvement.

Respond with a single JSON object and nothing else:
{"grounding": 0.0, "accuracy": 0.0, "completeness": 0.0, "pedagogy": 0.0,
 "clarity": 0.0, "strengths": ["", "", ""], "weaknesses": ["", "", ""],
 "suggestions": ["", "", ""]}`

// judgeResponse is the JSON shape the judge model must return. Any
// overall the model volunteers is ignored.
type judgeResponse struct {
	Grounding    float64  `json:"grounding"`
	Accuracy     float64  `json:"accuracy"`
	Completeness float64  `json:"completeness"`
	Pedagogy     float64  `json:"pedagogy"`
	Clarity      float64  `json:"clarity"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Suggestions  []string `json:"suggestions"`
}

// Score sends the rubric prompt and parses the model's JSON judgment.
func (j *Judge) Score(ctx context.Context, req evaluation.Request) (core.Evaluation, error) {
	msg, err := j.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(j.model),
		MaxTokens: int64(j.maxTokens),
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		return core.Evaluation{}, &core.TransientServiceError{Service: "anthropic", Err: err}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	parsed, err := parseResponse(text.String())
	if err != nil {
		return core.Evaluation{}, err
	}

	return core.Evaluation{
		Grounding:    parsed.Grounding,
		Accuracy:     parsed.Accuracy,
		Completeness: parsed.Completeness,
		Pedagogy:     parsed.Pedagogy,
		Clarity:      parsed.Clarity,
		Strengths:    parsed.Strengths,
		Weaknesses:   parsed.Weaknesses,
		Suggestions:  parsed.Suggestions,
	}, nil
}

func buildPrompt(req evaluation.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION:\n%s\n\n", req.Query)
	fmt.Fprintf(&b, "ANSWER:\n%s\n\n", req.Answer)
	if len(req.CypherQueries) > 0 {
		b.WriteString("GRAPH QUERIES EXECUTED:\n")
		for _, q := range req.CypherQueries {
			fmt.Fprintf(&b, "  %s\n", q)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "GRAPH EVIDENCE:\n%s\n", req.Evidence)
	if req.EvidenceTruncated {
		b.WriteString("(evidence truncated for length)\n")
	}
	fmt.Fprintf(&b, "\nGROUNDING RATE: %.2f\nSELF-REPORTED CONFIDENCE: %.2f\n",
		req.GroundingRate, req.Confidence)
	b.WriteString("\nEvaluate the answer now.")
	return b.String()
}

// parseResponse extracts the JSON object from the model output. Models
// occasionally wrap JSON in prose or code fences, so parsing spans the
// outermost braces.
func parseResponse(text string) (judgeResponse, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return judgeResponse{}, &core.SchemaError{Field: "response", Reason: "no JSON object in judge output"}
	}

	var parsed judgeResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return judgeResponse{}, &core.SchemaError{Field: "response", Reason: err.Error()}
	}
	return parsed, nil
}
