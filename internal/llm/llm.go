// Package llm provides a minimal chat-completions client used by the
// extraction, consolidation, and recall pipelines.
//
// All prompt-driven collaborators (the extraction service, theme synthesis,
// the sufficiency verifier) are built on the two-method Client interface so
// tests can substitute deterministic stubs.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client generates text and structured JSON from prompts.
type Client interface {
	// Generate returns the model's plain-text completion for the prompt.
	Generate(ctx context.Context, system, prompt string) (string, error)

	// GenerateJSON asks for a JSON response and unmarshals it into out.
	GenerateJSON(ctx context.Context, system, prompt string, out any) error
}

// DecodeJSON extracts the first JSON object or array from a model response
// and unmarshals it. Models routinely wrap JSON in markdown fences or prose.
func DecodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		text = strings.TrimPrefix(text, "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return fmt.Errorf("no JSON found in response")
	}
	end := strings.LastIndexAny(text, "}]")
	if end < start {
		return fmt.Errorf("unterminated JSON in response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}
