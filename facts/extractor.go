package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// extractionSystemPrompt instructs the model to act as a fact reconciler.
// It sees the current fact list and the new exchange and proposes operations
// rather than raw facts, so contradictions resolve instead of accumulating.
const extractionSystemPrompt = `You maintain a database of facts about a user, distilled from their conversations with an assistant.

You will receive the current facts (each with an id) and a new conversation exchange. Respond with a JSON array of operations:

[{"operation": "ADD", "content": "...", "category": "...", "confidence": 0.9},
 {"operation": "UPDATE", "target_fact_id": "...", "content": "...", "confidence": 0.9},
 {"operation": "DELETE", "target_fact_id": "..."},
 {"operation": "NOOP", "target_fact_id": "..."}]

Rules:
- ADD only durable, declarative facts about the user (preferences, relationships, circumstances, commitments). Never add small talk, one-off requests, or assistant output.
- UPDATE when the exchange supersedes an existing fact (moved cities, changed jobs). Write the full replacement content.
- DELETE when the user retracts or contradicts a fact without a replacement.
- NOOP when the exchange re-confirms an existing fact unchanged.
- category is one of: identity, preference, relationship, circumstance, commitment.
- confidence is 0.0-1.0; use lower values for inferred facts.
- Respond with the JSON array only. An empty array [] is the correct answer for exchanges with nothing durable.`

// ClaudeExtractor proposes fact operations via the Claude API.
type ClaudeExtractor struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClaudeExtractor creates an extractor. Extraction runs off the hot path,
// so a small fast model is the right default.
func NewClaudeExtractor(client *anthropic.Client, model string, maxTokens int64) *ClaudeExtractor {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &ClaudeExtractor{
		client:    client,
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

// Extract asks the model for reconciliation operations over the exchange.
func (e *ClaudeExtractor) Extract(ctx context.Context, exchange string, existing []*Fact) ([]Candidate, error) {
	var prompt strings.Builder
	prompt.WriteString("Current facts:\n")
	if len(existing) == 0 {
		prompt.WriteString("(none)\n")
	}
	for _, f := range existing {
		fmt.Fprintf(&prompt, "- id=%s [%s] %s\n", f.ID, f.Category, f.Content)
	}
	prompt.WriteString("\nNew exchange:\n")
	prompt.WriteString(exchange)

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: extractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.String())),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return parseCandidates(text)
}

// parseCandidates parses the model's JSON array, tolerating a markdown
// fence around it. Candidates with an unknown operation are dropped rather
// than failing the batch.
func parseCandidates(text string) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, nil
	}

	var raw []Candidate
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse extraction output: %w", err)
	}

	out := raw[:0]
	for _, c := range raw {
		switch c.Operation {
		case OpAdd, OpUpdate, OpDelete, OpNoop:
			out = append(out, c)
		}
	}
	return out, nil
}
