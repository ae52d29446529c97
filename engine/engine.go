// Package engine runs conversational turns: it assembles context from the
// turn log, facts and retrieved memories, drives the model through its tool
// loop, and hands the completed exchange to the memory pipeline.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/aide-go/chunker"
	"github.com/becomeliminal/aide-go/convo"
	"github.com/becomeliminal/aide-go/core"
	"github.com/becomeliminal/aide-go/facts"
	"github.com/becomeliminal/aide-go/memory"
)

const (
	// DefaultModel answers conversational turns.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxTokens bounds a single response.
	DefaultMaxTokens = 4096

	// DefaultMaxToolTurns bounds the tool loop within one turn.
	DefaultMaxToolTurns = 10

	// recordTimeout bounds the async post-turn memory pipeline. It runs
	// detached from the request context; a hung extraction call must not
	// leak a goroutine forever.
	recordTimeout = 30 * time.Second

	// contextExcludeWindow is how many recent turn-log entries retrieval
	// treats as already visible.
	contextExcludeWindow = 10
)

// StreamFunc receives response text as it arrives. done is true exactly
// once, after the final chunk.
type StreamFunc func(chunk string, done bool)

// Engine drives conversational turns against the Claude API.
type Engine struct {
	client   *anthropic.Client
	registry *ToolRegistry
	convo    *convo.Manager
	memory   *memory.Manager
	facts    *facts.Store
	log      *slog.Logger

	model        anthropic.Model
	maxTokens    int64
	systemPrompt string
	maxToolTurns int
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory attaches the long-term memory manager.
func WithMemory(m *memory.Manager) Option {
	return func(e *Engine) { e.memory = m }
}

// WithFacts attaches the fact store.
func WithFacts(f *facts.Store) Option {
	return func(e *Engine) { e.facts = f }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = anthropic.Model(model) }
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithSystemPrompt overrides the default system prompt.
func WithSystemPrompt(p string) Option {
	return func(e *Engine) { e.systemPrompt = p }
}

// WithMaxToolTurns overrides the tool loop bound.
func WithMaxToolTurns(n int) Option {
	return func(e *Engine) { e.maxToolTurns = n }
}

// New creates an engine over the conversation manager. Memory and facts are
// optional; without them the assistant still answers, just without recall.
func New(client *anthropic.Client, registry *ToolRegistry, conversation *convo.Manager, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		registry:     registry,
		convo:        conversation,
		log:          slog.Default(),
		model:        DefaultModel,
		maxTokens:    DefaultMaxTokens,
		systemPrompt: DefaultSystemPrompt,
		maxToolTurns: DefaultMaxToolTurns,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine")
	return e
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *ToolRegistry {
	return e.registry
}

// HandleMessage schedules a turn for the given user message. Turns are
// strictly serialized: the returned channel settles when this turn
// completes, after every earlier turn has settled. stream may be nil.
func (e *Engine) HandleMessage(ctx context.Context, channel, content string, stream StreamFunc) <-chan error {
	return e.convo.Enqueue(ctx, func(ctx context.Context) error {
		return e.runTurn(ctx, channel, content, stream)
	})
}

// runTurn executes one full turn: enrich, call the model, run the tool
// loop, persist, and kick off the async memory pipeline.
func (e *Engine) runTurn(ctx context.Context, channel, content string, stream StreamFunc) error {
	systemPrompt := e.buildSystemPrompt(ctx, content)

	e.convo.AppendUserMessage(channel, content)

	apiTools := e.registry.ToAPITools()
	var finalText string

	for turn := 0; ; turn++ {
		if turn >= e.maxToolTurns {
			e.persist()
			return fmt.Errorf("exceeded %d tool turns", e.maxToolTurns)
		}

		params := anthropic.MessageNewParams{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			Messages:  toParams(e.convo.Entries()),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
		}
		if len(apiTools) > 0 {
			params.Tools = apiTools
		}

		var resp *anthropic.Message
		var err error
		if stream != nil {
			resp, err = e.streamMessage(ctx, params, stream)
		} else {
			resp, err = e.client.Messages.New(ctx, params)
		}
		if err != nil {
			// A turn that never got an answer must not leave its user
			// message orphaned in the log. Mid-loop failures keep their
			// entries; the rollback guards itself.
			if e.convo.RollbackLastUserMessage() {
				e.log.Warn("rolled back unanswered user message", "error", err)
			}
			return fmt.Errorf("model call: %w", err)
		}

		blocks := blocksFromResponse(resp)
		e.convo.AppendAssistantResponse(blocks)

		var toolResults []core.ContentBlock
		for _, b := range blocks {
			switch b.Type {
			case core.BlockText:
				finalText += b.Text
			case core.BlockToolUse:
				toolResults = append(toolResults, e.executeTool(ctx, b))
			}
		}

		if len(toolResults) == 0 {
			break
		}
		e.convo.AppendToolResults(toolResults)
	}

	if stream != nil {
		stream("", true)
	}

	e.persist()
	go e.recordTurn(channel, content, finalText)
	return nil
}

// buildSystemPrompt assembles the base prompt, the known facts, and the
// retrieved memories. Both enrichments are best-effort: a failing memory
// subsystem degrades to a blank section, never to a failed turn.
func (e *Engine) buildSystemPrompt(ctx context.Context, query string) string {
	parts := []string{e.systemPrompt}

	if section := facts.FormatFacts(e.facts.List()); section != "" {
		parts = append(parts, section)
	}

	if e.memory.Ready() {
		results, err := e.memory.Retrieve(ctx, query, e.convo.RecentTexts(contextExcludeWindow))
		if err != nil {
			e.log.Warn("memory retrieval failed, answering without recall", "error", err)
		} else if section := memory.FormatResults(results); section != "" {
			parts = append(parts, section)
		}
	}

	return strings.Join(parts, "\n\n")
}

// executeTool runs one tool invocation and renders its result block.
func (e *Engine) executeTool(ctx context.Context, b core.ContentBlock) core.ContentBlock {
	tool, ok := e.registry.Get(b.Name)
	if !ok {
		return core.NewToolResultBlock(b.ID, fmt.Sprintf("unknown tool: %s", b.Name), true)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, b.Input)
	e.log.Debug("tool executed",
		"tool", b.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil)

	if err != nil {
		return core.NewToolResultBlock(b.ID, err.Error(), true)
	}
	if result == nil {
		return core.NewToolResultBlock(b.ID, "no result", true)
	}
	if !result.Success {
		return core.NewToolResultBlock(b.ID, result.Error, true)
	}
	data, merr := json.Marshal(result.Data)
	if merr != nil {
		return core.NewToolResultBlock(b.ID, fmt.Sprintf("marshal result: %s", merr), true)
	}
	return core.NewToolResultBlock(b.ID, string(data), false)
}

// persist writes the recovery document. Persistence failure is logged, not
// fatal: the turn already answered.
func (e *Engine) persist() {
	if err := e.convo.Persist(); err != nil {
		e.log.Warn("persist conversation state failed", "error", err)
	}
}

// recordTurn runs the post-turn memory pipeline off the hot path: chunk the
// exchange, store it, and reconcile facts. Runs detached from the request
// context so a slow pipeline never delays the next turn.
func (e *Engine) recordTurn(channel, userContent, assistantText string) {
	if assistantText == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	now := time.Now().UTC()
	exchange := chunker.RecentChunk([]core.Message{
		{Role: core.RoleUser, Content: userContent, Timestamp: now, Channel: channel},
		{Role: core.RoleAssistant, Content: assistantText, Timestamp: now, Channel: channel},
	}, chunker.DefaultOptions())
	if exchange == nil {
		return
	}

	var chunkID string
	if e.memory.Ready() {
		stored, err := e.memory.RecordExchange(ctx, exchange)
		if err != nil {
			e.log.Warn("record exchange failed", "error", err)
		} else if stored != nil {
			chunkID = stored.ID
		}
	}

	if e.facts.Ready() {
		if err := e.facts.ProcessExchange(ctx, exchange.Content, chunkID); err != nil {
			e.log.Warn("fact extraction failed", "error", err)
		}
	}
}

// streamMessage calls the streaming API, forwarding text deltas and
// returning the accumulated message.
func (e *Engine) streamMessage(ctx context.Context, params anthropic.MessageNewParams, stream StreamFunc) (*anthropic.Message, error) {
	s := e.client.Messages.NewStreaming(ctx, params)
	defer s.Close()

	message := anthropic.Message{}
	for s.Next() {
		event := s.Current()
		if err := message.Accumulate(event); err != nil {
			e.log.Warn("stream accumulation error", "error", err)
		}
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				stream(delta.Text, false)
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}

// DefaultSystemPrompt is the assistant's base persona.
const DefaultSystemPrompt = `You are a personal assistant with persistent memory across conversations.

GUIDELINES:
- Be conversational, concise, and direct.
- You may be given "Known facts about the user" and "Relevant past conversations". Treat them as your own memory: use them naturally, never recite them back or mention that they were provided.
- When the user refers to something you cannot see, use recall_memory before saying you don't know.
- When the user explicitly asks you to remember or forget something, use remember_fact or forget_fact and confirm briefly.
- If memory is unavailable, answer from the current conversation alone; never refuse to answer because memory is down.`
