package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/becomeliminal/aide-go/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestToParamsSkipsEmptyEntries(t *testing.T) {
	entries := []core.TurnEntry{
		{Kind: core.EntryUser, Content: "hello"},
		{Kind: core.EntryUser, Content: ""},
		{Kind: core.EntryAssistant, Blocks: nil},
		{Kind: core.EntryAssistant, Blocks: []core.ContentBlock{core.NewTextBlock("hi")}},
	}
	params := toParams(entries)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
}

func TestToParamsToolRoundTrip(t *testing.T) {
	input := json.RawMessage(`{"query":"dentist"}`)
	entries := []core.TurnEntry{
		{Kind: core.EntryUser, Content: "when was my last dentist visit?"},
		{Kind: core.EntryAssistant, Blocks: []core.ContentBlock{
			core.NewTextBlock("Let me check."),
			core.NewToolUseBlock("toolu_01", "recall_memory", input),
		}},
		{Kind: core.EntryToolResult, Blocks: []core.ContentBlock{
			core.NewToolResultBlock("toolu_01", "Visited Dr. Hall in March", false),
		}},
	}
	params := toParams(entries)
	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(params))
	}
	// Tool results travel as user-role messages.
	if params[2].Role != "user" {
		t.Fatalf("tool results must be user role, got %q", params[2].Role)
	}
	if params[1].Role != "assistant" {
		t.Fatalf("assistant blocks must be assistant role, got %q", params[1].Role)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewToolRegistry()
	tool := core.NewFuncTool(core.ToolDefinition{
		ToolName:        "recall_memory",
		ToolDescription: "search memory",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string"},
			},
			"required": []string{"query"},
		},
	}, func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
		return &core.ToolResult{Success: true}, nil
	})
	r.Register(tool)

	got, ok := r.Get("recall_memory")
	if !ok || got.Name() != "recall_memory" {
		t.Fatal("registered tool not retrievable")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("unknown tool reported present")
	}
}

func TestRegistryToAPITools(t *testing.T) {
	r := NewToolRegistry()
	for _, name := range []string{"zeta", "alpha"} {
		name := name
		r.Register(core.NewFuncTool(core.ToolDefinition{
			ToolName:        name,
			ToolDescription: "tool " + name,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		}, func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true}, nil
		}))
	}

	apiTools := r.ToAPITools()
	if len(apiTools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(apiTools))
	}
	// Stable name order keeps prompts cacheable.
	if apiTools[0].OfTool.Name != "alpha" || apiTools[1].OfTool.Name != "zeta" {
		t.Fatalf("tools not sorted: %s, %s", apiTools[0].OfTool.Name, apiTools[1].OfTool.Name)
	}
}

func TestExecuteToolUnknown(t *testing.T) {
	e := &Engine{registry: NewToolRegistry(), log: discardLogger()}
	block := core.NewToolUseBlock("toolu_9", "missing_tool", json.RawMessage(`{}`))
	result := e.executeTool(context.Background(), block)
	if result.Type != core.BlockToolResult || !result.IsError {
		t.Fatalf("expected error result, got %+v", result)
	}
	if result.ToolUseID != "toolu_9" {
		t.Fatal("result not linked to the tool use block")
	}
}

func TestExecuteToolSuccessAndFailure(t *testing.T) {
	r := NewToolRegistry()
	r.Register(core.NewFuncTool(core.ToolDefinition{
		ToolName: "echo",
		Schema:   map[string]interface{}{"type": "object"},
	}, func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
		return &core.ToolResult{Success: true, Data: map[string]string{"echo": "ok"}}, nil
	}))
	r.Register(core.NewFuncTool(core.ToolDefinition{
		ToolName: "fail",
		Schema:   map[string]interface{}{"type": "object"},
	}, func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
		return &core.ToolResult{Success: false, Error: "domain failure"}, nil
	}))
	e := &Engine{registry: r, log: discardLogger()}

	ok := e.executeTool(context.Background(), core.NewToolUseBlock("a", "echo", json.RawMessage(`{}`)))
	if ok.IsError || ok.Content == "" {
		t.Fatalf("expected success result, got %+v", ok)
	}

	bad := e.executeTool(context.Background(), core.NewToolUseBlock("b", "fail", json.RawMessage(`{}`)))
	if !bad.IsError || bad.Content != "domain failure" {
		t.Fatalf("expected domain failure result, got %+v", bad)
	}
}
