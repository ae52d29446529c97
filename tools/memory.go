package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/becomeliminal/aide-go/core"
	"github.com/becomeliminal/aide-go/facts"
	"github.com/becomeliminal/aide-go/memory"
)

// MemoryTools exposes the memory and fact subsystems to the model. The
// engine already enriches every turn with retrieved memories; these tools
// let the model dig further on demand and manage facts explicitly.
func MemoryTools(mem *memory.Manager, factStore *facts.Store) []core.Tool {
	return []core.Tool{
		recallMemoryTool(mem),
		rememberFactTool(factStore),
		forgetFactTool(factStore),
	}
}

func recallMemoryTool(mem *memory.Manager) core.Tool {
	def := core.ToolDefinition{
		ToolName: "recall_memory",
		ToolDescription: "Search long-term memory of past conversations. " +
			"Use when the user refers to something not visible in the current conversation.",
		Schema: ObjectSchema(map[string]interface{}{
			"query": StringProperty("What to search for, phrased as the topic to recall"),
		}, "query"),
	}
	return core.NewFuncTool(def, func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
		if !mem.Ready() {
			return &core.ToolResult{Success: false, Error: "memory is unavailable right now"}, nil
		}
		results, err := mem.Retrieve(ctx, args.Query, nil)
		if err != nil {
			return &core.ToolResult{Success: false, Error: err.Error()}, nil
		}
		if len(results) == 0 {
			return &core.ToolResult{Success: true, Data: "No relevant memories found."}, nil
		}
		return &core.ToolResult{Success: true, Data: memory.FormatResults(results)}, nil
	})
}

func rememberFactTool(factStore *facts.Store) core.Tool {
	def := core.ToolDefinition{
		ToolName: "remember_fact",
		ToolDescription: "Save a durable fact about the user when they explicitly ask to be remembered, " +
			"e.g. \"remember that I park on level 3\".",
		Schema: ObjectSchema(map[string]interface{}{
			"content": StringProperty("The fact, as a short declarative statement about the user"),
			"category": StringEnumProperty("What kind of fact this is",
				"identity", "preference", "relationship", "circumstance", "commitment"),
		}, "content"),
	}
	return core.NewFuncTool(def, func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
		var args struct {
			Content  string `json:"content"`
			Category string `json:"category"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
		if !factStore.Ready() {
			return &core.ToolResult{Success: false, Error: "fact storage is unavailable right now"}, nil
		}
		f, err := factStore.Remember(ctx, args.Content, args.Category)
		if err != nil {
			return &core.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return &core.ToolResult{Success: true, Data: map[string]interface{}{
			"message": "Remembered.",
			"fact":    f.Content,
		}}, nil
	})
}

func forgetFactTool(factStore *facts.Store) core.Tool {
	def := core.ToolDefinition{
		ToolName: "forget_fact",
		ToolDescription: "Remove a stored fact about the user when they ask to forget something. " +
			"Only the single closest matching fact is removed.",
		Schema: ObjectSchema(map[string]interface{}{
			"query": StringProperty("The fact to forget, as the user described it"),
		}, "query"),
	}
	return core.NewFuncTool(def, func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
		if !factStore.Ready() {
			return &core.ToolResult{Success: false, Error: "fact storage is unavailable right now"}, nil
		}
		f, err := factStore.Forget(ctx, args.Query)
		if err != nil {
			return &core.ToolResult{Success: false, Error: err.Error()}, nil
		}
		if f == nil {
			return &core.ToolResult{Success: false, Error: "no stored fact matched closely enough to delete"}, nil
		}
		return &core.ToolResult{Success: true, Data: map[string]interface{}{
			"message": "Forgotten.",
			"fact":    f.Content,
		}}, nil
	})
}
