package core

import (
	"context"
	"encoding/json"
)

// Tool is a capability the engine can invoke during a turn. Tool calls loop
// back into the same turn before the turn is considered complete.
type Tool interface {
	Name() string
	Description() string

	// InputSchema returns the JSON Schema object describing the tool input.
	InputSchema() map[string]interface{}

	// Execute runs the tool. A non-nil error means the invocation itself
	// failed; a ToolResult with Success=false reports a domain failure.
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ToolDefinition describes a tool declaratively. Concrete tools are built
// from definitions plus an execute function.
type ToolDefinition struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]interface{}
}

// FuncTool adapts a ToolDefinition and a function into a Tool.
type FuncTool struct {
	def ToolDefinition
	fn  func(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// NewFuncTool creates a Tool from a definition and an execute function.
func NewFuncTool(def ToolDefinition, fn func(ctx context.Context, input json.RawMessage) (*ToolResult, error)) *FuncTool {
	return &FuncTool{def: def, fn: fn}
}

func (t *FuncTool) Name() string                        { return t.def.ToolName }
func (t *FuncTool) Description() string                 { return t.def.ToolDescription }
func (t *FuncTool) InputSchema() map[string]interface{} { return t.def.Schema }

func (t *FuncTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	return t.fn(ctx, input)
}
