package core

import "encoding/json"

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one block of an assistant response or tool exchange.
// It mirrors the provider's content block union closely enough to round-trip
// a turn, without depending on the provider SDK in the persistence layer.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Thinking blocks. Ephemeral: never survives past appendAssistantResponse.
	Thinking string `json:"thinking,omitempty"`

	// Tool use blocks.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool result blocks.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// NewTextBlock creates a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewThinkingBlock creates an ephemeral reasoning block.
func NewThinkingBlock(thinking string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: thinking}
}

// NewToolUseBlock creates a tool invocation block.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// NewToolResultBlock creates a tool result block.
func NewToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// StripEphemeral returns the blocks with all thinking segments removed.
// Reasoning blocks must never reach the persisted log or a later turn's
// context.
func StripEphemeral(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == BlockThinking {
			continue
		}
		out = append(out, b)
	}
	return out
}
