package engine

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/aide-go/core"
)

// toParams converts the turn log into API message params. Entries with no
// renderable content are skipped; the API rejects empty messages.
func toParams(entries []core.TurnEntry) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case core.EntryUser:
			if e.Content == "" {
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(e.Content)))

		case core.EntryAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(e.Blocks))
			for _, b := range e.Blocks {
				switch b.Type {
				case core.BlockText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case core.BlockToolUse:
					blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, b.Input, b.Name))
				}
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case core.EntryToolResult:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(e.Blocks))
			for _, b := range e.Blocks {
				if b.Type == core.BlockToolResult {
					blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
				}
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// blocksFromResponse converts an API response into content blocks for the
// turn log. Thinking blocks are carried here so streaming callers can see
// them; the conversation manager strips them before they reach the log.
func blocksFromResponse(resp *anthropic.Message) []core.ContentBlock {
	blocks := make([]core.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, core.NewTextBlock(block.Text))
		case "thinking":
			blocks = append(blocks, core.NewThinkingBlock(block.Thinking))
		case "tool_use":
			inputBytes, _ := json.Marshal(block.Input)
			blocks = append(blocks, core.NewToolUseBlock(block.ID, block.Name, inputBytes))
		}
	}
	return blocks
}
