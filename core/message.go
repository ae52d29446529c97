// Package core defines the shared types that flow between the conversation
// state manager, the turn engine, and the memory subsystems.
package core

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single raw message in an exchange. Messages are immutable
// once recorded; channel handlers create them and only the conversation
// state manager appends them to the turn log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel,omitempty"`
}

// EntryKind distinguishes the three kinds of turn-log entries.
type EntryKind string

const (
	// EntryUser is a user message entry.
	EntryUser EntryKind = "user"

	// EntryAssistant is an assistant response entry (content blocks with
	// ephemeral reasoning already stripped).
	EntryAssistant EntryKind = "assistant"

	// EntryToolResult carries the tool results fed back into the turn that
	// requested them.
	EntryToolResult EntryKind = "tool_result"
)

// TurnEntry is one unit of the conversation log. Entries are owned
// exclusively by the conversation state manager and are never mutated after
// append, except for the rollback of a trailing user entry.
type TurnEntry struct {
	Kind      EntryKind      `json:"kind"`
	Content   string         `json:"content,omitempty"` // user entries
	Blocks    []ContentBlock `json:"blocks,omitempty"`  // assistant and tool-result entries
	Channel   string         `json:"channel,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Text returns the plain-text view of the entry: the content for user
// entries, the concatenated text blocks for assistant entries.
func (e TurnEntry) Text() string {
	if e.Kind == EntryUser {
		return e.Content
	}
	var out string
	for _, b := range e.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}
