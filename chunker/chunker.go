// Package chunker converts windows of raw messages into embeddable chunks,
// discarding acknowledgement noise that would only pollute the vector store.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/becomeliminal/aide-go/core"
)

const (
	// DefaultMinTurnCount is the burst floor: shorter exchanges below the
	// character floor produce no chunks at all.
	DefaultMinTurnCount = 3

	// DefaultMinChunkChars is the minimum formatted length for a chunk to be
	// worth embedding.
	DefaultMinChunkChars = 100

	// DefaultMinWindow and DefaultMaxWindow bound the sliding window size in
	// messages.
	DefaultMinWindow = 3
	DefaultMaxWindow = 8
)

// Options configures chunking behavior.
type Options struct {
	MinTurnCount  int
	MinChunkChars int
	MinWindow     int
	MaxWindow     int
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		MinTurnCount:  DefaultMinTurnCount,
		MinChunkChars: DefaultMinChunkChars,
		MinWindow:     DefaultMinWindow,
		MaxWindow:     DefaultMaxWindow,
	}
}

// Chunk is a formatted, embeddable unit derived from one or more messages.
// It is not persisted by itself; it becomes a memory chunk once embedded.
type Chunk struct {
	Content   string
	Channel   string
	TurnCount int
	StartTime time.Time
	EndTime   time.Time
}

// trivialPattern matches pure acknowledgement/filler messages. Trivial
// messages never stand alone in a chunk, but they are kept for formatting
// context inside a chunk that has substantive content.
var trivialPattern = regexp.MustCompile(
	`^(?i)(ok(ay)?|k+|thanks?( you| a lot)?|thx|ty|lol|lmao|ha(ha)+|hm+|yes|yeah|yep|yup|no|nope|nah|sure|cool|nice|great|got it|sounds good|will do|👍|🙏|❤️)[.!?\s]*$`,
)

// IsTrivial reports whether a message is pure acknowledgement or filler.
func IsTrivial(content string) bool {
	return trivialPattern.MatchString(strings.TrimSpace(content))
}

// formatMessage renders a message the way it appears inside chunk content.
func formatMessage(m core.Message) string {
	speaker := "User"
	if m.Role == core.RoleAssistant {
		speaker = "Assistant"
	}
	return fmt.Sprintf("%s: %s", speaker, strings.TrimSpace(m.Content))
}

func formatWindow(msgs []core.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, formatMessage(m))
	}
	return strings.Join(parts, "\n")
}

func hasSubstance(msgs []core.Message) bool {
	for _, m := range msgs {
		if !IsTrivial(m.Content) {
			return true
		}
	}
	return false
}

func buildChunk(msgs []core.Message) Chunk {
	return Chunk{
		Content:   formatWindow(msgs),
		Channel:   msgs[0].Channel,
		TurnCount: len(msgs),
		StartTime: msgs[0].Timestamp,
		EndTime:   msgs[len(msgs)-1].Timestamp,
	}
}

// Chunks converts a message sequence into embeddable chunks.
//
// Short bursts below both the turn floor and the character floor produce
// nothing. Longer sequences are windowed with a one-message overlap so
// continuity survives chunk boundaries; each window is emitted only if it
// clears the length floor and contains at least one non-trivial message.
func Chunks(messages []core.Message, opts Options) []Chunk {
	if opts.MinWindow == 0 {
		opts = DefaultOptions()
	}
	if len(messages) == 0 {
		return nil
	}

	total := len(formatWindow(messages))
	if len(messages) < opts.MinTurnCount && total < opts.MinChunkChars {
		return nil
	}

	windowSize := len(messages)
	if windowSize > opts.MaxWindow {
		windowSize = opts.MaxWindow
	}
	if windowSize < opts.MinWindow {
		windowSize = opts.MinWindow
	}

	var chunks []Chunk
	emit := func(window []core.Message) {
		if len(window) == 0 || !hasSubstance(window) {
			return
		}
		c := buildChunk(window)
		if len(c.Content) < opts.MinChunkChars {
			return
		}
		chunks = append(chunks, c)
	}

	step := windowSize - 1
	if step < 1 {
		step = 1
	}
	for start := 0; ; start += step {
		end := start + windowSize
		if end >= len(messages) {
			emit(messages[start:])
			break
		}
		emit(messages[start:end])
	}
	return chunks
}

// RecentChunk combines all given messages into a single chunk for the hot
// write path right after an exchange. It returns nil when every message is
// trivial or the combined text is below the length floor.
func RecentChunk(messages []core.Message, opts Options) *Chunk {
	if opts.MinWindow == 0 {
		opts = DefaultOptions()
	}
	if len(messages) == 0 || !hasSubstance(messages) {
		return nil
	}
	c := buildChunk(messages)
	if len(c.Content) < opts.MinChunkChars {
		return nil
	}
	return &c
}
