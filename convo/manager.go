// Package convo owns the shared conversation turn log. All channels feed
// their input through a single Manager, which serializes turns, coalesces
// rapid-fire messages, and persists the log for crash recovery. No other
// component appends to the log directly.
package convo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/becomeliminal/aide-go/core"
)

// DefaultCoalesceWindow is the debounce window for rapid-fire message
// batching.
const DefaultCoalesceWindow = 3 * time.Second

// Manager is the sole owner of the conversation state: the ordered turn log,
// the turn queue, the rapid-fire pending buffers, and the recovery document
// on disk.
type Manager struct {
	mu            sync.Mutex
	entries       []core.TurnEntry
	lastPersisted time.Time

	path  string
	queue *TurnQueue
	log   *slog.Logger

	coalesceMu sync.Mutex
	pending    map[string]*pendingBatch
	window     time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithCoalesceWindow overrides the rapid-fire debounce window.
func WithCoalesceWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// New creates a Manager backed by the recovery document at path. An empty
// path disables persistence. A missing or unreadable document is never
// fatal: the manager starts with an empty log.
func New(path string, opts ...Option) *Manager {
	m := &Manager{
		path:    path,
		queue:   NewTurnQueue(),
		log:     slog.Default(),
		pending: make(map[string]*pendingBatch),
		window:  DefaultCoalesceWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "convo")

	if path != "" {
		entries, persisted, err := loadState(path)
		if err != nil {
			m.log.Warn("conversation state unreadable, starting empty", "path", path, "error", err)
		} else {
			m.entries = entries
			m.lastPersisted = persisted
			if len(entries) > 0 {
				m.log.Info("conversation state recovered", "entries", len(entries), "lastPersisted", persisted)
			}
		}
	}
	return m
}

// AppendUserMessage appends a user entry to the turn log. No I/O happens
// here; persistence is a separate step after the turn completes.
func (m *Manager) AppendUserMessage(channel, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, core.TurnEntry{
		Kind:      core.EntryUser,
		Content:   content,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
	})
}

// AppendAssistantResponse appends an assistant entry, stripping any
// ephemeral reasoning blocks first. Stripped segments never reach the log
// or the next turn's context.
func (m *Manager) AppendAssistantResponse(blocks []core.ContentBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, core.TurnEntry{
		Kind:      core.EntryAssistant,
		Blocks:    core.StripEphemeral(blocks),
		Timestamp: time.Now().UTC(),
	})
}

// AppendToolResults appends a tool-result entry.
func (m *Manager) AppendToolResults(blocks []core.ContentBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, core.TurnEntry{
		Kind:      core.EntryToolResult,
		Blocks:    blocks,
		Timestamp: time.Now().UTC(),
	})
}

// RollbackLastUserMessage pops the most recent entry iff it is a user entry,
// so a failed turn does not leave an orphaned, unanswered message polluting
// future context. Calling it on an empty log or after a non-user entry is a
// no-op. Reports whether an entry was removed.
func (m *Manager) RollbackLastUserMessage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if n == 0 || m.entries[n-1].Kind != core.EntryUser {
		return false
	}
	m.entries = m.entries[:n-1]
	return true
}

// Entries returns a copy of the turn log.
func (m *Manager) Entries() []core.TurnEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.TurnEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of entries in the log.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RecentTexts returns the plain-text contents of up to n most recent
// entries, oldest first. Used by retrieval to avoid surfacing memories that
// duplicate what is already in the hot context.
func (m *Manager) RecentTexts(n int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.entries) - n
	if start < 0 {
		start = 0
	}
	var out []string
	for _, e := range m.entries[start:] {
		if t := e.Text(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Enqueue schedules a turn on the serialization queue. Turns run strictly in
// enqueue order; a failure settles that turn's future without blocking the
// next.
func (m *Manager) Enqueue(ctx context.Context, work func(context.Context) error) <-chan error {
	return m.queue.Enqueue(ctx, work)
}
