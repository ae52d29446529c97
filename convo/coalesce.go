package convo

import (
	"strings"
	"time"
)

// pendingBatch buffers rapid-fire messages from one sender while the
// debounce window is open.
type pendingBatch struct {
	contents []string
	timer    *time.Timer
}

// QueueRapidFire buffers a message from sender and (re)arms the debounce
// timer. Messages arriving within the window are coalesced into a single
// batch, joined by a paragraph break, so a user firing quick follow-ups
// before the assistant replies does not spawn several serialized LLM calls.
// Each new message resets the window. onBatch runs once per batch, off the
// caller's goroutine.
func (m *Manager) QueueRapidFire(sender, content string, onBatch func(batched string)) {
	m.coalesceMu.Lock()
	defer m.coalesceMu.Unlock()

	if b, ok := m.pending[sender]; ok {
		b.contents = append(b.contents, content)
		b.timer.Reset(m.window)
		return
	}

	b := &pendingBatch{contents: []string{content}}
	b.timer = time.AfterFunc(m.window, func() {
		m.flushPending(sender, onBatch)
	})
	m.pending[sender] = b
}

// FlushRapidFire forces any pending batch for sender to fire immediately.
func (m *Manager) FlushRapidFire(sender string, onBatch func(batched string)) {
	m.coalesceMu.Lock()
	b, ok := m.pending[sender]
	if ok {
		b.timer.Stop()
	}
	m.coalesceMu.Unlock()
	if ok {
		m.flushPending(sender, onBatch)
	}
}

func (m *Manager) flushPending(sender string, onBatch func(batched string)) {
	m.coalesceMu.Lock()
	b, ok := m.pending[sender]
	if ok {
		delete(m.pending, sender)
	}
	m.coalesceMu.Unlock()

	if !ok || len(b.contents) == 0 {
		return
	}
	onBatch(strings.Join(b.contents, "\n\n"))
}
