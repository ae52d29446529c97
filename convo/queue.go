package convo

import (
	"context"
	"fmt"
	"sync"
)

// TurnQueue serializes turn execution. Work enqueued on the queue runs only
// after all previously enqueued work has settled, success or failure, so the
// LLM pipeline never has two turns in flight. Enqueue itself never blocks on
// running work.
type TurnQueue struct {
	mu   sync.Mutex
	tail chan struct{} // closed when the most recently enqueued turn settles
}

// NewTurnQueue creates an empty turn queue.
func NewTurnQueue() *TurnQueue {
	return &TurnQueue{}
}

// Enqueue schedules work behind everything already queued and returns a
// future for its outcome. The returned channel delivers exactly one value:
// the work's error, or nil. A failing turn does not block later turns; it
// only settles with its error.
func (q *TurnQueue) Enqueue(ctx context.Context, work func(context.Context) error) <-chan error {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		result <- runIsolated(ctx, work)
	}()
	return result
}

// runIsolated executes work, converting a panic into an error so a single
// bad turn cannot take the queue down with it.
func runIsolated(ctx context.Context, work func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn panicked: %v", r)
		}
	}()
	return work(ctx)
}
