package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/becomeliminal/aide-go/memory/embedder/mock"
)

type countingEmbedder struct {
	*mock.Embedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.Embedder.Embed(ctx, text)
}

func TestReadThrough(t *testing.T) {
	inner := &countingEmbedder{Embedder: mock.New()}
	c, err := New(inner, 128)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	first, err := c.Embed(context.Background(), "the same query text")
	if err != nil {
		t.Fatal(err)
	}
	// ristretto admits asynchronously.
	time.Sleep(20 * time.Millisecond)

	second, err := c.Embed(context.Background(), "the same query text")
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached vector differs from computed vector")
		}
	}
	if got := inner.calls.Load(); got > 2 {
		t.Fatalf("expected at most 2 inner calls, got %d", got)
	}
}

func TestDimensionsDelegates(t *testing.T) {
	inner := &countingEmbedder{Embedder: mock.New()}
	c, err := New(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Dimensions() != inner.Dimensions() {
		t.Fatal("dimensions must match inner embedder")
	}
}
