package chromem

import (
	"context"
	"testing"
	"time"

	"github.com/becomeliminal/aide-go/memory"
	"github.com/becomeliminal/aide-go/memory/embedder/mock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storeChunk(t *testing.T, s *Store, content string, tier memory.Tier) *memory.Chunk {
	t.Helper()
	ctx := context.Background()
	emb, err := mock.New().Embed(ctx, content)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	c := &memory.Chunk{
		ID:             memory.NewChunkID(tier, now),
		Content:        content,
		Channel:        "websocket",
		Tier:           tier,
		CreatedAt:      now,
		LastAccessedAt: now,
		TurnCount:      2,
		Embedding:      emb,
	}
	if err := s.AddChunks(ctx, []*memory.Chunk{c}); err != nil {
		t.Fatalf("add chunk: %v", err)
	}
	return c
}

func TestAddAndSearchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := storeChunk(t, s, "User: my landlord's number is 555-0142\nAssistant: Saved.", memory.TierWarm)
	storeChunk(t, s, "User: what's a good pasta recipe?\nAssistant: Cacio e pepe.", memory.TierWarm)

	if s.CountChunks() != 2 {
		t.Fatalf("expected 2 chunks, got %d", s.CountChunks())
	}

	// Searching with the stored chunk's own embedding must return it first
	// with similarity ~1.
	results, err := s.SearchChunks(ctx, c.Embedding, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != c.ID {
		t.Fatalf("expected exact match first, got %s", results[0].Chunk.ID)
	}
	if results[0].Similarity < 0.99 {
		t.Fatalf("self-similarity should be ~1, got %f", results[0].Similarity)
	}

	got := results[0].Chunk
	if got.Content != c.Content || got.Channel != c.Channel || got.Tier != c.Tier || got.TurnCount != c.TurnCount {
		t.Fatalf("round-trip mismatch: %+v vs %+v", got, c)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Fatalf("created_at lost precision: %v vs %v", got.CreatedAt, c.CreatedAt)
	}
}

func TestSearchClampsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty store: no error, no results.
	results, err := s.SearchChunks(ctx, make([]float32, 384), 10)
	if err != nil {
		t.Fatalf("search empty store: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %d", len(results))
	}

	c := storeChunk(t, s, "User: a single stored exchange about the weekend plans", memory.TierWarm)
	results, err = s.SearchChunks(ctx, c.Embedding, 20)
	if err != nil {
		t.Fatalf("search with oversized limit: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestTouchChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := storeChunk(t, s, "User: remind me about the vet appointment next Tuesday morning", memory.TierWarm)
	later := time.Now().UTC().Add(time.Hour)

	// Unknown IDs are skipped, not errors.
	if err := s.TouchChunks(ctx, []string{c.ID, "warm-NOPE"}, later); err != nil {
		t.Fatalf("touch: %v", err)
	}

	results, err := s.SearchChunks(ctx, c.Embedding, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Chunk.LastAccessedAt.Equal(later) {
		t.Fatalf("lastAccessedAt not advanced: %v", results[0].Chunk.LastAccessedAt)
	}
	if !results[0].Chunk.CreatedAt.Equal(c.CreatedAt) {
		t.Fatal("touch must not change createdAt")
	}
}

func TestUpdateTier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := storeChunk(t, s, "User: the old apartment lease ended back in January this year", memory.TierWarm)
	if err := s.UpdateTier(ctx, c.ID, memory.TierCold); err != nil {
		t.Fatalf("update tier: %v", err)
	}

	results, err := s.SearchChunks(ctx, c.Embedding, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Chunk.Tier != memory.TierCold {
		t.Fatalf("expected cold tier, got %q", results[0].Chunk.Tier)
	}
}

func TestDeleteChunksAndDeleteWhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := storeChunk(t, s, "User: warm chunk that stays around for the duration", memory.TierWarm)
	b := storeChunk(t, s, "User: cold chunk eligible for the retention sweep", memory.TierCold)

	if err := s.DeleteWhere(ctx, nil); err == nil {
		t.Fatal("unfiltered delete must be refused")
	}

	if err := s.DeleteWhere(ctx, map[string]string{"tier": string(memory.TierCold)}); err != nil {
		t.Fatalf("delete where: %v", err)
	}
	if s.CountChunks() != 1 {
		t.Fatalf("expected 1 chunk after sweep, got %d", s.CountChunks())
	}
	_ = b

	if err := s.DeleteChunks(ctx, []string{a.ID}); err != nil {
		t.Fatalf("delete by id: %v", err)
	}
	if s.CountChunks() != 0 {
		t.Fatalf("expected empty store, got %d", s.CountChunks())
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := storeChunk(t, s, "User: I keep the spare key under the blue flowerpot", memory.TierWarm)
	s.Close()

	reopened, err := New(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.CountChunks() != 1 {
		t.Fatalf("expected 1 chunk after reopen, got %d", reopened.CountChunks())
	}
	results, err := reopened.SearchChunks(ctx, c.Embedding, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Chunk.Content != c.Content {
		t.Fatal("chunk content lost across reopen")
	}
}
