package memory

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/becomeliminal/aide-go/chunker"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }

// fakeStore serves canned similarities so tests can shape the score
// distribution exactly.
type fakeStore struct {
	chunks  map[string]*Chunk
	sims    map[string]float64
	touched map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunks:  map[string]*Chunk{},
		sims:    map[string]float64{},
		touched: map[string]time.Time{},
	}
}

func (s *fakeStore) add(c *Chunk, sim float64) {
	s.chunks[c.ID] = c
	s.sims[c.ID] = sim
}

func (s *fakeStore) AddChunks(ctx context.Context, chunks []*Chunk) error {
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *fakeStore) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	var out []*ScoredChunk
	for id, c := range s.chunks {
		out = append(out, &ScoredChunk{Chunk: c, Similarity: s.sims[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) TouchChunks(ctx context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		s.touched[id] = at
		if c, ok := s.chunks[id]; ok {
			c.LastAccessedAt = at
		}
	}
	return nil
}

func (s *fakeStore) UpdateTier(ctx context.Context, id string, tier Tier) error {
	if c, ok := s.chunks[id]; ok {
		c.Tier = tier
	}
	return nil
}

func (s *fakeStore) DeleteChunks(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

func (s *fakeStore) DeleteWhere(ctx context.Context, filters map[string]string) error { return nil }
func (s *fakeStore) CountChunks() int                                                 { return len(s.chunks) }
func (s *fakeStore) Close() error                                                     { return nil }

func testChunk(id, content string, lastAccess time.Time) *Chunk {
	return &Chunk{
		ID:             id,
		Content:        content,
		Channel:        "websocket",
		Tier:           TierWarm,
		CreatedAt:      lastAccess,
		LastAccessedAt: lastAccess,
		TurnCount:      2,
	}
}

func TestAdaptiveCut(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		want   int
	}{
		{"gap after tight cluster", []float64{0.9, 0.85, 0.82, 0.40}, 3},
		{"no gap keeps up to max", []float64{0.9, 0.88, 0.86, 0.84, 0.82}, 5},
		{"gap inside protected minimum", []float64{0.9, 0.5, 0.48}, 2},
		{"fewer than minimum", []float64{0.9}, 1},
		{"empty", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := adaptiveCut(tc.scores, 2, 10, 0.10); got != tc.want {
				t.Fatalf("adaptiveCut(%v) = %d, want %d", tc.scores, got, tc.want)
			}
		})
	}
}

func TestAdaptiveCutRespectsMax(t *testing.T) {
	scores := make([]float64, 20)
	for i := range scores {
		scores[i] = 0.9 - float64(i)*0.001
	}
	if got := adaptiveCut(scores, 2, 10, 0.10); got != 10 {
		t.Fatalf("expected cap at 10, got %d", got)
	}
}

func TestRetrieveSimilarityFloor(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.add(testChunk("a", "User: I moved to Berlin last spring for the new job", now), 0.80)
	store.add(testChunk("b", "User: the dishwasher manual is in the kitchen drawer", now), 0.10)

	m := NewManager(store, &fakeEmbedder{dim: 4})
	results, err := m.Retrieve(context.Background(), "where do I live?", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result above floor, got %d", len(results))
	}
	if !strings.Contains(results[0].Content, "Berlin") {
		t.Fatalf("wrong result surfaced: %q", results[0].Content)
	}
}

func TestRetrieveRecencyBreaksTies(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.add(testChunk("fresh", "User: planning the trip to Lisbon, flights look cheap in June", now.Add(-1*time.Hour)), 0.70)
	store.add(testChunk("stale", "User: that Lisbon trip two years back was great, we should go again", now.Add(-40*24*time.Hour)), 0.70)

	m := NewManager(store, &fakeEmbedder{dim: 4})
	results, err := m.Retrieve(context.Background(), "Lisbon", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected both chunks, got %d", len(results))
	}
	if !strings.Contains(results[0].Content, "flights look cheap") {
		t.Fatalf("recently accessed chunk should rank first, got %q", results[0].Content)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("fresh chunk should outscore stale at equal similarity: %f vs %f",
			results[0].Score, results[1].Score)
	}
}

func TestRetrieveTouchesWhatItReturns(t *testing.T) {
	store := newFakeStore()
	old := time.Now().UTC().Add(-72 * time.Hour)
	store.add(testChunk("a", "User: my sister's birthday is March 14th, remind me each year", old), 0.80)
	store.add(testChunk("b", "User: nothing relevant about cooking pasta correctly here", old), 0.05)

	m := NewManager(store, &fakeEmbedder{dim: 4})
	if _, err := m.Retrieve(context.Background(), "birthday", nil); err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if _, ok := store.touched["a"]; !ok {
		t.Fatal("returned chunk was not touched")
	}
	if !store.chunks["a"].LastAccessedAt.After(old) {
		t.Fatal("lastAccessedAt did not advance")
	}
	if _, ok := store.touched["b"]; ok {
		t.Fatal("filtered-out chunk must not be touched")
	}
}

func TestRetrieveExcludesHotContext(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	inWindow := "User: can you reschedule the dentist to Thursday afternoon?\nAssistant: Done, moved to Thursday 3pm."
	store.add(testChunk("dup", inWindow, now), 0.90)
	store.add(testChunk("other", "User: the dentist said I need a follow-up cleaning in six months", now), 0.70)

	m := NewManager(store, &fakeEmbedder{dim: 4})
	exclude := []string{"can you reschedule the dentist to Thursday afternoon?"}
	results, err := m.Retrieve(context.Background(), "dentist", exclude)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for _, r := range results {
		if strings.Contains(r.Content, "reschedule the dentist") {
			t.Fatal("chunk already in the hot context was returned")
		}
	}
	if len(results) != 1 {
		t.Fatalf("expected the non-duplicated chunk, got %d results", len(results))
	}
}

func TestRetrieveShortExcludeTextsIgnored(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.add(testChunk("a", "User: ok so the plan is to fly out Friday morning and return Sunday night", now), 0.80)

	m := NewManager(store, &fakeEmbedder{dim: 4})
	results, err := m.Retrieve(context.Background(), "travel plan", []string{"ok"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatal("a trivial exclude text must not suppress real memories")
	}
}

func TestNilManagerIsInert(t *testing.T) {
	var m *Manager
	if m.Ready() {
		t.Fatal("nil manager reported ready")
	}
	results, err := m.Retrieve(context.Background(), "anything", nil)
	if err != nil || results != nil {
		t.Fatalf("nil manager should no-op, got %v, %v", results, err)
	}
	c, err := m.RecordExchange(context.Background(), &chunker.Chunk{Content: "x"})
	if err != nil || c != nil {
		t.Fatalf("nil manager should no-op on record, got %v, %v", c, err)
	}
}

func TestRecordExchange(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, &fakeEmbedder{dim: 4})

	c, err := m.RecordExchange(context.Background(), &chunker.Chunk{
		Content:   "User: I'm allergic to shellfish, keep that in mind for restaurants.\nAssistant: Noted.",
		Channel:   "telegram",
		TurnCount: 2,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if c == nil {
		t.Fatal("expected a stored chunk")
	}
	if c.Tier != TierWarm {
		t.Fatalf("new chunks must start warm, got %q", c.Tier)
	}
	if !strings.HasPrefix(c.ID, "warm-") {
		t.Fatalf("chunk id should carry the tier prefix, got %q", c.ID)
	}
	if store.CountChunks() != 1 {
		t.Fatalf("expected 1 chunk in store, got %d", store.CountChunks())
	}
	if c.LastAccessedAt.Before(c.CreatedAt) {
		t.Fatal("lastAccessedAt must not precede createdAt")
	}
}

func TestHumanAge(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{2 * time.Hour, "2 hours ago"},
		{36 * time.Hour, "1 day ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{16 * 24 * time.Hour, "2 weeks ago"},
	}
	for _, tc := range cases {
		if got := humanAge(tc.d); got != tc.want {
			t.Errorf("humanAge(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatResults(t *testing.T) {
	if FormatResults(nil) != "" {
		t.Fatal("no results must format to the empty string")
	}

	out := FormatResults([]Result{
		{Content: "User: I like tea", Age: "3 days ago"},
		{Content: "User: I live in Berlin", Age: "2 weeks ago"},
	})
	if !strings.Contains(out, "Relevant past conversations:") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "[3 days ago]") || !strings.Contains(out, "[2 weeks ago]") {
		t.Fatalf("missing age labels:\n%s", out)
	}
}
