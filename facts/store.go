package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/aide-go/memory"
)

// DuplicateCeiling is the similarity at which an ADD is downgraded to a
// NOOP touch of the existing fact. Extractors occasionally re-propose a
// fact they were shown; near-identity means reinforcement, not news.
const DuplicateCeiling = 0.95

// forgetFloor is the minimum similarity for Forget to act on its best
// match. Below it, deleting would be guessing.
const forgetFloor = 0.60

// Store is the authoritative fact store: an in-memory map snapshotted
// atomically to disk, with a vector index alongside for similarity lookups.
// A nil *Store is valid and inert.
//
// Published *Fact values are never mutated. Updates and touches swap a
// fresh value into the map, so pointers handed out by List, Get and
// FindSimilar stay safe to read while reconciliation runs concurrently.
type Store struct {
	mu        sync.RWMutex
	facts     map[string]*Fact
	path      string
	index     Index
	embedder  memory.Embedder
	extractor Extractor
	log       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New opens the fact store, loading the snapshot at path (absence yields an
// empty store, corruption a warning and an empty store) and re-seeding the
// index from it. The index is derived state; the snapshot is truth.
func New(path string, index Index, embedder memory.Embedder, extractor Extractor, opts ...Option) (*Store, error) {
	s := &Store{
		facts:     map[string]*Fact{},
		path:      path,
		index:     index,
		embedder:  embedder,
		extractor: extractor,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, err := loadSnapshot(path)
	if err != nil {
		s.log.Warn("fact snapshot unreadable, starting empty", "path", path, "error", err)
	}
	for _, f := range loaded {
		s.facts[f.ID] = f
	}

	if err := s.seedIndex(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// seedIndex re-embeds and re-indexes every loaded fact. Upserts make this
// idempotent against a persistent index.
func (s *Store) seedIndex(ctx context.Context) error {
	if s.index == nil || s.embedder == nil || len(s.facts) == 0 {
		return nil
	}
	for id, f := range s.facts {
		emb, err := s.embedder.Embed(ctx, f.Content)
		if err != nil {
			return fmt.Errorf("seed index: embed fact %s: %w", f.ID, err)
		}
		next := *f
		next.Embedding = emb
		s.facts[id] = &next
		if err := s.index.IndexFact(ctx, next.ID, next.Content, emb); err != nil {
			return fmt.Errorf("seed index: %w", err)
		}
	}
	return nil
}

// Ready reports whether fact extraction and reconciliation can run.
func (s *Store) Ready() bool {
	return s != nil && s.index != nil && s.embedder != nil && s.extractor != nil
}

// List returns all facts, oldest first.
func (s *Store) List() []*Fact {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Fact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns the fact with the given ID, or nil.
func (s *Store) Get(id string) *Fact {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facts[id]
}

// ProcessExchange runs extraction over a completed exchange and reconciles
// every candidate. Individual candidate failures are logged and skipped;
// one bad proposal must not drop the rest.
func (s *Store) ProcessExchange(ctx context.Context, exchange, sourceChunkID string) error {
	if !s.Ready() || strings.TrimSpace(exchange) == "" {
		return nil
	}

	candidates, err := s.extractor.Extract(ctx, exchange, s.List())
	if err != nil {
		return fmt.Errorf("extract facts: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, cand := range candidates {
		if err := s.Reconcile(ctx, cand, sourceChunkID); err != nil {
			s.log.Warn("reconcile candidate failed",
				"operation", string(cand.Operation),
				"error", err)
		}
	}
	return s.persist()
}

// Reconcile applies one candidate to the store.
func (s *Store) Reconcile(ctx context.Context, cand Candidate, sourceChunkID string) error {
	switch cand.Operation {
	case OpAdd:
		_, err := s.reconcileAdd(ctx, cand, sourceChunkID)
		return err
	case OpUpdate:
		return s.reconcileUpdate(ctx, cand)
	case OpDelete:
		return s.remove(ctx, cand.TargetFactID)
	case OpNoop:
		s.touch(cand.TargetFactID)
		return nil
	default:
		return fmt.Errorf("unknown operation %q", cand.Operation)
	}
}

// reconcileAdd stores a new fact, or touches the existing one when the
// candidate duplicates it. It returns whichever fact now carries the content.
func (s *Store) reconcileAdd(ctx context.Context, cand Candidate, sourceChunkID string) (*Fact, error) {
	if strings.TrimSpace(cand.Content) == "" {
		return nil, fmt.Errorf("empty fact content")
	}

	// Safety net: an ADD nearly identical to an existing fact is a
	// confirmation, not a new fact.
	similar, err := s.FindSimilar(ctx, cand.Content, 1)
	if err != nil {
		return nil, err
	}
	if len(similar) > 0 && similar[0].Similarity >= DuplicateCeiling {
		touched := s.touch(similar[0].Fact.ID)
		if touched == nil {
			touched = similar[0].Fact
		}
		s.log.Debug("duplicate fact add downgraded to touch",
			"fact_id", touched.ID,
			"similarity", similar[0].Similarity)
		return touched, nil
	}

	emb, err := s.embedder.Embed(ctx, cand.Content)
	if err != nil {
		return nil, fmt.Errorf("embed fact: %w", err)
	}

	now := time.Now().UTC()
	f := &Fact{
		ID:              uuid.NewString(),
		Content:         cand.Content,
		Category:        cand.Category,
		Confidence:      cand.Confidence,
		SourceChunkID:   sourceChunkID,
		CreatedAt:       now,
		LastValidatedAt: now,
		Embedding:       emb,
	}

	s.mu.Lock()
	s.facts[f.ID] = f
	s.mu.Unlock()

	if err := s.index.IndexFact(ctx, f.ID, f.Content, emb); err != nil {
		return nil, fmt.Errorf("index fact: %w", err)
	}
	s.log.Info("fact added", "fact_id", f.ID, "category", f.Category)
	return f, nil
}

func (s *Store) reconcileUpdate(ctx context.Context, cand Candidate) error {
	s.mu.RLock()
	existing, ok := s.facts[cand.TargetFactID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("update target %q not found", cand.TargetFactID)
	}

	// Build the replacement off to the side and swap it in whole, so
	// readers holding the old pointer never see a half-applied update.
	next := *existing
	next.Content = cand.Content
	if cand.Category != "" {
		next.Category = cand.Category
	}
	if cand.Confidence > 0 {
		next.Confidence = cand.Confidence
	}
	next.LastValidatedAt = time.Now().UTC()

	emb, err := s.embedder.Embed(ctx, next.Content)
	if err != nil {
		return fmt.Errorf("embed updated fact: %w", err)
	}
	next.Embedding = emb

	s.mu.Lock()
	s.facts[next.ID] = &next
	s.mu.Unlock()

	if err := s.index.IndexFact(ctx, next.ID, next.Content, emb); err != nil {
		return fmt.Errorf("reindex fact: %w", err)
	}
	s.log.Info("fact updated", "fact_id", next.ID)
	return nil
}

func (s *Store) remove(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.facts[id]
	delete(s.facts, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("delete target %q not found", id)
	}
	if err := s.index.RemoveFact(ctx, id); err != nil {
		return fmt.Errorf("remove from index: %w", err)
	}
	s.log.Info("fact deleted", "fact_id", id)
	return nil
}

// touch refreshes LastValidatedAt by swapping in a fresh copy. It returns
// the new value, or nil when the fact is unknown.
func (s *Store) touch(id string) *Fact {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return nil
	}
	next := *f
	next.LastValidatedAt = time.Now().UTC()
	s.facts[id] = &next
	return &next
}

// FindSimilar returns up to limit facts by similarity to text, highest
// first. Index hits whose fact has since been removed are dropped.
func (s *Store) FindSimilar(ctx context.Context, text string, limit int) ([]ScoredFact, error) {
	if !s.Ready() {
		return nil, nil
	}
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.index.SearchFacts(ctx, emb, limit)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScoredFact, 0, len(hits))
	for _, h := range hits {
		if f, ok := s.facts[h.ID]; ok {
			out = append(out, ScoredFact{Fact: f, Similarity: h.Similarity})
		}
	}
	return out, nil
}

// Remember adds a fact directly, bypassing extraction. The remember_fact
// tool and imports use this; the duplicate safety net still applies, in
// which case the existing fact comes back instead of a new one.
func (s *Store) Remember(ctx context.Context, content, category string) (*Fact, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("fact store not ready")
	}
	f, err := s.reconcileAdd(ctx, Candidate{
		Content:    content,
		Category:   category,
		Confidence: 1.0,
		Operation:  OpAdd,
	}, "")
	if err != nil {
		return nil, err
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return f, nil
}

// Forget removes the fact best matching query. It refuses to act on a weak
// match and reports what it deleted.
func (s *Store) Forget(ctx context.Context, query string) (*Fact, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("fact store not ready")
	}
	similar, err := s.FindSimilar(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(similar) == 0 || similar[0].Similarity < forgetFloor {
		return nil, nil
	}
	f := similar[0].Fact
	if err := s.remove(ctx, f.ID); err != nil {
		return nil, err
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return f, nil
}

// FormatFacts renders facts as a system prompt section, empty when there is
// nothing known.
func FormatFacts(facts []*Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known facts about the user:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s\n", f.Content)
	}
	return b.String()
}

// snapshotDoc is the on-disk fact snapshot.
type snapshotDoc struct {
	Facts   []*Fact   `json:"facts"`
	SavedAt time.Time `json:"savedAt"`
}

// persist writes the snapshot atomically, temp file then rename.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}

	doc := snapshotDoc{Facts: s.List(), SavedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create facts dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".facts-*.json")
	if err != nil {
		return fmt.Errorf("create temp facts file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write facts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close facts file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace facts file: %w", err)
	}
	return nil
}

func loadSnapshot(path string) ([]*Fact, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fact snapshot: %w", err)
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fact snapshot: %w", err)
	}
	return doc.Facts, nil
}
