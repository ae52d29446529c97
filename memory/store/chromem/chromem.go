// Package chromem backs the memory store with chromem-go, an embedded pure
// Go vector database. One collection holds conversation chunks, another the
// fact index; both persist to disk when a path is given.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/aide-go/memory"
)

const (
	chunksCollection = "chunks"
	factsCollection  = "facts"

	// addConcurrency bounds parallel embedding-free document inserts.
	addConcurrency = 4
)

// Store implements memory.Store (and the fact index) over chromem-go.
type Store struct {
	db     *chromem.DB
	chunks *chromem.Collection
	facts  *chromem.Collection
	mu     sync.Mutex
	log    *slog.Logger
}

// noEmbed is the collection embedding func. Every document we add carries a
// precomputed embedding, so chromem must never try to compute one itself.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("document added without embedding")
}

// New opens a store. An empty path keeps everything in memory; otherwise
// chromem persists each collection under the given directory.
func New(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	chunks, err := db.GetOrCreateCollection(chunksCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open chunks collection: %w", err)
	}
	facts, err := db.GetOrCreateCollection(factsCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open facts collection: %w", err)
	}

	return &Store{db: db, chunks: chunks, facts: facts, log: log}, nil
}

// AddChunks upserts chunks into the chunks collection.
func (s *Store) AddChunks(ctx context.Context, chunks []*memory.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		docs = append(docs, chunkDocument(c))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chunks.AddDocuments(ctx, docs, addConcurrency); err != nil {
		return fmt.Errorf("add chunks: %w", err)
	}
	return nil
}

// SearchChunks returns up to limit chunks by cosine similarity, highest
// first. chromem rejects a result count above the collection size, so the
// limit is clamped.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]*memory.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.chunks.Count()
	if n == 0 {
		return nil, nil
	}
	if limit > n {
		limit = n
	}

	results, err := s.chunks.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}

	scored := make([]*memory.ScoredChunk, 0, len(results))
	for _, r := range results {
		c, err := chunkFromDocument(r.ID, r.Content, r.Metadata, r.Embedding)
		if err != nil {
			s.log.Warn("skipping malformed chunk", "chunk_id", r.ID, "error", err)
			continue
		}
		scored = append(scored, &memory.ScoredChunk{Chunk: c, Similarity: float64(r.Similarity)})
	}
	return scored, nil
}

// TouchChunks advances lastAccessedAt on the given chunks in one upsert
// batch. Missing IDs are skipped; a chunk deleted between search and touch
// is not an error.
func (s *Store) TouchChunks(ctx context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]chromem.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.chunks.GetByID(ctx, id)
		if err != nil {
			continue
		}
		doc.Metadata["last_accessed_at"] = at.UTC().Format(time.RFC3339Nano)
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.chunks.AddDocuments(ctx, docs, addConcurrency); err != nil {
		return fmt.Errorf("touch chunks: %w", err)
	}
	return nil
}

// UpdateTier moves a chunk between tiers. The tier prefix baked into the ID
// records the birth tier; the metadata field is authoritative.
func (s *Store) UpdateTier(ctx context.Context, id string, tier memory.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.chunks.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get chunk %s: %w", id, err)
	}
	doc.Metadata["tier"] = string(tier)
	if err := s.chunks.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	return nil
}

// DeleteChunks removes chunks by ID.
func (s *Store) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chunks.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DeleteWhere removes chunks whose metadata matches all given equality
// filters, e.g. {"tier": "cold"} during a retention sweep.
func (s *Store) DeleteWhere(ctx context.Context, filters map[string]string) error {
	if len(filters) == 0 {
		return fmt.Errorf("refusing unfiltered delete")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chunks.Delete(ctx, filters, nil); err != nil {
		return fmt.Errorf("delete chunks by filter: %w", err)
	}
	return nil
}

// CountChunks reports how many chunks the store holds.
func (s *Store) CountChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks.Count()
}

// Close releases resources. chromem flushes persistent collections on every
// write, so there is nothing to sync here.
func (s *Store) Close() error {
	return nil
}

func chunkDocument(c *memory.Chunk) chromem.Document {
	return chromem.Document{
		ID:        c.ID,
		Content:   c.Content,
		Embedding: c.Embedding,
		Metadata: map[string]string{
			"channel":          c.Channel,
			"tier":             string(c.Tier),
			"created_at":       c.CreatedAt.UTC().Format(time.RFC3339Nano),
			"last_accessed_at": c.LastAccessedAt.UTC().Format(time.RFC3339Nano),
			"turn_count":       strconv.Itoa(c.TurnCount),
		},
	}
}

func chunkFromDocument(id, content string, meta map[string]string, embedding []float32) (*memory.Chunk, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, meta["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	lastAccessedAt, err := time.Parse(time.RFC3339Nano, meta["last_accessed_at"])
	if err != nil {
		return nil, fmt.Errorf("parse last_accessed_at: %w", err)
	}
	turnCount, _ := strconv.Atoi(meta["turn_count"])

	tier := memory.Tier(meta["tier"])
	if tier != memory.TierWarm && tier != memory.TierCold {
		return nil, fmt.Errorf("unknown tier %q", meta["tier"])
	}

	return &memory.Chunk{
		ID:             id,
		Content:        content,
		Channel:        meta["channel"],
		Tier:           tier,
		CreatedAt:      createdAt,
		LastAccessedAt: lastAccessedAt,
		TurnCount:      turnCount,
		Embedding:      embedding,
	}, nil
}
