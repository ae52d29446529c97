package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/becomeliminal/aide-go/chunker"
)

// Manager orchestrates the memory write path and the retrieval engine.
// A nil *Manager is valid and inert, so callers running memory-blind
// (degraded mode, tests) need no branching.
type Manager struct {
	store    Store
	embedder Embedder
	cfg      Config
	log      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithConfig overrides the default retrieval tuning.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// NewManager creates a memory manager over a store and an embedder.
func NewManager(store Store, embedder Embedder, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		embedder: embedder,
		cfg:      DefaultConfig(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ready reports whether the memory subsystem is usable. False means the
// assistant runs memory-blind; it never means the assistant stops.
func (m *Manager) Ready() bool {
	return m != nil && m.store != nil && m.embedder != nil
}

// RecordExchange embeds and stores the just-completed exchange as a single
// warm chunk. It returns the stored chunk, or nil when the exchange was all
// filler and produced nothing.
func (m *Manager) RecordExchange(ctx context.Context, exchange *chunker.Chunk) (*Chunk, error) {
	if !m.Ready() || exchange == nil {
		return nil, nil
	}

	embedding, err := m.embedder.Embed(ctx, exchange.Content)
	if err != nil {
		return nil, fmt.Errorf("embed exchange: %w", err)
	}

	now := time.Now().UTC()
	c := &Chunk{
		ID:             NewChunkID(TierWarm, now),
		Content:        exchange.Content,
		Channel:        exchange.Channel,
		Tier:           TierWarm,
		CreatedAt:      now,
		LastAccessedAt: now,
		TurnCount:      exchange.TurnCount,
		Embedding:      embedding,
	}
	if err := m.store.AddChunks(ctx, []*Chunk{c}); err != nil {
		return nil, fmt.Errorf("store exchange: %w", err)
	}

	m.log.Debug("recorded exchange",
		"chunk_id", c.ID,
		"chars", len(c.Content),
		"turns", c.TurnCount)
	return c, nil
}

// RecordChunks embeds and stores a batch of chunks, e.g. from re-chunking a
// longer message window during backfill. Embeddings are computed in one
// batch call.
func (m *Manager) RecordChunks(ctx context.Context, chunks []chunker.Chunk) ([]*Chunk, error) {
	if !m.Ready() || len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embed batch: got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	now := time.Now().UTC()
	stored := make([]*Chunk, len(chunks))
	for i, c := range chunks {
		created := c.EndTime
		if created.IsZero() {
			created = now
		}
		stored[i] = &Chunk{
			ID:             NewChunkID(TierWarm, created),
			Content:        c.Content,
			Channel:        c.Channel,
			Tier:           TierWarm,
			CreatedAt:      created,
			LastAccessedAt: now,
			TurnCount:      c.TurnCount,
			Embedding:      embeddings[i],
		}
	}
	if err := m.store.AddChunks(ctx, stored); err != nil {
		return nil, fmt.Errorf("store batch: %w", err)
	}

	m.log.Debug("recorded chunk batch", "count", len(stored))
	return stored, nil
}

// FormatResults renders retrieval results as a prompt section. Empty input
// produces an empty string so the prompt carries no vestigial header.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant past conversations:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", r.Age, r.Content)
	}
	return b.String()
}
