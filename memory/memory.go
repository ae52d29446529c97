package memory

import (
	"context"
	"time"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local, behind a build tag),
// cache (read-through wrapper around either).
//
// Embedder is an implementation detail of Manager; the engine never
// interacts with it directly.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call. Implementations that
	// have no native batching loop over Embed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Store is the vector storage backend for memory chunks.
// Implementations: chromem (embedded, local), pgvector in production.
type Store interface {
	// AddChunks upserts chunks. Each chunk must have its embedding set.
	AddChunks(ctx context.Context, chunks []*Chunk) error

	// SearchChunks returns up to limit chunks by cosine similarity to the
	// query embedding, highest first, with Similarity populated.
	SearchChunks(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error)

	// TouchChunks advances lastAccessedAt on the given chunks. Retrieval
	// calls this for everything it returns; access is reinforcement.
	TouchChunks(ctx context.Context, ids []string, at time.Time) error

	// UpdateTier moves a chunk between the warm and cold tiers.
	UpdateTier(ctx context.Context, id string, tier Tier) error

	// DeleteChunks removes chunks permanently.
	DeleteChunks(ctx context.Context, ids []string) error

	// DeleteWhere removes chunks whose metadata matches all of the given
	// equality filters. Maintenance jobs use this for retention sweeps.
	DeleteWhere(ctx context.Context, filters map[string]string) error

	// CountChunks reports how many chunks the store holds.
	CountChunks() int

	// Close releases resources.
	Close() error
}

// Config tunes the retrieval engine.
type Config struct {
	// MinSimilarity is the floor on raw semantic similarity [0.0-1.0].
	// Candidates below it never surface, regardless of recency.
	// Small local models score lower than API embedders; tune per embedder.
	MinSimilarity float64

	// RecencyWeight blends recency into the combined score:
	// combined = semantic*(1-w) + recency*w.
	RecencyWeight float64

	// DecayRate is the per-hour decay applied to recency:
	// recency = (1-DecayRate)^hoursSinceLastAccess.
	DecayRate float64

	// MinResults and MaxResults bound the adaptive cutoff. The top
	// MinResults survivors are always kept; nothing past MaxResults is.
	MinResults int
	MaxResults int

	// GapThreshold is the score drop between adjacent ranked results that
	// ends the adaptive keep run.
	GapThreshold float64
}

// Default tuning. DefaultDecayRate gives a recency half-life of roughly
// five days for an untouched chunk.
const (
	DefaultMinSimilarity = 0.30
	DefaultRecencyWeight = 0.25
	DefaultDecayRate     = 0.006
	DefaultMinResults    = 2
	DefaultMaxResults    = 10
	DefaultGapThreshold  = 0.10
)

// DefaultConfig returns the default retrieval tuning.
func DefaultConfig() Config {
	return Config{
		MinSimilarity: DefaultMinSimilarity,
		RecencyWeight: DefaultRecencyWeight,
		DecayRate:     DefaultDecayRate,
		MinResults:    DefaultMinResults,
		MaxResults:    DefaultMaxResults,
		GapThreshold:  DefaultGapThreshold,
	}
}
