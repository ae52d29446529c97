package memory

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Tier is the storage tier of a chunk. New chunks start warm; a
// maintenance job demotes unaccessed chunks to cold and eventually drops
// them. Retrieval searches both tiers; a cold hit that gets touched is a
// candidate for promotion.
type Tier string

const (
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Chunk is an embedded unit of conversational memory.
type Chunk struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Channel        string    `json:"channel"`
	Tier           Tier      `json:"tier"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	TurnCount      int       `json:"turnCount"`
	Embedding      []float32 `json:"-"`
}

// ScoredChunk is a chunk with its raw cosine similarity to a query.
type ScoredChunk struct {
	Chunk      *Chunk
	Similarity float64
}

// NewChunkID returns a tier-prefixed, time-sortable chunk ID. The ULID
// component makes IDs from the same instant still unique, and a plain
// string sort within a tier is a chronological sort.
func NewChunkID(tier Tier, at time.Time) string {
	return string(tier) + "-" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
