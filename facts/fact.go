// Package facts maintains the assistant's structured knowledge about the
// user: small, declarative statements distilled from conversation by an
// LLM extractor and reconciled against what is already known.
//
// The authoritative copy lives in memory and snapshots to disk; the vector
// index only answers similarity queries. Losing the index loses nothing.
package facts

import (
	"context"
	"time"
)

// Fact is one distilled statement about the user.
type Fact struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	Category        string    `json:"category"`
	Confidence      float64   `json:"confidence"`
	SourceChunkID   string    `json:"sourceChunkId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastValidatedAt time.Time `json:"lastValidatedAt"`
	Embedding       []float32 `json:"-"`
}

// Operation is the reconciliation action an extractor proposes for a
// candidate fact.
type Operation string

const (
	// OpAdd introduces a new fact.
	OpAdd Operation = "ADD"
	// OpUpdate rewrites an existing fact the candidate supersedes.
	OpUpdate Operation = "UPDATE"
	// OpDelete retracts a fact the exchange contradicts or revokes.
	OpDelete Operation = "DELETE"
	// OpNoop confirms a fact without changing it.
	OpNoop Operation = "NOOP"
)

// Candidate is an extractor's proposal: a fact plus what to do with it.
// TargetFactID names the existing fact for UPDATE, DELETE and NOOP.
type Candidate struct {
	Content      string    `json:"content"`
	Category     string    `json:"category"`
	Confidence   float64   `json:"confidence"`
	Operation    Operation `json:"operation"`
	TargetFactID string    `json:"target_fact_id,omitempty"`
}

// Extractor proposes candidates from a completed exchange, given the facts
// already on record so it can direct updates and deletes at them.
// Implementations: ClaudeExtractor (production), test stubs.
type Extractor interface {
	Extract(ctx context.Context, exchange string, existing []*Fact) ([]Candidate, error)
}

// ScoredID is a similarity hit from the fact index.
type ScoredID struct {
	ID         string
	Similarity float64
}

// Index is the similarity side of fact storage. It holds embeddings only;
// fact content and metadata stay authoritative in the Store.
type Index interface {
	IndexFact(ctx context.Context, id string, content string, embedding []float32) error
	SearchFacts(ctx context.Context, embedding []float32, limit int) ([]ScoredID, error)
	RemoveFact(ctx context.Context, id string) error
}

// ScoredFact pairs a fact with its similarity to a query.
type ScoredFact struct {
	Fact       *Fact
	Similarity float64
}
