package chromem

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/aide-go/facts"
)

// The facts collection is a similarity index only: content rides along for
// debuggability, but the fact store's snapshot stays authoritative.

// IndexFact upserts a fact embedding.
func (s *Store) IndexFact(ctx context.Context, id, content string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("fact %s has no embedding", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.facts.AddDocuments(ctx, []chromem.Document{{
		ID:        id,
		Content:   content,
		Embedding: embedding,
	}}, 1)
	if err != nil {
		return fmt.Errorf("index fact: %w", err)
	}
	return nil
}

// SearchFacts returns up to limit fact IDs by similarity, highest first.
func (s *Store) SearchFacts(ctx context.Context, embedding []float32, limit int) ([]facts.ScoredID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.facts.Count()
	if n == 0 {
		return nil, nil
	}
	if limit > n {
		limit = n
	}

	results, err := s.facts.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	out := make([]facts.ScoredID, 0, len(results))
	for _, r := range results {
		out = append(out, facts.ScoredID{ID: r.ID, Similarity: float64(r.Similarity)})
	}
	return out, nil
}

// RemoveFact deletes a fact embedding. Removing an unknown ID is not an
// error; the index may lag the store.
func (s *Store) RemoveFact(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.facts.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("remove fact: %w", err)
	}
	return nil
}
