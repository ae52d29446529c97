package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Result is one retrieved memory, ready for prompt injection.
type Result struct {
	Content string
	Channel string
	Age     string
	Score   float64
	Tier    Tier
}

// Retrieve finds memories relevant to query, blending semantic similarity
// with recency and cutting the list adaptively at the first natural score
// gap. Chunks whose content already appears in exclude (the hot context)
// are dropped so the prompt never carries the same exchange twice.
//
// Everything returned gets its lastAccessedAt advanced: retrieval is
// reinforcement, and an untouched chunk drifts toward the cold tier.
func (m *Manager) Retrieve(ctx context.Context, query string, exclude []string) ([]Result, error) {
	if !m.Ready() {
		return nil, nil
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Oversample: recency re-ranking and exclusion both eat candidates, so
	// fetch more than the cap before filtering.
	scored, err := m.store.SearchChunks(ctx, embedding, m.cfg.MaxResults*2)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	now := time.Now().UTC()
	type candidate struct {
		chunk    *Chunk
		combined float64
	}
	var candidates []candidate
	for _, sc := range scored {
		if sc.Similarity < m.cfg.MinSimilarity {
			continue
		}
		if inContext(sc.Chunk.Content, exclude) {
			continue
		}
		candidates = append(candidates, candidate{
			chunk:    sc.Chunk,
			combined: m.combinedScore(sc, now),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].combined > candidates[j].combined
	})

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.combined
	}
	keep := adaptiveCut(scores, m.cfg.MinResults, m.cfg.MaxResults, m.cfg.GapThreshold)
	candidates = candidates[:keep]

	results := make([]Result, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			Content: c.chunk.Content,
			Channel: c.chunk.Channel,
			Age:     humanAge(now.Sub(c.chunk.CreatedAt)),
			Score:   c.combined,
			Tier:    c.chunk.Tier,
		})
		ids = append(ids, c.chunk.ID)
	}

	if len(ids) > 0 {
		if err := m.store.TouchChunks(ctx, ids, now); err != nil {
			// Reinforcement is best-effort; retrieval already succeeded.
			m.log.Warn("touch retrieved chunks", "error", err, "count", len(ids))
		}
	}

	m.log.Debug("retrieved memories",
		"query_chars", len(query),
		"candidates", len(scored),
		"returned", len(results))
	return results, nil
}

// combinedScore blends raw similarity with exponential recency decay over
// hours since last access. A chunk touched five days ago sits near half
// recency at the default decay rate.
func (m *Manager) combinedScore(sc *ScoredChunk, now time.Time) float64 {
	hours := now.Sub(sc.Chunk.LastAccessedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := math.Exp(hours * math.Log(1-m.cfg.DecayRate))
	w := m.cfg.RecencyWeight
	return sc.Similarity*(1-w) + recency*w
}

// adaptiveCut decides how many ranked scores to keep: at least minK, at
// most maxK, stopping at the first drop between neighbors that exceeds the
// gap threshold. A tight cluster above a cliff is a real answer set; the
// cliff is where relevance ends.
func adaptiveCut(scores []float64, minK, maxK int, gap float64) int {
	if len(scores) <= minK {
		return len(scores)
	}
	keep := minK
	for i := keep; i < len(scores) && i < maxK; i++ {
		if scores[i-1]-scores[i] > gap {
			break
		}
		keep = i + 1
	}
	return keep
}

// inContext reports whether a chunk covers an exchange the model can
// already see. Chunk content embeds the raw message text verbatim, so a
// prefix of any hot-context message appearing inside the chunk means the
// chunk would duplicate what is in the window. Very short texts are skipped;
// "ok" identifies nothing.
func inContext(content string, exclude []string) bool {
	for _, text := range exclude {
		t := strings.TrimSpace(text)
		if len(t) > 50 {
			t = t[:50]
		}
		if len(t) < 20 {
			continue
		}
		if strings.Contains(content, t) {
			return true
		}
	}
	return false
}
