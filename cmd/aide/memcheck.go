package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/aide-go/chunker"
	"github.com/becomeliminal/aide-go/core"
	"github.com/becomeliminal/aide-go/memory"
	"github.com/becomeliminal/aide-go/memory/embedder/mock"
	chromemstore "github.com/becomeliminal/aide-go/memory/store/chromem"
)

var memcheckCmd = &cobra.Command{
	Use:   "memcheck",
	Short: "Smoke-test the memory pipeline end to end, in memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMemcheck(cmd.Context())
	},
}

// runMemcheck exercises the write path and the retrieval engine against an
// in-memory store and reports what happened, including the access
// reinforcement a retrieval must leave behind.
func runMemcheck(ctx context.Context) error {
	store, err := chromemstore.New("", nil)
	if err != nil {
		return err
	}
	defer store.Close()

	mem := memory.NewManager(store, mock.New())

	now := time.Now().UTC()
	exchange := chunker.RecentChunk([]core.Message{
		{Role: core.RoleUser, Content: "Remember that my passport expires in May and I fly to Lisbon in June.", Timestamp: now, Channel: "memcheck"},
		{Role: core.RoleAssistant, Content: "Noted: passport renewal needed before the June trip to Lisbon.", Timestamp: now, Channel: "memcheck"},
	}, chunker.DefaultOptions())
	if exchange == nil {
		return fmt.Errorf("chunker rejected the test exchange")
	}

	stored, err := mem.RecordExchange(ctx, exchange)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	fmt.Printf("stored chunk %s (%d chars, tier %s)\n", stored.ID, len(stored.Content), stored.Tier)

	// Direct store search with the chunk's own embedding.
	hits, err := store.SearchChunks(ctx, stored.Embedding, 1)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(hits) != 1 {
		return fmt.Errorf("expected 1 hit, got %d", len(hits))
	}
	fmt.Printf("store search: similarity %.3f\n", hits[0].Similarity)
	before := hits[0].Chunk.LastAccessedAt

	// Full retrieval with the exact exchange text. The hash embedder has no
	// semantics, so only an identical query can match.
	results, err := mem.Retrieve(ctx, stored.Content, nil)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("retrieval returned nothing for an exact match")
	}
	fmt.Printf("retrieved %d result(s), top score %.3f, age %q\n", len(results), results[0].Score, results[0].Age)

	// Retrieval must have reinforced the chunk.
	hits, err = store.SearchChunks(ctx, stored.Embedding, 1)
	if err != nil {
		return err
	}
	if !hits[0].Chunk.LastAccessedAt.After(before) {
		return fmt.Errorf("retrieval did not advance lastAccessedAt")
	}
	fmt.Println("access reinforcement: lastAccessedAt advanced")

	fmt.Println("memcheck ok")
	return nil
}
