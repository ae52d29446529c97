package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/aide-go/channel"
	"github.com/becomeliminal/aide-go/config"
	"github.com/becomeliminal/aide-go/convo"
	"github.com/becomeliminal/aide-go/engine"
	"github.com/becomeliminal/aide-go/facts"
	"github.com/becomeliminal/aide-go/memory"
	"github.com/becomeliminal/aide-go/memory/embedder/cache"
	chromemstore "github.com/becomeliminal/aide-go/memory/store/chromem"
	"github.com/becomeliminal/aide-go/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfgFile != "" {
		if err := cfg.ApplyFile(cfgFile); err != nil {
			return err
		}
	}

	log, closeLog, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	// The memory subsystems are best-effort: if the vector store or the
	// fact snapshot cannot be opened, the assistant comes up memory-blind
	// and says so, instead of refusing to start.
	mem, factStore := buildMemory(cfg, &client, log)

	var convoOpts []convo.Option
	convoOpts = append(convoOpts, convo.WithLogger(log))
	if cfg.CoalesceWindow > 0 {
		convoOpts = append(convoOpts, convo.WithCoalesceWindow(cfg.CoalesceWindow))
	}
	conversation := convo.New(cfg.StatePath(), convoOpts...)

	registry := engine.NewToolRegistry()
	registry.Register(tools.MemoryTools(mem, factStore)...)

	engOpts := []engine.Option{
		engine.WithMemory(mem),
		engine.WithFacts(factStore),
		engine.WithLogger(log),
	}
	if cfg.Model != "" {
		engOpts = append(engOpts, engine.WithModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		engOpts = append(engOpts, engine.WithMaxTokens(cfg.MaxTokens))
	}
	eng := engine.New(&client, registry, conversation, engOpts...)

	mux := http.NewServeMux()
	mux.Handle("/ws", channel.NewWebSocketHandler(eng, conversation, log))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr, "memory", mem.Ready(), "facts", factStore.Ready())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// One last persist so a clean shutdown loses nothing.
	if err := conversation.Persist(); err != nil {
		log.Warn("final persist failed", "error", err)
	}
	return nil
}

// buildMemory wires the vector store, embedder, memory manager and fact
// store. Any failure returns nil subsystems and a running-degraded warning.
func buildMemory(cfg *config.Config, client *anthropic.Client, log *slog.Logger) (*memory.Manager, *facts.Store) {
	store, err := chromemstore.New(cfg.VectorPath(), log)
	if err != nil {
		log.Warn("vector store unavailable, running memory-blind", "error", err)
		return nil, nil
	}

	base, err := newEmbedder(cfg)
	if err != nil {
		log.Warn("embedder unavailable, running memory-blind", "error", err)
		return nil, nil
	}
	embedder, err := cache.New(base, cfg.EmbedCacheSize)
	if err != nil {
		log.Warn("embedding cache unavailable, running memory-blind", "error", err)
		return nil, nil
	}

	memCfg := memory.DefaultConfig()
	if cfg.MinSimilarity > 0 {
		memCfg.MinSimilarity = cfg.MinSimilarity
	}
	if cfg.RecencyWeight > 0 {
		memCfg.RecencyWeight = cfg.RecencyWeight
	}
	if cfg.DecayRate > 0 {
		memCfg.DecayRate = cfg.DecayRate
	}
	mem := memory.NewManager(store, embedder, memory.WithLogger(log), memory.WithConfig(memCfg))

	extractor := facts.NewClaudeExtractor(client, cfg.ExtractionModel, 0)
	factStore, err := facts.New(cfg.FactsPath(), store, embedder, extractor, facts.WithLogger(log))
	if err != nil {
		log.Warn("fact store unavailable, running without facts", "error", err)
		return mem, nil
	}
	return mem, factStore
}
