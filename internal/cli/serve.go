package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"engram/internal/config"
	"engram/internal/engine"
	"engram/internal/llm"
	"engram/internal/server"
	"engram/internal/store"
	"engram/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.AnthropicKey = key
	}

	db, eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	eng.Start(context.Background())
	defer eng.Stop()

	srv := server.New(db, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "engram serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// buildEngine opens the stores and wires an engine from the config. The
// LLM client and embedder are best-effort: a missing provider degrades
// summarization and profile updates but never blocks serving.
func buildEngine(cfg config.Config) (*store.DB, *engine.Engine, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	index, err := vector.Open(cfg.Vector.Path)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open vector index: %w", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), summarization disabled\n", err)
		llmClient = nil
	} else {
		fmt.Fprintf(os.Stderr, "  llm: %s\n", cfg.LLM.Provider)
	}

	var emb engine.Embedder
	if engine.ProbeOllama(cfg.LLM.OllamaURL) && cfg.LLM.EmbeddingModel != "" {
		emb = engine.NewOllamaEmbedder(cfg.LLM.OllamaURL, cfg.LLM.EmbeddingModel, 768)
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", cfg.LLM.EmbeddingModel)
	} else {
		emb = engine.NewHashEmbedder(512)
		fmt.Fprintf(os.Stderr, "  embedder: hash (fallback)\n")
	}
	cached, err := engine.NewCachedEmbedder(emb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: embed cache disabled: %v\n", err)
	} else {
		emb = cached
	}

	return db, engine.New(db, index, llmClient, emb, cfg, nil), nil
}
