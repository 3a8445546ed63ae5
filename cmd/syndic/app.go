package main

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/0xcro3dile/syndic-rag/internal/adapters/embedding"
	"github.com/0xcro3dile/syndic-rag/internal/adapters/llm"
	"github.com/0xcro3dile/syndic-rag/internal/adapters/loader"
	"github.com/0xcro3dile/syndic-rag/internal/adapters/parser"
	"github.com/0xcro3dile/syndic-rag/internal/adapters/vectordb"
	"github.com/0xcro3dile/syndic-rag/internal/config"
	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
	"github.com/0xcro3dile/syndic-rag/internal/domain/usecases"
)

// indexStore is a vector store that can report its size.
type indexStore interface {
	ports.VectorStore
	Stats(ctx context.Context) (entities.IndexStats, error)
}

// app holds the wired adapters and use cases shared by every command.
type app struct {
	cfg          *config.Config
	answerLLM    *llm.OllamaLLMAdapter
	store        indexStore
	loader       *loader.MultiLoader
	ingest       *usecases.IngestUseCase
	orchestrator *usecases.Orchestrator
	closeStore   func() error
}

func newApp(cfg *config.Config) (*app, error) {
	answerLLM := llm.NewOllamaLLMAdapter(cfg.Ollama.URL, cfg.Chat.Model,
		llm.WithTimeout(cfg.OllamaTimeout()),
	)
	routerLLM := llm.NewOllamaLLMAdapter(cfg.Ollama.URL, cfg.Router.Model,
		llm.WithTimeout(cfg.RouterTimeout()),
		llm.WithContextWindow(cfg.Router.ContextWindow),
	)
	embedder := embedding.NewOllamaAdapter(cfg.Ollama.URL, cfg.Index.EmbedModel,
		embedding.WithTimeout(cfg.OllamaTimeout()),
	)

	a := &app{
		cfg:        cfg,
		answerLLM:  answerLLM,
		loader:     loader.NewMultiLoader(parser.NewPDFParser()),
		closeStore: func() error { return nil },
	}

	switch cfg.Index.Store {
	case "memory":
		a.store = vectordb.NewInMemoryStore()
	default:
		store, err := vectordb.NewSQLiteStore(cfg.Index.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
		a.store = store
		a.closeStore = store.Close
	}

	a.ingest = usecases.NewIngestUseCase(embedder, a.store, a.loader, cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)

	router := usecases.NewRouter(routerLLM, usecases.WithStrictLabels(cfg.Router.StrictLabels))
	a.orchestrator = usecases.NewOrchestrator(router, answerLLM, a.engineFactory(embedder))

	return a, nil
}

// engineFactory builds the chat engine over the data directory. Only the
// first attempt may reuse a persisted index; retries after a failed build and
// builds that follow an invalidation always re-read the directory.
func (a *app) engineFactory(embedder ports.EmbeddingService) usecases.EngineFactory {
	var attempted atomic.Bool

	return func(ctx context.Context) (*usecases.ChatEngine, error) {
		first := attempted.CompareAndSwap(false, true)

		reuse := false
		if first && a.cfg.Index.Store == "sqlite" {
			if stats, err := a.store.Stats(ctx); err == nil && stats.Chunks > 0 {
				log.Printf("[INFO] Reusing persisted index: %d documents, %d chunks", stats.Documents, stats.Chunks)
				reuse = true
			}
		}

		if !reuse {
			stats, err := a.ingest.IngestDirectory(ctx, a.cfg.Index.DataDir)
			if err != nil {
				return nil, err
			}
			if stats.Documents == 0 {
				log.Printf("[WARN] No documents indexed from %s", a.cfg.Index.DataDir)
			}
		}

		return usecases.NewChatEngine(embedder, a.store, a.answerLLM, a.cfg.Chat.TopK), nil
	}
}

func (a *app) Close() error {
	return a.closeStore()
}
