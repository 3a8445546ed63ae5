package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/0xcro3dile/syndic-rag/internal/adapters/filewatcher"
	"github.com/0xcro3dile/syndic-rag/internal/adapters/parser"
	"github.com/0xcro3dile/syndic-rag/internal/adapters/session"
	"github.com/0xcro3dile/syndic-rag/internal/config"
	"github.com/0xcro3dile/syndic-rag/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/syndic-rag/internal/infrastructure/http"
)

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	watch := fs.Bool("watch", cfg.Index.Watch, "rebuild the index when the data directory changes")
	fs.Parse(args)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.answerLLM.Ping(ctx); err != nil {
		log.Printf("[WARN] Ollama not reachable at %s: %v", cfg.Ollama.URL, err)
	}

	go func() {
		if err := a.orchestrator.Warm(ctx); err != nil {
			log.Printf("[ERROR] Initial index build failed, will retry on first question: %v", err)
		}
	}()

	if *watch {
		if err := watchDataDir(ctx, cfg.Index.DataDir, a.loader.SupportedExtensions(), a.orchestrator); err != nil {
			log.Printf("[WARN] File watching disabled: %v", err)
		}
	}

	sessions := session.NewMemoryStore(cfg.Server.HistoryTurns)
	srv, err := httpserver.NewServer(a.orchestrator, sessions, *addr,
		httpserver.WithRateLimit(cfg.Server.RatePerSec, cfg.Server.Burst),
		httpserver.WithHealthChecks(a.answerLLM, a.store),
		httpserver.WithSessionIdle(cfg.SessionIdle()),
	)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

// watchDataDir invalidates and rebuilds the index after each burst of
// changes in dir.
func watchDataDir(ctx context.Context, dir string, exts []string, orch *usecases.Orchestrator) error {
	watcher, err := filewatcher.NewFSNotifyWatcher(exts)
	if err != nil {
		return err
	}

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		watcher.Stop()
		return err
	}
	log.Printf("[INFO] Watching %s for document changes", dir)

	go func() {
		defer watcher.Stop()
		for batch := range filewatcher.Debounce(ctx, events, 2*time.Second) {
			for _, ev := range batch {
				log.Printf("[INFO] %s %s", ev.Path, ev.Operation)
			}
			orch.Invalidate()
			if err := orch.Warm(ctx); err != nil {
				log.Printf("[ERROR] Index rebuild failed: %v", err)
			}
		}
	}()
	return nil
}

func runIndex(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	dataDir := fs.String("data", cfg.Index.DataDir, "directory of documents to index")
	fs.Parse(args)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	stats, err := a.ingest.IngestDirectory(ctx, *dataDir)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d document(s), %d chunk(s) from %s in %s",
		stats.Documents, stats.Chunks, *dataDir, time.Since(start).Round(time.Millisecond))
	if stats.Skipped > 0 {
		fmt.Printf(" (%d skipped)", stats.Skipped)
	}
	fmt.Println()
	return nil
}

func runExtract(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	in := fs.String("in", cfg.Extract.InputDir, "directory containing PDF files")
	out := fs.String("out", cfg.Extract.OutputDir, "directory for extracted text files")
	fs.Parse(args)

	report, err := usecases.NewExtractionJob(parser.NewPDFParser(), os.Stdout).Run(ctx, *in, *out)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		log.Printf("[WARN] %d file(s) could not be extracted", len(report.Failed))
	}
	return nil
}
