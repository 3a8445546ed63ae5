package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/syndic-rag/internal/config"
	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

// fakeOllama answers the generate, chat and embeddings endpoints and records
// the classification requests.
type fakeOllama struct {
	mu        sync.Mutex
	label     string
	failEmbed string
	generate  []map[string]interface{}
	embeds    int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/api/generate":
		f.generate = append(f.generate, body)
		json.NewEncoder(w).Encode(map[string]interface{}{"response": f.label, "done": true})
	case "/api/embeddings":
		if prompt, _ := body["prompt"].(string); f.failEmbed != "" && strings.Contains(prompt, f.failEmbed) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		f.embeds++
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{0.2, 0.4, 0.1}})
	case "/api/chat":
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "Le budget prévoit 1 800 € de charges."},
			"done":    true,
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeOllama) setFailEmbed(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failEmbed = s
}

func (f *fakeOllama) embedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embeds
}

func testConfig(t *testing.T, ollamaURL string) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "budget.txt"),
		[]byte("Budget prévisionnel 2024 : charges de copropriété 1 800 € par lot."), 0o644))

	cfg := config.Default()
	cfg.Ollama.URL = ollamaURL
	cfg.Index.DataDir = dataDir
	cfg.Index.Store = "memory"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_PropertyQuestionEndToEnd(t *testing.T) {
	ollama := &fakeOllama{label: "property"}
	server := httptest.NewServer(ollama)
	defer server.Close()

	a, err := newApp(testConfig(t, server.URL))
	require.NoError(t, err)
	defer a.Close()

	history := []entities.ChatTurn{
		{Role: "user", Content: "Bonjour"},
		{Role: "assistant", Content: "..."},
	}
	resp, err := a.orchestrator.Respond(context.Background(), history, "Quel est le montant des charges?")
	require.NoError(t, err)

	assert.Equal(t, entities.RouteProperty, resp.Route)
	assert.Equal(t, "Le budget prévoit 1 800 € de charges.", resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "budget.txt", resp.Sources[0].SourceDoc)

	ollama.mu.Lock()
	defer ollama.mu.Unlock()
	require.Len(t, ollama.generate, 1)
	req := ollama.generate[0]
	assert.Equal(t, "qwen3:4b", req["model"])
	assert.Contains(t, req["prompt"], "Quel est le montant des charges?")
	assert.Equal(t, map[string]interface{}{"num_ctx": float64(1000)}, req["options"])
}

func TestApp_GeneralQuestionSkipsRetrieval(t *testing.T) {
	ollama := &fakeOllama{label: "general"}
	server := httptest.NewServer(ollama)
	defer server.Close()

	a, err := newApp(testConfig(t, server.URL))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.orchestrator.Warm(context.Background()))
	indexed := ollama.embedCount()

	resp, err := a.orchestrator.Respond(context.Background(), nil, "Quelle est la capitale de la France?")
	require.NoError(t, err)

	assert.Equal(t, entities.RouteGeneral, resp.Route)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, indexed, ollama.embedCount(), "general questions are not embedded")
}

func TestApp_SQLiteIndexReusedOnFirstBuild(t *testing.T) {
	ollama := &fakeOllama{label: "general"}
	server := httptest.NewServer(ollama)
	defer server.Close()

	cfg := testConfig(t, server.URL)
	cfg.Index.Store = "sqlite"
	cfg.Index.StoreDir = t.TempDir()
	ctx := context.Background()

	first, err := newApp(cfg)
	require.NoError(t, err)
	stats, err := first.ingest.IngestDirectory(ctx, cfg.Index.DataDir)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Documents)
	require.NoError(t, first.Close())

	second, err := newApp(cfg)
	require.NoError(t, err)
	defer second.Close()

	before := ollama.embedCount()
	require.NoError(t, second.orchestrator.Warm(ctx))
	assert.Equal(t, before, ollama.embedCount(), "persisted index is reused")

	second.orchestrator.Invalidate()
	require.NoError(t, second.orchestrator.Warm(ctx))
	assert.Greater(t, ollama.embedCount(), before, "invalidation re-reads the data directory")
}

func TestApp_FailedFirstBuildIsRebuiltNotReused(t *testing.T) {
	ollama := &fakeOllama{label: "general", failEmbed: "Ravalement"}
	server := httptest.NewServer(ollama)
	defer server.Close()

	cfg := testConfig(t, server.URL)
	cfg.Index.Store = "sqlite"
	cfg.Index.StoreDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Index.DataDir, "z-travaux.txt"),
		[]byte("Ravalement de façade voté en 2024."), 0o644))
	ctx := context.Background()

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.Error(t, a.orchestrator.Warm(ctx))
	stats, err := a.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks, "a failed build leaves no partial index behind")

	ollama.setFailEmbed("")
	require.NoError(t, a.orchestrator.Warm(ctx))

	stats, err = a.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
}

func TestApp_FailedRebuildKeepsPreviousIndex(t *testing.T) {
	ollama := &fakeOllama{label: "property"}
	server := httptest.NewServer(ollama)
	defer server.Close()

	cfg := testConfig(t, server.URL)
	cfg.Index.Store = "sqlite"
	cfg.Index.StoreDir = t.TempDir()
	ctx := context.Background()

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.orchestrator.Warm(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Index.DataDir, "z-travaux.txt"),
		[]byte("Ravalement de façade voté en 2024."), 0o644))
	ollama.setFailEmbed("Ravalement")
	a.orchestrator.Invalidate()
	require.Error(t, a.orchestrator.Warm(ctx))

	stats, err := a.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.IndexStats{Documents: 1, Chunks: 1}, stats)

	results, err := a.store.Search(ctx, []float32{0.2, 0.4, 0.1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "budget.txt", results[0].SourceDoc)
}

func TestFormatFooter(t *testing.T) {
	resp := &entities.ChatResponse{
		Route: entities.RouteProperty,
		Sources: []entities.QueryResult{
			{SourceDoc: "budget.pdf"},
			{SourceDoc: "pv-ag-2024.txt"},
			{SourceDoc: "budget.pdf"},
		},
	}
	assert.Equal(t, "[property] Sources : budget.pdf, pv-ag-2024.txt\n", formatFooter(resp))
	assert.Equal(t, "[general]\n", formatFooter(&entities.ChatResponse{Route: entities.RouteGeneral}))
}

func TestMarkdownRenderer_Plain(t *testing.T) {
	render := markdownRenderer(true)
	assert.Equal(t, "**gras**\n", render("**gras**"))
}
