// Package embedding provides the Ollama embedding adapter.
// Clean Architecture: This is an adapter that implements ports.EmbeddingService.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/syndic-rag/internal/adapters/llm"
)

// ErrEmptyEmbedding is returned when Ollama answers without a vector,
// typically because the model is not an embedding model.
var ErrEmptyEmbedding = errors.New("empty embedding")

// OllamaAdapter implements ports.EmbeddingService using Ollama API.
type OllamaAdapter struct {
	baseURL string
	model   string
	client  *http.Client
	verbose bool
}

// Option configures an OllamaAdapter.
type Option func(*OllamaAdapter)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *OllamaAdapter) {
		if d > 0 {
			a.client.Timeout = d
		}
	}
}

// WithVerbose logs every embedding request.
func WithVerbose(v bool) Option {
	return func(a *OllamaAdapter) {
		a.verbose = v
	}
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
func NewOllamaAdapter(baseURL, model string, opts ...Option) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	a := &OllamaAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if a.verbose {
		log.Printf("[DEBUG] [OllamaAdapter.Embed] model=%s chars=%d", a.model, len(text))
	}

	jsonData, err := json.Marshal(ollamaEmbedRequest{Model: a.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("[ERROR] [OllamaAdapter.Embed] Ollama call error: %v", err)
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &llm.StatusError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: strings.TrimSpace(string(body))}
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("model %s: %w", a.model, ErrEmptyEmbedding)
	}

	return embedResp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts, one request per text.
func (a *OllamaAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := a.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	if len(texts) > 0 {
		log.Printf("[OK] [OllamaAdapter.EmbedBatch] %d embeddings, %d dimensions", len(texts), len(embeddings[0]))
	}
	return embeddings, nil
}
