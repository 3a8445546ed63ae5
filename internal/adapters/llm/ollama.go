// Package llm provides the Ollama LLM adapter.
// Clean Architecture: Adapter implementing ports.Completer and ports.ChatModel.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "qwen3:4b"
)

// StatusError is returned when Ollama answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Ollama returned status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// OllamaLLMAdapter talks to the Ollama generate and chat APIs.
type OllamaLLMAdapter struct {
	baseURL       string
	model         string
	contextWindow int
	client        *http.Client
}

// Option configures an OllamaLLMAdapter.
type Option func(*OllamaLLMAdapter)

// WithTimeout bounds every request, streaming ones included.
func WithTimeout(d time.Duration) Option {
	return func(a *OllamaLLMAdapter) {
		if d > 0 {
			a.client.Timeout = d
		}
	}
}

// WithContextWindow sets num_ctx on every request.
func WithContextWindow(tokens int) Option {
	return func(a *OllamaLLMAdapter) {
		a.contextWindow = tokens
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *OllamaLLMAdapter) {
		if c != nil {
			a.client = c
		}
	}
}

// NewOllamaLLMAdapter creates a new Ollama LLM adapter.
func NewOllamaLLMAdapter(baseURL, model string, opts ...Option) *OllamaLLMAdapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	a := &OllamaLLMAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // Longer timeout for streaming
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type options struct {
	NumCtx int `json:"num_ctx,omitempty"`
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// Model returns the configured model name.
func (a *OllamaLLMAdapter) Model() string {
	return a.model
}

// Complete returns a single non-streaming completion for prompt.
func (a *OllamaLLMAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.post(ctx, "/api/generate", generateRequest{
		Model:   a.model,
		Prompt:  prompt,
		Stream:  false,
		Options: a.options(),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return genResp.Response, nil
}

// Chat returns the assistant reply for a structured conversation.
func (a *OllamaLLMAdapter) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	resp, err := a.post(ctx, "/api/chat", a.chatRequest(messages, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("Ollama chat: %s", chatResp.Error)
	}
	return chatResp.Message.Content, nil
}

// ChatStream produces a real streaming response via Ollama's streaming chat API.
func (a *OllamaLLMAdapter) ChatStream(ctx context.Context, messages []entities.ChatMessage) (<-chan ports.StreamToken, error) {
	resp, err := a.post(ctx, "/api/chat", a.chatRequest(messages, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- ports.StreamToken{Done: true, Error: ctx.Err()}
				return
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // Skip malformed lines
			}
			if chunk.Error != "" {
				ch <- ports.StreamToken{Done: true, Error: fmt.Errorf("Ollama chat: %s", chunk.Error)}
				return
			}

			ch <- ports.StreamToken{
				Content: chunk.Message.Content,
				Done:    chunk.Done,
			}

			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			ch <- ports.StreamToken{Done: true, Error: err}
		}
	}()

	return ch, nil
}

// Ping checks that Ollama is reachable.
func (a *OllamaLLMAdapter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}
	return nil
}

func (a *OllamaLLMAdapter) options() *options {
	if a.contextWindow <= 0 {
		return nil
	}
	return &options{NumCtx: a.contextWindow}
}

func (a *OllamaLLMAdapter) chatRequest(messages []entities.ChatMessage, stream bool) chatRequest {
	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: m.Role.String(), Content: m.Content}
	}
	return chatRequest{
		Model:    a.model,
		Messages: wire,
		Stream:   stream,
		Options:  a.options(),
	}
}

// post sends body as JSON and returns the response when the status is 200.
// The caller closes the body.
func (a *OllamaLLMAdapter) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := a.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Body: strings.TrimSpace(string(buf))}
	}
	return resp, nil
}
