// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
	"github.com/0xcro3dile/syndic-rag/internal/domain/usecases"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

const maxMessageBytes = 8 << 10

// Assistant answers chat turns. *usecases.Orchestrator implements it.
type Assistant interface {
	Respond(ctx context.Context, history []entities.ChatTurn, input string) (*entities.ChatResponse, error)
	Stream(ctx context.Context, history []entities.ChatTurn, input string) (*usecases.StreamResult, error)
	Warm(ctx context.Context) error
	Invalidate()
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexStatter reports the size of the document index.
type IndexStatter interface {
	Stats(ctx context.Context) (entities.IndexStats, error)
}

// Pruner drops idle chat sessions.
type Pruner interface {
	Prune(maxIdle time.Duration) int
}

// Server is the HTTP server for the chat API and UI.
type Server struct {
	assistant   Assistant
	sessions    ports.SessionStore
	ollama      Pinger
	index       IndexStatter
	limiter     *clientLimiter
	sessionIdle time.Duration
	templates   *template.Template
	addr        string
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits chat requests per client address.
func WithRateLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		s.limiter = newClientLimiter(perSec, burst)
	}
}

// WithHealthChecks adds Ollama reachability and index size to /api/health.
func WithHealthChecks(ollama Pinger, index IndexStatter) Option {
	return func(s *Server) {
		s.ollama = ollama
		s.index = index
	}
}

// WithSessionIdle prunes sessions idle for longer than d, when the store supports it.
func WithSessionIdle(d time.Duration) Option {
	return func(s *Server) {
		s.sessionIdle = d
	}
}

// NewServer creates a new HTTP server.
func NewServer(assistant Assistant, sessions ports.SessionStore, addr string, opts ...Option) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{
		assistant: assistant,
		sessions:  sessions,
		limiter:   newClientLimiter(2, 5),
		templates: tmpl,
		addr:      addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	staticContent, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))

	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.HandleFunc("POST /api/chat", s.limiter.middleware(s.handleChat))
	mux.HandleFunc("GET /api/chat/stream", s.limiter.middleware(s.handleChatStream))
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleResetHistory)
	mux.HandleFunc("POST /api/reindex", s.handleReindex)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	return corsMiddleware(loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // Longer for streaming
	}

	log.Printf("[INFO] Syndic server starting on %s", s.addr)

	go s.janitor(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// janitor periodically forgets idle sessions and rate limiter entries.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.sweep(10 * time.Minute)
			if p, ok := s.sessions.(Pruner); ok && s.sessionIdle > 0 {
				if n := p.Prune(s.sessionIdle); n > 0 {
					log.Printf("[INFO] [Server.janitor] pruned %d idle sessions", n)
				}
			}
		}
	}
}

// handleIndex renders the chat UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", nil); err != nil {
		log.Printf("[ERROR] [Server.handleIndex] %v", err)
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string                 `json:"session_id"`
	Route     entities.RouteLabel    `json:"route"`
	Answer    string                 `json:"answer"`
	Sources   []entities.QueryResult `json:"sources"`
}

// handleChat answers one turn and records it in the session history.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "corps JSON invalide")
		return
	}

	sessionID, ok := resolveSession(w, req.SessionID)
	if !ok {
		return
	}

	ctx := r.Context()
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session_error", err.Error())
		return
	}

	resp, err := s.assistant.Respond(ctx, history, req.Message)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	if err := s.record(ctx, sessionID, req.Message, resp.Answer); err != nil {
		log.Printf("[WARN] [Server.handleChat] session %s: %v", sessionID, err)
	}

	sources := resp.Sources
	if sources == nil {
		sources = []entities.QueryResult{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: sessionID,
		Route:     resp.Route,
		Answer:    resp.Answer,
		Sources:   sources,
	})
}

type streamEvent struct {
	SessionID string                 `json:"session_id,omitempty"`
	Route     entities.RouteLabel    `json:"route,omitempty"`
	Sources   []entities.QueryResult `json:"sources,omitempty"`
	Content   string                 `json:"content,omitempty"`
	Done      bool                   `json:"done"`
	Error     string                 `json:"error,omitempty"`
}

// handleChatStream handles SSE streaming answers.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "paramètre q requis")
		return
	}
	sessionID, ok := resolveSession(w, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming non supporté")
		return
	}

	ctx := r.Context()
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session_error", err.Error())
		return
	}

	res, err := s.assistant.Stream(ctx, history, query)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendSSE(w, flusher, streamEvent{SessionID: sessionID, Route: res.Route, Sources: res.Sources})

	var answer strings.Builder
	for token := range res.Tokens {
		if token.Error != nil {
			log.Printf("[ERROR] [Server.handleChatStream] %v", token.Error)
			sendSSE(w, flusher, streamEvent{Error: token.Error.Error(), Done: true})
			return
		}
		answer.WriteString(token.Content)
		sendSSE(w, flusher, streamEvent{Content: token.Content, Done: token.Done})
		if token.Done {
			break
		}
	}

	if err := s.record(ctx, sessionID, query, answer.String()); err != nil {
		log.Printf("[WARN] [Server.handleChatStream] session %s: %v", sessionID, err)
	}
}

// handleHistory returns the session's turns.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "session_id invalide")
		return
	}

	turns, err := s.sessions.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// handleResetHistory forgets the session's turns.
func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "session_id invalide")
		return
	}

	if err := s.sessions.Reset(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "session_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReindex drops the cached index and rebuilds it in the background.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	s.assistant.Invalidate()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.assistant.Warm(ctx); err != nil {
			log.Printf("[ERROR] [Server.handleReindex] %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindexing"})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok"}

	if s.ollama != nil {
		if err := s.ollama.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["ollama"] = err.Error()
		} else {
			body["ollama"] = "ok"
		}
	}
	if s.index != nil {
		if stats, err := s.index.Stats(r.Context()); err == nil {
			body["index"] = stats
		}
	}

	writeJSON(w, status, body)
}

func (s *Server) record(ctx context.Context, sessionID, question, answer string) error {
	return s.sessions.Append(ctx, sessionID,
		entities.ChatTurn{Role: "user", Content: question},
		entities.ChatTurn{Role: "assistant", Content: answer},
	)
}

// resolveSession returns id, or a new one when id is empty. An id that is
// not a UUID is rejected with 400.
func resolveSession(w http.ResponseWriter, id string) (string, bool) {
	if id == "" {
		return uuid.NewString(), true
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "session_id invalide")
		return "", false
	}
	return id, true
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, ev streamEvent) {
	jsonData, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeUsecaseError maps a use case error code to an HTTP status.
func writeUsecaseError(w http.ResponseWriter, err error) {
	code := usecases.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case usecases.ErrorInvalidInput, usecases.ErrorConfiguration:
		status = http.StatusBadRequest
	case usecases.ErrorUpstream:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		log.Printf("[ERROR] %v", err)
	}
	writeError(w, status, string(code), err.Error())
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
