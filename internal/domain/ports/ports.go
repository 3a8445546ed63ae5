// Package ports defines interfaces for external dependencies.
// Clean Architecture: usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer returns a single synchronous completion for a prompt.
// The question router classifies through this port so its control flow can be
// exercised with a deterministic stub.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatModel answers a structured conversation.
type ChatModel interface {
	// Chat returns the assistant reply for the given messages.
	Chat(ctx context.Context, messages []entities.ChatMessage) (string, error)

	// ChatStream returns the reply token by token (for real-time UI).
	ChatStream(ctx context.Context, messages []entities.ChatMessage) (<-chan StreamToken, error)
}

// VectorStore persists and queries document embeddings.
type VectorStore interface {
	// Store saves chunks with their embeddings.
	Store(ctx context.Context, chunks []entities.Chunk) error

	// Search finds the most similar chunks to a query embedding.
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error)

	// Delete removes all chunks for a document.
	Delete(ctx context.Context, documentID string) error

	// Clear removes all data from the store.
	Clear(ctx context.Context) error

	// Replace atomically swaps the whole index for chunks.
	Replace(ctx context.Context, chunks []entities.Chunk) error
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// PageExtractor extracts the text of a paged document (PDF), one entry per page.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// SessionStore keeps chat turn history per session for the lifetime of the process.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]entities.ChatTurn, error)
	Append(ctx context.Context, sessionID string, turns ...entities.ChatTurn) error
	Reset(ctx context.Context, sessionID string) error
}

// StreamToken represents a single token in a streaming LLM response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
	FileRenamed
)

// String returns a short name for log lines.
func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	case FileRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}
