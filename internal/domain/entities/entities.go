// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"errors"
	"time"
)

// Document represents a source document (PDF, TXT, MD) from the data directory.
type Document struct {
	ID        string
	Name      string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk represents a piece of a document for embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Source     string // Document name for citation
	Content    string
	Index      int       // Position in document
	Embedding  []float32 // Vector representation (populated by adapter)
}

// QueryResult represents a search result with relevance.
type QueryResult struct {
	Chunk     Chunk   `json:"-"`
	Score     float64 `json:"score"`
	SourceDoc string  `json:"source"`
}

// ChatTurn is one role-tagged message of a conversation, as produced by the UI layer.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRole is the normalized role of a structured chat message.
type MessageRole int

const (
	RoleSystem MessageRole = iota
	RoleUser
	RoleAssistant
)

// ErrUnknownRole is returned when a chat turn carries a role outside system/user/assistant.
var ErrUnknownRole = errors.New("unknown chat role")

// ParseRole maps a chat turn role string to its MessageRole.
func ParseRole(role string) (MessageRole, error) {
	switch role {
	case "system":
		return RoleSystem, nil
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	default:
		return 0, ErrUnknownRole
	}
}

// String returns the wire name of the role.
func (r MessageRole) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// ChatMessage is a structured message ready for a chat API.
type ChatMessage struct {
	Role    MessageRole
	Content string
}

// RouteLabel steers a question to the property-document path or the general path.
type RouteLabel string

const (
	RouteProperty RouteLabel = "property"
	RouteGeneral  RouteLabel = "general"
)

// ChatResponse represents the LLM's answer with its route and sources.
type ChatResponse struct {
	Answer  string
	Route   RouteLabel
	Sources []QueryResult
}

// IndexStats summarizes a directory indexing run.
type IndexStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Skipped   int `json:"skipped"`
}
