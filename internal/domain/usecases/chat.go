package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
)

const contextSystemPrompt = `Tu es l'assistant d'un syndic de copropriété.
Réponds à la question en t'appuyant uniquement sur les extraits de documents ci-dessous.
Si l'information n'y figure pas, dis-le clairement. Cite le document source quand c'est utile.`

// ChatEngine answers property-document questions from the retrieval index.
type ChatEngine struct {
	embedder    ports.EmbeddingService
	vectorStore ports.VectorStore
	llm         ports.ChatModel
	topK        int
}

// NewChatEngine creates a ChatEngine with injected dependencies.
func NewChatEngine(
	embedder ports.EmbeddingService,
	vectorStore ports.VectorStore,
	llm ports.ChatModel,
	topK int,
) *ChatEngine {
	if topK <= 0 {
		topK = 5
	}
	return &ChatEngine{
		embedder:    embedder,
		vectorStore: vectorStore,
		llm:         llm,
		topK:        topK,
	}
}

// Chat retrieves context for the question and generates an answer. history holds
// the conversation before the question.
func (e *ChatEngine) Chat(ctx context.Context, question string, history []entities.ChatMessage) (*entities.ChatResponse, error) {
	messages, sources, err := e.prepare(ctx, question, history)
	if err != nil {
		return nil, err
	}

	answer, err := e.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}

	return &entities.ChatResponse{
		Answer:  answer,
		Route:   entities.RouteProperty,
		Sources: sources,
	}, nil
}

// Stream is Chat with a token stream instead of a complete answer.
func (e *ChatEngine) Stream(ctx context.Context, question string, history []entities.ChatMessage) ([]entities.QueryResult, <-chan ports.StreamToken, error) {
	messages, sources, err := e.prepare(ctx, question, history)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := e.llm.ChatStream(ctx, messages)
	if err != nil {
		return nil, nil, fmt.Errorf("generating response: %w", err)
	}
	return sources, tokens, nil
}

// Search only retrieves relevant chunks without LLM generation.
func (e *ChatEngine) Search(ctx context.Context, query string) ([]entities.QueryResult, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return e.vectorStore.Search(ctx, embedding, e.topK)
}

func (e *ChatEngine) prepare(ctx context.Context, question string, history []entities.ChatMessage) ([]entities.ChatMessage, []entities.QueryResult, error) {
	results, err := e.Search(ctx, question)
	if err != nil {
		return nil, nil, fmt.Errorf("searching vectors: %w", err)
	}

	contextParts := make([]string, len(results))
	for i, r := range results {
		contextParts[i] = fmt.Sprintf("[Source: %s]\n%s", r.SourceDoc, r.Chunk.Content)
	}

	messages := make([]entities.ChatMessage, 0, len(history)+2)
	messages = append(messages, entities.ChatMessage{
		Role:    entities.RoleSystem,
		Content: buildContextPrompt(contextParts),
	})
	messages = append(messages, history...)
	messages = append(messages, entities.ChatMessage{Role: entities.RoleUser, Content: question})
	return messages, results, nil
}

// buildContextPrompt creates the system message carrying retrieved context.
func buildContextPrompt(context []string) string {
	var sb strings.Builder
	sb.WriteString(contextSystemPrompt)
	sb.WriteString("\n\nContexte :\n")
	if len(context) == 0 {
		sb.WriteString("(aucun document pertinent)")
	} else {
		sb.WriteString(strings.Join(context, "\n\n"))
	}
	return sb.String()
}
