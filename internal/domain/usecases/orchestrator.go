package usecases

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
)

// EngineFactory builds the retrieval chat engine, typically by indexing the data directory.
type EngineFactory func(ctx context.Context) (*ChatEngine, error)

// StreamResult is a routed answer delivered token by token.
type StreamResult struct {
	Route   entities.RouteLabel
	Sources []entities.QueryResult
	Tokens  <-chan ports.StreamToken
}

// Orchestrator handles one user turn: it converts the history, routes the question
// and dispatches it to the retrieval engine or the general model.
// The caller owns the history and appends the returned answer to it.
type Orchestrator struct {
	router  *Router
	general ports.ChatModel
	factory EngineFactory

	mu     sync.RWMutex
	engine *ChatEngine
}

// NewOrchestrator creates an Orchestrator. The engine is built on first use.
func NewOrchestrator(router *Router, general ports.ChatModel, factory EngineFactory) *Orchestrator {
	return &Orchestrator{
		router:  router,
		general: general,
		factory: factory,
	}
}

// Respond answers input given the prior history.
func (o *Orchestrator) Respond(ctx context.Context, history []entities.ChatTurn, input string) (*entities.ChatResponse, error) {
	engine, turns, messages, err := o.begin(ctx, history, input)
	if err != nil {
		return nil, err
	}

	if o.router.Route(ctx, turns) == entities.RouteProperty {
		resp, err := engine.Chat(ctx, input, messages[:len(messages)-1])
		if err != nil {
			return nil, newError(ErrorUpstream, "property_chat", err)
		}
		return resp, nil
	}

	answer, err := o.general.Chat(ctx, messages)
	if err != nil {
		return nil, newError(ErrorUpstream, "general_chat", err)
	}
	return &entities.ChatResponse{Answer: answer, Route: entities.RouteGeneral}, nil
}

// Stream is Respond with a token stream.
func (o *Orchestrator) Stream(ctx context.Context, history []entities.ChatTurn, input string) (*StreamResult, error) {
	engine, turns, messages, err := o.begin(ctx, history, input)
	if err != nil {
		return nil, err
	}

	if o.router.Route(ctx, turns) == entities.RouteProperty {
		sources, tokens, err := engine.Stream(ctx, input, messages[:len(messages)-1])
		if err != nil {
			return nil, newError(ErrorUpstream, "property_chat", err)
		}
		return &StreamResult{Route: entities.RouteProperty, Sources: sources, Tokens: tokens}, nil
	}

	tokens, err := o.general.ChatStream(ctx, messages)
	if err != nil {
		return nil, newError(ErrorUpstream, "general_chat", err)
	}
	return &StreamResult{Route: entities.RouteGeneral, Tokens: tokens}, nil
}

// Warm builds the engine ahead of the first turn.
func (o *Orchestrator) Warm(ctx context.Context) error {
	_, err := o.ensureEngine(ctx)
	return err
}

// Invalidate drops the cached engine so the next turn rebuilds the index.
func (o *Orchestrator) Invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.engine != nil {
		log.Printf("[INFO] [Orchestrator.Invalidate] index marked stale")
	}
	o.engine = nil
}

func (o *Orchestrator) begin(ctx context.Context, history []entities.ChatTurn, input string) (*ChatEngine, []entities.ChatTurn, []entities.ChatMessage, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil, nil, newError(ErrorInvalidInput, "empty_question", nil)
	}

	engine, err := o.ensureEngine(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	turns := make([]entities.ChatTurn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, entities.ChatTurn{Role: "user", Content: input})

	messages, err := ConvertToChatMessages(turns)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, turns, messages, nil
}

func (o *Orchestrator) ensureEngine(ctx context.Context) (*ChatEngine, error) {
	o.mu.RLock()
	if o.engine != nil {
		engine := o.engine
		o.mu.RUnlock()
		return engine, nil
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.engine != nil {
		return o.engine, nil
	}

	engine, err := o.factory(ctx)
	if err != nil {
		return nil, newError(ErrorIndex, "build_index", err)
	}
	o.engine = engine
	return engine, nil
}
