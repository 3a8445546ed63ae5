package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

type orchestratorFixture struct {
	router   *stubCompleter
	general  *mockChatModel
	property *mockChatModel
	builds   int
	orch     *Orchestrator
}

func newOrchestratorFixture(label string) *orchestratorFixture {
	f := &orchestratorFixture{
		router:   &stubCompleter{response: label},
		general:  &mockChatModel{response: "Paris"},
		property: &mockChatModel{response: "1 800 € par an"},
	}
	store := &mockVectorStore{chunks: []entities.Chunk{{ID: "c1", Content: "Charges : 1 800 €", Source: "budget.pdf"}}}
	f.orch = NewOrchestrator(NewRouter(f.router), f.general, func(ctx context.Context) (*ChatEngine, error) {
		f.builds++
		return NewChatEngine(&mockEmbedder{}, store, f.property, 5), nil
	})
	return f
}

func TestOrchestrator_PropertyRoute(t *testing.T) {
	f := newOrchestratorFixture("property")

	history := []entities.ChatTurn{
		{Role: "user", Content: "Bonjour"},
		{Role: "assistant", Content: "..."},
	}
	resp, err := f.orch.Respond(context.Background(), history, "Quel est le montant des charges?")

	require.NoError(t, err)
	assert.Equal(t, entities.RouteProperty, resp.Route)
	assert.Equal(t, "1 800 € par an", resp.Answer)
	assert.Len(t, resp.Sources, 1)
	assert.Empty(t, f.general.calls)
	require.Len(t, f.router.prompts, 1)
	assert.Contains(t, f.router.prompts[0], "Quel est le montant des charges?")

	// system context + 2 history turns + question
	require.Len(t, f.property.calls, 1)
	assert.Len(t, f.property.calls[0], 4)
	assert.Len(t, history, 2, "caller history must not be modified")
}

func TestOrchestrator_GeneralRoute(t *testing.T) {
	f := newOrchestratorFixture("general")

	resp, err := f.orch.Respond(context.Background(), nil, "Quelle est la capitale de la France?")

	require.NoError(t, err)
	assert.Equal(t, entities.RouteGeneral, resp.Route)
	assert.Equal(t, "Paris", resp.Answer)
	assert.Empty(t, f.property.calls)
	require.Len(t, f.general.calls, 1)
	assert.Equal(t, []entities.ChatMessage{{Role: entities.RoleUser, Content: "Quelle est la capitale de la France?"}}, f.general.calls[0])
}

func TestOrchestrator_UnexpectedLabelGoesGeneral(t *testing.T) {
	f := newOrchestratorFixture("Property")

	resp, err := f.orch.Respond(context.Background(), nil, "charges ?")

	require.NoError(t, err)
	assert.Equal(t, entities.RouteGeneral, resp.Route)
	assert.Len(t, f.general.calls, 1)
}

func TestOrchestrator_PaddedLabelDispatch(t *testing.T) {
	f := newOrchestratorFixture(" property\n")

	resp, err := f.orch.Respond(context.Background(), nil, "charges ?")
	require.NoError(t, err)
	assert.Equal(t, entities.RouteGeneral, resp.Route, "verbatim labels are compared exactly")

	strict := NewOrchestrator(NewRouter(f.router, WithStrictLabels(true)), f.general,
		func(ctx context.Context) (*ChatEngine, error) {
			return NewChatEngine(&mockEmbedder{}, &mockVectorStore{}, f.property, 5), nil
		})
	resp, err = strict.Respond(context.Background(), nil, "charges ?")
	require.NoError(t, err)
	assert.Equal(t, entities.RouteProperty, resp.Route, "strict labels are trimmed")
}

func TestOrchestrator_RouterFailureGoesGeneral(t *testing.T) {
	f := newOrchestratorFixture("")
	f.router.err = errors.New("connection refused")

	resp, err := f.orch.Respond(context.Background(), nil, "charges ?")

	require.NoError(t, err)
	assert.Equal(t, entities.RouteGeneral, resp.Route)
}

func TestOrchestrator_EngineBuiltOnce(t *testing.T) {
	f := newOrchestratorFixture("general")

	for i := 0; i < 3; i++ {
		_, err := f.orch.Respond(context.Background(), nil, "question")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.builds)

	f.orch.Invalidate()
	_, err := f.orch.Respond(context.Background(), nil, "question")
	require.NoError(t, err)
	assert.Equal(t, 2, f.builds)
}

func TestOrchestrator_ConcurrentFirstUseBuildsOnce(t *testing.T) {
	f := newOrchestratorFixture("general")
	var mu sync.Mutex
	calls := 0
	f.orch.factory = func(ctx context.Context) (*ChatEngine, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return NewChatEngine(&mockEmbedder{}, &mockVectorStore{}, &mockChatModel{}, 5), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.orch.Warm(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestOrchestrator_FailedBuildIsRetried(t *testing.T) {
	f := newOrchestratorFixture("general")
	fail := true
	f.orch.factory = func(ctx context.Context) (*ChatEngine, error) {
		f.builds++
		if fail {
			return nil, errors.New("ollama not running")
		}
		return NewChatEngine(&mockEmbedder{}, &mockVectorStore{}, &mockChatModel{}, 5), nil
	}

	_, err := f.orch.Respond(context.Background(), nil, "question")
	require.Error(t, err)
	assert.Equal(t, ErrorIndex, CodeOf(err))

	fail = false
	_, err = f.orch.Respond(context.Background(), nil, "question")
	require.NoError(t, err)
	assert.Equal(t, 2, f.builds)
}

func TestOrchestrator_EmptyInput(t *testing.T) {
	f := newOrchestratorFixture("general")

	_, err := f.orch.Respond(context.Background(), nil, "   ")

	require.Error(t, err)
	assert.Equal(t, ErrorInvalidInput, CodeOf(err))
	assert.Zero(t, f.builds)
}

func TestOrchestrator_UnknownRoleInHistory(t *testing.T) {
	f := newOrchestratorFixture("general")

	_, err := f.orch.Respond(context.Background(), []entities.ChatTurn{{Role: "bot", Content: "hi"}}, "question")

	require.Error(t, err)
	assert.Equal(t, ErrorConfiguration, CodeOf(err))
	assert.Empty(t, f.router.prompts)
}

func TestOrchestrator_UpstreamError(t *testing.T) {
	f := newOrchestratorFixture("general")
	f.general.err = errors.New("502")

	_, err := f.orch.Respond(context.Background(), nil, "question")

	require.Error(t, err)
	assert.Equal(t, ErrorUpstream, CodeOf(err))
}

func TestOrchestrator_Stream(t *testing.T) {
	f := newOrchestratorFixture("property")

	res, err := f.orch.Stream(context.Background(), nil, "charges ?")
	require.NoError(t, err)
	assert.Equal(t, entities.RouteProperty, res.Route)
	assert.Len(t, res.Sources, 1)

	var text string
	for tok := range res.Tokens {
		text += tok.Content
	}
	assert.Equal(t, "1 800 € par an", text)
}

func TestOrchestrator_StreamGeneral(t *testing.T) {
	f := newOrchestratorFixture("general")

	res, err := f.orch.Stream(context.Background(), nil, "capitale ?")
	require.NoError(t, err)
	assert.Equal(t, entities.RouteGeneral, res.Route)
	assert.Empty(t, res.Sources)
}
