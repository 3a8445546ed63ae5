package entities

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole_Recognized(t *testing.T) {
	cases := map[string]MessageRole{
		"system":    RoleSystem,
		"user":      RoleUser,
		"assistant": RoleAssistant,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
		assert.Equal(t, in, got.String())
	}
}

func TestParseRole_Unknown(t *testing.T) {
	for _, in := range []string{"", "User", "tool", "human"} {
		_, err := ParseRole(in)
		assert.True(t, errors.Is(err, ErrUnknownRole), "role %q", in)
	}
}

func TestMessageRole_StringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", MessageRole(42).String())
}

func TestRouteLabels(t *testing.T) {
	assert.Equal(t, "property", string(RouteProperty))
	assert.Equal(t, "general", string(RouteGeneral))
}

func TestChatResponse_WithSources(t *testing.T) {
	resp := ChatResponse{
		Answer: "Les charges sont de 150€/mois",
		Route:  RouteProperty,
		Sources: []QueryResult{
			{Score: 0.9, SourceDoc: "budget.pdf"},
		},
	}

	assert.NotEmpty(t, resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "budget.pdf", resp.Sources[0].SourceDoc)
}
