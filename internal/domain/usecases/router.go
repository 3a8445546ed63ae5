package usecases

import (
	"context"
	"log"
	"strings"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
)

// Router classifies the latest user question as a property-document question or a
// general one by asking a language model.
type Router struct {
	model  ports.Completer
	strict bool
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithStrictLabels makes the router normalize the model output and fall back to
// "general" when it is not one of the two known labels.
func WithStrictLabels(strict bool) RouterOption {
	return func(r *Router) {
		r.strict = strict
	}
}

// NewRouter creates a Router that classifies through the given completer.
func NewRouter(model ports.Completer, opts ...RouterOption) *Router {
	r := &Router{model: model}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns the label for the most recent user turn. Without a user turn the
// model is not called. A model failure is logged and mapped to "general".
func (r *Router) Route(ctx context.Context, turns []entities.ChatTurn) entities.RouteLabel {
	question, ok := lastUserQuestion(turns)
	if !ok {
		return entities.RouteGeneral
	}

	raw, err := r.model.Complete(ctx, buildRoutingPrompt(question))
	if err != nil {
		log.Printf("[WARN] [Router.Route] classification failed, defaulting to general: %v", err)
		return entities.RouteGeneral
	}

	if !r.strict {
		return entities.RouteLabel(raw)
	}
	label, ok := normalizeLabel(raw)
	if !ok {
		log.Printf("[WARN] [Router.Route] unexpected label %q, defaulting to general", raw)
		return entities.RouteGeneral
	}
	return label
}

func lastUserQuestion(turns []entities.ChatTurn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			return turns[i].Content, true
		}
	}
	return "", false
}

func buildRoutingPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString("Tu es un routeur pour l'assistant d'un syndic de copropriété.\n")
	sb.WriteString("Classe la question de l'utilisateur dans exactement une catégorie.\n\n")
	sb.WriteString("Réponds \"property\" si la question concerne les documents de la copropriété : ")
	sb.WriteString("charges de copropriété, budget, assemblée générale, procès-verbaux, ")
	sb.WriteString("contrats d'entretien, travaux, règlement de copropriété, locataires, copropriétaires.\n")
	sb.WriteString("Réponds \"general\" pour toute autre question.\n\n")
	sb.WriteString("Réponds uniquement par un seul mot : property ou general.\n\n")
	sb.WriteString("Question : ")
	sb.WriteString(question)
	sb.WriteString("\n\nCatégorie :")
	return sb.String()
}

// normalizeLabel strips a leading reasoning block, whitespace and case.
func normalizeLabel(raw string) (entities.RouteLabel, bool) {
	s := raw
	if end := strings.Index(s, "</think>"); end >= 0 {
		s = s[end+len("</think>"):]
	}
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), `."'`))
	switch entities.RouteLabel(s) {
	case entities.RouteProperty:
		return entities.RouteProperty, true
	case entities.RouteGeneral:
		return entities.RouteGeneral, true
	default:
		return "", false
	}
}
