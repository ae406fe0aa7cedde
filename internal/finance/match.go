package finance

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
)

// noMatchSentinel is what the model must answer when no category fits.
const noMatchSentinel = "NENHUMA"

// MatchCategory asks the model whether label is a spelling or accent
// variant of one of the existing category names. The prompt is
// deliberately restrictive: semantically related categories must not
// be linked. Answers outside the list are rejected. The onboarding
// flow uses the same routine.
func MatchCategory(ctx context.Context, o oracle.Oracle, log zerolog.Logger, label string, names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "O usuário escreveu a categoria %q.\n", label)
	fmt.Fprintf(&b, "Categorias existentes: %s\n\n", strings.Join(names, ", "))
	b.WriteString(`Se a categoria escrita for a MESMA palavra de uma categoria existente,
apenas com diferença de acento, maiúsculas ou erro de digitação,
responda com o nome EXATO da categoria existente.

NUNCA associe categorias apenas relacionadas: "bebidas" NÃO é "Alimentação",
"remédio" NÃO é "Farmácia". Nesses casos responda exatamente NENHUMA.

Responda com uma única palavra: o nome exato da categoria, ou NENHUMA.`)

	raw, err := o.Infer(ctx, b.String())
	if err != nil {
		log.Warn().Err(err).Str("label", label).Msg("finance: fuzzy category match failed")
		return "", false
	}
	answer := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
	if answer == "" || strings.EqualFold(answer, noMatchSentinel) {
		return "", false
	}
	// Only accept answers that are actually in the list.
	for _, name := range names {
		if strings.EqualFold(name, answer) {
			return name, true
		}
	}
	log.Warn().Str("answer", answer).Msg("finance: fuzzy match returned unknown category")
	return "", false
}

func (r *Resolver) fuzzyMatchCategory(ctx context.Context, ownerID, label string) (string, bool) {
	cats, err := r.store.ListCategories(ctx, ownerID)
	if err != nil || len(cats) == 0 {
		return "", false
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return MatchCategory(ctx, r.oracle, r.log, label, names)
}
