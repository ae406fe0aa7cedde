package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// Router decides which controller owns an incoming message. The model
// classifies the intent; when it fails, a keyword fallback keeps the
// conversation moving with lower confidence.
type Router struct {
	oracle oracle.Oracle
	log    zerolog.Logger
}

func NewRouter(o oracle.Oracle, log zerolog.Logger) *Router {
	return &Router{oracle: o, log: log}
}

// Decision is the routing outcome for one message.
type Decision struct {
	Route              Route
	Intent             string
	Confidence         float64
	NeedsClarification bool
	Clarification      ClarificationContext
}

type routerReply struct {
	Intent             string  `json:"intent"`
	Route              string  `json:"route"`
	Confidence         float64 `json:"confidence"`
	NeedsClarification bool    `json:"needs_clarification"`
	Clarification      *struct {
		MissingInfo    string `json:"missing_info"`
		AmbiguousField string `json:"ambiguous_field"`
		Suggestion     string `json:"suggestion"`
	} `json:"clarification_context"`
}

var validIntents = map[string]bool{
	IntentRegistration:         true,
	IntentQueryTotal:           true,
	IntentQueryCategory:        true,
	IntentQueryLastTransaction: true,
	IntentQueryLimits:          true,
	IntentListCategories:       true,
	IntentAddCategory:          true,
	IntentRemoveCategory:       true,
	IntentRemoveTransaction:    true,
	IntentRemoveLimit:          true,
	IntentHelp:                 true,
	IntentSetup:                true,
	IntentOutOfScope:           true,
	IntentNeedsClarification:   true,
}

// Decide classifies the message for a user who finished onboarding.
// Callers must route onboarding users straight to setup before asking
// the router.
func (r *Router) Decide(ctx context.Context, user *store.User, message string) Decision {
	prompt := r.buildPrompt(user, message)

	raw, err := r.oracle.Infer(ctx, prompt)
	if err != nil {
		r.log.Warn().Err(err).Msg("router: oracle failed, using keyword fallback")
		return r.fallback(message)
	}

	var reply routerReply
	if err := oracle.ExtractJSON(raw, &reply); err != nil {
		r.log.Warn().Err(err).Str("raw", raw).Msg("router: unparseable reply, using keyword fallback")
		return r.fallback(message)
	}
	if !validIntents[reply.Intent] {
		r.log.Warn().Str("intent", reply.Intent).Msg("router: unknown intent, using keyword fallback")
		return r.fallback(message)
	}

	d := Decision{
		Intent:     reply.Intent,
		Confidence: reply.Confidence,
	}
	switch reply.Intent {
	case IntentSetup:
		d.Route = RouteSetup
	case IntentNeedsClarification:
		d.Route = RouteFinance
		d.NeedsClarification = true
	default:
		d.Route = RouteFinance
		d.NeedsClarification = reply.NeedsClarification
	}
	if d.NeedsClarification && reply.Clarification != nil {
		d.Clarification = ClarificationContext{
			MissingInfo:    reply.Clarification.MissingInfo,
			AmbiguousField: reply.Clarification.AmbiguousField,
			Suggestion:     reply.Clarification.Suggestion,
			PendingMessage: message,
		}
	} else if d.NeedsClarification {
		d.Clarification = ClarificationContext{PendingMessage: message}
	}
	return d
}

func (r *Router) buildPrompt(user *store.User, message string) string {
	var b strings.Builder
	b.WriteString("Você é o roteador de um assistente de finanças pessoais.\n\n")
	fmt.Fprintf(&b, "Mensagem do usuário: %q\n", message)
	fmt.Fprintf(&b, "Nome do usuário: %s\n\n", user.Name)
	b.WriteString(`Identifique a intenção principal entre:
- registration: registrar um gasto (ex: "gastei 50 no mercado")
- query_total: total de gastos (ex: "quanto gastei esse mês?")
- query_category: gastos de uma categoria (ex: "quanto gastei com lazer?")
- query_last_transaction: último gasto registrado
- query_limits: ver limites configurados
- list_categories: listar categorias
- add_category: criar categoria nova
- remove_category: apagar uma categoria
- remove_transaction: apagar um gasto registrado
- remove_limit: remover um limite
- help: saudação ou pedido de ajuda (ex: "oi", "como funciona?")
- setup: refazer a configuração inicial
- out_of_scope: nada a ver com finanças pessoais
- needs_clarification: intenção financeira com ambiguidade CRÍTICA

Seja flexível: permita suposições razoáveis ("50" = R$ 50,00) e só use
needs_clarification quando realmente não der para processar.

Responda APENAS com JSON válido neste formato:
{
  "intent": "...",
  "route": "finance|setup",
  "confidence": 0.0,
  "needs_clarification": false,
  "clarification_context": {
    "missing_info": "o que está faltando",
    "ambiguous_field": "campo ambíguo",
    "suggestion": "pergunta de esclarecimento para o usuário"
  }
}
O campo clarification_context pode ser null quando não houver ambiguidade.
`)
	return b.String()
}

var setupKeywords = []string{"cadastrar", "configurar", "setup", "começar", "iniciar"}

func (r *Router) fallback(message string) Decision {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, kw := range setupKeywords {
		if strings.Contains(lower, kw) {
			return Decision{Route: RouteSetup, Intent: IntentSetup, Confidence: 0.7}
		}
	}
	return Decision{Route: RouteFinance, Confidence: 0.5}
}
