// Package finance turns classified intents into validated ledger
// mutations and query replies. Everything the model extracted is
// re-checked here before it touches the store.
package finance

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/dialog"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// FallbackCategory receives registrations whose message named no
// category at all.
const FallbackCategory = "Geral"

type Resolver struct {
	store         store.Store
	oracle        oracle.Oracle
	log           zerolog.Logger
	historyWindow int
	now           func() time.Time
}

func NewResolver(s store.Store, o oracle.Oracle, log zerolog.Logger, historyWindow int) *Resolver {
	return &Resolver{
		store:         s,
		oracle:        o,
		log:           log,
		historyWindow: historyWindow,
		now:           defaultNow,
	}
}

// SetClock overrides the time source for tests.
func (r *Resolver) SetClock(now func() time.Time) { r.now = now }

// Resolve handles one finance-routed message. Oracle trouble never
// aborts the turn; it degrades into a question back to the user.
// Errors returned here are store failures only.
func (r *Resolver) Resolve(ctx context.Context, user *store.User, intent, message string) (dialog.Outcome, error) {
	// Intents that need no slot extraction answer straight away.
	switch intent {
	case dialog.IntentHelp:
		return dialog.Outcome{Reply: helpReply(user), Intent: intent}, nil
	case dialog.IntentOutOfScope:
		return dialog.Outcome{Reply: outOfScopeReply(), Intent: intent}, nil
	case dialog.IntentListCategories:
		return r.listCategories(ctx, user)
	case dialog.IntentQueryLimits:
		return r.queryLimits(ctx, user)
	case dialog.IntentQueryLastTransaction:
		return r.queryLastTransaction(ctx, user)
	}

	ext, err := r.extract(ctx, user, message)
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", user.ID).Msg("finance: extraction failed")
		return dialog.Outcome{
			Reply:              "Não consegui entender sua mensagem. Pode reformular? Por exemplo: \"gastei 50 no mercado\".",
			Intent:             intent,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "intenção da mensagem",
				PendingMessage: message,
			},
		}, nil
	}

	if intent == "" || intent == dialog.IntentNeedsClarification {
		intent = ext.Intent
	}

	switch intent {
	case dialog.IntentRegistration:
		return r.register(ctx, user, ext, message)
	case dialog.IntentQueryTotal:
		return r.queryTotal(ctx, user, ext)
	case dialog.IntentQueryCategory:
		return r.queryCategory(ctx, user, ext, message)
	case dialog.IntentQueryLastTransaction:
		return r.queryLastTransaction(ctx, user)
	case dialog.IntentQueryLimits:
		return r.queryLimits(ctx, user)
	case dialog.IntentListCategories:
		return r.listCategories(ctx, user)
	case dialog.IntentAddCategory:
		return r.addCategory(ctx, user, ext, message)
	case dialog.IntentRemoveCategory:
		return r.removeCategory(ctx, user, ext, message)
	case dialog.IntentRemoveTransaction:
		return r.removeTransaction(ctx, user, ext, message)
	case dialog.IntentRemoveLimit:
		return r.removeLimit(ctx, user, ext, message)
	case dialog.IntentHelp:
		return dialog.Outcome{Reply: helpReply(user), Intent: intent}, nil
	case dialog.IntentOutOfScope:
		return dialog.Outcome{Reply: outOfScopeReply(), Intent: intent}, nil
	default:
		r.log.Info().Str("intent", intent).Str("user_id", user.ID).Msg("finance: unrecognized intent")
		if reply := strings.TrimSpace(ext.Reply); reply != "" {
			return dialog.Outcome{Reply: reply, Intent: intent}, nil
		}
		return dialog.Outcome{Reply: helpReply(user), Intent: dialog.IntentHelp}, nil
	}
}

func helpReply(user *store.User) string {
	name := strings.TrimSpace(user.Name)
	greeting := "Oi!"
	if name != "" {
		greeting = "Oi, " + name + "!"
	}
	return greeting + ` Eu sou seu assistente de gastos. Você pode me dizer coisas como:
- "gastei 50 no mercado" para registrar um gasto
- "quanto gastei esse mês?" para ver o total
- "quanto gastei com lazer?" para ver uma categoria
- "meus limites" para ver os limites configurados
- "minhas categorias" para listar as categorias`
}

func outOfScopeReply() string {
	return "Eu só consigo ajudar com seus gastos pessoais. Quer registrar ou consultar algum gasto?"
}
