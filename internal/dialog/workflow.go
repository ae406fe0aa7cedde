package dialog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// Outcome is what a controller produced for one turn.
type Outcome struct {
	Reply              string
	Intent             string
	NeedsClarification bool
	Clarification      ClarificationContext
}

// FinanceResolver executes finance intents. intent may be empty, in
// which case the resolver classifies the message itself.
type FinanceResolver interface {
	Resolve(ctx context.Context, user *store.User, intent, message string) (Outcome, error)
}

// SetupController advances the onboarding conversation.
type SetupController interface {
	Advance(ctx context.Context, user *store.User, message string) (string, error)
}

// Sanitizer cleans a reply before it reaches the user. It never fails;
// on trouble it returns the input (or a stock apology for empty input).
type Sanitizer interface {
	Polish(ctx context.Context, reply string) string
}

const apologyReply = "Desculpe, tive um problema ao processar sua mensagem. Pode tentar de novo?"

// Workflow wires router, controllers and sanitizer into a single
// entrypoint per message. It never returns an error: failures become
// an apology so the conversation survives the turn.
type Workflow struct {
	store     store.Store
	router    *Router
	finance   FinanceResolver
	setup     SetupController
	sanitizer Sanitizer
	log       zerolog.Logger
}

func NewWorkflow(s store.Store, r *Router, f FinanceResolver, sc SetupController, sz Sanitizer, log zerolog.Logger) *Workflow {
	return &Workflow{store: s, router: r, finance: f, setup: sc, sanitizer: sz, log: log}
}

// HandleTurn processes one user message and returns the reply plus the
// state to carry into the next turn.
func (w *Workflow) HandleTurn(ctx context.Context, userID, message string, prev State) (string, State) {
	reply, next := w.handle(ctx, userID, message, prev)
	reply = w.sanitizer.Polish(ctx, reply)

	if err := w.store.AppendConversationTurn(ctx, userID, message, reply); err != nil {
		w.log.Warn().Err(err).Str("user_id", userID).Msg("workflow: failed to record conversation turn")
	}
	return reply, next
}

func (w *Workflow) handle(ctx context.Context, userID, message string, prev State) (string, State) {
	user, err := w.store.GetUser(ctx, userID)
	if err != nil {
		user, err = w.store.CreateUser(ctx, userID, store.StepStart)
		if err != nil {
			w.log.Error().Err(err).Str("user_id", userID).Msg("workflow: create user")
			return apologyReply, State{}
		}
	}
	if err := w.store.TouchUser(ctx, user.ID); err != nil {
		w.log.Warn().Err(err).Str("user_id", userID).Msg("workflow: touch user")
	}

	// Onboarding owns the conversation until it finishes.
	if user.OnboardingStep != store.StepNone {
		return w.runSetup(ctx, user, message)
	}

	if prev.NeedsClarification {
		merged := mergeClarification(prev.Clarification, message)
		if prev.ClarificationAttempts >= MaxClarificationAttempts {
			w.log.Info().Str("user_id", userID).Msg("workflow: clarification cap reached, forcing finance route")
			return w.runFinance(ctx, user, prev.Intent, merged, State{})
		}
		d := w.router.Decide(ctx, user, merged)
		return w.dispatch(ctx, user, merged, d, prev)
	}

	d := w.router.Decide(ctx, user, message)
	return w.dispatch(ctx, user, message, d, prev)
}

func (w *Workflow) dispatch(ctx context.Context, user *store.User, message string, d Decision, prev State) (string, State) {
	if d.Route == RouteSetup {
		return w.runSetup(ctx, user, message)
	}
	if d.NeedsClarification {
		return w.askClarification(user, d.Intent, "", d.Clarification, prev)
	}
	return w.runFinance(ctx, user, d.Intent, message, prev)
}

func (w *Workflow) runSetup(ctx context.Context, user *store.User, message string) (string, State) {
	reply, err := w.setup.Advance(ctx, user, message)
	if err != nil {
		w.log.Error().Err(err).Str("user_id", user.ID).Msg("workflow: setup controller")
		return apologyReply, State{}
	}
	return reply, State{}
}

func (w *Workflow) runFinance(ctx context.Context, user *store.User, intent, message string, prev State) (string, State) {
	out, err := w.finance.Resolve(ctx, user, intent, message)
	if err != nil {
		w.log.Error().Err(err).Str("user_id", user.ID).Str("intent", intent).Msg("workflow: finance resolver")
		return apologyReply, State{}
	}
	if out.NeedsClarification {
		c := out.Clarification
		if c.PendingMessage == "" {
			c.PendingMessage = message
		}
		return w.askClarification(user, out.Intent, out.Reply, c, prev)
	}
	return out.Reply, State{}
}

// askClarification prefers the controller's own reply text (it may
// carry a match listing or a tailored question) and only synthesizes
// a question from the context when none was supplied.
func (w *Workflow) askClarification(user *store.User, intent, reply string, c ClarificationContext, prev State) (string, State) {
	attempts := prev.ClarificationAttempts + 1
	w.log.Info().
		Str("user_id", user.ID).
		Str("intent", intent).
		Int("attempt", attempts).
		Msg("workflow: asking for clarification")
	next := State{
		Route:                 RouteFinance,
		Intent:                intent,
		NeedsClarification:    true,
		Clarification:         c,
		ClarificationAttempts: attempts,
	}
	if reply != "" {
		return reply, next
	}
	return clarificationQuestion(c), next
}
