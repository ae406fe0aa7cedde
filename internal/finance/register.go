package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/dialog"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

func (r *Resolver) register(ctx context.Context, user *store.User, ext *extraction, message string) (dialog.Outcome, error) {
	amount := float64(ext.Amount)
	if amount <= 0 {
		// Amounts are never guessed. A registration without a clear
		// value goes back to the user.
		return dialog.Outcome{
			Reply:              "Qual foi o valor do gasto? Por exemplo: \"gastei 50 no mercado\".",
			Intent:             dialog.IntentRegistration,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "valor do gasto",
				AmbiguousField: "amount",
				Suggestion:     "Qual foi o valor do gasto?",
				PendingMessage: message,
			},
		}, nil
	}

	cat, err := r.resolveCategory(ctx, user, ext.Category)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("register: %w", err)
	}

	tx, err := r.store.InsertTransaction(ctx, user.ID, cat.ID, amount, ext.Description)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("register: insert transaction: %w", err)
	}
	r.log.Info().
		Str("user_id", user.ID).
		Str("transaction_id", tx.ID).
		Str("category", cat.Name).
		Float64("amount", amount).
		Msg("finance: transaction registered")

	reply := fmt.Sprintf("✅ Gasto registrado: %s em %s", FormatBRL(amount), cat.Name)
	if alert := r.checkLimits(ctx, user.ID, cat.ID, cat.Name); alert != "" {
		reply += "\n\n" + alert
	}
	return dialog.Outcome{Reply: reply, Intent: dialog.IntentRegistration}, nil
}

// resolveCategory maps a label to a category row. An empty label falls
// back to the general bucket; an unmatched label becomes a new
// category. Fuzzy matching handles spelling and accent variants only,
// so "farmacia" finds "Farmácia" but "bebidas" never becomes
// "Alimentação".
func (r *Resolver) resolveCategory(ctx context.Context, user *store.User, label string) (*store.Category, error) {
	if label == "" {
		return r.ensureCategory(ctx, user.ID, FallbackCategory, "Gastos sem categoria definida")
	}

	cat, err := r.store.GetCategoryByName(ctx, user.ID, label)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("resolveCategory: %w", err)
	}

	if name, ok := r.fuzzyMatchCategory(ctx, user.ID, label); ok {
		cat, err := r.store.GetCategoryByName(ctx, user.ID, name)
		if err == nil {
			return cat, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("resolveCategory: fuzzy lookup: %w", err)
		}
		// The model invented a name outside the list; fall through.
	}

	return r.ensureCategory(ctx, user.ID, label, "")
}

func (r *Resolver) ensureCategory(ctx context.Context, ownerID, name, description string) (*store.Category, error) {
	cat, err := r.store.CreateCategory(ctx, ownerID, name, description)
	if err == nil {
		r.log.Info().Str("user_id", ownerID).Str("category", name).Msg("finance: category created")
		return cat, nil
	}
	if errors.Is(err, store.ErrDuplicateCategory) {
		return r.store.GetCategoryByName(ctx, ownerID, name)
	}
	return nil, fmt.Errorf("ensureCategory: %w", err)
}
