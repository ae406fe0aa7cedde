package finance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/dialog"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// amountTolerance absorbs float drift when matching an amount the user
// typed against stored values.
const amountTolerance = 0.01

// maxListedMatches caps the disambiguation listing.
const maxListedMatches = 5

func (r *Resolver) removeTransaction(ctx context.Context, user *store.User, ext *extraction, message string) (dialog.Outcome, error) {
	// The flag comes from the model, so it only counts when the message
	// itself talks about the last expense.
	removeLast := bool(ext.RemoveLast) && mentionsLast(message)

	var day *time.Time
	if ext.Date != "" {
		d, err := ParseDate(ext.Date)
		if err != nil {
			return dialog.Outcome{
				Reply:  "Não entendi a data. Pode usar o formato DD/MM/AAAA?",
				Intent: dialog.IntentRemoveTransaction,
			}, nil
		}
		day = &d
	}

	amount := float64(ext.Amount)
	desc := strings.ToLower(ext.Description)
	if ext.Category != "" && desc == "" {
		// A bare category name still narrows the search usefully.
		desc = strings.ToLower(ext.Category)
	}

	if !removeLast && day == nil && amount <= 0 && desc == "" {
		return dialog.Outcome{
			Reply:              "Qual gasto você quer apagar? Me diga o valor, a data ou a descrição.",
			Intent:             dialog.IntentRemoveTransaction,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "qual gasto apagar",
				Suggestion:     "Qual gasto você quer apagar? Me diga o valor, a data ou a descrição.",
				PendingMessage: message,
			},
		}, nil
	}

	txs, err := r.store.ListTransactions(ctx, user.ID, store.TransactionFilter{})
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("removeTransaction: list: %w", err)
	}

	if removeLast {
		if len(txs) == 0 {
			return dialog.Outcome{
				Reply:  "Você não tem gastos para apagar.",
				Intent: dialog.IntentRemoveTransaction,
			}, nil
		}
		return r.deleteTransaction(ctx, user, txs[0])
	}

	var matches []store.Transaction
	for _, tx := range txs {
		if desc != "" && !strings.Contains(strings.ToLower(tx.Description), desc) {
			continue
		}
		if day != nil && !SameDay(tx.CreatedAt, *day) {
			continue
		}
		if amount > 0 && math.Abs(tx.Amount-amount) > amountTolerance {
			continue
		}
		matches = append(matches, tx)
	}

	switch len(matches) {
	case 0:
		return dialog.Outcome{
			Reply:  "Não encontrei nenhum gasto com essas características.",
			Intent: dialog.IntentRemoveTransaction,
		}, nil
	case 1:
		return r.deleteTransaction(ctx, user, matches[0])
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "Encontrei %d gastos parecidos. Qual deles devo apagar?\n", len(matches))
		for i, tx := range matches {
			if i == maxListedMatches {
				fmt.Fprintf(&b, "... e mais %d.\n", len(matches)-maxListedMatches)
				break
			}
			name := r.categoryName(ctx, user.ID, tx.CategoryID)
			fmt.Fprintf(&b, "- %s em %s (%s)", FormatBRL(tx.Amount), name, FormatDateTime(tx.CreatedAt))
			if tx.Description != "" {
				fmt.Fprintf(&b, " — %s", tx.Description)
			}
			b.WriteString("\n")
		}
		return dialog.Outcome{
			Reply:              strings.TrimRight(b.String(), "\n"),
			Intent:             dialog.IntentRemoveTransaction,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "qual dos gastos apagar",
				AmbiguousField: "transaction",
				Suggestion:     "Qual desses gastos devo apagar? Me diga o valor exato ou a data.",
				PendingMessage: message,
			},
		}, nil
	}
}

func (r *Resolver) deleteTransaction(ctx context.Context, user *store.User, tx store.Transaction) (dialog.Outcome, error) {
	if err := r.store.DeleteTransaction(ctx, user.ID, tx.ID); err != nil {
		return dialog.Outcome{}, fmt.Errorf("deleteTransaction: %w", err)
	}
	r.log.Info().Str("user_id", user.ID).Str("transaction_id", tx.ID).Msg("finance: transaction removed")
	name := r.categoryName(ctx, user.ID, tx.CategoryID)
	return dialog.Outcome{
		Reply:  fmt.Sprintf("🗑️ Apaguei o gasto de %s em %s (%s).", FormatBRL(tx.Amount), name, FormatDateTime(tx.CreatedAt)),
		Intent: dialog.IntentRemoveTransaction,
	}, nil
}

func mentionsLast(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "últim") || strings.Contains(lower, "ultim")
}

func (r *Resolver) removeCategory(ctx context.Context, user *store.User, ext *extraction, message string) (dialog.Outcome, error) {
	if ext.Category == "" {
		return dialog.Outcome{
			Reply:              "Qual categoria você quer remover?",
			Intent:             dialog.IntentRemoveCategory,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "categoria",
				AmbiguousField: "category",
				Suggestion:     "Qual categoria você quer remover?",
				PendingMessage: message,
			},
		}, nil
	}

	cat, err := r.lookupCategory(ctx, user.ID, ext.Category)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r.unknownCategoryReply(ctx, user, ext.Category, dialog.IntentRemoveCategory)
		}
		return dialog.Outcome{}, fmt.Errorf("removeCategory: %w", err)
	}

	n, err := r.store.CountTransactionsByCategory(ctx, user.ID, cat.ID)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("removeCategory: count: %w", err)
	}
	if n > 0 {
		return dialog.Outcome{
			Reply: fmt.Sprintf("A categoria %s tem %d gasto(s) registrado(s) e não pode ser removida. Apague os gastos dela primeiro.",
				cat.Name, n),
			Intent: dialog.IntentRemoveCategory,
		}, nil
	}

	if _, err := r.store.DeactivateLimitRules(ctx, user.ID, cat.ID); err != nil {
		return dialog.Outcome{}, fmt.Errorf("removeCategory: deactivate limits: %w", err)
	}
	if err := r.store.DeleteCategory(ctx, user.ID, cat.ID); err != nil {
		if errors.Is(err, store.ErrCategoryInUse) {
			return dialog.Outcome{
				Reply:  fmt.Sprintf("A categoria %s tem gastos registrados e não pode ser removida.", cat.Name),
				Intent: dialog.IntentRemoveCategory,
			}, nil
		}
		return dialog.Outcome{}, fmt.Errorf("removeCategory: delete: %w", err)
	}
	r.log.Info().Str("user_id", user.ID).Str("category", cat.Name).Msg("finance: category removed")
	return dialog.Outcome{
		Reply:  fmt.Sprintf("🗑️ Categoria %s removida.", cat.Name),
		Intent: dialog.IntentRemoveCategory,
	}, nil
}

func (r *Resolver) removeLimit(ctx context.Context, user *store.User, ext *extraction, message string) (dialog.Outcome, error) {
	if ext.Category == "" {
		return dialog.Outcome{
			Reply:              "De qual categoria você quer remover o limite?",
			Intent:             dialog.IntentRemoveLimit,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "categoria do limite",
				AmbiguousField: "category",
				Suggestion:     "De qual categoria você quer remover o limite?",
				PendingMessage: message,
			},
		}, nil
	}

	cat, err := r.lookupCategory(ctx, user.ID, ext.Category)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r.unknownCategoryReply(ctx, user, ext.Category, dialog.IntentRemoveLimit)
		}
		return dialog.Outcome{}, fmt.Errorf("removeLimit: %w", err)
	}

	n, err := r.store.DeactivateLimitRules(ctx, user.ID, cat.ID)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("removeLimit: deactivate: %w", err)
	}
	if n == 0 {
		return dialog.Outcome{
			Reply:  fmt.Sprintf("Você não tem limite ativo para %s.", cat.Name),
			Intent: dialog.IntentRemoveLimit,
		}, nil
	}
	r.log.Info().Str("user_id", user.ID).Str("category", cat.Name).Msg("finance: limit removed")
	return dialog.Outcome{
		Reply:  fmt.Sprintf("✅ Limite de %s removido.", cat.Name),
		Intent: dialog.IntentRemoveLimit,
	}, nil
}

func (r *Resolver) addCategory(ctx context.Context, user *store.User, ext *extraction, message string) (dialog.Outcome, error) {
	if ext.Category == "" {
		return dialog.Outcome{
			Reply:              "Qual o nome da categoria que você quer criar?",
			Intent:             dialog.IntentAddCategory,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "nome da categoria",
				AmbiguousField: "category",
				Suggestion:     "Qual o nome da categoria que você quer criar?",
				PendingMessage: message,
			},
		}, nil
	}

	if existing, err := r.store.GetCategoryByName(ctx, user.ID, ext.Category); err == nil {
		return dialog.Outcome{
			Reply:  fmt.Sprintf("Você já tem a categoria %s.", existing.Name),
			Intent: dialog.IntentAddCategory,
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return dialog.Outcome{}, fmt.Errorf("addCategory: lookup: %w", err)
	}

	// A near-miss of an existing name is usually a typo, not a new
	// category. Confirm before creating a duplicate in spirit.
	if name, ok := r.fuzzyMatchCategory(ctx, user.ID, ext.Category); ok {
		return dialog.Outcome{
			Reply:              fmt.Sprintf("Você já tem a categoria %s. Quer mesmo criar %q como uma categoria separada?", name, ext.Category),
			Intent:             dialog.IntentAddCategory,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "confirmação da nova categoria",
				AmbiguousField: "category",
				Suggestion:     fmt.Sprintf("Quer usar a categoria existente %s ou criar %q?", name, ext.Category),
				PendingMessage: message,
			},
		}, nil
	}

	cat, err := r.store.CreateCategory(ctx, user.ID, ext.Category, ext.Description)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateCategory) {
			return dialog.Outcome{
				Reply:  fmt.Sprintf("Você já tem a categoria %s.", ext.Category),
				Intent: dialog.IntentAddCategory,
			}, nil
		}
		return dialog.Outcome{}, fmt.Errorf("addCategory: create: %w", err)
	}
	r.log.Info().Str("user_id", user.ID).Str("category", cat.Name).Msg("finance: category added")
	return dialog.Outcome{
		Reply:  fmt.Sprintf("✅ Categoria %s criada!", cat.Name),
		Intent: dialog.IntentAddCategory,
	}, nil
}
