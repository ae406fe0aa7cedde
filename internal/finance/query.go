package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/dialog"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

func (r *Resolver) queryTotal(ctx context.Context, user *store.User, ext *extraction) (dialog.Outcome, error) {
	filter, label, failure := r.resolveWindow(ext)
	if failure != "" {
		return dialog.Outcome{Reply: failure, Intent: dialog.IntentQueryTotal}, nil
	}

	total, err := r.store.SumTransactions(ctx, user.ID, filter)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("queryTotal: %w", err)
	}
	if total == 0 {
		return dialog.Outcome{
			Reply:  fmt.Sprintf("Você não tem gastos registrados %s.", label),
			Intent: dialog.IntentQueryTotal,
		}, nil
	}

	spend, err := r.store.SpendingByCategory(ctx, user.ID, filter)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("queryTotal: breakdown: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 Total gasto %s: %s\n", label, FormatBRL(total))
	for _, cs := range spend {
		fmt.Fprintf(&b, "- %s: %s\n", cs.CategoryName, FormatBRL(cs.Total))
	}
	return dialog.Outcome{Reply: strings.TrimRight(b.String(), "\n"), Intent: dialog.IntentQueryTotal}, nil
}

func (r *Resolver) queryCategory(ctx context.Context, user *store.User, ext *extraction, message string) (dialog.Outcome, error) {
	if ext.Category == "" {
		return dialog.Outcome{
			Reply:              "De qual categoria você quer ver os gastos?",
			Intent:             dialog.IntentQueryCategory,
			NeedsClarification: true,
			Clarification: dialog.ClarificationContext{
				MissingInfo:    "categoria",
				AmbiguousField: "category",
				Suggestion:     "De qual categoria você quer ver os gastos?",
				PendingMessage: message,
			},
		}, nil
	}

	cat, err := r.lookupCategory(ctx, user.ID, ext.Category)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r.unknownCategoryReply(ctx, user, ext.Category, dialog.IntentQueryCategory)
		}
		return dialog.Outcome{}, fmt.Errorf("queryCategory: %w", err)
	}

	filter, label, failure := r.resolveWindow(ext)
	if failure != "" {
		return dialog.Outcome{Reply: failure, Intent: dialog.IntentQueryCategory}, nil
	}
	filter.CategoryID = cat.ID

	total, err := r.store.SumTransactions(ctx, user.ID, filter)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("queryCategory: sum: %w", err)
	}
	return dialog.Outcome{
		Reply:  fmt.Sprintf("💰 Gastos em %s %s: %s", cat.Name, label, FormatBRL(total)),
		Intent: dialog.IntentQueryCategory,
	}, nil
}

func (r *Resolver) queryLastTransaction(ctx context.Context, user *store.User) (dialog.Outcome, error) {
	txs, err := r.store.ListTransactions(ctx, user.ID, store.TransactionFilter{Limit: 1})
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("queryLastTransaction: %w", err)
	}
	if len(txs) == 0 {
		return dialog.Outcome{
			Reply:  "Você ainda não registrou nenhum gasto.",
			Intent: dialog.IntentQueryLastTransaction,
		}, nil
	}
	tx := txs[0]
	name := r.categoryName(ctx, user.ID, tx.CategoryID)
	reply := fmt.Sprintf("Seu último gasto foi %s em %s, registrado em %s.",
		FormatBRL(tx.Amount), name, FormatDateTime(tx.CreatedAt))
	if tx.Description != "" {
		reply += fmt.Sprintf(" Descrição: %s.", tx.Description)
	}
	return dialog.Outcome{Reply: reply, Intent: dialog.IntentQueryLastTransaction}, nil
}

func (r *Resolver) queryLimits(ctx context.Context, user *store.User) (dialog.Outcome, error) {
	rules, err := r.store.ListActiveLimitRules(ctx, user.ID)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("queryLimits: %w", err)
	}
	if len(rules) == 0 {
		return dialog.Outcome{
			Reply:  "Você não tem limites configurados. Diga algo como \"limite de 300 por mês para Lazer\".",
			Intent: dialog.IntentQueryLimits,
		}, nil
	}

	now := r.now()
	var b strings.Builder
	b.WriteString("📊 Seus limites:\n")
	for _, rule := range rules {
		start := limitWindowStart(rule.PeriodType, now)
		total, err := r.store.SumTransactions(ctx, user.ID, store.TransactionFilter{
			CategoryID: rule.CategoryID,
			Start:      &start,
		})
		if err != nil {
			return dialog.Outcome{}, fmt.Errorf("queryLimits: recompute: %w", err)
		}
		if err := r.store.UpdateLimitRuleTotal(ctx, rule.ID, total); err != nil {
			r.log.Warn().Err(err).Str("rule_id", rule.ID).Msg("finance: limit total not persisted")
		}
		icon := "🟢"
		if rule.LimitValue > 0 {
			switch ratio := total / rule.LimitValue; {
			case ratio >= exceededThreshold:
				icon = "🔴"
			case ratio >= warningThreshold:
				icon = "🟡"
			}
		}
		name := r.categoryName(ctx, user.ID, rule.CategoryID)
		fmt.Fprintf(&b, "%s %s: %s de %s (%s)\n",
			icon, name, FormatBRL(total), FormatBRL(rule.LimitValue), periodLabel(rule.PeriodType))
	}
	return dialog.Outcome{Reply: strings.TrimRight(b.String(), "\n"), Intent: dialog.IntentQueryLimits}, nil
}

func (r *Resolver) listCategories(ctx context.Context, user *store.User) (dialog.Outcome, error) {
	cats, err := r.store.ListCategories(ctx, user.ID)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("listCategories: %w", err)
	}
	if len(cats) == 0 {
		return dialog.Outcome{
			Reply:  "Você ainda não tem categorias. Diga \"adicionar categoria Mercado\" para criar uma.",
			Intent: dialog.IntentListCategories,
		}, nil
	}
	var b strings.Builder
	b.WriteString("📂 Suas categorias:\n")
	for _, c := range cats {
		fmt.Fprintf(&b, "- %s\n", c.Name)
	}
	return dialog.Outcome{Reply: strings.TrimRight(b.String(), "\n"), Intent: dialog.IntentListCategories}, nil
}

// resolveWindow builds the transaction filter for a query. It prefers
// an explicit date range; a bad range yields a user-facing validation
// message instead of a silent fix.
func (r *Resolver) resolveWindow(ext *extraction) (store.TransactionFilter, string, string) {
	if ext.StartDate != "" || ext.EndDate != "" {
		if ext.StartDate == "" || ext.EndDate == "" {
			return store.TransactionFilter{}, "", "Para consultar um período, preciso das datas de início e fim. Por exemplo: \"de 01/03/2026 a 15/03/2026\"."
		}
		start, end, err := ParseRange(ext.StartDate, ext.EndDate)
		if err != nil {
			return store.TransactionFilter{}, "", "Não consegui usar essas datas. Confira se a data final vem depois da inicial, no formato DD/MM/AAAA."
		}
		label := fmt.Sprintf("de %s a %s", FormatDate(start), FormatDate(end))
		return store.TransactionFilter{Start: &start, End: &end}, label, ""
	}

	start, bounded := PeriodWindow(ext.Period, r.now())
	if !bounded {
		return store.TransactionFilter{}, "no total", ""
	}
	return store.TransactionFilter{Start: &start}, windowLabel(ext.Period), ""
}

func windowLabel(period string) string {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "day", "dia", "daily", "diario", "diário":
		return "hoje"
	case "week", "semana", "weekly", "semanal":
		return "nos últimos 7 dias"
	default:
		return "neste mês"
	}
}

// lookupCategory is the read-only resolution used by queries: exact
// match, then restrictive fuzzy match, never a fallback creation.
func (r *Resolver) lookupCategory(ctx context.Context, ownerID, label string) (*store.Category, error) {
	cat, err := r.store.GetCategoryByName(ctx, ownerID, label)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if name, ok := r.fuzzyMatchCategory(ctx, ownerID, label); ok {
		return r.store.GetCategoryByName(ctx, ownerID, name)
	}
	return nil, store.ErrNotFound
}

func (r *Resolver) unknownCategoryReply(ctx context.Context, user *store.User, label, intent string) (dialog.Outcome, error) {
	cats, err := r.store.ListCategories(ctx, user.ID)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("unknownCategoryReply: %w", err)
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return dialog.Outcome{
		Reply:  fmt.Sprintf("Não encontrei a categoria %q. Suas categorias são: %s.", label, strings.Join(names, ", ")),
		Intent: intent,
	}, nil
}

func (r *Resolver) categoryName(ctx context.Context, ownerID, categoryID string) string {
	cats, err := r.store.ListCategories(ctx, ownerID)
	if err != nil {
		return "Sem categoria"
	}
	for _, c := range cats {
		if c.ID == categoryID {
			return c.Name
		}
	}
	return "Sem categoria"
}
