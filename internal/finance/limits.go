package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// Alert tiers as fractions of the configured limit.
const (
	warningThreshold  = 0.8
	exceededThreshold = 1.0
)

// limitWindowStart recomputes the window opening for a rule period.
// Unknown periods read as monthly.
func limitWindowStart(period store.PeriodType, now time.Time) time.Time {
	switch period {
	case store.PeriodDaily:
		return StartOfDay(now)
	case store.PeriodWeekly:
		return now.AddDate(0, 0, -7)
	default:
		return StartOfMonth(now)
	}
}

// checkLimits recomputes every active rule on the category from source
// rows, persists the fresh totals and returns an alert line for the
// highest tier hit, or "" when everything is under the warning mark.
// The running total on the rule is never trusted as an increment.
func (r *Resolver) checkLimits(ctx context.Context, ownerID, categoryID, categoryName string) string {
	rules, err := r.store.ListActiveLimitRules(ctx, ownerID)
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", ownerID).Msg("finance: limit check skipped")
		return ""
	}

	now := r.now()
	var alert string
	for _, rule := range rules {
		if rule.CategoryID != categoryID {
			continue
		}
		start := limitWindowStart(rule.PeriodType, now)
		total, err := r.store.SumTransactions(ctx, ownerID, store.TransactionFilter{
			CategoryID: categoryID,
			Start:      &start,
		})
		if err != nil {
			r.log.Warn().Err(err).Str("rule_id", rule.ID).Msg("finance: limit recompute failed")
			continue
		}
		if err := r.store.UpdateLimitRuleTotal(ctx, rule.ID, total); err != nil {
			r.log.Warn().Err(err).Str("rule_id", rule.ID).Msg("finance: limit total not persisted")
		}

		if rule.LimitValue <= 0 {
			continue
		}
		ratio := total / rule.LimitValue
		switch {
		case ratio >= exceededThreshold:
			alert = fmt.Sprintf("🚨 Limite ultrapassado! Você já gastou %s em %s, acima do limite de %s (%s).",
				FormatBRL(total), categoryName, FormatBRL(rule.LimitValue), periodLabel(rule.PeriodType))
		case ratio >= warningThreshold && alert == "":
			alert = fmt.Sprintf("⚠️ Atenção: você já usou %.0f%% do limite de %s em %s (%s).",
				ratio*100, FormatBRL(rule.LimitValue), categoryName, periodLabel(rule.PeriodType))
		}
	}
	return alert
}

func periodLabel(p store.PeriodType) string {
	switch p {
	case store.PeriodDaily:
		return "diário"
	case store.PeriodWeekly:
		return "semanal"
	default:
		return "mensal"
	}
}
