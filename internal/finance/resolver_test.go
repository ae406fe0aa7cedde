package finance

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/dialog"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store/memory"
)

func newTestResolver(t *testing.T, replies ...string) (*Resolver, *memory.Store, *store.User) {
	t.Helper()
	mem := memory.New()
	ctx := context.Background()
	if _, err := mem.CreateUser(ctx, "u1", store.StepNone); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := mem.SetUserName(ctx, "u1", "Ana"); err != nil {
		t.Fatalf("SetUserName: %v", err)
	}
	u, _ := mem.GetUser(ctx, "u1")
	r := NewResolver(mem, oracle.NewFake(replies...), zerolog.New(io.Discard), 5)
	return r, mem, u
}

func extractionJSON(fields map[string]any) string {
	var b strings.Builder
	b.WriteString("{")
	first := true
	for k, v := range fields {
		if !first {
			b.WriteString(", ")
		}
		first = false
		switch val := v.(type) {
		case string:
			fmt.Fprintf(&b, "%q: %q", k, val)
		case bool:
			fmt.Fprintf(&b, "%q: %v", k, val)
		default:
			fmt.Fprintf(&b, "%q: %v", k, val)
		}
	}
	b.WriteString("}")
	return b.String()
}

func TestRegisterWithExistingCategory(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "registration", "amount": 50, "category": "Mercado", "description": "compras",
	}))
	ctx := context.Background()
	mem.CreateCategory(ctx, u.ID, "Mercado", "")

	out, err := r.Resolve(ctx, u, dialog.IntentRegistration, "gastei 50 no mercado")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "R$ 50,00") || !strings.Contains(out.Reply, "Mercado") {
		t.Errorf("reply = %q", out.Reply)
	}
	txs, _ := mem.ListTransactions(ctx, u.ID, store.TransactionFilter{})
	if len(txs) != 1 || txs[0].Amount != 50 {
		t.Errorf("transaction not persisted: %v", txs)
	}
}

func TestRegisterFallsBackToGeneralCategory(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "registration", "amount": 30, "category": "", "description": "qualquer coisa",
	}))
	ctx := context.Background()

	out, err := r.Resolve(ctx, u, dialog.IntentRegistration, "gastei 30")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, FallbackCategory) {
		t.Errorf("reply = %q, want mention of %s", out.Reply, FallbackCategory)
	}

	// The fallback category is created once, not duplicated.
	out2Oracle := extractionJSON(map[string]any{
		"intent": "registration", "amount": 10, "category": "",
	})
	r2 := NewResolver(mem, oracle.NewFake(out2Oracle), zerolog.New(io.Discard), 5)
	if _, err := r2.Resolve(ctx, u, dialog.IntentRegistration, "gastei 10"); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	cats, _ := mem.ListCategories(ctx, u.ID)
	count := 0
	for _, c := range cats {
		if c.Name == FallbackCategory {
			count++
		}
	}
	if count != 1 {
		t.Errorf("fallback category appears %d times, want 1", count)
	}
}

func TestRegisterAmbiguousAmountAsksInsteadOfGuessing(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "registration", "amount": 0, "category": "Mercado",
	}))
	ctx := context.Background()

	out, err := r.Resolve(ctx, u, dialog.IntentRegistration, "gastei no mercado")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.NeedsClarification {
		t.Fatal("missing amount must trigger clarification")
	}
	txs, _ := mem.ListTransactions(ctx, u.ID, store.TransactionFilter{})
	if len(txs) != 0 {
		t.Errorf("no transaction may be written, got %v", txs)
	}
}

func TestRegisterFuzzyCategoryMatch(t *testing.T) {
	// First reply: extraction with a misspelled category.
	// Second reply: the fuzzy matcher maps it to the real one.
	r, mem, u := newTestResolver(t,
		extractionJSON(map[string]any{
			"intent": "registration", "amount": 25, "category": "farmacia",
		}),
		"Farmácia",
	)
	ctx := context.Background()
	mem.CreateCategory(ctx, u.ID, "Farmácia", "")

	out, err := r.Resolve(ctx, u, dialog.IntentRegistration, "gastei 25 na farmacia")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "Farmácia") {
		t.Errorf("reply = %q", out.Reply)
	}
	cats, _ := mem.ListCategories(ctx, u.ID)
	if len(cats) != 1 {
		t.Errorf("fuzzy match must not create a new category, got %v", cats)
	}
}

func TestRegisterUnmatchedCategoryIsCreated(t *testing.T) {
	// The fuzzy matcher answers the no-match sentinel, so the label
	// becomes a brand new category.
	r, mem, u := newTestResolver(t,
		extractionJSON(map[string]any{
			"intent": "registration", "amount": 80, "category": "Pets",
		}),
		"NENHUMA",
	)
	ctx := context.Background()
	mem.CreateCategory(ctx, u.ID, "Alimentação", "")

	out, err := r.Resolve(ctx, u, dialog.IntentRegistration, "gastei 80 com pets")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "Pets") {
		t.Errorf("reply = %q", out.Reply)
	}
	if _, err := mem.GetCategoryByName(ctx, u.ID, "Pets"); err != nil {
		t.Errorf("category Pets should exist: %v", err)
	}
}

func TestLimitAlertTiers(t *testing.T) {
	tests := []struct {
		name       string
		limit      float64
		spentSoFar float64
		newAmount  float64
		wantAlert  string
	}{
		{name: "below warning", limit: 100, spentSoFar: 0, newAmount: 79.99, wantAlert: ""},
		{name: "warning at 80 percent", limit: 100, spentSoFar: 50, newAmount: 30, wantAlert: "⚠️"},
		{name: "exceeded at 100 percent", limit: 100, spentSoFar: 50, newAmount: 50, wantAlert: "🚨"},
		{name: "exceeded above limit", limit: 100, spentSoFar: 90, newAmount: 60, wantAlert: "🚨"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
				"intent": "registration", "amount": tt.newAmount, "category": "Lazer",
			}))
			ctx := context.Background()
			cat, _ := mem.CreateCategory(ctx, u.ID, "Lazer", "")
			mem.CreateLimitRule(ctx, u.ID, cat.ID, store.PeriodMonthly, tt.limit)
			if tt.spentSoFar > 0 {
				mem.InsertTransaction(ctx, u.ID, cat.ID, tt.spentSoFar, "anterior")
			}

			out, err := r.Resolve(ctx, u, dialog.IntentRegistration, "gastei")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tt.wantAlert == "" {
				if strings.Contains(out.Reply, "⚠️") || strings.Contains(out.Reply, "🚨") {
					t.Errorf("unexpected alert in %q", out.Reply)
				}
				return
			}
			if !strings.Contains(out.Reply, tt.wantAlert) {
				t.Errorf("reply = %q, want alert %q", out.Reply, tt.wantAlert)
			}

			// The persisted running total is a full recompute.
			rules, _ := mem.ListActiveLimitRules(ctx, u.ID)
			wantTotal := tt.spentSoFar + tt.newAmount
			if len(rules) != 1 || rules[0].CurrentTotal != wantTotal {
				t.Errorf("rule total = %v, want %v", rules[0].CurrentTotal, wantTotal)
			}
		})
	}
}

func TestQueryTotalWithBreakdown(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "query_total", "period": "month",
	}))
	ctx := context.Background()
	a, _ := mem.CreateCategory(ctx, u.ID, "Mercado", "")
	b, _ := mem.CreateCategory(ctx, u.ID, "Lazer", "")
	mem.InsertTransaction(ctx, u.ID, a.ID, 120, "")
	mem.InsertTransaction(ctx, u.ID, b.ID, 80, "")

	out, err := r.Resolve(ctx, u, dialog.IntentQueryTotal, "quanto gastei esse mês?")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, want := range []string{"R$ 200,00", "Mercado: R$ 120,00", "Lazer: R$ 80,00"} {
		if !strings.Contains(out.Reply, want) {
			t.Errorf("reply %q missing %q", out.Reply, want)
		}
	}
}

func TestQueryTotalInvalidRangeFails(t *testing.T) {
	r, _, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "query_total", "start_date": "2026-03-15", "end_date": "2026-03-01",
	}))

	out, err := r.Resolve(context.Background(), u, dialog.IntentQueryTotal, "gastos de 15/03 a 01/03")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "data final") {
		t.Errorf("reply = %q, want validation message", out.Reply)
	}
}

func TestRemoveTransactionSingleMatch(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "remove_transaction", "amount": 50, "description": "pizza",
	}))
	ctx := context.Background()
	cat, _ := mem.CreateCategory(ctx, u.ID, "Delivery", "")
	mem.InsertTransaction(ctx, u.ID, cat.ID, 50, "pizza do jantar")
	mem.InsertTransaction(ctx, u.ID, cat.ID, 30, "hamburguer")

	out, err := r.Resolve(ctx, u, dialog.IntentRemoveTransaction, "apaga o gasto de 50 da pizza")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "Apaguei") {
		t.Errorf("reply = %q", out.Reply)
	}
	txs, _ := mem.ListTransactions(ctx, u.ID, store.TransactionFilter{})
	if len(txs) != 1 || txs[0].Description != "hamburguer" {
		t.Errorf("wrong transaction removed: %v", txs)
	}
}

func TestRemoveTransactionMultipleMatchesDeletesNothing(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "remove_transaction", "amount": 50,
	}))
	ctx := context.Background()
	cat, _ := mem.CreateCategory(ctx, u.ID, "Delivery", "")
	mem.InsertTransaction(ctx, u.ID, cat.ID, 50, "pizza")
	mem.InsertTransaction(ctx, u.ID, cat.ID, 50, "sushi")

	out, err := r.Resolve(ctx, u, dialog.IntentRemoveTransaction, "apaga o gasto de 50")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.NeedsClarification {
		t.Error("multiple matches must ask, not delete")
	}
	txs, _ := mem.ListTransactions(ctx, u.ID, store.TransactionFilter{})
	if len(txs) != 2 {
		t.Errorf("nothing may be deleted, got %d transactions", len(txs))
	}
}

func TestRemoveTransactionLastFlagNeedsKeyword(t *testing.T) {
	ctx := context.Background()

	// Flag corroborated by the message: newest goes away.
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "remove_transaction", "remove_last": true,
	}))
	cat, _ := mem.CreateCategory(ctx, u.ID, "Delivery", "")
	mem.SetClock(func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) })
	mem.InsertTransaction(ctx, u.ID, cat.ID, 10, "antigo")
	mem.SetClock(func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) })
	mem.InsertTransaction(ctx, u.ID, cat.ID, 20, "recente")
	mem.SetClock(time.Now)

	out, err := r.Resolve(ctx, u, dialog.IntentRemoveTransaction, "apaga o último gasto")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "R$ 20,00") {
		t.Errorf("reply = %q, want newest removed", out.Reply)
	}

	// Flag without the keyword is ignored; with no other criteria the
	// resolver asks instead of trusting the model.
	r2, mem2, u2 := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "remove_transaction", "remove_last": true,
	}))
	cat2, _ := mem2.CreateCategory(ctx, u2.ID, "Delivery", "")
	mem2.InsertTransaction(ctx, u2.ID, cat2.ID, 10, "x")

	out, err = r2.Resolve(ctx, u2, dialog.IntentRemoveTransaction, "apaga um gasto aí")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.NeedsClarification {
		t.Errorf("uncorroborated remove_last should ask, got %q", out.Reply)
	}
	txs, _ := mem2.ListTransactions(ctx, u2.ID, store.TransactionFilter{})
	if len(txs) != 1 {
		t.Error("nothing may be deleted without corroboration")
	}
}

func TestRemoveCategoryBlockedWhenReferenced(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "remove_category", "category": "Lazer",
	}))
	ctx := context.Background()
	cat, _ := mem.CreateCategory(ctx, u.ID, "Lazer", "")
	mem.InsertTransaction(ctx, u.ID, cat.ID, 40, "cinema")

	out, err := r.Resolve(ctx, u, dialog.IntentRemoveCategory, "remove a categoria lazer")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "não pode ser removida") {
		t.Errorf("reply = %q", out.Reply)
	}
	if _, err := mem.GetCategoryByName(ctx, u.ID, "Lazer"); err != nil {
		t.Errorf("category must survive: %v", err)
	}
}

func TestRemoveCategoryDeactivatesLimits(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "remove_category", "category": "Lazer",
	}))
	ctx := context.Background()
	cat, _ := mem.CreateCategory(ctx, u.ID, "Lazer", "")
	mem.CreateLimitRule(ctx, u.ID, cat.ID, store.PeriodMonthly, 200)

	out, err := r.Resolve(ctx, u, dialog.IntentRemoveCategory, "remove a categoria lazer")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "removida") {
		t.Errorf("reply = %q", out.Reply)
	}
	rules, _ := mem.ListActiveLimitRules(ctx, u.ID)
	if len(rules) != 0 {
		t.Errorf("limit rules should be deactivated, got %v", rules)
	}
}

func TestRemoveLimitIsSoftDelete(t *testing.T) {
	r, mem, u := newTestResolver(t, extractionJSON(map[string]any{
		"intent": "remove_limit", "category": "Lazer",
	}))
	ctx := context.Background()
	cat, _ := mem.CreateCategory(ctx, u.ID, "Lazer", "")
	mem.CreateLimitRule(ctx, u.ID, cat.ID, store.PeriodMonthly, 200)

	out, err := r.Resolve(ctx, u, dialog.IntentRemoveLimit, "tira o limite de lazer")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "removido") {
		t.Errorf("reply = %q", out.Reply)
	}
	rules, _ := mem.ListActiveLimitRules(ctx, u.ID)
	if len(rules) != 0 {
		t.Errorf("rule should be inactive, got %v", rules)
	}
}

func TestAddCategoryNearMissAsksFirst(t *testing.T) {
	r, mem, u := newTestResolver(t,
		extractionJSON(map[string]any{"intent": "add_category", "category": "farmásia"}),
		"Farmácia",
	)
	ctx := context.Background()
	mem.CreateCategory(ctx, u.ID, "Farmácia", "")

	out, err := r.Resolve(ctx, u, dialog.IntentAddCategory, "cria a categoria farmásia")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.NeedsClarification {
		t.Errorf("near-miss should ask for confirmation, got %q", out.Reply)
	}
	cats, _ := mem.ListCategories(ctx, u.ID)
	if len(cats) != 1 {
		t.Errorf("no category may be created yet, got %v", cats)
	}
}

func TestOracleFailureBecomesClarification(t *testing.T) {
	r, _, u := newTestResolver(t) // empty script: oracle fails
	out, err := r.Resolve(context.Background(), u, "", "mensagem qualquer")
	if err != nil {
		t.Fatalf("oracle failure must not abort the turn: %v", err)
	}
	if !out.NeedsClarification {
		t.Errorf("expected clarification-style outcome, got %+v", out)
	}
}

func TestHelpSkipsOracle(t *testing.T) {
	fake := oracle.NewFake()
	mem := memory.New()
	ctx := context.Background()
	mem.CreateUser(ctx, "u1", store.StepNone)
	mem.SetUserName(ctx, "u1", "Ana")
	u, _ := mem.GetUser(ctx, "u1")
	r := NewResolver(mem, fake, zerolog.New(io.Discard), 5)

	out, err := r.Resolve(ctx, u, dialog.IntentHelp, "oi")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(out.Reply, "Ana") {
		t.Errorf("help should greet by name, got %q", out.Reply)
	}
	if len(fake.Prompts) != 0 {
		t.Errorf("help must not call the oracle, got %d calls", len(fake.Prompts))
	}
}
