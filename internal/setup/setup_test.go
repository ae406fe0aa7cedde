package setup

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store/memory"
)

func newTestController(t *testing.T, step store.OnboardingStep, replies ...string) (*Controller, *memory.Store, *store.User) {
	t.Helper()
	mem := memory.New()
	ctx := context.Background()
	if _, err := mem.CreateUser(ctx, "u1", step); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, _ := mem.GetUser(ctx, "u1")
	c := NewController(mem, oracle.NewFake(replies...), zerolog.New(io.Discard))
	return c, mem, u
}

func userStep(t *testing.T, mem *memory.Store, id string) store.OnboardingStep {
	t.Helper()
	u, err := mem.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	return u.OnboardingStep
}

func TestStartAsksForName(t *testing.T) {
	c, mem, u := newTestController(t, store.StepStart)

	reply, err := c.Advance(context.Background(), u, "oi")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "nome") {
		t.Errorf("reply = %q", reply)
	}
	if got := userStep(t, mem, "u1"); got != store.StepGetName {
		t.Errorf("step = %q, want %q", got, store.StepGetName)
	}
}

func TestGetNameValidation(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "too short", message: "a"},
		{name: "empty", message: "   "},
		{name: "numeric", message: "12345"},
		{name: "confirmation word", message: "sim"},
		{name: "confirmation word nao", message: "não"},
		{name: "only punctuation", message: "???"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mem, u := newTestController(t, store.StepGetName)
			reply, err := c.Advance(context.Background(), u, tt.message)
			if err != nil {
				t.Fatalf("Advance: %v", err)
			}
			if !strings.HasPrefix(reply, "❓") {
				t.Errorf("reply = %q, want a retry question", reply)
			}
			if got := userStep(t, mem, "u1"); got != store.StepGetName {
				t.Errorf("invalid name must not advance, step = %q", got)
			}
		})
	}
}

func TestGetNameSuccessCreatesCatalog(t *testing.T) {
	c, mem, u := newTestController(t, store.StepGetName)
	ctx := context.Background()

	reply, err := c.Advance(ctx, u, "ana clara")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "Ana Clara") {
		t.Errorf("name should be title-cased, reply = %q", reply)
	}

	saved, _ := mem.GetUser(ctx, "u1")
	if saved.Name != "Ana Clara" {
		t.Errorf("saved name = %q", saved.Name)
	}
	if saved.OnboardingStep != store.StepCategories {
		t.Errorf("step = %q, want %q", saved.OnboardingStep, store.StepCategories)
	}

	cats, _ := mem.ListCategories(ctx, "u1")
	if len(cats) != len(defaultCatalog) {
		t.Errorf("got %d categories, want %d", len(cats), len(defaultCatalog))
	}
	if _, err := mem.GetCategoryByName(ctx, "u1", "Farmácia"); err != nil {
		t.Errorf("default catalog missing Farmácia: %v", err)
	}
}

func TestCategoriesStepAddAndFinish(t *testing.T) {
	ctx := context.Background()

	c, mem, u := newTestController(t, store.StepCategories,
		`{"action": "add_category", "category_name": "Pets"}`,
	)
	reply, err := c.Advance(ctx, u, "quero uma categoria Pets")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "Pets") {
		t.Errorf("reply = %q", reply)
	}
	if _, err := mem.GetCategoryByName(ctx, "u1", "Pets"); err != nil {
		t.Errorf("category not created: %v", err)
	}
	if got := userStep(t, mem, "u1"); got != store.StepCategories {
		t.Errorf("adding a category must not advance, step = %q", got)
	}

	c2, mem2, u2 := newTestController(t, store.StepCategories,
		`{"action": "finish"}`,
	)
	reply, err = c2.Advance(ctx, u2, "pronto")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "limites") {
		t.Errorf("reply = %q", reply)
	}
	if got := userStep(t, mem2, "u1"); got != store.StepLimits {
		t.Errorf("step = %q, want %q", got, store.StepLimits)
	}
}

func TestLimitsStepCreatesRule(t *testing.T) {
	ctx := context.Background()
	c, mem, u := newTestController(t, store.StepLimits,
		`{"action": "add_limit", "category_name": "Alimentação", "limit_value": 2000, "period": "mensal"}`,
	)
	cat, _ := mem.CreateCategory(ctx, "u1", "Alimentação", "")

	reply, err := c.Advance(ctx, u, "Alimentação 2000")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "Limite criado") {
		t.Errorf("reply = %q", reply)
	}
	rules, _ := mem.ListActiveLimitRules(ctx, "u1")
	if len(rules) != 1 || rules[0].CategoryID != cat.ID || rules[0].LimitValue != 2000 {
		t.Errorf("rule = %+v", rules)
	}
	if got := userStep(t, mem, "u1"); got != store.StepLimits {
		t.Errorf("adding a limit must not advance, step = %q", got)
	}
}

func TestLimitsStepMatchesAccentVariant(t *testing.T) {
	ctx := context.Background()
	c, mem, u := newTestController(t, store.StepLimits,
		`{"action": "add_limit", "category_name": "farmacia", "limit_value": 200, "period": "mensal"}`,
		`Farmácia`,
	)
	cat, _ := mem.CreateCategory(ctx, "u1", "Farmácia", "")

	reply, err := c.Advance(ctx, u, "farmacia 200")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "Limite criado") || !strings.Contains(reply, "Farmácia") {
		t.Errorf("reply = %q", reply)
	}
	rules, _ := mem.ListActiveLimitRules(ctx, "u1")
	if len(rules) != 1 || rules[0].CategoryID != cat.ID || rules[0].LimitValue != 200 {
		t.Errorf("rule = %+v", rules)
	}
}

func TestLimitsStepUnknownCategory(t *testing.T) {
	c, mem, u := newTestController(t, store.StepLimits,
		`{"action": "add_limit", "category_name": "Pets", "limit_value": 100}`,
	)
	reply, err := c.Advance(context.Background(), u, "Pets 100")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "não tem a categoria") {
		t.Errorf("reply = %q", reply)
	}
	rules, _ := mem.ListActiveLimitRules(context.Background(), "u1")
	if len(rules) != 0 {
		t.Errorf("no rule may be created, got %v", rules)
	}
}

func TestLimitsStepFinishCompletesOnboarding(t *testing.T) {
	ctx := context.Background()
	c, mem, u := newTestController(t, store.StepLimits,
		`{"action": "finish"}`,
	)
	mem.SetUserName(ctx, "u1", "Ana")

	reply, err := c.Advance(ctx, u, "não")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply, "Tudo pronto") || !strings.Contains(reply, "Ana") {
		t.Errorf("reply = %q", reply)
	}
	if got := userStep(t, mem, "u1"); got != store.StepNone {
		t.Errorf("step = %q, want onboarding finished", got)
	}
}

func TestOracleFailureDoesNotAdvance(t *testing.T) {
	for _, step := range []store.OnboardingStep{store.StepCategories, store.StepLimits} {
		t.Run(string(step), func(t *testing.T) {
			c, mem, u := newTestController(t, step) // empty script: oracle fails
			reply, err := c.Advance(context.Background(), u, "hmm")
			if err != nil {
				t.Fatalf("oracle failure must not abort the turn: %v", err)
			}
			if !strings.Contains(reply, "Não consegui te entender") {
				t.Errorf("reply = %q", reply)
			}
			if got := userStep(t, mem, "u1"); got != step {
				t.Errorf("step moved from %q to %q on oracle failure", step, got)
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ana", "Ana"},
		{"ana clara", "Ana Clara"},
		{"JOÃO PEDRO", "João Pedro"},
		{"maria-jose", "Maria-jose"},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Errorf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
