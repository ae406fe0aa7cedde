// Package setup drives the onboarding conversation: a small state
// machine persisted per user in the onboarding_step column. Steps only
// advance on validated input; anything unclear keeps the user where
// they are with a retry message.
package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/finance"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// defaultCategory seeds the catalog every new user starts with.
type defaultCategory struct {
	Name        string
	Description string
}

var defaultCatalog = []defaultCategory{
	{"Alimentação", "Mercado, supermercado"},
	{"Delivery", "iFood, Rappi, pedidos"},
	{"Transporte", "Uber, combustível, ônibus"},
	{"Moradia", "Aluguel, condomínio, contas"},
	{"Lazer", "Cinema, festas, diversão"},
	{"Farmácia", "Remédios, medicamentos"},
	{"Assinaturas", "Netflix, Spotify, streaming"},
	{"Investimento", "Poupança, ações, aplicações"},
	{"Viagem", "Passagens, hospedagem, turismo"},
}

// confirmationWords are answers, not names or categories.
var confirmationWords = map[string]bool{
	"sim": true, "não": true, "nao": true, "ok": true,
	"pronto": true, "continuar": true, "n": true, "talvez": true,
}

type Controller struct {
	store  store.Store
	oracle oracle.Oracle
	log    zerolog.Logger
}

func NewController(s store.Store, o oracle.Oracle, log zerolog.Logger) *Controller {
	return &Controller{store: s, oracle: o, log: log}
}

// Advance runs one onboarding turn for the user's current step. A user
// who already finished onboarding and asked for setup again is
// restarted from the welcome.
func (c *Controller) Advance(ctx context.Context, user *store.User, message string) (string, error) {
	switch user.OnboardingStep {
	case store.StepStart, store.StepNone:
		return c.start(ctx, user)
	case store.StepGetName:
		return c.getName(ctx, user, message)
	case store.StepCategories:
		return c.categories(ctx, user, message)
	case store.StepLimits:
		return c.limits(ctx, user, message)
	default:
		c.log.Warn().Str("step", string(user.OnboardingStep)).Str("user_id", user.ID).Msg("setup: unknown step, restarting")
		return c.start(ctx, user)
	}
}

func (c *Controller) start(ctx context.Context, user *store.User) (string, error) {
	if err := c.store.SetOnboardingStep(ctx, user.ID, store.StepGetName); err != nil {
		return "", fmt.Errorf("start: %w", err)
	}
	return `Olá! 👋 Eu sou o Jarvis, seu assistente de gastos pessoais.

Vou te ajudar a registrar e acompanhar seus gastos por mensagem.
Para começar, me diga: qual é o seu nome?`, nil
}

func (c *Controller) getName(ctx context.Context, user *store.User, message string) (string, error) {
	name := strings.TrimSpace(message)

	switch {
	case len([]rune(name)) < 2:
		return "❓ Nome muito curto ou vazio. Por favor, me diga seu nome completo:", nil
	case isAllDigits(name):
		return "❓ Isso parece ser um número. Por favor, me diga seu nome (ex: João, Maria, Pedro):", nil
	case confirmationWords[strings.ToLower(name)]:
		return "❓ Isso parece ser uma resposta de confirmação. Por favor, me diga seu nome real (ex: João, Maria, Pedro):", nil
	case !hasAlnum(name):
		return "❓ Não consegui identificar um nome válido. Por favor, me diga seu nome (ex: João, Maria, Pedro):", nil
	}

	name = titleCase(name)
	if err := c.store.SetUserName(ctx, user.ID, name); err != nil {
		return "", fmt.Errorf("getName: save name: %w", err)
	}

	created := 0
	for _, dc := range defaultCatalog {
		if _, err := c.store.CreateCategory(ctx, user.ID, dc.Name, dc.Description); err == nil {
			created++
		}
	}
	if err := c.store.SetOnboardingStep(ctx, user.ID, store.StepCategories); err != nil {
		return "", fmt.Errorf("getName: advance step: %w", err)
	}
	c.log.Info().Str("user_id", user.ID).Str("name", name).Int("categories", created).Msg("setup: name saved, catalog created")

	var b strings.Builder
	fmt.Fprintf(&b, "Prazer em te conhecer, %s! 👋\n\n", name)
	fmt.Fprintf(&b, "✅ Criei %d categorias padrão para você:\n", created)
	for _, dc := range defaultCatalog {
		fmt.Fprintf(&b, "- %s (%s)\n", dc.Name, dc.Description)
	}
	b.WriteString("\nQuer adicionar mais alguma categoria? Me diga o nome dela, ou responda \"pronto\" para continuar.")
	return b.String(), nil
}

// setupAction is the structured reading of a free-form answer during
// the categories and limits steps.
type setupAction struct {
	Action     string  `json:"action"`
	Category   string  `json:"category_name"`
	LimitValue float64 `json:"limit_value"`
	Period     string  `json:"period"`
	Response   string  `json:"response"`
}

func (c *Controller) categories(ctx context.Context, user *store.User, message string) (string, error) {
	act, err := c.parseAction(ctx, user, message, store.StepCategories)
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", user.ID).Msg("setup: category step oracle failure")
		return "Não consegui te entender agora. Me diga o nome de uma categoria para criar, ou responda \"pronto\" para continuar.", nil
	}

	switch act.Action {
	case "finish":
		if err := c.store.SetOnboardingStep(ctx, user.ID, store.StepLimits); err != nil {
			return "", fmt.Errorf("categories: advance step: %w", err)
		}
		return `Ótimo! Agora vamos configurar limites de gastos (opcional).

Envie *Categoria Valor* para criar um limite mensal.
Exemplo: "Alimentação 2000" (máximo R$ 2.000,00 por mês)

Ou responda "não" para pular esta etapa.`, nil

	case "add_category":
		name := strings.TrimSpace(act.Category)
		if name == "" {
			name = strings.TrimSpace(message)
		}
		name = titleCase(name)
		if confirmationWords[strings.ToLower(name)] || len([]rune(name)) < 2 {
			return "❓ Não entendi o nome da categoria. Me diga o nome dela, ou responda \"pronto\" para continuar.", nil
		}
		if _, err := c.store.CreateCategory(ctx, user.ID, name, ""); err != nil {
			if errors.Is(err, store.ErrDuplicateCategory) {
				return fmt.Sprintf("Você já tem a categoria %s. Quer adicionar outra, ou responde \"pronto\" para continuar?", name), nil
			}
			return "", fmt.Errorf("categories: create: %w", err)
		}
		return fmt.Sprintf("✅ Categoria %s criada! Quer adicionar outra, ou responde \"pronto\" para continuar?", name), nil

	default:
		if r := strings.TrimSpace(act.Response); r != "" {
			return r, nil
		}
		return "Me diga o nome de uma categoria para criar, ou responda \"pronto\" para continuar.", nil
	}
}

func (c *Controller) limits(ctx context.Context, user *store.User, message string) (string, error) {
	act, err := c.parseAction(ctx, user, message, store.StepLimits)
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", user.ID).Msg("setup: limit step oracle failure")
		return "Não consegui te entender agora. Envie *Categoria Valor* (ex: \"Alimentação 2000\") ou responda \"não\" para finalizar.", nil
	}

	switch act.Action {
	case "finish":
		if err := c.store.SetOnboardingStep(ctx, user.ID, store.StepNone); err != nil {
			return "", fmt.Errorf("limits: finish: %w", err)
		}
		u, err := c.store.GetUser(ctx, user.ID)
		name := user.Name
		if err == nil {
			name = u.Name
		}
		return fmt.Sprintf(`🎉 Tudo pronto, %s!

Agora é só me mandar seus gastos. Por exemplo:
- "gastei 50 no mercado"
- "quanto gastei esse mês?"
- "meus limites"`, name), nil

	case "add_limit":
		name := titleCase(strings.TrimSpace(act.Category))
		if name == "" {
			return "❓ Não consegui identificar a categoria. Pode informar? (ex: \"Alimentação 2000\")", nil
		}
		if act.LimitValue <= 0 {
			return fmt.Sprintf("❓ Identifiquei a categoria %s, mas não o valor. Quanto é o limite? (ex: \"%s 2000\")", name, name), nil
		}
		cat, err := c.lookupCategory(ctx, user.ID, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Sprintf("❓ Você não tem a categoria %s. Crie a categoria primeiro ou use uma das existentes.", name), nil
			}
			return "", fmt.Errorf("limits: lookup category: %w", err)
		}
		period := store.NormalizePeriod(act.Period)
		if _, err := c.store.CreateLimitRule(ctx, user.ID, cat.ID, period, act.LimitValue); err != nil {
			return "", fmt.Errorf("limits: create rule: %w", err)
		}
		c.log.Info().Str("user_id", user.ID).Str("category", cat.Name).Float64("limit", act.LimitValue).Msg("setup: limit created")
		return fmt.Sprintf("✅ Limite criado: %s por período (%s) em %s. Quer configurar outro, ou responde \"não\" para finalizar?",
			formatLimit(act.LimitValue), periodWord(period), cat.Name), nil

	default:
		if r := strings.TrimSpace(act.Response); r != "" {
			return r, nil
		}
		return "Não entendi. Envie *Categoria Valor* (ex: \"Alimentação 2000\") ou responda \"não\" para finalizar.", nil
	}
}

// lookupCategory resolves a category name exactly, then by the shared
// accent-and-typo matcher; it never creates one.
func (c *Controller) lookupCategory(ctx context.Context, ownerID, name string) (*store.Category, error) {
	cat, err := c.store.GetCategoryByName(ctx, ownerID, name)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	cats, err := c.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cats))
	for _, existing := range cats {
		names = append(names, existing.Name)
	}
	match, ok := finance.MatchCategory(ctx, c.oracle, c.log, name, names)
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.store.GetCategoryByName(ctx, ownerID, match)
}

func (c *Controller) parseAction(ctx context.Context, user *store.User, message string, step store.OnboardingStep) (*setupAction, error) {
	prompt, err := c.buildActionPrompt(ctx, user, message, step)
	if err != nil {
		return nil, err
	}
	raw, err := c.oracle.Infer(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("parseAction: %w", err)
	}
	var act setupAction
	if err := oracle.ExtractJSON(raw, &act); err != nil {
		return nil, fmt.Errorf("parseAction: %w", err)
	}
	return &act, nil
}

func (c *Controller) buildActionPrompt(ctx context.Context, user *store.User, message string, step store.OnboardingStep) (string, error) {
	cats, err := c.store.ListCategories(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("buildActionPrompt: %w", err)
	}
	names := make([]string, 0, len(cats))
	for _, cat := range cats {
		names = append(names, cat.Name)
	}

	var b strings.Builder
	b.WriteString("Você está guiando a configuração inicial de um assistente de gastos.\n")
	fmt.Fprintf(&b, "Categorias do usuário: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "Mensagem do usuário: %q\n\n", message)

	if step == store.StepCategories {
		b.WriteString(`O usuário pode criar mais categorias ou encerrar esta etapa.
Responda APENAS com JSON válido:
{"action": "add_category|finish|other", "category_name": "", "response": ""}

Regras:
- "pronto", "não", "pode seguir" e similares significam finish
- um nome próprio de categoria (ex: "Pets") significa add_category
- dúvidas viram action=other com uma resposta curta em response
`)
	} else {
		b.WriteString(`O usuário pode configurar limites de gasto por categoria ou encerrar.
Responda APENAS com JSON válido:
{"action": "add_limit|finish|other", "category_name": "", "limit_value": 0, "period": "mensal", "response": ""}

Regras:
- "Alimentação 2000" significa add_limit com category_name=Alimentação e limit_value=2000
- "não", "pular", "pronto" e similares significam finish
- se faltar o valor do limite, use action=other e pergunte o valor em response
- period é "mensal" salvo menção explícita a semana ou dia
`)
	}
	return b.String(), nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func formatLimit(v float64) string {
	return fmt.Sprintf("R$ %.2f", v)
}

func periodWord(p store.PeriodType) string {
	switch p {
	case store.PeriodDaily:
		return "diário"
	case store.PeriodWeekly:
		return "semanal"
	default:
		return "mensal"
	}
}
