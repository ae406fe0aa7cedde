package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// botHistoryTruncate caps how much of each earlier bot reply goes back
// into the prompt. Replies can be long; the tail adds nothing.
const botHistoryTruncate = 150

// flexFloat tolerates the model returning numbers as strings ("50,00").
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(strings.ReplaceAll(str, ",", "."))
		str = strings.TrimPrefix(str, "R$")
		str = strings.TrimSpace(str)
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("flexFloat: %q: %w", str, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexBool tolerates "true"/"sim"/1 style answers.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "sim", "yes", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

// extraction is the structured slot set pulled from one message. All
// fields are untrusted until validated by the per-intent handlers.
type extraction struct {
	Intent      string    `json:"intent"`
	Amount      flexFloat `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	RemoveLast  flexBool  `json:"remove_last"`
	Period      string    `json:"period"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Reply       string    `json:"reply"`
}

func (r *Resolver) extract(ctx context.Context, user *store.User, message string) (*extraction, error) {
	prompt, err := r.buildExtractionPrompt(ctx, user, message)
	if err != nil {
		return nil, err
	}
	raw, err := r.oracle.Infer(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	var ext extraction
	if err := oracle.ExtractJSON(raw, &ext); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	ext.Category = strings.TrimSpace(ext.Category)
	ext.Description = strings.TrimSpace(ext.Description)
	return &ext, nil
}

func (r *Resolver) buildExtractionPrompt(ctx context.Context, user *store.User, message string) (string, error) {
	cats, err := r.store.ListCategories(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("buildExtractionPrompt: list categories: %w", err)
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}

	now := r.now()
	monthStart := StartOfMonth(now)
	monthTotal, err := r.store.SumTransactions(ctx, user.ID, store.TransactionFilter{Start: &monthStart})
	if err != nil {
		return "", fmt.Errorf("buildExtractionPrompt: month total: %w", err)
	}

	history, err := r.store.RecentConversation(ctx, user.ID, r.historyWindow)
	if err != nil {
		return "", fmt.Errorf("buildExtractionPrompt: recent conversation: %w", err)
	}

	var b strings.Builder
	b.WriteString("Você é o assistente financeiro pessoal do usuário. Extraia a intenção e os dados da mensagem.\n\n")
	fmt.Fprintf(&b, "Usuário: %s\n", user.Name)
	fmt.Fprintf(&b, "Data de hoje: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total gasto no mês atual: %s\n", FormatBRL(monthTotal))
	fmt.Fprintf(&b, "Categorias existentes: %s\n\n", strings.Join(names, ", "))

	if len(history) > 0 {
		b.WriteString("Conversa recente:\n")
		for _, turn := range history {
			bot := truncateHistory(turn.BotResponse, botHistoryTruncate)
			fmt.Fprintf(&b, "Usuário: %s\nAssistente: %s\n", turn.UserMessage, bot)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Mensagem atual: %q\n\n", message)
	b.WriteString(`Intenções possíveis: registration, query_total, query_category,
query_last_transaction, query_limits, list_categories, add_category,
remove_category, remove_transaction, remove_limit, help, out_of_scope.

Responda APENAS com JSON válido:
{
  "intent": "...",
  "amount": 0,
  "category": "",
  "description": "",
  "date": "",
  "remove_last": false,
  "period": "day|week|month|all",
  "start_date": "",
  "end_date": "",
  "reply": ""
}

Regras:
- amount é o valor em reais (número, use 0 se não houver valor)
- category é o nome da categoria citada, vazio se não houver
- date, start_date e end_date em YYYY-MM-DD quando presentes
- remove_last = true apenas se o usuário pediu para apagar o ÚLTIMO gasto
- period só para consultas de período relativo
- reply é uma resposta curta e amigável caso a intenção seja help ou out_of_scope
`)
	return b.String(), nil
}

// truncateHistory cuts on a rune boundary so the prompt never carries
// a split multi-byte character.
func truncateHistory(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func defaultNow() time.Time { return time.Now().UTC() }
