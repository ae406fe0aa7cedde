package bigquery

import (
	"time"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

// Row types mirror the dataset schema. Field tags must match the column
// names created by cmd/migrate.

type userRow struct {
	ID             string    `bigquery:"id"`
	Name           string    `bigquery:"name"`
	OnboardingStep string    `bigquery:"onboarding_step"`
	CreatedAt      time.Time `bigquery:"created_at"`
	LastMessageAt  time.Time `bigquery:"last_message_at"`
}

type categoryRow struct {
	ID          string    `bigquery:"id"`
	OwnerID     string    `bigquery:"owner_id"`
	Name        string    `bigquery:"name"`
	Description string    `bigquery:"description"`
	CreatedAt   time.Time `bigquery:"created_at"`
}

type transactionRow struct {
	ID          string    `bigquery:"id"`
	OwnerID     string    `bigquery:"owner_id"`
	CategoryID  string    `bigquery:"category_id"`
	Amount      float64   `bigquery:"amount"`
	Description string    `bigquery:"description"`
	CreatedAt   time.Time `bigquery:"created_at"`
}

type limitRuleRow struct {
	ID           string    `bigquery:"id"`
	OwnerID      string    `bigquery:"owner_id"`
	CategoryID   string    `bigquery:"category_id"`
	PeriodType   string    `bigquery:"period_type"`
	LimitValue   float64   `bigquery:"limit_value"`
	CurrentTotal float64   `bigquery:"current_total"`
	Active       bool      `bigquery:"active"`
	CreatedAt    time.Time `bigquery:"created_at"`
	UpdatedAt    time.Time `bigquery:"updated_at"`
}

type conversationRow struct {
	OwnerID     string    `bigquery:"owner_id"`
	UserMessage string    `bigquery:"user_message"`
	BotResponse string    `bigquery:"bot_response"`
	CreatedAt   time.Time `bigquery:"created_at"`
}

type spendRow struct {
	CategoryName string  `bigquery:"category_name"`
	Total        float64 `bigquery:"total"`
}

func (r userRow) toDomain() *store.User {
	return &store.User{
		ID:             r.ID,
		Name:           r.Name,
		OnboardingStep: store.OnboardingStep(r.OnboardingStep),
		CreatedAt:      r.CreatedAt,
		LastMessageAt:  r.LastMessageAt,
	}
}

func (r categoryRow) toDomain() store.Category {
	return store.Category{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

func (r transactionRow) toDomain() store.Transaction {
	return store.Transaction{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		CategoryID:  r.CategoryID,
		Amount:      r.Amount,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

func (r limitRuleRow) toDomain() store.LimitRule {
	return store.LimitRule{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		CategoryID:   r.CategoryID,
		PeriodType:   store.PeriodType(r.PeriodType),
		LimitValue:   r.LimitValue,
		CurrentTotal: r.CurrentTotal,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
