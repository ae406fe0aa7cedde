// Package store defines the persistence contract shared by every backend.
//
// The dialog layer only ever talks to the Store interface; the concrete
// implementations live in the memory, sqlite and bigquery subpackages and are
// selected by internal/backend. Every statement is individually durable; there
// are no multi-statement transactions, so callers must tolerate partially
// applied intents (limit totals are always recomputed from source rows for
// exactly that reason).
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// OnboardingStep tracks where a user is in the guided setup flow.
// The empty value means onboarding is complete.
type OnboardingStep string

const (
	StepNone       OnboardingStep = ""
	StepStart      OnboardingStep = "start"
	StepGetName    OnboardingStep = "get_name"
	StepCategories OnboardingStep = "categories"
	StepLimits     OnboardingStep = "limits"
)

// PeriodType is the window a limit rule is evaluated over.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateCategory is returned when a category name already exists
	// for the owner (case-insensitive).
	ErrDuplicateCategory = errors.New("store: duplicate category")
	// ErrCategoryInUse is returned when deleting a category that still has
	// transactions referencing it.
	ErrCategoryInUse = errors.New("store: category has transactions")
)

type User struct {
	ID             string
	Name           string // empty until onboarding collects it
	OnboardingStep OnboardingStep
	CreatedAt      time.Time
	LastMessageAt  time.Time
}

type Category struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	CreatedAt   time.Time
}

type Transaction struct {
	ID          string
	OwnerID     string
	CategoryID  string // empty when the category was deleted afterwards
	Amount      float64
	Description string
	CreatedAt   time.Time
}

type LimitRule struct {
	ID           string
	OwnerID      string
	CategoryID   string
	PeriodType   PeriodType
	LimitValue   float64
	CurrentTotal float64 // cached for display only, recomputed on every check
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ConversationTurn struct {
	OwnerID     string
	UserMessage string
	BotResponse string
	CreatedAt   time.Time
}

// CategorySpend is one row of a per-category aggregation.
type CategorySpend struct {
	CategoryName string
	Total        float64
}

// TransactionFilter narrows transaction listings and aggregations.
// Zero values mean "no constraint"; Limit 0 means unbounded.
type TransactionFilter struct {
	CategoryID string
	Start      *time.Time
	End        *time.Time
	Limit      int
}

// Store is the persistence boundary for users, categories, transactions,
// limit rules and the conversation log.
type Store interface {
	// Users. CreateUser starts the onboarding flow for first contact.
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, id string, step OnboardingStep) (*User, error)
	SetUserName(ctx context.Context, id, name string) error
	SetOnboardingStep(ctx context.Context, id string, step OnboardingStep) error
	TouchUser(ctx context.Context, id string) error

	// Categories. Names are unique per owner, case-insensitively.
	CreateCategory(ctx context.Context, ownerID, name, description string) (*Category, error)
	ListCategories(ctx context.Context, ownerID string) ([]Category, error)
	GetCategoryByName(ctx context.Context, ownerID, name string) (*Category, error)
	DeleteCategory(ctx context.Context, ownerID, categoryID string) error

	// Transactions. Append-only except explicit delete-by-id.
	InsertTransaction(ctx context.Context, ownerID, categoryID string, amount float64, description string) (*Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, f TransactionFilter) ([]Transaction, error)
	DeleteTransaction(ctx context.Context, ownerID, transactionID string) error
	CountTransactionsByCategory(ctx context.Context, ownerID, categoryID string) (int, error)
	SumTransactions(ctx context.Context, ownerID string, f TransactionFilter) (float64, error)
	SpendingByCategory(ctx context.Context, ownerID string, f TransactionFilter) ([]CategorySpend, error)

	// Limit rules. CreateLimitRule deactivates prior active rules for the
	// same (owner, category) pair; rules are never physically removed.
	CreateLimitRule(ctx context.Context, ownerID, categoryID string, period PeriodType, limit float64) (*LimitRule, error)
	ListActiveLimitRules(ctx context.Context, ownerID string) ([]LimitRule, error)
	UpdateLimitRuleTotal(ctx context.Context, ruleID string, total float64) error
	DeactivateLimitRules(ctx context.Context, ownerID, categoryID string) (int, error)

	// Conversation log, newest last.
	AppendConversationTurn(ctx context.Context, ownerID, userMessage, botResponse string) error
	RecentConversation(ctx context.Context, ownerID string, limit int) ([]ConversationTurn, error)
	ClearConversation(ctx context.Context, ownerID string) (int, error)

	Close() error
}

// NormalizePeriod maps period labels, including the Portuguese words the
// oracle emits, to a PeriodType. Unknown labels fall back to monthly.
func NormalizePeriod(p string) PeriodType {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case string(PeriodDaily), "diario", "diário", "dia":
		return PeriodDaily
	case string(PeriodWeekly), "semanal", "semana":
		return PeriodWeekly
	default:
		return PeriodMonthly
	}
}
