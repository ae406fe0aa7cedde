// Package memory implements store.Store entirely in process memory.
// It backs the test suites and the "memory" backend for local experiments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

type Store struct {
	mu sync.Mutex

	users        map[string]*store.User
	categories   []store.Category
	transactions []store.Transaction
	rules        []store.LimitRule
	turns        []store.ConversationTurn

	now func() time.Time
}

func New() *Store {
	return &Store{
		users: make(map[string]*store.User),
		now:   time.Now,
	}
}

// SetClock overrides the time source. Tests use it to pin transaction
// timestamps inside specific limit windows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Close() error { return nil }

func (s *Store) GetUser(_ context.Context, id string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CreateUser(_ context.Context, id string, step store.OnboardingStep) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	u := &store.User{
		ID:             id,
		OnboardingStep: step,
		CreatedAt:      s.now(),
		LastMessageAt:  s.now(),
	}
	s.users[id] = u
	cp := *u
	return &cp, nil
}

func (s *Store) SetUserName(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Name = name
	return nil
}

func (s *Store) SetOnboardingStep(_ context.Context, id string, step store.OnboardingStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.OnboardingStep = step
	return nil
}

func (s *Store) TouchUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastMessageAt = s.now()
	return nil
}

func (s *Store) CreateCategory(_ context.Context, ownerID, name, description string) (*store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.OwnerID == ownerID && strings.EqualFold(c.Name, name) {
			return nil, store.ErrDuplicateCategory
		}
	}
	c := store.Category{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   s.now(),
	}
	s.categories = append(s.categories, c)
	return &c, nil
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Category
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *Store) GetCategoryByName(_ context.Context, ownerID, name string) (*store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	for _, c := range s.categories {
		if c.OwnerID == ownerID && strings.EqualFold(c.Name, name) {
			cp := c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteCategory(_ context.Context, ownerID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.OwnerID == ownerID && t.CategoryID == categoryID {
			return store.ErrCategoryInUse
		}
	}
	for i, c := range s.categories {
		if c.OwnerID == ownerID && c.ID == categoryID {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) InsertTransaction(_ context.Context, ownerID, categoryID string, amount float64, description string) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := store.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: description,
		CreatedAt:   s.now(),
	}
	s.transactions = append(s.transactions, t)
	return &t, nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID string, f store.TransactionFilter) ([]store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Transaction
	for _, t := range s.transactions {
		if t.OwnerID == ownerID && matches(t, f) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) DeleteTransaction(_ context.Context, ownerID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.transactions {
		if t.OwnerID == ownerID && t.ID == transactionID {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CountTransactionsByCategory(_ context.Context, ownerID, categoryID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.transactions {
		if t.OwnerID == ownerID && t.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Store) SumTransactions(_ context.Context, ownerID string, f store.TransactionFilter) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for _, t := range s.transactions {
		if t.OwnerID == ownerID && matches(t, f) {
			total += t.Amount
		}
	}
	return total, nil
}

func (s *Store) SpendingByCategory(ctx context.Context, ownerID string, f store.TransactionFilter) ([]store.CategorySpend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make(map[string]string) // category id -> name
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			names[c.ID] = c.Name
		}
	}
	sums := make(map[string]float64)
	for _, t := range s.transactions {
		if t.OwnerID != ownerID || !matches(t, f) {
			continue
		}
		name, ok := names[t.CategoryID]
		if !ok {
			name = "Sem categoria"
		}
		sums[name] += t.Amount
	}
	out := make([]store.CategorySpend, 0, len(sums))
	for name, total := range sums {
		out = append(out, store.CategorySpend{CategoryName: name, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out, nil
}

func (s *Store) CreateLimitRule(_ context.Context, ownerID, categoryID string, period store.PeriodType, limit float64) (*store.LimitRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].OwnerID == ownerID && s.rules[i].CategoryID == categoryID && s.rules[i].Active {
			s.rules[i].Active = false
			s.rules[i].UpdatedAt = s.now()
		}
	}
	r := store.LimitRule{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		CategoryID: categoryID,
		PeriodType: period,
		LimitValue: limit,
		Active:     true,
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	s.rules = append(s.rules, r)
	return &r, nil
}

func (s *Store) ListActiveLimitRules(_ context.Context, ownerID string) ([]store.LimitRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.LimitRule
	for _, r := range s.rules {
		if r.OwnerID == ownerID && r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateLimitRuleTotal(_ context.Context, ruleID string, total float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == ruleID {
			s.rules[i].CurrentTotal = total
			s.rules[i].UpdatedAt = s.now()
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeactivateLimitRules(_ context.Context, ownerID, categoryID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.rules {
		if s.rules[i].OwnerID == ownerID && s.rules[i].CategoryID == categoryID && s.rules[i].Active {
			s.rules[i].Active = false
			s.rules[i].UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendConversationTurn(_ context.Context, ownerID, userMessage, botResponse string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, store.ConversationTurn{
		OwnerID:     ownerID,
		UserMessage: userMessage,
		BotResponse: botResponse,
		CreatedAt:   s.now(),
	})
	return nil
}

func (s *Store) RecentConversation(_ context.Context, ownerID string, limit int) ([]store.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.ConversationTurn
	for _, t := range s.turns {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) ClearConversation(_ context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.turns[:0]
	n := 0
	for _, t := range s.turns {
		if t.OwnerID == ownerID {
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.turns = kept
	return n, nil
}

func matches(t store.Transaction, f store.TransactionFilter) bool {
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if f.Start != nil && t.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && t.CreatedAt.After(*f.End) {
		return false
	}
	return true
}
