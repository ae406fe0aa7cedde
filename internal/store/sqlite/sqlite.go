// Package sqlite implements store.Store on a local SQLite database,
// the default backend for single-machine deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, onboarding_step, created_at, last_message_at FROM users WHERE id = ?`, id)
	var u store.User
	var step string
	if err := row.Scan(&u.ID, &u.Name, &step, &u.CreatedAt, &u.LastMessageAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetUser: scan: %w", err)
	}
	u.OnboardingStep = store.OnboardingStep(step)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, id string, step store.OnboardingStep) (*store.User, error) {
	if u, err := s.GetUser(ctx, id); err == nil {
		return u, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, onboarding_step, created_at, last_message_at) VALUES (?, '', ?, ?, ?)`,
		id, string(step), now, now)
	if err != nil {
		return nil, fmt.Errorf("CreateUser: insert: %w", err)
	}
	return &store.User{ID: id, OnboardingStep: step, CreatedAt: now, LastMessageAt: now}, nil
}

func (s *Store) SetUserName(ctx context.Context, id, name string) error {
	return s.updateUser(ctx, "SetUserName", `UPDATE users SET name = ? WHERE id = ?`, name, id)
}

func (s *Store) SetOnboardingStep(ctx context.Context, id string, step store.OnboardingStep) error {
	return s.updateUser(ctx, "SetOnboardingStep", `UPDATE users SET onboarding_step = ? WHERE id = ?`, string(step), id)
}

func (s *Store) TouchUser(ctx context.Context, id string) error {
	return s.updateUser(ctx, "TouchUser", `UPDATE users SET last_message_at = ? WHERE id = ?`, time.Now().UTC(), id)
}

func (s *Store) updateUser(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: update: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, ownerID, name, description string) (*store.Category, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM categories WHERE owner_id = ? AND name = ? COLLATE NOCASE`,
		ownerID, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("CreateCategory: check duplicate: %w", err)
	}
	if exists > 0 {
		return nil, store.ErrDuplicateCategory
	}
	c := store.Category{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO categories (id, owner_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.Description, c.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, store.ErrDuplicateCategory
		}
		return nil, fmt.Errorf("CreateCategory: insert: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]store.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, description, created_at FROM categories
		 WHERE owner_id = ? ORDER BY name COLLATE NOCASE`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query: %w", err)
	}
	defer rows.Close()

	var out []store.Category
	for rows.Next() {
		var c store.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCategories: iterate: %w", err)
	}
	return out, nil
}

func (s *Store) GetCategoryByName(ctx context.Context, ownerID, name string) (*store.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, created_at FROM categories
		 WHERE owner_id = ? AND name = ? COLLATE NOCASE`, ownerID, strings.TrimSpace(name))
	var c store.Category
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetCategoryByName: scan: %w", err)
	}
	return &c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, ownerID, categoryID string) error {
	n, err := s.CountTransactionsByCategory(ctx, ownerID, categoryID)
	if err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	if n > 0 {
		return store.ErrCategoryInUse
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM categories WHERE owner_id = ? AND id = ?`, ownerID, categoryID)
	if err != nil {
		return fmt.Errorf("DeleteCategory: delete: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, ownerID, categoryID string, amount float64, description string) (*store.Transaction, error) {
	t := store.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, owner_id, category_id, amount, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.CategoryID, t.Amount, t.Description, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("InsertTransaction: insert: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string, f store.TransactionFilter) ([]store.Transaction, error) {
	query, args := buildTransactionQuery(
		`SELECT id, owner_id, category_id, amount, description, created_at FROM transactions`,
		ownerID, f)
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", err)
	}
	defer rows.Close()

	var out []store.Transaction
	for rows.Next() {
		var t store.Transaction
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.CategoryID, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: iterate: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, transactionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE owner_id = ? AND id = ?`, ownerID, transactionID)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountTransactionsByCategory(ctx context.Context, ownerID, categoryID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transactions WHERE owner_id = ? AND category_id = ?`,
		ownerID, categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountTransactionsByCategory: scan: %w", err)
	}
	return n, nil
}

func (s *Store) SumTransactions(ctx context.Context, ownerID string, f store.TransactionFilter) (float64, error) {
	query, args := buildTransactionQuery(
		`SELECT COALESCE(SUM(amount), 0) FROM transactions`, ownerID, f)
	var total float64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("SumTransactions: scan: %w", err)
	}
	return total, nil
}

func (s *Store) SpendingByCategory(ctx context.Context, ownerID string, f store.TransactionFilter) ([]store.CategorySpend, error) {
	query := `SELECT COALESCE(c.name, 'Sem categoria'), SUM(t.amount)
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.owner_id = ?`
	args := []any{ownerID}
	if f.CategoryID != "" {
		query += ` AND t.category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Start != nil {
		query += ` AND t.created_at >= ?`
		args = append(args, *f.Start)
	}
	if f.End != nil {
		query += ` AND t.created_at <= ?`
		args = append(args, *f.End)
	}
	query += ` GROUP BY c.name ORDER BY SUM(t.amount) DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SpendingByCategory: query: %w", err)
	}
	defer rows.Close()

	var out []store.CategorySpend
	for rows.Next() {
		var cs store.CategorySpend
		if err := rows.Scan(&cs.CategoryName, &cs.Total); err != nil {
			return nil, fmt.Errorf("SpendingByCategory: scan: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SpendingByCategory: iterate: %w", err)
	}
	return out, nil
}

func (s *Store) CreateLimitRule(ctx context.Context, ownerID, categoryID string, period store.PeriodType, limit float64) (*store.LimitRule, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateLimitRule: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE limit_rules SET active = 0, updated_at = ? WHERE owner_id = ? AND category_id = ? AND active = 1`,
		now, ownerID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("CreateLimitRule: deactivate previous: %w", err)
	}

	r := store.LimitRule{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		CategoryID: categoryID,
		PeriodType: period,
		LimitValue: limit,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO limit_rules (id, owner_id, category_id, period_type, limit_value, current_total, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?)`,
		r.ID, r.OwnerID, r.CategoryID, string(r.PeriodType), r.LimitValue, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateLimitRule: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateLimitRule: commit: %w", err)
	}
	return &r, nil
}

func (s *Store) ListActiveLimitRules(ctx context.Context, ownerID string) ([]store.LimitRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, category_id, period_type, limit_value, current_total, active, created_at, updated_at
		 FROM limit_rules WHERE owner_id = ? AND active = 1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ListActiveLimitRules: query: %w", err)
	}
	defer rows.Close()

	var out []store.LimitRule
	for rows.Next() {
		var r store.LimitRule
		var period string
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.CategoryID, &period, &r.LimitValue, &r.CurrentTotal, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListActiveLimitRules: scan: %w", err)
		}
		r.PeriodType = store.PeriodType(period)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActiveLimitRules: iterate: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateLimitRuleTotal(ctx context.Context, ruleID string, total float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE limit_rules SET current_total = ?, updated_at = ? WHERE id = ?`,
		total, time.Now().UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("UpdateLimitRuleTotal: update: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateLimitRules(ctx context.Context, ownerID, categoryID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE limit_rules SET active = 0, updated_at = ? WHERE owner_id = ? AND category_id = ? AND active = 1`,
		time.Now().UTC(), ownerID, categoryID)
	if err != nil {
		return 0, fmt.Errorf("DeactivateLimitRules: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeactivateLimitRules: rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Store) AppendConversationTurn(ctx context.Context, ownerID, userMessage, botResponse string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (owner_id, user_message, bot_response, created_at) VALUES (?, ?, ?, ?)`,
		ownerID, userMessage, botResponse, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("AppendConversationTurn: insert: %w", err)
	}
	return nil
}

func (s *Store) RecentConversation(ctx context.Context, ownerID string, limit int) ([]store.ConversationTurn, error) {
	query := `SELECT owner_id, user_message, bot_response, created_at FROM conversation_turns
		 WHERE owner_id = ? ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("RecentConversation: query: %w", err)
	}
	defer rows.Close()

	var out []store.ConversationTurn
	for rows.Next() {
		var t store.ConversationTurn
		if err := rows.Scan(&t.OwnerID, &t.UserMessage, &t.BotResponse, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("RecentConversation: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentConversation: iterate: %w", err)
	}
	// Flip to chronological order; the query reads newest first to apply the limit.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) ClearConversation(ctx context.Context, ownerID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_turns WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("ClearConversation: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ClearConversation: rows affected: %w", err)
	}
	return int(n), nil
}

func buildTransactionQuery(selectClause, ownerID string, f store.TransactionFilter) (string, []any) {
	query := selectClause + ` WHERE owner_id = ?`
	args := []any{ownerID}
	if f.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	// Stored timestamps are UTC and the driver compares the text form,
	// so bounds must be normalized or same-instant values in another
	// zone compare wrongly.
	if f.Start != nil {
		query += ` AND created_at >= ?`
		args = append(args, f.Start.UTC())
	}
	if f.End != nil {
		query += ` AND created_at <= ?`
		args = append(args, f.End.UTC())
	}
	return query, args
}
