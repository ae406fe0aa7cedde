// Package bigquery implements store.Store on Google BigQuery for
// deployments that keep the spending history in a shared dataset.
//
// Streaming inserts land in the streaming buffer, where rows cannot be
// updated or deleted for a while. Mutations therefore go through DML
// jobs, and inserts for mutable tables use DML as well.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
)

const (
	usersTable        = "users"
	categoriesTable   = "categories"
	transactionsTable = "transactions"
	limitRulesTable   = "limit_rules"
	conversationTable = "conversation_turns"
)

type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

func New(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: create client: %w", err)
	}
	return &Store{client: client, projectID: projectID, datasetID: datasetID}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) table(name string) string {
	return "`" + s.projectID + "." + s.datasetID + "." + name + "`"
}

func (s *Store) runDML(ctx context.Context, op string, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: run query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: wait for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("%s: job error: %w", op, err)
	}
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return qs.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	q := s.client.Query(`
		SELECT id, name, onboarding_step, created_at, last_message_at
		FROM ` + s.table(usersTable) + `
		WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetUser: read: %w", err)
	}
	var row userRow
	if err := it.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetUser: iterate: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateUser(ctx context.Context, id string, step store.OnboardingStep) (*store.User, error) {
	if u, err := s.GetUser(ctx, id); err == nil {
		return u, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	q := s.client.Query(`
		INSERT INTO ` + s.table(usersTable) + ` (id, name, onboarding_step, created_at, last_message_at)
		VALUES (@id, '', @step, @now, @now)`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "step", Value: string(step)},
		{Name: "now", Value: now},
	}
	if _, err := s.runDML(ctx, "CreateUser", q); err != nil {
		return nil, err
	}
	return &store.User{ID: id, OnboardingStep: step, CreatedAt: now, LastMessageAt: now}, nil
}

func (s *Store) SetUserName(ctx context.Context, id, name string) error {
	q := s.client.Query(`
		UPDATE ` + s.table(usersTable) + ` SET name = @name WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "name", Value: name},
		{Name: "id", Value: id},
	}
	return s.expectOne(ctx, "SetUserName", q)
}

func (s *Store) SetOnboardingStep(ctx context.Context, id string, step store.OnboardingStep) error {
	q := s.client.Query(`
		UPDATE ` + s.table(usersTable) + ` SET onboarding_step = @step WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "step", Value: string(step)},
		{Name: "id", Value: id},
	}
	return s.expectOne(ctx, "SetOnboardingStep", q)
}

func (s *Store) TouchUser(ctx context.Context, id string) error {
	q := s.client.Query(`
		UPDATE ` + s.table(usersTable) + ` SET last_message_at = @now WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "now", Value: time.Now().UTC()},
		{Name: "id", Value: id},
	}
	return s.expectOne(ctx, "TouchUser", q)
}

func (s *Store) expectOne(ctx context.Context, op string, q *bigquery.Query) error {
	n, err := s.runDML(ctx, op, q)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, ownerID, name, description string) (*store.Category, error) {
	if _, err := s.GetCategoryByName(ctx, ownerID, name); err == nil {
		return nil, store.ErrDuplicateCategory
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("CreateCategory: %w", err)
	}
	c := store.Category{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	q := s.client.Query(`
		INSERT INTO ` + s.table(categoriesTable) + ` (id, owner_id, name, description, created_at)
		VALUES (@id, @owner_id, @name, @description, @created_at)`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: c.ID},
		{Name: "owner_id", Value: c.OwnerID},
		{Name: "name", Value: c.Name},
		{Name: "description", Value: c.Description},
		{Name: "created_at", Value: c.CreatedAt},
	}
	if _, err := s.runDML(ctx, "CreateCategory", q); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]store.Category, error) {
	q := s.client.Query(`
		SELECT id, owner_id, name, description, created_at
		FROM ` + s.table(categoriesTable) + `
		WHERE owner_id = @owner_id
		ORDER BY LOWER(name)`)
	q.Parameters = []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: read: %w", err)
	}
	var out []store.Category
	for {
		var row categoryRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategories: iterate: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) GetCategoryByName(ctx context.Context, ownerID, name string) (*store.Category, error) {
	q := s.client.Query(`
		SELECT id, owner_id, name, description, created_at
		FROM ` + s.table(categoriesTable) + `
		WHERE owner_id = @owner_id AND LOWER(name) = LOWER(@name)`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "name", Value: name},
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetCategoryByName: read: %w", err)
	}
	var row categoryRow
	if err := it.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetCategoryByName: iterate: %w", err)
	}
	cat := row.toDomain()
	return &cat, nil
}

func (s *Store) DeleteCategory(ctx context.Context, ownerID, categoryID string) error {
	n, err := s.CountTransactionsByCategory(ctx, ownerID, categoryID)
	if err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	if n > 0 {
		return store.ErrCategoryInUse
	}
	q := s.client.Query(`
		DELETE FROM ` + s.table(categoriesTable) + `
		WHERE owner_id = @owner_id AND id = @id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "id", Value: categoryID},
	}
	return s.expectOne(ctx, "DeleteCategory", q)
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
	q := s.client.Query(`
		INSERT INTO ` + s.table(transactionsTable) + ` (id, owner_id, category_id, amount, description, created_at)
		VALUES (@id, @owner_id, @category_id, @amount, @description, @created_at)`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: t.ID},
		{Name: "owner_id", Value: t.OwnerID},
		{Name: "category_id", Value: t.CategoryID},
		{Name: "amount", Value: t.Amount},
		{Name: "description", Value: t.Description},
		{Name: "created_at", Value: t.CreatedAt},
	}
	if _, err := s.runDML(ctx, "InsertTransaction", q); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string, f store.TransactionFilter) ([]store.Transaction, error) {
	query := `
		SELECT id, owner_id, category_id, amount, description, created_at
		FROM ` + s.table(transactionsTable) + `
		WHERE owner_id = @owner_id`
	params := []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}}
	query, params = appendFilter(query, params, f)
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT @row_limit`
		params = append(params, bigquery.QueryParameter{Name: "row_limit", Value: int64(f.Limit)})
	}

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: read: %w", err)
	}
	var out []store.Transaction
	for {
		var row transactionRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iterate: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, transactionID string) error {
	q := s.client.Query(`
		DELETE FROM ` + s.table(transactionsTable) + `
		WHERE owner_id = @owner_id AND id = @id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "id", Value: transactionID},
	}
	return s.expectOne(ctx, "DeleteTransaction", q)
}

func (s *Store) CountTransactionsByCategory(ctx context.Context, ownerID, categoryID string) (int, error) {
	q := s.client.Query(`
		SELECT COUNT(1) AS total
		FROM ` + s.table(transactionsTable) + `
		WHERE owner_id = @owner_id AND category_id = @category_id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "category_id", Value: categoryID},
	}
	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountTransactionsByCategory: read: %w", err)
	}
	var row struct {
		Total int64 `bigquery:"total"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountTransactionsByCategory: iterate: %w", err)
	}
	return int(row.Total), nil
}

func (s *Store) SumTransactions(ctx context.Context, ownerID string, f store.TransactionFilter) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) AS total
		FROM ` + s.table(transactionsTable) + `
		WHERE owner_id = @owner_id`
	params := []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}}
	query, params = appendFilter(query, params, f)

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("SumTransactions: read: %w", err)
	}
	var row struct {
		Total float64 `bigquery:"total"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("SumTransactions: iterate: %w", err)
	}
	return row.Total, nil
}

func (s *Store) SpendingByCategory(ctx context.Context, ownerID string, f store.TransactionFilter) ([]store.CategorySpend, error) {
	query := `
		SELECT COALESCE(c.name, 'Sem categoria') AS category_name, SUM(t.amount) AS total
		FROM ` + s.table(transactionsTable) + ` t
		LEFT JOIN ` + s.table(categoriesTable) + ` c ON c.id = t.category_id
		WHERE t.owner_id = @owner_id`
	params := []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}}
	if f.CategoryID != "" {
		query += ` AND t.category_id = @category_id`
		params = append(params, bigquery.QueryParameter{Name: "category_id", Value: f.CategoryID})
	}
	if f.Start != nil {
		query += ` AND t.created_at >= @start`
		params = append(params, bigquery.QueryParameter{Name: "start", Value: *f.Start})
	}
	if f.End != nil {
		query += ` AND t.created_at <= @end`
		params = append(params, bigquery.QueryParameter{Name: "end", Value: *f.End})
	}
	query += ` GROUP BY category_name ORDER BY total DESC`

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SpendingByCategory: read: %w", err)
	}
	var out []store.CategorySpend
	for {
		var row spendRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SpendingByCategory: iterate: %w", err)
		}
		out = append(out, store.CategorySpend{CategoryName: row.CategoryName, Total: row.Total})
	}
	return out, nil
}

func (s *Store) CreateLimitRule(ctx context.Context, ownerID, categoryID string, period store.PeriodType, limit float64) (*store.LimitRule, error) {
	if _, err := s.DeactivateLimitRules(ctx, ownerID, categoryID); err != nil {
		return nil, fmt.Errorf("CreateLimitRule: %w", err)
	}
	now := time.Now().UTC()
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
	q := s.client.Query(`
		INSERT INTO ` + s.table(limitRulesTable) + `
		(id, owner_id, category_id, period_type, limit_value, current_total, active, created_at, updated_at)
		VALUES (@id, @owner_id, @category_id, @period_type, @limit_value, 0, TRUE, @now, @now)`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: r.ID},
		{Name: "owner_id", Value: r.OwnerID},
		{Name: "category_id", Value: r.CategoryID},
		{Name: "period_type", Value: string(r.PeriodType)},
		{Name: "limit_value", Value: r.LimitValue},
		{Name: "now", Value: now},
	}
	if _, err := s.runDML(ctx, "CreateLimitRule", q); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListActiveLimitRules(ctx context.Context, ownerID string) ([]store.LimitRule, error) {
	q := s.client.Query(`
		SELECT id, owner_id, category_id, period_type, limit_value, current_total, active, created_at, updated_at
		FROM ` + s.table(limitRulesTable) + `
		WHERE owner_id = @owner_id AND active = TRUE
		ORDER BY created_at`)
	q.Parameters = []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveLimitRules: read: %w", err)
	}
	var out []store.LimitRule
	for {
		var row limitRuleRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveLimitRules: iterate: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateLimitRuleTotal(ctx context.Context, ruleID string, total float64) error {
	q := s.client.Query(`
		UPDATE ` + s.table(limitRulesTable) + `
		SET current_total = @total, updated_at = @now
		WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "total", Value: total},
		{Name: "now", Value: time.Now().UTC()},
		{Name: "id", Value: ruleID},
	}
	return s.expectOne(ctx, "UpdateLimitRuleTotal", q)
}

func (s *Store) DeactivateLimitRules(ctx context.Context, ownerID, categoryID string) (int, error) {
	q := s.client.Query(`
		UPDATE ` + s.table(limitRulesTable) + `
		SET active = FALSE, updated_at = @now
		WHERE owner_id = @owner_id AND category_id = @category_id AND active = TRUE`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "now", Value: time.Now().UTC()},
		{Name: "owner_id", Value: ownerID},
		{Name: "category_id", Value: categoryID},
	}
	n, err := s.runDML(ctx, "DeactivateLimitRules", q)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) AppendConversationTurn(ctx context.Context, ownerID, userMessage, botResponse string) error {
	// Append-only table, so the streaming inserter is fine here.
	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(conversationTable)
	row := &conversationRow{
		OwnerID:     ownerID,
		UserMessage: userMessage,
		BotResponse: botResponse,
		CreatedAt:   time.Now().UTC(),
	}
	if err := table.Inserter().Put(ctx, row); err != nil {
		return fmt.Errorf("AppendConversationTurn: inserting row: %w", err)
	}
	return nil
}

func (s *Store) RecentConversation(ctx context.Context, ownerID string, limit int) ([]store.ConversationTurn, error) {
	query := `
		SELECT owner_id, user_message, bot_response, created_at
		FROM ` + s.table(conversationTable) + `
		WHERE owner_id = @owner_id
		ORDER BY created_at DESC`
	params := []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}}
	if limit > 0 {
		query += ` LIMIT @row_limit`
		params = append(params, bigquery.QueryParameter{Name: "row_limit", Value: int64(limit)})
	}

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("RecentConversation: read: %w", err)
	}
	var out []store.ConversationTurn
	for {
		var row conversationRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("RecentConversation: iterate: %w", err)
		}
		out = append(out, store.ConversationTurn{
			OwnerID:     row.OwnerID,
			UserMessage: row.UserMessage,
			BotResponse: row.BotResponse,
			CreatedAt:   row.CreatedAt,
		})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) ClearConversation(ctx context.Context, ownerID string) (int, error) {
	q := s.client.Query(`
		DELETE FROM ` + s.table(conversationTable) + `
		WHERE owner_id = @owner_id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}}
	n, err := s.runDML(ctx, "ClearConversation", q)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func appendFilter(query string, params []bigquery.QueryParameter, f store.TransactionFilter) (string, []bigquery.QueryParameter) {
	if f.CategoryID != "" {
		query += ` AND category_id = @category_id`
		params = append(params, bigquery.QueryParameter{Name: "category_id", Value: f.CategoryID})
	}
	if f.Start != nil {
		query += ` AND created_at >= @start`
		params = append(params, bigquery.QueryParameter{Name: "start", Value: *f.Start})
	}
	if f.End != nil {
		query += ` AND created_at <= @end`
		params = append(params, bigquery.QueryParameter{Name: "end", Value: *f.End})
	}
	return query, params
}
