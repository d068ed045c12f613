package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/limitly/internal/models"
)

const expenseColumns = `e.id, e.description, e.amount, e.original_amount, e.currency, e.exchange_rate,
	e.category, e.paid_by, e.split_type, e.group_id, e.created_at, e.updated_at`

func scanExpense(row interface{ Scan(...any) error }) (*models.Expense, error) {
	expense := &models.Expense{}
	var groupID sql.NullString
	var category, splitType string
	err := row.Scan(
		&expense.ID,
		&expense.Description,
		&expense.Amount,
		&expense.OriginalAmount,
		&expense.Currency,
		&expense.ExchangeRate,
		&category,
		&expense.PaidBy,
		&splitType,
		&groupID,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	expense.Category = models.Category(category)
	expense.SplitType = models.SplitType(splitType)
	expense.GroupID = groupID.String
	return expense, err
}

// CreateExpense persists a new expense with its shares.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	// Generate IDs if not set
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, description, amount, original_amount, currency, exchange_rate,
			category, paid_by, split_type, group_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.Description, expense.Amount, expense.OriginalAmount, expense.Currency,
		expense.ExchangeRate, string(expense.Category), expense.PaidBy, string(expense.SplitType),
		nullString(expense.GroupID), expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertShares(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertShares(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	for i, share := range expense.Shares {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_shares (expense_id, user_id, amount, paid_status, position) VALUES (?, ?, ?, ?, ?)",
			expense.ID, share.UserID, share.Amount, share.PaidStatus, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID with its shares.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses e WHERE e.id = ?", expenseID)
	expense, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, notFound("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := attachShares(ctx, s.db, []*models.Expense{expense}); err != nil {
		return nil, err
	}
	return expense, nil
}

// UpdateExpense replaces the expense row and its full share list in one transaction.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE expenses SET description = ?, amount = ?, original_amount = ?, currency = ?,
			exchange_rate = ?, category = ?, split_type = ?, updated_at = ?
		WHERE id = ?`,
		expense.Description, expense.Amount, expense.OriginalAmount, expense.Currency,
		expense.ExchangeRate, string(expense.Category), string(expense.SplitType), expense.UpdatedAt,
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("expense", expense.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_shares WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete old shares: %w", err)
	}
	if err := insertShares(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteExpense removes an expense and its shares.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("expense", expenseID)
	}
	return nil
}

// ListExpensesByGroup retrieves a group's expenses in creation order.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string, newestFirst bool) ([]*models.Expense, error) {
	order := "e.created_at ASC, e.rowid ASC"
	if newestFirst {
		order = "e.created_at DESC, e.rowid DESC"
	}
	return s.listExpenses(ctx,
		"SELECT "+expenseColumns+" FROM expenses e WHERE e.group_id = ? ORDER BY "+order,
		groupID,
	)
}

// ListExpensesByParticipant retrieves expenses in which the user holds a share.
func (s *SQLiteStore) ListExpensesByParticipant(ctx context.Context, userID string, since int64) ([]*models.Expense, error) {
	return s.listExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses e
		WHERE e.created_at >= ?
		  AND EXISTS (SELECT 1 FROM expense_shares s WHERE s.expense_id = e.id AND s.user_id = ?)
		ORDER BY e.created_at ASC, e.rowid ASC`,
		since, userID,
	)
}

// ListPersonalExpenses retrieves the user's group-less expenses, newest first.
func (s *SQLiteStore) ListPersonalExpenses(ctx context.Context, userID string) ([]*models.Expense, error) {
	return s.listExpenses(ctx,
		"SELECT "+expenseColumns+" FROM expenses e WHERE e.group_id IS NULL AND e.paid_by = ? ORDER BY e.created_at DESC, e.rowid DESC",
		userID,
	)
}

func (s *SQLiteStore) listExpenses(ctx context.Context, query string, args ...any) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	if err := attachShares(ctx, s.db, expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

// attachShares loads the shares of every expense in one query, preserving
// submission order.
func attachShares(ctx context.Context, q querier, expenses []*models.Expense) error {
	if len(expenses) == 0 {
		return nil
	}

	byID := make(map[string]*models.Expense, len(expenses))
	ids := make([]string, len(expenses))
	for i, e := range expenses {
		byID[e.ID] = e
		ids[i] = e.ID
	}

	placeholders, args := inClause(ids)
	rows, err := q.QueryContext(ctx,
		"SELECT expense_id, user_id, amount, paid_status FROM expense_shares WHERE expense_id IN ("+placeholders+") ORDER BY expense_id, position",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to get shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID string
		var share models.Share
		if err := rows.Scan(&expenseID, &share.UserID, &share.Amount, &share.PaidStatus); err != nil {
			return fmt.Errorf("failed to scan share: %w", err)
		}
		e := byID[expenseID]
		e.Shares = append(e.Shares, share)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate shares: %w", err)
	}

	return nil
}
