package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
)

func scanAccount(row rowScanner) (*model.Account, error) {
	var acct model.Account
	var deletedAt sql.NullTime
	err := row.Scan(&acct.ID, &acct.UserID, &acct.Name, &acct.Type, &acct.Currency,
		&acct.IsShared, &acct.CreatedAt, &acct.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	acct.DeletedAt = nullTimeFromDB(deletedAt)
	return &acct, nil
}

// CreateAccount inserts a new account.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if err := validateString(account.Name, "account.Name"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, name, type, currency, is_shared)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, account.UserID, account.Name, account.Type, account.Currency, account.IsShared)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", wrapDuplicate(err))
	}
	return nil
}

// GetAccountByID fetches one account, including soft-deleted rows.
func (s *SQLiteStorage) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, name, type, currency,
		is_shared, created_at, updated_at, deleted_at FROM accounts WHERE id = ?`, id)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, wrapNotFound(err, "account "+id)
	}
	return acct, nil
}

// GetAccounts lists the user's live accounts by name.
func (s *SQLiteStorage) GetAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, name, type, currency,
		is_shared, created_at, updated_at, deleted_at FROM accounts
		WHERE user_id = ? AND deleted_at IS NULL ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// UpdateAccount persists the mutable fields of an account.
func (s *SQLiteStorage) UpdateAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET
		name = ?, type = ?, currency = ?, is_shared = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL`,
		account.Name, account.Type, account.Currency, account.IsShared, account.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(result, "account "+account.ID)
}

// SoftDeleteAccount marks an account deleted. Its transactions remain.
func (s *SQLiteStorage) SoftDeleteAccount(ctx context.Context, id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete account: %w", err)
	}
	return requireRow(result, "account "+id)
}

// GetCategories lists the user's categories, active first, then by name.
func (s *SQLiteStorage) GetCategories(ctx context.Context, userID string) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, name, COALESCE(description, ''),
		is_income, is_active, created_at FROM categories
		WHERE user_id = ? ORDER BY is_active DESC, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description,
			&c.IsIncome, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategoryByID fetches one category.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, id int) (*model.Category, error) {
	var c model.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, name, COALESCE(description, ''),
		is_income, is_active, created_at FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.IsIncome, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("category %d", id))
	}
	return &c, nil
}

// CreateCategory inserts a new category and backfills its generated ID.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(category.Name, "category.Name"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, description, is_income, is_active)
		 VALUES (?, ?, ?, ?, ?)`,
		category.UserID, category.Name, category.Description, category.IsIncome, category.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", wrapDuplicate(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	category.ID = int(id)
	return nil
}

// UpdateCategory persists the mutable fields of a category.
func (s *SQLiteStorage) UpdateCategory(ctx context.Context, category *model.Category) error {
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE categories SET
		name = ?, description = ?, is_income = ?, is_active = ? WHERE id = ?`,
		category.Name, category.Description, category.IsIncome, category.IsActive, category.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", wrapDuplicate(err))
	}
	return requireRow(result, fmt.Sprintf("category %d", category.ID))
}

// DeleteCategory removes a category. Transactions keep the dangling
// category_id cleared by the update below.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET category_id = NULL WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear category references: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if err := requireRow(result, fmt.Sprintf("category %d", id)); err != nil {
		return err
	}

	return tx.Commit()
}

// GetUserIDs lists every user owning at least one live account.
func (s *SQLiteStorage) GetUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM accounts WHERE deleted_at IS NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// wrapDuplicate converts a SQLite unique-constraint violation into
// common.ErrDuplicateEntry so callers can branch on it.
func wrapDuplicate(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return common.ErrDuplicateEntry
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return common.ErrDuplicateEntry
	}
	return err
}
