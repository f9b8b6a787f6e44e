package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

const transactionColumns = `id, user_id, account_id, date, description, user_description,
	amount, status, source, category_id, bank_category, bank_provider, bank_reference,
	hash, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var amount string
	var categoryID sql.NullInt64
	var deletedAt sql.NullTime

	err := row.Scan(&txn.ID, &txn.UserID, &txn.AccountID, &txn.Date, &txn.Description,
		&txn.UserDescription, &amount, &txn.Status, &txn.Source, &categoryID,
		&txn.BankCategory, &txn.BankProvider, &txn.BankReference, &txn.Hash,
		&txn.CreatedAt, &txn.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	txn.Amount, err = decFromDB(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for transaction %s: %w", txn.ID, err)
	}
	if categoryID.Valid {
		id := int(categoryID.Int64)
		txn.CategoryID = &id
	}
	txn.DeletedAt = nullTimeFromDB(deletedAt)

	return &txn, nil
}

// SaveTransactions inserts a batch of transactions, skipping any whose hash
// already exists. The batch is saved in one transaction.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO transactions
		(id, user_id, account_id, date, description, user_description, amount,
		 status, source, category_id, bank_category, bank_provider, bank_reference, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := &transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if _, err := stmt.ExecContext(ctx, txn.ID, txn.UserID, txn.AccountID, txn.Date,
			txn.Description, txn.UserDescription, decToDB(txn.Amount), txn.Status,
			txn.Source, nullIntToDB(txn.CategoryID), txn.BankCategory, txn.BankProvider,
			txn.BankReference, txn.Hash); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// GetTransactionByID fetches one transaction, including soft-deleted rows.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, wrapNotFound(err, "transaction "+id)
	}
	return txn, nil
}

// GetTransactions returns the user's live transactions matching the filter,
// newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, userID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = ? AND deleted_at IS NULL`
	args := []any{userID}

	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	if filter.CategoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *filter.CategoryID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.StartDate != nil {
		query += ` AND date >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND date <= ?`
		args = append(args, *filter.EndDate)
	}
	if filter.Search != "" {
		query += ` AND (description LIKE ? OR user_description LIKE ?)`
		like := "%" + filter.Search + "%"
		args = append(args, like, like)
	}

	query += ` ORDER BY date DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	return s.queryTransactions(ctx, query, args...)
}

// UpdateTransaction persists all mutable fields of a transaction.
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: txn", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE transactions SET
		date = ?, description = ?, user_description = ?, amount = ?, status = ?,
		category_id = ?, bank_category = ?, bank_provider = ?, bank_reference = ?,
		updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		txn.Date, txn.Description, txn.UserDescription, decToDB(txn.Amount), txn.Status,
		nullIntToDB(txn.CategoryID), txn.BankCategory, txn.BankProvider, txn.BankReference,
		txn.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return requireRow(result, "transaction "+txn.ID)
}

// SoftDeleteTransaction marks a transaction deleted without removing the row.
func (s *SQLiteStorage) SoftDeleteTransaction(ctx context.Context, id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete transaction: %w", err)
	}
	return requireRow(result, "transaction "+id)
}

// GetUncategorizedTransactions returns the user's live transactions with no
// category, oldest first so backlogs drain in order.
func (s *SQLiteStorage) GetUncategorizedTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND category_id IS NULL AND deleted_at IS NULL
		AND status != 'CANCELLED'
		ORDER BY date, id`, userID)
}

// GetCategorizedTransactions returns up to limit categorized transactions,
// newest first. Used as ML training history.
func (s *SQLiteStorage) GetCategorizedTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND category_id IS NOT NULL AND deleted_at IS NULL
		ORDER BY date DESC LIMIT ?`, userID, limit)
}

// GetCategorizedTransactionIDs reports which of the given transactions
// already carry a category.
func (s *SQLiteStorage) GetCategorizedTransactionIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM transactions
		WHERE id IN (`+placeholders+`) AND category_id IS NOT NULL`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categorized ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}

// ApplyCategory assigns a category to a transaction.
func (s *SQLiteStorage) ApplyCategory(ctx context.Context, transactionID string, categoryID int) error {
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		categoryID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to apply category: %w", err)
	}
	return requireRow(result, "transaction "+transactionID)
}

// GetTransactionsByHash reports which hashes already exist for an account.
// Used by bank sync to skip duplicate imports.
func (s *SQLiteStorage) GetTransactionsByHash(ctx context.Context, accountID string, hashes []string) (map[string]bool, error) {
	result := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(hashes)-1) + "?"
	args := make([]any, 0, len(hashes)+1)
	args = append(args, accountID)
	for _, h := range hashes {
		args = append(args, h)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM transactions
		WHERE account_id = ? AND hash IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		result[hash] = true
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// requireRow converts a zero-rows-affected update into ErrNotFound.
func requireRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return wrapNotFound(sql.ErrNoRows, what)
	}
	return nil
}
