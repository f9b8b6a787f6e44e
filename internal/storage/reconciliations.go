package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digaomatias/mymascada/internal/model"
)

func scanReconciliation(row rowScanner) (*model.Reconciliation, error) {
	var rec model.Reconciliation
	var finalizedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.UserID, &rec.AccountID, &rec.PeriodStart,
		&rec.PeriodEnd, &rec.Status, &finalizedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.FinalizedAt = nullTimeFromDB(finalizedAt)
	return &rec, nil
}

func scanReconciliationItem(row rowScanner) (*model.ReconciliationItem, error) {
	var item model.ReconciliationItem
	var transactionID sql.NullString
	var bankDate sql.NullTime
	var bankAmount string

	err := row.Scan(&item.ID, &item.ReconciliationID, &item.Type, &item.Method,
		&item.Confidence, &transactionID, &item.BankReference, &item.BankDescription,
		&item.BankCategory, &bankDate, &bankAmount, &item.CreatedAt)
	if err != nil {
		return nil, err
	}

	if transactionID.Valid {
		item.TransactionID = &transactionID.String
	}
	if bankDate.Valid {
		item.BankDate = bankDate.Time
	}
	item.BankAmount, err = decFromDB(bankAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid bank_amount for item %d: %w", item.ID, err)
	}

	return &item, nil
}

// CreateReconciliation inserts an open reconciliation and backfills its ID.
func (s *SQLiteStorage) CreateReconciliation(ctx context.Context, rec *model.Reconciliation) error {
	if rec == nil {
		return fmt.Errorf("%w: rec", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO reconciliations
		(user_id, account_id, period_start, period_end, status)
		VALUES (?, ?, ?, ?, ?)`,
		rec.UserID, rec.AccountID, rec.PeriodStart, rec.PeriodEnd, rec.Status)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// GetReconciliationByID fetches one reconciliation.
func (s *SQLiteStorage) GetReconciliationByID(ctx context.Context, id int64) (*model.Reconciliation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, account_id, period_start,
		period_end, status, finalized_at, created_at FROM reconciliations WHERE id = ?`, id)
	rec, err := scanReconciliation(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("reconciliation %d", id))
	}
	return rec, nil
}

// GetReconciliations lists the user's reconciliations, newest period first.
func (s *SQLiteStorage) GetReconciliations(ctx context.Context, userID string) ([]model.Reconciliation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, account_id, period_start,
		period_end, status, finalized_at, created_at FROM reconciliations
		WHERE user_id = ? ORDER BY period_end DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []model.Reconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// UpdateReconciliation persists status and finalization timestamp.
func (s *SQLiteStorage) UpdateReconciliation(ctx context.Context, rec *model.Reconciliation) error {
	if rec == nil {
		return fmt.Errorf("%w: rec", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE reconciliations SET
		status = ?, finalized_at = ? WHERE id = ?`,
		rec.Status, nullTimeToDB(rec.FinalizedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation: %w", err)
	}
	return requireRow(result, fmt.Sprintf("reconciliation %d", rec.ID))
}

// CreateReconciliationItems inserts a batch of items in one transaction and
// backfills generated IDs.
func (s *SQLiteStorage) CreateReconciliationItems(ctx context.Context, items []model.ReconciliationItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reconciliation_items
		(reconciliation_id, type, method, confidence, transaction_id, bank_reference,
		 bank_description, bank_category, bank_date, bank_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range items {
		item := &items[i]
		result, err := stmt.ExecContext(ctx, item.ReconciliationID, item.Type,
			item.Method, item.Confidence, nullStrToDB(item.TransactionID),
			item.BankReference, item.BankDescription, item.BankCategory,
			bankDateToDB(item), decToDB(item.BankAmount))
		if err != nil {
			return fmt.Errorf("failed to insert reconciliation item: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		item.ID = id
	}

	return tx.Commit()
}

// GetReconciliationItems lists a reconciliation's items: matched first, then
// unmatched, by confidence descending within each group.
func (s *SQLiteStorage) GetReconciliationItems(ctx context.Context, reconciliationID int64) ([]model.ReconciliationItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, reconciliation_id, type, method,
		confidence, transaction_id, bank_reference, bank_description, bank_category,
		bank_date, bank_amount, created_at FROM reconciliation_items
		WHERE reconciliation_id = ?
		ORDER BY CASE type WHEN 'MATCHED' THEN 0 ELSE 1 END, confidence DESC, id`,
		reconciliationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ReconciliationItem
	for rows.Next() {
		item, err := scanReconciliationItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetReconciliationItemByID fetches one item.
func (s *SQLiteStorage) GetReconciliationItemByID(ctx context.Context, id int64) (*model.ReconciliationItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, reconciliation_id, type, method,
		confidence, transaction_id, bank_reference, bank_description, bank_category,
		bank_date, bank_amount, created_at FROM reconciliation_items WHERE id = ?`, id)
	item, err := scanReconciliationItem(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("reconciliation item %d", id))
	}
	return item, nil
}

// UpdateReconciliationItem persists an item's match state.
func (s *SQLiteStorage) UpdateReconciliationItem(ctx context.Context, item *model.ReconciliationItem) error {
	if item == nil {
		return fmt.Errorf("%w: item", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE reconciliation_items SET
		type = ?, method = ?, confidence = ?, transaction_id = ?, bank_reference = ?,
		bank_description = ?, bank_category = ?, bank_date = ?, bank_amount = ?
		WHERE id = ?`,
		item.Type, item.Method, item.Confidence, nullStrToDB(item.TransactionID),
		item.BankReference, item.BankDescription, item.BankCategory,
		bankDateToDB(item), decToDB(item.BankAmount), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation item: %w", err)
	}
	return requireRow(result, fmt.Sprintf("reconciliation item %d", item.ID))
}

// DeleteReconciliationItem removes an item.
func (s *SQLiteStorage) DeleteReconciliationItem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reconciliation_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reconciliation item: %w", err)
	}
	return requireRow(result, fmt.Sprintf("reconciliation item %d", id))
}

func bankDateToDB(item *model.ReconciliationItem) any {
	if item.BankDate.IsZero() {
		return nil
	}
	return item.BankDate
}
