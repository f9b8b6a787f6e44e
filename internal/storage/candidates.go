package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digaomatias/mymascada/internal/model"
)

const candidateColumns = `id, transaction_id, user_id, category_id, method, status,
	confidence, reason, created_at, resolved_at`

func scanCandidate(row rowScanner) (*model.CategorizationCandidate, error) {
	var c model.CategorizationCandidate
	var resolvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.TransactionID, &c.UserID, &c.CategoryID, &c.Method,
		&c.Status, &c.Confidence, &c.Reason, &c.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	c.ResolvedAt = nullTimeFromDB(resolvedAt)
	return &c, nil
}

// CreateCandidate inserts a pending candidate and backfills its generated ID.
func (s *SQLiteStorage) CreateCandidate(ctx context.Context, candidate *model.CategorizationCandidate) error {
	if candidate == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}
	if err := validateString(candidate.TransactionID, "candidate.TransactionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO categorization_candidates
		(transaction_id, user_id, category_id, method, status, confidence, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		candidate.TransactionID, candidate.UserID, candidate.CategoryID,
		candidate.Method, candidate.Status, candidate.Confidence, candidate.Reason)
	if err != nil {
		return fmt.Errorf("failed to create candidate: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	candidate.ID = id
	return nil
}

// GetCandidateByID fetches one candidate.
func (s *SQLiteStorage) GetCandidateByID(ctx context.Context, id int64) (*model.CategorizationCandidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM categorization_candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("candidate %d", id))
	}
	return c, nil
}

// GetPendingCandidates lists the user's unresolved candidates, oldest first.
func (s *SQLiteStorage) GetPendingCandidates(ctx context.Context, userID string) ([]model.CategorizationCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+candidateColumns+`
		FROM categorization_candidates
		WHERE user_id = ? AND status = ? ORDER BY created_at, id`,
		userID, model.CandidatePending)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []model.CategorizationCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

// HasPendingCandidate reports whether an identical pending proposal already
// exists, so pipeline reruns don't pile up duplicates.
func (s *SQLiteStorage) HasPendingCandidate(ctx context.Context, transactionID string, categoryID int, method model.CategorizationMethod) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM categorization_candidates
		WHERE transaction_id = ? AND category_id = ? AND method = ? AND status = ?`,
		transactionID, categoryID, method, model.CandidatePending).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check pending candidate: %w", err)
	}
	return n > 0, nil
}

// UpdateCandidate persists a candidate's status, confidence, and resolution
// timestamp.
func (s *SQLiteStorage) UpdateCandidate(ctx context.Context, candidate *model.CategorizationCandidate) error {
	if candidate == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE categorization_candidates SET
		status = ?, confidence = ?, reason = ?, resolved_at = ? WHERE id = ?`,
		candidate.Status, candidate.Confidence, candidate.Reason,
		nullTimeToDB(candidate.ResolvedAt), candidate.ID)
	if err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}
	return requireRow(result, fmt.Sprintf("candidate %d", candidate.ID))
}
