package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digaomatias/mymascada/internal/model"
)

// CreateBudget inserts a budget and backfills its generated ID. One budget
// per category per month is enforced by a unique index.
func (s *SQLiteStorage) CreateBudget(ctx context.Context, budget *model.Budget) error {
	if budget == nil {
		return fmt.Errorf("%w: budget", ErrNilParameter)
	}
	if err := validateString(budget.Month, "budget.Month"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO budgets
		(user_id, category_id, month, amount) VALUES (?, ?, ?, ?)`,
		budget.UserID, budget.CategoryID, budget.Month, decToDB(budget.Amount))
	if err != nil {
		return fmt.Errorf("failed to create budget: %w", wrapDuplicate(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	budget.ID = id
	return nil
}

// GetBudgets lists the user's budgets for a month, or all months if month is
// empty.
func (s *SQLiteStorage) GetBudgets(ctx context.Context, userID, month string) ([]model.Budget, error) {
	query := `SELECT id, user_id, category_id, month, amount, created_at, updated_at
		FROM budgets WHERE user_id = ?`
	args := []any{userID}
	if month != "" {
		query += ` AND month = ?`
		args = append(args, month)
	}
	query += ` ORDER BY month DESC, category_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var budgets []model.Budget
	for rows.Next() {
		var b model.Budget
		var amount string
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.Month, &amount,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Amount, err = decFromDB(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for budget %d: %w", b.ID, err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// UpdateBudget persists a budget's amount.
func (s *SQLiteStorage) UpdateBudget(ctx context.Context, budget *model.Budget) error {
	if budget == nil {
		return fmt.Errorf("%w: budget", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE budgets SET
		amount = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		decToDB(budget.Amount), budget.ID)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}
	return requireRow(result, fmt.Sprintf("budget %d", budget.ID))
}

// DeleteBudget removes a budget.
func (s *SQLiteStorage) DeleteBudget(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	return requireRow(result, fmt.Sprintf("budget %d", id))
}

// CreateGoal inserts a savings goal and backfills its generated ID.
func (s *SQLiteStorage) CreateGoal(ctx context.Context, goal *model.Goal) error {
	if goal == nil {
		return fmt.Errorf("%w: goal", ErrNilParameter)
	}
	if err := validateString(goal.Name, "goal.Name"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO goals
		(user_id, name, target, saved, deadline, status) VALUES (?, ?, ?, ?, ?, ?)`,
		goal.UserID, goal.Name, decToDB(goal.Target), decToDB(goal.Saved),
		nullTimeToDB(goal.Deadline), goal.Status)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	goal.ID = id
	return nil
}

// GetGoalByID fetches one goal.
func (s *SQLiteStorage) GetGoalByID(ctx context.Context, id int64) (*model.Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, name, target, saved,
		deadline, status, created_at, updated_at FROM goals WHERE id = ?`, id)
	goal, err := scanGoal(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("goal %d", id))
	}
	return goal, nil
}

// GetGoals lists the user's goals, active first.
func (s *SQLiteStorage) GetGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, name, target, saved,
		deadline, status, created_at, updated_at FROM goals
		WHERE user_id = ? ORDER BY CASE status WHEN 'ACTIVE' THEN 0 ELSE 1 END, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var goals []model.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *goal)
	}
	return goals, rows.Err()
}

// UpdateGoal persists a goal's progress and status.
func (s *SQLiteStorage) UpdateGoal(ctx context.Context, goal *model.Goal) error {
	if goal == nil {
		return fmt.Errorf("%w: goal", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE goals SET
		name = ?, target = ?, saved = ?, deadline = ?, status = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		goal.Name, decToDB(goal.Target), decToDB(goal.Saved),
		nullTimeToDB(goal.Deadline), goal.Status, goal.ID)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	return requireRow(result, fmt.Sprintf("goal %d", goal.ID))
}

// DeleteGoal removes a goal.
func (s *SQLiteStorage) DeleteGoal(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	return requireRow(result, fmt.Sprintf("goal %d", id))
}

func scanGoal(row rowScanner) (*model.Goal, error) {
	var goal model.Goal
	var target, saved string
	var deadline sql.NullTime

	err := row.Scan(&goal.ID, &goal.UserID, &goal.Name, &target, &saved, &deadline,
		&goal.Status, &goal.CreatedAt, &goal.UpdatedAt)
	if err != nil {
		return nil, err
	}

	goal.Target, err = decFromDB(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target for goal %d: %w", goal.ID, err)
	}
	goal.Saved, err = decFromDB(saved)
	if err != nil {
		return nil, fmt.Errorf("invalid saved for goal %d: %w", goal.ID, err)
	}
	goal.Deadline = nullTimeFromDB(deadline)

	return &goal, nil
}
