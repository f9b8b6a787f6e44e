package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digaomatias/mymascada/internal/model"
)

const ruleColumns = `id, user_id, name, pattern, match_type, case_sensitive, priority,
	amount_min, amount_max, account_type, condition_logic, category_id, confidence,
	is_active, created_at, updated_at, deleted_at`

func scanRule(row rowScanner) (*model.CategorizationRule, error) {
	var rule model.CategorizationRule
	var amountMin, amountMax, accountType sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(&rule.ID, &rule.UserID, &rule.Name, &rule.Pattern, &rule.MatchType,
		&rule.CaseSensitive, &rule.Priority, &amountMin, &amountMax, &accountType,
		&rule.ConditionLogic, &rule.CategoryID, &rule.Confidence, &rule.IsActive,
		&rule.CreatedAt, &rule.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	rule.AmountMin, err = nullDecFromDB(amountMin)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_min for rule %d: %w", rule.ID, err)
	}
	rule.AmountMax, err = nullDecFromDB(amountMax)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_max for rule %d: %w", rule.ID, err)
	}
	if accountType.Valid {
		at := model.AccountType(accountType.String)
		rule.AccountType = &at
	}
	rule.DeletedAt = nullTimeFromDB(deletedAt)

	return &rule, nil
}

// CreateRule inserts a rule with its conditions and backfills generated IDs.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.CategorizationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateString(rule.Name, "rule.Name"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `INSERT INTO categorization_rules
		(user_id, name, pattern, match_type, case_sensitive, priority, amount_min,
		 amount_max, account_type, condition_logic, category_id, confidence, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.UserID, rule.Name, rule.Pattern, rule.MatchType, rule.CaseSensitive,
		rule.Priority, nullDecToDB(rule.AmountMin), nullDecToDB(rule.AmountMax),
		accountTypeToDB(rule.AccountType), rule.ConditionLogic, rule.CategoryID,
		rule.Confidence, rule.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rule.ID = id

	if err := insertConditions(ctx, tx, rule.ID, rule.Conditions); err != nil {
		return err
	}
	for i := range rule.Conditions {
		rule.Conditions[i].RuleID = rule.ID
	}

	return tx.Commit()
}

// GetRuleByID fetches one rule with its conditions, including soft-deleted
// rules.
func (s *SQLiteStorage) GetRuleByID(ctx context.Context, id int64) (*model.CategorizationRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM categorization_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("rule %d", id))
	}

	conditions, err := s.loadConditions(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	rule.Conditions = conditions[id]
	return rule, nil
}

// GetActiveRules returns the user's active rules, their conditions attached,
// ordered by priority ascending.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, userID string) ([]model.CategorizationRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM categorization_rules
		WHERE user_id = ? AND is_active = 1 AND deleted_at IS NULL
		ORDER BY priority, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategorizationRule
	var ids []int64
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
		ids = append(ids, rule.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conditions, err := s.loadConditions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Conditions = conditions[rules[i].ID]
	}
	return rules, nil
}

// UpdateRule persists a rule's fields and replaces its conditions.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.CategorizationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `UPDATE categorization_rules SET
		name = ?, pattern = ?, match_type = ?, case_sensitive = ?, priority = ?,
		amount_min = ?, amount_max = ?, account_type = ?, condition_logic = ?,
		category_id = ?, confidence = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL`,
		rule.Name, rule.Pattern, rule.MatchType, rule.CaseSensitive, rule.Priority,
		nullDecToDB(rule.AmountMin), nullDecToDB(rule.AmountMax),
		accountTypeToDB(rule.AccountType), rule.ConditionLogic, rule.CategoryID,
		rule.Confidence, rule.IsActive, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if err := requireRow(result, fmt.Sprintf("rule %d", rule.ID)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_conditions WHERE rule_id = ?`, rule.ID); err != nil {
		return fmt.Errorf("failed to clear rule conditions: %w", err)
	}
	if err := insertConditions(ctx, tx, rule.ID, rule.Conditions); err != nil {
		return err
	}

	return tx.Commit()
}

// SoftDeleteRule marks a rule deleted so it stops matching but keeps its
// definition for audit.
func (s *SQLiteStorage) SoftDeleteRule(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE categorization_rules SET deleted_at = ?, is_active = 0
		 WHERE id = ? AND deleted_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete rule: %w", err)
	}
	return requireRow(result, fmt.Sprintf("rule %d", id))
}

// ReorderRules rewrites the priorities of the user's rules to match the
// given order. Rules not listed keep their priority.
func (s *SQLiteStorage) ReorderRules(ctx context.Context, userID string, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return fmt.Errorf("%w: orderedIDs", ErrEmptySlice)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, id := range orderedIDs {
		result, err := tx.ExecContext(ctx,
			`UPDATE categorization_rules SET priority = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
			(i+1)*10, id, userID)
		if err != nil {
			return fmt.Errorf("failed to reorder rule %d: %w", id, err)
		}
		if err := requireRow(result, fmt.Sprintf("rule %d", id)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertConditions(ctx context.Context, tx *sql.Tx, ruleID int64, conditions []model.RuleCondition) error {
	for i := range conditions {
		c := &conditions[i]
		result, err := tx.ExecContext(ctx,
			`INSERT INTO rule_conditions (rule_id, field, operator, value) VALUES (?, ?, ?, ?)`,
			ruleID, c.Field, c.Operator, c.Value)
		if err != nil {
			return fmt.Errorf("failed to insert rule condition: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return nil
}

func (s *SQLiteStorage) loadConditions(ctx context.Context, ruleIDs []int64) (map[int64][]model.RuleCondition, error) {
	result := make(map[int64][]model.RuleCondition, len(ruleIDs))
	if len(ruleIDs) == 0 {
		return result, nil
	}

	query := `SELECT id, rule_id, field, operator, value FROM rule_conditions WHERE rule_id IN (`
	args := make([]any, len(ruleIDs))
	for i, id := range ruleIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += `) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule conditions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c model.RuleCondition
		if err := rows.Scan(&c.ID, &c.RuleID, &c.Field, &c.Operator, &c.Value); err != nil {
			return nil, err
		}
		result[c.RuleID] = append(result[c.RuleID], c)
	}
	return result, rows.Err()
}

func accountTypeToDB(at *model.AccountType) any {
	if at == nil {
		return nil
	}
	return string(*at)
}
