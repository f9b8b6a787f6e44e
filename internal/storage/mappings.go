package storage

import (
	"context"
	"fmt"

	"github.com/digaomatias/mymascada/internal/model"
)

const mappingColumns = `id, user_id, provider, bank_category, normalized_name,
	category_id, confidence, is_excluded, application_count, override_count,
	created_at, updated_at`

func scanMapping(row rowScanner) (*model.BankCategoryMapping, error) {
	var m model.BankCategoryMapping
	err := row.Scan(&m.ID, &m.UserID, &m.Provider, &m.BankCategory, &m.NormalizedName,
		&m.CategoryID, &m.Confidence, &m.IsExcluded, &m.ApplicationCount,
		&m.OverrideCount, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMappingByNormalizedName looks up the mapping keyed by the normalized
// provider category string.
func (s *SQLiteStorage) GetMappingByNormalizedName(ctx context.Context, userID, provider, normalized string) (*model.BankCategoryMapping, error) {
	if err := validateString(normalized, "normalized"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM bank_category_mappings
		WHERE user_id = ? AND provider = ? AND normalized_name = ?`,
		userID, provider, normalized)
	m, err := scanMapping(row)
	if err != nil {
		return nil, wrapNotFound(err, "mapping "+normalized)
	}
	return m, nil
}

// GetMappings lists all of the user's mappings, most applied first.
func (s *SQLiteStorage) GetMappings(ctx context.Context, userID string) ([]model.BankCategoryMapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mappingColumns+` FROM bank_category_mappings
		WHERE user_id = ? ORDER BY application_count DESC, normalized_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.BankCategoryMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// CreateMapping inserts a mapping and backfills its generated ID. The
// normalized name is derived from the bank category if unset.
func (s *SQLiteStorage) CreateMapping(ctx context.Context, mapping *model.BankCategoryMapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if mapping.NormalizedName == "" {
		mapping.NormalizedName = model.NormalizeBankCategory(mapping.BankCategory)
	}
	if err := validateString(mapping.NormalizedName, "mapping.NormalizedName"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO bank_category_mappings
		(user_id, provider, bank_category, normalized_name, category_id, confidence,
		 is_excluded, application_count, override_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mapping.UserID, mapping.Provider, mapping.BankCategory, mapping.NormalizedName,
		mapping.CategoryID, mapping.Confidence, mapping.IsExcluded,
		mapping.ApplicationCount, mapping.OverrideCount)
	if err != nil {
		return fmt.Errorf("failed to create mapping: %w", wrapDuplicate(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	mapping.ID = id
	return nil
}

// UpdateMapping persists a mapping's target, confidence, exclusion, and
// usage counters.
func (s *SQLiteStorage) UpdateMapping(ctx context.Context, mapping *model.BankCategoryMapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE bank_category_mappings SET
		category_id = ?, confidence = ?, is_excluded = ?, application_count = ?,
		override_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		mapping.CategoryID, mapping.Confidence, mapping.IsExcluded,
		mapping.ApplicationCount, mapping.OverrideCount, mapping.ID)
	if err != nil {
		return fmt.Errorf("failed to update mapping: %w", err)
	}
	return requireRow(result, fmt.Sprintf("mapping %d", mapping.ID))
}
