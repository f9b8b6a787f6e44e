// Package mapping resolves provider-supplied bank category strings to user
// categories.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/llm"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// newMappingConfidence is assigned to AI-created mappings when the provider
// does not report one.
const newMappingConfidence = 0.6

// Suggester proposes a user category for an unmapped bank category string.
type Suggester interface {
	SuggestBankCategoryMapping(ctx context.Context, bankCategory, provider string, categories []model.Category) (llm.Suggestion, error)
}

// Resolution is the outcome of resolving one bank category string.
// Excluded resolutions must produce neither auto-applies nor candidates,
// regardless of confidence.
type Resolution struct {
	Mapping    *model.BankCategoryMapping
	CategoryID int
	Confidence float64
	ExactMatch bool
	Excluded   bool
	Created    bool
}

// Mapper resolves and creates bank category mappings.
type Mapper struct {
	storage   service.Storage
	suggester Suggester
	logger    *slog.Logger
}

// NewMapper creates a bank-category mapper.
func NewMapper(storage service.Storage, suggester Suggester, logger *slog.Logger) *Mapper {
	return &Mapper{
		storage:   storage,
		suggester: suggester,
		logger:    logger,
	}
}

// Resolve looks up a mapping for (bank category, provider, user), falling
// back to a fuzzy name match and then to AI-assisted creation. Returns nil
// when the bank category normalizes to an empty string.
func (m *Mapper) Resolve(ctx context.Context, userID, provider, bankCategory string) (*Resolution, error) {
	normalized := model.NormalizeBankCategory(bankCategory)
	if normalized == "" {
		return nil, nil
	}

	existing, err := m.storage.GetMappingByNormalizedName(ctx, userID, provider, normalized)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("mapping lookup failed: %w", err)
	}
	if existing != nil {
		return &Resolution{
			Mapping:    existing,
			CategoryID: existing.CategoryID,
			Confidence: existing.Confidence,
			ExactMatch: true,
			Excluded:   existing.IsExcluded,
		}, nil
	}

	if fuzzy, ferr := m.fuzzyLookup(ctx, userID, provider, normalized); ferr != nil {
		return nil, ferr
	} else if fuzzy != nil {
		return fuzzy, nil
	}

	return m.createAssisted(ctx, userID, provider, bankCategory, normalized)
}

// RecordApplication bumps the application counter after a mapping is used to
// categorize a transaction.
func (m *Mapper) RecordApplication(ctx context.Context, mapping *model.BankCategoryMapping) error {
	mapping.ApplicationCount++
	return m.storage.UpdateMapping(ctx, mapping)
}

// RecordOverride bumps the override counter when the user picks a different
// category than the mapping suggested.
func (m *Mapper) RecordOverride(ctx context.Context, mapping *model.BankCategoryMapping) error {
	mapping.OverrideCount++
	return m.storage.UpdateMapping(ctx, mapping)
}

// fuzzyLookup scans the user's existing mappings for a near-identical
// normalized name. Distance is capped at a quarter of the name length so
// short names require exact matches.
func (m *Mapper) fuzzyLookup(ctx context.Context, userID, provider, normalized string) (*Resolution, error) {
	mappings, err := m.storage.GetMappings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mapping scan failed: %w", err)
	}

	maxDistance := len(normalized) / 4
	if maxDistance > 2 {
		maxDistance = 2
	}
	if maxDistance == 0 {
		return nil, nil
	}

	for i := range mappings {
		candidate := &mappings[i]
		if candidate.Provider != provider {
			continue
		}
		if levenshtein.ComputeDistance(candidate.NormalizedName, normalized) <= maxDistance {
			m.logger.Debug("fuzzy mapping match",
				"normalized", normalized,
				"matched", candidate.NormalizedName)
			return &Resolution{
				Mapping:    candidate,
				CategoryID: candidate.CategoryID,
				Confidence: candidate.Confidence * 0.9,
				Excluded:   candidate.IsExcluded,
			}, nil
		}
	}

	return nil, nil
}

// createAssisted asks the LLM boundary for a category and persists a new
// mapping with its confidence.
func (m *Mapper) createAssisted(ctx context.Context, userID, provider, bankCategory, normalized string) (*Resolution, error) {
	categories, err := m.storage.GetCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, nil
	}

	suggestion, err := m.suggester.SuggestBankCategoryMapping(ctx, bankCategory, provider, categories)
	if err != nil {
		return nil, fmt.Errorf("mapping suggestion failed: %w", err)
	}

	var category *model.Category
	for i := range categories {
		if strings.EqualFold(categories[i].Name, suggestion.Category) {
			category = &categories[i]
			break
		}
	}
	if category == nil {
		m.logger.Warn("suggested category does not exist, skipping mapping",
			"bank_category", bankCategory,
			"suggested", suggestion.Category)
		return nil, nil
	}

	confidence := suggestion.Confidence
	if confidence == 0 {
		confidence = newMappingConfidence
	}

	created := &model.BankCategoryMapping{
		UserID:         userID,
		Provider:       provider,
		BankCategory:   bankCategory,
		NormalizedName: normalized,
		CategoryID:     category.ID,
		Confidence:     confidence,
	}
	if err := m.storage.CreateMapping(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to persist mapping: %w", err)
	}

	m.logger.Info("created AI-assisted bank category mapping",
		"bank_category", bankCategory,
		"category", category.Name,
		"confidence", confidence)

	return &Resolution{
		Mapping:    created,
		CategoryID: category.ID,
		Confidence: confidence,
		Created:    true,
	}, nil
}
