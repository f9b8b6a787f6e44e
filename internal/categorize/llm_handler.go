package categorize

import (
	"context"
	"fmt"
	"strings"

	"github.com/digaomatias/mymascada/internal/llm"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// TransactionCategorizer is the LLM boundary consumed by the chain's final
// stage.
type TransactionCategorizer interface {
	CategorizeTransactions(ctx context.Context, txns []model.Transaction, categories []model.Category) ([]llm.Suggestion, error)
}

// LLMHandler sends the transactions no cheaper stage could resolve to the
// LLM provider. It is the last and most expensive stage of the chain.
type LLMHandler struct {
	storage     service.Storage
	categorizer TransactionCategorizer
	gate        Gate
}

// NewLLMHandler creates the LLM stage.
func NewLLMHandler(storage service.Storage, categorizer TransactionCategorizer, gate Gate) *LLMHandler {
	return &LLMHandler{storage: storage, categorizer: categorizer, gate: gate}
}

// Name identifies the handler in logs and metrics.
func (h *LLMHandler) Name() string { return "llm" }

// Handle asks the provider to categorize the batch against the user's
// categories. Suggestions naming unknown categories were already dropped by
// the categorizer.
func (h *LLMHandler) Handle(ctx context.Context, userID string, txns []model.Transaction) (Result, error) {
	if len(txns) == 0 {
		return Result{}, nil
	}

	categories, err := h.storage.GetCategories(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load categories: %w", err)
	}
	if len(categories) == 0 {
		return Result{Remaining: txns}, nil
	}

	suggestions, err := h.categorizer.CategorizeTransactions(ctx, txns, categories)
	if err != nil {
		return Result{}, fmt.Errorf("llm categorization failed: %w", err)
	}

	categoryIDs := make(map[string]int, len(categories))
	for _, cat := range categories {
		categoryIDs[strings.ToLower(cat.Name)] = cat.ID
	}

	var proposals []Categorization
	for _, s := range suggestions {
		categoryID, ok := categoryIDs[strings.ToLower(s.Category)]
		if !ok {
			continue
		}
		proposals = append(proposals, Categorization{
			TransactionID: s.TransactionID,
			CategoryID:    categoryID,
			Method:        model.MethodLLM,
			Confidence:    s.Confidence,
			Reason:        s.Reason,
		})
	}

	applied, candidates, consumed := split(proposals, h.gate)
	return Result{
		AutoApplied: applied,
		Candidates:  candidates,
		Remaining:   remaining(txns, consumed),
	}, nil
}
