package categorize

import (
	"context"
	"log/slog"

	"github.com/digaomatias/mymascada/internal/mapping"
	"github.com/digaomatias/mymascada/internal/model"
)

// Resolver resolves one bank category string to a user category.
type Resolver interface {
	Resolve(ctx context.Context, userID, provider, bankCategory string) (*mapping.Resolution, error)
}

// BankCategoryHandler resolves transactions carrying a provider-supplied
// category string through the stored mapping table. Excluded mappings skip
// the transaction entirely: no auto-apply, no candidate, regardless of
// confidence.
type BankCategoryHandler struct {
	resolver Resolver
	logger   *slog.Logger
	gate     Gate
}

// NewBankCategoryHandler creates the bank-category stage.
func NewBankCategoryHandler(resolver Resolver, gate Gate, logger *slog.Logger) *BankCategoryHandler {
	return &BankCategoryHandler{resolver: resolver, gate: gate, logger: logger}
}

// Name identifies the handler in logs and metrics.
func (h *BankCategoryHandler) Name() string { return "bank_category" }

// Handle resolves each transaction's bank category. Transactions without a
// bank category, with an excluded mapping, or with an unresolvable category
// are forwarded unresolved.
func (h *BankCategoryHandler) Handle(ctx context.Context, userID string, txns []model.Transaction) (Result, error) {
	var proposals []Categorization

	for _, txn := range txns {
		if txn.BankCategory == "" {
			continue
		}

		resolution, err := h.resolver.Resolve(ctx, userID, txn.BankProvider, txn.BankCategory)
		if err != nil {
			// A single failed resolution should not fail the whole stage.
			h.logger.Warn("bank category resolution failed",
				"transaction_id", txn.ID,
				"bank_category", txn.BankCategory,
				"error", err)
			continue
		}
		if resolution == nil {
			continue
		}
		if resolution.Excluded {
			h.logger.Debug("skipping excluded mapping",
				"transaction_id", txn.ID,
				"bank_category", txn.BankCategory)
			continue
		}

		proposals = append(proposals, Categorization{
			TransactionID: txn.ID,
			CategoryID:    resolution.CategoryID,
			Method:        model.MethodBankCategory,
			Confidence:    resolution.Confidence,
			Reason:        "bank category " + txn.BankCategory,
			Mapping:       resolution.Mapping,
		})
	}

	applied, candidates, consumed := split(proposals, h.gate)
	return Result{
		AutoApplied: applied,
		Candidates:  candidates,
		Remaining:   remaining(txns, consumed),
	}, nil
}
