package categorize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// costPerLLMCall approximates the provider cost avoided when a transaction is
// resolved before reaching the LLM stage. A rough planning number, not a
// billing figure.
const costPerLLMCall = 0.005

// MappingRecorder bumps mapping usage counters: applications after
// auto-applies, overrides when the user rejects or replaces a mapping's
// suggestion.
type MappingRecorder interface {
	RecordApplication(ctx context.Context, mapping *model.BankCategoryMapping) error
	RecordOverride(ctx context.Context, mapping *model.BankCategoryMapping) error
}

// Summary reports the outcome of one chain run.
type Summary struct {
	PerHandler       map[string]HandlerStats
	Processed        int
	AutoApplied      int
	Candidates       int
	Unresolved       int
	EstimatedSavings float64
}

// HandlerStats counts one handler's contribution.
type HandlerStats struct {
	AutoApplied int
	Candidates  int
	Failed      bool
}

// Chain runs the handler stages in their fixed order: rule, bank category,
// ML, LLM. Cheap stages run first so the expensive ones see as few
// transactions as possible.
type Chain struct {
	storage  service.Storage
	recorder MappingRecorder
	logger   *slog.Logger
	handlers []Handler
}

// NewChain creates a chain over the given handlers. Order is significant.
func NewChain(storage service.Storage, recorder MappingRecorder, logger *slog.Logger, handlers ...Handler) *Chain {
	return &Chain{
		storage:  storage,
		recorder: recorder,
		logger:   logger,
		handlers: handlers,
	}
}

// Run categorizes the given transactions. Already-categorized transactions
// are filtered out first. A handler failure is logged and its input forwarded
// to the next stage; one broken stage must not block the rest of the chain.
func (c *Chain) Run(ctx context.Context, userID string, txns []model.Transaction) (Summary, error) {
	summary := Summary{PerHandler: make(map[string]HandlerStats, len(c.handlers))}

	unresolved, err := c.filterCategorized(ctx, txns)
	if err != nil {
		return summary, err
	}
	summary.Processed = len(unresolved)
	if len(unresolved) == 0 {
		return summary, nil
	}

	var applied, candidates []Categorization

	for _, handler := range c.handlers {
		if len(unresolved) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := handler.Handle(ctx, userID, unresolved)
		if err != nil {
			c.logger.Error("categorization handler failed",
				"handler", handler.Name(),
				"transactions", len(unresolved),
				"error", err)
			summary.PerHandler[handler.Name()] = HandlerStats{Failed: true}
			continue // All input stays unresolved for the next stage
		}

		applied = append(applied, result.AutoApplied...)
		candidates = append(candidates, result.Candidates...)
		unresolved = result.Remaining

		summary.PerHandler[handler.Name()] = HandlerStats{
			AutoApplied: len(result.AutoApplied),
			Candidates:  len(result.Candidates),
		}

		c.logger.Info("handler finished",
			"handler", handler.Name(),
			"auto_applied", len(result.AutoApplied),
			"candidates", len(result.Candidates),
			"remaining", len(unresolved))
	}

	if err := c.persist(ctx, userID, applied, candidates, &summary); err != nil {
		return summary, err
	}

	summary.Unresolved = len(unresolved)
	for _, p := range applied {
		if p.Method == model.MethodRule || p.Method == model.MethodBankCategory {
			summary.EstimatedSavings += costPerLLMCall
		}
	}

	return summary, nil
}

// filterCategorized drops transactions that already carry a category, both
// from the in-memory batch and against the store. Keeps recategorization
// jobs idempotent under at-least-once delivery.
func (c *Chain) filterCategorized(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	ids := make([]string, 0, len(txns))
	for _, txn := range txns {
		if !txn.IsCategorized() {
			ids = append(ids, txn.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	categorized, err := c.storage.GetCategorizedTransactionIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check categorized transactions: %w", err)
	}

	var out []model.Transaction
	for _, txn := range txns {
		if txn.IsCategorized() || categorized[txn.ID] {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (c *Chain) persist(ctx context.Context, userID string, applied, candidates []Categorization, summary *Summary) error {
	for _, p := range applied {
		if err := c.storage.ApplyCategory(ctx, p.TransactionID, p.CategoryID); err != nil {
			return fmt.Errorf("failed to apply category to %s: %w", p.TransactionID, err)
		}
		summary.AutoApplied++

		if p.Mapping != nil && c.recorder != nil {
			if err := c.recorder.RecordApplication(ctx, p.Mapping); err != nil {
				c.logger.Warn("failed to record mapping application",
					"mapping_id", p.Mapping.ID, "error", err)
			}
		}
	}

	for _, p := range candidates {
		exists, err := c.storage.HasPendingCandidate(ctx, p.TransactionID, p.CategoryID, p.Method)
		if err != nil {
			return fmt.Errorf("failed to check pending candidates: %w", err)
		}
		if exists {
			continue
		}
		candidate := &model.CategorizationCandidate{
			TransactionID: p.TransactionID,
			UserID:        userID,
			CategoryID:    p.CategoryID,
			Method:        p.Method,
			Status:        model.CandidatePending,
			Confidence:    p.Confidence,
			Reason:        p.Reason,
		}
		if err := c.storage.CreateCandidate(ctx, candidate); err != nil {
			return fmt.Errorf("failed to create candidate for %s: %w", p.TransactionID, err)
		}
		summary.Candidates++
	}

	return nil
}
