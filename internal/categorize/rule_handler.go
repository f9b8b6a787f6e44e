package categorize

import (
	"context"
	"fmt"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/rules"
	"github.com/digaomatias/mymascada/internal/service"
)

// RuleHandler resolves transactions against the user's categorization rules.
// Rules are free to evaluate, so this is the first stage of the chain.
type RuleHandler struct {
	storage service.Storage
	gate    Gate
}

// NewRuleHandler creates the rule stage.
func NewRuleHandler(storage service.Storage, gate Gate) *RuleHandler {
	return &RuleHandler{storage: storage, gate: gate}
}

// Name identifies the handler in logs and metrics.
func (h *RuleHandler) Name() string { return "rule" }

// Handle matches each transaction against the user's active rules in
// priority order.
func (h *RuleHandler) Handle(ctx context.Context, userID string, txns []model.Transaction) (Result, error) {
	ruleSet, err := h.storage.GetActiveRules(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(ruleSet) == 0 {
		return Result{Remaining: txns}, nil
	}

	accountTypes, err := h.accountTypes(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	matcher := rules.NewMatcher(ruleSet)

	var proposals []Categorization
	for _, txn := range txns {
		rule := matcher.FirstMatch(txn, accountTypes[txn.AccountID])
		if rule == nil {
			continue
		}
		confidence := rule.Confidence
		if confidence == 0 {
			confidence = 1.0 // User-defined rules are trusted by default
		}
		proposals = append(proposals, Categorization{
			TransactionID: txn.ID,
			CategoryID:    rule.CategoryID,
			Method:        model.MethodRule,
			Confidence:    confidence,
			Reason:        fmt.Sprintf("matched rule %q", rule.Name),
		})
	}

	applied, candidates, consumed := split(proposals, h.gate)
	return Result{
		AutoApplied: applied,
		Candidates:  candidates,
		Remaining:   remaining(txns, consumed),
	}, nil
}

func (h *RuleHandler) accountTypes(ctx context.Context, userID string) (map[string]model.AccountType, error) {
	accounts, err := h.storage.GetAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	types := make(map[string]model.AccountType, len(accounts))
	for _, account := range accounts {
		types[account.ID] = account.Type
	}
	return types, nil
}
