// Package categorize implements the transaction categorization pipeline:
// an ordered chain of handlers evaluated from cheapest to most expensive.
package categorize

import (
	"context"

	"github.com/digaomatias/mymascada/internal/model"
)

// Categorization is one proposed (transaction, category) pair produced by a
// handler.
type Categorization struct {
	Mapping       *model.BankCategoryMapping // Set for bank-category resolutions
	TransactionID string
	Reason        string
	Method        model.CategorizationMethod
	CategoryID    int
	Confidence    float64
}

// Result is a handler's output bundle. A transaction appears in exactly one
// of the three buckets: auto-applied, candidate for review, or remaining for
// the next handler.
type Result struct {
	AutoApplied []Categorization
	Candidates  []Categorization
	Remaining   []model.Transaction
}

// Handler is one stage of the categorization chain. Implementations must not
// mutate the input transactions.
type Handler interface {
	Name() string
	Handle(ctx context.Context, userID string, txns []model.Transaction) (Result, error)
}

// Gate decides whether a proposed categorization auto-applies or becomes a
// review candidate.
type Gate struct {
	Threshold float64
}

// DefaultThreshold is the auto-apply confidence cutoff used when none is
// configured.
const DefaultThreshold = 0.90

// NewGate creates a gate, falling back to the default threshold for
// non-positive values.
func NewGate(threshold float64) Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Gate{Threshold: threshold}
}

// ShouldAutoApply reports whether the proposal clears the threshold.
func (g Gate) ShouldAutoApply(c Categorization) bool {
	return c.Confidence >= g.Threshold
}

// split buckets proposals through the gate and returns the IDs that were
// consumed by this handler.
func split(proposals []Categorization, gate Gate) (applied, candidates []Categorization, consumed map[string]bool) {
	consumed = make(map[string]bool, len(proposals))
	for _, p := range proposals {
		consumed[p.TransactionID] = true
		if gate.ShouldAutoApply(p) {
			applied = append(applied, p)
		} else {
			candidates = append(candidates, p)
		}
	}
	return applied, candidates, consumed
}

// remaining returns the transactions not consumed by a handler, preserving
// input order.
func remaining(txns []model.Transaction, consumed map[string]bool) []model.Transaction {
	var out []model.Transaction
	for _, txn := range txns {
		if !consumed[txn.ID] {
			out = append(out, txn)
		}
	}
	return out
}
