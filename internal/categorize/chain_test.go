package categorize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedChainFixtures(t *testing.T, store *storage.MemoryStorage, userID string, txnCount int) ([]model.Transaction, int) {
	t.Helper()
	ctx := context.Background()

	account := &model.Account{
		ID: "acc-" + userID, UserID: userID, Name: "Everyday",
		Type: model.AccountChecking, Currency: "NZD",
	}
	require.NoError(t, store.CreateAccount(ctx, account))

	category := &model.Category{UserID: userID, Name: "Groceries", IsActive: true}
	require.NoError(t, store.CreateCategory(ctx, category))

	txns := make([]model.Transaction, txnCount)
	for i := range txns {
		txns[i] = model.Transaction{
			ID:          fmt.Sprintf("txn-%d", i),
			UserID:      userID,
			AccountID:   account.ID,
			Date:        time.Now().AddDate(0, 0, -i),
			Description: fmt.Sprintf("MERCHANT %d", i),
			Amount:      decimal.NewFromInt(-10),
			Status:      model.StatusCleared,
			Source:      model.SourceManual,
		}
		txns[i].Hash = txns[i].GenerateHash()
	}
	if len(txns) > 0 {
		require.NoError(t, store.SaveTransactions(ctx, txns))
	}
	return txns, category.ID
}

// stubHandler resolves the transaction IDs it is told to, with a fixed
// confidence, and forwards the rest.
type stubHandler struct {
	name       string
	resolves   map[string]bool
	confidence float64
	categoryID int
	err        error
	calls      int
	seen       []int
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Handle(_ context.Context, _ string, txns []model.Transaction) (Result, error) {
	h.calls++
	h.seen = append(h.seen, len(txns))
	if h.err != nil {
		return Result{}, h.err
	}
	var proposals []Categorization
	for _, txn := range txns {
		if h.resolves[txn.ID] {
			proposals = append(proposals, Categorization{
				TransactionID: txn.ID,
				CategoryID:    h.categoryID,
				Method:        model.MethodRule,
				Confidence:    h.confidence,
			})
		}
	}
	applied, candidates, consumed := split(proposals, NewGate(0.9))
	return Result{AutoApplied: applied, Candidates: candidates, Remaining: remaining(txns, consumed)}, nil
}

func TestChainAppliesAboveThresholdAndQueuesBelow(t *testing.T) {
	store := storage.NewMemoryStorage()
	txns, catID := seedChainFixtures(t, store, "u1", 3)

	high := &stubHandler{
		name: "high", categoryID: catID, confidence: 0.95,
		resolves: map[string]bool{txns[0].ID: true},
	}
	low := &stubHandler{
		name: "low", categoryID: catID, confidence: 0.6,
		resolves: map[string]bool{txns[1].ID: true},
	}

	chain := NewChain(store, nil, testLogger(), high, low)
	summary, err := chain.Run(context.Background(), "u1", txns)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.AutoApplied)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Unresolved)

	applied, err := store.GetTransactionByID(context.Background(), txns[0].ID)
	require.NoError(t, err)
	require.NotNil(t, applied.CategoryID)
	assert.Equal(t, catID, *applied.CategoryID)

	candidates, err := store.GetPendingCandidates(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, txns[1].ID, candidates[0].TransactionID)
}

func TestChainSkipsAlreadyCategorized(t *testing.T) {
	store := storage.NewMemoryStorage()
	txns, catID := seedChainFixtures(t, store, "u1", 2)
	require.NoError(t, store.ApplyCategory(context.Background(), txns[0].ID, catID))

	handler := &stubHandler{name: "noop"}
	chain := NewChain(store, nil, testLogger(), handler)

	summary, err := chain.Run(context.Background(), "u1", txns)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed, "categorized transactions are filtered out")
	require.Len(t, handler.seen, 1)
	assert.Equal(t, 1, handler.seen[0])
}

func TestChainHandlerFailureForwardsInput(t *testing.T) {
	store := storage.NewMemoryStorage()
	txns, catID := seedChainFixtures(t, store, "u1", 2)

	broken := &stubHandler{name: "broken", err: errors.New("provider down")}
	fallback := &stubHandler{
		name: "fallback", categoryID: catID, confidence: 0.95,
		resolves: map[string]bool{txns[0].ID: true, txns[1].ID: true},
	}

	chain := NewChain(store, nil, testLogger(), broken, fallback)
	summary, err := chain.Run(context.Background(), "u1", txns)
	require.NoError(t, err)

	assert.True(t, summary.PerHandler["broken"].Failed)
	assert.Equal(t, 2, summary.AutoApplied, "failed stage must not consume transactions")
	require.Len(t, fallback.seen, 1)
	assert.Equal(t, 2, fallback.seen[0])
}

func TestChainDedupesPendingCandidates(t *testing.T) {
	store := storage.NewMemoryStorage()
	txns, catID := seedChainFixtures(t, store, "u1", 1)

	low := &stubHandler{
		name: "low", categoryID: catID, confidence: 0.6,
		resolves: map[string]bool{txns[0].ID: true},
	}
	chain := NewChain(store, nil, testLogger(), low)

	for range 2 {
		_, err := chain.Run(context.Background(), "u1", txns)
		require.NoError(t, err)
	}

	candidates, err := store.GetPendingCandidates(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, candidates, 1, "same proposal must not queue twice")
}

func TestChainStopsWhenNothingRemains(t *testing.T) {
	store := storage.NewMemoryStorage()
	txns, catID := seedChainFixtures(t, store, "u1", 1)

	first := &stubHandler{
		name: "first", categoryID: catID, confidence: 0.95,
		resolves: map[string]bool{txns[0].ID: true},
	}
	second := &stubHandler{name: "second"}

	chain := NewChain(store, nil, testLogger(), first, second)
	_, err := chain.Run(context.Background(), "u1", txns)
	require.NoError(t, err)

	assert.Equal(t, 0, second.calls, "later stages skip when the backlog is empty")
}

func TestChainEstimatesSavingsForCheapResolutions(t *testing.T) {
	store := storage.NewMemoryStorage()
	txns, catID := seedChainFixtures(t, store, "u1", 2)

	rule := &stubHandler{
		name: "rule", categoryID: catID, confidence: 0.95,
		resolves: map[string]bool{txns[0].ID: true, txns[1].ID: true},
	}
	chain := NewChain(store, nil, testLogger(), rule)

	summary, err := chain.Run(context.Background(), "u1", txns)
	require.NoError(t, err)
	assert.InDelta(t, 2*costPerLLMCall, summary.EstimatedSavings, 1e-9)
}

func TestGateThresholdBoundary(t *testing.T) {
	gate := NewGate(0.9)
	assert.True(t, gate.ShouldAutoApply(Categorization{Confidence: 0.9}))
	assert.False(t, gate.ShouldAutoApply(Categorization{Confidence: 0.89}))

	assert.Equal(t, DefaultThreshold, NewGate(0).Threshold)
	assert.Equal(t, DefaultThreshold, NewGate(-1).Threshold)
}
