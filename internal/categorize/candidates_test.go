package categorize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/mapping"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/storage"
)

func seedCandidate(t *testing.T, store *storage.MemoryStorage, userID string) (*model.CategorizationCandidate, int) {
	t.Helper()
	txns, catID := seedChainFixtures(t, store, userID, 1)

	candidate := &model.CategorizationCandidate{
		TransactionID: txns[0].ID,
		UserID:        userID,
		CategoryID:    catID,
		Method:        model.MethodML,
		Status:        model.CandidatePending,
		Confidence:    0.7,
	}
	require.NoError(t, store.CreateCandidate(context.Background(), candidate))
	return candidate, catID
}

func TestApplyCommitsCategoryAndResolves(t *testing.T) {
	store := storage.NewMemoryStorage()
	candidate, catID := seedCandidate(t, store, "u1")
	svc := NewCandidateService(store, nil, testLogger())

	require.NoError(t, svc.Apply(context.Background(), "u1", candidate.ID))

	txn, err := store.GetTransactionByID(context.Background(), candidate.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, txn.CategoryID)
	assert.Equal(t, catID, *txn.CategoryID)

	resolved, err := store.GetCandidateByID(context.Background(), candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CandidateApplied, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestRejectLeavesTransactionUntouched(t *testing.T) {
	store := storage.NewMemoryStorage()
	candidate, _ := seedCandidate(t, store, "u1")
	svc := NewCandidateService(store, nil, testLogger())

	require.NoError(t, svc.Reject(context.Background(), "u1", candidate.ID))

	txn, err := store.GetTransactionByID(context.Background(), candidate.TransactionID)
	require.NoError(t, err)
	assert.Nil(t, txn.CategoryID)

	resolved, err := store.GetCandidateByID(context.Background(), candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CandidateRejected, resolved.Status)
}

func TestResolvedCandidateIsTerminal(t *testing.T) {
	store := storage.NewMemoryStorage()
	candidate, _ := seedCandidate(t, store, "u1")
	svc := NewCandidateService(store, nil, testLogger())

	require.NoError(t, svc.Apply(context.Background(), "u1", candidate.ID))

	err := svc.Apply(context.Background(), "u1", candidate.ID)
	assert.ErrorIs(t, err, common.ErrCandidateResolved)

	err = svc.Reject(context.Background(), "u1", candidate.ID)
	assert.ErrorIs(t, err, common.ErrCandidateResolved)
}

func TestRejectBankCategoryCandidateRecordsOverride(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	txns, catID := seedChainFixtures(t, store, "u1", 1)

	txn := txns[0]
	txn.BankCategory = "Groceries & Supermarkets"
	require.NoError(t, store.UpdateTransaction(ctx, &txn))

	stored := &model.BankCategoryMapping{
		UserID:         "u1",
		BankCategory:   txn.BankCategory,
		NormalizedName: model.NormalizeBankCategory(txn.BankCategory),
		CategoryID:     catID,
		Confidence:     0.8,
	}
	require.NoError(t, store.CreateMapping(ctx, stored))

	candidate := &model.CategorizationCandidate{
		TransactionID: txn.ID,
		UserID:        "u1",
		CategoryID:    catID,
		Method:        model.MethodBankCategory,
		Status:        model.CandidatePending,
		Confidence:    0.8,
	}
	require.NoError(t, store.CreateCandidate(ctx, candidate))

	mapper := mapping.NewMapper(store, nil, testLogger())
	svc := NewCandidateService(store, mapper, testLogger())

	require.NoError(t, svc.Reject(ctx, "u1", candidate.ID))

	mappings, err := store.GetMappings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, 1, mappings[0].OverrideCount)
	assert.Equal(t, 0, mappings[0].ApplicationCount)
}

func TestForeignCandidateLooksMissing(t *testing.T) {
	store := storage.NewMemoryStorage()
	candidate, _ := seedCandidate(t, store, "u1")
	svc := NewCandidateService(store, nil, testLogger())

	err := svc.Apply(context.Background(), "u2", candidate.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
