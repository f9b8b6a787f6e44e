package recon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func seedReconAccount(t *testing.T, store *storage.MemoryStorage, userID string) *model.Account {
	t.Helper()
	account := &model.Account{
		ID: "acc-" + userID, UserID: userID, Name: "Everyday",
		Type: model.AccountChecking, Currency: "NZD",
	}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return account
}

func seedReconTransaction(t *testing.T, store *storage.MemoryStorage, userID, accountID, id, description string, date time.Time, amount string) model.Transaction {
	t.Helper()
	txn := model.Transaction{
		ID:          id,
		UserID:      userID,
		AccountID:   accountID,
		Date:        date,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Status:      model.StatusCleared,
		Source:      model.SourceManual,
	}
	txn.Hash = txn.GenerateHash()
	require.NoError(t, store.SaveTransactions(context.Background(), []model.Transaction{txn}))
	return txn
}

func TestCreateValidatesPeriodAndOwnership(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	now := time.Now()

	_, err := svc.Create(context.Background(), "u1", account.ID, now, now.AddDate(0, 0, -1))
	assert.Error(t, err, "inverted period must be rejected")

	_, err = svc.Create(context.Background(), "u2", account.ID, now.AddDate(0, 0, -30), now)
	assert.ErrorIs(t, err, common.ErrNotFound)

	rec, err := svc.Create(context.Background(), "u1", account.ID, now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	assert.Equal(t, model.ReconciliationOpen, rec.Status)
}

func TestAutoMatchPersistsAllBuckets(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	matchedTxn := seedReconTransaction(t, store, "u1", account.ID, "t-matched", "COUNTDOWN AUCKLAND", day, "-54.30")
	seedReconTransaction(t, store, "u1", account.ID, "t-orphan", "BP CONNECT", day.AddDate(0, 0, 2), "-80.00")

	rec, err := svc.Create(context.Background(), "u1", account.ID, day.AddDate(0, 0, -5), day.AddDate(0, 0, 5))
	require.NoError(t, err)

	result, err := svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{Date: day, Description: "COUNTDOWN AUCKLAND", Amount: decimal.RequireFromString("-54.30")},
		{Date: day, Description: "NETFLIX.COM", Amount: decimal.RequireFromString("-19.99")},
	})
	require.NoError(t, err)
	assert.Len(t, result.Exact, 1)
	assert.Len(t, result.UnmatchedBank, 1)
	assert.Len(t, result.UnmatchedApp, 1)

	items, err := store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	var matched *model.ReconciliationItem
	for i := range items {
		if items[i].Type == model.ItemMatched {
			matched = &items[i]
		}
	}
	require.NotNil(t, matched)
	require.NotNil(t, matched.TransactionID)
	assert.Equal(t, matchedTxn.ID, *matched.TransactionID)
}

func TestManualMatchAbsorbsUnmatchedAppItem(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	txn := seedReconTransaction(t, store, "u1", account.ID, "t-1", "CAFE ON K RD", day, "-9.00")
	rec, err := svc.Create(context.Background(), "u1", account.ID, day.AddDate(0, 0, -5), day.AddDate(0, 0, 5))
	require.NoError(t, err)

	// Bank line differs enough that auto-match leaves both sides unmatched.
	_, err = svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{Date: day.AddDate(0, 0, 4), Description: "UNRELATED MERCHANT", Amount: decimal.RequireFromString("-99.00")},
	})
	require.NoError(t, err)

	items, err := store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var bankItemID int64
	for _, item := range items {
		if item.Type == model.ItemUnmatchedBank {
			bankItemID = item.ID
		}
	}

	require.NoError(t, svc.ManualMatch(context.Background(), "u1", rec.ID, bankItemID, txn.ID))

	items, err = store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 1, "the transaction's unmatched-app item is absorbed")
	assert.Equal(t, model.ItemMatched, items[0].Type)
	assert.Equal(t, model.MatchManual, items[0].Method)
}

func TestUnlinkReversesMatchAndRestoresStatus(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	txn := seedReconTransaction(t, store, "u1", account.ID, "t-1", "COUNTDOWN AUCKLAND", day, "-54.30")
	rec, err := svc.Create(context.Background(), "u1", account.ID, day.AddDate(0, 0, -5), day.AddDate(0, 0, 5))
	require.NoError(t, err)

	_, err = svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{Date: day, Description: "COUNTDOWN AUCKLAND", Amount: decimal.RequireFromString("-54.30")},
	})
	require.NoError(t, err)

	items, err := store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	itemID := items[0].ID

	_, err = svc.BulkApprove(context.Background(), "u1", rec.ID, BulkApproveRequest{})
	require.NoError(t, err)

	reconciled, err := store.GetTransactionByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusReconciled, reconciled.Status)

	require.NoError(t, svc.Unlink(context.Background(), "u1", rec.ID, itemID))

	items, err = store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.ItemUnmatchedBank, items[0].Type)
	assert.Nil(t, items[0].TransactionID)

	restored, err := store.GetTransactionByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCleared, restored.Status)
}

func TestBulkApprovePartialSuccess(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	seedReconTransaction(t, store, "u1", account.ID, "t-1", "COUNTDOWN AUCKLAND", day, "-54.30")
	rec, err := svc.Create(context.Background(), "u1", account.ID, day.AddDate(0, 0, -5), day.AddDate(0, 0, 5))
	require.NoError(t, err)

	_, err = svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{Date: day, Description: "COUNTDOWN AUCKLAND", Amount: decimal.RequireFromString("-54.30")},
		{Date: day, Description: "NETFLIX.COM", Amount: decimal.RequireFromString("-19.99")},
	})
	require.NoError(t, err)

	items, err := store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)

	var matchedID, unmatchedID int64
	for _, item := range items {
		switch item.Type {
		case model.ItemMatched:
			matchedID = item.ID
		case model.ItemUnmatchedBank:
			unmatchedID = item.ID
		}
	}

	summary, err := svc.BulkApprove(context.Background(), "u1", rec.ID, BulkApproveRequest{
		ItemIDs: []int64{matchedID, unmatchedID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approved)
	assert.Len(t, summary.Errors, 1, "selecting an unmatched item reports an error, not a failure")
	assert.False(t, summary.Success())
}

func TestBulkApproveEnrichesAndCategorizes(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	category := &model.Category{UserID: "u1", Name: "Groceries", IsActive: true}
	require.NoError(t, store.CreateCategory(context.Background(), category))
	require.NoError(t, store.CreateMapping(context.Background(), &model.BankCategoryMapping{
		UserID: "u1", BankCategory: "Food & Drink", CategoryID: category.ID, Confidence: 0.9,
	}))

	txn := seedReconTransaction(t, store, "u1", account.ID, "t-1", "COUNTDOWN AUCKLAND", day, "-54.30")
	rec, err := svc.Create(context.Background(), "u1", account.ID, day.AddDate(0, 0, -5), day.AddDate(0, 0, 5))
	require.NoError(t, err)

	_, err = svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{
			Date:        day,
			Reference:   "REF-123",
			Description: "COUNTDOWN AUCKLAND",
			Category:    "Food & Drink",
			Amount:      decimal.RequireFromString("-54.30"),
		},
	})
	require.NoError(t, err)

	summary, err := svc.BulkApprove(context.Background(), "u1", rec.ID, BulkApproveRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, 1, summary.Categorized)

	updated, err := store.GetTransactionByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "REF-123", updated.BankReference)
	assert.Equal(t, "Food & Drink", updated.BankCategory)
	require.NotNil(t, updated.CategoryID)
	assert.Equal(t, category.ID, *updated.CategoryID)
	assert.Equal(t, model.StatusReconciled, updated.Status)
}

func TestFinalizeBlocksOnUnresolvedItems(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	rec, err := svc.Create(context.Background(), "u1", account.ID, day.AddDate(0, 0, -5), day.AddDate(0, 0, 5))
	require.NoError(t, err)

	_, err = svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{Date: day, Description: "NETFLIX.COM", Amount: decimal.RequireFromString("-19.99")},
	})
	require.NoError(t, err)

	err = svc.Finalize(context.Background(), "u1", rec.ID, false)
	assert.Error(t, err)

	require.NoError(t, svc.Finalize(context.Background(), "u1", rec.ID, true))

	finalized, err := store.GetReconciliationByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReconciliationFinalized, finalized.Status)
	assert.NotNil(t, finalized.FinalizedAt)

	// A finalized reconciliation accepts no further work.
	_, err = svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{Date: day, Description: "LATE LINE", Amount: decimal.NewFromInt(-1)},
	})
	assert.ErrorIs(t, err, common.ErrReconciliationFinalized)
}

func TestImportUnmatchedCreatesTransactions(t *testing.T) {
	svc, store := newTestService(t)
	account := seedReconAccount(t, store, "u1")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	rec, err := svc.Create(context.Background(), "u1", account.ID, day.AddDate(0, 0, -5), day.AddDate(0, 0, 5))
	require.NoError(t, err)

	_, err = svc.AutoMatch(context.Background(), "u1", rec.ID, []model.BankLine{
		{Date: day, Description: "NETFLIX.COM", Amount: decimal.RequireFromString("-19.99")},
	})
	require.NoError(t, err)

	items, err := store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	summary, err := svc.ImportUnmatched(context.Background(), "u1", rec.ID, []int64{items[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approved)

	items, err = store.GetReconciliationItems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, model.ItemMatched, items[0].Type)
	require.NotNil(t, items[0].TransactionID)

	created, err := store.GetTransactionByID(context.Background(), *items[0].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "NETFLIX.COM", created.Description)
	assert.Equal(t, model.SourceImport, created.Source)
	assert.True(t, decimal.RequireFromString("-19.99").Equal(created.Amount))
}
