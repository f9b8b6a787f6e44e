package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedAccount(t *testing.T, s *SQLiteStorage, userID, accountID string) {
	t.Helper()
	require.NoError(t, s.CreateAccount(context.Background(), &model.Account{
		ID:       accountID,
		UserID:   userID,
		Name:     "Everyday " + accountID,
		Type:     model.AccountChecking,
		Currency: "NZD",
	}))
}

func seedCategory(t *testing.T, s *SQLiteStorage, userID, name string) int {
	t.Helper()
	cat := &model.Category{UserID: userID, Name: name, IsActive: true}
	require.NoError(t, s.CreateCategory(context.Background(), cat))
	return cat.ID
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSaveTransactionsSkipsDuplicateHashes(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedAccount(t, s, "user-1", "acct-1")

	txn := model.Transaction{
		ID:          "txn-1",
		UserID:      "user-1",
		AccountID:   "acct-1",
		Date:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Description: "COUNTDOWN AUCKLAND",
		Amount:      decimal.NewFromFloat(-54.20),
		Status:      model.StatusCleared,
		Source:      model.SourceCsvImport,
	}
	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{txn}))

	// Same date, amount, description, account hashes identically.
	dup := txn
	dup.ID = "txn-2"
	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{dup}))

	txns, err := s.GetTransactions(ctx, "user-1", service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
	assert.Equal(t, "txn-1", txns[0].ID)
}

func TestGetTransactionsFilters(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedAccount(t, s, "user-1", "acct-1")
	seedAccount(t, s, "user-1", "acct-2")
	catID := seedCategory(t, s, "user-1", "Groceries")

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		{ID: "t1", UserID: "user-1", AccountID: "acct-1", Date: base,
			Description: "COUNTDOWN", Amount: decimal.NewFromInt(-50),
			Status: model.StatusCleared, Source: model.SourceManual, CategoryID: &catID},
		{ID: "t2", UserID: "user-1", AccountID: "acct-2", Date: base.AddDate(0, 0, 5),
			Description: "BP CONNECT", Amount: decimal.NewFromInt(-80),
			Status: model.StatusPending, Source: model.SourceManual},
		{ID: "t3", UserID: "user-2", AccountID: "acct-1", Date: base,
			Description: "OTHER USER", Amount: decimal.NewFromInt(-10),
			Status: model.StatusCleared, Source: model.SourceManual},
	}
	require.NoError(t, s.SaveTransactions(ctx, txns))

	t.Run("scoped to user", func(t *testing.T) {
		got, err := s.GetTransactions(ctx, "user-1", service.TransactionFilter{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by account", func(t *testing.T) {
		got, err := s.GetTransactions(ctx, "user-1", service.TransactionFilter{AccountID: "acct-2"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t2", got[0].ID)
	})

	t.Run("by category", func(t *testing.T) {
		got, err := s.GetTransactions(ctx, "user-1", service.TransactionFilter{CategoryID: &catID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t1", got[0].ID)
	})

	t.Run("by search", func(t *testing.T) {
		got, err := s.GetTransactions(ctx, "user-1", service.TransactionFilter{Search: "COUNTDOWN"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t1", got[0].ID)
	})
}

func TestSoftDeleteTransactionHidesFromQueries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedAccount(t, s, "user-1", "acct-1")

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{{
		ID: "t1", UserID: "user-1", AccountID: "acct-1",
		Date: time.Now(), Description: "GONE", Amount: decimal.NewFromInt(-5),
		Status: model.StatusCleared, Source: model.SourceManual,
	}}))
	require.NoError(t, s.SoftDeleteTransaction(ctx, "t1"))

	got, err := s.GetTransactions(ctx, "user-1", service.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Still fetchable by ID for audit.
	txn, err := s.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, txn.DeletedAt)

	// Second delete reports not found.
	err = s.SoftDeleteTransaction(ctx, "t1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyCategory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedAccount(t, s, "user-1", "acct-1")
	catID := seedCategory(t, s, "user-1", "Fuel")

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{{
		ID: "t1", UserID: "user-1", AccountID: "acct-1",
		Date: time.Now(), Description: "Z ENERGY", Amount: decimal.NewFromInt(-90),
		Status: model.StatusCleared, Source: model.SourceManual,
	}}))
	require.NoError(t, s.ApplyCategory(ctx, "t1", catID))

	txn, err := s.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, txn.CategoryID)
	assert.Equal(t, catID, *txn.CategoryID)

	uncat, err := s.GetUncategorizedTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, uncat)
}

func TestCategoryUniquePerUser(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCategory(ctx, &model.Category{UserID: "user-1", Name: "Dining", IsActive: true}))
	err := s.CreateCategory(ctx, &model.Category{UserID: "user-1", Name: "Dining", IsActive: true})
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	// Same name under another user is fine.
	require.NoError(t, s.CreateCategory(ctx, &model.Category{UserID: "user-2", Name: "Dining", IsActive: true}))
}

func TestRuleRoundTripWithConditions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	catID := seedCategory(t, s, "user-1", "Transport")

	min := decimal.NewFromInt(-200)
	rule := &model.CategorizationRule{
		UserID:         "user-1",
		Name:           "Ride shares",
		Pattern:        "UBER",
		MatchType:      model.MatchContains,
		Priority:       10,
		AmountMin:      &min,
		ConditionLogic: model.LogicAll,
		CategoryID:     catID,
		Confidence:     0.95,
		IsActive:       true,
		Conditions: []model.RuleCondition{
			{Field: "amount", Operator: model.OpLessThan, Value: "0"},
		},
	}
	require.NoError(t, s.CreateRule(ctx, rule))
	require.NotZero(t, rule.ID)

	got, err := s.GetRuleByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ride shares", got.Name)
	require.NotNil(t, got.AmountMin)
	assert.True(t, got.AmountMin.Equal(min))
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, model.OpLessThan, got.Conditions[0].Operator)

	// Updating replaces conditions wholesale.
	got.Conditions = nil
	require.NoError(t, s.UpdateRule(ctx, got))
	got, err = s.GetRuleByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Conditions)
}

func TestReorderRulesRewritesPriorities(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	catID := seedCategory(t, s, "user-1", "Misc")

	var ids []int64
	for _, name := range []string{"first", "second", "third"} {
		rule := &model.CategorizationRule{
			UserID: "user-1", Name: name, Pattern: name,
			MatchType: model.MatchContains, ConditionLogic: model.LogicAll,
			CategoryID: catID, Priority: 100, IsActive: true,
		}
		require.NoError(t, s.CreateRule(ctx, rule))
		ids = append(ids, rule.ID)
	}

	// Reverse the order.
	require.NoError(t, s.ReorderRules(ctx, "user-1", []int64{ids[2], ids[1], ids[0]}))

	rules, err := s.GetActiveRules(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "third", rules[0].Name)
	assert.Equal(t, "first", rules[2].Name)
}

func TestHasPendingCandidate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedAccount(t, s, "user-1", "acct-1")
	catID := seedCategory(t, s, "user-1", "Groceries")

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{{
		ID: "t1", UserID: "user-1", AccountID: "acct-1",
		Date: time.Now(), Description: "NEW WORLD", Amount: decimal.NewFromInt(-30),
		Status: model.StatusCleared, Source: model.SourceManual,
	}}))

	cand := &model.CategorizationCandidate{
		TransactionID: "t1", UserID: "user-1", CategoryID: catID,
		Method: model.MethodML, Status: model.CandidatePending, Confidence: 0.7,
	}
	require.NoError(t, s.CreateCandidate(ctx, cand))

	ok, err := s.HasPendingCandidate(ctx, "t1", catID, model.MethodML)
	require.NoError(t, err)
	assert.True(t, ok)

	// Resolving frees the slot.
	now := time.Now()
	cand.Status = model.CandidateRejected
	cand.ResolvedAt = &now
	require.NoError(t, s.UpdateCandidate(ctx, cand))

	ok, err = s.HasPendingCandidate(ctx, "t1", catID, model.MethodML)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMappingUniquePerNormalizedName(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	catID := seedCategory(t, s, "user-1", "Dining")

	mapping := &model.BankCategoryMapping{
		UserID: "user-1", Provider: "plaid", BankCategory: "Food & Drink",
		CategoryID: catID, Confidence: 0.9,
	}
	require.NoError(t, s.CreateMapping(ctx, mapping))
	assert.Equal(t, "food drink", mapping.NormalizedName)

	dup := &model.BankCategoryMapping{
		UserID: "user-1", Provider: "plaid", BankCategory: "food   drink!",
		CategoryID: catID,
	}
	err := s.CreateMapping(ctx, dup)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	got, err := s.GetMappingByNormalizedName(ctx, "user-1", "plaid", "food drink")
	require.NoError(t, err)
	assert.Equal(t, mapping.ID, got.ID)
}

func TestReconciliationItemsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedAccount(t, s, "user-1", "acct-1")

	rec := &model.Reconciliation{
		UserID: "user-1", AccountID: "acct-1",
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:      model.ReconciliationOpen,
	}
	require.NoError(t, s.CreateReconciliation(ctx, rec))

	txnID := "t1"
	items := []model.ReconciliationItem{
		{ReconciliationID: rec.ID, Type: model.ItemMatched, Method: model.MatchExact,
			Confidence: 1.0, TransactionID: &txnID, BankReference: "ref-1",
			BankDescription: "COUNTDOWN", BankDate: rec.PeriodStart,
			BankAmount: decimal.NewFromInt(-50)},
		{ReconciliationID: rec.ID, Type: model.ItemUnmatchedBank,
			BankReference: "ref-2", BankDescription: "MYSTERY",
			BankDate: rec.PeriodStart, BankAmount: decimal.NewFromInt(-9)},
	}
	require.NoError(t, s.CreateReconciliationItems(ctx, items))
	require.NotZero(t, items[0].ID)

	got, err := s.GetReconciliationItems(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Matched items sort first.
	assert.Equal(t, model.ItemMatched, got[0].Type)
	require.NotNil(t, got[0].TransactionID)
	assert.Equal(t, "t1", *got[0].TransactionID)
	assert.True(t, got[0].BankAmount.Equal(decimal.NewFromInt(-50)))

	require.NoError(t, s.DeleteReconciliationItem(ctx, items[1].ID))
	got, err = s.GetReconciliationItems(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBudgetUniquePerCategoryMonth(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	catID := seedCategory(t, s, "user-1", "Groceries")

	budget := &model.Budget{
		UserID: "user-1", CategoryID: catID, Month: "2026-03",
		Amount: decimal.NewFromInt(600),
	}
	require.NoError(t, s.CreateBudget(ctx, budget))

	err := s.CreateBudget(ctx, &model.Budget{
		UserID: "user-1", CategoryID: catID, Month: "2026-03",
		Amount: decimal.NewFromInt(700),
	})
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	budgets, err := s.GetBudgets(ctx, "user-1", "2026-03")
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.True(t, budgets[0].Amount.Equal(decimal.NewFromInt(600)))
}

func TestGoalLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	goal := &model.Goal{
		UserID: "user-1", Name: "Emergency fund",
		Target: decimal.NewFromInt(5000), Saved: decimal.Zero,
		Status: model.GoalActive,
	}
	require.NoError(t, s.CreateGoal(ctx, goal))

	goal.Saved = decimal.NewFromInt(5000)
	goal.Status = model.GoalCompleted
	require.NoError(t, s.UpdateGoal(ctx, goal))

	got, err := s.GetGoalByID(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoalCompleted, got.Status)
	assert.True(t, got.Saved.Equal(decimal.NewFromInt(5000)))
}

func TestGetTransactionsByHash(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedAccount(t, s, "user-1", "acct-1")

	txn := model.Transaction{
		ID: "t1", UserID: "user-1", AccountID: "acct-1",
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "KNOWN", Amount: decimal.NewFromInt(-1),
		Status: model.StatusCleared, Source: model.SourceBankAPI,
	}
	txn.Hash = txn.GenerateHash()
	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{txn}))

	seen, err := s.GetTransactionsByHash(ctx, "acct-1", []string{txn.Hash, "missing"})
	require.NoError(t, err)
	assert.True(t, seen[txn.Hash])
	assert.False(t, seen["missing"])
}
