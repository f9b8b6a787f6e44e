package export

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/storage"
)

func TestBuildMonthlyReport(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	require.NoError(t, store.CreateAccount(ctx, &model.Account{
		ID: "acct-1", UserID: "user-1", Name: "Everyday", Type: model.AccountChecking,
	}))
	groceries := &model.Category{UserID: "user-1", Name: "Groceries", IsActive: true}
	require.NoError(t, store.CreateCategory(ctx, groceries))
	dining := &model.Category{UserID: "user-1", Name: "Dining", IsActive: true}
	require.NoError(t, store.CreateCategory(ctx, dining))

	require.NoError(t, store.CreateBudget(ctx, &model.Budget{
		UserID: "user-1", CategoryID: groceries.ID, Month: "2026-03",
		Amount: decimal.NewFromInt(100),
	}))
	require.NoError(t, store.CreateBudget(ctx, &model.Budget{
		UserID: "user-1", CategoryID: dining.ID, Month: "2026-03",
		Amount: decimal.NewFromInt(200),
	}))

	march := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		{ID: "t1", UserID: "user-1", AccountID: "acct-1", Date: march,
			Description: "COUNTDOWN", Amount: decimal.NewFromInt(-120),
			Status: model.StatusCleared, Source: model.SourceManual, CategoryID: &groceries.ID},
		{ID: "t2", UserID: "user-1", AccountID: "acct-1", Date: march.AddDate(0, 0, 2),
			Description: "SALARY", Amount: decimal.NewFromInt(3000),
			Status: model.StatusCleared, Source: model.SourceManual},
		{ID: "t3", UserID: "user-1", AccountID: "acct-1", Date: march.AddDate(0, 0, 3),
			Description: "MYSTERY SHOP", Amount: decimal.NewFromInt(-15),
			Status: model.StatusCleared, Source: model.SourceManual},
		// Outside the month, excluded.
		{ID: "t4", UserID: "user-1", AccountID: "acct-1", Date: march.AddDate(0, 2, 0),
			Description: "LATER", Amount: decimal.NewFromInt(-99),
			Status: model.StatusCleared, Source: model.SourceManual},
	}))

	report, err := BuildMonthlyReport(ctx, store, "user-1", "2026-03")
	require.NoError(t, err)

	assert.True(t, report.TotalIncome.Equal(decimal.NewFromInt(3000)))
	assert.True(t, report.TotalSpending.Equal(decimal.NewFromInt(-135)))
	assert.Len(t, report.Transactions, 3)

	require.Len(t, report.Categories, 2)
	// Groceries spent the most so it sorts first, and it's over budget.
	assert.Equal(t, "Groceries", report.Categories[0].Name)
	assert.True(t, report.Categories[0].Overspent())
	// Dining had no spending but appears because a budget exists.
	assert.Equal(t, "Dining", report.Categories[1].Name)
	assert.Equal(t, 0, report.Categories[1].Count)
	assert.False(t, report.Categories[1].Overspent())

	assert.Equal(t, 1, report.Uncategorized.Count)
}

func TestBuildMonthlyReportRejectsBadMonth(t *testing.T) {
	_, err := BuildMonthlyReport(context.Background(), storage.NewMemoryStorage(), "user-1", "March 2026")
	assert.Error(t, err)
}

func TestReportRows(t *testing.T) {
	report := &MonthlyReport{
		Month:         "2026-03",
		TotalIncome:   decimal.NewFromInt(3000),
		TotalSpending: decimal.NewFromInt(-135),
		Categories: []CategorySummary{
			{Name: "Groceries", Count: 1, Spent: decimal.NewFromInt(-120), Budgeted: decimal.NewFromInt(100)},
		},
		categoryNames: map[int]string{},
	}

	rows := report.rows()
	require.NotEmpty(t, rows)
	assert.Equal(t, []any{"Monthly Report", "2026-03"}, rows[0])

	var groceriesRow []any
	for _, row := range rows {
		if len(row) > 0 && row[0] == "Groceries" {
			groceriesRow = row
		}
	}
	require.NotNil(t, groceriesRow)
	assert.Equal(t, "OVER", groceriesRow[4])
}
