package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// CategorySummary aggregates one category's activity for the month.
type CategorySummary struct {
	Name     string
	Count    int
	Spent    decimal.Decimal
	Budgeted decimal.Decimal // Zero when no budget is set
}

// Overspent reports whether spending exceeded a set budget.
func (c CategorySummary) Overspent() bool {
	return c.Budgeted.IsPositive() && c.Spent.Abs().GreaterThan(c.Budgeted)
}

// MonthlyReport is the data rendered into the spreadsheet.
type MonthlyReport struct {
	Month         string // YYYY-MM
	TotalIncome   decimal.Decimal
	TotalSpending decimal.Decimal
	Categories    []CategorySummary
	Uncategorized CategorySummary
	Transactions  []model.Transaction
	categoryNames map[int]string
}

// BuildMonthlyReport aggregates a user's transactions and budgets for one
// calendar month.
func BuildMonthlyReport(ctx context.Context, storage service.Storage, userID, month string) (*MonthlyReport, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q, want YYYY-MM: %w", month, err)
	}
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)

	txns, err := storage.GetTransactions(ctx, userID, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return nil, err
	}

	categories, err := storage.GetCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}

	budgets, err := storage.GetBudgets(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	budgeted := make(map[int]decimal.Decimal, len(budgets))
	for _, b := range budgets {
		budgeted[b.CategoryID] = b.Amount
	}

	report := &MonthlyReport{
		Month:         month,
		Transactions:  txns,
		categoryNames: names,
		Uncategorized: CategorySummary{Name: "Uncategorized"},
	}

	byCategory := make(map[int]*CategorySummary)
	for _, txn := range txns {
		if txn.Status == model.StatusCancelled {
			continue
		}
		if txn.Amount.IsPositive() {
			report.TotalIncome = report.TotalIncome.Add(txn.Amount)
			continue
		}
		report.TotalSpending = report.TotalSpending.Add(txn.Amount)

		if txn.CategoryID == nil {
			report.Uncategorized.Count++
			report.Uncategorized.Spent = report.Uncategorized.Spent.Add(txn.Amount)
			continue
		}
		summary, ok := byCategory[*txn.CategoryID]
		if !ok {
			summary = &CategorySummary{
				Name:     names[*txn.CategoryID],
				Budgeted: budgeted[*txn.CategoryID],
			}
			byCategory[*txn.CategoryID] = summary
		}
		summary.Count++
		summary.Spent = summary.Spent.Add(txn.Amount)
	}

	// Budgets with no spending still appear in the report.
	for categoryID, amount := range budgeted {
		if _, ok := byCategory[categoryID]; !ok {
			byCategory[categoryID] = &CategorySummary{
				Name:     names[categoryID],
				Budgeted: amount,
			}
		}
	}

	for _, summary := range byCategory {
		report.Categories = append(report.Categories, *summary)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		// Biggest spenders first. Spending is negative.
		return report.Categories[i].Spent.LessThan(report.Categories[j].Spent)
	})

	return report, nil
}

// rows renders the report as spreadsheet rows.
func (r *MonthlyReport) rows() [][]any {
	values := make([][]any, 0, 12+len(r.Categories)+len(r.Transactions))

	values = append(values,
		[]any{"Monthly Report", r.Month},
		[]any{},
		[]any{"Summary"},
		[]any{"Total Income", r.TotalIncome.InexactFloat64()},
		[]any{"Total Spending", r.TotalSpending.InexactFloat64()},
		[]any{"Net", r.TotalIncome.Add(r.TotalSpending).InexactFloat64()},
		[]any{},
		[]any{"Category Breakdown"},
		[]any{"Category", "Count", "Spent", "Budget", "Status"},
	)

	writeCategory := func(c CategorySummary) {
		status := ""
		switch {
		case c.Overspent():
			status = "OVER"
		case c.Budgeted.IsPositive():
			status = "OK"
		}
		budget := any(nil)
		if c.Budgeted.IsPositive() {
			budget = c.Budgeted.InexactFloat64()
		}
		values = append(values, []any{c.Name, c.Count, c.Spent.Abs().InexactFloat64(), budget, status})
	}
	for _, c := range r.Categories {
		writeCategory(c)
	}
	if r.Uncategorized.Count > 0 {
		writeCategory(r.Uncategorized)
	}

	values = append(values,
		[]any{},
		[]any{"Transaction Details"},
		[]any{"Date", "Description", "Amount", "Category", "Account", "Status"},
	)

	txns := make([]model.Transaction, len(r.Transactions))
	copy(txns, r.Transactions)
	sort.Slice(txns, func(i, j int) bool { return txns[i].Date.After(txns[j].Date) })

	for _, txn := range txns {
		category := ""
		if txn.CategoryID != nil {
			category = r.categoryNames[*txn.CategoryID]
		}
		values = append(values, []any{
			txn.Date.Format("2006-01-02"),
			txn.EffectiveDescription(),
			txn.Amount.InexactFloat64(),
			category,
			txn.AccountID,
			string(txn.Status),
		})
	}

	return values
}
