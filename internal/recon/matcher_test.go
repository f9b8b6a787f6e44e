package recon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAmountScore(t *testing.T) {
	tests := []struct {
		name   string
		bank   string
		system string
		want   float64
	}{
		{"identical", "-45.00", "-45.00", 1.0},
		{"half cent difference is exact", "-45.005", "-45.00", 1.0},
		{"one cent difference", "-45.01", "-45.00", 0.8},
		{"within a dollar", "-45.80", "-45.00", 0.8},
		{"within five dollars", "-49.00", "-45.00", 0.6},
		{"beyond five dollars", "-75.00", "-45.00", 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := amountScore(decimal.RequireFromString(tt.bank), decimal.RequireFromString(tt.system))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateScore(t *testing.T) {
	tests := []struct {
		name   string
		bank   string
		system string
		want   float64
	}{
		{"same day", "2025-03-10", "2025-03-10", 1.0},
		{"one day apart", "2025-03-11", "2025-03-10", 0.9},
		{"three days apart", "2025-03-13", "2025-03-10", 0.7},
		{"four days apart", "2025-03-14", "2025-03-10", 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dateScore(day(tt.bank), day(tt.system)))
		})
	}
}

func TestDescriptionScore(t *testing.T) {
	tests := []struct {
		name   string
		bank   string
		system string
		want   float64
	}{
		{"normalized equality", "UBER *EATS", "uber eats", 1.0},
		{"containment", "uber eats wellington nz", "Uber Eats", 0.9},
		{"word overlap", "countdown auckland metro", "countdown online ponsonby", 0.2},
		{"no overlap", "spotify", "mitre ten", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, descriptionScore(tt.bank, tt.system), 0.001)
		})
	}
}

func TestScorePair_PerfectMatchIsExact(t *testing.T) {
	line := model.BankLine{
		Date:        day("2025-03-10"),
		Description: "COUNTDOWN AUCKLAND",
		Amount:      decimal.RequireFromString("-55.10"),
	}
	txn := model.Transaction{
		Date:        day("2025-03-10"),
		Description: "COUNTDOWN AUCKLAND",
		Amount:      decimal.RequireFromString("-55.10"),
	}

	s := ScorePair(line, txn)
	// 1.0*0.4 + 1.0*0.3 + 1.0*0.3 = 1.0
	assert.Equal(t, 1.0, s.Composite)
	assert.True(t, s.IsExact())
	assert.False(t, s.IsFuzzy())
}

func TestScorePair_CloseAmountSameDayIsFuzzy(t *testing.T) {
	line := model.BankLine{
		Date:        day("2025-03-10"),
		Description: "COUNTDOWN AUCKLAND 123",
		Amount:      decimal.RequireFromString("-55.60"),
	}
	txn := model.Transaction{
		Date:        day("2025-03-10"),
		Description: "Countdown Auckland",
		Amount:      decimal.RequireFromString("-55.10"),
	}

	s := ScorePair(line, txn)
	assert.False(t, s.ExactAmount)
	assert.True(t, s.IsFuzzy())
}

func TestMatch_BucketsAndGreedyAssignment(t *testing.T) {
	lines := []model.BankLine{
		{Reference: "b1", Date: day("2025-03-10"), Description: "UBER TRIP", Amount: decimal.RequireFromString("-23.50")},
		{Reference: "b2", Date: day("2025-03-12"), Description: "MYSTERY VENDOR", Amount: decimal.RequireFromString("-899.00")},
	}
	txns := []model.Transaction{
		{ID: "t1", Date: day("2025-03-10"), Description: "Uber Trip", Amount: decimal.RequireFromString("-23.50")},
		{ID: "t2", Date: day("2025-03-01"), Description: "Rent", Amount: decimal.RequireFromString("-450.00")},
	}

	result := Match(lines, txns)

	require.Len(t, result.Exact, 1)
	assert.Equal(t, "b1", result.Exact[0].Line.Reference)
	assert.Equal(t, "t1", result.Exact[0].Transaction.ID)

	assert.Empty(t, result.Fuzzy)
	require.Len(t, result.UnmatchedBank, 1)
	assert.Equal(t, "b2", result.UnmatchedBank[0].Reference)
	require.Len(t, result.UnmatchedApp, 1)
	assert.Equal(t, "t2", result.UnmatchedApp[0].ID)
}

func TestMatch_EachSideUsedOnce(t *testing.T) {
	// Two bank lines could both match the single transaction; only the
	// better-scoring one may claim it.
	lines := []model.BankLine{
		{Reference: "b1", Date: day("2025-03-10"), Description: "GYM MEMBERSHIP", Amount: decimal.RequireFromString("-35.00")},
		{Reference: "b2", Date: day("2025-03-11"), Description: "GYM MEMBERSHIP", Amount: decimal.RequireFromString("-35.00")},
	}
	txns := []model.Transaction{
		{ID: "t1", Date: day("2025-03-10"), Description: "Gym membership", Amount: decimal.RequireFromString("-35.00")},
	}

	result := Match(lines, txns)

	require.Len(t, result.Exact, 1)
	assert.Equal(t, "b1", result.Exact[0].Line.Reference)
	require.Len(t, result.UnmatchedBank, 1)
	assert.Equal(t, "b2", result.UnmatchedBank[0].Reference)
	assert.Empty(t, result.UnmatchedApp)
}
