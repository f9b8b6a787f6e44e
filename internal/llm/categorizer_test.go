package llm

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/model"
)

// stubClient returns canned replies in order.
type stubClient struct {
	replies []string
	errs    []error
	calls   int
}

func (s *stubClient) Complete(_ context.Context, _, _ string) (string, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var reply string
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return reply, err
}

func testCategorizer(client Client) *Categorizer {
	return NewCategorizerWithClient(client, Config{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		RateLimit:  6000,
	}, slog.Default())
}

func TestCategorizer_CategorizeTransactions(t *testing.T) {
	client := &stubClient{replies: []string{
		"```json\n[{\"transaction_id\": \"t1\", \"category\": \"Groceries\", \"confidence\": 0.85, \"reason\": \"supermarket\"}," +
			"{\"transaction_id\": \"t2\", \"category\": \"Nonexistent\", \"confidence\": 0.9}]\n```",
	}}
	c := testCategorizer(client)
	defer c.Close()

	txns := []model.Transaction{
		{ID: "t1", Description: "COUNTDOWN AUCKLAND", Amount: decimal.RequireFromString("-55.10"), Date: time.Now()},
		{ID: "t2", Description: "MYSTERY SHOP", Amount: decimal.RequireFromString("-12.00"), Date: time.Now()},
	}
	categories := []model.Category{{ID: 1, Name: "Groceries"}, {ID: 2, Name: "Transport"}}

	got, err := c.CategorizeTransactions(context.Background(), txns, categories)
	require.NoError(t, err)

	// The unknown-category suggestion is dropped.
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TransactionID)
	assert.Equal(t, "Groceries", got[0].Category)
	assert.InDelta(t, 0.85, got[0].Confidence, 0.001)
}

func TestCategorizer_CategorizeTransactions_EmptyInput(t *testing.T) {
	c := testCategorizer(&stubClient{})
	defer c.Close()

	got, err := c.CategorizeTransactions(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCategorizer_SuggestBankCategoryMapping(t *testing.T) {
	client := &stubClient{replies: []string{
		`Here you go: {"category": "Dining Out", "confidence": 1.4, "reason": "restaurants"}`,
	}}
	c := testCategorizer(client)
	defer c.Close()

	got, err := c.SuggestBankCategoryMapping(context.Background(), "RESTAURANTS_FAST_FOOD", "plaid",
		[]model.Category{{ID: 3, Name: "Dining Out"}})
	require.NoError(t, err)
	assert.Equal(t, "Dining Out", got.Category)
	assert.Equal(t, 1.0, got.Confidence, "confidence is clamped to [0,1]")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped array", `Sure! [1,2,3] Hope that helps.`, `[1,2,3]`},
		{"no json", `nothing here`, `nothing here`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.reply))
		})
	}
}
