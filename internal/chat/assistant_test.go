package chat

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/storage"
)

type stubCompleter struct {
	lastSystem string
	lastPrompt string
	reply      string
}

func (s *stubCompleter) Chat(_ context.Context, system, prompt string) (string, error) {
	s.lastSystem = system
	s.lastPrompt = prompt
	return s.reply, nil
}

func TestAskGroundsPromptInUserData(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	require.NoError(t, store.CreateAccount(ctx, &model.Account{
		ID: "acct-1", UserID: "user-1", Name: "Everyday", Type: model.AccountChecking, Currency: "NZD",
	}))
	cat := &model.Category{UserID: "user-1", Name: "Groceries", IsActive: true}
	require.NoError(t, store.CreateCategory(ctx, cat))
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{{
		ID: "t1", UserID: "user-1", AccountID: "acct-1",
		Date:        time.Now().AddDate(0, 0, -2),
		Description: "COUNTDOWN AUCKLAND",
		Amount:      decimal.NewFromFloat(-54.20),
		Status:      model.StatusCleared,
		Source:      model.SourceCsvImport,
		CategoryID:  &cat.ID,
	}}))

	completer := &stubCompleter{reply: "You spent $54.20 on groceries."}
	assistant := NewAssistant(store, completer, slog.Default())

	answer, err := assistant.Ask(ctx, "user-1", "How much did I spend on groceries?", nil)
	require.NoError(t, err)
	assert.Equal(t, "You spent $54.20 on groceries.", answer)

	assert.Contains(t, completer.lastPrompt, "COUNTDOWN AUCKLAND")
	assert.Contains(t, completer.lastPrompt, "Groceries")
	assert.Contains(t, completer.lastPrompt, "Everyday")
	assert.Contains(t, completer.lastPrompt, "How much did I spend on groceries?")
}

func TestAskTrimsHistory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	completer := &stubCompleter{reply: "ok"}
	assistant := NewAssistant(store, completer, slog.Default())

	history := make([]Message, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, Message{Role: "user", Content: "old question"})
	}
	history[9].Content = "dropped turn"

	_, err := assistant.Ask(ctx, "user-1", "latest question", history)
	require.NoError(t, err)
	assert.NotContains(t, completer.lastPrompt, "dropped turn")
	assert.Contains(t, completer.lastPrompt, "latest question")
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	assistant := NewAssistant(storage.NewMemoryStorage(), &stubCompleter{}, slog.Default())
	_, err := assistant.Ask(context.Background(), "user-1", "   ", nil)
	assert.Error(t, err)
}
