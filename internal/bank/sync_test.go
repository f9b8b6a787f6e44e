package bank

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
	"github.com/digaomatias/mymascada/internal/storage"
)

type stubProvider struct {
	transactions []model.Transaction
	fetchErr     error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) CreateLinkToken(_ context.Context, _ string) (string, error) {
	return "link-token", nil
}

func (p *stubProvider) ExchangePublicToken(_ context.Context, _ string) (string, string, error) {
	return "access-token", "item-1", nil
}

func (p *stubProvider) FetchTransactions(_ context.Context, _ string, _, _ time.Time) ([]model.Transaction, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.transactions, nil
}

func seedConnection(t *testing.T, store service.Storage) *model.BankConnection {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, &model.Account{
		ID: "acct-1", UserID: "user-1", Name: "Everyday", Type: model.AccountChecking,
	}))
	conn := &model.BankConnection{
		ID: "conn-1", UserID: "user-1", AccountID: "acct-1",
		Provider: "stub", AccessToken: "access-token",
		Status: model.ConnectionActive,
	}
	require.NoError(t, store.CreateBankConnection(ctx, conn))
	return conn
}

func bankTxn(description string, amount float64, date time.Time) model.Transaction {
	return model.Transaction{
		Date:          date,
		Description:   description,
		Amount:        decimal.NewFromFloat(amount),
		Status:        model.StatusCleared,
		Source:        model.SourceBankAPI,
		BankProvider:  "stub",
		BankReference: "ref-" + description,
	}
}

func TestSyncImportsAndSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	provider := &stubProvider{transactions: []model.Transaction{
		bankTxn("COUNTDOWN", -54.20, day),
		bankTxn("BP CONNECT", -80.00, day.AddDate(0, 0, 1)),
	}}
	syncer := NewSyncer(store, nil, slog.Default(), provider)
	seedConnection(t, store)

	result, err := syncer.Sync(ctx, "user-1", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)

	// Second run fetches the same data and imports nothing.
	result, err = syncer.Sync(ctx, "user-1", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 2, result.Skipped)

	txns, err := store.GetTransactions(ctx, "user-1", service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	conn, err := store.GetBankConnectionByID(ctx, "conn-1")
	require.NoError(t, err)
	assert.NotNil(t, conn.LastSyncedAt)

	logs, err := store.GetSyncLogs(ctx, "conn-1")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestSyncRecordsFailureAndMarksConnection(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	provider := &stubProvider{fetchErr: errors.New("provider unavailable")}
	syncer := NewSyncer(store, nil, slog.Default(), provider)
	seedConnection(t, store)

	_, err := syncer.Sync(ctx, "user-1", "conn-1")
	require.Error(t, err)

	conn, err := store.GetBankConnectionByID(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionErrored, conn.Status)

	logs, err := store.GetSyncLogs(ctx, "conn-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Error, "provider unavailable")
}

func TestSyncRejectsForeignConnection(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	syncer := NewSyncer(store, nil, slog.Default(), &stubProvider{})
	seedConnection(t, store)

	_, err := syncer.Sync(ctx, "user-2", "conn-1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCompleteLinkCreatesConnection(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	syncer := NewSyncer(store, nil, slog.Default(), &stubProvider{})
	require.NoError(t, store.CreateAccount(ctx, &model.Account{
		ID: "acct-1", UserID: "user-1", Name: "Everyday", Type: model.AccountChecking,
	}))

	conn, err := syncer.CompleteLink(ctx, "user-1", "acct-1", "stub", "public-token")
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionActive, conn.Status)
	assert.Equal(t, "access-token", conn.AccessToken)
	assert.Equal(t, "item-1", conn.ProviderItem)

	// Linking someone else's account is refused.
	_, err = syncer.CompleteLink(ctx, "user-2", "acct-1", "stub", "public-token")
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestSyncUnknownProvider(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	syncer := NewSyncer(store, nil, slog.Default())

	_, err := syncer.CreateLinkToken(ctx, "user-1", "nope")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
