package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digaomatias/mymascada/internal/categorize"
	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// Default lookback when a connection has never synced.
const initialSyncDays = 90

// Categorizer runs newly imported transactions through the categorization
// pipeline. Satisfied by categorize.Chain.
type Categorizer interface {
	Run(ctx context.Context, userID string, txns []model.Transaction) (categorize.Summary, error)
}

// Syncer links accounts to providers and imports their transactions.
type Syncer struct {
	storage     service.Storage
	categorizer Categorizer
	logger      *slog.Logger
	providers   map[string]Provider
}

// NewSyncer creates a sync service. categorizer may be nil to import without
// auto-categorization.
func NewSyncer(storage service.Storage, categorizer Categorizer, logger *slog.Logger, providers ...Provider) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Syncer{
		storage:     storage,
		categorizer: categorizer,
		logger:      logger.With("component", "bank_sync"),
		providers:   byName,
	}
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	ConnectionID string
	Imported     int
	Skipped      int
	AutoApplied  int
	Candidates   int
}

// CreateLinkToken starts the linking flow for a provider.
func (s *Syncer) CreateLinkToken(ctx context.Context, userID, providerName string) (string, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	return provider.CreateLinkToken(ctx, userID)
}

// CompleteLink exchanges a public token and stores the resulting connection.
func (s *Syncer) CompleteLink(ctx context.Context, userID, accountID, providerName, publicToken string) (*model.BankConnection, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	account, err := s.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, fmt.Errorf("account %s: %w", accountID, common.ErrAccessDenied)
	}

	accessToken, itemID, err := provider.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}

	conn := &model.BankConnection{
		ID:           uuid.NewString(),
		UserID:       userID,
		AccountID:    accountID,
		Provider:     providerName,
		ProviderItem: itemID,
		AccessToken:  accessToken,
		Status:       model.ConnectionActive,
	}
	if err := s.storage.CreateBankConnection(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("bank connection linked",
		"connection_id", conn.ID, "provider", providerName, "account_id", accountID)
	return conn, nil
}

// Sync imports new transactions for one connection. Already-imported
// transactions are skipped by hash. The run is recorded in a sync log even
// on failure.
func (s *Syncer) Sync(ctx context.Context, userID, connectionID string) (*SyncResult, error) {
	conn, err := s.storage.GetBankConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, fmt.Errorf("bank connection %s: %w", connectionID, common.ErrNotFound)
	}
	if conn.Status != model.ConnectionActive {
		return nil, fmt.Errorf("bank connection %s is %s: %w",
			connectionID, conn.Status, common.ErrBankConnection)
	}

	provider, err := s.provider(conn.Provider)
	if err != nil {
		return nil, err
	}

	syncLog := &model.BankSyncLog{ConnectionID: conn.ID, StartedAt: time.Now()}
	if err := s.storage.CreateSyncLog(ctx, syncLog); err != nil {
		return nil, err
	}

	result, syncErr := s.run(ctx, conn, provider)

	now := time.Now()
	syncLog.FinishedAt = &now
	if result != nil {
		syncLog.Imported = result.Imported
		syncLog.Skipped = result.Skipped
	}
	if syncErr != nil {
		syncLog.Error = syncErr.Error()
		conn.Status = model.ConnectionErrored
	} else {
		conn.LastSyncedAt = &now
	}
	if err := s.storage.UpdateSyncLog(ctx, syncLog); err != nil {
		s.logger.Error("failed to update sync log", "error", err)
	}
	if err := s.storage.UpdateBankConnection(ctx, conn); err != nil {
		s.logger.Error("failed to update connection", "error", err)
	}

	if syncErr != nil {
		return nil, syncErr
	}
	result.ConnectionID = conn.ID
	return result, nil
}

// SyncAll syncs every active connection for a user, continuing past
// per-connection failures.
func (s *Syncer) SyncAll(ctx context.Context, userID string) ([]SyncResult, error) {
	conns, err := s.storage.GetActiveBankConnections(ctx, userID)
	if err != nil {
		return nil, err
	}

	var results []SyncResult
	for _, conn := range conns {
		result, err := s.Sync(ctx, userID, conn.ID)
		if err != nil {
			s.logger.Error("connection sync failed",
				"connection_id", conn.ID, "error", err)
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

func (s *Syncer) run(ctx context.Context, conn *model.BankConnection, provider Provider) (*SyncResult, error) {
	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -initialSyncDays)
	if conn.LastSyncedAt != nil {
		// Small overlap so late-posting transactions are not missed.
		startDate = conn.LastSyncedAt.AddDate(0, 0, -3)
	}

	fetched, err := provider.FetchTransactions(ctx, conn.AccessToken, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return &SyncResult{}, nil
	}

	// Stamp ownership and hash before dedup.
	hashes := make([]string, 0, len(fetched))
	for i := range fetched {
		fetched[i].ID = uuid.NewString()
		fetched[i].UserID = conn.UserID
		fetched[i].AccountID = conn.AccountID
		fetched[i].Hash = fetched[i].GenerateHash()
		hashes = append(hashes, fetched[i].Hash)
	}

	seen, err := s.storage.GetTransactionsByHash(ctx, conn.AccountID, hashes)
	if err != nil {
		return nil, err
	}

	fresh := make([]model.Transaction, 0, len(fetched))
	for _, txn := range fetched {
		if !seen[txn.Hash] {
			fresh = append(fresh, txn)
		}
	}

	result := &SyncResult{
		Imported: len(fresh),
		Skipped:  len(fetched) - len(fresh),
	}
	if len(fresh) == 0 {
		return result, nil
	}

	if err := s.storage.SaveTransactions(ctx, fresh); err != nil {
		return nil, err
	}

	if s.categorizer != nil {
		summary, err := s.categorizer.Run(ctx, conn.UserID, fresh)
		if err != nil {
			// Imports stand even when categorization fails.
			s.logger.Error("auto-categorization failed", "error", err)
		} else {
			result.AutoApplied = summary.AutoApplied
			result.Candidates = summary.Candidates
		}
	}

	s.logger.Info("sync complete", "connection_id", conn.ID,
		"imported", result.Imported, "skipped", result.Skipped,
		"auto_applied", result.AutoApplied)
	return result, nil
}

func (s *Syncer) provider(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", name, common.ErrInvalidConfig)
	}
	return p, nil
}
