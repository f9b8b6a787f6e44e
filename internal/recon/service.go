package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// candidateWindowDays pads the statement period when collecting system
// transactions, to catch postings that settle late.
const candidateWindowDays = 7

// Service manages reconciliation lifecycles over the storage boundary.
type Service struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewService creates a reconciliation service.
func NewService(storage service.Storage, logger *slog.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

// Create opens a reconciliation for a statement period on one account.
func (s *Service) Create(ctx context.Context, userID, accountID string, periodStart, periodEnd time.Time) (*model.Reconciliation, error) {
	if periodEnd.Before(periodStart) {
		return nil, common.NewUserError("period end is before period start", common.ErrInvalidConfig)
	}

	account, err := s.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID && !account.IsShared {
		return nil, common.ErrNotFound
	}

	rec := &model.Reconciliation{
		UserID:      userID,
		AccountID:   accountID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      model.ReconciliationOpen,
	}
	if err := s.storage.CreateReconciliation(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create reconciliation: %w", err)
	}
	return rec, nil
}

// AutoMatch scores the statement lines against the account's transactions in
// the padded period and persists the resulting items. Exact and fuzzy pairs
// become matched items awaiting approval; everything else becomes an
// unmatched item.
func (s *Service) AutoMatch(ctx context.Context, userID string, reconciliationID int64, lines []model.BankLine) (*MatchResult, error) {
	rec, err := s.open(ctx, userID, reconciliationID)
	if err != nil {
		return nil, err
	}

	start := rec.PeriodStart.AddDate(0, 0, -candidateWindowDays)
	end := rec.PeriodEnd.AddDate(0, 0, candidateWindowDays)
	txns, err := s.storage.GetTransactions(ctx, userID, service.TransactionFilter{
		AccountID: rec.AccountID,
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	result := Match(lines, txns)

	items := make([]model.ReconciliationItem, 0, len(result.Exact)+len(result.Fuzzy)+len(result.UnmatchedBank)+len(result.UnmatchedApp))
	for _, p := range result.Exact {
		items = append(items, matchedItem(reconciliationID, p, model.MatchExact))
	}
	for _, p := range result.Fuzzy {
		items = append(items, matchedItem(reconciliationID, p, model.MatchFuzzy))
	}
	for _, line := range result.UnmatchedBank {
		items = append(items, bankItem(reconciliationID, line))
	}
	for i := range result.UnmatchedApp {
		txnID := result.UnmatchedApp[i].ID
		items = append(items, model.ReconciliationItem{
			ReconciliationID: reconciliationID,
			Type:             model.ItemUnmatchedApp,
			TransactionID:    &txnID,
		})
	}

	if err := s.storage.CreateReconciliationItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to persist reconciliation items: %w", err)
	}

	s.logger.Info("auto-match finished",
		"reconciliation_id", reconciliationID,
		"exact", len(result.Exact),
		"fuzzy", len(result.Fuzzy),
		"unmatched_bank", len(result.UnmatchedBank),
		"unmatched_app", len(result.UnmatchedApp))

	return &result, nil
}

// ManualMatch pairs an unmatched bank item with a system transaction. The
// transaction's unmatched-app item, if present, is absorbed into the match.
func (s *Service) ManualMatch(ctx context.Context, userID string, reconciliationID, itemID int64, transactionID string) error {
	if _, err := s.open(ctx, userID, reconciliationID); err != nil {
		return err
	}

	item, err := s.storage.GetReconciliationItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.ReconciliationID != reconciliationID || item.Type != model.ItemUnmatchedBank {
		return common.NewUserError("item is not an unmatched bank line", common.ErrItemNotMatched)
	}

	txn, err := s.storage.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.UserID != userID {
		return common.ErrNotFound
	}

	item.Type = model.ItemMatched
	item.Method = model.MatchManual
	item.Confidence = 1.0
	item.TransactionID = &txn.ID
	if err := s.storage.UpdateReconciliationItem(ctx, item); err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	return s.dropUnmatchedAppItem(ctx, reconciliationID, transactionID)
}

// Unlink reverses a match, splitting the item back into an unmatched bank
// line and an unmatched app transaction. Unlike candidates, matches are
// reversible.
func (s *Service) Unlink(ctx context.Context, userID string, reconciliationID, itemID int64) error {
	if _, err := s.open(ctx, userID, reconciliationID); err != nil {
		return err
	}

	item, err := s.storage.GetReconciliationItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.ReconciliationID != reconciliationID || item.Type != model.ItemMatched {
		return common.NewUserError("item is not matched", common.ErrItemNotMatched)
	}

	transactionID := item.TransactionID

	item.Type = model.ItemUnmatchedBank
	item.Method = ""
	item.Confidence = 0
	item.TransactionID = nil
	if err := s.storage.UpdateReconciliationItem(ctx, item); err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	if transactionID == nil {
		return nil
	}

	// Restore the transaction's side of the split.
	txn, err := s.storage.GetTransactionByID(ctx, *transactionID)
	if err != nil {
		return err
	}
	if txn.Status == model.StatusReconciled {
		txn.Status = model.StatusCleared
		if err := s.storage.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("failed to restore transaction status: %w", err)
		}
	}

	return s.storage.CreateReconciliationItems(ctx, []model.ReconciliationItem{{
		ReconciliationID: reconciliationID,
		Type:             model.ItemUnmatchedApp,
		TransactionID:    transactionID,
	}})
}

// BulkApproveRequest selects matched items either by a confidence threshold
// or by explicit item ids.
type BulkApproveRequest struct {
	Threshold *float64
	ItemIDs   []int64
}

// BulkApproveSummary is the partial-success report of a bulk approval.
type BulkApproveSummary struct {
	Errors      []string
	Approved    int
	Enriched    int
	Categorized int
	Skipped     int
}

// Success reports whether every selected item was approved.
func (s *BulkApproveSummary) Success() bool { return len(s.Errors) == 0 }

// BulkApprove approves matched items, enriching each underlying transaction
// with the bank metadata and applying a stored bank-category mapping when the
// transaction is uncategorized. Items that fail are reported in the summary;
// the rest proceed.
func (s *Service) BulkApprove(ctx context.Context, userID string, reconciliationID int64, req BulkApproveRequest) (*BulkApproveSummary, error) {
	rec, err := s.open(ctx, userID, reconciliationID)
	if err != nil {
		return nil, err
	}

	items, err := s.storage.GetReconciliationItems(ctx, reconciliationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}

	wanted := make(map[int64]bool, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		wanted[id] = true
	}

	summary := &BulkApproveSummary{}
	for i := range items {
		item := &items[i]
		if item.Type != model.ItemMatched {
			if wanted[item.ID] {
				summary.Errors = append(summary.Errors, fmt.Sprintf("item %d is not matched", item.ID))
			}
			continue
		}
		switch {
		case len(req.ItemIDs) > 0:
			if !wanted[item.ID] {
				continue
			}
		case req.Threshold != nil:
			if item.Confidence < *req.Threshold && item.Method != model.MatchManual {
				summary.Skipped++
				continue
			}
		}

		if err := s.approveItem(ctx, rec, item, summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %d: %v", item.ID, err))
		}
	}

	return summary, nil
}

// ImportUnmatched creates system transactions from unmatched bank items and
// converts each item into a manual match against the new transaction.
func (s *Service) ImportUnmatched(ctx context.Context, userID string, reconciliationID int64, itemIDs []int64) (*BulkApproveSummary, error) {
	rec, err := s.open(ctx, userID, reconciliationID)
	if err != nil {
		return nil, err
	}

	summary := &BulkApproveSummary{}
	for _, id := range itemIDs {
		item, err := s.storage.GetReconciliationItemByID(ctx, id)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %d: %v", id, err))
			continue
		}
		if item.ReconciliationID != reconciliationID || item.Type != model.ItemUnmatchedBank {
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %d is not an unmatched bank line", id))
			continue
		}

		txn := model.Transaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			AccountID:     rec.AccountID,
			Date:          item.BankDate,
			Description:   item.BankDescription,
			Amount:        item.BankAmount,
			Status:        model.StatusCleared,
			Source:        model.SourceImport,
			BankCategory:  item.BankCategory,
			BankReference: item.BankReference,
		}
		txn.Hash = txn.GenerateHash()
		if err := s.storage.SaveTransactions(ctx, []model.Transaction{txn}); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %d: %v", id, err))
			continue
		}

		item.Type = model.ItemMatched
		item.Method = model.MatchManual
		item.Confidence = 1.0
		item.TransactionID = &txn.ID
		if err := s.storage.UpdateReconciliationItem(ctx, item); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %d: %v", id, err))
			continue
		}
		summary.Approved++
	}

	return summary, nil
}

// Finalize closes a reconciliation. Unresolved items block finalization
// unless force is set.
func (s *Service) Finalize(ctx context.Context, userID string, reconciliationID int64, force bool) error {
	rec, err := s.open(ctx, userID, reconciliationID)
	if err != nil {
		return err
	}

	if !force {
		items, err := s.storage.GetReconciliationItems(ctx, reconciliationID)
		if err != nil {
			return fmt.Errorf("failed to load items: %w", err)
		}
		unresolved := 0
		for _, item := range items {
			if item.Type != model.ItemMatched {
				unresolved++
			}
		}
		if unresolved > 0 {
			return common.NewUserError(
				fmt.Sprintf("%d unresolved items remain; use force to finalize anyway", unresolved),
				common.ErrItemNotMatched)
		}
	}

	now := time.Now()
	rec.Status = model.ReconciliationFinalized
	rec.FinalizedAt = &now
	return s.storage.UpdateReconciliation(ctx, rec)
}

// approveItem enriches the matched transaction and reconciles it.
func (s *Service) approveItem(ctx context.Context, rec *model.Reconciliation, item *model.ReconciliationItem, summary *BulkApproveSummary) error {
	if item.TransactionID == nil {
		return errors.New("matched item has no transaction")
	}

	txn, err := s.storage.GetTransactionByID(ctx, *item.TransactionID)
	if err != nil {
		return err
	}

	enriched := false
	if item.BankReference != "" && txn.BankReference == "" {
		txn.BankReference = item.BankReference
		enriched = true
	}
	if item.BankCategory != "" && txn.BankCategory == "" {
		txn.BankCategory = item.BankCategory
		enriched = true
	}

	if !txn.IsCategorized() && txn.BankCategory != "" {
		normalized := model.NormalizeBankCategory(txn.BankCategory)
		mapping, merr := s.storage.GetMappingByNormalizedName(ctx, rec.UserID, txn.BankProvider, normalized)
		if merr != nil && !errors.Is(merr, common.ErrNotFound) {
			return merr
		}
		if mapping != nil && !mapping.IsExcluded {
			categoryID := mapping.CategoryID
			txn.CategoryID = &categoryID
			summary.Categorized++
		}
	}

	txn.Status = model.StatusReconciled
	if err := s.storage.UpdateTransaction(ctx, txn); err != nil {
		return err
	}

	summary.Approved++
	if enriched {
		summary.Enriched++
	}
	return nil
}

// open loads a reconciliation, checking ownership and that it is still open.
func (s *Service) open(ctx context.Context, userID string, reconciliationID int64) (*model.Reconciliation, error) {
	rec, err := s.storage.GetReconciliationByID(ctx, reconciliationID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, common.ErrNotFound
	}
	if rec.Status == model.ReconciliationFinalized {
		return nil, common.ErrReconciliationFinalized
	}
	return rec, nil
}

func (s *Service) dropUnmatchedAppItem(ctx context.Context, reconciliationID int64, transactionID string) error {
	items, err := s.storage.GetReconciliationItems(ctx, reconciliationID)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}
	for _, item := range items {
		if item.Type == model.ItemUnmatchedApp && item.TransactionID != nil && *item.TransactionID == transactionID {
			return s.storage.DeleteReconciliationItem(ctx, item.ID)
		}
	}
	return nil
}

func matchedItem(reconciliationID int64, p Pairing, method model.MatchMethod) model.ReconciliationItem {
	txnID := p.Transaction.ID
	return model.ReconciliationItem{
		ReconciliationID: reconciliationID,
		Type:             model.ItemMatched,
		Method:           method,
		Confidence:       p.Score.Composite,
		TransactionID:    &txnID,
		BankReference:    p.Line.Reference,
		BankDescription:  p.Line.Description,
		BankCategory:     p.Line.Category,
		BankDate:         p.Line.Date,
		BankAmount:       p.Line.Amount,
	}
}

func bankItem(reconciliationID int64, line model.BankLine) model.ReconciliationItem {
	return model.ReconciliationItem{
		ReconciliationID: reconciliationID,
		Type:             model.ItemUnmatchedBank,
		BankReference:    line.Reference,
		BankDescription:  line.Description,
		BankCategory:     line.Category,
		BankDate:         line.Date,
		BankAmount:       line.Amount,
	}
}
