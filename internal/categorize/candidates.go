package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// CandidateService resolves pending categorization candidates. Applied and
// Rejected are terminal: resolving a candidate twice fails.
type CandidateService struct {
	storage   service.Storage
	overrides MappingRecorder
	logger    *slog.Logger
}

// NewCandidateService creates a candidate review service. The recorder may
// be nil when no bank-category mapper is configured.
func NewCandidateService(storage service.Storage, overrides MappingRecorder, logger *slog.Logger) *CandidateService {
	return &CandidateService{storage: storage, overrides: overrides, logger: logger}
}

// Apply commits a pending candidate's category to its transaction.
func (s *CandidateService) Apply(ctx context.Context, userID string, candidateID int64) error {
	candidate, err := s.pending(ctx, userID, candidateID)
	if err != nil {
		return err
	}

	if err := s.storage.ApplyCategory(ctx, candidate.TransactionID, candidate.CategoryID); err != nil {
		return fmt.Errorf("failed to apply category: %w", err)
	}

	return s.resolve(ctx, candidate, model.CandidateApplied)
}

// Reject marks a pending candidate as rejected without touching the
// transaction. Rejecting a bank-category suggestion counts as an override
// against the mapping that produced it.
func (s *CandidateService) Reject(ctx context.Context, userID string, candidateID int64) error {
	candidate, err := s.pending(ctx, userID, candidateID)
	if err != nil {
		return err
	}
	if err := s.resolve(ctx, candidate, model.CandidateRejected); err != nil {
		return err
	}

	if candidate.Method == model.MethodBankCategory && s.overrides != nil {
		s.recordOverride(ctx, userID, candidate)
	}
	return nil
}

// recordOverride bumps the override counter of the mapping behind a rejected
// bank-category candidate. Counter failures are logged, not surfaced: the
// rejection itself already succeeded.
func (s *CandidateService) recordOverride(ctx context.Context, userID string, candidate *model.CategorizationCandidate) {
	txn, err := s.storage.GetTransactionByID(ctx, candidate.TransactionID)
	if err != nil || txn.BankCategory == "" {
		return
	}
	mapping, err := s.storage.GetMappingByNormalizedName(ctx, userID, txn.BankProvider,
		model.NormalizeBankCategory(txn.BankCategory))
	if err != nil || mapping == nil {
		return
	}
	if err := s.overrides.RecordOverride(ctx, mapping); err != nil {
		s.logger.Warn("failed to record mapping override",
			"mapping_id", mapping.ID, "error", err)
	}
}

// pending loads a candidate, checking ownership and the terminal-state
// invariant.
func (s *CandidateService) pending(ctx context.Context, userID string, candidateID int64) (*model.CategorizationCandidate, error) {
	candidate, err := s.storage.GetCandidateByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate.UserID != userID {
		return nil, common.ErrNotFound
	}
	if candidate.Status != model.CandidatePending {
		return nil, fmt.Errorf("%w: candidate %d is %s", common.ErrCandidateResolved, candidateID, candidate.Status)
	}
	return candidate, nil
}

func (s *CandidateService) resolve(ctx context.Context, candidate *model.CategorizationCandidate, status model.CandidateStatus) error {
	now := time.Now()
	candidate.Status = status
	candidate.ResolvedAt = &now
	if err := s.storage.UpdateCandidate(ctx, candidate); err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}

	s.logger.Info("candidate resolved",
		"candidate_id", candidate.ID,
		"transaction_id", candidate.TransactionID,
		"status", status)
	return nil
}
