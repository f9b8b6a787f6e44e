package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/recon"
)

func (s *Server) handleListReconciliations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.storage.GetReconciliations(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]reconciliationDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toReconciliationDTO(rec)
	}
	respondJSON(w, http.StatusOK, map[string]any{"reconciliations": dtos})
}

func (s *Server) handleCreateReconciliation(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.unavailable(w, "reconciliation")
		return
	}
	var req struct {
		AccountID   string    `json:"account_id"`
		PeriodStart time.Time `json:"period_start"`
		PeriodEnd   time.Time `json:"period_end"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	rec, err := s.recon.Create(r.Context(), userID(r), req.AccountID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toReconciliationDTO(*rec))
}

func (s *Server) handleGetReconciliation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ownedReconciliation(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	items, err := s.storage.GetReconciliationItems(r.Context(), rec.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	itemDTOs := make([]reconciliationItemDTO, len(items))
	for i, item := range items {
		itemDTOs[i] = toReconciliationItemDTO(item)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reconciliation": toReconciliationDTO(*rec),
		"items":          itemDTOs,
	})
}

type bankLineRequest struct {
	Date        time.Time       `json:"date"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
}

func (s *Server) handleAutoMatch(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.unavailable(w, "reconciliation")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req struct {
		Lines []bankLineRequest `json:"lines"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if len(req.Lines) == 0 {
		s.badRequest(w, "lines is required")
		return
	}
	lines := make([]model.BankLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = model.BankLine{
			Date:        l.Date,
			Reference:   l.Reference,
			Description: l.Description,
			Category:    l.Category,
			Amount:      l.Amount,
		}
	}

	result, err := s.recon.AutoMatch(r.Context(), userID(r), id, lines)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"exact":          len(result.Exact),
		"fuzzy":          len(result.Fuzzy),
		"unmatched_bank": len(result.UnmatchedBank),
		"unmatched_app":  len(result.UnmatchedApp),
	})
}

func (s *Server) handleManualMatch(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.unavailable(w, "reconciliation")
		return
	}
	id, itemID, err := pathItemIDs(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.TransactionID == "" {
		s.badRequest(w, "transaction_id is required")
		return
	}

	if err := s.recon.ManualMatch(r.Context(), userID(r), id, itemID, req.TransactionID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.unavailable(w, "reconciliation")
		return
	}
	id, itemID, err := pathItemIDs(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.recon.Unlink(r.Context(), userID(r), id, itemID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleBulkApprove(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.unavailable(w, "reconciliation")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req struct {
		Threshold *float64 `json:"threshold"`
		ItemIDs   []int64  `json:"item_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Threshold == nil && len(req.ItemIDs) == 0 {
		s.badRequest(w, "either threshold or item_ids is required")
		return
	}

	summary, err := s.recon.BulkApprove(r.Context(), userID(r), id, recon.BulkApproveRequest{
		Threshold: req.Threshold,
		ItemIDs:   req.ItemIDs,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	// Approvals may have categorized transactions; refresh the backlog.
	if s.jobs != nil && summary.Approved > 0 {
		s.jobs.EnqueueRecategorization(userID(r))
	}
	s.respondBulkApproveSummary(w, summary)
}

func (s *Server) handleImportUnmatched(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.unavailable(w, "reconciliation")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req struct {
		ItemIDs []int64 `json:"item_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if len(req.ItemIDs) == 0 {
		s.badRequest(w, "item_ids is required")
		return
	}

	summary, err := s.recon.ImportUnmatched(r.Context(), userID(r), id, req.ItemIDs)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if s.jobs != nil && summary.Approved > 0 {
		s.jobs.EnqueueRecategorization(userID(r))
	}
	s.respondBulkApproveSummary(w, summary)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.unavailable(w, "reconciliation")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	if err := s.recon.Finalize(r.Context(), userID(r), id, force); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "finalized"})
}

func (s *Server) respondBulkApproveSummary(w http.ResponseWriter, summary *recon.BulkApproveSummary) {
	status := http.StatusOK
	if !summary.Success() {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, map[string]any{
		"approved":    summary.Approved,
		"enriched":    summary.Enriched,
		"categorized": summary.Categorized,
		"skipped":     summary.Skipped,
		"errors":      summary.Errors,
	})
}

func (s *Server) ownedReconciliation(r *http.Request) (*model.Reconciliation, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	rec, err := s.storage.GetReconciliationByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID(r) {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, common.NewUserError("invalid "+name, err)
	}
	return id, nil
}

func pathItemIDs(r *http.Request) (int64, int64, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		return 0, 0, err
	}
	return id, itemID, nil
}
