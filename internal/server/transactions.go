package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

const defaultPageSize = 50

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	q := r.URL.Query()

	filter := service.TransactionFilter{
		AccountID: q.Get("account_id"),
		Status:    model.TransactionStatus(q.Get("status")),
		Search:    q.Get("search"),
		Limit:     defaultPageSize,
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			s.badRequest(w, "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.badRequest(w, "invalid start_date, want YYYY-MM-DD")
			return
		}
		filter.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.badRequest(w, "invalid end_date, want YYYY-MM-DD")
			return
		}
		filter.EndDate = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.badRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	txns, err := s.storage.GetTransactions(r.Context(), uid, filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": toTransactionDTOs(txns)})
}

type createTransactionRequest struct {
	AccountID   string          `json:"account_id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CategoryID  *int            `json:"category_id"`
}

type createTransactionsRequest struct {
	Transactions []createTransactionRequest `json:"transactions"`
}

func (s *Server) handleCreateTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	var req createTransactionsRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if len(req.Transactions) == 0 {
		s.badRequest(w, "transactions cannot be empty")
		return
	}

	txns := make([]model.Transaction, 0, len(req.Transactions))
	for i, in := range req.Transactions {
		if in.AccountID == "" || in.Description == "" {
			s.badRequest(w, "account_id and description are required")
			return
		}
		date, err := time.Parse("2006-01-02", in.Date)
		if err != nil {
			s.badRequest(w, "invalid date at index "+strconv.Itoa(i)+", want YYYY-MM-DD")
			return
		}

		account, err := s.storage.GetAccountByID(r.Context(), in.AccountID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if account.UserID != uid && !account.IsShared {
			s.respondError(w, common.ErrAccessDenied)
			return
		}

		txn := model.Transaction{
			ID:          uuid.NewString(),
			UserID:      uid,
			AccountID:   in.AccountID,
			Date:        date,
			Description: in.Description,
			Amount:      in.Amount,
			Status:      model.StatusCleared,
			Source:      model.SourceManual,
			CategoryID:  in.CategoryID,
		}
		txn.Hash = txn.GenerateHash()
		txns = append(txns, txn)
	}

	if err := s.storage.SaveTransactions(r.Context(), txns); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"transactions": toTransactionDTOs(txns)})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ownedTransaction(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionDTO(*txn))
}

type updateTransactionRequest struct {
	UserDescription *string          `json:"user_description"`
	CategoryID      *int             `json:"category_id"`
	ClearCategory   bool             `json:"clear_category"`
	Status          *string          `json:"status"`
	Amount          *decimal.Decimal `json:"amount"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ownedTransaction(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req updateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	if req.UserDescription != nil {
		txn.UserDescription = *req.UserDescription
	}
	if req.ClearCategory {
		txn.CategoryID = nil
	} else if req.CategoryID != nil {
		txn.CategoryID = req.CategoryID
	}
	if req.Status != nil {
		status := model.TransactionStatus(*req.Status)
		switch status {
		case model.StatusPending, model.StatusCleared, model.StatusReconciled, model.StatusCancelled:
			txn.Status = status
		default:
			s.badRequest(w, "invalid status")
			return
		}
	}
	if req.Amount != nil {
		txn.Amount = *req.Amount
	}

	if err := s.storage.UpdateTransaction(r.Context(), txn); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionDTO(*txn))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ownedTransaction(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.storage.SoftDeleteTransaction(r.Context(), txn.ID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type bulkDeleteResponse struct {
	Deleted []string          `json:"deleted"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// handleBulkDeleteTransactions deletes each listed transaction
// independently; failures are reported per ID and do not abort the batch.
func (s *Server) handleBulkDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	var req bulkDeleteRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if len(req.IDs) == 0 {
		s.badRequest(w, "ids cannot be empty")
		return
	}

	resp := bulkDeleteResponse{Errors: make(map[string]string)}
	for _, id := range req.IDs {
		txn, err := s.storage.GetTransactionByID(r.Context(), id)
		if err != nil || txn.UserID != uid {
			resp.Errors[id] = "not found"
			continue
		}
		if err := s.storage.SoftDeleteTransaction(r.Context(), id); err != nil {
			resp.Errors[id] = "not found"
			continue
		}
		resp.Deleted = append(resp.Deleted, id)
	}
	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}

	status := http.StatusOK
	if len(resp.Deleted) == 0 {
		status = http.StatusNotFound
	} else if resp.Errors != nil {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, resp)
}

type categorizeRequest struct {
	TransactionIDs []string `json:"transaction_ids,omitempty"`
}

// handleCategorize runs the categorization pipeline over the given
// transactions, or the whole uncategorized backlog when none are given.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil {
		s.unavailable(w, "categorization")
		return
	}
	uid := userID(r)

	var req categorizeRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	var txns []model.Transaction
	if len(req.TransactionIDs) > 0 {
		for _, id := range req.TransactionIDs {
			txn, err := s.storage.GetTransactionByID(r.Context(), id)
			if err != nil {
				s.respondError(w, err)
				return
			}
			if txn.UserID != uid {
				s.respondError(w, common.ErrNotFound)
				return
			}
			txns = append(txns, *txn)
		}
	} else {
		var err error
		txns, err = s.storage.GetUncategorizedTransactions(r.Context(), uid)
		if err != nil {
			s.respondError(w, err)
			return
		}
	}

	summary, err := s.chain.Run(r.Context(), uid, txns)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSummaryDTO(summary))
}

func (s *Server) ownedTransaction(r *http.Request) (*model.Transaction, error) {
	id := mux.Vars(r)["id"]
	txn, err := s.storage.GetTransactionByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID(r) {
		return nil, common.ErrNotFound
	}
	return txn, nil
}
