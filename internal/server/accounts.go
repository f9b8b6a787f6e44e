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
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.storage.GetAccounts(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]accountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": dtos})
}

type accountRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
	IsShared bool   `json:"is_shared"`
}

func (r accountRequest) accountType() (model.AccountType, bool) {
	at := model.AccountType(r.Type)
	switch at {
	case model.AccountChecking, model.AccountSavings, model.AccountCreditCard, model.AccountInvestment:
		return at, true
	}
	return "", false
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Name == "" {
		s.badRequest(w, "name is required")
		return
	}
	at, ok := req.accountType()
	if !ok {
		s.badRequest(w, "invalid account type")
		return
	}
	if req.Currency == "" {
		req.Currency = "NZD"
	}

	account := &model.Account{
		ID:       uuid.NewString(),
		UserID:   userID(r),
		Name:     req.Name,
		Type:     at,
		Currency: req.Currency,
		IsShared: req.IsShared,
	}
	if err := s.storage.CreateAccount(r.Context(), account); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAccountDTO(*account))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountDTO(*account))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Name != "" {
		account.Name = req.Name
	}
	if req.Type != "" {
		at, ok := req.accountType()
		if !ok {
			s.badRequest(w, "invalid account type")
			return
		}
		account.Type = at
	}
	if req.Currency != "" {
		account.Currency = req.Currency
	}
	account.IsShared = req.IsShared

	if err := s.storage.UpdateAccount(r.Context(), account); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountDTO(*account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.storage.SoftDeleteAccount(r.Context(), account.ID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) ownedAccount(r *http.Request) (*model.Account, error) {
	account, err := s.storage.GetAccountByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	if account.UserID != userID(r) {
		return nil, common.ErrNotFound
	}
	return account, nil
}

// Categories

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.storage.GetCategories(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]categoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = toCategoryDTO(c)
	}
	respondJSON(w, http.StatusOK, map[string]any{"categories": dtos})
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsIncome    bool   `json:"is_income"`
	IsActive    *bool  `json:"is_active"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Name == "" {
		s.badRequest(w, "name is required")
		return
	}

	category := &model.Category{
		UserID:      userID(r),
		Name:        req.Name,
		Description: req.Description,
		IsIncome:    req.IsIncome,
		IsActive:    true,
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}
	if err := s.storage.CreateCategory(r.Context(), category); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCategoryDTO(*category))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.ownedCategory(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Name != "" {
		category.Name = req.Name
	}
	category.Description = req.Description
	category.IsIncome = req.IsIncome
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}

	if err := s.storage.UpdateCategory(r.Context(), category); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCategoryDTO(*category))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.ownedCategory(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.storage.DeleteCategory(r.Context(), category.ID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) ownedCategory(r *http.Request) (*model.Category, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return nil, common.NewUserError("invalid category id", err)
	}
	category, err := s.storage.GetCategoryByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if category.UserID != userID(r) {
		return nil, common.ErrNotFound
	}
	return category, nil
}

// Budgets

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			s.badRequest(w, "invalid month, want YYYY-MM")
			return
		}
	}

	budgets, err := s.storage.GetBudgets(r.Context(), userID(r), month)
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]budgetDTO, len(budgets))
	for i, b := range budgets {
		dtos[i] = budgetDTO{ID: b.ID, CategoryID: b.CategoryID, Month: b.Month, Amount: b.Amount}
	}
	respondJSON(w, http.StatusOK, map[string]any{"budgets": dtos})
}

type budgetRequest struct {
	CategoryID int             `json:"category_id"`
	Month      string          `json:"month"`
	Amount     decimal.Decimal `json:"amount"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if _, err := time.Parse("2006-01", req.Month); err != nil {
		s.badRequest(w, "invalid month, want YYYY-MM")
		return
	}
	if !req.Amount.IsPositive() {
		s.badRequest(w, "amount must be positive")
		return
	}
	category, err := s.storage.GetCategoryByID(r.Context(), req.CategoryID)
	if err != nil || category.UserID != userID(r) {
		s.respondError(w, common.ErrNotFound)
		return
	}

	budget := &model.Budget{
		UserID:     userID(r),
		CategoryID: req.CategoryID,
		Month:      req.Month,
		Amount:     req.Amount,
	}
	if err := s.storage.CreateBudget(r.Context(), budget); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated,
		budgetDTO{ID: budget.ID, CategoryID: budget.CategoryID, Month: budget.Month, Amount: budget.Amount})
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := s.ownedBudget(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if !req.Amount.IsPositive() {
		s.badRequest(w, "amount must be positive")
		return
	}
	budget.Amount = req.Amount

	if err := s.storage.UpdateBudget(r.Context(), budget); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK,
		budgetDTO{ID: budget.ID, CategoryID: budget.CategoryID, Month: budget.Month, Amount: budget.Amount})
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := s.ownedBudget(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.storage.DeleteBudget(r.Context(), budget.ID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) ownedBudget(r *http.Request) (*model.Budget, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, common.NewUserError("invalid budget id", err)
	}
	budgets, err := s.storage.GetBudgets(r.Context(), userID(r), "")
	if err != nil {
		return nil, err
	}
	for i := range budgets {
		if budgets[i].ID == id {
			return &budgets[i], nil
		}
	}
	return nil, common.ErrNotFound
}

// Goals

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.storage.GetGoals(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]goalDTO, len(goals))
	for i, g := range goals {
		dtos[i] = toGoalDTO(g)
	}
	respondJSON(w, http.StatusOK, map[string]any{"goals": dtos})
}

type goalRequest struct {
	Name     string           `json:"name"`
	Target   *decimal.Decimal `json:"target"`
	Saved    *decimal.Decimal `json:"saved"`
	Deadline *time.Time       `json:"deadline"`
	Status   *string          `json:"status"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Name == "" {
		s.badRequest(w, "name is required")
		return
	}
	if req.Target == nil || !req.Target.IsPositive() {
		s.badRequest(w, "target must be positive")
		return
	}

	goal := &model.Goal{
		UserID:   userID(r),
		Name:     req.Name,
		Target:   *req.Target,
		Saved:    decimal.Zero,
		Deadline: req.Deadline,
		Status:   model.GoalActive,
	}
	if req.Saved != nil {
		goal.Saved = *req.Saved
	}
	if err := s.storage.CreateGoal(r.Context(), goal); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toGoalDTO(*goal))
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.badRequest(w, "invalid goal id")
		return
	}
	goal, err := s.storage.GetGoalByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if goal.UserID != userID(r) {
		s.respondError(w, common.ErrNotFound)
		return
	}

	var req goalRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Name != "" {
		goal.Name = req.Name
	}
	if req.Target != nil {
		goal.Target = *req.Target
	}
	if req.Saved != nil {
		goal.Saved = *req.Saved
	}
	if req.Deadline != nil {
		goal.Deadline = req.Deadline
	}
	if req.Status != nil {
		status := model.GoalStatus(*req.Status)
		switch status {
		case model.GoalActive, model.GoalCompleted, model.GoalAbandoned:
			goal.Status = status
		default:
			s.badRequest(w, "invalid status")
			return
		}
	}
	// Reaching the target completes an active goal automatically.
	if goal.Status == model.GoalActive && goal.Saved.GreaterThanOrEqual(goal.Target) {
		goal.Status = model.GoalCompleted
	}

	if err := s.storage.UpdateGoal(r.Context(), goal); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toGoalDTO(*goal))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.badRequest(w, "invalid goal id")
		return
	}
	goal, err := s.storage.GetGoalByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if goal.UserID != userID(r) {
		s.respondError(w, common.ErrNotFound)
		return
	}
	if err := s.storage.DeleteGoal(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
