package server

import (
	"context"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/rules"
	"github.com/digaomatias/mymascada/internal/service"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := s.storage.GetActiveRules(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]ruleDTO, len(ruleSet))
	for i, rule := range ruleSet {
		dtos[i] = toRuleDTO(rule)
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": dtos})
}

type ruleRequest struct {
	Name           string             `json:"name"`
	Pattern        string             `json:"pattern"`
	MatchType      string             `json:"match_type"`
	CaseSensitive  bool               `json:"case_sensitive"`
	Priority       int                `json:"priority"`
	AmountMin      *decimal.Decimal   `json:"amount_min"`
	AmountMax      *decimal.Decimal   `json:"amount_max"`
	AccountType    *string            `json:"account_type"`
	ConditionLogic string             `json:"condition_logic"`
	Conditions     []ruleConditionDTO `json:"conditions"`
	CategoryID     int                `json:"category_id"`
	Confidence     float64            `json:"confidence"`
	IsActive       *bool              `json:"is_active"`
}

func (s *Server) ruleFromRequest(r *http.Request, req ruleRequest) (*model.CategorizationRule, error) {
	if req.Name == "" {
		return nil, common.NewUserError("name is required", nil)
	}
	if req.Pattern == "" {
		return nil, common.NewUserError("pattern is required", nil)
	}
	matchType := model.MatchType(req.MatchType)
	switch matchType {
	case model.MatchContains, model.MatchStartsWith, model.MatchEndsWith, model.MatchEquals:
	case model.MatchRegex:
		if _, err := regexp.Compile(req.Pattern); err != nil {
			return nil, common.NewUserError("invalid regex pattern", err)
		}
	default:
		return nil, common.NewUserError("invalid match type", nil)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, common.NewUserError("confidence must be between 0 and 1", nil)
	}
	if req.AmountMin != nil && req.AmountMax != nil && req.AmountMin.GreaterThan(*req.AmountMax) {
		return nil, common.NewUserError("amount_min must not exceed amount_max", nil)
	}

	logic := model.LogicAll
	if req.ConditionLogic != "" {
		logic = model.ConditionLogic(req.ConditionLogic)
		if logic != model.LogicAll && logic != model.LogicAny {
			return nil, common.NewUserError("invalid condition logic", nil)
		}
	}

	rule := &model.CategorizationRule{
		UserID:         userID(r),
		Name:           req.Name,
		Pattern:        req.Pattern,
		MatchType:      matchType,
		CaseSensitive:  req.CaseSensitive,
		Priority:       req.Priority,
		AmountMin:      req.AmountMin,
		AmountMax:      req.AmountMax,
		ConditionLogic: logic,
		CategoryID:     req.CategoryID,
		Confidence:     req.Confidence,
		IsActive:       true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.AccountType != nil {
		at := model.AccountType(*req.AccountType)
		switch at {
		case model.AccountChecking, model.AccountSavings, model.AccountCreditCard, model.AccountInvestment:
			rule.AccountType = &at
		default:
			return nil, common.NewUserError("invalid account type", nil)
		}
	}
	for _, c := range req.Conditions {
		cond, err := conditionFromDTO(c)
		if err != nil {
			return nil, err
		}
		rule.Conditions = append(rule.Conditions, cond)
	}

	category, err := s.storage.GetCategoryByID(r.Context(), req.CategoryID)
	if err != nil || category.UserID != userID(r) {
		return nil, common.ErrNotFound
	}
	return rule, nil
}

func conditionFromDTO(c ruleConditionDTO) (model.RuleCondition, error) {
	switch c.Field {
	case "description", "amount", "account_type":
	default:
		return model.RuleCondition{}, common.NewUserError("invalid condition field", nil)
	}
	op := model.ConditionOperator(c.Operator)
	switch op {
	case model.OpEquals, model.OpNotEquals, model.OpContains, model.OpGreaterThan, model.OpLessThan:
	default:
		return model.RuleCondition{}, common.NewUserError("invalid condition operator", nil)
	}
	return model.RuleCondition{Field: c.Field, Operator: op, Value: c.Value}, nil
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	rule, err := s.ruleFromRequest(r, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.storage.CreateRule(r.Context(), rule); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toRuleDTO(*rule))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.ownedRule(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleDTO(*rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	existing, err := s.ownedRule(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req ruleRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	rule, err := s.ruleFromRequest(r, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt

	if err := s.storage.UpdateRule(r.Context(), rule); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleDTO(*rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.ownedRule(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.storage.SoftDeleteRule(r.Context(), rule.ID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleReorderRules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RuleIDs []int64 `json:"rule_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if len(req.RuleIDs) == 0 {
		s.badRequest(w, "rule_ids is required")
		return
	}
	if err := s.storage.ReorderRules(r.Context(), userID(r), req.RuleIDs); err != nil {
		s.respondError(w, err)
		return
	}
	s.handleListRules(w, r)
}

// handleTestRule dry-runs a rule definition against the user's recent
// transactions without persisting anything.
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	rule, err := s.ruleFromRequest(r, req)
	if err != nil {
		s.respondError(w, err)
		return
	}

	accounts, err := s.storage.GetAccounts(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	accountTypes := make(map[string]model.AccountType, len(accounts))
	for _, account := range accounts {
		accountTypes[account.ID] = account.Type
	}

	txns, err := s.storage.GetTransactions(r.Context(), userID(r), service.TransactionFilter{Limit: 500})
	if err != nil {
		s.respondError(w, err)
		return
	}

	matcher := rules.NewMatcher([]model.CategorizationRule{*rule})
	var matches []transactionDTO
	for _, txn := range txns {
		if matcher.Matches(txn, *rule, accountTypes[txn.AccountID]) {
			matches = append(matches, toTransactionDTO(txn))
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"matched": len(matches),
		"tested":  len(txns),
		"matches": matches,
	})
}

func (s *Server) ownedRule(r *http.Request) (*model.CategorizationRule, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, common.NewUserError("invalid rule id", err)
	}
	rule, err := s.storage.GetRuleByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if rule.UserID != userID(r) {
		return nil, common.ErrNotFound
	}
	return rule, nil
}

// Candidates

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.storage.GetPendingCandidates(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]candidateDTO, len(candidates))
	for i, c := range candidates {
		dtos[i] = toCandidateDTO(c)
	}
	respondJSON(w, http.StatusOK, map[string]any{"candidates": dtos})
}

func (s *Server) handleApplyCandidate(w http.ResponseWriter, r *http.Request) {
	s.resolveCandidate(w, r, s.candidates.Apply)
}

func (s *Server) handleRejectCandidate(w http.ResponseWriter, r *http.Request) {
	s.resolveCandidate(w, r, s.candidates.Reject)
}

func (s *Server) resolveCandidate(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, userID string, candidateID int64) error) {
	if s.candidates == nil {
		s.unavailable(w, "categorization")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.badRequest(w, "invalid candidate id")
		return
	}
	if err := resolve(r.Context(), userID(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Mappings

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.storage.GetMappings(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]mappingDTO, len(mappings))
	for i, m := range mappings {
		dtos[i] = toMappingDTO(m)
	}
	respondJSON(w, http.StatusOK, map[string]any{"mappings": dtos})
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.badRequest(w, "invalid mapping id")
		return
	}
	mappings, err := s.storage.GetMappings(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	var mapping *model.BankCategoryMapping
	for i := range mappings {
		if mappings[i].ID == id {
			mapping = &mappings[i]
			break
		}
	}
	if mapping == nil {
		s.respondError(w, common.ErrNotFound)
		return
	}

	var req struct {
		CategoryID *int     `json:"category_id"`
		Confidence *float64 `json:"confidence"`
		IsExcluded *bool    `json:"is_excluded"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.CategoryID != nil {
		category, err := s.storage.GetCategoryByID(r.Context(), *req.CategoryID)
		if err != nil || category.UserID != userID(r) {
			s.respondError(w, common.ErrNotFound)
			return
		}
		// Remapping to a different category overrides the stored suggestion.
		if *req.CategoryID != mapping.CategoryID {
			mapping.OverrideCount++
		}
		mapping.CategoryID = *req.CategoryID
	}
	if req.Confidence != nil {
		if *req.Confidence < 0 || *req.Confidence > 1 {
			s.badRequest(w, "confidence must be between 0 and 1")
			return
		}
		mapping.Confidence = *req.Confidence
	}
	if req.IsExcluded != nil {
		mapping.IsExcluded = *req.IsExcluded
	}

	if err := s.storage.UpdateMapping(r.Context(), mapping); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toMappingDTO(*mapping))
}
