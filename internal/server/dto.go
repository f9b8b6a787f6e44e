package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/categorize"
	"github.com/digaomatias/mymascada/internal/model"
)

// Response shapes. Model types stay free of transport tags; the mapping is
// done here.

type transactionDTO struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Date            time.Time       `json:"date"`
	Description     string          `json:"description"`
	UserDescription string          `json:"user_description,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	Source          string          `json:"source"`
	CategoryID      *int            `json:"category_id"`
	BankCategory    string          `json:"bank_category,omitempty"`
	BankProvider    string          `json:"bank_provider,omitempty"`
	BankReference   string          `json:"bank_reference,omitempty"`
}

func toTransactionDTO(t model.Transaction) transactionDTO {
	return transactionDTO{
		ID:              t.ID,
		AccountID:       t.AccountID,
		Date:            t.Date,
		Description:     t.Description,
		UserDescription: t.UserDescription,
		Amount:          t.Amount,
		Status:          string(t.Status),
		Source:          string(t.Source),
		CategoryID:      t.CategoryID,
		BankCategory:    t.BankCategory,
		BankProvider:    t.BankProvider,
		BankReference:   t.BankReference,
	}
}

func toTransactionDTOs(txns []model.Transaction) []transactionDTO {
	dtos := make([]transactionDTO, len(txns))
	for i, t := range txns {
		dtos[i] = toTransactionDTO(t)
	}
	return dtos
}

type accountDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
	IsShared bool   `json:"is_shared"`
}

func toAccountDTO(a model.Account) accountDTO {
	return accountDTO{
		ID:       a.ID,
		Name:     a.Name,
		Type:     string(a.Type),
		Currency: a.Currency,
		IsShared: a.IsShared,
	}
}

type categoryDTO struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsIncome    bool   `json:"is_income"`
	IsActive    bool   `json:"is_active"`
}

func toCategoryDTO(c model.Category) categoryDTO {
	return categoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsIncome:    c.IsIncome,
		IsActive:    c.IsActive,
	}
}

type budgetDTO struct {
	ID         int64           `json:"id"`
	CategoryID int             `json:"category_id"`
	Month      string          `json:"month"`
	Amount     decimal.Decimal `json:"amount"`
}

type goalDTO struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Target   decimal.Decimal `json:"target"`
	Saved    decimal.Decimal `json:"saved"`
	Deadline *time.Time      `json:"deadline,omitempty"`
	Status   string          `json:"status"`
}

func toGoalDTO(g model.Goal) goalDTO {
	return goalDTO{
		ID:       g.ID,
		Name:     g.Name,
		Target:   g.Target,
		Saved:    g.Saved,
		Deadline: g.Deadline,
		Status:   string(g.Status),
	}
}

type ruleConditionDTO struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type ruleDTO struct {
	ID             int64              `json:"id"`
	Name           string             `json:"name"`
	Pattern        string             `json:"pattern"`
	MatchType      string             `json:"match_type"`
	CaseSensitive  bool               `json:"case_sensitive"`
	Priority       int                `json:"priority"`
	AmountMin      *decimal.Decimal   `json:"amount_min,omitempty"`
	AmountMax      *decimal.Decimal   `json:"amount_max,omitempty"`
	AccountType    *string            `json:"account_type,omitempty"`
	ConditionLogic string             `json:"condition_logic"`
	Conditions     []ruleConditionDTO `json:"conditions,omitempty"`
	CategoryID     int                `json:"category_id"`
	Confidence     float64            `json:"confidence"`
	IsActive       bool               `json:"is_active"`
}

func toRuleDTO(r model.CategorizationRule) ruleDTO {
	dto := ruleDTO{
		ID:             r.ID,
		Name:           r.Name,
		Pattern:        r.Pattern,
		MatchType:      string(r.MatchType),
		CaseSensitive:  r.CaseSensitive,
		Priority:       r.Priority,
		AmountMin:      r.AmountMin,
		AmountMax:      r.AmountMax,
		ConditionLogic: string(r.ConditionLogic),
		CategoryID:     r.CategoryID,
		Confidence:     r.Confidence,
		IsActive:       r.IsActive,
	}
	if r.AccountType != nil {
		at := string(*r.AccountType)
		dto.AccountType = &at
	}
	for _, c := range r.Conditions {
		dto.Conditions = append(dto.Conditions, ruleConditionDTO{
			Field:    c.Field,
			Operator: string(c.Operator),
			Value:    c.Value,
		})
	}
	return dto
}

type candidateDTO struct {
	ID            int64   `json:"id"`
	TransactionID string  `json:"transaction_id"`
	CategoryID    int     `json:"category_id"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason,omitempty"`
}

func toCandidateDTO(c model.CategorizationCandidate) candidateDTO {
	return candidateDTO{
		ID:            c.ID,
		TransactionID: c.TransactionID,
		CategoryID:    c.CategoryID,
		Method:        string(c.Method),
		Status:        string(c.Status),
		Confidence:    c.Confidence,
		Reason:        c.Reason,
	}
}

type mappingDTO struct {
	ID               int64   `json:"id"`
	Provider         string  `json:"provider"`
	BankCategory     string  `json:"bank_category"`
	NormalizedName   string  `json:"normalized_name"`
	CategoryID       int     `json:"category_id"`
	Confidence       float64 `json:"confidence"`
	IsExcluded       bool    `json:"is_excluded"`
	ApplicationCount int     `json:"application_count"`
	OverrideCount    int     `json:"override_count"`
}

func toMappingDTO(m model.BankCategoryMapping) mappingDTO {
	return mappingDTO{
		ID:               m.ID,
		Provider:         m.Provider,
		BankCategory:     m.BankCategory,
		NormalizedName:   m.NormalizedName,
		CategoryID:       m.CategoryID,
		Confidence:       m.Confidence,
		IsExcluded:       m.IsExcluded,
		ApplicationCount: m.ApplicationCount,
		OverrideCount:    m.OverrideCount,
	}
}

type reconciliationDTO struct {
	ID          int64      `json:"id"`
	AccountID   string     `json:"account_id"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	Status      string     `json:"status"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

func toReconciliationDTO(r model.Reconciliation) reconciliationDTO {
	return reconciliationDTO{
		ID:          r.ID,
		AccountID:   r.AccountID,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		Status:      string(r.Status),
		FinalizedAt: r.FinalizedAt,
	}
}

type reconciliationItemDTO struct {
	ID              int64           `json:"id"`
	Type            string          `json:"type"`
	Method          string          `json:"method,omitempty"`
	Confidence      float64         `json:"confidence"`
	TransactionID   *string         `json:"transaction_id,omitempty"`
	BankReference   string          `json:"bank_reference,omitempty"`
	BankDescription string          `json:"bank_description,omitempty"`
	BankCategory    string          `json:"bank_category,omitempty"`
	BankDate        *time.Time      `json:"bank_date,omitempty"`
	BankAmount      decimal.Decimal `json:"bank_amount"`
}

func toReconciliationItemDTO(item model.ReconciliationItem) reconciliationItemDTO {
	dto := reconciliationItemDTO{
		ID:              item.ID,
		Type:            string(item.Type),
		Method:          string(item.Method),
		Confidence:      item.Confidence,
		TransactionID:   item.TransactionID,
		BankReference:   item.BankReference,
		BankDescription: item.BankDescription,
		BankCategory:    item.BankCategory,
		BankAmount:      item.BankAmount,
	}
	if !item.BankDate.IsZero() {
		d := item.BankDate
		dto.BankDate = &d
	}
	return dto
}

type handlerStatsDTO struct {
	AutoApplied int  `json:"auto_applied"`
	Candidates  int  `json:"candidates"`
	Failed      bool `json:"failed"`
}

type summaryDTO struct {
	Processed        int                        `json:"processed"`
	AutoApplied      int                        `json:"auto_applied"`
	Candidates       int                        `json:"candidates"`
	Unresolved       int                        `json:"unresolved"`
	EstimatedSavings float64                    `json:"estimated_savings"`
	PerHandler       map[string]handlerStatsDTO `json:"per_handler"`
}

func toSummaryDTO(s categorize.Summary) summaryDTO {
	dto := summaryDTO{
		Processed:        s.Processed,
		AutoApplied:      s.AutoApplied,
		Candidates:       s.Candidates,
		Unresolved:       s.Unresolved,
		EstimatedSavings: s.EstimatedSavings,
		PerHandler:       make(map[string]handlerStatsDTO, len(s.PerHandler)),
	}
	for name, stats := range s.PerHandler {
		dto.PerHandler[name] = handlerStatsDTO{
			AutoApplied: stats.AutoApplied,
			Candidates:  stats.Candidates,
			Failed:      stats.Failed,
		}
	}
	return dto
}

type connectionDTO struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

func toConnectionDTO(c model.BankConnection) connectionDTO {
	return connectionDTO{
		ID:           c.ID,
		AccountID:    c.AccountID,
		Provider:     c.Provider,
		Status:       string(c.Status),
		LastSyncedAt: c.LastSyncedAt,
	}
}
