package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchType determines how a rule pattern is compared against a description.
type MatchType string

// Match type constants.
const (
	MatchContains   MatchType = "CONTAINS"
	MatchStartsWith MatchType = "STARTS_WITH"
	MatchEndsWith   MatchType = "ENDS_WITH"
	MatchEquals     MatchType = "EQUALS"
	MatchRegex      MatchType = "REGEX"
)

// ConditionLogic combines the results of a rule's child conditions.
type ConditionLogic string

// Condition logic constants.
const (
	LogicAll ConditionLogic = "ALL"
	LogicAny ConditionLogic = "ANY"
)

// ConditionOperator compares a transaction field against a condition value.
type ConditionOperator string

// Condition operator constants.
const (
	OpEquals      ConditionOperator = "EQUALS"
	OpNotEquals   ConditionOperator = "NOT_EQUALS"
	OpContains    ConditionOperator = "CONTAINS"
	OpGreaterThan ConditionOperator = "GREATER_THAN"
	OpLessThan    ConditionOperator = "LESS_THAN"
)

// RuleCondition is a single field/operator/value check attached to a rule.
type RuleCondition struct {
	ID       int64
	RuleID   int64
	Field    string // description, amount, account_type
	Operator ConditionOperator
	Value    string
}

// CategorizationRule matches transactions to a category by description
// pattern, with optional amount-range, account-type, and condition filters.
// Lower priority values are evaluated first.
type CategorizationRule struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	AmountMin      *decimal.Decimal
	AmountMax      *decimal.Decimal
	AccountType    *AccountType
	ID             int64
	UserID         string
	Name           string
	Pattern        string
	MatchType      MatchType
	ConditionLogic ConditionLogic
	Conditions     []RuleCondition
	CategoryID     int
	Priority       int
	Confidence     float64
	CaseSensitive  bool
	IsActive       bool
}
