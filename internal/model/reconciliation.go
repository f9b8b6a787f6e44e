package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationStatus tracks whether a reconciliation is still open.
type ReconciliationStatus string

// Reconciliation status constants.
const (
	ReconciliationOpen      ReconciliationStatus = "OPEN"
	ReconciliationFinalized ReconciliationStatus = "FINALIZED"
)

// ReconciliationItemType classifies a line within a reconciliation.
type ReconciliationItemType string

// Reconciliation item type constants.
const (
	ItemMatched       ReconciliationItemType = "MATCHED"
	ItemUnmatchedApp  ReconciliationItemType = "UNMATCHED_APP"
	ItemUnmatchedBank ReconciliationItemType = "UNMATCHED_BANK"
)

// MatchMethod records how a matched item was paired.
type MatchMethod string

// Match method constants.
const (
	MatchManual MatchMethod = "MANUAL"
	MatchFuzzy  MatchMethod = "FUZZY"
	MatchExact  MatchMethod = "EXACT"
)

// Reconciliation groups matched and unmatched items for a statement period
// on one account.
type Reconciliation struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	CreatedAt   time.Time
	FinalizedAt *time.Time
	ID          int64
	UserID      string
	AccountID   string
	Status      ReconciliationStatus
}

// ReconciliationItem is one matched or unmatched line within a
// reconciliation. Matched items carry both sides; unmatched items carry one.
type ReconciliationItem struct {
	CreatedAt        time.Time
	TransactionID    *string // System-side transaction, nil for UNMATCHED_BANK
	ID               int64
	ReconciliationID int64
	Type             ReconciliationItemType
	Method           MatchMethod
	Confidence       float64

	// Bank-side statement line, zero-valued for UNMATCHED_APP items.
	BankReference   string
	BankDescription string
	BankCategory    string
	BankDate        time.Time
	BankAmount      decimal.Decimal
}

// BankLine is a statement line as received from the bank, before matching.
type BankLine struct {
	Date        time.Time
	Reference   string
	Description string
	Category    string
	Amount      decimal.Decimal
}
