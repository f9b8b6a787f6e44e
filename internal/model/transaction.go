// Package model defines the core domain types for the mymascada application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus tracks where a transaction sits in its lifecycle.
type TransactionStatus string

// Transaction status constants.
const (
	StatusPending    TransactionStatus = "PENDING"
	StatusCleared    TransactionStatus = "CLEARED"
	StatusReconciled TransactionStatus = "RECONCILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
)

// TransactionSource indicates how a transaction entered the system.
type TransactionSource string

// Transaction source constants.
const (
	SourceManual    TransactionSource = "MANUAL"
	SourceCsvImport TransactionSource = "CSV_IMPORT"
	SourceBankAPI   TransactionSource = "BANK_API"
	SourceOfxImport TransactionSource = "OFX_IMPORT"
	SourceImport    TransactionSource = "IMPORT"
)

// Transaction represents a single financial transaction from any source.
// Amounts are signed: negative for spending, positive for income.
type Transaction struct {
	Date            time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
	CategoryID      *int
	ID              string
	UserID          string
	AccountID       string
	Description     string // Raw description from the source
	UserDescription string // User-supplied override, takes precedence when set
	Hash            string
	Status          TransactionStatus
	Source          TransactionSource
	BankCategory    string // Provider-supplied category string, if any
	BankProvider    string
	BankReference   string // Provider transaction id, set on sync or reconciliation
	Amount          decimal.Decimal
}

// EffectiveDescription returns the user description when present, otherwise
// the raw description.
func (t *Transaction) EffectiveDescription() string {
	if t.UserDescription != "" {
		return t.UserDescription
	}
	return t.Description
}

// IsCategorized reports whether a category has been assigned.
func (t *Transaction) IsCategorized() bool {
	return t.CategoryID != nil
}

// GenerateHash creates a stable hash for duplicate detection across imports.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
