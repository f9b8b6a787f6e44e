package model

import "time"

// AccountType classifies an account for rule filtering and reporting.
type AccountType string

// Account type constants.
const (
	AccountChecking   AccountType = "CHECKING"
	AccountSavings    AccountType = "SAVINGS"
	AccountCreditCard AccountType = "CREDIT_CARD"
	AccountInvestment AccountType = "INVESTMENT"
)

// Account represents a financial account owned by a user.
type Account struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	ID        string
	UserID    string
	Name      string
	Type      AccountType
	Currency  string
	IsShared  bool // Shared accounts are readable by household members
}

// Category represents a user-defined transaction category.
type Category struct {
	CreatedAt   time.Time
	ID          int
	UserID      string
	Name        string
	Description string
	IsIncome    bool
	IsActive    bool
}
