// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/digaomatias/mymascada/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CategoryID *int
	AccountID  string
	Status     model.TransactionStatus
	Search     string
	Limit      int
	Offset     int
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	SoftDeleteTransaction(ctx context.Context, id string) error
	GetUncategorizedTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	GetCategorizedTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	GetCategorizedTransactionIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ApplyCategory(ctx context.Context, transactionID string, categoryID int) error
	GetTransactionsByHash(ctx context.Context, accountID string, hashes []string) (map[string]bool, error)

	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccounts(ctx context.Context, userID string) ([]model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error
	SoftDeleteAccount(ctx context.Context, id string) error

	// Category operations
	GetCategories(ctx context.Context, userID string) ([]model.Category, error)
	GetCategoryByID(ctx context.Context, id int) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
	UpdateCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, id int) error

	// Categorization rule operations
	CreateRule(ctx context.Context, rule *model.CategorizationRule) error
	GetRuleByID(ctx context.Context, id int64) (*model.CategorizationRule, error)
	GetActiveRules(ctx context.Context, userID string) ([]model.CategorizationRule, error)
	UpdateRule(ctx context.Context, rule *model.CategorizationRule) error
	SoftDeleteRule(ctx context.Context, id int64) error
	ReorderRules(ctx context.Context, userID string, orderedIDs []int64) error

	// Categorization candidate operations
	CreateCandidate(ctx context.Context, candidate *model.CategorizationCandidate) error
	GetCandidateByID(ctx context.Context, id int64) (*model.CategorizationCandidate, error)
	GetPendingCandidates(ctx context.Context, userID string) ([]model.CategorizationCandidate, error)
	HasPendingCandidate(ctx context.Context, transactionID string, categoryID int, method model.CategorizationMethod) (bool, error)
	UpdateCandidate(ctx context.Context, candidate *model.CategorizationCandidate) error

	// Bank category mapping operations
	GetMappingByNormalizedName(ctx context.Context, userID, provider, normalized string) (*model.BankCategoryMapping, error)
	GetMappings(ctx context.Context, userID string) ([]model.BankCategoryMapping, error)
	CreateMapping(ctx context.Context, mapping *model.BankCategoryMapping) error
	UpdateMapping(ctx context.Context, mapping *model.BankCategoryMapping) error

	// Reconciliation operations
	CreateReconciliation(ctx context.Context, rec *model.Reconciliation) error
	GetReconciliationByID(ctx context.Context, id int64) (*model.Reconciliation, error)
	GetReconciliations(ctx context.Context, userID string) ([]model.Reconciliation, error)
	UpdateReconciliation(ctx context.Context, rec *model.Reconciliation) error
	CreateReconciliationItems(ctx context.Context, items []model.ReconciliationItem) error
	GetReconciliationItems(ctx context.Context, reconciliationID int64) ([]model.ReconciliationItem, error)
	GetReconciliationItemByID(ctx context.Context, id int64) (*model.ReconciliationItem, error)
	UpdateReconciliationItem(ctx context.Context, item *model.ReconciliationItem) error
	DeleteReconciliationItem(ctx context.Context, id int64) error

	// Bank connection operations
	CreateBankConnection(ctx context.Context, conn *model.BankConnection) error
	GetBankConnectionByID(ctx context.Context, id string) (*model.BankConnection, error)
	GetActiveBankConnections(ctx context.Context, userID string) ([]model.BankConnection, error)
	UpdateBankConnection(ctx context.Context, conn *model.BankConnection) error
	CreateSyncLog(ctx context.Context, log *model.BankSyncLog) error
	UpdateSyncLog(ctx context.Context, log *model.BankSyncLog) error
	GetSyncLogs(ctx context.Context, connectionID string) ([]model.BankSyncLog, error)

	// Budget operations
	CreateBudget(ctx context.Context, budget *model.Budget) error
	GetBudgets(ctx context.Context, userID, month string) ([]model.Budget, error)
	UpdateBudget(ctx context.Context, budget *model.Budget) error
	DeleteBudget(ctx context.Context, id int64) error

	// Goal operations
	CreateGoal(ctx context.Context, goal *model.Goal) error
	GetGoalByID(ctx context.Context, id int64) (*model.Goal, error)
	GetGoals(ctx context.Context, userID string) ([]model.Goal, error)
	UpdateGoal(ctx context.Context, goal *model.Goal) error
	DeleteGoal(ctx context.Context, id int64) error

	// GetUserIDs lists every user with at least one account. Used by
	// background jobs; identity itself lives in the auth layer.
	GetUserIDs(ctx context.Context) ([]string, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
