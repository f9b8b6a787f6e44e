package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// MemoryStorage is an in-memory service.Storage used by tests and demos.
// All data is lost on Close.
type MemoryStorage struct {
	mu sync.RWMutex

	transactions map[string]*model.Transaction
	accounts     map[string]*model.Account
	categories   map[int]*model.Category
	rules        map[int64]*model.CategorizationRule
	candidates   map[int64]*model.CategorizationCandidate
	mappings     map[int64]*model.BankCategoryMapping
	recs         map[int64]*model.Reconciliation
	recItems     map[int64]*model.ReconciliationItem
	connections  map[string]*model.BankConnection
	syncLogs     map[int64]*model.BankSyncLog
	budgets      map[int64]*model.Budget
	goals        map[int64]*model.Goal

	nextID int64
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		transactions: make(map[string]*model.Transaction),
		accounts:     make(map[string]*model.Account),
		categories:   make(map[int]*model.Category),
		rules:        make(map[int64]*model.CategorizationRule),
		candidates:   make(map[int64]*model.CategorizationCandidate),
		mappings:     make(map[int64]*model.BankCategoryMapping),
		recs:         make(map[int64]*model.Reconciliation),
		recItems:     make(map[int64]*model.ReconciliationItem),
		connections:  make(map[string]*model.BankConnection),
		syncLogs:     make(map[int64]*model.BankSyncLog),
		budgets:      make(map[int64]*model.Budget),
		goals:        make(map[int64]*model.Goal),
	}
}

func (m *MemoryStorage) next() int64 {
	m.nextID++
	return m.nextID
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, common.ErrNotFound)
}

// Transaction operations

func (m *MemoryStorage) SaveTransactions(_ context.Context, transactions []model.Transaction) error {
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hashes := make(map[string]bool, len(m.transactions))
	for _, t := range m.transactions {
		hashes[t.Hash] = true
	}
	for i := range transactions {
		txn := transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if hashes[txn.Hash] {
			continue
		}
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = time.Now()
		}
		txn.UpdatedAt = time.Now()
		hashes[txn.Hash] = true
		m.transactions[txn.ID] = &txn
	}
	return nil
}

func (m *MemoryStorage) GetTransactionByID(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn, ok := m.transactions[id]
	if !ok {
		return nil, notFound("transaction " + id)
	}
	cp := *txn
	return &cp, nil
}

func (m *MemoryStorage) GetTransactions(_ context.Context, userID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txns []model.Transaction
	for _, t := range m.transactions {
		if t.UserID != userID || t.DeletedAt != nil {
			continue
		}
		if filter.AccountID != "" && t.AccountID != filter.AccountID {
			continue
		}
		if filter.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.StartDate != nil && t.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && t.Date.After(*filter.EndDate) {
			continue
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(t.Description), s) &&
				!strings.Contains(strings.ToLower(t.UserDescription), s) {
				continue
			}
		}
		txns = append(txns, *t)
	}

	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.After(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})

	if filter.Limit > 0 {
		if filter.Offset >= len(txns) {
			return nil, nil
		}
		txns = txns[filter.Offset:]
		if len(txns) > filter.Limit {
			txns = txns[:filter.Limit]
		}
	}
	return txns, nil
}

func (m *MemoryStorage) UpdateTransaction(_ context.Context, txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: txn", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[txn.ID]; !ok {
		return notFound("transaction " + txn.ID)
	}
	cp := *txn
	cp.UpdatedAt = time.Now()
	m.transactions[txn.ID] = &cp
	return nil
}

func (m *MemoryStorage) SoftDeleteTransaction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[id]
	if !ok || txn.DeletedAt != nil {
		return notFound("transaction " + id)
	}
	now := time.Now()
	txn.DeletedAt = &now
	return nil
}

func (m *MemoryStorage) GetUncategorizedTransactions(_ context.Context, userID string) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txns []model.Transaction
	for _, t := range m.transactions {
		if t.UserID == userID && t.CategoryID == nil && t.DeletedAt == nil &&
			t.Status != model.StatusCancelled {
			txns = append(txns, *t)
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})
	return txns, nil
}

func (m *MemoryStorage) GetCategorizedTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txns []model.Transaction
	for _, t := range m.transactions {
		if t.UserID == userID && t.CategoryID != nil && t.DeletedAt == nil {
			txns = append(txns, *t)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].Date.After(txns[j].Date) })
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (m *MemoryStorage) GetCategorizedTransactionIDs(_ context.Context, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]bool, len(ids))
	for _, id := range ids {
		if t, ok := m.transactions[id]; ok && t.CategoryID != nil {
			result[id] = true
		}
	}
	return result, nil
}

func (m *MemoryStorage) ApplyCategory(_ context.Context, transactionID string, categoryID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[transactionID]
	if !ok || txn.DeletedAt != nil {
		return notFound("transaction " + transactionID)
	}
	txn.CategoryID = &categoryID
	txn.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) GetTransactionsByHash(_ context.Context, accountID string, hashes []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	result := make(map[string]bool)
	for _, t := range m.transactions {
		if t.AccountID == accountID && want[t.Hash] {
			result[t.Hash] = true
		}
	}
	return result, nil
}

// Account operations

func (m *MemoryStorage) CreateAccount(_ context.Context, account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return common.ErrDuplicateEntry
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetAccountByID(_ context.Context, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil, notFound("account " + id)
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryStorage) GetAccounts(_ context.Context, userID string) ([]model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var accounts []model.Account
	for _, a := range m.accounts {
		if a.UserID == userID && a.DeletedAt == nil {
			accounts = append(accounts, *a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

func (m *MemoryStorage) UpdateAccount(_ context.Context, account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.accounts[account.ID]
	if !ok || existing.DeletedAt != nil {
		return notFound("account " + account.ID)
	}
	cp := *account
	cp.UpdatedAt = time.Now()
	m.accounts[account.ID] = &cp
	return nil
}

func (m *MemoryStorage) SoftDeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok || acct.DeletedAt != nil {
		return notFound("account " + id)
	}
	now := time.Now()
	acct.DeletedAt = &now
	return nil
}

// Category operations

func (m *MemoryStorage) GetCategories(_ context.Context, userID string) ([]model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var categories []model.Category
	for _, c := range m.categories {
		if c.UserID == userID {
			categories = append(categories, *c)
		}
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].IsActive != categories[j].IsActive {
			return categories[i].IsActive
		}
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

func (m *MemoryStorage) GetCategoryByID(_ context.Context, id int) (*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, notFound(fmt.Sprintf("category %d", id))
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStorage) CreateCategory(_ context.Context, category *model.Category) error {
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.UserID == category.UserID && c.Name == category.Name {
			return common.ErrDuplicateEntry
		}
	}
	category.ID = int(m.next())
	category.CreatedAt = time.Now()
	cp := *category
	m.categories[category.ID] = &cp
	return nil
}

func (m *MemoryStorage) UpdateCategory(_ context.Context, category *model.Category) error {
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[category.ID]; !ok {
		return notFound(fmt.Sprintf("category %d", category.ID))
	}
	cp := *category
	m.categories[category.ID] = &cp
	return nil
}

func (m *MemoryStorage) DeleteCategory(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return notFound(fmt.Sprintf("category %d", id))
	}
	for _, t := range m.transactions {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
		}
	}
	delete(m.categories, id)
	return nil
}

// Categorization rule operations

func (m *MemoryStorage) CreateRule(_ context.Context, rule *model.CategorizationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = m.next()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	for i := range rule.Conditions {
		rule.Conditions[i].ID = m.next()
		rule.Conditions[i].RuleID = rule.ID
	}
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetRuleByID(_ context.Context, id int64) (*model.CategorizationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[id]
	if !ok {
		return nil, notFound(fmt.Sprintf("rule %d", id))
	}
	cp := *rule
	return &cp, nil
}

func (m *MemoryStorage) GetActiveRules(_ context.Context, userID string) ([]model.CategorizationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rules []model.CategorizationRule
	for _, r := range m.rules {
		if r.UserID == userID && r.IsActive && r.DeletedAt == nil {
			rules = append(rules, *r)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

func (m *MemoryStorage) UpdateRule(_ context.Context, rule *model.CategorizationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rules[rule.ID]
	if !ok || existing.DeletedAt != nil {
		return notFound(fmt.Sprintf("rule %d", rule.ID))
	}
	cp := *rule
	cp.UpdatedAt = time.Now()
	m.rules[rule.ID] = &cp
	return nil
}

func (m *MemoryStorage) SoftDeleteRule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok || rule.DeletedAt != nil {
		return notFound(fmt.Sprintf("rule %d", id))
	}
	now := time.Now()
	rule.DeletedAt = &now
	rule.IsActive = false
	return nil
}

func (m *MemoryStorage) ReorderRules(_ context.Context, userID string, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return fmt.Errorf("%w: orderedIDs", ErrEmptySlice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range orderedIDs {
		rule, ok := m.rules[id]
		if !ok || rule.UserID != userID || rule.DeletedAt != nil {
			return notFound(fmt.Sprintf("rule %d", id))
		}
		rule.Priority = (i + 1) * 10
	}
	return nil
}

// Categorization candidate operations

func (m *MemoryStorage) CreateCandidate(_ context.Context, candidate *model.CategorizationCandidate) error {
	if candidate == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	candidate.ID = m.next()
	candidate.CreatedAt = time.Now()
	cp := *candidate
	m.candidates[candidate.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetCandidateByID(_ context.Context, id int64) (*model.CategorizationCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[id]
	if !ok {
		return nil, notFound(fmt.Sprintf("candidate %d", id))
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStorage) GetPendingCandidates(_ context.Context, userID string) ([]model.CategorizationCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var candidates []model.CategorizationCandidate
	for _, c := range m.candidates {
		if c.UserID == userID && c.Status == model.CandidatePending {
			candidates = append(candidates, *c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

func (m *MemoryStorage) HasPendingCandidate(_ context.Context, transactionID string, categoryID int, method model.CategorizationMethod) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.candidates {
		if c.TransactionID == transactionID && c.CategoryID == categoryID &&
			c.Method == method && c.Status == model.CandidatePending {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) UpdateCandidate(_ context.Context, candidate *model.CategorizationCandidate) error {
	if candidate == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.candidates[candidate.ID]; !ok {
		return notFound(fmt.Sprintf("candidate %d", candidate.ID))
	}
	cp := *candidate
	m.candidates[candidate.ID] = &cp
	return nil
}

// Bank category mapping operations

func (m *MemoryStorage) GetMappingByNormalizedName(_ context.Context, userID, provider, normalized string) (*model.BankCategoryMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mp := range m.mappings {
		if mp.UserID == userID && mp.Provider == provider && mp.NormalizedName == normalized {
			cp := *mp
			return &cp, nil
		}
	}
	return nil, notFound("mapping " + normalized)
}

func (m *MemoryStorage) GetMappings(_ context.Context, userID string) ([]model.BankCategoryMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var mappings []model.BankCategoryMapping
	for _, mp := range m.mappings {
		if mp.UserID == userID {
			mappings = append(mappings, *mp)
		}
	}
	sort.Slice(mappings, func(i, j int) bool {
		if mappings[i].ApplicationCount != mappings[j].ApplicationCount {
			return mappings[i].ApplicationCount > mappings[j].ApplicationCount
		}
		return mappings[i].NormalizedName < mappings[j].NormalizedName
	})
	return mappings, nil
}

func (m *MemoryStorage) CreateMapping(_ context.Context, mapping *model.BankCategoryMapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mapping.NormalizedName == "" {
		mapping.NormalizedName = model.NormalizeBankCategory(mapping.BankCategory)
	}
	for _, mp := range m.mappings {
		if mp.UserID == mapping.UserID && mp.Provider == mapping.Provider &&
			mp.NormalizedName == mapping.NormalizedName {
			return common.ErrDuplicateEntry
		}
	}
	mapping.ID = m.next()
	mapping.CreatedAt = time.Now()
	mapping.UpdatedAt = mapping.CreatedAt
	cp := *mapping
	m.mappings[mapping.ID] = &cp
	return nil
}

func (m *MemoryStorage) UpdateMapping(_ context.Context, mapping *model.BankCategoryMapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[mapping.ID]; !ok {
		return notFound(fmt.Sprintf("mapping %d", mapping.ID))
	}
	cp := *mapping
	cp.UpdatedAt = time.Now()
	m.mappings[mapping.ID] = &cp
	return nil
}

// Reconciliation operations

func (m *MemoryStorage) CreateReconciliation(_ context.Context, rec *model.Reconciliation) error {
	if rec == nil {
		return fmt.Errorf("%w: rec", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.next()
	rec.CreatedAt = time.Now()
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetReconciliationByID(_ context.Context, id int64) (*model.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, notFound(fmt.Sprintf("reconciliation %d", id))
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStorage) GetReconciliations(_ context.Context, userID string) ([]model.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []model.Reconciliation
	for _, r := range m.recs {
		if r.UserID == userID {
			recs = append(recs, *r)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].PeriodEnd.Equal(recs[j].PeriodEnd) {
			return recs[i].PeriodEnd.After(recs[j].PeriodEnd)
		}
		return recs[i].ID > recs[j].ID
	})
	return recs, nil
}

func (m *MemoryStorage) UpdateReconciliation(_ context.Context, rec *model.Reconciliation) error {
	if rec == nil {
		return fmt.Errorf("%w: rec", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return notFound(fmt.Sprintf("reconciliation %d", rec.ID))
	}
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *MemoryStorage) CreateReconciliationItems(_ context.Context, items []model.ReconciliationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range items {
		items[i].ID = m.next()
		items[i].CreatedAt = time.Now()
		cp := items[i]
		m.recItems[cp.ID] = &cp
	}
	return nil
}

func (m *MemoryStorage) GetReconciliationItems(_ context.Context, reconciliationID int64) ([]model.ReconciliationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []model.ReconciliationItem
	for _, item := range m.recItems {
		if item.ReconciliationID == reconciliationID {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		mi, mj := items[i].Type == model.ItemMatched, items[j].Type == model.ItemMatched
		if mi != mj {
			return mi
		}
		if items[i].Confidence != items[j].Confidence {
			return items[i].Confidence > items[j].Confidence
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (m *MemoryStorage) GetReconciliationItemByID(_ context.Context, id int64) (*model.ReconciliationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.recItems[id]
	if !ok {
		return nil, notFound(fmt.Sprintf("reconciliation item %d", id))
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryStorage) UpdateReconciliationItem(_ context.Context, item *model.ReconciliationItem) error {
	if item == nil {
		return fmt.Errorf("%w: item", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recItems[item.ID]; !ok {
		return notFound(fmt.Sprintf("reconciliation item %d", item.ID))
	}
	cp := *item
	m.recItems[item.ID] = &cp
	return nil
}

func (m *MemoryStorage) DeleteReconciliationItem(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recItems[id]; !ok {
		return notFound(fmt.Sprintf("reconciliation item %d", id))
	}
	delete(m.recItems, id)
	return nil
}

// Bank connection operations

func (m *MemoryStorage) CreateBankConnection(_ context.Context, conn *model.BankConnection) error {
	if conn == nil {
		return fmt.Errorf("%w: conn", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[conn.ID]; ok {
		return common.ErrDuplicateEntry
	}
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	cp := *conn
	m.connections[conn.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetBankConnectionByID(_ context.Context, id string) (*model.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[id]
	if !ok {
		return nil, notFound("bank connection " + id)
	}
	cp := *conn
	return &cp, nil
}

func (m *MemoryStorage) GetActiveBankConnections(_ context.Context, userID string) ([]model.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var conns []model.BankConnection
	for _, c := range m.connections {
		if c.UserID == userID && c.Status == model.ConnectionActive {
			conns = append(conns, *c)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt.Before(conns[j].CreatedAt) })
	return conns, nil
}

func (m *MemoryStorage) UpdateBankConnection(_ context.Context, conn *model.BankConnection) error {
	if conn == nil {
		return fmt.Errorf("%w: conn", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[conn.ID]; !ok {
		return notFound("bank connection " + conn.ID)
	}
	cp := *conn
	cp.UpdatedAt = time.Now()
	m.connections[conn.ID] = &cp
	return nil
}

func (m *MemoryStorage) CreateSyncLog(_ context.Context, log *model.BankSyncLog) error {
	if log == nil {
		return fmt.Errorf("%w: log", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = m.next()
	cp := *log
	m.syncLogs[log.ID] = &cp
	return nil
}

func (m *MemoryStorage) UpdateSyncLog(_ context.Context, log *model.BankSyncLog) error {
	if log == nil {
		return fmt.Errorf("%w: log", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.syncLogs[log.ID]; !ok {
		return notFound(fmt.Sprintf("sync log %d", log.ID))
	}
	cp := *log
	m.syncLogs[log.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetSyncLogs(_ context.Context, connectionID string) ([]model.BankSyncLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var logs []model.BankSyncLog
	for _, l := range m.syncLogs {
		if l.ConnectionID == connectionID {
			logs = append(logs, *l)
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].StartedAt.Equal(logs[j].StartedAt) {
			return logs[i].StartedAt.After(logs[j].StartedAt)
		}
		return logs[i].ID > logs[j].ID
	})
	return logs, nil
}

// Budget operations

func (m *MemoryStorage) CreateBudget(_ context.Context, budget *model.Budget) error {
	if budget == nil {
		return fmt.Errorf("%w: budget", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.budgets {
		if b.UserID == budget.UserID && b.CategoryID == budget.CategoryID && b.Month == budget.Month {
			return common.ErrDuplicateEntry
		}
	}
	budget.ID = m.next()
	budget.CreatedAt = time.Now()
	budget.UpdatedAt = budget.CreatedAt
	cp := *budget
	m.budgets[budget.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetBudgets(_ context.Context, userID, month string) ([]model.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var budgets []model.Budget
	for _, b := range m.budgets {
		if b.UserID == userID && (month == "" || b.Month == month) {
			budgets = append(budgets, *b)
		}
	}
	sort.Slice(budgets, func(i, j int) bool {
		if budgets[i].Month != budgets[j].Month {
			return budgets[i].Month > budgets[j].Month
		}
		return budgets[i].CategoryID < budgets[j].CategoryID
	})
	return budgets, nil
}

func (m *MemoryStorage) UpdateBudget(_ context.Context, budget *model.Budget) error {
	if budget == nil {
		return fmt.Errorf("%w: budget", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.budgets[budget.ID]; !ok {
		return notFound(fmt.Sprintf("budget %d", budget.ID))
	}
	cp := *budget
	cp.UpdatedAt = time.Now()
	m.budgets[budget.ID] = &cp
	return nil
}

func (m *MemoryStorage) DeleteBudget(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.budgets[id]; !ok {
		return notFound(fmt.Sprintf("budget %d", id))
	}
	delete(m.budgets, id)
	return nil
}

// Goal operations

func (m *MemoryStorage) CreateGoal(_ context.Context, goal *model.Goal) error {
	if goal == nil {
		return fmt.Errorf("%w: goal", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	goal.ID = m.next()
	goal.CreatedAt = time.Now()
	goal.UpdatedAt = goal.CreatedAt
	cp := *goal
	m.goals[goal.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetGoalByID(_ context.Context, id int64) (*model.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	goal, ok := m.goals[id]
	if !ok {
		return nil, notFound(fmt.Sprintf("goal %d", id))
	}
	cp := *goal
	return &cp, nil
}

func (m *MemoryStorage) GetGoals(_ context.Context, userID string) ([]model.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var goals []model.Goal
	for _, g := range m.goals {
		if g.UserID == userID {
			goals = append(goals, *g)
		}
	}
	sort.Slice(goals, func(i, j int) bool {
		ai, aj := goals[i].Status == model.GoalActive, goals[j].Status == model.GoalActive
		if ai != aj {
			return ai
		}
		return goals[i].ID < goals[j].ID
	})
	return goals, nil
}

func (m *MemoryStorage) UpdateGoal(_ context.Context, goal *model.Goal) error {
	if goal == nil {
		return fmt.Errorf("%w: goal", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.goals[goal.ID]; !ok {
		return notFound(fmt.Sprintf("goal %d", goal.ID))
	}
	cp := *goal
	cp.UpdatedAt = time.Now()
	m.goals[goal.ID] = &cp
	return nil
}

func (m *MemoryStorage) DeleteGoal(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.goals[id]; !ok {
		return notFound(fmt.Sprintf("goal %d", id))
	}
	delete(m.goals, id)
	return nil
}

func (m *MemoryStorage) GetUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var users []string
	for _, a := range m.accounts {
		if a.DeletedAt == nil && !seen[a.UserID] {
			seen[a.UserID] = true
			users = append(users, a.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Database management

func (m *MemoryStorage) Migrate(_ context.Context) error { return nil }

func (m *MemoryStorage) Close() error { return nil }
