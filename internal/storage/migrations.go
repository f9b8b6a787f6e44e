package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Accounts, categories, and transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT 'NZD',
					is_shared INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					deleted_at DATETIME
				)`,
				`CREATE INDEX idx_accounts_user ON accounts(user_id)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT,
					is_income INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, name)
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					user_description TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'PENDING',
					source TEXT NOT NULL DEFAULT 'MANUAL',
					category_id INTEGER,
					bank_category TEXT NOT NULL DEFAULT '',
					bank_provider TEXT NOT NULL DEFAULT '',
					bank_reference TEXT NOT NULL DEFAULT '',
					hash TEXT UNIQUE NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					deleted_at DATETIME,
					FOREIGN KEY (account_id) REFERENCES accounts(id)
				)`,
				`CREATE INDEX idx_transactions_user_date ON transactions(user_id, date)`,
				`CREATE INDEX idx_transactions_account ON transactions(account_id)`,
				`CREATE INDEX idx_transactions_category ON transactions(category_id)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     2,
		Description: "Categorization rules, candidates, and bank category mappings",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categorization_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					pattern TEXT NOT NULL DEFAULT '',
					match_type TEXT NOT NULL DEFAULT 'CONTAINS',
					case_sensitive INTEGER NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 100,
					amount_min TEXT,
					amount_max TEXT,
					account_type TEXT,
					condition_logic TEXT NOT NULL DEFAULT 'ALL',
					category_id INTEGER NOT NULL,
					confidence REAL NOT NULL DEFAULT 1.0,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					deleted_at DATETIME
				)`,
				`CREATE INDEX idx_rules_user_priority ON categorization_rules(user_id, priority)`,

				`CREATE TABLE IF NOT EXISTS rule_conditions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_id INTEGER NOT NULL,
					field TEXT NOT NULL,
					operator TEXT NOT NULL,
					value TEXT NOT NULL,
					FOREIGN KEY (rule_id) REFERENCES categorization_rules(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS categorization_candidates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					category_id INTEGER NOT NULL,
					method TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'PENDING',
					confidence REAL NOT NULL DEFAULT 0,
					reason TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,
				`CREATE INDEX idx_candidates_user_status ON categorization_candidates(user_id, status)`,
				`CREATE INDEX idx_candidates_transaction ON categorization_candidates(transaction_id)`,

				`CREATE TABLE IF NOT EXISTS bank_category_mappings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					bank_category TEXT NOT NULL,
					normalized_name TEXT NOT NULL,
					category_id INTEGER NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					is_excluded INTEGER NOT NULL DEFAULT 0,
					application_count INTEGER NOT NULL DEFAULT 0,
					override_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, provider, normalized_name)
				)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     3,
		Description: "Reconciliations and reconciliation items",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS reconciliations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					period_start DATETIME NOT NULL,
					period_end DATETIME NOT NULL,
					status TEXT NOT NULL DEFAULT 'OPEN',
					finalized_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (account_id) REFERENCES accounts(id)
				)`,
				`CREATE INDEX idx_reconciliations_user ON reconciliations(user_id)`,

				`CREATE TABLE IF NOT EXISTS reconciliation_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					reconciliation_id INTEGER NOT NULL,
					type TEXT NOT NULL,
					method TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					transaction_id TEXT,
					bank_reference TEXT NOT NULL DEFAULT '',
					bank_description TEXT NOT NULL DEFAULT '',
					bank_category TEXT NOT NULL DEFAULT '',
					bank_date DATETIME,
					bank_amount TEXT NOT NULL DEFAULT '0',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (reconciliation_id) REFERENCES reconciliations(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_recon_items_recon ON reconciliation_items(reconciliation_id)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     4,
		Description: "Bank connections, sync logs, budgets, and goals",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS bank_connections (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					provider_item TEXT NOT NULL DEFAULT '',
					access_token TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'PENDING',
					last_synced_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (account_id) REFERENCES accounts(id)
				)`,
				`CREATE INDEX idx_connections_user ON bank_connections(user_id)`,

				`CREATE TABLE IF NOT EXISTS bank_sync_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					connection_id TEXT NOT NULL,
					started_at DATETIME NOT NULL,
					finished_at DATETIME,
					imported INTEGER NOT NULL DEFAULT 0,
					skipped INTEGER NOT NULL DEFAULT 0,
					error TEXT NOT NULL DEFAULT '',
					FOREIGN KEY (connection_id) REFERENCES bank_connections(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS budgets (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					category_id INTEGER NOT NULL,
					month TEXT NOT NULL,
					amount TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, category_id, month)
				)`,

				`CREATE TABLE IF NOT EXISTS goals (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					target TEXT NOT NULL,
					saved TEXT NOT NULL DEFAULT '0',
					deadline DATETIME,
					status TEXT NOT NULL DEFAULT 'ACTIVE',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}
			return execAll(tx, queries)
		},
	},
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		description TEXT
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, description) VALUES (?, ?)`,
			m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
