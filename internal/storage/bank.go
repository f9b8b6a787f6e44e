package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digaomatias/mymascada/internal/model"
)

func scanBankConnection(row rowScanner) (*model.BankConnection, error) {
	var conn model.BankConnection
	var lastSyncedAt sql.NullTime
	err := row.Scan(&conn.ID, &conn.UserID, &conn.AccountID, &conn.Provider,
		&conn.ProviderItem, &conn.AccessToken, &conn.Status, &lastSyncedAt,
		&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conn.LastSyncedAt = nullTimeFromDB(lastSyncedAt)
	return &conn, nil
}

// CreateBankConnection inserts a provider connection.
func (s *SQLiteStorage) CreateBankConnection(ctx context.Context, conn *model.BankConnection) error {
	if conn == nil {
		return fmt.Errorf("%w: conn", ErrNilParameter)
	}
	if err := validateString(conn.ID, "conn.ID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO bank_connections
		(id, user_id, account_id, provider, provider_item, access_token, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, conn.AccountID, conn.Provider, conn.ProviderItem,
		conn.AccessToken, conn.Status)
	if err != nil {
		return fmt.Errorf("failed to create bank connection: %w", wrapDuplicate(err))
	}
	return nil
}

// GetBankConnectionByID fetches one connection.
func (s *SQLiteStorage) GetBankConnectionByID(ctx context.Context, id string) (*model.BankConnection, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, account_id, provider,
		provider_item, access_token, status, last_synced_at, created_at, updated_at
		FROM bank_connections WHERE id = ?`, id)
	conn, err := scanBankConnection(row)
	if err != nil {
		return nil, wrapNotFound(err, "bank connection "+id)
	}
	return conn, nil
}

// GetActiveBankConnections lists the user's connections eligible for sync.
func (s *SQLiteStorage) GetActiveBankConnections(ctx context.Context, userID string) ([]model.BankConnection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, account_id, provider,
		provider_item, access_token, status, last_synced_at, created_at, updated_at
		FROM bank_connections WHERE user_id = ? AND status = ? ORDER BY created_at`,
		userID, model.ConnectionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []model.BankConnection
	for rows.Next() {
		conn, err := scanBankConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// UpdateBankConnection persists a connection's status, token, and sync time.
func (s *SQLiteStorage) UpdateBankConnection(ctx context.Context, conn *model.BankConnection) error {
	if conn == nil {
		return fmt.Errorf("%w: conn", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE bank_connections SET
		provider_item = ?, access_token = ?, status = ?, last_synced_at = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		conn.ProviderItem, conn.AccessToken, conn.Status,
		nullTimeToDB(conn.LastSyncedAt), conn.ID)
	if err != nil {
		return fmt.Errorf("failed to update bank connection: %w", err)
	}
	return requireRow(result, "bank connection "+conn.ID)
}

// CreateSyncLog records the start of a sync run and backfills its ID.
func (s *SQLiteStorage) CreateSyncLog(ctx context.Context, log *model.BankSyncLog) error {
	if log == nil {
		return fmt.Errorf("%w: log", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO bank_sync_logs
		(connection_id, started_at, finished_at, imported, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		log.ConnectionID, log.StartedAt, nullTimeToDB(log.FinishedAt),
		log.Imported, log.Skipped, log.Error)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = id
	return nil
}

// UpdateSyncLog records the outcome of a sync run.
func (s *SQLiteStorage) UpdateSyncLog(ctx context.Context, log *model.BankSyncLog) error {
	if log == nil {
		return fmt.Errorf("%w: log", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE bank_sync_logs SET
		finished_at = ?, imported = ?, skipped = ?, error = ? WHERE id = ?`,
		nullTimeToDB(log.FinishedAt), log.Imported, log.Skipped, log.Error, log.ID)
	if err != nil {
		return fmt.Errorf("failed to update sync log: %w", err)
	}
	return requireRow(result, fmt.Sprintf("sync log %d", log.ID))
}

// GetSyncLogs lists a connection's sync runs, newest first.
func (s *SQLiteStorage) GetSyncLogs(ctx context.Context, connectionID string) ([]model.BankSyncLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, connection_id, started_at,
		finished_at, imported, skipped, error FROM bank_sync_logs
		WHERE connection_id = ? ORDER BY started_at DESC, id DESC`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []model.BankSyncLog
	for rows.Next() {
		var l model.BankSyncLog
		var finishedAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.ConnectionID, &l.StartedAt, &finishedAt,
			&l.Imported, &l.Skipped, &l.Error); err != nil {
			return nil, err
		}
		l.FinishedAt = nullTimeFromDB(finishedAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
