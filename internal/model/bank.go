package model

import "time"

// BankConnectionStatus tracks the health of an external provider linkage.
type BankConnectionStatus string

// Bank connection status constants.
const (
	ConnectionActive   BankConnectionStatus = "ACTIVE"
	ConnectionErrored  BankConnectionStatus = "ERRORED"
	ConnectionRevoked  BankConnectionStatus = "REVOKED"
	ConnectionPending  BankConnectionStatus = "PENDING"
	ConnectionDisabled BankConnectionStatus = "DISABLED"
)

// BankConnection links a user account to an external data provider.
// AccessToken is the provider-issued token from the OAuth exchange.
type BankConnection struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt *time.Time
	ID           string
	UserID       string
	AccountID    string
	Provider     string
	ProviderItem string // Provider-side item/connection identifier
	AccessToken  string
	Status       BankConnectionStatus
}

// BankSyncLog records one sync run against a connection.
type BankSyncLog struct {
	StartedAt    time.Time
	FinishedAt   *time.Time
	ID           int64
	ConnectionID string
	Imported     int
	Skipped      int
	Error        string
}
