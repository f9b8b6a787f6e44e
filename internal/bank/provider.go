// Package bank connects user accounts to external transaction providers and
// imports their activity.
package bank

import (
	"context"
	"time"

	"github.com/digaomatias/mymascada/internal/model"
)

// Provider fetches account and transaction data from an external source.
type Provider interface {
	// Name identifies the provider, stored on imported transactions.
	Name() string

	// CreateLinkToken starts the provider's account linking flow.
	CreateLinkToken(ctx context.Context, userID string) (string, error)

	// ExchangePublicToken completes the linking flow, returning the access
	// token and the provider-side item identifier.
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)

	// FetchTransactions returns all transactions for the connection within
	// the date range. Amounts are signed: negative for spending.
	FetchTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error)
}
