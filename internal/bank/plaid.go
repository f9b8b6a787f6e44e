package bank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// PlaidConfig holds Plaid API credentials.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
}

// Validate ensures all required fields are present.
func (c *PlaidConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret", common.ErrMissingConfig)
	}
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("%w: plaid environment must be sandbox or production", common.ErrInvalidConfig)
	}
	return nil
}

// PlaidProvider implements Provider against the Plaid API.
type PlaidProvider struct {
	client    *plaid.APIClient
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// NewPlaidProvider creates a Plaid-backed provider.
func NewPlaidProvider(cfg PlaidConfig) (*PlaidProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	if cfg.Environment == "production" {
		configuration.UseEnvironment(plaid.Production)
	} else {
		configuration.UseEnvironment(plaid.Sandbox)
	}

	return &PlaidProvider{
		client: plaid.NewAPIClient(configuration),
		logger: slog.Default().With("component", "plaid"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Name identifies this provider on imported transactions.
func (p *PlaidProvider) Name() string { return "plaid" }

// CreateLinkToken starts the Plaid Link flow for a user.
func (p *PlaidProvider) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: userID}
	request := plaid.NewLinkTokenCreateRequest(
		"MyMascada",
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		user,
	)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, _, err := p.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", p.wrapError("failed to create link token", err)
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken completes the Link flow.
func (p *PlaidProvider) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := p.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", "", p.wrapError("failed to exchange public token", err)
	}
	return resp.GetAccessToken(), resp.GetItemId(), nil
}

// FetchTransactions pulls all transactions in the range, paging through
// Plaid's API with retry on rate limits.
func (p *PlaidProvider) FetchTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error) {
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	p.logger.Info("fetching transactions",
		"start_date", startDate.Format("2006-01-02"),
		"end_date", endDate.Format("2006-01-02"))

	var all []plaid.Transaction
	offset := int32(0)
	const pageSize = int32(500) // Plaid's max page size

	for {
		var page []plaid.Transaction

		retryErr := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(
				accessToken,
				startDate.Format("2006-01-02"),
				endDate.Format("2006-01-02"),
			)
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(pageSize),
				Offset: plaid.PtrInt32(offset),
			})

			resp, _, err := p.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				if plaidErr := extractPlaidError(err); plaidErr != nil {
					if plaidErr.ErrorCode == "RATE_LIMIT_EXCEEDED" {
						p.logger.Warn("rate limit hit, will retry", "error", plaidErr.ErrorMessage)
						return &common.RetryableError{Err: err, Retryable: true}
					}
					return fmt.Errorf("plaid API error: %s - %s", plaidErr.ErrorCode, plaidErr.ErrorMessage)
				}
				return fmt.Errorf("failed to fetch transactions: %w", err)
			}

			page = resp.GetTransactions()
			return nil
		}, p.retryOpts)
		if retryErr != nil {
			return nil, retryErr
		}

		all = append(all, page...)
		if len(page) < int(pageSize) {
			break
		}
		offset += pageSize
	}

	p.logger.Info("fetched all transactions", "count", len(all))

	transactions := make([]model.Transaction, 0, len(all))
	for _, pt := range all {
		transactions = append(transactions, p.mapTransaction(pt))
	}
	return transactions, nil
}

// mapTransaction converts a Plaid transaction into the local model. Plaid
// reports positive amounts for debits, so the sign is flipped.
func (p *PlaidProvider) mapTransaction(pt plaid.Transaction) model.Transaction {
	date, err := time.Parse("2006-01-02", pt.GetDate())
	if err != nil {
		p.logger.Error("failed to parse transaction date", "date", pt.GetDate(), "error", err)
		date = time.Now()
	}

	description := pt.GetMerchantName()
	if description == "" {
		description = pt.GetName()
	}
	description = cleanMerchantName(description)

	bankCategory := ""
	if categories := pt.GetCategory(); len(categories) > 0 {
		bankCategory = strings.Join(categories, " > ")
	}

	amount := decimal.NewFromFloat(pt.GetAmount()).Neg()

	txn := model.Transaction{
		Date:          date,
		Description:   description,
		Amount:        amount,
		Status:        model.StatusCleared,
		Source:        model.SourceBankAPI,
		BankCategory:  bankCategory,
		BankProvider:  p.Name(),
		BankReference: pt.GetTransactionId(),
	}
	return txn
}

// cleanMerchantName title-cases a merchant name and strips trailing
// transaction numbers and corporate suffixes.
func cleanMerchantName(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, word := range words {
		runes := []rune(word)
		for j := range runes {
			if j == 0 || !isLetter(runes[j-1]) {
				runes[j] = toUpper(runes[j])
			}
		}
		words[i] = string(runes)
	}

	// A trailing long digit run is usually a reference number.
	if len(words) > 1 {
		last := words[len(words)-1]
		if len(last) > 5 && isAllDigits(last) {
			words = words[:len(words)-1]
		}
	}
	name = strings.Join(words, " ")

	suffixes := []string{" Llc", " Inc", " Corp", " Corporation", " Company", " Co", " Ltd", " Limited"}
	changed := true
	for changed {
		changed = false
		for _, suffix := range suffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}

	return strings.TrimSpace(name)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}

func (p *PlaidProvider) wrapError(msg string, err error) error {
	if plaidErr := extractPlaidError(err); plaidErr != nil {
		return fmt.Errorf("%s: %w: %s - %s", msg, common.ErrBankConnection,
			plaidErr.ErrorCode, plaidErr.ErrorMessage)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

var _ Provider = (*PlaidProvider)(nil)
