package bank

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
)

// SimpleFINProvider implements Provider against a SimpleFIN bridge. There is
// no hosted link flow: the user obtains a setup token from their bridge and
// submits it as the public token, which is claimed for a long-lived access
// URL.
type SimpleFINProvider struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSimpleFINProvider creates a SimpleFIN-backed provider.
func NewSimpleFINProvider() *SimpleFINProvider {
	return &SimpleFINProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "simplefin"),
	}
}

// Name identifies this provider on imported transactions.
func (p *SimpleFINProvider) Name() string { return "simplefin" }

// CreateLinkToken is not part of the SimpleFIN protocol; setup tokens come
// from the user's bridge and go straight to the exchange step.
func (p *SimpleFINProvider) CreateLinkToken(_ context.Context, _ string) (string, error) {
	return "", common.NewUserError(
		"simplefin has no link flow; obtain a setup token from your bridge and submit it directly",
		common.ErrInvalidConfig)
}

// ExchangePublicToken claims a SimpleFIN setup token. The token is a
// base64-encoded claim URL; POSTing to it yields the access URL used for all
// later fetches.
func (p *SimpleFINProvider) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	decoded, err := base64.URLEncoding.DecodeString(publicToken)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(publicToken)
		if err != nil {
			return "", "", fmt.Errorf("%w: failed to decode simplefin setup token: %v", common.ErrBankConnection, err)
		}
	}

	claimURL := string(decoded)
	if !strings.HasPrefix(claimURL, "http://") && !strings.HasPrefix(claimURL, "https://") {
		return "", "", fmt.Errorf("%w: decoded setup token is not a URL", common.ErrBankConnection)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create claim request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: failed to claim access URL: %v", common.ErrBankConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("%w: claim failed with status %d: %s", common.ErrBankConnection, resp.StatusCode, string(body))
	}

	accessBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read access URL: %w", err)
	}
	accessURL := strings.TrimSpace(string(accessBytes))
	if !strings.HasPrefix(accessURL, "http://") && !strings.HasPrefix(accessURL, "https://") {
		return "", "", fmt.Errorf("%w: invalid access URL received", common.ErrBankConnection)
	}

	parsed, err := url.Parse(accessURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: unparseable access URL: %v", common.ErrBankConnection, err)
	}

	p.logger.Info("claimed simplefin access URL", "host", parsed.Host)
	return accessURL, parsed.Host, nil
}

// SimpleFIN API response shapes.
type sfAccountSet struct {
	Accounts []sfAccount `json:"accounts"`
}

type sfAccount struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Currency     string          `json:"currency"`
	Transactions []sfTransaction `json:"transactions"`
}

type sfTransaction struct {
	ID          string `json:"id"`
	Posted      int64  `json:"posted"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Pending     bool   `json:"pending"`
}

// FetchTransactions pulls posted transactions in the range. The access token
// is the claimed access URL.
func (p *SimpleFINProvider) FetchTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error) {
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	u, err := url.Parse(accessToken + "/accounts")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid access URL: %v", common.ErrBankConnection, err)
	}
	q := u.Query()
	q.Set("start-date", strconv.FormatInt(startDate.Unix(), 10))
	// SimpleFIN's end-date is exclusive.
	q.Set("end-date", strconv.FormatInt(endDate.AddDate(0, 0, 1).Unix(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch failed: %v", common.ErrBankConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("%w: simplefin rate limited", common.ErrBankRateLimit),
			Retryable: true,
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: simplefin returned %d: %s", common.ErrBankConnection, resp.StatusCode, string(body))
	}

	var set sfAccountSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var out []model.Transaction
	for _, account := range set.Accounts {
		for _, tx := range account.Transactions {
			if tx.Pending {
				continue
			}
			date := time.Unix(tx.Posted, 0).UTC()
			if date.Before(startDate) || date.After(endDate) {
				continue
			}

			// Amounts arrive as signed cent strings; debits are already
			// negative, matching the ledger convention.
			amount, err := parseSimpleFINAmount(tx.Amount)
			if err != nil {
				return nil, fmt.Errorf("failed to parse amount %q: %w", tx.Amount, err)
			}

			description := tx.Description
			if description == "" {
				description = tx.Payee
			}

			out = append(out, model.Transaction{
				Date:          date,
				Description:   description,
				Amount:        amount,
				Status:        model.StatusCleared,
				Source:        model.SourceBankAPI,
				BankProvider:  p.Name(),
				BankReference: fmt.Sprintf("%s_%s", account.ID, tx.ID),
			})
		}
	}

	p.logger.Info("fetched transactions", "count", len(out),
		"accounts", len(set.Accounts))
	return out, nil
}

func parseSimpleFINAmount(s string) (decimal.Decimal, error) {
	cents, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.New(cents, -2), nil
}
