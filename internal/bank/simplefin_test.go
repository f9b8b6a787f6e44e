package bank

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/model"
)

func TestSimpleFINExchangeClaimsAccessURL(t *testing.T) {
	var claimed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/claim":
			require.Equal(t, http.MethodPost, r.Method)
			claimed = true
			fmt.Fprintf(w, "%s/access", "http://"+r.Host)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	provider := NewSimpleFINProvider()
	token := base64.URLEncoding.EncodeToString([]byte(srv.URL + "/claim"))

	accessURL, itemID, err := provider.ExchangePublicToken(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, srv.URL+"/access", accessURL)
	assert.NotEmpty(t, itemID)
}

func TestSimpleFINExchangeRejectsBadToken(t *testing.T) {
	provider := NewSimpleFINProvider()

	_, _, err := provider.ExchangePublicToken(context.Background(), "not base64 at all!!")
	assert.Error(t, err)

	// Valid base64 that does not decode to a URL.
	_, _, err = provider.ExchangePublicToken(context.Background(),
		base64.URLEncoding.EncodeToString([]byte("garbage")))
	assert.Error(t, err)
}

func TestSimpleFINFetchTransactions(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	posted := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/access/accounts", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("start-date"))
		fmt.Fprintf(w, `{
			"accounts": [{
				"id": "chk-1",
				"name": "Checking",
				"currency": "NZD",
				"transactions": [
					{"id": "t1", "posted": %d, "amount": "-5430", "description": "COUNTDOWN AUCKLAND"},
					{"id": "t2", "posted": %d, "amount": "-1999", "description": "PENDING THING", "pending": true},
					{"id": "t3", "posted": %d, "amount": "250000", "description": "SALARY"}
				]
			}]
		}`, posted, posted, posted)
	}))
	defer srv.Close()

	provider := NewSimpleFINProvider()
	txns, err := provider.FetchTransactions(context.Background(), srv.URL+"/access", start, end)
	require.NoError(t, err)
	require.Len(t, txns, 2, "pending transactions are skipped")

	assert.Equal(t, "-54.3", txns[0].Amount.String())
	assert.Equal(t, "COUNTDOWN AUCKLAND", txns[0].Description)
	assert.Equal(t, "simplefin", txns[0].BankProvider)
	assert.Equal(t, "chk-1_t1", txns[0].BankReference)
	assert.Equal(t, model.StatusCleared, txns[0].Status)
	assert.Equal(t, model.SourceBankAPI, txns[0].Source)

	assert.Equal(t, "2500", txns[1].Amount.String())
}

func TestSimpleFINFetchRejectsInvertedRange(t *testing.T) {
	provider := NewSimpleFINProvider()
	now := time.Now()

	_, err := provider.FetchTransactions(context.Background(), "http://example.invalid", now, now.AddDate(0, 0, -1))
	assert.Error(t, err)
}
