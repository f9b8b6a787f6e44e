// Package export writes monthly spending reports to Google Sheets.
package export

import (
	"fmt"
	"time"

	"github.com/digaomatias/mymascada/internal/common"
)

// Config holds Google Sheets export configuration. Either a service account
// key or an OAuth2 client with refresh token must be supplied.
type Config struct {
	SpreadsheetID      string // Reuse an existing spreadsheet when set
	SpreadsheetName    string
	ServiceAccountPath string
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// Validate ensures the config is usable and fills defaults.
func (c *Config) Validate() error {
	if c.ServiceAccountPath == "" {
		if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
			return fmt.Errorf("%w: either a service account key or OAuth2 client credentials with a refresh token", common.ErrMissingConfig)
		}
	}
	if c.SpreadsheetName == "" {
		c.SpreadsheetName = "MyMascada Monthly Report"
	}
	if c.TimeZone == "" {
		c.TimeZone = "Pacific/Auckland"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return nil
}
