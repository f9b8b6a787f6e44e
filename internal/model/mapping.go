package model

import (
	"strings"
	"time"
)

// BankCategoryMapping links a provider-supplied category string to a user
// category. An excluded mapping is skipped entirely regardless of confidence.
type BankCategoryMapping struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ID               int64
	UserID           string
	Provider         string
	BankCategory     string // As received from the provider
	NormalizedName   string // Lookup key, see NormalizeBankCategory
	CategoryID       int
	Confidence       float64
	IsExcluded       bool
	ApplicationCount int
	OverrideCount    int
}

// NormalizeBankCategory collapses a provider category string into the lookup
// key used for mapping resolution: lowercase, single spaces, no punctuation.
func NormalizeBankCategory(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
