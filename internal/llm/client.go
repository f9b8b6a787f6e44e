// Package llm provides the categorization and chat boundary to hosted LLM
// providers.
package llm

import (
	"context"
	"time"
)

// Client defines the low-level interface for LLM providers.
type Client interface {
	// Complete sends a single prompt and returns the raw text reply.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds configuration for LLM clients.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int // requests per minute
	Temperature float64
	MaxTokens   int
}

// Suggestion is one proposed categorization for a transaction or bank
// category string.
type Suggestion struct {
	TransactionID string
	Category      string
	Confidence    float64
	Reason        string
}
