package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digaomatias/mymascada/internal/common"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

const categorizerSystemPrompt = "You are a personal-finance transaction categorizer. " +
	"You MUST respond with ONLY valid JSON. Do not include explanatory text or markdown " +
	"fences before or after the JSON."

// Categorizer wraps a raw Client with rate limiting, retries, and prompt
// construction for transaction and bank-category categorization.
type Categorizer struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewCategorizer creates an LLM-backed categorizer from config.
func NewCategorizer(cfg Config, logger *slog.Logger) (*Categorizer, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewCategorizerWithClient(client, cfg, logger), nil
}

// NewCategorizerWithClient wires a categorizer around an existing client.
// Used by tests to inject a mock.
func NewCategorizerWithClient(client Client, cfg Config, logger *slog.Logger) *Categorizer {
	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Categorizer{
		client:      client,
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}
}

// CategorizeTransactions asks the provider to assign one of the known
// categories to each transaction. Transactions the model cannot place are
// absent from the result.
func (c *Categorizer) CategorizeTransactions(ctx context.Context, txns []model.Transaction, categories []model.Category) ([]Suggestion, error) {
	if len(txns) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Categorize the following transactions using ONLY these categories:\n")
	for _, cat := range categories {
		sb.WriteString("- " + cat.Name + "\n")
	}
	sb.WriteString("\nTransactions:\n")
	for _, txn := range txns {
		fmt.Fprintf(&sb, "id=%s date=%s amount=%s description=%q\n",
			txn.ID, txn.Date.Format("2006-01-02"), txn.Amount.StringFixed(2), txn.EffectiveDescription())
	}
	sb.WriteString("\nRespond with a JSON array of objects: " +
		`[{"transaction_id": "...", "category": "...", "confidence": 0.0, "reason": "..."}]. ` +
		"Omit transactions you cannot categorize. Confidence is between 0 and 1.")

	reply, err := c.complete(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		TransactionID string  `json:"transaction_id"`
		Category      string  `json:"category"`
		Reason        string  `json:"reason"`
		Confidence    float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse categorization response: %w", err)
	}

	known := make(map[string]bool, len(categories))
	for _, cat := range categories {
		known[strings.ToLower(cat.Name)] = true
	}

	suggestions := make([]Suggestion, 0, len(parsed))
	for _, p := range parsed {
		if !known[strings.ToLower(p.Category)] {
			c.logger.Debug("dropping suggestion for unknown category",
				"transaction_id", p.TransactionID, "category", p.Category)
			continue
		}
		suggestions = append(suggestions, Suggestion{
			TransactionID: p.TransactionID,
			Category:      p.Category,
			Confidence:    clampConfidence(p.Confidence),
			Reason:        p.Reason,
		})
	}

	return suggestions, nil
}

// SuggestBankCategoryMapping proposes a user category for a provider-supplied
// category string.
func (c *Categorizer) SuggestBankCategoryMapping(ctx context.Context, bankCategory, provider string, categories []model.Category) (Suggestion, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A bank feed from provider %q labels transactions with the category %q.\n", provider, bankCategory)
	sb.WriteString("Pick the best match from these user categories:\n")
	for _, cat := range categories {
		sb.WriteString("- " + cat.Name + "\n")
	}
	sb.WriteString("\nRespond with a JSON object: " +
		`{"category": "...", "confidence": 0.0, "reason": "..."}. Confidence is between 0 and 1.`)

	reply, err := c.complete(ctx, sb.String())
	if err != nil {
		return Suggestion{}, err
	}

	var parsed struct {
		Category   string  `json:"category"`
		Reason     string  `json:"reason"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		return Suggestion{}, fmt.Errorf("failed to parse mapping response: %w", err)
	}
	if parsed.Category == "" {
		return Suggestion{}, fmt.Errorf("empty category in mapping response")
	}

	return Suggestion{
		Category:   parsed.Category,
		Confidence: clampConfidence(parsed.Confidence),
		Reason:     parsed.Reason,
	}, nil
}

// Chat sends a free-form assistant prompt and returns the raw reply.
func (c *Categorizer) Chat(ctx context.Context, system, prompt string) (string, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return "", err
	}

	var reply string
	err := common.WithRetry(ctx, func() error {
		var callErr error
		reply, callErr = c.client.Complete(ctx, system, prompt)
		return callErr
	}, c.retryOpts)
	return reply, err
}

// Close releases the rate limiter.
func (c *Categorizer) Close() {
	c.rateLimiter.Close()
}

func (c *Categorizer) complete(ctx context.Context, prompt string) (string, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return "", err
	}

	var reply string
	err := common.WithRetry(ctx, func() error {
		var callErr error
		reply, callErr = c.client.Complete(ctx, categorizerSystemPrompt, prompt)
		return callErr
	}, c.retryOpts)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// extractJSON strips markdown fences and any prose surrounding the first
// JSON value in a reply. Providers occasionally wrap JSON despite the system
// prompt.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
