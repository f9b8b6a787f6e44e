package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/digaomatias/mymascada/internal/bank"
	"github.com/digaomatias/mymascada/internal/categorize"
	"github.com/digaomatias/mymascada/internal/llm"
	"github.com/digaomatias/mymascada/internal/mapping"
	"github.com/digaomatias/mymascada/internal/storage"
)

// defaultGateThreshold auto-applies only high-confidence proposals; the rest
// become review candidates.
const defaultGateThreshold = 0.9

func databasePath() (string, error) {
	if p := viper.GetString("database.path"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "mymascada", "mymascada.db"), nil
}

func openStorage() (*storage.SQLiteStorage, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func llmConfig() llm.Config {
	return llm.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	}
}

// newCategorizer builds the LLM boundary, or returns nil when no provider is
// configured. The chain works without it; the final stage is just skipped.
func newCategorizer(logger *slog.Logger) (*llm.Categorizer, error) {
	cfg := llmConfig()
	if cfg.Provider == "" {
		return nil, nil
	}
	return llm.NewCategorizer(cfg, logger)
}

// buildChain assembles the categorization pipeline, cheap stages first. The
// returned recorder is nil when no LLM categorizer (and thus no mapper) is
// configured.
func buildChain(store *storage.SQLiteStorage, categorizer *llm.Categorizer, logger *slog.Logger) (*categorize.Chain, categorize.MappingRecorder) {
	threshold := viper.GetFloat64("categorize.auto_apply_threshold")
	if threshold == 0 {
		threshold = defaultGateThreshold
	}
	gate := categorize.NewGate(threshold)

	handlers := []categorize.Handler{
		categorize.NewRuleHandler(store, gate),
	}

	var recorder categorize.MappingRecorder
	if categorizer != nil {
		mapper := mapping.NewMapper(store, categorizer, logger)
		recorder = mapper
		handlers = append(handlers, categorize.NewBankCategoryHandler(mapper, gate, logger))
	}

	handlers = append(handlers, categorize.NewMLHandler(store, gate))
	if categorizer != nil {
		handlers = append(handlers, categorize.NewLLMHandler(store, categorizer, gate))
	}

	return categorize.NewChain(store, recorder, logger, handlers...), recorder
}

// newSyncer builds the bank sync service. SimpleFIN needs no credentials up
// front; Plaid is added when configured.
func newSyncer(store *storage.SQLiteStorage, chain *categorize.Chain, logger *slog.Logger) (*bank.Syncer, error) {
	providers := []bank.Provider{bank.NewSimpleFINProvider()}

	plaidCfg := bank.PlaidConfig{
		ClientID:    viper.GetString("plaid.client_id"),
		Secret:      viper.GetString("plaid.secret"),
		Environment: viper.GetString("plaid.environment"),
	}
	if plaidCfg.ClientID != "" {
		provider, err := bank.NewPlaidProvider(plaidCfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}

	return bank.NewSyncer(store, chain, logger, providers...), nil
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
