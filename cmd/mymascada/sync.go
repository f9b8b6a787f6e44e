package main

import (
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/digaomatias/mymascada/internal/bank"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync transactions from linked bank connections",
		Long: `Fetch new transactions for a user's active bank connections,
deduplicate them against the existing ledger, and run the categorization
pipeline over the imports.`,
		RunE: runSync,
	}

	cmd.Flags().String("user", "", "user ID to sync (required)")
	cmd.Flags().String("connection", "", "sync a single connection instead of all")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	connectionID, _ := cmd.Flags().GetString("connection")
	logger := slog.Default()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	categorizer, err := newCategorizer(logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM categorizer: %w", err)
	}
	if categorizer != nil {
		defer categorizer.Close()
	}

	chain, _ := buildChain(store, categorizer, logger)
	syncer, err := newSyncer(store, chain, logger)
	if err != nil {
		return fmt.Errorf("failed to build bank syncer: %w", err)
	}

	if connectionID != "" {
		result, err := syncer.Sync(cmd.Context(), userID, connectionID)
		if err != nil {
			return err
		}
		printSyncResults([]bank.SyncResult{*result})
		return nil
	}

	connections, err := store.GetActiveBankConnections(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	if len(connections) == 0 {
		fmt.Println("No active bank connections.")
		return nil
	}

	bar := progressbar.NewOptions(len(connections),
		progressbar.OptionSetDescription("Syncing connections"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	results := make([]bank.SyncResult, 0, len(connections))
	for _, conn := range connections {
		result, err := syncer.Sync(cmd.Context(), userID, conn.ID)
		if err != nil {
			logger.Error("connection sync failed", "connection_id", conn.ID, "error", err)
		} else {
			results = append(results, *result)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	printSyncResults(results)
	return nil
}

func printSyncResults(results []bank.SyncResult) {
	for _, r := range results {
		fmt.Printf("%s: imported %d, skipped %d duplicates, auto-categorized %d, %d for review\n",
			r.ConnectionID, r.Imported, r.Skipped, r.AutoApplied, r.Candidates)
	}
}
