package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/digaomatias/mymascada/internal/categorize"
	"github.com/digaomatias/mymascada/internal/chat"
	"github.com/digaomatias/mymascada/internal/jobs"
	"github.com/digaomatias/mymascada/internal/recon"
	"github.com/digaomatias/mymascada/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Start the JSON API with background jobs. Bank sync, LLM
categorization, and chat are enabled when their providers are configured;
their routes return 503 otherwise.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	chain, recorder := buildChain(store, categorizer, logger)

	syncer, err := newSyncer(store, chain, logger)
	if err != nil {
		return fmt.Errorf("failed to build bank syncer: %w", err)
	}

	var assistant *chat.Assistant
	if categorizer != nil {
		assistant = chat.NewAssistant(store, categorizer, logger)
	}

	scheduler := jobs.NewScheduler(store, syncer, chain, logger)
	if err := scheduler.Start(jobs.Config{
		SyncSchedule:       viper.GetString("jobs.sync_schedule"),
		CategorizeSchedule: viper.GetString("jobs.categorize_schedule"),
	}); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	tokens := viper.GetStringMapString("server.tokens")
	if len(tokens) == 0 {
		return fmt.Errorf("server.tokens must map at least one API token to a user id")
	}

	srv, err := server.New(server.Config{
		Addr:            viper.GetString("server.addr"),
		Tokens:          tokens,
		ReadTimeout:     durationOrDefault("server.read_timeout", 15*time.Second),
		WriteTimeout:    durationOrDefault("server.write_timeout", 60*time.Second),
		ShutdownTimeout: durationOrDefault("server.shutdown_timeout", 10*time.Second),
	}, server.Deps{
		Storage:    store,
		Chain:      chain,
		Candidates: categorize.NewCandidateService(store, recorder, logger),
		Recon:      recon.NewService(store, logger),
		Syncer:     syncer,
		Assistant:  assistant,
		Jobs:       scheduler,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	return srv.Start(cmd.Context())
}
