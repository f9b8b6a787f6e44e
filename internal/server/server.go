// Package server exposes the application over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/digaomatias/mymascada/internal/bank"
	"github.com/digaomatias/mymascada/internal/categorize"
	"github.com/digaomatias/mymascada/internal/chat"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/recon"
	"github.com/digaomatias/mymascada/internal/service"
)

// Config holds HTTP server settings.
type Config struct {
	Addr string
	// Tokens maps bearer tokens to user IDs.
	Tokens map[string]string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Categorizer runs transactions through the categorization pipeline.
type Categorizer interface {
	Run(ctx context.Context, userID string, txns []model.Transaction) (categorize.Summary, error)
}

// Recategorizer schedules an async categorization sweep. Satisfied by
// jobs.Scheduler.
type Recategorizer interface {
	EnqueueRecategorization(userID string) bool
}

// Server wires the application services into HTTP routes.
type Server struct {
	config     Config
	storage    service.Storage
	chain      Categorizer
	candidates *categorize.CandidateService
	recon      *recon.Service
	syncer     *bank.Syncer
	assistant  *chat.Assistant
	jobs       Recategorizer
	logger     *slog.Logger
	http       *http.Server
}

// Deps collects the services the server exposes. Optional fields may be nil;
// their routes then return 503.
type Deps struct {
	Storage    service.Storage
	Chain      Categorizer
	Candidates *categorize.CandidateService
	Recon      *recon.Service
	Syncer     *bank.Syncer
	Assistant  *chat.Assistant
	Jobs       Recategorizer
	Logger     *slog.Logger
}

// New creates a server with all routes registered.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if len(cfg.Tokens) == 0 {
		return nil, fmt.Errorf("at least one API token is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:     cfg,
		storage:    deps.Storage,
		chain:      deps.Chain,
		candidates: deps.Candidates,
		recon:      deps.Recon,
		syncer:     deps.Syncer,
		assistant:  deps.Assistant,
		jobs:       deps.Jobs,
		logger:     logger.With("component", "server"),
	}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware, s.logMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleCreateTransactions).Methods(http.MethodPost)
	api.HandleFunc("/transactions/categorize", s.handleCategorize).Methods(http.MethodPost)
	api.HandleFunc("/transactions/bulk-delete", s.handleBulkDeleteTransactions).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", s.handleUpdateAccount).Methods(http.MethodPut)
	api.HandleFunc("/accounts/{id}", s.handleDeleteAccount).Methods(http.MethodDelete)

	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.handleUpdateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	api.HandleFunc("/budgets", s.handleListBudgets).Methods(http.MethodGet)
	api.HandleFunc("/budgets", s.handleCreateBudget).Methods(http.MethodPost)
	api.HandleFunc("/budgets/{id}", s.handleUpdateBudget).Methods(http.MethodPut)
	api.HandleFunc("/budgets/{id}", s.handleDeleteBudget).Methods(http.MethodDelete)

	api.HandleFunc("/goals", s.handleListGoals).Methods(http.MethodGet)
	api.HandleFunc("/goals", s.handleCreateGoal).Methods(http.MethodPost)
	api.HandleFunc("/goals/{id}", s.handleUpdateGoal).Methods(http.MethodPut)
	api.HandleFunc("/goals/{id}", s.handleDeleteGoal).Methods(http.MethodDelete)

	api.HandleFunc("/rules", s.handleListRules).Methods(http.MethodGet)
	api.HandleFunc("/rules", s.handleCreateRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/reorder", s.handleReorderRules).Methods(http.MethodPost)
	api.HandleFunc("/rules/test", s.handleTestRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id}", s.handleGetRule).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", s.handleUpdateRule).Methods(http.MethodPut)
	api.HandleFunc("/rules/{id}", s.handleDeleteRule).Methods(http.MethodDelete)

	api.HandleFunc("/candidates", s.handleListCandidates).Methods(http.MethodGet)
	api.HandleFunc("/candidates/{id}/apply", s.handleApplyCandidate).Methods(http.MethodPost)
	api.HandleFunc("/candidates/{id}/reject", s.handleRejectCandidate).Methods(http.MethodPost)

	api.HandleFunc("/mappings", s.handleListMappings).Methods(http.MethodGet)
	api.HandleFunc("/mappings/{id}", s.handleUpdateMapping).Methods(http.MethodPut)

	api.HandleFunc("/reconciliations", s.handleListReconciliations).Methods(http.MethodGet)
	api.HandleFunc("/reconciliations", s.handleCreateReconciliation).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations/{id}", s.handleGetReconciliation).Methods(http.MethodGet)
	api.HandleFunc("/reconciliations/{id}/auto-match", s.handleAutoMatch).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations/{id}/items/{itemID}/match", s.handleManualMatch).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations/{id}/items/{itemID}/unlink", s.handleUnlink).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations/{id}/bulk-approve", s.handleBulkApprove).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations/{id}/import-unmatched", s.handleImportUnmatched).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations/{id}/finalize", s.handleFinalize).Methods(http.MethodPost)

	api.HandleFunc("/bank/link-token", s.handleCreateLinkToken).Methods(http.MethodPost)
	api.HandleFunc("/bank/connections", s.handleListConnections).Methods(http.MethodGet)
	api.HandleFunc("/bank/connections", s.handleCompleteLink).Methods(http.MethodPost)
	api.HandleFunc("/bank/connections/{id}/sync", s.handleSyncConnection).Methods(http.MethodPost)
	api.HandleFunc("/bank/connections/{id}/logs", s.handleListSyncLogs).Methods(http.MethodGet)
	api.HandleFunc("/bank/sync", s.handleSyncAll).Methods(http.MethodPost)

	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)

	return r
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
