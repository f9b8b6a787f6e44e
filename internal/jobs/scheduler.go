// Package jobs runs recurring background work: bank syncs and
// categorization sweeps over the uncategorized backlog.
package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/digaomatias/mymascada/internal/bank"
	"github.com/digaomatias/mymascada/internal/categorize"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// Config holds the cron expressions for recurring jobs. Empty disables a job.
type Config struct {
	SyncSchedule       string // e.g. "0 6 * * *"
	CategorizeSchedule string // e.g. "30 6 * * *"
}

// Categorizer runs transactions through the categorization pipeline.
type Categorizer interface {
	Run(ctx context.Context, userID string, txns []model.Transaction) (categorize.Summary, error)
}

// Scheduler owns the cron loop and an async recategorization queue.
type Scheduler struct {
	storage     service.Storage
	syncer      *bank.Syncer
	categorizer Categorizer
	logger      *slog.Logger
	cron        *cron.Cron

	queue  chan string
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. syncer may be nil when no bank provider
// is configured.
func NewScheduler(storage service.Storage, syncer *bank.Syncer, categorizer Categorizer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		storage:     storage,
		syncer:      syncer,
		categorizer: categorizer,
		logger:      logger.With("component", "jobs"),
		cron:        cron.New(),
		queue:       make(chan string, 64),
	}
}

// Start registers the configured jobs and begins the cron loop plus the
// recategorization worker.
func (s *Scheduler) Start(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if cfg.SyncSchedule != "" && s.syncer != nil {
		if _, err := s.cron.AddFunc(cfg.SyncSchedule, func() { s.syncAll(ctx) }); err != nil {
			cancel()
			return err
		}
	}
	if cfg.CategorizeSchedule != "" && s.categorizer != nil {
		if _, err := s.cron.AddFunc(cfg.CategorizeSchedule, func() { s.categorizeBacklogAll(ctx) }); err != nil {
			cancel()
			return err
		}
	}

	s.wg.Add(1)
	go s.worker(ctx)

	s.cron.Start()
	s.logger.Info("scheduler started",
		"sync_schedule", cfg.SyncSchedule,
		"categorize_schedule", cfg.CategorizeSchedule)
	return nil
}

// Stop halts the cron loop and drains the worker.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
}

// EnqueueRecategorization schedules an async categorization sweep for a
// user, typically after a bulk approval creates new mappings. Returns false
// if the queue is full.
func (s *Scheduler) EnqueueRecategorization(userID string) bool {
	select {
	case s.queue <- userID:
		return true
	default:
		s.logger.Warn("recategorization queue full, dropping request", "user_id", userID)
		return false
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case userID := <-s.queue:
			s.categorizeBacklog(ctx, userID)
		}
	}
}

func (s *Scheduler) syncAll(ctx context.Context) {
	users, err := s.activeUsers(ctx)
	if err != nil {
		s.logger.Error("failed to list users for sync", "error", err)
		return
	}
	for _, userID := range users {
		results, err := s.syncer.SyncAll(ctx, userID)
		if err != nil {
			s.logger.Error("scheduled sync failed", "user_id", userID, "error", err)
			continue
		}
		for _, r := range results {
			s.logger.Info("scheduled sync done", "user_id", userID,
				"connection_id", r.ConnectionID, "imported", r.Imported)
		}
	}
}

func (s *Scheduler) categorizeBacklogAll(ctx context.Context) {
	users, err := s.activeUsers(ctx)
	if err != nil {
		s.logger.Error("failed to list users for categorization", "error", err)
		return
	}
	for _, userID := range users {
		s.categorizeBacklog(ctx, userID)
	}
}

func (s *Scheduler) categorizeBacklog(ctx context.Context, userID string) {
	txns, err := s.storage.GetUncategorizedTransactions(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load backlog", "user_id", userID, "error", err)
		return
	}
	if len(txns) == 0 {
		return
	}

	summary, err := s.categorizer.Run(ctx, userID, txns)
	if err != nil {
		s.logger.Error("backlog categorization failed", "user_id", userID, "error", err)
		return
	}
	s.logger.Info("backlog categorization done", "user_id", userID,
		"processed", summary.Processed,
		"auto_applied", summary.AutoApplied,
		"candidates", summary.Candidates)
}

func (s *Scheduler) activeUsers(ctx context.Context) ([]string, error) {
	return s.storage.GetUserIDs(ctx)
}
