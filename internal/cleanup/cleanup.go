// Package cleanup hosts the background sweeper that keeps the order
// store free of rows whose referents are gone: orders pointing at
// deleted listings, stale rate-limit windows and terminal orders past
// the retention window.
package cleanup

import (
	"context"
	"time"

	"tradedesk/internal/repository"
	"tradedesk/internal/storage"

	"github.com/rs/zerolog"
)

// orphanBatch bounds how many orphaned orders one sweep removes.
const orphanBatch = 100

// rateLimitRetention is how long expired limiter windows are kept.
const rateLimitRetention = 24 * time.Hour

// Sweeper periodically removes orphaned orders, archives old terminal
// orders and prunes expired rate-limit windows.
type Sweeper struct {
	cleanupRepo repository.CleanupRepository
	orderRepo   repository.OrderRepository
	messageRepo repository.MessageRepository
	store       storage.ObjectStore
	interval    time.Duration
	retention   time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSweeper creates a sweeper. Run must be called to start it.
func NewSweeper(
	cleanupRepo repository.CleanupRepository,
	orderRepo repository.OrderRepository,
	messageRepo repository.MessageRepository,
	store storage.ObjectStore,
	interval, retention time.Duration,
	logger zerolog.Logger,
) *Sweeper {
	return &Sweeper{
		cleanupRepo: cleanupRepo,
		orderRepo:   orderRepo,
		messageRepo: messageRepo,
		store:       store,
		interval:    interval,
		retention:   retention,
		logger:      logger.With().Str("component", "cleanup").Logger(),
		now:         time.Now,
	}
}

// Run sweeps once immediately, then on every tick until ctx is
// cancelled. It blocks; callers start it in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cleanup sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass. Each phase is independent; a failure in
// one is logged and does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepOrphans(ctx)
	s.archiveTerminal(ctx)
	s.pruneRateLimits(ctx)
}

// sweepOrphans hard-deletes orders whose listing no longer exists.
// The listing row is already gone, so there is no reservation left to
// release; only the order, its messages and their stored files go.
func (s *Sweeper) sweepOrphans(ctx context.Context) {
	orphans, err := s.cleanupRepo.OrphanedOrders(ctx, orphanBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to find orphaned orders")
		return
	}
	if len(orphans) == 0 {
		return
	}

	removed := 0
	for i := range orphans {
		order := &orphans[i]

		messages, err := s.messageRepo.ListByOrder(ctx, order.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to list orphan messages")
			continue
		}

		tx, err := s.orderRepo.BeginTx(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to begin cleanup transaction")
			return
		}
		if err := s.orderRepo.Delete(ctx, tx, order.ID); err != nil {
			s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to delete orphaned order")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback cleanup transaction")
			}
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit orphan delete")
			continue
		}
		removed++

		// Stored files go last; a leftover object is cheaper than a
		// dangling attachment reference.
		for _, msg := range messages {
			for _, att := range msg.Attachments {
				if err := s.store.Delete(ctx, att.URL); err != nil {
					s.logger.Warn().Err(err).Str("url", att.URL).Msg("failed to delete orphan attachment")
				}
			}
		}
		for _, att := range order.Attachments {
			if err := s.store.Delete(ctx, att.URL); err != nil {
				s.logger.Warn().Err(err).Str("url", att.URL).Msg("failed to delete orphan attachment")
			}
		}
	}

	s.logger.Info().Int("found", len(orphans)).Int("removed", removed).Msg("orphaned orders swept")
}

func (s *Sweeper) archiveTerminal(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.cleanupRepo.ArchiveTerminal(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to archive terminal orders")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("archived", n).Time("cutoff", cutoff).Msg("terminal orders archived")
	}
}

func (s *Sweeper) pruneRateLimits(ctx context.Context) {
	cutoff := s.now().Add(-rateLimitRetention)
	n, err := s.cleanupRepo.PruneRateLimits(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to prune rate limit windows")
		return
	}
	if n > 0 {
		s.logger.Debug().Int64("pruned", n).Msg("rate limit windows pruned")
	}
}
