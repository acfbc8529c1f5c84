package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/feral-file/launch-ledger/internal/adapter"
	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/ledger"
	"github.com/feral-file/launch-ledger/internal/logger"
	"github.com/feral-file/launch-ledger/internal/store"
)

const (
	SWEEP_CYCLE_INTERVAL = 5 * time.Minute // Time to sleep between sweep cycles
)

// RefundSweeperConfig holds configuration for the refund sweeper
type RefundSweeperConfig struct {
	BatchSize       int    // Participations to refund per group per cycle
	WorkerPoolSize  int    // Concurrent group scans
	OperatorAddress string // Capability identity the sweeper refunds under
}

// refundSweeper walks COMPLETED groups and batch-refunds leftover
// non-finalized participations so users who never claim still get their
// deposits back
type refundSweeper struct {
	config    *RefundSweeperConfig
	store     store.Store
	ledger    *ledger.Ledger
	pool      pond.Pool
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewRefundSweeper creates a new refund sweeper
func NewRefundSweeper(
	config *RefundSweeperConfig,
	st store.Store,
	l *ledger.Ledger,
	clock adapter.Clock,
) Sweeper {
	return &refundSweeper{
		config:    config,
		store:     st,
		ledger:    l,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *refundSweeper) Name() string {
	return "refund-sweeper"
}

// Start begins the sweeper's main loop
func (s *refundSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh) // Signal that we've stopped
	}()

	logger.InfoCtx(ctx, "Starting refund sweeper",
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
	)

	// Create worker pool
	s.pool = pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithContext(ctx),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Refund sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			s.cleanup()
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Refund sweeper stop requested")
			s.cleanup()
			return nil
		default:
			if err := s.runSweepCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
			if !s.sleep(ctx, SWEEP_CYCLE_INTERVAL) {
				s.cleanup()
				return nil
			}
		}
	}
}

// cleanup stops the worker pool and waits for tasks to complete
func (s *refundSweeper) cleanup() {
	if s.pool != nil {
		s.pool.StopAndWait()
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *refundSweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping refund sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Refund sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Refund sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runSweepCycle scans every COMPLETED group and refunds up to BatchSize
// leftover participations per group. Scanning fans out over the worker
// pool; the refunds themselves run sequentially because the ledger
// serializes mutations.
func (s *refundSweeper) runSweepCycle(ctx context.Context) error {
	groups, err := s.store.ListLaunchGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list launch groups: %w", err)
	}

	var mu sync.Mutex
	candidates := make(map[domain.ID32][]domain.ID32)

	tasks := s.pool.NewGroup()
	for _, group := range groups {
		if domain.LaunchGroupStatus(group.Status) != domain.GroupStatusCompleted {
			continue
		}
		groupID := domain.ID32(group.GroupID)
		tasks.Submit(func() {
			records, err := s.store.ListRefundableParticipations(ctx, groupID.String(), s.config.BatchSize)
			if err != nil {
				logger.ErrorCtx(ctx, err, zap.String("group_id", groupID.String()))
				return
			}
			if len(records) == 0 {
				return
			}
			ids := make([]domain.ID32, 0, len(records))
			for _, r := range records {
				ids = append(ids, domain.ID32(r.ParticipationID))
			}
			mu.Lock()
			candidates[groupID] = ids
			mu.Unlock()
		})
	}
	if err := tasks.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorCtx(ctx, err)
	}

	var refunded int
	for groupID, ids := range candidates {
		if err := s.ledger.BatchRefund(ctx, s.config.OperatorAddress, groupID, ids); err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("batch refund failed: %w", err),
				zap.String("group_id", groupID.String()))
			continue
		}
		refunded += len(ids)
	}

	if refunded > 0 {
		logger.InfoCtx(ctx, "Refund sweep cycle complete", zap.Int("refunded", refunded))
	}
	return nil
}

// sleep waits for the given duration, returning false if interrupted by
// context cancellation or a stop request
func (s *refundSweeper) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-s.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-s.stopChan:
		return false
	}
}
