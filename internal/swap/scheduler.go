// =============================================
// File: internal/swap/scheduler.go
// =============================================
package swap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/spl-fleet/internal/events"
)

// Scheduler turns the admitted wallet plans into a bounded stream of runner
// invocations under one of three disciplines: sequential with inter-op
// delay, bounded parallel, or batched with inter-batch delay.
//
// Every plan produces exactly one receipt. After cancellation or deadline
// expiry no new remote call starts; the runner observes the dead context and
// short-circuits the remaining plans to skipped receipts, while already
// submitted executions settle and keep their real outcome.
type Scheduler struct {
	mode   Mode
	runner *Runner
	bus    *events.Bus
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a scheduler for one run.
func NewScheduler(mode Mode, runner *Runner, bus *events.Bus, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		mode:   mode,
		runner: runner,
		bus:    bus,
		logger: logger.Named("scheduler"),
		sleep:  sleepCtx,
	}
}

// Run dispatches all plans and returns their receipts ordered by wallet
// index. It returns only when every receipt is terminal.
func (s *Scheduler) Run(ctx context.Context, plans []Plan) []Receipt {
	ordered := make([]Plan, len(plans))
	copy(ordered, plans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Wallet.Index < ordered[j].Wallet.Index })

	s.bus.Publish(events.RunEvent(events.RunStarted,
		fmt.Sprintf("mode=%s wallets=%d", s.mode.Kind, len(ordered))))

	var receipts []Receipt
	switch s.mode.Kind {
	case ModeParallel:
		receipts = s.runParallel(ctx, ordered)
	case ModeBatch:
		receipts = s.runBatched(ctx, ordered)
	default:
		receipts = s.runSequential(ctx, ordered)
	}

	s.bus.Publish(events.RunEvent(events.RunFinished,
		fmt.Sprintf("receipts=%d", len(receipts))))
	return receipts
}

// runSequential processes plans one at a time in wallet-index order, sleeping
// the configured delay between consecutive completions. A cancelled sleep is
// not an exit: the remaining plans still run so each reaches its skipped
// receipt.
func (s *Scheduler) runSequential(ctx context.Context, plans []Plan) []Receipt {
	receipts := make([]Receipt, len(plans))
	for i, p := range plans {
		receipts[i] = s.runner.Run(ctx, p)
		if i < len(plans)-1 && s.mode.Delay > 0 && ctx.Err() == nil {
			_ = s.sleep(ctx, s.mode.Delay)
		}
	}
	return receipts
}

// runParallel keeps at most MaxConcurrent runners in flight; as one
// completes the next pending plan is admitted, in wallet-index order.
func (s *Scheduler) runParallel(ctx context.Context, plans []Plan) []Receipt {
	receipts := make([]Receipt, len(plans))
	g := new(errgroup.Group)
	g.SetLimit(s.mode.MaxConcurrent)
	for i, p := range plans {
		g.Go(func() error {
			receipts[i] = s.runner.Run(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return receipts
}

// runBatched partitions plans into consecutive groups of BatchSize, runs
// each group concurrently, and idles Delay between groups. The final group
// may be smaller.
func (s *Scheduler) runBatched(ctx context.Context, plans []Plan) []Receipt {
	receipts := make([]Receipt, len(plans))
	size := s.mode.BatchSize
	total := (len(plans) + size - 1) / size

	for start, batchNum := 0, 1; start < len(plans); start, batchNum = start+size, batchNum+1 {
		end := start + size
		if end > len(plans) {
			end = len(plans)
		}
		s.bus.Publish(events.RunEvent(events.BatchStarted,
			fmt.Sprintf("batch=%d/%d size=%d", batchNum, total, end-start)))
		s.logger.Info("Dispatching batch",
			zap.Int("batch", batchNum),
			zap.Int("of", total),
			zap.Int("size", end-start))

		g := new(errgroup.Group)
		for i := start; i < end; i++ {
			g.Go(func() error {
				receipts[i] = s.runner.Run(ctx, plans[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(plans) && s.mode.Delay > 0 && ctx.Err() == nil {
			_ = s.sleep(ctx, s.mode.Delay)
		}
	}
	return receipts
}
