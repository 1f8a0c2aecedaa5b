package swap

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/spl-fleet/internal/events"
)

func okPlans(n int) []Plan {
	plans := make([]Plan, 0, n)
	for i := 0; i < n; i++ {
		plans = append(plans, Plan{
			Wallet:      snapshot(i, 1_000_000_000),
			InputAmount: 100_000,
			Verdict:     VerdictOK,
		})
	}
	return plans
}

func newTestScheduler(t *testing.T, dex Dex, req Request) (*Scheduler, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zap.NewNop(), 1024)
	runner := NewRunner(dex, bus, zap.NewNop(), req)
	runner.jitterFrac = func() float64 { return 0 }
	return NewScheduler(req.Mode, runner, bus, zap.NewNop()), bus
}

func TestSchedulerSequentialOrdering(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.Mode = Mode{Kind: ModeSequential, Delay: 0}
	sched, bus := newTestScheduler(t, dex, req)

	receipts := sched.Run(context.Background(), okPlans(4))
	require.Len(t, receipts, 4)
	for i, rec := range receipts {
		assert.Equal(t, i, rec.WalletIndex)
		assert.Equal(t, StatusSuccess, rec.Status)
	}

	// Wallet i's terminal event precedes wallet i+1's first event.
	lastSeen := -1
	for _, ev := range drain(bus) {
		if ev.WalletIndex < 0 {
			continue
		}
		if ev.Seq == 1 {
			assert.Equal(t, lastSeen+1, ev.WalletIndex, "wallet started before predecessor finished")
		}
		if ev.Type.Terminal() {
			lastSeen = ev.WalletIndex
		}
	}
	assert.Equal(t, 3, lastSeen)
}

func TestSchedulerSequentialDelayBetweenOps(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.Mode = Mode{Kind: ModeSequential, Delay: 40 * time.Millisecond}
	sched, bus := newTestScheduler(t, dex, req)

	var slept []time.Duration
	sched.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	sched.Run(context.Background(), okPlans(3))
	assert.Equal(t, []time.Duration{40 * time.Millisecond, 40 * time.Millisecond}, slept,
		"delay between consecutive completions, none after the last")
	drain(bus)
}

func TestSchedulerParallelBound(t *testing.T) {
	var inFlight, peak atomic.Int64
	dex := &stubDex{}
	dex.execFn = func(_ int, q *Quote) (*ExecResult, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &ExecResult{TxID: "TX", OutputAmount: q.OutAmount}, nil
	}

	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.Mode = Mode{Kind: ModeParallel, MaxConcurrent: 2}
	sched, bus := newTestScheduler(t, dex, req)

	receipts := sched.Run(context.Background(), okPlans(6))
	require.Len(t, receipts, 6)
	for _, rec := range receipts {
		assert.Equal(t, StatusSuccess, rec.Status)
	}
	assert.LessOrEqual(t, peak.Load(), int64(2), "never more than N in-flight executes")
	assert.GreaterOrEqual(t, peak.Load(), int64(2), "the bound should actually be used")
	drain(bus)
}

func TestSchedulerBatchIdlesBetweenBatches(t *testing.T) {
	var mu sync.Mutex
	executions := make(map[int]time.Time) // wallet index -> execute time
	dex := &stubDex{}
	dex.execFn = func(_ int, q *Quote) (*ExecResult, error) {
		mu.Lock()
		executions[int(q.InAmount)%10] = time.Now()
		mu.Unlock()
		return &ExecResult{TxID: "TX", OutputAmount: q.OutAmount}, nil
	}

	req := baseRequest(Strategy{Kind: StrategyCustom, Amounts: []uint64{100_000, 100_001, 100_002, 100_003}})
	req.Mode = Mode{Kind: ModeBatch, BatchSize: 2, Delay: 100 * time.Millisecond}
	sched, bus := newTestScheduler(t, dex, req)

	plans := okPlans(4)
	for i := range plans {
		plans[i].InputAmount = uint64(100_000 + i)
	}
	receipts := sched.Run(context.Background(), plans)
	require.Len(t, receipts, 4)

	mu.Lock()
	defer mu.Unlock()
	firstBatchEnd := executions[0]
	if executions[1].After(firstBatchEnd) {
		firstBatchEnd = executions[1]
	}
	secondBatchStart := executions[2]
	if executions[3].Before(secondBatchStart) {
		secondBatchStart = executions[3]
	}
	assert.GreaterOrEqual(t, secondBatchStart.Sub(firstBatchEnd), 100*time.Millisecond,
		"scheduler must idle between batches")

	var batchEvents int
	for _, ev := range drain(bus) {
		if ev.Type == events.BatchStarted {
			batchEvents++
		}
	}
	assert.Equal(t, 2, batchEvents)
}

func TestSchedulerBatchFinalGroupSmaller(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.Mode = Mode{Kind: ModeBatch, BatchSize: 2, Delay: 0}
	sched, bus := newTestScheduler(t, dex, req)

	receipts := sched.Run(context.Background(), okPlans(5))
	require.Len(t, receipts, 5)
	for _, rec := range receipts {
		assert.Equal(t, StatusSuccess, rec.Status)
	}
	drain(bus)
}

func TestSchedulerCancellationProducesSkippedReceipts(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.Mode = Mode{Kind: ModeSequential}
	sched, bus := newTestScheduler(t, dex, req)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	receipts := sched.Run(ctx, okPlans(3))

	require.Len(t, receipts, 3)
	for _, rec := range receipts {
		assert.Equal(t, StatusSkipped, rec.Status)
		assert.Empty(t, rec.TxID)
	}
	_, execs := dex.counts()
	assert.Zero(t, execs, "no execute may be initiated after cancellation")
	drain(bus)
}

func TestSchedulerMidRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var execCount atomic.Int64
	dex := &stubDex{}
	dex.execFn = func(_ int, q *Quote) (*ExecResult, error) {
		if execCount.Add(1) == 2 {
			cancel() // second wallet cancels the run mid-flight
		}
		return &ExecResult{TxID: "TX", OutputAmount: q.OutAmount}, nil
	}

	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.Mode = Mode{Kind: ModeSequential}
	sched, bus := newTestScheduler(t, dex, req)

	receipts := sched.Run(ctx, okPlans(4))
	require.Len(t, receipts, 4)

	// Submitted executions keep their outcome; the rest are skipped.
	assert.Equal(t, StatusSuccess, receipts[0].Status)
	assert.Equal(t, StatusSuccess, receipts[1].Status)
	assert.Equal(t, StatusSkipped, receipts[2].Status)
	assert.Equal(t, StatusSkipped, receipts[3].Status)
	assert.Equal(t, int64(2), execCount.Load())
	drain(bus)
}
