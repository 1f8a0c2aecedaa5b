package swap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/spl-fleet/internal/events"
)

// stubDex scripts quote/execute behavior per test without a real client.
type stubDex struct {
	mu         sync.Mutex
	quoteCalls int
	execCalls  int
	quoteFn    func(call int, amount uint64) (*Quote, error)
	execFn     func(call int, q *Quote) (*ExecResult, error)
}

func (s *stubDex) SupportedTokens(context.Context) (map[string]Token, error) {
	return map[string]Token{}, nil
}

func (s *stubDex) Quote(_ context.Context, _, _ string, amount uint64, _ int) (*Quote, error) {
	s.mu.Lock()
	s.quoteCalls++
	call := s.quoteCalls
	s.mu.Unlock()
	if s.quoteFn != nil {
		return s.quoteFn(call, amount)
	}
	return &Quote{
		InAmount:       amount,
		OutAmount:      amount * 2,
		RouteID:        "route",
		PriceImpactBps: 50,
		FetchedAt:      time.Now(),
	}, nil
}

func (s *stubDex) Execute(_ context.Context, _ string, q *Quote, opts ExecuteOpts) (*ExecResult, error) {
	s.mu.Lock()
	s.execCalls++
	call := s.execCalls
	s.mu.Unlock()
	if s.execFn != nil {
		return s.execFn(call, q)
	}
	res := &ExecResult{TxID: "TX1", OutputAmount: q.OutAmount}
	if opts.CollectFee {
		res.FeeAmount = q.InAmount / 1000
	}
	return res, nil
}

func (s *stubDex) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteCalls, s.execCalls
}

type recordedSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestRunner(t *testing.T, dex Dex, req Request) (*Runner, *events.Bus, *recordedSleep) {
	t.Helper()
	bus := events.NewBus(zap.NewNop(), 256)
	runner := NewRunner(dex, bus, zap.NewNop(), req)
	rec := &recordedSleep{}
	runner.sleep = rec.sleep
	runner.jitterFrac = func() float64 { return 0 }
	return runner, bus, rec
}

func drain(bus *events.Bus) []events.Event {
	bus.Close()
	var out []events.Event
	for ev := range bus.Events() {
		out = append(out, ev)
	}
	return out
}

func eventTypes(evs []events.Event) []events.Type {
	types := make([]events.Type, 0, len(evs))
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	return types
}

func TestRunnerSuccessPath(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	runner, bus, _ := newTestRunner(t, dex, req)

	plan := Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK}
	rec := runner.Run(context.Background(), plan)

	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, "TX1", rec.TxID)
	assert.Equal(t, 1, rec.Attempts)
	require.NotNil(t, rec.OutputAmount)
	assert.Equal(t, uint64(200_000), *rec.OutputAmount)
	require.NotNil(t, rec.PriceImpactBps)
	assert.Equal(t, int64(50), *rec.PriceImpactBps)
	assert.Nil(t, rec.FeeAmount, "no fee when collect_fee disabled")

	evs := drain(bus)
	assert.Equal(t, []events.Type{
		events.PlanAdmitted,
		events.QuoteStarted,
		events.QuoteReady,
		events.ExecuteStarted,
		events.ExecuteSubmitted,
		events.Verified,
	}, eventTypes(evs))
	for i, ev := range evs {
		assert.Equal(t, uint64(i+1), ev.Seq, "per-wallet sequence must be monotonic")
		assert.Equal(t, 0, ev.WalletIndex)
	}
}

func TestRunnerSkipsUnadmittedPlan(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	runner, bus, _ := newTestRunner(t, dex, req)

	plan := Plan{Wallet: snapshot(1, 0), InputAmount: 100_000, Verdict: VerdictInsufficientBalance}
	rec := runner.Run(context.Background(), plan)

	assert.Equal(t, StatusSkipped, rec.Status)
	assert.Empty(t, rec.TxID)
	assert.Nil(t, rec.OutputAmount)
	assert.Equal(t, 0, rec.Attempts)

	quotes, execs := dex.counts()
	assert.Zero(t, quotes)
	assert.Zero(t, execs)

	evs := drain(bus)
	assert.Equal(t, []events.Type{events.Skipped}, eventTypes(evs))
}

func TestRunnerSlippageRetriesWithFreshQuote(t *testing.T) {
	dex := &stubDex{}
	dex.execFn = func(call int, q *Quote) (*ExecResult, error) {
		if call == 1 {
			return nil, NewError(KindSlippage, "slippage guard tripped")
		}
		return &ExecResult{TxID: "TX2", OutputAmount: q.OutAmount}, nil
	}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.MaxRetries = 2
	req.RetryBackoffBase = 100 * time.Millisecond
	runner, bus, _ := newTestRunner(t, dex, req)

	plan := Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK}
	rec := runner.Run(context.Background(), plan)

	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, 2, rec.Attempts)

	quotes, execs := dex.counts()
	assert.Equal(t, 2, quotes, "slippage retry must re-quote")
	assert.Equal(t, 2, execs)

	var retries []events.Event
	for _, ev := range drain(bus) {
		if ev.Type == events.RetryScheduled {
			retries = append(retries, ev)
		}
	}
	require.Len(t, retries, 1)
	assert.Equal(t, string(KindSlippage), retries[0].Reason)
	assert.Equal(t, 1, retries[0].Attempt)
}

func TestRunnerTransportKeepsFreshQuote(t *testing.T) {
	dex := &stubDex{}
	dex.execFn = func(call int, q *Quote) (*ExecResult, error) {
		if call == 1 {
			return nil, NewError(KindTransport, "connection reset")
		}
		return &ExecResult{TxID: "TX3", OutputAmount: q.OutAmount}, nil
	}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.MaxRetries = 1
	req.RetryBackoffBase = 50 * time.Millisecond
	runner, bus, _ := newTestRunner(t, dex, req)

	rec := runner.Run(context.Background(), Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})
	assert.Equal(t, StatusSuccess, rec.Status)

	quotes, execs := dex.counts()
	assert.Equal(t, 1, quotes, "fresh quote survives a transport retry")
	assert.Equal(t, 2, execs)
	drain(bus)
}

func TestRunnerBusinessErrorsAreTerminal(t *testing.T) {
	cases := []struct {
		name string
		kind ErrorKind
	}{
		{"insufficient balance", KindInsufficientBalance},
		{"auth", KindAuth},
		{"quote rejected", KindQuote},
		{"verification", KindVerification},
		{"unknown", KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dex := &stubDex{}
			dex.execFn = func(int, *Quote) (*ExecResult, error) {
				return nil, NewError(tc.kind, "remote said no")
			}
			req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
			req.MaxRetries = 3
			runner, bus, _ := newTestRunner(t, dex, req)

			rec := runner.Run(context.Background(), Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})
			assert.Equal(t, StatusFailed, rec.Status)
			assert.Equal(t, tc.kind, rec.ErrorKind)
			assert.Equal(t, 1, rec.Attempts, "business errors never retry")
			drain(bus)
		})
	}
}

func TestRunnerRetryBudgetExhaustion(t *testing.T) {
	dex := &stubDex{}
	dex.quoteFn = func(int, uint64) (*Quote, error) {
		return nil, NewError(KindTransport, "dns failure")
	}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.MaxRetries = 2
	req.RetryBackoffBase = 10 * time.Millisecond
	runner, bus, sleeps := newTestRunner(t, dex, req)

	rec := runner.Run(context.Background(), Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, KindTransport, rec.ErrorKind)
	assert.Equal(t, req.MaxRetries+1, rec.Attempts)

	quotes, _ := dex.counts()
	assert.Equal(t, req.MaxRetries+1, quotes)

	// Exponential backoff without jitter doubles every attempt.
	require.Len(t, sleeps.delays, 2)
	assert.Equal(t, 10*time.Millisecond, sleeps.delays[0])
	assert.Equal(t, 20*time.Millisecond, sleeps.delays[1])
	drain(bus)
}

func TestRunnerBackoffNonDecreasingWithJitter(t *testing.T) {
	dex := &stubDex{}
	dex.quoteFn = func(int, uint64) (*Quote, error) {
		return nil, NewError(KindTransport, "flaky")
	}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.MaxRetries = 4
	req.RetryBackoffBase = 8 * time.Millisecond
	runner, bus, sleeps := newTestRunner(t, dex, req)
	runner.jitterFrac = func() float64 { return 0.25 } // worst-case jitter

	runner.Run(context.Background(), Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})

	require.Len(t, sleeps.delays, 4)
	for i := 1; i < len(sleeps.delays); i++ {
		assert.GreaterOrEqual(t, sleeps.delays[i], sleeps.delays[i-1])
	}
	drain(bus)
}

func TestRunnerRateLimitedGetsExtraJitter(t *testing.T) {
	dex := &stubDex{}
	dex.quoteFn = func(call int, amount uint64) (*Quote, error) {
		if call == 1 {
			return nil, NewError(KindRateLimited, "429")
		}
		return &Quote{InAmount: amount, OutAmount: amount, RouteID: "r", FetchedAt: time.Now()}, nil
	}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.MaxRetries = 1
	req.RetryBackoffBase = 100 * time.Millisecond
	runner, bus, sleeps := newTestRunner(t, dex, req)
	runner.jitterFrac = func() float64 { return 0.25 }

	rec := runner.Run(context.Background(), Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})
	assert.Equal(t, StatusSuccess, rec.Status)

	// nominal 100ms + 25ms jitter + 25ms rate-limit share
	require.Len(t, sleeps.delays, 1)
	assert.Equal(t, 150*time.Millisecond, sleeps.delays[0])
	drain(bus)
}

func TestRunnerCancellationBeforeExecuteSkips(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	runner, bus, _ := newTestRunner(t, dex, req)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := runner.Run(ctx, Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})

	assert.Equal(t, StatusSkipped, rec.Status)
	_, execs := dex.counts()
	assert.Zero(t, execs, "no execute may start after cancellation")
	drain(bus)
}

func TestRunnerVerificationFailureKeepsTxID(t *testing.T) {
	dex := &stubDex{}
	dex.execFn = func(int, *Quote) (*ExecResult, error) {
		return nil, &Error{Kind: KindVerification, Detail: "output not credited", TxID: "TX_V"}
	}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.Verify = true
	runner, bus, _ := newTestRunner(t, dex, req)

	rec := runner.Run(context.Background(), Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, KindVerification, rec.ErrorKind)
	assert.Equal(t, "TX_V", rec.TxID, "submitted transaction survives a verification failure")
	assert.Nil(t, rec.OutputAmount)

	types := eventTypes(drain(bus))
	assert.Contains(t, types, events.ExecuteSubmitted)
	assert.Contains(t, types, events.Failed)
}

func TestRunnerCollectFeeOnReceipt(t *testing.T) {
	dex := &stubDex{}
	req := baseRequest(Strategy{Kind: StrategyFixed, Base: 100_000})
	req.CollectFee = true
	runner, bus, _ := newTestRunner(t, dex, req)

	rec := runner.Run(context.Background(), Plan{Wallet: snapshot(0, 1_000_000), InputAmount: 100_000, Verdict: VerdictOK})
	require.NotNil(t, rec.FeeAmount)
	assert.Equal(t, uint64(100), *rec.FeeAmount)
	drain(bus)
}
