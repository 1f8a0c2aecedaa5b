// =============================================
// File: internal/swap/runner.go
// =============================================
package swap

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/spl-fleet/internal/events"
)

// DefaultQuoteStaleAfter is the freshness bound after which a held quote is
// re-fetched before execute. The aggregator's own window is undocumented, so
// this stays conservative and configurable.
const DefaultQuoteStaleAfter = 10 * time.Second

// Runner drives a single wallet's swap through the state machine
// Planned -> Quoted -> Executed -> (Verified | Failed), plus terminal
// Skipped. One Runner is shared across wallets; all per-wallet state lives
// in the Run call frame, so concurrent Run invocations are safe.
type Runner struct {
	dex        Dex
	bus        *events.Bus
	logger     *zap.Logger
	req        Request
	staleAfter time.Duration

	// Hooks overridden in tests.
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	jitterFrac func() float64 // fraction of the nominal delay, in [0, 0.25]
}

// NewRunner creates a runner for one request.
func NewRunner(dex Dex, bus *events.Bus, logger *zap.Logger, req Request) *Runner {
	return &Runner{
		dex:        dex,
		bus:        bus,
		logger:     logger.Named("runner"),
		req:        req,
		staleAfter: DefaultQuoteStaleAfter,
		now:        time.Now,
		sleep:      sleepCtx,
		jitterFrac: func() float64 { return rand.Float64() * 0.25 },
	}
}

// SetQuoteStaleAfter overrides the quote freshness bound.
func (r *Runner) SetQuoteStaleAfter(d time.Duration) {
	if d > 0 {
		r.staleAfter = d
	}
}

// Run executes one wallet plan to a terminal state and returns its receipt.
// The receipt is produced exactly once per plan; cancellation before the
// execute call is submitted yields a skipped receipt, cancellation after
// submission lets the in-flight call settle so its outcome is captured.
func (r *Runner) Run(ctx context.Context, plan Plan) Receipt {
	start := r.now()
	logger := r.logger.With(zap.Int("wallet", plan.Wallet.Index))

	var seq uint64
	publish := func(ev events.Event) {
		seq++
		ev.WalletIndex = plan.Wallet.Index
		ev.Seq = seq
		ev.At = r.now()
		r.bus.Publish(ev)
	}

	if !plan.Admitted() {
		publish(events.Event{Type: events.Skipped, Reason: string(plan.Verdict)})
		return r.skipped(plan, string(plan.Verdict), start, 0)
	}
	publish(events.Event{
		Type:   events.PlanAdmitted,
		Detail: fmt.Sprintf("amount=%d %s -> %s", plan.InputAmount, r.req.InputToken.Mint, r.req.OutputToken.Mint),
	})
	if ctx.Err() != nil {
		publish(events.Event{Type: events.Skipped, Reason: "cancelled"})
		return r.skipped(plan, "cancelled", start, 0)
	}

	maxAttempts := r.req.MaxRetries + 1
	attempts := 0
	var quote *Quote

	for attempts < maxAttempts {
		attempts++

		// Quote step: fetch when we have none or the held one aged out.
		if quote == nil || r.now().Sub(quote.FetchedAt) > r.staleAfter {
			publish(events.Event{Type: events.QuoteStarted, Attempt: attempts})
			q, err := r.dex.Quote(ctx, r.req.InputToken.Mint, r.req.OutputToken.Mint, plan.InputAmount, r.req.SlippageBps)
			if err != nil {
				if ctx.Err() != nil {
					// Nothing was submitted; a dead context skips instead of
					// failing.
					publish(events.Event{Type: events.Skipped, Reason: "cancelled"})
					return r.skipped(plan, "cancelled", start, attempts)
				}
				kind := Classify(err)
				logger.Warn("Quote failed",
					zap.Int("attempt", attempts),
					zap.String("error_kind", string(kind)),
					zap.Error(err))
				if kind.Retryable() && attempts < maxAttempts {
					if !r.backoff(ctx, attempts, kind, publish) {
						publish(events.Event{Type: events.Skipped, Reason: "cancelled"})
						return r.skipped(plan, "cancelled", start, attempts)
					}
					continue
				}
				publish(events.Event{Type: events.Failed, Attempt: attempts, Reason: string(kind)})
				return r.failed(plan, err, start, attempts)
			}
			quote = q
			publish(events.Event{
				Type:    events.QuoteReady,
				Attempt: attempts,
				Detail:  fmt.Sprintf("in=%d out=%d impact_bps=%d", q.InAmount, q.OutAmount, q.PriceImpactBps),
			})
		}

		// Cancellation checkpoint: nothing submitted yet, short-circuit.
		if ctx.Err() != nil {
			publish(events.Event{Type: events.Skipped, Reason: "cancelled"})
			return r.skipped(plan, "cancelled", start, attempts)
		}

		key, err := plan.Wallet.Key(ctx)
		if err != nil {
			authErr := WrapError(KindAuth, err, "private key unavailable")
			publish(events.Event{Type: events.Failed, Attempt: attempts, Reason: string(KindAuth)})
			return r.failed(plan, authErr, start, attempts)
		}

		publish(events.Event{Type: events.ExecuteStarted, Attempt: attempts})
		res, err := r.dex.Execute(ctx, key, quote, ExecuteOpts{
			WrapUnwrapSOL: true,
			CollectFee:    r.req.CollectFee,
			Verify:        r.req.Verify,
		})
		if err != nil {
			kind := Classify(err)
			if tx := TxIDOf(err); tx != "" {
				// The transaction left the building before the failure
				// (verification path); its submission is still an event.
				publish(events.Event{Type: events.ExecuteSubmitted, Attempt: attempts, Detail: "tx=" + tx})
			}
			logger.Warn("Execute failed",
				zap.Int("attempt", attempts),
				zap.String("error_kind", string(kind)),
				zap.Error(err))
			if kind.NeedsFreshQuote() {
				quote = nil
			}
			if kind.Retryable() && attempts < maxAttempts {
				if !r.backoff(ctx, attempts, kind, publish) {
					publish(events.Event{Type: events.Skipped, Reason: "cancelled"})
					return r.skipped(plan, "cancelled", start, attempts)
				}
				continue
			}
			publish(events.Event{Type: events.Failed, Attempt: attempts, Reason: string(kind)})
			return r.failed(plan, err, start, attempts)
		}

		publish(events.Event{Type: events.ExecuteSubmitted, Attempt: attempts, Detail: "tx=" + res.TxID})
		publish(events.Event{Type: events.Verified, Attempt: attempts, Detail: "tx=" + res.TxID})
		logger.Info("Swap completed",
			zap.String("tx", res.TxID),
			zap.Uint64("in", plan.InputAmount),
			zap.Uint64("out", res.OutputAmount),
			zap.Int("attempts", attempts))
		return r.success(plan, quote, res, start, attempts)
	}

	// Unreachable: the loop always returns from a terminal branch, but keep
	// the closure invariant intact if it ever falls through.
	err := NewError(KindUnknown, "retry budget exhausted")
	publish(events.Event{Type: events.Failed, Attempt: attempts, Reason: string(KindUnknown)})
	return r.failed(plan, err, start, attempts)
}

// backoff publishes the retry announcement and sleeps the exponential delay
// with jitter. Rate-limit errors draw an extra jitter share to spread the
// fleet out. Returns false when cancelled mid-sleep.
func (r *Runner) backoff(ctx context.Context, attempt int, kind ErrorKind, publish func(events.Event)) bool {
	nominal := r.req.RetryBackoffBase * time.Duration(1<<uint(attempt-1))
	delay := nominal + time.Duration(float64(nominal)*r.jitterFrac())
	if kind == KindRateLimited {
		delay += time.Duration(float64(nominal) * r.jitterFrac())
	}
	publish(events.Event{
		Type:    events.RetryScheduled,
		Attempt: attempt,
		Delay:   delay,
		Reason:  string(kind),
	})
	return r.sleep(ctx, delay) == nil
}

func (r *Runner) skipped(plan Plan, reason string, start time.Time, attempts int) Receipt {
	return Receipt{
		WalletIndex: plan.Wallet.Index,
		Address:     plan.Wallet.Address,
		Status:      StatusSkipped,
		InputAmount: plan.InputAmount,
		Duration:    r.now().Sub(start),
		Attempts:    attempts,
		ErrorDetail: reason,
	}
}

func (r *Runner) failed(plan Plan, err error, start time.Time, attempts int) Receipt {
	return Receipt{
		WalletIndex: plan.Wallet.Index,
		Address:     plan.Wallet.Address,
		Status:      StatusFailed,
		InputAmount: plan.InputAmount,
		TxID:        TxIDOf(err),
		Duration:    r.now().Sub(start),
		Attempts:    attempts,
		ErrorKind:   Classify(err),
		ErrorDetail: Detail(err),
	}
}

func (r *Runner) success(plan Plan, q *Quote, res *ExecResult, start time.Time, attempts int) Receipt {
	out := res.OutputAmount
	impact := q.PriceImpactBps
	rec := Receipt{
		WalletIndex:    plan.Wallet.Index,
		Address:        plan.Wallet.Address,
		Status:         StatusSuccess,
		InputAmount:    plan.InputAmount,
		OutputAmount:   &out,
		TxID:           res.TxID,
		PriceImpactBps: &impact,
		Duration:       r.now().Sub(start),
		Attempts:       attempts,
	}
	if r.req.CollectFee {
		fee := res.FeeAmount
		rec.FeeAmount = &fee
	}
	return rec
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
