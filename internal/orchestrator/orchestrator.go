// Package orchestrator owns a complete fleet swap run: configuration
// validation, balance snapshots, amount planning, scheduling, progress
// consumption and report finalization. All run state lives on the
// Orchestrator instance; there are no package-level singletons.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/spl-fleet/internal/config"
	"github.com/rovshanmuradov/spl-fleet/internal/events"
	"github.com/rovshanmuradov/spl-fleet/internal/report"
	"github.com/rovshanmuradov/spl-fleet/internal/swap"
	"github.com/rovshanmuradov/spl-fleet/internal/wallet"
)

// Orchestrator drives one run end to end. Dependencies flow one way:
// orchestrator -> scheduler -> runner -> dex; progress flows back through
// the bus, never through calls.
type Orchestrator struct {
	cfg    *config.Config
	dex    swap.Dex
	source wallet.Source
	logger *zap.Logger
}

// New creates an orchestrator.
func New(cfg *config.Config, dex swap.Dex, source wallet.Source, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		dex:    dex,
		source: source,
		logger: logger.Named("orchestrator"),
	}
}

// Run executes the configured fleet swap and returns the complete report.
// It never returns a partial report: pre-execution failures yield an
// aborted_config report with zero receipts, and every executed run closes
// with one terminal receipt per selected wallet.
func (o *Orchestrator) Run(ctx context.Context) (*report.Report, error) {
	startedAt := time.Now()
	runID := "run_" + strings.Split(uuid.NewString(), "-")[0]
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("Starting fleet swap run",
		zap.String("operation", o.cfg.Operation),
		zap.String("pair", o.cfg.InputToken+" -> "+o.cfg.OutputToken))

	req, selected, totalWallets, err := o.prepare(ctx, logger)
	if err != nil {
		logger.Error("Run aborted before execution", zap.Error(err))
		return o.abortedReport(runID, startedAt, req, err), err
	}

	snapshots, err := o.snapshotBalances(ctx, selected, req.InputToken.Mint, logger)
	if err != nil {
		logger.Error("Run aborted before execution", zap.Error(err))
		return o.abortedReport(runID, startedAt, req, err), err
	}

	plans, err := swap.PlanAmounts(req, snapshots, seedFromRunID(runID))
	if err != nil {
		logger.Error("Run aborted before execution", zap.Error(err))
		return o.abortedReport(runID, startedAt, req, err), err
	}
	admitted := swap.AdmittedCount(plans)
	logger.Info("Amounts planned",
		zap.Int("wallets", len(plans)),
		zap.Int("admitted", admitted))

	runCtx := ctx
	var cancel context.CancelFunc
	if req.RunDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.RunDeadline)
		defer cancel()
	}

	bus := events.NewBus(o.logger, o.cfg.EventBuffer)
	renderer := events.NewRenderer(o.logger)
	aggregator := report.NewAggregator()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for ev := range bus.Events() {
			renderer.Render(ev)
			aggregator.Observe(ev)
		}
	}()

	runner := swap.NewRunner(o.dex, bus, o.logger, req)
	if o.cfg.QuoteStaleAfterMs > 0 {
		runner.SetQuoteStaleAfter(time.Duration(o.cfg.QuoteStaleAfterMs) * time.Millisecond)
	}
	scheduler := swap.NewScheduler(req.Mode, runner, bus, o.logger)

	receipts := scheduler.Run(runCtx, plans)

	// Every publisher has returned; closing the bus lets the consumer drain
	// the remaining events before the aggregator finalizes.
	bus.Close()
	<-consumerDone

	for _, rec := range receipts {
		aggregator.Add(rec)
	}

	endedAt := time.Now()
	meta := report.Metadata{
		RunID:         runID,
		StartedAt:     startedAt,
		EndedAt:       endedAt,
		DurationMs:    endedAt.Sub(startedAt).Milliseconds(),
		ExitCondition: exitCondition(ctx, runCtx),
	}
	rep := aggregator.Finalize(meta, o.configSnapshot(req), totalWallets)

	logger.Info("Run finished",
		zap.String("exit", string(meta.ExitCondition)),
		zap.Int("success", rep.ExecutionSummary.Success),
		zap.Int("failed", rep.ExecutionSummary.Failed),
		zap.Int("skipped", rep.ExecutionSummary.Skipped))
	return rep, nil
}

// prepare validates configuration and resolves it into an executable
// request plus the selected fleet subset.
func (o *Orchestrator) prepare(ctx context.Context, logger *zap.Logger) (swap.Request, []*wallet.Wallet, int, error) {
	var req swap.Request

	supported, err := o.dex.SupportedTokens(ctx)
	if err != nil {
		return req, nil, 0, swap.WrapError(swap.KindConfig, err, "token list unavailable")
	}

	inputToken, err := resolveToken(supported, o.cfg.InputToken)
	if err != nil {
		return req, nil, 0, err
	}
	outputToken, err := resolveToken(supported, o.cfg.OutputToken)
	if err != nil {
		return req, nil, 0, err
	}

	strategy, err := o.cfg.ToStrategy(inputToken)
	if err != nil {
		return req, nil, 0, swap.NewError(swap.KindConfig, "%v", err)
	}
	mode, err := o.cfg.ToMode()
	if err != nil {
		return req, nil, 0, swap.NewError(swap.KindConfig, "%v", err)
	}

	fleet, err := o.source.ListWallets(ctx)
	if err != nil {
		return req, nil, 0, swap.WrapError(swap.KindConfig, err, "wallet source unavailable")
	}
	selected, err := wallet.Select(fleet, o.cfg.Selection())
	if err != nil {
		return req, nil, 0, swap.NewError(swap.KindConfig, "%v", err)
	}

	req = swap.Request{
		Operation:          swap.Operation(o.cfg.Operation),
		InputToken:         inputToken,
		OutputToken:        outputToken,
		Strategy:           strategy,
		Mode:               mode,
		SlippageBps:        o.cfg.SlippageBps,
		Verify:             o.cfg.Verify,
		MaxRetries:         o.cfg.MaxRetries,
		RetryBackoffBase:   time.Duration(o.cfg.RetryBackoffBaseMs) * time.Millisecond,
		CollectFee:         o.cfg.CollectFee,
		MinimumInputAmount: inputToken.ToBaseUnits(o.cfg.MinimumInputAmount),
		RunDeadline:        time.Duration(o.cfg.RunDeadlineMs) * time.Millisecond,
	}
	if err := req.Validate(len(selected)); err != nil {
		return req, nil, 0, err
	}

	logger.Info("Configuration validated",
		zap.Int("fleet", len(fleet)),
		zap.Int("selected", len(selected)),
		zap.String("strategy", string(strategy.Kind)),
		zap.String("mode", string(mode.Kind)))
	return req, selected, len(fleet), nil
}

// snapshotBalances reads each selected wallet's input-token balance once,
// before execution. A failed read admits the wallet with a zero balance so
// the planner records the shortfall instead of killing the whole run.
func (o *Orchestrator) snapshotBalances(ctx context.Context, selected []*wallet.Wallet, mint string, logger *zap.Logger) ([]swap.WalletSnapshot, error) {
	snapshots := make([]swap.WalletSnapshot, 0, len(selected))
	for _, w := range selected {
		balance, err := o.source.Balance(ctx, w.Address(), mint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, swap.WrapError(swap.KindConfig, err, "balance snapshot interrupted")
			}
			logger.Warn("Balance snapshot failed, treating as zero",
				zap.Int("wallet", w.Index),
				zap.Error(err))
			balance = 0
		}

		snap := swap.WalletSnapshot{
			Index:   w.Index,
			Address: w.Address(),
			Balance: balance,
		}
		if w.Signable() {
			key := w.PrivateKey.String()
			snap.Key = func(context.Context) (string, error) { return key, nil }
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// resolveToken maps a symbol or explicit mint onto the aggregator's token
// list. Decimals come from the list, so an unknown token is a config error.
func resolveToken(supported map[string]swap.Token, symbolOrMint string) (swap.Token, error) {
	if t, ok := supported[strings.ToUpper(symbolOrMint)]; ok {
		return t, nil
	}
	for _, t := range supported {
		if t.Mint == symbolOrMint {
			return t, nil
		}
	}
	return swap.Token{}, swap.NewError(swap.KindConfig, "unknown token %q", symbolOrMint)
}

func (o *Orchestrator) abortedReport(runID string, startedAt time.Time, req swap.Request, err error) *report.Report {
	endedAt := time.Now()
	return &report.Report{
		Metadata: report.Metadata{
			RunID:         runID,
			StartedAt:     startedAt,
			EndedAt:       endedAt,
			DurationMs:    endedAt.Sub(startedAt).Milliseconds(),
			ExitCondition: report.ExitAbortedConfig,
		},
		Configuration:       o.configSnapshot(req),
		SwapResults:         []report.SwapResult{},
		ErrorClassification: map[string]int{string(swap.KindConfig): 1},
		ExecutionSummary:    report.ExecutionSummary{},
		VolumeSummary:       report.VolumeSummary{},
	}
}

func (o *Orchestrator) configSnapshot(req swap.Request) report.ConfigSnapshot {
	return report.ConfigSnapshot{
		Operation:          o.cfg.Operation,
		InputToken:         o.cfg.InputToken,
		InputMint:          req.InputToken.Mint,
		OutputToken:        o.cfg.OutputToken,
		OutputMint:         req.OutputToken.Mint,
		Strategy:           describeStrategy(req.Strategy),
		Mode:               describeMode(req.Mode),
		SlippageBps:        req.SlippageBps,
		Verify:             req.Verify,
		MaxRetries:         req.MaxRetries,
		CollectFee:         req.CollectFee,
		MinimumInputAmount: req.MinimumInputAmount,
		RunDeadlineMs:      req.RunDeadline.Milliseconds(),
		MockMode:           o.cfg.MockMode,
	}
}

func describeStrategy(s swap.Strategy) string {
	switch s.Kind {
	case swap.StrategyFixed:
		return fmt.Sprintf("fixed{base=%d}", s.Base)
	case swap.StrategyPercentage:
		return fmt.Sprintf("percentage{fraction=%g}", s.Fraction)
	case swap.StrategyRandom:
		return fmt.Sprintf("random{min=%d,max=%d}", s.Min, s.Max)
	case swap.StrategyCustom:
		return fmt.Sprintf("custom{n=%d}", len(s.Amounts))
	}
	return string(s.Kind)
}

func describeMode(m swap.Mode) string {
	switch m.Kind {
	case swap.ModeSequential:
		return fmt.Sprintf("sequential{delay=%s}", m.Delay)
	case swap.ModeParallel:
		return fmt.Sprintf("parallel{max_concurrent=%d}", m.MaxConcurrent)
	case swap.ModeBatch:
		return fmt.Sprintf("batch{size=%d,delay=%s}", m.BatchSize, m.Delay)
	}
	return string(m.Kind)
}

// exitCondition distinguishes deadline expiry from external cancellation.
func exitCondition(parent, run context.Context) report.ExitCondition {
	if parent.Err() != nil {
		return report.ExitCancelled
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return report.ExitDeadlineExpired
	}
	return report.ExitCompleted
}

// seedFromRunID derives the deterministic planning seed from the run id.
func seedFromRunID(runID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(runID))
	return int64(h.Sum64())
}
