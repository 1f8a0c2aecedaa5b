// =============================================
// File: internal/swap/types.go
// =============================================
// Package swap contains the core of the multi-wallet swap fleet: amount
// planning, the per-wallet swap state machine and the scheduler that
// dispatches it.
package swap

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Constants
const LamportsPerSOL = 1_000_000_000

// Operation labels a run as buying or selling. It never changes the swap
// logic, only reporting.
type Operation string

const (
	OperationBuy  Operation = "buy"
	OperationSell Operation = "sell"
)

// Token identifies a tradable SPL token. Mint is canonical; Symbol is an
// optional alias resolved against the aggregator's token list.
type Token struct {
	Symbol   string
	Mint     string
	Decimals uint8
}

// ToBaseUnits converts a human amount to base units, flooring.
func (t Token) ToBaseUnits(amount float64) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Floor(amount * math.Pow10(int(t.Decimals))))
}

// FromBaseUnits converts base units back to a human amount.
func (t Token) FromBaseUnits(v uint64) float64 {
	return float64(v) / math.Pow10(int(t.Decimals))
}

// StrategyKind selects how per-wallet input amounts are computed.
type StrategyKind string

const (
	StrategyFixed      StrategyKind = "fixed"
	StrategyPercentage StrategyKind = "percentage"
	StrategyRandom     StrategyKind = "random"
	StrategyCustom     StrategyKind = "custom"
)

// Strategy is the tagged union of amount strategies. Only the fields of the
// active Kind are read; amounts are input-token base units.
type Strategy struct {
	Kind     StrategyKind
	Base     uint64   // fixed
	Fraction float64  // percentage, in (0, 1]
	Min      uint64   // random, inclusive
	Max      uint64   // random, inclusive
	Amounts  []uint64 // custom, one per selected wallet
}

// Validate checks the strategy parameters. The custom length check happens at
// planning time because it depends on the selected wallet count.
func (s Strategy) Validate() error {
	switch s.Kind {
	case StrategyFixed:
		if s.Base == 0 {
			return fmt.Errorf("fixed strategy requires a positive base amount")
		}
	case StrategyPercentage:
		if s.Fraction <= 0 || s.Fraction > 1 {
			return fmt.Errorf("percentage fraction must be in (0, 1], got %v", s.Fraction)
		}
	case StrategyRandom:
		if s.Min == 0 || s.Max == 0 || s.Min > s.Max {
			return fmt.Errorf("random strategy requires 0 < min <= max, got [%d, %d]", s.Min, s.Max)
		}
	case StrategyCustom:
		if len(s.Amounts) == 0 {
			return fmt.Errorf("custom strategy requires explicit amounts")
		}
	default:
		return fmt.Errorf("unsupported strategy: %q", s.Kind)
	}
	return nil
}

// ModeKind selects the scheduler discipline.
type ModeKind string

const (
	ModeSequential ModeKind = "sequential"
	ModeParallel   ModeKind = "parallel"
	ModeBatch      ModeKind = "batch"
)

// Mode is the tagged union of scheduling modes.
type Mode struct {
	Kind          ModeKind
	Delay         time.Duration // sequential: between ops; batch: between batches
	MaxConcurrent int           // parallel
	BatchSize     int           // batch
}

// Validate checks the mode parameters.
func (m Mode) Validate() error {
	switch m.Kind {
	case ModeSequential:
		if m.Delay < 0 {
			return fmt.Errorf("sequential delay must be >= 0")
		}
	case ModeParallel:
		if m.MaxConcurrent < 1 {
			return fmt.Errorf("parallel max_concurrent must be >= 1, got %d", m.MaxConcurrent)
		}
	case ModeBatch:
		if m.BatchSize < 1 {
			return fmt.Errorf("batch size must be >= 1, got %d", m.BatchSize)
		}
		if m.Delay < 0 {
			return fmt.Errorf("batch delay must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported mode: %q", m.Kind)
	}
	return nil
}

// Request is the immutable run-level description of a fleet swap. Amount
// fields are input-token base units.
type Request struct {
	Operation   Operation
	InputToken  Token
	OutputToken Token
	Strategy    Strategy
	Mode        Mode

	SlippageBps      int
	Verify           bool
	MaxRetries       int
	RetryBackoffBase time.Duration
	CollectFee       bool

	MinimumInputAmount uint64
	RunDeadline        time.Duration // 0 means no deadline
}

// Validate checks the request ranges. walletCount is the number of selected
// wallets, needed for the custom-amount length check.
func (r Request) Validate(walletCount int) error {
	switch r.Operation {
	case OperationBuy, OperationSell:
	default:
		return NewError(KindConfig, "unsupported operation: %q", r.Operation)
	}
	if r.InputToken.Mint == "" || r.OutputToken.Mint == "" {
		return NewError(KindConfig, "input and output token mints must be resolved")
	}
	if r.InputToken.Mint == r.OutputToken.Mint {
		return NewError(KindConfig, "input and output tokens must differ")
	}
	if r.SlippageBps < 0 || r.SlippageBps > 10000 {
		return NewError(KindConfig, "slippage_bps must be in [0, 10000], got %d", r.SlippageBps)
	}
	if r.MaxRetries < 0 {
		return NewError(KindConfig, "max_retries must be >= 0, got %d", r.MaxRetries)
	}
	if r.RetryBackoffBase <= 0 {
		return NewError(KindConfig, "retry_backoff_base_ms must be > 0")
	}
	if err := r.Strategy.Validate(); err != nil {
		return NewError(KindConfig, "%v", err)
	}
	if r.Strategy.Kind == StrategyCustom && len(r.Strategy.Amounts) != walletCount {
		return NewError(KindConfig, "custom amounts length %d does not match %d selected wallets",
			len(r.Strategy.Amounts), walletCount)
	}
	if err := r.Mode.Validate(); err != nil {
		return NewError(KindConfig, "%v", err)
	}
	return nil
}

// KeyFunc resolves a wallet's base58 private key just in time for execute.
// Keys are never held by the core between calls.
type KeyFunc func(ctx context.Context) (string, error)

// WalletSnapshot is the planner's view of one fleet wallet: its stable index,
// address, input-token balance at snapshot time and a lazy key provider.
// Key is nil for watch-only wallets.
type WalletSnapshot struct {
	Index   int
	Address string
	Balance uint64
	Key     KeyFunc
}

// Verdict is the planner's admission decision for one wallet.
type Verdict string

const (
	VerdictOK                  Verdict = "ok"
	VerdictBelowMinimum        Verdict = "below_minimum"
	VerdictInsufficientBalance Verdict = "insufficient_balance"
	VerdictSkip                Verdict = "skip"
)

// Plan is the immutable per-wallet admission result.
type Plan struct {
	Wallet      WalletSnapshot
	InputAmount uint64
	Verdict     Verdict
}

// Admitted reports whether the plan may execute.
func (p Plan) Admitted() bool { return p.Verdict == VerdictOK }

// Quote is a short-lived aggregator quote. RouteID is opaque and is handed
// back to execute; it ages out after the aggregator's staleness window.
type Quote struct {
	InAmount       uint64
	OutAmount      uint64
	RouteID        string
	PriceImpactBps int64
	FetchedAt      time.Time
}

// ExecuteOpts carries the execute-side switches.
type ExecuteOpts struct {
	WrapUnwrapSOL bool
	CollectFee    bool
	Verify        bool
}

// ExecResult is the aggregator's confirmation of a submitted swap.
type ExecResult struct {
	TxID         string
	OutputAmount uint64
	FeeAmount    uint64
	NewBalance   uint64
}

// Dex is the aggregator facade consumed by the runner. Implementations must
// be safe for concurrent use; transport-level retry lives behind this
// interface, business errors surface immediately as *Error values.
type Dex interface {
	SupportedTokens(ctx context.Context) (map[string]Token, error)
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error)
	Execute(ctx context.Context, privateKeyBase58 string, q *Quote, opts ExecuteOpts) (*ExecResult, error)
}

// Status is the terminal state of one wallet's swap.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Receipt is the terminal, immutable record of one wallet's run. Exactly one
// receipt exists per plan.
type Receipt struct {
	WalletIndex    int
	Address        string
	Status         Status
	InputAmount    uint64
	OutputAmount   *uint64
	TxID           string
	FeeAmount      *uint64
	PriceImpactBps *int64
	Duration       time.Duration
	Attempts       int
	ErrorKind      ErrorKind
	ErrorDetail    string
}
