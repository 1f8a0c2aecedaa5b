package jupiter

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rovshanmuradov/spl-fleet/internal/swap"
)

// Mock is the synthetic swap.Dex used by mock mode and the test suite. The
// pipeline through the core is identical to the real client; only the remote
// calls are replaced by result-producing stubs. QuoteFunc and ExecuteFunc
// override the defaults per test scenario.
type Mock struct {
	Tokens         map[string]swap.Token
	Rate           float64 // output base units per input base unit
	PriceImpactPct float64 // decimal percent, converted to bps on quotes

	QuoteFunc   func(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*swap.Quote, error)
	ExecuteFunc func(ctx context.Context, privateKeyBase58 string, q *swap.Quote, opts swap.ExecuteOpts) (*swap.ExecResult, error)

	txSeq    atomic.Uint64
	quotes   atomic.Uint64
	executes atomic.Uint64
}

// NewMock creates a mock with 1:1 pricing and 0.5% impact.
func NewMock() *Mock {
	return &Mock{
		Tokens:         DefaultTokens(),
		Rate:           1.0,
		PriceImpactPct: 0.5,
	}
}

// SupportedTokens returns the built-in symbol table.
func (m *Mock) SupportedTokens(_ context.Context) (map[string]swap.Token, error) {
	return m.Tokens, nil
}

// Quote returns a synthetic quote.
func (m *Mock) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*swap.Quote, error) {
	m.quotes.Add(1)
	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, inputMint, outputMint, amount, slippageBps)
	}
	return &swap.Quote{
		InAmount:       amount,
		OutAmount:      uint64(math.Floor(float64(amount) * m.Rate)),
		RouteID:        uuid.NewString(),
		PriceImpactBps: int64(math.Round(m.PriceImpactPct * 100)),
		FetchedAt:      time.Now(),
	}, nil
}

// Execute returns a synthetic success receipt for the quote.
func (m *Mock) Execute(ctx context.Context, privateKeyBase58 string, q *swap.Quote, opts swap.ExecuteOpts) (*swap.ExecResult, error) {
	m.executes.Add(1)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, privateKeyBase58, q, opts)
	}
	res := &swap.ExecResult{
		TxID:         fmt.Sprintf("mock_tx_%d", m.txSeq.Add(1)),
		OutputAmount: q.OutAmount,
	}
	if opts.CollectFee {
		res.FeeAmount = uint64(math.Floor(float64(q.InAmount) * ServiceFeeRate))
	}
	return res, nil
}

// QuoteCalls reports how many quotes were requested.
func (m *Mock) QuoteCalls() uint64 { return m.quotes.Load() }

// ExecuteCalls reports how many executes were submitted.
func (m *Mock) ExecuteCalls() uint64 { return m.executes.Load() }
