// =============================================
// File: internal/swap/planner.go
// =============================================
package swap

import (
	"math"
	"math/rand"
	"sort"
)

// PlanAmounts computes the per-wallet input amount and admission verdict for
// every selected wallet. It is pure: no I/O, no mutation of the snapshots,
// and deterministic given (request, wallets, seed). Wallets are processed in
// ascending index order so the random draw sequence is reproducible.
//
// A custom-amount length mismatch is a config error surfaced before any
// execution begins.
func PlanAmounts(req Request, wallets []WalletSnapshot, seed int64) ([]Plan, error) {
	if req.Strategy.Kind == StrategyCustom && len(req.Strategy.Amounts) != len(wallets) {
		return nil, NewError(KindConfig, "custom amounts length %d does not match %d selected wallets",
			len(req.Strategy.Amounts), len(wallets))
	}

	ordered := make([]WalletSnapshot, len(wallets))
	copy(ordered, wallets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var rng *rand.Rand
	if req.Strategy.Kind == StrategyRandom {
		rng = rand.New(rand.NewSource(seed))
	}

	plans := make([]Plan, 0, len(ordered))
	for i, w := range ordered {
		amount := amountFor(req.Strategy, w, i, rng)
		plans = append(plans, Plan{
			Wallet:      w,
			InputAmount: amount,
			Verdict:     admit(req, w, amount),
		})
	}
	return plans, nil
}

func amountFor(s Strategy, w WalletSnapshot, pos int, rng *rand.Rand) uint64 {
	switch s.Kind {
	case StrategyFixed:
		return s.Base
	case StrategyPercentage:
		return uint64(math.Floor(float64(w.Balance) * s.Fraction))
	case StrategyRandom:
		span := s.Max - s.Min
		if span == 0 {
			return s.Min
		}
		return s.Min + uint64(rng.Int63n(int64(span)+1))
	case StrategyCustom:
		return s.Amounts[pos]
	}
	return 0
}

func admit(req Request, w WalletSnapshot, amount uint64) Verdict {
	if w.Key == nil {
		return VerdictSkip
	}
	if amount < req.MinimumInputAmount {
		return VerdictBelowMinimum
	}
	if amount > w.Balance {
		return VerdictInsufficientBalance
	}
	return VerdictOK
}

// AdmittedCount returns how many plans may execute. Plans that are not
// admitted still go to the scheduler and end as skipped receipts without any
// remote call.
func AdmittedCount(plans []Plan) int {
	n := 0
	for _, p := range plans {
		if p.Admitted() {
			n++
		}
	}
	return n
}
