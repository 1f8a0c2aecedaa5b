package report

import (
	"sort"

	"github.com/rovshanmuradov/spl-fleet/internal/events"
	"github.com/rovshanmuradov/spl-fleet/internal/swap"
)

// Aggregator accumulates lifecycle events and terminal receipts from a
// single consumer goroutine and folds them into the report. Replaying the
// same stream through a fresh aggregator yields an identical report apart
// from the caller-supplied timestamps.
type Aggregator struct {
	receipts map[int]swap.Receipt
	retries  int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{receipts: make(map[int]swap.Receipt)}
}

// Observe folds one lifecycle event.
func (a *Aggregator) Observe(ev events.Event) {
	if ev.Type == events.RetryScheduled {
		a.retries++
	}
}

// Add records a terminal receipt. Exactly one receipt exists per wallet; a
// duplicate for the same index is ignored so replay stays idempotent.
func (a *Aggregator) Add(rec swap.Receipt) {
	if _, ok := a.receipts[rec.WalletIndex]; ok {
		return
	}
	a.receipts[rec.WalletIndex] = rec
}

// Finalize produces the report. totalWallets is the fleet size before
// selection; the receipt set covers every selected wallet.
func (a *Aggregator) Finalize(meta Metadata, cfg ConfigSnapshot, totalWallets int) *Report {
	indices := make([]int, 0, len(a.receipts))
	for idx := range a.receipts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	summary := ExecutionSummary{
		TotalWallets:     totalWallets,
		SelectedWallets:  len(a.receipts),
		RetriesScheduled: a.retries,
	}
	volume := VolumeSummary{}
	errCounts := make(map[string]int)
	results := make([]SwapResult, 0, len(a.receipts))

	var weightedImpact float64
	var impactWeight uint64

	for _, idx := range indices {
		rec := a.receipts[idx]
		summary.TotalAttempts += rec.Attempts

		switch rec.Status {
		case swap.StatusSuccess:
			summary.Success++
			volume.InputVolume += rec.InputAmount
			if rec.OutputAmount != nil {
				volume.OutputVolume += *rec.OutputAmount
			}
			if rec.FeeAmount != nil {
				volume.FeesCollected += *rec.FeeAmount
			}
			if rec.PriceImpactBps != nil {
				weightedImpact += float64(rec.InputAmount) * float64(*rec.PriceImpactBps)
				impactWeight += rec.InputAmount
			}
		case swap.StatusFailed:
			summary.Failed++
			errCounts[string(rec.ErrorKind)]++
		case swap.StatusSkipped:
			summary.Skipped++
		}

		results = append(results, toResult(rec))
	}

	if summary.SelectedWallets > 0 {
		summary.SuccessRate = float64(summary.Success) / float64(summary.SelectedWallets) * 100
	}
	if impactWeight > 0 {
		avg := weightedImpact / float64(impactWeight)
		volume.AveragePriceImpactBps = &avg
	}

	return &Report{
		Metadata:            meta,
		Configuration:       cfg,
		ExecutionSummary:    summary,
		VolumeSummary:       volume,
		SwapResults:         results,
		ErrorClassification: errCounts,
	}
}

func toResult(rec swap.Receipt) SwapResult {
	res := SwapResult{
		WalletIndex: rec.WalletIndex,
		Address:     rec.Address,
		Status:      string(rec.Status),
		InputAmount: rec.InputAmount,
		Attempts:    rec.Attempts,
		DurationMs:  rec.Duration.Milliseconds(),
	}
	if rec.TxID != "" {
		tx := rec.TxID
		res.TransactionID = &tx
	}
	if rec.OutputAmount != nil {
		out := *rec.OutputAmount
		res.OutputAmount = &out
	}
	if rec.FeeAmount != nil {
		fee := *rec.FeeAmount
		res.FeeAmount = &fee
	}
	if rec.PriceImpactBps != nil {
		impact := *rec.PriceImpactBps
		res.PriceImpactBps = &impact
	}
	if rec.Status == swap.StatusFailed {
		res.ErrorKind = string(rec.ErrorKind)
	}
	if rec.ErrorDetail != "" {
		res.ErrorDetail = rec.ErrorDetail
	}
	return res
}
