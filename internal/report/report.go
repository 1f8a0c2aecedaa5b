// Package report folds lifecycle events and terminal receipts into the
// canonical run report and renders it as JSON, CSV, YAML or a console
// summary.
package report

import (
	"time"
)

// ExitCondition is how the run ended.
type ExitCondition string

const (
	ExitCompleted       ExitCondition = "completed"
	ExitDeadlineExpired ExitCondition = "deadline_expired"
	ExitCancelled       ExitCondition = "cancelled"
	ExitAbortedConfig   ExitCondition = "aborted_config"
)

// Report is the canonical run report. The JSON rendering is the reference
// shape; CSV and YAML are value-preserving projections of it.
type Report struct {
	Metadata            Metadata         `json:"metadata" yaml:"metadata"`
	Configuration       ConfigSnapshot   `json:"configuration" yaml:"configuration"`
	ExecutionSummary    ExecutionSummary `json:"execution_summary" yaml:"execution_summary"`
	VolumeSummary       VolumeSummary    `json:"volume_summary" yaml:"volume_summary"`
	SwapResults         []SwapResult     `json:"swap_results" yaml:"swap_results"`
	ErrorClassification map[string]int   `json:"error_classification" yaml:"error_classification"`
}

// Metadata identifies the run.
type Metadata struct {
	RunID         string        `json:"run_id" yaml:"run_id"`
	StartedAt     time.Time     `json:"started_at" yaml:"started_at"`
	EndedAt       time.Time     `json:"ended_at" yaml:"ended_at"`
	DurationMs    int64         `json:"duration_ms" yaml:"duration_ms"`
	ExitCondition ExitCondition `json:"exit_condition" yaml:"exit_condition"`
}

// ConfigSnapshot is the frozen run configuration embedded in the report.
type ConfigSnapshot struct {
	Operation          string `json:"operation" yaml:"operation"`
	InputToken         string `json:"input_token" yaml:"input_token"`
	InputMint          string `json:"input_mint" yaml:"input_mint"`
	OutputToken        string `json:"output_token" yaml:"output_token"`
	OutputMint         string `json:"output_mint" yaml:"output_mint"`
	Strategy           string `json:"strategy" yaml:"strategy"`
	Mode               string `json:"mode" yaml:"mode"`
	SlippageBps        int    `json:"slippage_bps" yaml:"slippage_bps"`
	Verify             bool   `json:"verify" yaml:"verify"`
	MaxRetries         int    `json:"max_retries" yaml:"max_retries"`
	CollectFee         bool   `json:"collect_fee" yaml:"collect_fee"`
	MinimumInputAmount uint64 `json:"minimum_input_amount" yaml:"minimum_input_amount"`
	RunDeadlineMs      int64  `json:"run_deadline_ms,omitempty" yaml:"run_deadline_ms,omitempty"`
	MockMode           bool   `json:"mock_mode,omitempty" yaml:"mock_mode,omitempty"`
}

// ExecutionSummary aggregates terminal states.
type ExecutionSummary struct {
	TotalWallets     int     `json:"total_wallets" yaml:"total_wallets"`
	SelectedWallets  int     `json:"selected_wallets" yaml:"selected_wallets"`
	Success          int     `json:"success" yaml:"success"`
	Failed           int     `json:"failed" yaml:"failed"`
	Skipped          int     `json:"skipped" yaml:"skipped"`
	SuccessRate      float64 `json:"success_rate" yaml:"success_rate"`
	TotalAttempts    int     `json:"total_attempts" yaml:"total_attempts"`
	RetriesScheduled int     `json:"retries_scheduled" yaml:"retries_scheduled"`
}

// VolumeSummary aggregates amounts over successful swaps only; failed and
// skipped wallets contribute nothing.
type VolumeSummary struct {
	InputVolume           uint64   `json:"input_volume" yaml:"input_volume"`
	OutputVolume          uint64   `json:"output_volume" yaml:"output_volume"`
	FeesCollected         uint64   `json:"fees_collected" yaml:"fees_collected"`
	AveragePriceImpactBps *float64 `json:"average_price_impact_bps" yaml:"average_price_impact_bps"`
}

// SwapResult is the per-wallet slice of the report.
type SwapResult struct {
	WalletIndex    int     `json:"wallet_index" yaml:"wallet_index"`
	Address        string  `json:"address" yaml:"address"`
	Status         string  `json:"status" yaml:"status"`
	TransactionID  *string `json:"transaction_id" yaml:"transaction_id"`
	InputAmount    uint64  `json:"input_amount" yaml:"input_amount"`
	OutputAmount   *uint64 `json:"output_amount" yaml:"output_amount"`
	FeeAmount      *uint64 `json:"fee_amount,omitempty" yaml:"fee_amount,omitempty"`
	PriceImpactBps *int64  `json:"price_impact_bps,omitempty" yaml:"price_impact_bps,omitempty"`
	ErrorKind      string  `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorDetail    string  `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`
	Attempts       int     `json:"attempts" yaml:"attempts"`
	DurationMs     int64   `json:"duration_ms" yaml:"duration_ms"`
}
