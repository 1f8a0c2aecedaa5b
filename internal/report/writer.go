package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Format selects the report file rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// Writer persists run reports under an output directory with timestamped
// filenames.
type Writer struct {
	logger *zap.Logger
	dir    string
}

// NewWriter creates a report writer.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{logger: logger.Named("report"), dir: dir}
}

// Write renders the report in the given format and returns the file path.
func (w *Writer) Write(r *Report, format Format) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	name := fmt.Sprintf("swap_run_%s_%s.%s",
		time.Now().Format("20060102_150405"), r.Metadata.RunID, format)
	path := filepath.Join(w.dir, name)

	var err error
	switch format {
	case FormatJSON:
		err = writeJSON(r, path)
	case FormatCSV:
		err = writeCSV(r, path)
	case FormatYAML:
		err = writeYAML(r, path)
	default:
		err = fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return "", err
	}

	w.logger.Info("Report written",
		zap.String("file", path),
		zap.String("format", string(format)),
		zap.Int("swaps", len(r.SwapResults)))
	return path, nil
}

func writeJSON(r *Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func writeCSV(r *Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	headers := []string{
		"wallet_index", "address", "status", "transaction_id",
		"input_amount", "output_amount", "fee_amount", "price_impact_bps",
		"error_kind", "error_detail", "attempts", "duration_ms",
	}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("write CSV headers: %w", err)
	}

	for _, res := range r.SwapResults {
		row := []string{
			strconv.Itoa(res.WalletIndex),
			res.Address,
			res.Status,
			strPtr(res.TransactionID),
			strconv.FormatUint(res.InputAmount, 10),
			uintPtr(res.OutputAmount),
			uintPtr(res.FeeAmount),
			intPtr(res.PriceImpactBps),
			res.ErrorKind,
			res.ErrorDetail,
			strconv.Itoa(res.Attempts),
			strconv.FormatInt(res.DurationMs, 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	return nil
}

func writeYAML(r *Report, path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}

// ConsoleSummary renders the operator-facing run recap.
func ConsoleSummary(r *Report) string {
	var b strings.Builder
	line := strings.Repeat("=", 56)

	fmt.Fprintf(&b, "%s\nSWAP RUN %s (%s)\n%s\n",
		line, r.Metadata.RunID, r.Metadata.ExitCondition, line)
	fmt.Fprintf(&b, "Operation: %s %s -> %s\n",
		r.Configuration.Operation, r.Configuration.InputToken, r.Configuration.OutputToken)
	fmt.Fprintf(&b, "Strategy:  %s  Mode: %s  Slippage: %d bps\n",
		r.Configuration.Strategy, r.Configuration.Mode, r.Configuration.SlippageBps)
	fmt.Fprintf(&b, "Wallets:   %d selected of %d\n",
		r.ExecutionSummary.SelectedWallets, r.ExecutionSummary.TotalWallets)
	fmt.Fprintf(&b, "Results:   %d success / %d failed / %d skipped (%.1f%%)\n",
		r.ExecutionSummary.Success, r.ExecutionSummary.Failed,
		r.ExecutionSummary.Skipped, r.ExecutionSummary.SuccessRate)
	fmt.Fprintf(&b, "Volume:    in=%d out=%d fees=%d\n",
		r.VolumeSummary.InputVolume, r.VolumeSummary.OutputVolume, r.VolumeSummary.FeesCollected)
	if r.VolumeSummary.AveragePriceImpactBps != nil {
		fmt.Fprintf(&b, "Impact:    %.1f bps (input-weighted)\n", *r.VolumeSummary.AveragePriceImpactBps)
	}
	fmt.Fprintf(&b, "Duration:  %d ms\n", r.Metadata.DurationMs)

	if len(r.ErrorClassification) > 0 {
		b.WriteString("Failures by kind:\n")
		kinds := make([]string, 0, len(r.ErrorClassification))
		for kind := range r.ErrorClassification {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(&b, "  %-22s %d\n", kind, r.ErrorClassification[kind])
		}
	}
	b.WriteString(line)
	return b.String()
}

func strPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func uintPtr(v *uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v, 10)
}

func intPtr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
