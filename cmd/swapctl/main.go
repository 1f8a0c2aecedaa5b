// ====================================
// File: cmd/swapctl/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/spl-fleet/internal/config"
	"github.com/rovshanmuradov/spl-fleet/internal/jupiter"
	"github.com/rovshanmuradov/spl-fleet/internal/logger"
	"github.com/rovshanmuradov/spl-fleet/internal/orchestrator"
	"github.com/rovshanmuradov/spl-fleet/internal/report"
	"github.com/rovshanmuradov/spl-fleet/internal/swap"
	"github.com/rovshanmuradov/spl-fleet/internal/wallet"
)

// mockDefaultBalance funds each wallet with 10 SOL worth of base units when
// running against the synthetic client.
const mockDefaultBalance = 10 * swap.LamportsPerSOL

func main() {
	configPath := flag.String("config", "configs/run.yaml", "run configuration file")
	walletsPath := flag.String("wallets", "", "wallet fleet file (overrides config)")
	mock := flag.Bool("mock", false, "run against the synthetic aggregator")
	reportDir := flag.String("report-dir", "", "report output directory (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if *walletsPath != "" {
		cfg.WalletsFile = *walletsPath
	}
	if *mock {
		cfg.MockMode = true
	}
	if *reportDir != "" {
		cfg.ReportDir = *reportDir
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync(log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fleet, err := wallet.LoadFleet(cfg.WalletsFile)
	if err != nil {
		log.Fatal("Failed to load wallet fleet", zap.Error(err))
	}
	log.Info("Wallet fleet loaded", zap.Int("wallets", len(fleet)))

	var dex swap.Dex
	var source wallet.Source
	if cfg.MockMode {
		log.Info("Mock mode: no transactions will reach the chain")
		dex = jupiter.NewMock()
		source = &wallet.StaticSource{Fleet: fleet, DefaultBalance: mockDefaultBalance}
	} else {
		dex = jupiter.NewClient(jupiter.Config{
			BaseURL:    cfg.JupiterURL,
			MaxRetries: cfg.MaxRetries,
			StaleAfter: time.Duration(cfg.QuoteStaleAfterMs) * time.Millisecond,
		}, log)
		source = wallet.NewRPCSource(fleet, cfg.RPCURL, log)
	}

	rep, err := orchestrator.New(cfg, dex, source, log).Run(ctx)
	if err != nil {
		log.Error("Run did not execute", zap.Error(err))
	}

	writer := report.NewWriter(cfg.ReportDir, log)
	for _, format := range cfg.ReportFormats {
		if _, err := writer.Write(rep, report.Format(format)); err != nil {
			log.Error("Failed to write report", zap.String("format", format), zap.Error(err))
		}
	}

	fmt.Println(report.ConsoleSummary(rep))

	if rep.Metadata.ExitCondition == report.ExitAbortedConfig {
		os.Exit(1)
	}
}
