// =================================
// File: internal/config/config.go
// =================================
// Package config loads and validates the run configuration. Strategy and
// mode arrive as typed sections and are converted into the core's tagged
// unions once, at this edge; nothing duck-typed crosses into the core.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/spl-fleet/internal/swap"
	"github.com/rovshanmuradov/spl-fleet/internal/wallet"
)

// Config is the full run configuration. Amount fields are whole-token
// amounts; conversion to base units happens after token resolution.
type Config struct {
	Operation   string          `mapstructure:"operation"`
	InputToken  string          `mapstructure:"input_token"`
	OutputToken string          `mapstructure:"output_token"`
	Strategy    StrategySection `mapstructure:"strategy"`
	Mode        ModeSection     `mapstructure:"mode"`

	SlippageBps        int     `mapstructure:"slippage_bps"`
	Verify             bool    `mapstructure:"verify"`
	MaxRetries         int     `mapstructure:"max_retries"`
	RetryBackoffBaseMs int     `mapstructure:"retry_backoff_base_ms"`
	CollectFee         bool    `mapstructure:"collect_fee"`
	MinimumInputAmount float64 `mapstructure:"minimum_input_amount"`
	RunDeadlineMs      int     `mapstructure:"run_deadline_ms"`
	QuoteStaleAfterMs  int     `mapstructure:"quote_stale_after_ms"`

	WalletsFile     string `mapstructure:"wallets_file"`
	WalletSelection string `mapstructure:"wallet_selection"`
	WalletCount     int    `mapstructure:"wallet_count"`
	WalletIndices   []int  `mapstructure:"wallet_indices"`

	JupiterURL    string   `mapstructure:"jupiter_url"`
	RPCURL        string   `mapstructure:"rpc_url"`
	MockMode      bool     `mapstructure:"mock_mode"`
	ReportDir     string   `mapstructure:"report_dir"`
	ReportFormats []string `mapstructure:"report_formats"`
	EventBuffer   int      `mapstructure:"event_buffer"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

// StrategySection is the amount-strategy block of the config file.
type StrategySection struct {
	Kind     string    `mapstructure:"kind"`
	Base     float64   `mapstructure:"base"`
	Fraction float64   `mapstructure:"fraction"`
	Min      float64   `mapstructure:"min"`
	Max      float64   `mapstructure:"max"`
	Amounts  []float64 `mapstructure:"amounts"`
}

// ModeSection is the scheduling block of the config file.
type ModeSection struct {
	Kind          string `mapstructure:"kind"`
	DelayMs       int    `mapstructure:"delay_ms"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	BatchSize     int    `mapstructure:"batch_size"`
}

const (
	DefaultSlippageBps        = 50
	DefaultMaxRetries         = 3
	DefaultRetryBackoffBaseMs = 1000
	DefaultEventBuffer        = 256
	DefaultReportDir          = "data/reports"
)

// LoadConfig reads and validates the run configuration file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"operation":             "buy",
		"strategy.kind":         "fixed",
		"mode.kind":             "sequential",
		"slippage_bps":          DefaultSlippageBps,
		"verify":                true,
		"max_retries":           DefaultMaxRetries,
		"retry_backoff_base_ms": DefaultRetryBackoffBaseMs,
		"collect_fee":           true,
		"wallet_selection":      "all",
		"wallets_file":          "configs/wallets.yaml",
		"report_dir":            DefaultReportDir,
		"report_formats":        []string{"json"},
		"event_buffer":          DefaultEventBuffer,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.InputToken == "" || cfg.OutputToken == "" {
		return errors.New("input_token and output_token are required")
	}
	switch cfg.Operation {
	case "buy", "sell":
	default:
		return fmt.Errorf("operation must be buy or sell, got %q", cfg.Operation)
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps > 10000 {
		return errors.New("slippage_bps must be in [0, 10000]")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	if cfg.RetryBackoffBaseMs <= 0 {
		return errors.New("retry_backoff_base_ms must be > 0")
	}
	if cfg.RunDeadlineMs < 0 {
		return errors.New("run_deadline_ms must be >= 0")
	}
	if cfg.WalletsFile == "" {
		return errors.New("wallets_file is required")
	}
	if !cfg.MockMode && cfg.RPCURL == "" {
		return errors.New("rpc_url is required outside mock mode")
	}
	if cfg.RPCURL != "" {
		if err := validateURL(cfg.RPCURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.JupiterURL != "" {
		if err := validateURL(cfg.JupiterURL, "http"); err != nil {
			return errors.New("invalid aggregator URL protocol")
		}
	}
	for _, format := range cfg.ReportFormats {
		switch format {
		case "json", "csv", "yaml":
		default:
			return fmt.Errorf("unsupported report format: %q", format)
		}
	}
	return nil
}

func validateURL(rawURL, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("SPL_FLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envRPC := v.GetString("RPC_URL"); envRPC != "" {
		cfg.RPCURL = envRPC
	}
	if envJup := v.GetString("JUPITER_URL"); envJup != "" {
		cfg.JupiterURL = envJup
	}
}

// ToStrategy converts the strategy section into the core tagged union,
// flooring whole-token amounts into base units of the input token.
func (c *Config) ToStrategy(input swap.Token) (swap.Strategy, error) {
	s := swap.Strategy{Kind: swap.StrategyKind(c.Strategy.Kind)}
	switch s.Kind {
	case swap.StrategyFixed:
		s.Base = input.ToBaseUnits(c.Strategy.Base)
	case swap.StrategyPercentage:
		s.Fraction = c.Strategy.Fraction
	case swap.StrategyRandom:
		s.Min = input.ToBaseUnits(c.Strategy.Min)
		s.Max = input.ToBaseUnits(c.Strategy.Max)
	case swap.StrategyCustom:
		s.Amounts = make([]uint64, 0, len(c.Strategy.Amounts))
		for _, a := range c.Strategy.Amounts {
			s.Amounts = append(s.Amounts, input.ToBaseUnits(a))
		}
	default:
		return swap.Strategy{}, fmt.Errorf("unsupported strategy: %q", c.Strategy.Kind)
	}
	return s, s.Validate()
}

// ToMode converts the mode section into the core tagged union.
func (c *Config) ToMode() (swap.Mode, error) {
	m := swap.Mode{
		Kind:          swap.ModeKind(c.Mode.Kind),
		Delay:         time.Duration(c.Mode.DelayMs) * time.Millisecond,
		MaxConcurrent: c.Mode.MaxConcurrent,
		BatchSize:     c.Mode.BatchSize,
	}
	return m, m.Validate()
}

// Selection converts the wallet-selection settings.
func (c *Config) Selection() wallet.Selection {
	return wallet.Selection{
		Kind:    wallet.SelectionKind(c.WalletSelection),
		Count:   c.WalletCount,
		Indices: c.WalletIndices,
	}
}
