package config

import (
	"fmt"
	"os"
	"time"

	"github.com/evdnx/spotbot/types"
	"gopkg.in/yaml.v3"
)

// StrategyConfig holds every tunable of the EMA/RSI/ATR spot strategy.
// Default() reproduces the fixed production values; a YAML file only needs
// to name the keys it changes.
type StrategyConfig struct {
	// Market data
	Category     string `yaml:"category"`      // venue product line, "spot"
	Interval     string `yaml:"interval"`      // kline interval, "5" = 5 minutes
	EntryCandles int    `yaml:"entry_candles"` // candles fetched for the entry decision
	TrendCandles int    `yaml:"trend_candles"` // candles fetched for the trend-reversal check

	// Indicator periods
	FastEMAPeriod  int `yaml:"fast_ema_period"`
	SlowEMAPeriod  int `yaml:"slow_ema_period"`
	RSIPeriod      int `yaml:"rsi_period"`
	ATRPeriod      int `yaml:"atr_period"`
	VolumePeriod   int `yaml:"volume_period"`
	LocalLowWindow int `yaml:"local_low_window"`

	// Entry filters
	RSILower           float64 `yaml:"rsi_lower"`            // exclusive
	RSIUpper           float64 `yaml:"rsi_upper"`            // exclusive
	MinVolatilityRatio float64 `yaml:"min_volatility_ratio"` // ATR must exceed price * ratio

	// Risk parameters
	MaxRiskPerTrade   float64 `yaml:"max_risk_per_trade"` // 0.01 = 1 % of equity
	StopATRMultiple   float64 `yaml:"stop_atr_multiple"`  // stop distance = ATR * multiple
	TakeProfitRR      float64 `yaml:"take_profit_rr"`     // target distance = stop distance * RR
	QuantityPrecision int32   `yaml:"quantity_precision"`
	PricePrecision    int32   `yaml:"price_precision"`

	// Position management
	BreakevenTrigger       float64       `yaml:"breakeven_trigger"`      // fraction of the way to target
	PartialCloseFraction   float64       `yaml:"partial_close_fraction"` // sold when break-even arms
	PollInterval           time.Duration `yaml:"poll_interval"`
	MaxPollFailures        int           `yaml:"max_poll_failures"`
	ExitOrderRetries       int           `yaml:"exit_order_retries"`
	ExitRetryBackoff       time.Duration `yaml:"exit_retry_backoff"`
	ExitRetryMaxBackoff    time.Duration `yaml:"exit_retry_max_backoff"`
	CancelTakeProfitOnExit bool          `yaml:"cancel_take_profit_on_exit"`
}

// Default returns the production configuration.
func Default() StrategyConfig {
	return StrategyConfig{
		Category:     "spot",
		Interval:     "5",
		EntryCandles: 30,
		TrendCandles: 30,

		FastEMAPeriod:  9,
		SlowEMAPeriod:  21,
		RSIPeriod:      14,
		ATRPeriod:      14,
		VolumePeriod:   20,
		LocalLowWindow: 10,

		RSILower:           30,
		RSIUpper:           45,
		MinVolatilityRatio: 0.005,

		MaxRiskPerTrade:   0.01,
		StopATRMultiple:   2,
		TakeProfitRR:      2,
		QuantityPrecision: 6,
		PricePrecision:    2,

		BreakevenTrigger:       0.5,
		PartialCloseFraction:   0.3,
		PollInterval:           60 * time.Second,
		MaxPollFailures:        5,
		ExitOrderRetries:       3,
		ExitRetryBackoff:       2 * time.Second,
		ExitRetryMaxBackoff:    30 * time.Second,
		CancelTakeProfitOnExit: true,
	}
}

// Load reads a YAML file on top of Default() and validates the result.
func Load(path string) (StrategyConfig, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// largestLookback is the smallest candle count every indicator can work with.
func (c *StrategyConfig) largestLookback() int {
	n := c.SlowEMAPeriod
	for _, p := range []int{c.FastEMAPeriod, c.RSIPeriod + 1, c.ATRPeriod + 1, c.VolumePeriod, c.LocalLowWindow} {
		if p > n {
			n = p
		}
	}
	return n
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error so a configuration problem
// surfaces before any order is sent.
func (c *StrategyConfig) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Category == "" || c.Interval == "" {
		return invalid("category and interval are required")
	}
	for name, p := range map[string]int{
		"fast_ema_period":  c.FastEMAPeriod,
		"slow_ema_period":  c.SlowEMAPeriod,
		"rsi_period":       c.RSIPeriod,
		"atr_period":       c.ATRPeriod,
		"volume_period":    c.VolumePeriod,
		"local_low_window": c.LocalLowWindow,
	} {
		if p <= 0 {
			return invalid("%s must be positive", name)
		}
	}
	if c.FastEMAPeriod >= c.SlowEMAPeriod {
		return invalid("fast_ema_period (%d) must be below slow_ema_period (%d)", c.FastEMAPeriod, c.SlowEMAPeriod)
	}
	need := c.largestLookback()
	if c.EntryCandles < need {
		return invalid("entry_candles (%d) must be at least %d", c.EntryCandles, need)
	}
	if c.TrendCandles < c.SlowEMAPeriod {
		return invalid("trend_candles (%d) must be at least slow_ema_period (%d)", c.TrendCandles, c.SlowEMAPeriod)
	}
	if c.RSILower < 0 || c.RSIUpper > 100 || c.RSILower >= c.RSIUpper {
		return invalid("rsi band (%v, %v) is not a valid sub-range of [0, 100]", c.RSILower, c.RSIUpper)
	}
	if c.MinVolatilityRatio < 0 {
		return invalid("min_volatility_ratio cannot be negative")
	}
	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade > 0.5 {
		return invalid("max_risk_per_trade (%f) must be >0 and <=0.5", c.MaxRiskPerTrade)
	}
	if c.StopATRMultiple <= 0 || c.TakeProfitRR <= 0 {
		return invalid("stop_atr_multiple and take_profit_rr must be positive")
	}
	if c.QuantityPrecision < 0 || c.PricePrecision < 0 {
		return invalid("precision cannot be negative")
	}
	if c.BreakevenTrigger <= 0 || c.BreakevenTrigger >= 1 {
		return invalid("breakeven_trigger (%f) must be between 0 and 1", c.BreakevenTrigger)
	}
	if c.PartialCloseFraction < 0 || c.PartialCloseFraction >= 1 {
		return invalid("partial_close_fraction (%f) must be in [0, 1)", c.PartialCloseFraction)
	}
	if c.PollInterval <= 0 {
		return invalid("poll_interval must be positive")
	}
	if c.MaxPollFailures <= 0 {
		return invalid("max_poll_failures must be positive")
	}
	if c.ExitOrderRetries < 0 {
		return invalid("exit_order_retries cannot be negative")
	}
	if c.ExitRetryBackoff < 0 || c.ExitRetryMaxBackoff < c.ExitRetryBackoff {
		return invalid("exit retry backoff must satisfy 0 <= base <= max")
	}
	return nil
}
