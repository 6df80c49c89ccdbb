package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Config is the full runtime configuration, loaded from environment
// variables (prefix SIGSCAN_) with sensible defaults.
type Config struct {
	// Scheduling
	ScanInterval    time.Duration
	TrackerInterval time.Duration
	SummaryInterval time.Duration

	// Analysis
	Timeframes       []string
	TimeframeWeights map[string]float64
	PrimaryTimeframe string

	// Signal acceptance
	MinConfidenceLong  float64
	MinConfidenceShort float64
	RankerMinScore     float64
	TopSignals         int
	MinATRPercent      float64
	RangingADX         float64
	RangingScore       float64
	RangingMinSLPct    float64
	BTCCrashPercent    float64

	// Cooldown / tracking
	Cooldown       time.Duration
	ActiveWindow   time.Duration
	HitEditTimeout time.Duration
	MFEEditPercent float64
	EditPacing     time.Duration

	// Position math
	SLMultiplier   float64
	TPMultipliers  []float64
	AccountBalance float64
	MaxLeverage    float64

	// Liquidation safety
	RiskRanges     []float64
	LeverageRanges []int
	MinSLLiqBuffer float64
	MMR            float64

	// Market data
	Symbols       []string
	KlineCacheTTL time.Duration
	KlineLimit    int

	// Storage
	DatabasePath string

	// Telegram
	TelegramEnabled bool
	TelegramToken   string
	TelegramChannel string
	TelegramAdmins  []int

	// Logging
	LogLevel      string
	LogTimeFormat string
	LogColored    bool
	LogJSON       bool
}

const envPrefix = "SIGSCAN"

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan_interval", "1h")
	v.SetDefault("tracker_interval", "15m")
	v.SetDefault("summary_interval", "24h")

	v.SetDefault("timeframes", "1h,4h,1d")
	v.SetDefault("timeframe_weights", "0.40,0.35,0.25")
	v.SetDefault("primary_timeframe", "4h")

	v.SetDefault("min_confidence_long", 0.90)
	v.SetDefault("min_confidence_short", 0.69)
	v.SetDefault("ranker_min_score", 0.35)
	v.SetDefault("top_signals", 5)
	v.SetDefault("min_atr_percent", 2.0)
	v.SetDefault("ranging_adx", 25.0)
	v.SetDefault("ranging_score", 0.8)
	v.SetDefault("ranging_min_sl_pct", 1.0)
	v.SetDefault("btc_crash_percent", 5.0)

	v.SetDefault("cooldown", "4h")
	v.SetDefault("active_window", "72h")
	v.SetDefault("hit_edit_timeout", "2h")
	v.SetDefault("mfe_edit_percent", 2.0)
	v.SetDefault("edit_pacing", "600ms")

	v.SetDefault("sl_multiplier", 2.0)
	v.SetDefault("tp_multipliers", "3,5")
	v.SetDefault("account_balance", 1000.0)
	v.SetDefault("max_leverage", 10.0)

	v.SetDefault("risk_ranges", "0.5,1.0,1.5,2.0,2.5,3.0,3.5,4.0,4.5,5.0")
	v.SetDefault("leverage_ranges", "1,2,3,4,5,7,10,12,15,20")
	v.SetDefault("min_sl_liq_buffer", 0.01)
	v.SetDefault("mmr", 0.004)

	v.SetDefault("symbols", "")
	v.SetDefault("kline_cache_ttl", "5m")
	v.SetDefault("kline_limit", 250)

	v.SetDefault("database_path", "data/signals.db")

	v.SetDefault("telegram_enabled", true)
	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_channel", "")
	v.SetDefault("telegram_admins", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_time_format", "2006-01-02 15:04:05")
	v.SetDefault("log_colored", true)
	v.SetDefault("log_json", false)
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		MinConfidenceLong:  v.GetFloat64("min_confidence_long"),
		MinConfidenceShort: v.GetFloat64("min_confidence_short"),
		RankerMinScore:     v.GetFloat64("ranker_min_score"),
		TopSignals:         v.GetInt("top_signals"),
		MinATRPercent:      v.GetFloat64("min_atr_percent"),
		RangingADX:         v.GetFloat64("ranging_adx"),
		RangingScore:       v.GetFloat64("ranging_score"),
		RangingMinSLPct:    v.GetFloat64("ranging_min_sl_pct"),
		BTCCrashPercent:    v.GetFloat64("btc_crash_percent"),
		MFEEditPercent:     v.GetFloat64("mfe_edit_percent"),
		SLMultiplier:       v.GetFloat64("sl_multiplier"),
		AccountBalance:     v.GetFloat64("account_balance"),
		MaxLeverage:        v.GetFloat64("max_leverage"),
		MinSLLiqBuffer:     v.GetFloat64("min_sl_liq_buffer"),
		MMR:                v.GetFloat64("mmr"),
		KlineLimit:         v.GetInt("kline_limit"),
		DatabasePath:       v.GetString("database_path"),
		PrimaryTimeframe:   v.GetString("primary_timeframe"),
		TelegramEnabled:    v.GetBool("telegram_enabled"),
		TelegramToken:      v.GetString("telegram_token"),
		TelegramChannel:    v.GetString("telegram_channel"),
		LogLevel:           v.GetString("log_level"),
		LogTimeFormat:      v.GetString("log_time_format"),
		LogColored:         v.GetBool("log_colored"),
		LogJSON:            v.GetBool("log_json"),
	}

	var err error
	if cfg.ScanInterval, err = parseDuration(v.GetString("scan_interval")); err != nil {
		return nil, fmt.Errorf("scan_interval: %w", err)
	}
	if cfg.TrackerInterval, err = parseDuration(v.GetString("tracker_interval")); err != nil {
		return nil, fmt.Errorf("tracker_interval: %w", err)
	}
	if cfg.SummaryInterval, err = parseDuration(v.GetString("summary_interval")); err != nil {
		return nil, fmt.Errorf("summary_interval: %w", err)
	}
	if cfg.Cooldown, err = parseDuration(v.GetString("cooldown")); err != nil {
		return nil, fmt.Errorf("cooldown: %w", err)
	}
	if cfg.ActiveWindow, err = parseDuration(v.GetString("active_window")); err != nil {
		return nil, fmt.Errorf("active_window: %w", err)
	}
	if cfg.HitEditTimeout, err = parseDuration(v.GetString("hit_edit_timeout")); err != nil {
		return nil, fmt.Errorf("hit_edit_timeout: %w", err)
	}
	if cfg.EditPacing, err = parseDuration(v.GetString("edit_pacing")); err != nil {
		return nil, fmt.Errorf("edit_pacing: %w", err)
	}
	if cfg.KlineCacheTTL, err = parseDuration(v.GetString("kline_cache_ttl")); err != nil {
		return nil, fmt.Errorf("kline_cache_ttl: %w", err)
	}

	cfg.Timeframes = splitList(v.GetString("timeframes"))
	weights, err := parseFloatList(v.GetString("timeframe_weights"))
	if err != nil {
		return nil, fmt.Errorf("timeframe_weights: %w", err)
	}
	if len(weights) != len(cfg.Timeframes) {
		return nil, fmt.Errorf("timeframe_weights: expected %d weights, got %d",
			len(cfg.Timeframes), len(weights))
	}
	cfg.TimeframeWeights = make(map[string]float64, len(weights))
	for i, tf := range cfg.Timeframes {
		cfg.TimeframeWeights[tf] = weights[i]
	}

	if cfg.TPMultipliers, err = parseFloatList(v.GetString("tp_multipliers")); err != nil {
		return nil, fmt.Errorf("tp_multipliers: %w", err)
	}
	if cfg.RiskRanges, err = parseFloatList(v.GetString("risk_ranges")); err != nil {
		return nil, fmt.Errorf("risk_ranges: %w", err)
	}
	if cfg.LeverageRanges, err = parseIntList(v.GetString("leverage_ranges")); err != nil {
		return nil, fmt.Errorf("leverage_ranges: %w", err)
	}
	if cfg.TelegramAdmins, err = parseIntList(v.GetString("telegram_admins")); err != nil {
		return nil, fmt.Errorf("telegram_admins: %w", err)
	}
	cfg.Symbols = splitList(v.GetString("symbols"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TelegramEnabled && c.TelegramToken == "" {
		return fmt.Errorf("telegram is enabled but no token is configured")
	}
	if c.TelegramEnabled && c.TelegramChannel == "" {
		return fmt.Errorf("telegram is enabled but no channel is configured")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	if c.PrimaryTimeframe != "" {
		found := false
		for _, tf := range c.Timeframes {
			if tf == c.PrimaryTimeframe {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("primary_timeframe %q is not among the configured timeframes", c.PrimaryTimeframe)
		}
	}
	if len(c.TPMultipliers) < 2 {
		return fmt.Errorf("at least two take-profit multipliers are required")
	}
	if c.SLMultiplier <= 0 {
		return fmt.Errorf("sl_multiplier must be positive")
	}
	return nil
}

// parseDuration accepts extended duration strings such as "1d12h" in
// addition to the standard Go syntax.
func parseDuration(s string) (time.Duration, error) {
	return str2duration.ParseDuration(s)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloatList(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(p, "%g", &f); err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, f)
	}
	return out, nil
}

func parseIntList(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
