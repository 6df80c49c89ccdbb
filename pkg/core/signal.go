package core

import (
	"fmt"
	"strings"
	"time"
)

// Outcome values recorded when a signal is finalized.
const (
	OutcomeTP1Reached     = "tp1_reached"
	OutcomeTP2Reached     = "tp2_reached"
	OutcomeSLHit          = "sl_hit"
	OutcomeExpiredNoHit   = "expired_no_target"
	OutcomeMessageDeleted = "message_deleted"
)

// Price snapshot sources.
const (
	SnapshotSourceTrackerTick  = "tracker_tick"
	SnapshotSourceManualUpdate = "manual_update"
	SnapshotSourceFinalize     = "finalize"
)

// Entry level statuses relative to the current price.
const (
	EntryStatusOptimal          = "OPTIMAL"
	EntryStatusPriceMoved       = "PRICE_MOVED"
	EntryStatusWaitForPullback  = "WAIT_FOR_PULLBACK"
	EntryStatusPullbackExpected = "PULLBACK_EXPECTED"
)

// Signal is a published trading signal and its full tracking state.
type Signal struct {
	ID         string    `json:"signal_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Price      float64   `json:"signal_price"`
	Confidence float64   `json:"confidence"`
	ATR        float64   `json:"atr,omitempty"`
	Timeframe  string    `json:"timeframe,omitempty"`
	CreatedAt  int64     `json:"created_at"`

	Strategy      StrategyType   `json:"strategy_type"`
	CustomTargets *CustomTargets `json:"custom_targets,omitempty"`

	TP1Price float64 `json:"tp1_price,omitempty"`
	TP2Price float64 `json:"tp2_price,omitempty"`
	SLPrice  float64 `json:"sl_price,omitempty"`
	TP1Hit   bool    `json:"tp1_hit"`
	TP2Hit   bool    `json:"tp2_hit"`
	SLHit    bool    `json:"sl_hit"`
	TP1HitAt int64   `json:"tp1_hit_at,omitempty"`
	TP2HitAt int64   `json:"tp2_hit_at,omitempty"`
	SLHitAt  int64   `json:"sl_hit_at,omitempty"`

	// R-multiple distances from entry, recorded at creation time.
	TP1DistanceR float64 `json:"tp1_distance_r,omitempty"`
	TP2DistanceR float64 `json:"tp2_distance_r,omitempty"`
	SLDistanceR  float64 `json:"sl_distance_r,omitempty"`

	EntryLevels *EntryLevels `json:"entry_levels,omitempty"`

	OptimalEntryPrice      float64                    `json:"optimal_entry_price,omitempty"`
	ConservativeEntryPrice float64                    `json:"conservative_entry_price,omitempty"`
	OptimalEntryHit        bool                       `json:"optimal_entry_hit"`
	OptimalEntryHitAt      int64                      `json:"optimal_entry_hit_at,omitempty"`
	ConservativeEntryHit   bool                       `json:"conservative_entry_hit"`
	ConservativeEntryHitAt int64                      `json:"conservative_entry_hit_at,omitempty"`
	LiquidationRiskPct     float64                    `json:"liquidation_risk_percentage,omitempty"`
	MFEPrice               float64                    `json:"mfe_price,omitempty"`
	MFEAt                  int64                      `json:"mfe_at,omitempty"`
	MAEPrice               float64                    `json:"mae_price,omitempty"`
	MAEAt                  int64                      `json:"mae_at,omitempty"`
	FinalPrice             float64                    `json:"final_price,omitempty"`
	FinalOutcome           string                     `json:"final_outcome,omitempty"`
	TelegramMessageID      int                        `json:"telegram_message_id"`
	TelegramChannelID      string                     `json:"telegram_channel_id"`
	MessageDeleted         bool                       `json:"message_deleted"`
	ScoreBreakdown         *Score                     `json:"signal_score_breakdown,omitempty"`
	MarketContext          string                     `json:"market_context,omitempty"`
	TimeframeSignals       map[string]TimeframeSignal `json:"timeframe_signals,omitempty"`
}

// Score is the ranking breakdown recorded with a published signal.
type Score struct {
	Total       float64 `json:"total_score"`
	Base        float64 `json:"base_score"`
	RSIBonus    float64 `json:"rsi_bonus"`
	VolumeBonus float64 `json:"volume_bonus"`
}

// TimeframeSignal is the per-timeframe analysis result that a combined
// signal is built from.
type TimeframeSignal struct {
	Timeframe  string          `json:"timeframe"`
	Direction  Direction       `json:"direction"`
	Confidence float64         `json:"confidence"`
	Indicators IndicatorValues `json:"indicators"`
	Volume     VolumeInfo      `json:"volume"`
}

// IndicatorValues is the indicator snapshot for one timeframe.
type IndicatorValues struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	EMA20      float64 `json:"ema20"`
	EMA50      float64 `json:"ema50"`
	EMA200     float64 `json:"ema200"`
	BBUpper    float64 `json:"bb_upper"`
	BBLower    float64 `json:"bb_lower"`
	BBMiddle   float64 `json:"bb_middle"`
	ATR        float64 `json:"atr"`
	ADX        float64 `json:"adx"`
	PlusDI     float64 `json:"plus_di"`
	MinusDI    float64 `json:"minus_di"`
	Close      float64 `json:"close"`
	PrevClose  float64 `json:"prev_close"`
}

// MACDHistogram is the distance between the MACD line and its signal line.
func (iv IndicatorValues) MACDHistogram() float64 {
	return iv.MACD - iv.MACDSignal
}

// EMAAligned reports whether price and the three EMAs stack in the same
// direction, the classic trend alignment check.
func (iv IndicatorValues) EMAAligned() bool {
	return (iv.Close > iv.EMA200 && iv.EMA20 > iv.EMA50) ||
		(iv.Close < iv.EMA200 && iv.EMA20 < iv.EMA50)
}

// VolumeInfo summarizes volume behavior for one timeframe.
type VolumeInfo struct {
	Current  float64 `json:"current"`
	Average  float64 `json:"average"`
	Relative float64 `json:"relative"`
}

// EntryLevel is one of the three suggested entries for a signal.
type EntryLevel struct {
	Price          float64 `json:"price"`
	RiskLevel      string  `json:"risk_level"`
	Expectation    string  `json:"expectation"`
	Explanation    string  `json:"explanation_detail,omitempty"`
	RiskReward     float64 `json:"risk_reward"`
	PriceChangePct float64 `json:"price_change_pct"`
}

// EntryLevels groups the immediate/optimal/conservative entries.
type EntryLevels struct {
	ATR          float64    `json:"atr,omitempty"`
	Timeframe    string     `json:"timeframe,omitempty"`
	Immediate    EntryLevel `json:"immediate"`
	Optimal      EntryLevel `json:"optimal"`
	Conservative EntryLevel `json:"conservative"`
	Status       string     `json:"status,omitempty"`
}

// CustomTarget is a single mean-reversion target level.
type CustomTarget struct {
	Price float64 `json:"price"`
	Label string  `json:"label,omitempty"`
}

// CustomTargets replaces the ATR ladder for ranging-market signals.
type CustomTargets struct {
	TP1      *CustomTarget `json:"tp1,omitempty"`
	TP2      *CustomTarget `json:"tp2,omitempty"`
	TP3      *CustomTarget `json:"tp3,omitempty"`
	StopLoss *CustomTarget `json:"stop_loss,omitempty"`
}

// PriceSnapshot is a recorded observation of a tracked signal's price.
type PriceSnapshot struct {
	SignalID  string  `json:"signal_id"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Source    string  `json:"source"`
}

// RejectedSignal records a candidate that was filtered out and why.
type RejectedSignal struct {
	SignalID      string    `json:"signal_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Confidence    float64   `json:"confidence"`
	Price         float64   `json:"signal_price"`
	CreatedAt     int64     `json:"created_at"`
	Reason        string    `json:"rejection_reason"`
	Detail        string    `json:"rejected_reason,omitempty"`
	MarketContext string    `json:"market_context,omitempty"`
}

// MetricsSummary is an aggregated performance report over a period.
type MetricsSummary struct {
	PeriodStart           int64   `json:"period_start"`
	PeriodEnd             int64   `json:"period_end"`
	TotalSignals          int     `json:"total_signals"`
	LongSignals           int     `json:"long_signals"`
	ShortSignals          int     `json:"short_signals"`
	NeutralFiltered       int     `json:"neutral_filtered"`
	AvgConfidence         float64 `json:"avg_confidence"`
	TP1HitRate            float64 `json:"tp1_hit_rate"`
	TP2HitRate            float64 `json:"tp2_hit_rate"`
	SLHitRate             float64 `json:"sl_hit_rate"`
	AvgMFEPercent         float64 `json:"avg_mfe_percent"`
	AvgMAEPercent         float64 `json:"avg_mae_percent"`
	AvgHoursToFirstTarget float64 `json:"avg_time_to_first_target_hours"`
	MarketRegime          string  `json:"market_regime,omitempty"`
}

// NewSignalID builds the canonical signal identifier: 20251107-074546-FILUSDT.
func NewSignalID(symbol string, at time.Time) string {
	clean := strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
	return fmt.Sprintf("%s-%s", at.UTC().Format("20060102-150405"), clean)
}

// IsFinal reports whether the signal reached a terminal state.
func (s *Signal) IsFinal() bool {
	return s.FinalOutcome != "" || s.TP2Hit || s.SLHit
}

// Age returns how long the signal has been live.
func (s *Signal) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(s.CreatedAt, 0))
}

// PnLPercent computes the direction-aware unrealized move from the signal
// price to the given price. SHORT gains when price falls.
func (s *Signal) PnLPercent(price float64) float64 {
	if s.Price == 0 {
		return 0
	}
	switch s.Direction {
	case DirectionLong:
		return (price - s.Price) / s.Price * 100
	case DirectionShort:
		return (s.Price - price) / s.Price * 100
	default:
		return 0
	}
}
