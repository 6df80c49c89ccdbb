package analysis

import (
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Volatility levels derived from the ATR/price ratio.
const (
	VolatilityLow    = "LOW"
	VolatilityMedium = "MEDIUM"
	VolatilityHigh   = "HIGH"
)

// Trend strength buckets derived from ADX.
const (
	TrendWeak     = "WEAK"
	TrendModerate = "MODERATE"
	TrendStrong   = "STRONG"
)

// ADX thresholds separating the trend strength buckets.
const (
	adxWeakThreshold   = 20.0
	adxStrongThreshold = 40.0

	// Above this ADX a counter-volatility entry is treated as catching a
	// falling knife and its confidence is slashed.
	adxCrashThreshold = 45.0
)

// Volatility describes how hard a symbol is currently moving.
type Volatility struct {
	ATR   float64
	Ratio float64
	Level string
}

// TrendStrength categorizes the ADX reading.
type TrendStrength struct {
	Strength   string
	Confidence float64
	Value      float64
}

// ThresholdManager adjusts raw signal confidence for the current market
// conditions: trend strength, volatility and indicator confluence.
type ThresholdManager struct {
	log logger.Logger
}

func NewThresholdManager(log logger.Logger) *ThresholdManager {
	return &ThresholdManager{log: log}
}

// CalcVolatility derives volatility metrics from ATR and the last price.
func (t *ThresholdManager) CalcVolatility(price, atr float64) Volatility {
	var ratio float64
	if price > 0 {
		ratio = atr / price * 100
	}
	return Volatility{ATR: atr, Ratio: ratio, Level: volatilityLevel(ratio)}
}

func volatilityLevel(ratio float64) string {
	switch {
	case ratio < 1.0:
		return VolatilityLow
	case ratio < 3.0:
		return VolatilityMedium
	default:
		return VolatilityHigh
	}
}

// CalcTrendStrength buckets the ADX value.
func (t *ThresholdManager) CalcTrendStrength(adx float64) TrendStrength {
	switch {
	case adx < adxWeakThreshold:
		return TrendStrength{Strength: TrendWeak, Confidence: 0.3, Value: adx}
	case adx < adxStrongThreshold:
		return TrendStrength{Strength: TrendModerate, Confidence: 0.6, Value: adx}
	default:
		return TrendStrength{Strength: TrendStrong, Confidence: 0.9, Value: adx}
	}
}

// AdjustConfidence reshapes a base confidence score using trend strength,
// volatility, RSI extremes and cross-indicator conflicts. The result is
// capped at 1.0.
func (t *ThresholdManager) AdjustConfidence(
	base float64,
	direction core.Direction,
	trend TrendStrength,
	vol Volatility,
	iv core.IndicatorValues,
	votes VoteBreakdown,
	volume core.VolumeInfo,
	volatilityPercentile float64,
) float64 {
	adjusted := base

	switch trend.Strength {
	case TrendStrong:
		adjusted *= 1.2
	case TrendWeak:
		adjusted *= 0.8
	}

	// Crash/pump protection: in very strong trends with high volatility a
	// fresh entry in either direction is most likely a blow-off move.
	if trend.Value > adxCrashThreshold && vol.Level == VolatilityHigh &&
		(direction == core.DirectionLong || direction == core.DirectionShort) {
		adjusted *= 0.1
		t.log.Warnf("crash protection: ADX=%.1f direction=%s volatility=HIGH, confidence %.3f -> %.3f",
			trend.Value, direction, base, adjusted)
	}

	switch vol.Level {
	case VolatilityHigh:
		adjusted *= 0.9
	case VolatilityLow:
		adjusted *= 1.05
	}

	if volatilityPercentile > 90 {
		adjusted *= 0.85
		t.log.Debugf("extreme volatility penalty: percentile=%.1f adjusted=%.3f",
			volatilityPercentile, adjusted)
	}

	// RSI extremity penalty: entering long into overbought (or short into
	// oversold) scales confidence down by up to 30%.
	if direction == core.DirectionLong && iv.RSI > 70 {
		penalty := (iv.RSI - 70) / 30
		adjusted *= 1 - penalty*0.3
	} else if direction == core.DirectionShort && iv.RSI < 30 {
		penalty := (30 - iv.RSI) / 30
		adjusted *= 1 - penalty*0.3
	}

	// A volume spike without RSI momentum behind it is suspect.
	if volume.Relative >= volumeSpikeRatio {
		if direction == core.DirectionLong && iv.RSI < 60 {
			adjusted *= 0.9
		} else if direction == core.DirectionShort && iv.RSI > 40 {
			adjusted *= 0.9
		}
	}

	if conflicts := t.countConflicts(direction, iv, votes); conflicts >= 2 {
		adjusted *= 0.7
		t.log.Infof("indicator conflict penalty: %d conflicts, adjusted=%.3f",
			conflicts, adjusted)
	}

	if adjusted > 1.0 {
		return 1.0
	}
	return adjusted
}

// countConflicts runs the confluence check: each indicator that disagrees
// with the proposed direction counts one conflict.
func (t *ThresholdManager) countConflicts(direction core.Direction, iv core.IndicatorValues, votes VoteBreakdown) int {
	conflicts := 0

	if !iv.EMAAligned() {
		conflicts++
	}

	histogram := iv.MACDHistogram()
	if direction == core.DirectionLong && histogram < 0 {
		conflicts++
	} else if direction == core.DirectionShort && histogram > 0 {
		conflicts++
	}

	// The dominant DI line must agree with the direction by a clear margin.
	diGap := iv.PlusDI - iv.MinusDI
	if direction == core.DirectionLong && diGap <= 10 {
		conflicts++
	} else if direction == core.DirectionShort && -diGap <= 10 {
		conflicts++
	}

	opposite := direction.Opposite()
	if votes.RSI == opposite {
		conflicts++
	}
	if votes.Bollinger == opposite {
		conflicts++
	}

	return conflicts
}
