package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

func newThresholds() *ThresholdManager {
	return NewThresholdManager(logger.Nop())
}

func TestCalcVolatility(t *testing.T) {
	tm := newThresholds()

	v := tm.CalcVolatility(100, 0.5)
	require.Equal(t, VolatilityLow, v.Level)
	require.InDelta(t, 0.5, v.Ratio, 1e-9)

	require.Equal(t, VolatilityMedium, tm.CalcVolatility(100, 2).Level)
	require.Equal(t, VolatilityHigh, tm.CalcVolatility(100, 4).Level)
	require.Zero(t, tm.CalcVolatility(0, 4).Ratio)
}

func TestCalcTrendStrength(t *testing.T) {
	tm := newThresholds()

	require.Equal(t, TrendWeak, tm.CalcTrendStrength(15).Strength)
	require.Equal(t, TrendModerate, tm.CalcTrendStrength(30).Strength)
	require.Equal(t, TrendStrong, tm.CalcTrendStrength(45).Strength)
	require.InDelta(t, 0.9, tm.CalcTrendStrength(45).Confidence, 1e-9)
}

// cleanIndicators is a snapshot with no penalty triggers: aligned EMAs,
// positive MACD, a wide DI gap and a calm RSI.
func cleanIndicators() core.IndicatorValues {
	return core.IndicatorValues{
		Close: 110, EMA20: 108, EMA50: 105, EMA200: 100,
		MACD: 1, MACDSignal: 0.5,
		PlusDI: 30, MinusDI: 10,
		RSI: 55,
	}
}

func TestAdjustConfidence_TrendScaling(t *testing.T) {
	tm := newThresholds()
	iv := cleanIndicators()
	vol := Volatility{Level: VolatilityMedium}

	strong := tm.AdjustConfidence(0.5, core.DirectionLong,
		TrendStrength{Strength: TrendStrong, Value: 42}, vol, iv, VoteBreakdown{}, core.VolumeInfo{}, 50)
	require.InDelta(t, 0.6, strong, 1e-9)

	weak := tm.AdjustConfidence(0.5, core.DirectionLong,
		TrendStrength{Strength: TrendWeak, Value: 15}, vol, iv, VoteBreakdown{}, core.VolumeInfo{}, 50)
	require.InDelta(t, 0.4, weak, 1e-9)
}

func TestAdjustConfidence_CrashProtection(t *testing.T) {
	tm := newThresholds()
	iv := cleanIndicators()

	// ADX past the crash threshold with high volatility guts the score:
	// 0.8 * 1.2 (strong) * 0.1 (crash) * 0.9 (high vol).
	got := tm.AdjustConfidence(0.8, core.DirectionLong,
		TrendStrength{Strength: TrendStrong, Value: 50},
		Volatility{Level: VolatilityHigh}, iv, VoteBreakdown{}, core.VolumeInfo{}, 50)
	require.InDelta(t, 0.8*1.2*0.1*0.9, got, 1e-9)
}

func TestAdjustConfidence_RSIExtremityPenalty(t *testing.T) {
	tm := newThresholds()
	iv := cleanIndicators()
	iv.RSI = 85 // long into overbought

	got := tm.AdjustConfidence(0.6, core.DirectionLong,
		TrendStrength{Strength: TrendModerate, Value: 30},
		Volatility{Level: VolatilityMedium}, iv, VoteBreakdown{}, core.VolumeInfo{}, 50)

	penalty := (85.0 - 70) / 30 * 0.3
	require.InDelta(t, 0.6*(1-penalty), got, 1e-9)
}

func TestAdjustConfidence_CapsAtOne(t *testing.T) {
	tm := newThresholds()
	iv := cleanIndicators()

	got := tm.AdjustConfidence(0.95, core.DirectionLong,
		TrendStrength{Strength: TrendStrong, Value: 42},
		Volatility{Level: VolatilityLow}, iv, VoteBreakdown{}, core.VolumeInfo{}, 50)
	require.Equal(t, 1.0, got)
}

func TestCountConflicts(t *testing.T) {
	tm := newThresholds()

	require.Zero(t, tm.countConflicts(core.DirectionLong, cleanIndicators(), VoteBreakdown{}))

	// Negative histogram, thin DI gap and an opposing RSI vote.
	iv := cleanIndicators()
	iv.MACD, iv.MACDSignal = 0, 0.5
	iv.PlusDI, iv.MinusDI = 20, 15
	votes := VoteBreakdown{RSI: core.DirectionShort}

	require.Equal(t, 3, tm.countConflicts(core.DirectionLong, iv, votes))
}
