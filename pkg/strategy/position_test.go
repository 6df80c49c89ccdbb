package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/analysis"
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// rangeCandles builds a flat series with one swing high and low, enough
// history for the fib lookback.
func rangeCandles(n int, low, high, last float64) []core.Candle {
	candles := make([]core.Candle, n)
	for i := range candles {
		price := (low + high) / 2
		candles[i] = core.Candle{
			Time:  time.Unix(int64(i)*3600, 0),
			Open:  price,
			Close: price,
			High:  price,
			Low:   price,
		}
	}
	candles[n/2].High = high
	candles[n/4].Low = low
	candles[n-1].Close = last
	return candles
}

func newPositionCalculator() *PositionCalculator {
	return NewPositionCalculator(logger.Nop(), analysis.NewFibCalculator(), 1.5)
}

func TestPositionCalculator_NeutralReturnsNil(t *testing.T) {
	calc := newPositionCalculator()

	require.Nil(t, calc.Calculate(rangeCandles(120, 90, 110, 100), core.DirectionNeutral, core.StrategyTrend, nil, 2))
	require.Nil(t, calc.Calculate(nil, core.DirectionLong, core.StrategyTrend, nil, 2))
}

func TestPositionCalculator_TrendLong(t *testing.T) {
	calc := newPositionCalculator()
	candles := rangeCandles(120, 90, 110, 98)

	pos := calc.Calculate(candles, core.DirectionLong, core.StrategyTrend, nil, 2)
	require.NotNil(t, pos)
	require.Equal(t, core.DirectionLong, pos.Direction)
	require.Equal(t, core.StrategyTrend, pos.Strategy)
	require.Len(t, pos.Targets, 3)

	// The 0.618 retracement of the 90-110 swing.
	require.InDelta(t, 97.64, pos.FibIdealEntry, 0.01)

	// Current price 98 is within 2% of the fib entry, so enter at market.
	require.Equal(t, core.EntryStatusOptimal, pos.EntryStatus)
	require.Equal(t, 98.0, pos.Entry)

	require.Less(t, pos.StopLoss, pos.Entry)
	require.Greater(t, pos.RiskPercent, 0.0)

	// Targets ladder up from entry.
	require.Greater(t, pos.Targets[0].Price, pos.Entry)
	require.Greater(t, pos.Targets[2].Price, pos.Targets[0].Price)
}

func TestPositionCalculator_ATRFallbackWithoutHistory(t *testing.T) {
	calc := newPositionCalculator()

	// Too few candles for the fib lookback, so the ATR ladder applies.
	candles := rangeCandles(20, 90, 110, 100)
	pos := calc.Calculate(candles, core.DirectionShort, core.StrategyTrend, nil, 2)

	require.NotNil(t, pos)
	require.Equal(t, EntryStatusCurrentPrice, pos.EntryStatus)
	require.InDelta(t, 103, pos.StopLoss, 1e-9)
	require.Len(t, pos.Targets, 3)
	require.InDelta(t, 96, pos.Targets[0].Price, 1e-9)
	require.InDelta(t, 1.0, pos.Targets[0].RiskReward, 1e-9)
}

func TestPositionCalculator_RangingUsesCustomTargets(t *testing.T) {
	calc := newPositionCalculator()
	candles := rangeCandles(120, 90, 110, 100)

	targets := &core.CustomTargets{
		TP1:      &core.CustomTarget{Price: 104, Label: "Middle Band"},
		TP2:      &core.CustomTarget{Price: 108, Label: "Upper Band"},
		StopLoss: &core.CustomTarget{Price: 98},
	}

	pos := calc.Calculate(candles, core.DirectionLong, core.StrategyRanging, targets, 2)
	require.NotNil(t, pos)
	require.Equal(t, core.StrategyRanging, pos.Strategy)
	require.Equal(t, EntryStatusMeanReversion, pos.EntryStatus)
	require.Equal(t, 98.0, pos.StopLoss)
	require.Len(t, pos.Targets, 2)

	// TP1 at 104 over a 2-point risk is 2R.
	require.InDelta(t, 2.0, pos.Targets[0].RiskReward, 1e-9)
	require.Equal(t, "Middle Band", pos.Targets[0].Label)
}

func TestPositionCalculator_RangingWithoutStopFallsBack(t *testing.T) {
	calc := newPositionCalculator()
	candles := rangeCandles(120, 90, 110, 100)

	targets := &core.CustomTargets{TP1: &core.CustomTarget{Price: 104}}
	pos := calc.Calculate(candles, core.DirectionLong, core.StrategyRanging, targets, 2)

	require.NotNil(t, pos)
	require.Equal(t, core.StrategyRanging, pos.Strategy)
	require.Equal(t, EntryStatusATRFallback, pos.EntryStatus)
}

func TestDetermineEntry(t *testing.T) {
	// Within 2% of the fib level: enter at market.
	entry, status := determineEntry(100, 101, core.DirectionLong)
	require.Equal(t, 100.0, entry)
	require.Equal(t, core.EntryStatusOptimal, status)

	// Price already ran past the retracement.
	entry, status = determineEntry(110, 100, core.DirectionLong)
	require.Equal(t, 110.0, entry)
	require.Equal(t, core.EntryStatusPriceMoved, status)

	// Fib entry far above the current price: wait for it.
	entry, status = determineEntry(90, 100, core.DirectionLong)
	require.Equal(t, 100.0, entry)
	require.Equal(t, core.EntryStatusWaitForPullback, status)

	// Fib entry close above: expect the move soon.
	entry, status = determineEntry(100, 103, core.DirectionLong)
	require.Equal(t, 103.0, entry)
	require.Equal(t, core.EntryStatusPullbackExpected, status)

	// For shorts the run-ahead check flips.
	entry, status = determineEntry(90, 100, core.DirectionShort)
	require.Equal(t, 90.0, entry)
	require.Equal(t, core.EntryStatusPriceMoved, status)
}

func TestRiskReward(t *testing.T) {
	require.InDelta(t, 2.0, riskReward(100, 98, 104, core.DirectionLong), 1e-9)
	require.InDelta(t, 2.0, riskReward(100, 102, 96, core.DirectionShort), 1e-9)
	require.Zero(t, riskReward(100, 100, 104, core.DirectionLong))
	require.Zero(t, riskReward(100, 98, 95, core.DirectionLong))
}

func TestRDistance(t *testing.T) {
	require.InDelta(t, 2.0, RDistance(100, 104, 2, core.DirectionLong), 1e-9)
	require.InDelta(t, -1.0, RDistance(100, 102, 2, core.DirectionShort), 1e-9)
	require.Zero(t, RDistance(100, 104, 0, core.DirectionLong))
}
