package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
)

// swingCandles builds a series whose window spans the 90-110 range with
// the given last close.
func swingCandles(n int, lastClose float64) []core.Candle {
	out := make([]core.Candle, n)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = core.Candle{
			Time: start.Add(time.Duration(i) * time.Hour),
			Open: 100, Close: 100, High: 100.5, Low: 99.5,
		}
	}
	out[n/2].High = 110
	out[n/4].Low = 90
	out[n-1].Close = lastClose
	return out
}

func TestFibLevels_Long(t *testing.T) {
	f := NewFibCalculator()

	levels := f.Levels(swingCandles(120, 100), core.DirectionLong)
	require.NotNil(t, levels)
	require.Equal(t, 110.0, levels.SwingHigh)
	require.Equal(t, 90.0, levels.SwingLow)

	// Long retracements measure down from the swing high.
	require.InDelta(t, 110-20*0.236, levels.Levels["fib_0.236"], 1e-9)
	require.InDelta(t, 110-20*0.618, levels.Levels["fib_0.618"], 1e-9)
	require.InDelta(t, 110-20*0.786, levels.Levels["fib_0.786"], 1e-9)
}

func TestFibLevels_Short(t *testing.T) {
	f := NewFibCalculator()

	levels := f.Levels(swingCandles(120, 100), core.DirectionShort)
	require.NotNil(t, levels)
	require.InDelta(t, 90+20*0.618, levels.Levels["fib_0.618"], 1e-9)
}

func TestFibLevels_Guards(t *testing.T) {
	f := NewFibCalculator()

	require.Nil(t, f.Levels(swingCandles(50, 100), core.DirectionLong))
	require.Nil(t, f.Levels(swingCandles(120, 100), core.DirectionNeutral))
}

func TestSuggestEntry(t *testing.T) {
	f := NewFibCalculator()

	entry := f.SuggestEntry(swingCandles(120, 100), core.DirectionLong)
	require.NotNil(t, entry)
	require.InDelta(t, 110-20*0.618, entry.Entry, 1e-9)
	require.Equal(t, 90.0, entry.StopLoss)
	require.Equal(t, 100.0, entry.CurrentPrice)

	short := f.SuggestEntry(swingCandles(120, 100), core.DirectionShort)
	require.NotNil(t, short)
	require.Equal(t, 110.0, short.StopLoss)

	require.Nil(t, f.SuggestEntry(swingCandles(20, 100), core.DirectionLong))
}

func TestFibTargets(t *testing.T) {
	f := NewFibCalculator()

	long := f.Targets(100, 95, core.DirectionLong)
	require.Len(t, long, 3)
	require.InDelta(t, 105, long[0].Price, 1e-9)
	require.InDelta(t, 100+5*1.618, long[1].Price, 1e-9)
	require.InDelta(t, 100+5*2.618, long[2].Price, 1e-9)
	require.Equal(t, 1.0, long[0].RiskReward)

	short := f.Targets(100, 105, core.DirectionShort)
	require.InDelta(t, 95, short[0].Price, 1e-9)
	require.InDelta(t, 100-5*2.618, short[2].Price, 1e-9)
}
