package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
)

// flatCandles builds a constant-price series: close 100, range 99-101.
func flatCandles(n int, volume float64) []core.Candle {
	out := make([]core.Candle, n)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = core.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Time:      start.Add(time.Duration(i) * time.Hour),
			Open:      100,
			Close:     100,
			High:      101,
			Low:       99,
			Volume:    volume,
			Complete:  true,
		}
	}
	return out
}

func TestSnapshot_RequiresMinCandles(t *testing.T) {
	_, err := Snapshot(flatCandles(MinCandles-1, 10))
	require.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestSnapshot_FlatSeries(t *testing.T) {
	iv, err := Snapshot(flatCandles(250, 10))
	require.NoError(t, err)

	// A constant close pins every moving average and band to the price.
	require.InDelta(t, 100, iv.EMA20, 1e-9)
	require.InDelta(t, 100, iv.EMA50, 1e-9)
	require.InDelta(t, 100, iv.EMA200, 1e-9)
	require.InDelta(t, 100, iv.BBUpper, 1e-9)
	require.InDelta(t, 100, iv.BBMiddle, 1e-9)
	require.InDelta(t, 100, iv.BBLower, 1e-9)

	// True range is the constant 2-point bar range.
	require.InDelta(t, 2, iv.ATR, 1e-9)

	require.InDelta(t, 0, iv.MACD, 1e-9)
	require.InDelta(t, 0, iv.MACDSignal, 1e-9)
	require.InDelta(t, 0, iv.MACDHistogram(), 1e-9)

	require.Equal(t, 100.0, iv.Close)
	require.Equal(t, 100.0, iv.PrevClose)
}

func TestSnapshot_ShortSeriesAdaptsPeriods(t *testing.T) {
	// 40 candles is far below the 200-bar EMA default; the periods shrink
	// instead of producing empty indicator values.
	iv, err := Snapshot(flatCandles(40, 10))
	require.NoError(t, err)
	require.InDelta(t, 100, iv.EMA200, 1e-9)
	require.InDelta(t, 100, iv.EMA50, 1e-9)
}

func TestRSI_MonotonicRally(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := RSI(closes, RSIPeriod)
	require.InDelta(t, 100, rsi[len(rsi)-1], 1e-6)
}

func TestVolumeSnapshot(t *testing.T) {
	require.Zero(t, VolumeSnapshot(nil))

	candles := flatCandles(26, 10)
	candles[len(candles)-1].Volume = 30

	info := VolumeSnapshot(candles)
	require.Equal(t, 30.0, info.Current)
	require.InDelta(t, 10, info.Average, 1e-9)
	require.InDelta(t, 3, info.Relative, 1e-9)
}

func TestVolumeSnapshot_ZeroAverage(t *testing.T) {
	candles := flatCandles(26, 0)
	candles[len(candles)-1].Volume = 5

	info := VolumeSnapshot(candles)
	require.Equal(t, 5.0, info.Current)
	require.Zero(t, info.Relative)
}

func TestMACDCross(t *testing.T) {
	require.Zero(t, MACDCross(flatCandles(MinCandles-1, 10)))
	// A constant series has MACD pinned on its signal line: no cross.
	require.Zero(t, MACDCross(flatCandles(100, 10)))
}
