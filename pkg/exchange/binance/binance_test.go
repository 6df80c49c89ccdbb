package binance

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
)

func validCandles(n int) []core.Candle {
	out := make([]core.Candle, n)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = core.Candle{
			Time: start.Add(time.Duration(i) * time.Hour),
			Open: 100, Close: 100, High: 101, Low: 99, Volume: 10,
		}
	}
	return out
}

func TestValidateCandles(t *testing.T) {
	require.NoError(t, validateCandles(validCandles(50), 30))

	require.ErrorIs(t, validateCandles(nil, 30), ErrNoCandles)
	require.ErrorIs(t, validateCandles(validCandles(10), 30), core.ErrBadCandleData)

	zeroed := validCandles(50)
	zeroed[25].Close = 0
	require.ErrorIs(t, validateCandles(zeroed, 30), core.ErrBadCandleData)

	stuck := validCandles(50)
	stuck[20].Time = stuck[19].Time
	require.ErrorIs(t, validateCandles(stuck, 30), core.ErrBadCandleData)
}

func TestToCandle(t *testing.T) {
	kline := &futures.Kline{
		OpenTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		Open:     "100.5", Close: "101.25", High: "102", Low: "99.75", Volume: "1234.5",
	}

	candle, err := toCandle("BTCUSDT", "1h", kline)
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", candle.Symbol)
	require.Equal(t, "1h", candle.Timeframe)
	require.Equal(t, 100.5, candle.Open)
	require.Equal(t, 101.25, candle.Close)
	require.Equal(t, 1234.5, candle.Volume)
	require.True(t, candle.Complete)

	kline.High = "not-a-number"
	_, err = toCandle("BTCUSDT", "1h", kline)
	require.Error(t, err)
}
