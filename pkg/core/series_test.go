package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeries_Basics(t *testing.T) {
	s := Series[float64]{1, 2, 3, 4, 5}

	require.Equal(t, 5, s.Length())
	require.Equal(t, 5.0, s.Last(0))
	require.Equal(t, 4.0, s.Last(1))
	require.Equal(t, Series[float64]{4, 5}, s.LastValues(2))
	require.Equal(t, s, s.LastValues(10))
	require.Equal(t, 5.0, s.Highest(3))
	require.Equal(t, 3.0, s.Lowest(3))
}

func TestSeries_Crossover(t *testing.T) {
	fast := Series[float64]{1, 3}
	slow := Series[float64]{2, 2}

	require.True(t, fast.Crossover(slow))
	require.False(t, slow.Crossover(fast))
	require.True(t, slow.Crossunder(fast))
}

func TestMean(t *testing.T) {
	s := Series[float64]{2, 4, 6}
	require.InDelta(t, 4.0, Mean(s, 3), 1e-9)
	require.InDelta(t, 5.0, Mean(s, 2), 1e-9)
	require.Zero(t, Mean(Series[float64]{}, 3))
}

func TestCandleExtractors(t *testing.T) {
	candles := []Candle{
		{Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 10},
		{Open: 2, High: 4, Low: 1.5, Close: 3, Volume: 20},
	}

	require.Equal(t, Series[float64]{1, 2}, Opens(candles))
	require.Equal(t, Series[float64]{2, 3}, Closes(candles))
	require.Equal(t, Series[float64]{3, 4}, Highs(candles))
	require.Equal(t, Series[float64]{0.5, 1.5}, Lows(candles))
	require.Equal(t, Series[float64]{10, 20}, Volumes(candles))
}

func TestNumDecPlaces(t *testing.T) {
	require.Equal(t, int64(2), NumDecPlaces(1.25))
	require.Equal(t, int64(0), NumDecPlaces(4))
}
