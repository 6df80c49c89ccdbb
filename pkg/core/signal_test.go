package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSignalID(t *testing.T) {
	at := time.Date(2025, 11, 7, 7, 45, 46, 0, time.UTC)

	require.Equal(t, "20251107-074546-FILUSDT", NewSignalID("FILUSDT", at))
	require.Equal(t, "20251107-074546-BTCUSDT", NewSignalID("btc/usdt", at))
}

func TestSignal_PnLPercent(t *testing.T) {
	long := &Signal{Direction: DirectionLong, Price: 100}
	require.InDelta(t, 5.0, long.PnLPercent(105), 1e-9)
	require.InDelta(t, -5.0, long.PnLPercent(95), 1e-9)

	short := &Signal{Direction: DirectionShort, Price: 100}
	require.InDelta(t, 5.0, short.PnLPercent(95), 1e-9)
	require.InDelta(t, -5.0, short.PnLPercent(105), 1e-9)

	neutral := &Signal{Direction: DirectionNeutral, Price: 100}
	require.Zero(t, neutral.PnLPercent(120))

	zeroPrice := &Signal{Direction: DirectionLong}
	require.Zero(t, zeroPrice.PnLPercent(50))
}

func TestSignal_IsFinal(t *testing.T) {
	require.False(t, (&Signal{TP1Hit: true}).IsFinal())
	require.True(t, (&Signal{TP2Hit: true}).IsFinal())
	require.True(t, (&Signal{SLHit: true}).IsFinal())
	require.True(t, (&Signal{FinalOutcome: OutcomeExpiredNoHit}).IsFinal())
}

func TestDirection_Helpers(t *testing.T) {
	require.Equal(t, "LONG (Buy)", DirectionLong.Label())
	require.Equal(t, "SHORT (Sell)", DirectionShort.Label())
	require.Equal(t, "Bullish", DirectionLong.Forecast())
	require.Equal(t, "Bearish", DirectionShort.Forecast())
	require.Equal(t, "Neutral", DirectionNeutral.Forecast())
	require.Equal(t, DirectionShort, DirectionLong.Opposite())
	require.Equal(t, DirectionLong, DirectionShort.Opposite())
	require.Equal(t, DirectionNeutral, DirectionNeutral.Opposite())
}

func TestStrategyType_Name(t *testing.T) {
	require.Equal(t, "Trend Following", StrategyTrend.Name())
	require.Equal(t, "Mean Reversion", StrategyRanging.Name())
}

func TestIndicatorValues_EMAAligned(t *testing.T) {
	up := IndicatorValues{Close: 110, EMA20: 105, EMA50: 100, EMA200: 90}
	require.True(t, up.EMAAligned())

	down := IndicatorValues{Close: 80, EMA20: 85, EMA50: 90, EMA200: 100}
	require.True(t, down.EMAAligned())

	mixed := IndicatorValues{Close: 110, EMA20: 95, EMA50: 100, EMA200: 90}
	require.False(t, mixed.EMAAligned())
}
