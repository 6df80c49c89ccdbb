package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
)

func TestRSIVote(t *testing.T) {
	require.Equal(t, core.DirectionLong, rsiVote(25))
	require.Equal(t, core.DirectionShort, rsiVote(75))
	require.Equal(t, core.DirectionLong, rsiVote(60))
	require.Equal(t, core.DirectionShort, rsiVote(40))
	require.Equal(t, core.DirectionNeutral, rsiVote(50))
}

func TestMACDVote(t *testing.T) {
	require.Equal(t, core.DirectionLong, macdVote(0.5))
	require.Equal(t, core.DirectionShort, macdVote(-0.5))
	require.Equal(t, core.DirectionNeutral, macdVote(0))
}

func TestEMAVote(t *testing.T) {
	// Bull stack: price above the long EMA, fast above medium.
	require.Equal(t, core.DirectionLong, emaVote(core.IndicatorValues{
		Close: 110, EMA20: 108, EMA50: 105, EMA200: 100,
	}))
	// Above the long EMA but the fast average rolled under the medium and
	// price fell below it: no conviction.
	require.Equal(t, core.DirectionNeutral, emaVote(core.IndicatorValues{
		Close: 102, EMA20: 104, EMA50: 106, EMA200: 100,
	}))
	// Bear stack.
	require.Equal(t, core.DirectionShort, emaVote(core.IndicatorValues{
		Close: 90, EMA20: 92, EMA50: 95, EMA200: 100,
	}))
	require.Equal(t, core.DirectionNeutral, emaVote(core.IndicatorValues{
		Close: 100, EMA200: 100,
	}))
}

func TestBollingerVote(t *testing.T) {
	iv := core.IndicatorValues{BBLower: 90, BBMiddle: 100, BBUpper: 110}

	iv.Close = 92 // lower 30% of the band
	require.Equal(t, core.DirectionLong, bollingerVote(iv))

	iv.Close = 108
	require.Equal(t, core.DirectionShort, bollingerVote(iv))

	iv.Close = 101 // middle territory, above the midline
	require.Equal(t, core.DirectionLong, bollingerVote(iv))

	iv.Close = 99
	require.Equal(t, core.DirectionShort, bollingerVote(iv))

	require.Equal(t, core.DirectionNeutral, bollingerVote(core.IndicatorValues{}))
}

func TestADXVote(t *testing.T) {
	// Dominant +DI with price above the long EMA.
	require.Equal(t, core.DirectionLong, adxVote(core.IndicatorValues{
		PlusDI: 30, MinusDI: 10, Close: 110, EMA200: 100,
	}))
	// Dominant -DI fighting a price above the long EMA is dropped.
	require.Equal(t, core.DirectionNeutral, adxVote(core.IndicatorValues{
		PlusDI: 10, MinusDI: 30, Close: 110, EMA200: 100,
	}))
	require.Equal(t, core.DirectionShort, adxVote(core.IndicatorValues{
		PlusDI: 10, MinusDI: 30, Close: 90, EMA200: 100,
	}))
	require.Equal(t, core.DirectionNeutral, adxVote(core.IndicatorValues{
		PlusDI: 20, MinusDI: 20,
	}))
}

func TestVolumeVote(t *testing.T) {
	spike := core.VolumeInfo{Relative: 2.0}
	normal := core.VolumeInfo{Relative: 1.0}

	// A spike validates even a tiny move.
	require.Equal(t, core.DirectionLong, volumeVote(spike, core.IndicatorValues{Close: 100.05, PrevClose: 100}))
	require.Equal(t, core.DirectionShort, volumeVote(spike, core.IndicatorValues{Close: 99.95, PrevClose: 100}))

	// Normal volume needs the move to clear 0.2%.
	require.Equal(t, core.DirectionNeutral, volumeVote(normal, core.IndicatorValues{Close: 100.05, PrevClose: 100}))
	require.Equal(t, core.DirectionLong, volumeVote(normal, core.IndicatorValues{Close: 100.5, PrevClose: 100}))

	require.Equal(t, core.DirectionNeutral, volumeVote(spike, core.IndicatorValues{Close: 100}))
}

func TestVoteBreakdownCount(t *testing.T) {
	votes := VoteBreakdown{
		RSI:       core.DirectionLong,
		MACD:      core.DirectionLong,
		EMA:       core.DirectionShort,
		Bollinger: core.DirectionNeutral,
		ADX:       core.DirectionLong,
		Volume:    core.DirectionNeutral,
	}
	require.Equal(t, 3, votes.Count(core.DirectionLong))
	require.Equal(t, 1, votes.Count(core.DirectionShort))
	require.Equal(t, 2, votes.Count(core.DirectionNeutral))
}
