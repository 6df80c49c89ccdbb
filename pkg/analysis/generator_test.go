package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

func TestTallyVotes(t *testing.T) {
	dir, conf := tallyVotes(VoteBreakdown{
		RSI: core.DirectionLong, MACD: core.DirectionLong, EMA: core.DirectionLong,
		Bollinger: core.DirectionShort, ADX: core.DirectionNeutral, Volume: core.DirectionLong,
	})
	require.Equal(t, core.DirectionLong, dir)
	require.InDelta(t, 4.0/6, conf, 1e-9)

	// A tie never produces a directional signal.
	dir, conf = tallyVotes(VoteBreakdown{
		RSI: core.DirectionLong, MACD: core.DirectionLong, EMA: core.DirectionLong,
		Bollinger: core.DirectionShort, ADX: core.DirectionShort, Volume: core.DirectionShort,
	})
	require.Equal(t, core.DirectionNeutral, dir)
	require.InDelta(t, 0.5, conf, 1e-9)
}

func TestDetectRegime(t *testing.T) {
	aligned := core.IndicatorValues{
		Close: 110, EMA20: 108, EMA50: 105, EMA200: 100, ADX: 30,
	}
	require.Equal(t, core.RegimeTrendingUp,
		detectRegime(aligned, VoteBreakdown{EMA: core.DirectionLong}))
	require.Equal(t, core.RegimeTrendingDown,
		detectRegime(core.IndicatorValues{
			Close: 90, EMA20: 92, EMA50: 95, EMA200: 100, ADX: 30,
		}, VoteBreakdown{EMA: core.DirectionShort}))

	// Weak ADX means ranging even with a clean EMA stack.
	weak := aligned
	weak.ADX = 18
	require.Equal(t, core.RegimeRanging,
		detectRegime(weak, VoteBreakdown{EMA: core.DirectionLong}))
}

func TestSelectRepresentative(t *testing.T) {
	perTF := map[string]*TimeframeAnalysis{
		"1h": {Timeframe: "1h", Direction: core.DirectionLong},
		"4h": {Timeframe: "4h", Direction: core.DirectionShort},
		"1d": {Timeframe: "1d", Direction: core.DirectionLong},
	}

	// 4h leads the preference order but disagrees with LONG; 1d agrees.
	require.Equal(t, "1d", selectRepresentative(perTF, core.DirectionLong).Timeframe)
	require.Equal(t, "4h", selectRepresentative(perTF, core.DirectionShort).Timeframe)
	// No agreement at all: highest-priority timeframe represents.
	require.Equal(t, "4h", selectRepresentative(perTF, core.DirectionNeutral).Timeframe)

	require.Nil(t, selectRepresentative(nil, core.DirectionLong))
}

func TestCombine_RangingDominance(t *testing.T) {
	g := NewGenerator(logger.Nop(), map[string]float64{"1h": 0.4, "4h": 0.35, "1d": 0.25},
		NewThresholdManager(logger.Nop()), newRangingAnalyzer())

	perTF := map[string]*TimeframeAnalysis{
		"1h": {
			Timeframe: "1h", Direction: core.DirectionShort, Confidence: 0.85,
			Strategy: core.StrategyRanging,
			CustomTargets: &core.CustomTargets{
				TP1: &core.CustomTarget{Price: 100},
			},
		},
		"4h": {Timeframe: "4h", Direction: core.DirectionLong, Confidence: 0.9, Strategy: core.StrategyTrend},
	}

	result := g.combine(perTF)
	require.Equal(t, core.StrategyRanging, result.Strategy)
	require.Equal(t, core.DirectionShort, result.Direction)
	require.InDelta(t, 0.85, result.Confidence, 1e-9)
	require.NotNil(t, result.CustomTargets)
}

func TestCombine_WeightedTrendVote(t *testing.T) {
	g := NewGenerator(logger.Nop(), map[string]float64{"1h": 0.4, "4h": 0.35, "1d": 0.25},
		NewThresholdManager(logger.Nop()), newRangingAnalyzer())

	perTF := map[string]*TimeframeAnalysis{
		"1h": {Timeframe: "1h", Direction: core.DirectionLong, Confidence: 0.8, Strategy: core.StrategyTrend},
		"4h": {Timeframe: "4h", Direction: core.DirectionLong, Confidence: 0.7, Strategy: core.StrategyTrend},
		"1d": {Timeframe: "1d", Direction: core.DirectionShort, Confidence: 0.9, Strategy: core.StrategyTrend},
	}

	result := g.combine(perTF)
	require.Equal(t, core.DirectionLong, result.Direction)
	// 0.4*0.8 + 0.35*0.7 = 0.565 beats 0.25*0.9.
	require.InDelta(t, 0.565, result.Confidence, 1e-9)
	require.InDelta(t, 0.225, result.WeightedScores[core.DirectionShort], 1e-9)
	// The representative is the best-priority agreeing timeframe.
	require.Equal(t, core.StrategyTrend, result.Strategy)
}
