package scanner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/analysis"
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

func rankerResult(direction core.Direction, confidence, rsi, relVolume float64) *analysis.Result {
	return &analysis.Result{
		Direction:  direction,
		Confidence: confidence,
		Timeframes: map[string]*analysis.TimeframeAnalysis{
			"4h": {
				Timeframe:  "4h",
				Direction:  direction,
				Confidence: confidence,
				Indicators: core.IndicatorValues{RSI: rsi},
				Volume:     core.VolumeInfo{Relative: relVolume},
			},
		},
	}
}

func TestRanker_ScoreBelowFloor(t *testing.T) {
	ranker := NewRanker(logger.Nop(), 0.5, "4h")

	_, ok := ranker.Score("BTCUSDT", rankerResult(core.DirectionLong, 0.4, 50, 1.0))
	require.False(t, ok)
}

func TestRanker_ScoreBonuses(t *testing.T) {
	ranker := NewRanker(logger.Nop(), 0.5, "4h")

	// Oversold LONG with strong volume earns both bonuses.
	score, ok := ranker.Score("BTCUSDT", rankerResult(core.DirectionLong, 0.6, 22, 2.1))
	require.True(t, ok)
	require.InDelta(t, 0.66, score.Base, 1e-9)
	require.InDelta(t, 0.7, score.RSIBonus, 1e-9)
	require.InDelta(t, 0.6, score.VolumeBonus, 1e-9)
	require.InDelta(t, 0.66+0.7*0.3+0.6*0.2, score.Total, 1e-9)

	// The same RSI contradicts a SHORT and earns nothing.
	score, ok = ranker.Score("BTCUSDT", rankerResult(core.DirectionShort, 0.6, 22, 1.0))
	require.True(t, ok)
	require.Zero(t, score.RSIBonus)
}

func TestRanker_NeutralBaseDiscount(t *testing.T) {
	ranker := NewRanker(logger.Nop(), 0.5, "4h")

	score, ok := ranker.Score("BTCUSDT", rankerResult(core.DirectionNeutral, 0.6, 50, 1.0))
	require.True(t, ok)
	require.InDelta(t, 0.48, score.Base, 1e-9)
}

func TestRanker_RankOrdersAndLimits(t *testing.T) {
	ranker := NewRanker(logger.Nop(), 0.5, "4h")

	candidates := []Candidate{
		{Symbol: "WEAK", Result: rankerResult(core.DirectionLong, 0.55, 50, 1.0)},
		{Symbol: "STRONG", Result: rankerResult(core.DirectionLong, 0.8, 20, 3.0)},
		{Symbol: "FILTERED", Result: rankerResult(core.DirectionLong, 0.3, 50, 1.0)},
		{Symbol: "MID", Result: rankerResult(core.DirectionLong, 0.7, 50, 1.0)},
	}

	top := ranker.Rank(candidates, 2)
	require.Len(t, top, 2)
	require.Equal(t, "STRONG", top[0].Symbol)
	require.Equal(t, "MID", top[1].Symbol)
}

func TestRanker_PrimaryTimeframeFeedsBonuses(t *testing.T) {
	ranker := NewRanker(logger.Nop(), 0.5, "1h")

	// Oversold on 1h, neutral RSI on 4h: the primary timeframe decides.
	result := &analysis.Result{
		Direction:  core.DirectionLong,
		Confidence: 0.6,
		Timeframes: map[string]*analysis.TimeframeAnalysis{
			"1h": {
				Timeframe:  "1h",
				Indicators: core.IndicatorValues{RSI: 22},
				Volume:     core.VolumeInfo{Relative: 1.0},
			},
			"4h": {
				Timeframe:  "4h",
				Indicators: core.IndicatorValues{RSI: 50},
				Volume:     core.VolumeInfo{Relative: 1.0},
			},
		},
	}

	score, ok := ranker.Score("BTCUSDT", result)
	require.True(t, ok)
	require.InDelta(t, 0.7, score.RSIBonus, 1e-9)
}
