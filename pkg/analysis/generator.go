package analysis

import (
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/indicator"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// A ranging timeframe with at least this confidence overrides the
// weighted trend vote outright.
const rangingDominanceConfidence = 0.7

// ADX above this level marks a trending market; below it the symbol is
// treated as ranging.
const trendingADX = 25.0

// contextPreference is the timeframe order used when picking which
// breakdown and market context represent the combined signal.
var contextPreference = []string{"4h", "1d", "1h"}

// ScoreBreakdown explains how a single timeframe arrived at its vote. It
// is stored alongside the signal for later auditing.
type ScoreBreakdown struct {
	BaseConfidence    float64        `json:"base_confidence"`
	RSIValue          float64        `json:"rsi_value"`
	RSISignal         core.Direction `json:"rsi_signal"`
	MACDHistogram     float64        `json:"macd_histogram"`
	MACDSignal        core.Direction `json:"macd_signal"`
	EMAAligned        bool           `json:"ema_alignment"`
	EMASignal         core.Direction `json:"ema_signal"`
	BollingerPosition string         `json:"bollinger_position"`
	BollingerSignal   core.Direction `json:"bollinger_signal"`
	ADXValue          float64        `json:"adx_value"`
	ADXSignal         core.Direction `json:"adx_signal"`
	VolumeRelative    float64        `json:"volume_relative"`
	VolumeSignal      core.Direction `json:"volume_signal"`

	// Set only for mean-reversion signals.
	RSIBias            core.Direction `json:"rsi_bias,omitempty"`
	BollingerBias      core.Direction `json:"bollinger_bias,omitempty"`
	NormalizedPosition float64        `json:"normalized_price_position,omitempty"`
}

// TimeframeAnalysis is the full per-timeframe result feeding the combined
// signal.
type TimeframeAnalysis struct {
	Timeframe     string
	Direction     core.Direction
	Confidence    float64
	RawConfidence float64
	Strategy      core.StrategyType
	Regime        core.Regime
	Indicators    core.IndicatorValues
	Volume        core.VolumeInfo
	Volatility    Volatility
	Trend         TrendStrength
	Votes         VoteBreakdown
	Breakdown     ScoreBreakdown
	Context       MarketContext
	CustomTargets *core.CustomTargets
	DataLength    int
}

// Result is the combined multi-timeframe signal for one symbol.
type Result struct {
	Direction      core.Direction
	Confidence     float64
	Strategy       core.StrategyType
	CustomTargets  *core.CustomTargets
	Breakdown      *ScoreBreakdown
	Context        *MarketContext
	WeightedScores map[core.Direction]float64
	Timeframes     map[string]*TimeframeAnalysis
}

// Generator combines indicator votes across timeframes into one signal.
type Generator struct {
	log        logger.Logger
	thresholds *ThresholdManager
	ranging    *RangingAnalyzer
	weights    map[string]float64
}

func NewGenerator(log logger.Logger, weights map[string]float64,
	thresholds *ThresholdManager, ranging *RangingAnalyzer) *Generator {
	return &Generator{
		log:        log,
		thresholds: thresholds,
		ranging:    ranging,
		weights:    weights,
	}
}

// Generate analyzes each timeframe series and combines the results. It
// returns core.ErrInsufficientData when no timeframe produced a usable
// analysis.
func (g *Generator) Generate(candlesByTF map[string][]core.Candle) (*Result, error) {
	perTF := make(map[string]*TimeframeAnalysis, len(candlesByTF))
	for tf, candles := range candlesByTF {
		analysis := g.analyzeTimeframe(tf, candles)
		if analysis == nil {
			continue
		}
		perTF[tf] = analysis
		g.log.Debugf("tf=%s direction=%s confidence=%.3f regime=%s strategy=%s",
			tf, analysis.Direction, analysis.Confidence, analysis.Regime, analysis.Strategy)
	}

	if len(perTF) == 0 {
		return nil, core.ErrInsufficientData
	}

	return g.combine(perTF), nil
}

func (g *Generator) analyzeTimeframe(tf string, candles []core.Candle) *TimeframeAnalysis {
	if len(candles) < indicator.MinCandles {
		g.log.Debugf("tf=%s insufficient data: %d candles", tf, len(candles))
		return nil
	}

	iv, err := indicator.Snapshot(candles)
	if err != nil {
		g.log.Debugf("tf=%s snapshot failed: %v", tf, err)
		return nil
	}

	volume := indicator.VolumeSnapshot(candles)
	votes := collectVotes(iv, volume)
	regime := detectRegime(iv, votes)

	volatility := g.thresholds.CalcVolatility(iv.Close, iv.ATR)
	trend := g.thresholds.CalcTrendStrength(iv.ADX)
	context := buildContext(candles, iv, votes, regime)

	if regime == core.RegimeRanging {
		rs := g.ranging.Analyze(iv)
		if rs == nil {
			g.log.Debugf("tf=%s ranging analysis unusable, skipping timeframe", tf)
			return nil
		}

		breakdown := buildBreakdown(iv, votes, volume, rs.Confidence)
		breakdown.RSIBias = rs.RSIBias
		breakdown.BollingerBias = rs.BollingerBias
		breakdown.NormalizedPosition = rs.NormalizedPosition

		return &TimeframeAnalysis{
			Timeframe:     tf,
			Direction:     rs.Direction,
			Confidence:    rs.Confidence,
			RawConfidence: rs.Confidence,
			Strategy:      core.StrategyRanging,
			Regime:        regime,
			Indicators:    iv,
			Volume:        volume,
			Volatility:    volatility,
			Trend:         trend,
			Votes:         votes,
			Breakdown:     breakdown,
			Context:       context,
			CustomTargets: rs.Targets,
			DataLength:    len(candles),
		}
	}

	direction, rawConfidence := tallyVotes(votes)
	adjusted := g.thresholds.AdjustConfidence(rawConfidence, direction, trend,
		volatility, iv, votes, volume, context.VolatilityPercentile)

	g.log.Debugf("tf=%s trend vote: dir=%s raw=%.3f adjusted=%.3f vol=%s trend=%s",
		tf, direction, rawConfidence, adjusted, volatility.Level, trend.Strength)

	return &TimeframeAnalysis{
		Timeframe:     tf,
		Direction:     direction,
		Confidence:    adjusted,
		RawConfidence: rawConfidence,
		Strategy:      core.StrategyTrend,
		Regime:        regime,
		Indicators:    iv,
		Volume:        volume,
		Volatility:    volatility,
		Trend:         trend,
		Votes:         votes,
		Breakdown:     buildBreakdown(iv, votes, volume, rawConfidence),
		Context:       context,
		DataLength:    len(candles),
	}
}

// tallyVotes picks the direction with the most votes; a direction wins
// only by beating both alternatives outright.
func tallyVotes(votes VoteBreakdown) (core.Direction, float64) {
	longCount := votes.Count(core.DirectionLong)
	shortCount := votes.Count(core.DirectionShort)
	neutralCount := votes.Count(core.DirectionNeutral)
	total := float64(longCount + shortCount + neutralCount)

	switch {
	case longCount > shortCount && longCount > neutralCount:
		return core.DirectionLong, float64(longCount) / total
	case shortCount > longCount && shortCount > neutralCount:
		return core.DirectionShort, float64(shortCount) / total
	default:
		best := longCount
		if shortCount > best {
			best = shortCount
		}
		if neutralCount > best {
			best = neutralCount
		}
		return core.DirectionNeutral, float64(best) / total
	}
}

// detectRegime classifies the market: aligned EMAs plus a trending ADX
// mean a directional market, anything else is ranging.
func detectRegime(iv core.IndicatorValues, votes VoteBreakdown) core.Regime {
	if iv.EMAAligned() && iv.ADX > trendingADX {
		switch votes.EMA {
		case core.DirectionLong:
			return core.RegimeTrendingUp
		case core.DirectionShort:
			return core.RegimeTrendingDown
		}
	}
	return core.RegimeRanging
}

func (g *Generator) combine(perTF map[string]*TimeframeAnalysis) *Result {
	// A confident mean-reversion read on any timeframe takes precedence
	// over the weighted trend vote.
	var dominant *TimeframeAnalysis
	for _, analysis := range perTF {
		if analysis.Strategy != core.StrategyRanging ||
			analysis.Confidence < rangingDominanceConfidence {
			continue
		}
		if dominant == nil || analysis.Confidence > dominant.Confidence {
			dominant = analysis
		}
	}
	if dominant != nil {
		return &Result{
			Direction:      dominant.Direction,
			Confidence:     dominant.Confidence,
			Strategy:       core.StrategyRanging,
			CustomTargets:  dominant.CustomTargets,
			Breakdown:      &dominant.Breakdown,
			Context:        &dominant.Context,
			WeightedScores: map[core.Direction]float64{},
			Timeframes:     perTF,
		}
	}

	weighted := map[core.Direction]float64{
		core.DirectionLong:    0,
		core.DirectionShort:   0,
		core.DirectionNeutral: 0,
	}
	for tf, analysis := range perTF {
		weighted[analysis.Direction] += g.weights[tf] * analysis.Confidence
	}

	finalDirection := core.DirectionNeutral
	for _, d := range []core.Direction{core.DirectionLong, core.DirectionShort} {
		if weighted[d] > weighted[finalDirection] {
			finalDirection = d
		}
	}

	result := &Result{
		Direction:      finalDirection,
		Confidence:     weighted[finalDirection],
		Strategy:       core.StrategyTrend,
		WeightedScores: weighted,
		Timeframes:     perTF,
	}

	// Represent the combined signal with the highest-priority timeframe
	// that agrees with the final direction, falling back to any.
	selected := selectRepresentative(perTF, finalDirection)
	if selected != nil {
		result.Breakdown = &selected.Breakdown
		result.Context = &selected.Context
		result.Strategy = selected.Strategy
		result.CustomTargets = selected.CustomTargets
	}

	return result
}

func selectRepresentative(perTF map[string]*TimeframeAnalysis, direction core.Direction) *TimeframeAnalysis {
	for _, tf := range contextPreference {
		if analysis, ok := perTF[tf]; ok && analysis.Direction == direction {
			return analysis
		}
	}
	for _, tf := range contextPreference {
		if analysis, ok := perTF[tf]; ok {
			return analysis
		}
	}
	// Timeframes outside the preferred set still need a representative.
	for _, analysis := range perTF {
		return analysis
	}
	return nil
}

func buildBreakdown(iv core.IndicatorValues, votes VoteBreakdown, volume core.VolumeInfo, baseConfidence float64) ScoreBreakdown {
	position := "middle"
	switch votes.Bollinger {
	case core.DirectionLong:
		position = "lower"
	case core.DirectionShort:
		position = "upper"
	}

	return ScoreBreakdown{
		BaseConfidence:    baseConfidence,
		RSIValue:          iv.RSI,
		RSISignal:         votes.RSI,
		MACDHistogram:     iv.MACDHistogram(),
		MACDSignal:        votes.MACD,
		EMAAligned:        iv.EMAAligned(),
		EMASignal:         votes.EMA,
		BollingerPosition: position,
		BollingerSignal:   votes.Bollinger,
		ADXValue:          iv.ADX,
		ADXSignal:         votes.ADX,
		VolumeRelative:    volume.Relative,
		VolumeSignal:      votes.Volume,
	}
}
