package analysis

import (
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// RangingSignal is the mean-reversion alternative produced when a market
// trades sideways. It carries its own targets built from the Bollinger
// band instead of the ATR ladder.
type RangingSignal struct {
	Direction          core.Direction
	Confidence         float64
	BollingerBias      core.Direction
	RSIBias            core.Direction
	RSIValue           float64
	NormalizedPosition float64
	Targets            *core.CustomTargets
}

// RangingAnalyzer generates mean-reversion signals from Bollinger band
// proximity combined with RSI extremes.
type RangingAnalyzer struct {
	log logger.Logger

	// Stop distance floor as a ratio of price, protecting the tight
	// mean-reversion stop from ordinary market noise.
	minStopRatio float64
}

// NewRangingAnalyzer builds the analyzer. minStopPercent is the minimum
// stop distance in percent of price (floored at 0.1%).
func NewRangingAnalyzer(log logger.Logger, minStopPercent float64) *RangingAnalyzer {
	ratio := minStopPercent / 100
	if ratio < 0.001 {
		ratio = 0.001
	}
	return &RangingAnalyzer{log: log, minStopRatio: ratio}
}

// Analyze produces a mean-reversion signal for the snapshot, or nil when
// the band data is unusable.
func (r *RangingAnalyzer) Analyze(iv core.IndicatorValues) *RangingSignal {
	bandRange := iv.BBUpper - iv.BBLower
	if bandRange <= 0 {
		r.log.Debugf("ranging analysis skipped: invalid bollinger range %.6f", bandRange)
		return nil
	}

	// Mean reversion needs price hugging a band: only the outer 10% of the
	// band qualifies.
	lowerThreshold := iv.BBLower + bandRange*0.1
	upperThreshold := iv.BBUpper - bandRange*0.1

	bbBias := core.DirectionNeutral
	if iv.Close <= lowerThreshold {
		bbBias = core.DirectionLong
	} else if iv.Close >= upperThreshold {
		bbBias = core.DirectionShort
	}

	rsiBias := core.DirectionNeutral
	if iv.RSI <= 35 {
		rsiBias = core.DirectionLong
	} else if iv.RSI >= 65 {
		rsiBias = core.DirectionShort
	}

	direction, confidence := r.resolve(bbBias, rsiBias, iv)

	sig := &RangingSignal{
		Direction:          direction,
		Confidence:         confidence,
		BollingerBias:      bbBias,
		RSIBias:            rsiBias,
		RSIValue:           iv.RSI,
		NormalizedPosition: (iv.Close - iv.BBLower) / bandRange,
	}

	if direction != core.DirectionNeutral {
		sig.Targets = r.buildTargets(direction, iv)
		r.log.Debugf("ranging signal: dir=%s conf=%.3f rsi=%.2f price=%.4f bb_bias=%s",
			direction, confidence, iv.RSI, iv.Close, bbBias)
	}

	return sig
}

func (r *RangingAnalyzer) resolve(bbBias, rsiBias core.Direction, iv core.IndicatorValues) (core.Direction, float64) {
	bandRange := iv.BBUpper - iv.BBLower

	// Both indicators agree on a side.
	if bbBias != core.DirectionNeutral && bbBias == rsiBias {
		confidence := 0.8 +
			bandProximityBonus(bbBias, iv.Close, iv.BBLower, iv.BBUpper) +
			rsiExtremityBonus(bbBias, iv.RSI)
		return bbBias, minFloat(confidence, 0.95)
	}

	// Band alone decides.
	if bbBias != core.DirectionNeutral && rsiBias == core.DirectionNeutral {
		confidence := 0.65 + bandProximityBonus(bbBias, iv.Close, iv.BBLower, iv.BBUpper)
		return bbBias, minFloat(confidence, 0.8)
	}

	// RSI alone decides, but only when price is already near the band.
	if rsiBias != core.DirectionNeutral && bbBias == core.DirectionNeutral {
		position := (iv.Close - iv.BBLower) / bandRange
		if rsiBias == core.DirectionLong && position > 0.15 {
			return core.DirectionNeutral, 0.4
		}
		if rsiBias == core.DirectionShort && position < 0.85 {
			return core.DirectionNeutral, 0.4
		}
		confidence := 0.6 +
			rsiExtremityBonus(rsiBias, iv.RSI) +
			bandProximityBonus(rsiBias, iv.Close, iv.BBLower, iv.BBUpper)
		return rsiBias, minFloat(confidence, 0.75)
	}

	// Conflicting or no bias.
	return core.DirectionNeutral, 0.4
}

// bandProximityBonus rewards price sitting right on the target band, up to
// 0.1 at zero distance.
func bandProximityBonus(direction core.Direction, price, bbLower, bbUpper float64) float64 {
	bandRange := bbUpper - bbLower
	if bandRange <= 0 {
		return 0
	}

	var distance float64
	switch direction {
	case core.DirectionLong:
		distance = maxFloat(price-bbLower, 0)
	case core.DirectionShort:
		distance = maxFloat(bbUpper-price, 0)
	default:
		return 0
	}

	proximity := 1 - minFloat(distance/bandRange, 1)
	return proximity * 0.1
}

func rsiExtremityBonus(direction core.Direction, rsi float64) float64 {
	if direction == core.DirectionLong && rsi <= 25 {
		return 0.1
	}
	if direction == core.DirectionShort && rsi >= 75 {
		return 0.1
	}
	return 0
}

// buildTargets derives TP/SL from the band itself: first target is the
// middle band, second is the opposite band, and the stop sits just outside
// the entry band.
func (r *RangingAnalyzer) buildTargets(direction core.Direction, iv core.IndicatorValues) *core.CustomTargets {
	bandRange := iv.BBUpper - iv.BBLower
	if bandRange <= 0 {
		return nil
	}

	targets := &core.CustomTargets{
		TP1: &core.CustomTarget{Price: iv.BBMiddle, Label: "Bollinger Middle Band"},
	}
	if direction == core.DirectionLong {
		targets.TP2 = &core.CustomTarget{Price: iv.BBUpper, Label: "Bollinger Upper Band"}
	} else {
		targets.TP2 = &core.CustomTarget{Price: iv.BBLower, Label: "Bollinger Lower Band"}
	}

	// A band breach invalidates the mean-reversion thesis, so the stop
	// stays tight: 5% of the band beyond the entry band, floored by the
	// minimum distance to survive ordinary noise.
	buffer := bandRange * 0.05
	minStopDistance := iv.Close * r.minStopRatio

	var stopPrice float64
	if direction == core.DirectionLong {
		stopPrice = maxFloat(iv.BBLower-buffer, iv.Close-minStopDistance)
		stopPrice = maxFloat(stopPrice, 0)
	} else {
		stopPrice = maxFloat(iv.BBUpper+buffer, iv.Close+minStopDistance)
	}
	targets.StopLoss = &core.CustomTarget{Price: stopPrice, Label: "Bollinger Band Breach"}

	return targets
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
