package strategy

import (
	"math"

	"github.com/samber/lo"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Combination is one tested risk/leverage pairing and its distance
// between stop-loss and liquidation.
type Combination struct {
	Risk            float64
	Leverage        int
	LiqPrice        float64
	SLLiqDiffPct    float64
	MarginRequired  float64
	PositionSizeUSD float64
}

// SafetyFilter sweeps risk/leverage combinations for a signal and flags
// the ones where liquidation sits too close to the stop.
type SafetyFilter struct {
	log logger.Logger

	// Maintenance margin rate used in the liquidation approximation.
	mmr float64
	// Minimum SL-to-liquidation distance as a ratio of entry (0.01 = 1%).
	minBuffer float64

	riskRanges     []float64
	leverageRanges []int
}

func NewSafetyFilter(log logger.Logger, mmr, minBuffer float64,
	riskRanges []float64, leverageRanges []int) *SafetyFilter {
	return &SafetyFilter{
		log:            log,
		mmr:            mmr,
		minBuffer:      minBuffer,
		riskRanges:     riskRanges,
		leverageRanges: leverageRanges,
	}
}

// liquidationPrice approximates Binance isolated-margin liquidation for a
// netted position.
func liquidationPrice(direction core.Direction, entryPrice, quantity, margin, mmr float64) float64 {
	if quantity <= 0 || entryPrice <= 0 {
		return 0
	}

	notional := entryPrice * quantity
	if direction == core.DirectionLong {
		denom := quantity * (1 - mmr)
		if denom <= 0 {
			return 0
		}
		return math.Max(0, (notional-margin)/denom)
	}

	denom := quantity * (1 + mmr)
	if denom <= 0 {
		return 0
	}
	return math.Max(0, (notional+margin)/denom)
}

// Sweep tests every configured risk/leverage pair and splits the results
// into safe and unsafe combinations.
func (f *SafetyFilter) Sweep(entryPrice, slPrice float64, direction core.Direction,
	balance float64) (safe, unsafe []Combination) {
	slDistancePct := math.Abs(entryPrice-slPrice) / entryPrice
	if slDistancePct == 0 {
		f.log.Warnf("stop distance is zero, cannot estimate liquidation")
		return nil, nil
	}

	for _, riskPercent := range f.riskRanges {
		for _, leverage := range f.leverageRanges {
			riskAmount := balance * riskPercent / 100
			positionSizeUSD := riskAmount / slDistancePct
			marginRequired := positionSizeUSD / float64(leverage)
			quantity := positionSizeUSD / entryPrice

			liqPrice := liquidationPrice(direction, entryPrice, quantity, marginRequired, f.mmr)
			if liqPrice <= 0 {
				continue
			}

			diffPct := math.Abs(slPrice-liqPrice) / entryPrice * 100
			combo := Combination{
				Risk:            riskPercent,
				Leverage:        leverage,
				LiqPrice:        liqPrice,
				SLLiqDiffPct:    diffPct,
				MarginRequired:  marginRequired,
				PositionSizeUSD: positionSizeUSD,
			}

			if diffPct < f.minBuffer*100 {
				unsafe = append(unsafe, combo)
				f.log.Debugf("unsafe: risk %.1f%% leverage %dx SL-liq diff %.2f%% < %.1f%%",
					riskPercent, leverage, diffPct, f.minBuffer*100)
			} else {
				safe = append(safe, combo)
			}
		}
	}

	return safe, unsafe
}

// OptimalSafe finds the best safe combination: the one keeping the most
// distance to liquidation, then the highest leverage and risk.
func (f *SafetyFilter) OptimalSafe(entryPrice, slPrice float64, direction core.Direction,
	balance float64) (Combination, bool) {
	safe, _ := f.Sweep(entryPrice, slPrice, direction, balance)
	if len(safe) == 0 {
		f.log.Warnf("no safe risk/leverage combination for %s signal (entry $%.4f, SL $%.4f)",
			direction, entryPrice, slPrice)
		return Combination{}, false
	}

	best := lo.MaxBy(safe, func(a, b Combination) bool {
		if a.SLLiqDiffPct != b.SLLiqDiffPct {
			return a.SLLiqDiffPct > b.SLLiqDiffPct
		}
		if a.Leverage != b.Leverage {
			return a.Leverage > b.Leverage
		}
		return a.Risk > b.Risk
	})

	f.log.Infof("optimal safe combination: risk %.1f%% leverage %dx SL-liq diff %.2f%%",
		best.Risk, best.Leverage, best.SLLiqDiffPct)
	return best, true
}

// RiskPercentage reports the share of tested combinations that are
// unsafe, rounded to two decimals.
func (f *SafetyFilter) RiskPercentage(entryPrice, slPrice float64, direction core.Direction,
	balance float64) float64 {
	safe, unsafe := f.Sweep(entryPrice, slPrice, direction, balance)

	total := len(safe) + len(unsafe)
	if total == 0 {
		return 0
	}
	return math.Round(float64(len(unsafe))/float64(total)*100*100) / 100
}
