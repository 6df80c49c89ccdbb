package strategy

import (
	"math"

	"github.com/unvoidf/sigscan/pkg/analysis"
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Entry statuses produced by the position calculator in addition to the
// shared core statuses.
const (
	EntryStatusCurrentPrice  = "CURRENT_PRICE"
	EntryStatusMeanReversion = "MEAN_REVERSION"
	EntryStatusATRFallback   = "ATR_FALLBACK_NO_STOP"
)

// Target is one take-profit level of a computed position.
type Target struct {
	Price      float64
	RiskReward float64
	Label      string
}

// Position is the full entry/stop/target plan for a signal.
type Position struct {
	Direction     core.Direction
	Entry         float64
	CurrentPrice  float64
	StopLoss      float64
	Targets       []Target
	RiskAmount    float64
	RiskPercent   float64
	EntryStatus   string
	FibIdealEntry float64
	Strategy      core.StrategyType
}

// PositionCalculator builds entry, stop-loss and take-profit levels from
// Fibonacci retracements with an ATR fallback. Mean-reversion signals use
// their own band-derived targets instead.
type PositionCalculator struct {
	fib *analysis.FibCalculator
	log logger.Logger

	// Stop distance in ATR multiples.
	slMultiplier float64
}

func NewPositionCalculator(log logger.Logger, fib *analysis.FibCalculator, slMultiplier float64) *PositionCalculator {
	return &PositionCalculator{fib: fib, log: log, slMultiplier: slMultiplier}
}

// Calculate derives the position plan. Returns nil for NEUTRAL signals.
func (p *PositionCalculator) Calculate(candles []core.Candle, direction core.Direction,
	strategy core.StrategyType, customTargets *core.CustomTargets, atr float64) *Position {
	if direction == core.DirectionNeutral || len(candles) == 0 {
		return nil
	}

	currentPrice := candles[len(candles)-1].Close
	p.log.Debugf("calc position: direction=%s current=%.6f strategy=%s", direction, currentPrice, strategy)

	if strategy == core.StrategyRanging && customTargets != nil {
		return p.rangingPosition(currentPrice, direction, customTargets, atr)
	}

	fibEntry := p.fib.SuggestEntry(candles, direction)
	if fibEntry == nil {
		p.log.Debugf("no fib entry, using ATR fallback: atr=%.6f", atr)
		return p.atrPosition(currentPrice, atr, direction)
	}

	entry, status := determineEntry(currentPrice, fibEntry.Entry, direction)
	stopLoss := p.stopLoss(entry, atr, fibEntry.StopLoss, direction)

	fibTargets := p.fib.Targets(entry, stopLoss, direction)
	targets := make([]Target, 0, len(fibTargets))
	for _, t := range fibTargets {
		targets = append(targets, Target{Price: t.Price, RiskReward: t.RiskReward})
	}

	riskAmount := math.Abs(entry - stopLoss)
	return &Position{
		Direction:     direction,
		Entry:         entry,
		CurrentPrice:  currentPrice,
		StopLoss:      stopLoss,
		Targets:       targets,
		RiskAmount:    riskAmount,
		RiskPercent:   riskAmount / entry * 100,
		EntryStatus:   status,
		FibIdealEntry: fibEntry.Entry,
		Strategy:      core.StrategyTrend,
	}
}

// determineEntry decides between entering at market and waiting for the
// fib retracement, based on how far price has already run.
func determineEntry(current, fibEntry float64, direction core.Direction) (float64, string) {
	distance := math.Abs(current-fibEntry) / current
	if distance < 0.02 {
		return current, core.EntryStatusOptimal
	}

	priceMovedAhead := current > fibEntry
	if direction == core.DirectionShort {
		priceMovedAhead = current < fibEntry
	}

	if priceMovedAhead {
		return current, core.EntryStatusPriceMoved
	}
	if distance > 0.05 {
		return fibEntry, core.EntryStatusWaitForPullback
	}
	return fibEntry, core.EntryStatusPullbackExpected
}

// stopLoss uses the tighter of the ATR stop and the fib swing stop.
func (p *PositionCalculator) stopLoss(entry, atr, fibSL float64, direction core.Direction) float64 {
	if direction == core.DirectionLong {
		atrSL := entry - p.slMultiplier*atr
		return math.Max(atrSL, fibSL)
	}
	atrSL := entry + p.slMultiplier*atr
	return math.Min(atrSL, fibSL)
}

// atrPosition is the fallback ladder when no swing structure is available:
// golden-ratio targets off a pure ATR stop.
func (p *PositionCalculator) atrPosition(price, atr float64, direction core.Direction) *Position {
	entry := price
	sign := 1.0
	if direction == core.DirectionShort {
		sign = -1.0
	}

	stopLoss := entry - sign*p.slMultiplier*atr
	targets := []Target{
		{Price: entry + sign*2*atr, RiskReward: 1.0},
		{Price: entry + sign*3.236*atr, RiskReward: 1.618},
		{Price: entry + sign*5.236*atr, RiskReward: 2.618},
	}

	riskAmount := math.Abs(entry - stopLoss)
	return &Position{
		Direction:    direction,
		Entry:        entry,
		CurrentPrice: price,
		StopLoss:     stopLoss,
		Targets:      targets,
		RiskAmount:   riskAmount,
		RiskPercent:  riskAmount / entry * 100,
		EntryStatus:  EntryStatusCurrentPrice,
		Strategy:     core.StrategyTrend,
	}
}

func (p *PositionCalculator) rangingPosition(currentPrice float64, direction core.Direction,
	customTargets *core.CustomTargets, atr float64) *Position {
	if customTargets.StopLoss == nil {
		p.log.Warnf("custom targets missing stop loss, falling back to ATR levels")
		pos := p.atrPosition(currentPrice, atr, direction)
		pos.Strategy = core.StrategyRanging
		pos.EntryStatus = EntryStatusATRFallback
		return pos
	}

	entry := currentPrice
	stopLoss := customTargets.StopLoss.Price

	var targets []Target
	for _, ct := range []*core.CustomTarget{customTargets.TP1, customTargets.TP2, customTargets.TP3} {
		if ct == nil {
			continue
		}
		targets = append(targets, Target{
			Price:      ct.Price,
			RiskReward: riskReward(entry, stopLoss, ct.Price, direction),
			Label:      ct.Label,
		})
	}

	riskAmount := math.Abs(entry - stopLoss)
	riskPercent := 0.0
	if entry != 0 {
		riskPercent = riskAmount / entry * 100
	}

	return &Position{
		Direction:    direction,
		Entry:        entry,
		CurrentPrice: currentPrice,
		StopLoss:     stopLoss,
		Targets:      targets,
		RiskAmount:   riskAmount,
		RiskPercent:  riskPercent,
		EntryStatus:  EntryStatusMeanReversion,
		Strategy:     core.StrategyRanging,
	}
}

// riskReward computes the direction-aware reward/risk multiple, floored
// at zero.
func riskReward(entry, stopLoss, target float64, direction core.Direction) float64 {
	var risk, reward float64
	if direction == core.DirectionLong {
		risk = entry - stopLoss
		reward = target - entry
	} else {
		risk = stopLoss - entry
		reward = entry - target
	}

	if risk <= 0 {
		return 0
	}
	return math.Max(reward/risk, 0)
}

// RDistance expresses a target's distance from the signal price in risk
// multiples. SL distances come out negative.
func RDistance(signalPrice, targetPrice, risk float64, direction core.Direction) float64 {
	if risk == 0 {
		return 0
	}
	distance := targetPrice - signalPrice
	if direction == core.DirectionShort {
		distance = signalPrice - targetPrice
	}
	return distance / risk
}
