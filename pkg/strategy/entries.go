package strategy

import (
	"fmt"
	"math"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// EntryCalculator derives the three suggested entries published with a
// signal: immediate (market), optimal (one ATR of pullback) and
// conservative (a full stop-distance of pullback).
type EntryCalculator struct {
	log logger.Logger

	// Conservative pullback depth in ATR multiples, matching the stop
	// distance so the safe entry sits where the market stop would be.
	slMultiplier float64
}

func NewEntryCalculator(log logger.Logger, slMultiplier float64) *EntryCalculator {
	return &EntryCalculator{log: log, slMultiplier: slMultiplier}
}

// Calculate builds the entry ladder. atr may be zero, in which case fixed
// percentage pullbacks are used instead.
func (e *EntryCalculator) Calculate(symbol string, direction core.Direction,
	currentPrice, atr float64, timeframe string) *core.EntryLevels {
	e.log.Debugf("entry levels: %s %s @ %.6f atr=%.6f", symbol, direction, currentPrice, atr)

	levels := &core.EntryLevels{
		ATR:       atr,
		Timeframe: timeframe,
	}

	levels.Immediate = e.immediate(currentPrice, direction, timeframe, atr)
	levels.Optimal = e.optimal(currentPrice, direction, timeframe, atr)
	levels.Conservative = e.conservative(currentPrice, direction, timeframe, atr)

	levels.Immediate.RiskReward = e.entryRiskReward(levels.Immediate.Price, direction, atr)
	levels.Optimal.RiskReward = e.entryRiskReward(levels.Optimal.Price, direction, atr)
	levels.Conservative.RiskReward = e.entryRiskReward(levels.Conservative.Price, direction, atr)

	levels.Optimal.PriceChangePct = priceChangePct(currentPrice, levels.Optimal.Price)
	levels.Conservative.PriceChangePct = priceChangePct(currentPrice, levels.Conservative.Price)

	return levels
}

// immediate is the market entry with a 0.1% spread allowance.
func (e *EntryCalculator) immediate(currentPrice float64, direction core.Direction,
	timeframe string, atr float64) core.EntryLevel {
	var price float64
	var formula string
	if direction == core.DirectionLong {
		price = currentPrice * 1.001
		formula = fmt.Sprintf("Current Price + 0.1%% = %.6f x 1.001 = %.6f", currentPrice, price)
	} else {
		price = currentPrice * 0.999
		formula = fmt.Sprintf("Current Price - 0.1%% = %.6f x 0.999 = %.6f", currentPrice, price)
	}

	explanation := formula
	if atr > 0 && timeframe != "" {
		explanation = fmt.Sprintf("ATR (%s) = %.6f, Formula: %s", timeframe, atr, formula)
	}

	return core.EntryLevel{
		Price:       price,
		RiskLevel:   "Medium",
		Expectation: "Fast movement",
		Explanation: explanation,
	}
}

// optimal waits for a one-ATR pullback, or 1% when no ATR is known.
func (e *EntryCalculator) optimal(currentPrice float64, direction core.Direction,
	timeframe string, atr float64) core.EntryLevel {
	if atr > 0 && timeframe != "" {
		var price float64
		var formula string
		if direction == core.DirectionLong {
			price = currentPrice - atr
			formula = fmt.Sprintf("Current Price - ATR = %.6f - %.6f = %.6f", currentPrice, atr, price)
		} else {
			price = currentPrice + atr
			formula = fmt.Sprintf("Current Price + ATR = %.6f + %.6f = %.6f", currentPrice, atr, price)
		}
		return core.EntryLevel{
			Price:       price,
			RiskLevel:   "Low",
			Expectation: "ATR based correction",
			Explanation: fmt.Sprintf("ATR (%s) = %.6f, Formula: %s", timeframe, atr, formula),
		}
	}

	var price float64
	var formula string
	if direction == core.DirectionLong {
		price = currentPrice * 0.99
		formula = fmt.Sprintf("Current Price x 0.99 = %.6f x 0.99 = %.6f", currentPrice, price)
	} else {
		price = currentPrice * 1.01
		formula = fmt.Sprintf("Current Price x 1.01 = %.6f x 1.01 = %.6f", currentPrice, price)
	}
	return core.EntryLevel{
		Price:       price,
		RiskLevel:   "Low",
		Expectation: "Standard correction",
		Explanation: formula,
	}
}

// conservative waits for a pullback matching the stop distance, or 3%
// when no ATR is known.
func (e *EntryCalculator) conservative(currentPrice float64, direction core.Direction,
	timeframe string, atr float64) core.EntryLevel {
	if atr > 0 && timeframe != "" {
		var price float64
		var formula string
		if direction == core.DirectionLong {
			price = currentPrice - atr*e.slMultiplier
			formula = fmt.Sprintf("Current Price - %g x ATR = %.6f - %g x %.6f = %.6f",
				e.slMultiplier, currentPrice, e.slMultiplier, atr, price)
		} else {
			price = currentPrice + atr*e.slMultiplier
			formula = fmt.Sprintf("Current Price + %g x ATR = %.6f + %g x %.6f = %.6f",
				e.slMultiplier, currentPrice, e.slMultiplier, atr, price)
		}
		return core.EntryLevel{
			Price:       price,
			RiskLevel:   "Very Low",
			Expectation: "ATR based safe level",
			Explanation: fmt.Sprintf("ATR (%s) = %.6f, Formula: %s", timeframe, atr, formula),
		}
	}

	var price float64
	var formula string
	if direction == core.DirectionLong {
		price = currentPrice * 0.97
		formula = fmt.Sprintf("Current Price x 0.97 = %.6f x 0.97 = %.6f", currentPrice, price)
	} else {
		price = currentPrice * 1.03
		formula = fmt.Sprintf("Current Price x 1.03 = %.6f x 1.03 = %.6f", currentPrice, price)
	}
	return core.EntryLevel{
		Price:       price,
		RiskLevel:   "Very Low",
		Expectation: "Strong support/resistance",
		Explanation: formula,
	}
}

// entryRiskReward scores an entry against its own ATR stop and a 3-ATR
// target, rounded to one decimal. Without ATR a flat 2.0 is reported.
func (e *EntryCalculator) entryRiskReward(entryPrice float64, direction core.Direction, atr float64) float64 {
	if atr <= 0 {
		return 2.0
	}

	var stopLoss, target float64
	if direction == core.DirectionLong {
		stopLoss = entryPrice - e.slMultiplier*atr
		target = entryPrice + 3*atr
	} else {
		stopLoss = entryPrice + e.slMultiplier*atr
		target = entryPrice - 3*atr
	}

	risk := math.Abs(entryPrice - stopLoss)
	reward := math.Abs(target - entryPrice)
	if risk <= 0 {
		return 2.0
	}
	return math.Round(reward/risk*10) / 10
}

func priceChangePct(currentPrice, targetPrice float64) float64 {
	if currentPrice == 0 {
		return 0
	}
	return math.Round((targetPrice-currentPrice)/currentPrice*100*100) / 100
}
