package analysis

import (
	"fmt"

	"github.com/unvoidf/sigscan/pkg/core"
)

// Default Fibonacci retracement ratios and swing window.
var defaultFibLevels = []float64{0.236, 0.382, 0.618, 0.786}

const defaultSwingLookback = 100

// FibLevels maps a retracement ratio to its price, together with the
// swing extremes the ratios were drawn from.
type FibLevels struct {
	Levels    map[string]float64
	SwingHigh float64
	SwingLow  float64
}

// FibEntry is a fib-based entry suggestion with its protective stop.
type FibEntry struct {
	Entry        float64
	StopLoss     float64
	CurrentPrice float64
	Levels       FibLevels
}

// FibTarget is a take-profit level expressed as a risk multiple.
type FibTarget struct {
	Price      float64
	RiskReward float64
}

// FibCalculator derives retracement entries and extension targets from
// recent swing extremes.
type FibCalculator struct {
	levels   []float64
	lookback int
}

func NewFibCalculator() *FibCalculator {
	return &FibCalculator{levels: defaultFibLevels, lookback: defaultSwingLookback}
}

// Levels computes the retracement prices for the given direction, or nil
// when there is not enough history.
func (f *FibCalculator) Levels(candles []core.Candle, direction core.Direction) *FibLevels {
	if len(candles) < f.lookback {
		return nil
	}
	if direction != core.DirectionLong && direction != core.DirectionShort {
		return nil
	}

	window := candles[len(candles)-f.lookback:]
	swingHigh := core.Highs(window).Highest(len(window))
	swingLow := core.Lows(window).Lowest(len(window))
	diff := swingHigh - swingLow

	levels := make(map[string]float64, len(f.levels))
	for _, level := range f.levels {
		key := fmt.Sprintf("fib_%g", level)
		if direction == core.DirectionLong {
			levels[key] = swingHigh - diff*level
		} else {
			levels[key] = swingLow + diff*level
		}
	}

	return &FibLevels{Levels: levels, SwingHigh: swingHigh, SwingLow: swingLow}
}

// SuggestEntry proposes the 0.618 retracement as the ideal entry with the
// swing extreme as stop.
func (f *FibCalculator) SuggestEntry(candles []core.Candle, direction core.Direction) *FibEntry {
	levels := f.Levels(candles, direction)
	if levels == nil {
		return nil
	}

	currentPrice := candles[len(candles)-1].Close
	entry := currentPrice
	if v, ok := levels.Levels["fib_0.618"]; ok {
		entry = v
	}

	stopLoss := levels.SwingLow
	if direction == core.DirectionShort {
		stopLoss = levels.SwingHigh
	}

	return &FibEntry{
		Entry:        entry,
		StopLoss:     stopLoss,
		CurrentPrice: currentPrice,
		Levels:       *levels,
	}
}

// Targets ladders take-profit levels at the golden-ratio risk multiples.
func (f *FibCalculator) Targets(entry, stopLoss float64, direction core.Direction) []FibTarget {
	risk := entry - stopLoss
	if risk < 0 {
		risk = -risk
	}

	ratios := []float64{1.0, 1.618, 2.618}
	targets := make([]FibTarget, 0, len(ratios))
	for _, ratio := range ratios {
		price := entry + risk*ratio
		if direction == core.DirectionShort {
			price = entry - risk*ratio
		}
		targets = append(targets, FibTarget{Price: price, RiskReward: ratio})
	}
	return targets
}
