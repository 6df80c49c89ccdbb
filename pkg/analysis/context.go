package analysis

import (
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/indicator"
)

// PriceChanges holds the recent percentage moves over fixed candle counts.
type PriceChanges struct {
	Last1  float64 `json:"last_1_candle"`
	Last4  float64 `json:"last_4_candles"`
	Last24 float64 `json:"last_24_candles"`
}

// MarketContext is the market state snapshot stored with every published
// and rejected signal.
type MarketContext struct {
	ATR14                float64      `json:"atr_14"`
	VolatilityPercentile float64      `json:"volatility_percentile"`
	PriceChangePct       PriceChanges `json:"price_change_pct"`
	EMATrend             string       `json:"ema_trend"`
	ADXStrength          float64      `json:"adx_strength"`
	Regime               core.Regime  `json:"regime"`
}

// buildContext assembles the market context for one timeframe.
func buildContext(candles []core.Candle, iv core.IndicatorValues, votes VoteBreakdown, regime core.Regime) MarketContext {
	closes := core.Closes(candles)

	ctx := MarketContext{
		ATR14:                iv.ATR,
		VolatilityPercentile: volatilityPercentile(closes),
		PriceChangePct:       priceChanges(closes),
		EMATrend:             emaTrend(votes.EMA),
		ADXStrength:          iv.ADX,
		Regime:               regime,
	}
	return ctx
}

// volatilityPercentile ranks the current rolling-14 close deviation among
// its own history, as a 0-100 percentile. Defaults to 50 when the series
// is too short.
func volatilityPercentile(closes []float64) float64 {
	const window = 14
	if len(closes) < window+1 {
		return 50.0
	}

	stds := indicator.StdDev(closes, window, 1.0)
	valid := stds[window-1:]
	if len(valid) == 0 {
		return 50.0
	}

	last := valid[len(valid)-1]
	rank := 0
	for _, v := range valid {
		if v <= last {
			rank++
		}
	}
	return float64(rank) / float64(len(valid)) * 100
}

func priceChanges(closes []float64) PriceChanges {
	var pc PriceChanges
	n := len(closes)
	change := func(back int) float64 {
		if n <= back || closes[n-1-back] == 0 {
			return 0
		}
		return (closes[n-1]/closes[n-1-back] - 1) * 100
	}
	pc.Last1 = change(1)
	pc.Last4 = change(4)
	pc.Last24 = change(24)
	return pc
}

func emaTrend(vote core.Direction) string {
	switch vote {
	case core.DirectionLong:
		return "up"
	case core.DirectionShort:
		return "down"
	default:
		return "flat"
	}
}
