package core

// Direction is the trade direction of a signal. The raw values are stable
// identifiers used in storage and message routing; only the display helpers
// produce human readable text.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Label returns the display label used in alert messages.
func (d Direction) Label() string {
	switch d {
	case DirectionLong:
		return "LONG (Buy)"
	case DirectionShort:
		return "SHORT (Sell)"
	default:
		return "NEUTRAL"
	}
}

// Forecast returns the bias wording used for timeframe confirmations.
func (d Direction) Forecast() string {
	switch d {
	case DirectionLong:
		return "Bullish"
	case DirectionShort:
		return "Bearish"
	default:
		return "Neutral"
	}
}

// Emoji returns the direction marker used in Telegram messages.
func (d Direction) Emoji() string {
	switch d {
	case DirectionLong:
		return "📈"
	case DirectionShort:
		return "📉"
	default:
		return "➡️"
	}
}

// Opposite returns the flipped direction. NEUTRAL has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return DirectionNeutral
	}
}

// Regime classifies the broader market state a symbol is trading in.
type Regime string

const (
	RegimeTrendingUp   Regime = "trending_up"
	RegimeTrendingDown Regime = "trending_down"
	RegimeRanging      Regime = "ranging"
)

// StrategyType distinguishes trend-following signals from mean-reversion
// signals generated for ranging markets.
type StrategyType string

const (
	StrategyTrend   StrategyType = "trend"
	StrategyRanging StrategyType = "ranging"
)

// Name returns the strategy wording used in alert footers.
func (s StrategyType) Name() string {
	if s == StrategyRanging {
		return "Mean Reversion"
	}
	return "Trend Following"
}
