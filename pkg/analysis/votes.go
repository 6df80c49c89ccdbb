package analysis

import "github.com/unvoidf/sigscan/pkg/core"

// Volume spike threshold: current volume at 150% of its average.
const volumeSpikeRatio = 1.5

// VoteBreakdown records how each indicator voted for one timeframe. It is
// persisted with the signal so a published alert can be audited later.
type VoteBreakdown struct {
	RSI       core.Direction `json:"rsi"`
	MACD      core.Direction `json:"macd"`
	EMA       core.Direction `json:"ema"`
	Bollinger core.Direction `json:"bollinger"`
	ADX       core.Direction `json:"adx"`
	Volume    core.Direction `json:"volume"`
}

// Count returns how many indicators voted for the given direction.
func (v VoteBreakdown) Count(d core.Direction) int {
	n := 0
	for _, vote := range v.all() {
		if vote == d {
			n++
		}
	}
	return n
}

func (v VoteBreakdown) all() [6]core.Direction {
	return [6]core.Direction{v.RSI, v.MACD, v.EMA, v.Bollinger, v.ADX, v.Volume}
}

// collectVotes runs every indicator vote against a snapshot.
func collectVotes(iv core.IndicatorValues, vol core.VolumeInfo) VoteBreakdown {
	return VoteBreakdown{
		RSI:       rsiVote(iv.RSI),
		MACD:      macdVote(iv.MACDHistogram()),
		EMA:       emaVote(iv),
		Bollinger: bollingerVote(iv),
		ADX:       adxVote(iv),
		Volume:    volumeVote(vol, iv),
	}
}

// rsiVote treats the extremes as reversal zones and the mid-band halves as
// momentum continuation.
func rsiVote(rsi float64) core.Direction {
	switch {
	case rsi < 30:
		return core.DirectionLong
	case rsi > 70:
		return core.DirectionShort
	case rsi > 50 && rsi < 70:
		return core.DirectionLong
	case rsi > 30 && rsi < 50:
		return core.DirectionShort
	default:
		return core.DirectionNeutral
	}
}

func macdVote(histogram float64) core.Direction {
	switch {
	case histogram > 0:
		return core.DirectionLong
	case histogram < 0:
		return core.DirectionShort
	default:
		return core.DirectionNeutral
	}
}

// emaVote reads the 20/50/200 stack. The long EMA decides the side of the
// market; the fast/medium ordering decides whether the move has legs.
func emaVote(iv core.IndicatorValues) core.Direction {
	switch {
	case iv.Close > iv.EMA200:
		if iv.EMA20 > iv.EMA50 {
			return core.DirectionLong
		}
		if iv.Close < iv.EMA20 {
			return core.DirectionNeutral
		}
		return core.DirectionLong
	case iv.Close < iv.EMA200:
		if iv.EMA20 < iv.EMA50 {
			return core.DirectionShort
		}
		if iv.Close > iv.EMA20 {
			return core.DirectionNeutral
		}
		return core.DirectionShort
	default:
		return core.DirectionNeutral
	}
}

// bollingerVote marks the outer 30% of the band as reversal territory and
// falls back to the middle-band side otherwise.
func bollingerVote(iv core.IndicatorValues) core.Direction {
	bandRange := iv.BBUpper - iv.BBLower
	if bandRange <= 0 {
		return core.DirectionNeutral
	}

	switch {
	case iv.Close <= iv.BBLower+bandRange*0.3:
		return core.DirectionLong
	case iv.Close >= iv.BBUpper-bandRange*0.3:
		return core.DirectionShort
	case iv.Close > iv.BBMiddle:
		return core.DirectionLong
	case iv.Close < iv.BBMiddle:
		return core.DirectionShort
	default:
		return core.DirectionNeutral
	}
}

// adxVote follows the dominant directional line, then drops votes that
// fight the long EMA.
func adxVote(iv core.IndicatorValues) core.Direction {
	var vote core.Direction
	switch {
	case iv.PlusDI > iv.MinusDI:
		vote = core.DirectionLong
	case iv.MinusDI > iv.PlusDI:
		vote = core.DirectionShort
	default:
		return core.DirectionNeutral
	}

	if iv.Close > iv.EMA200 && vote == core.DirectionShort {
		return core.DirectionNeutral
	}
	if iv.Close < iv.EMA200 && vote == core.DirectionLong {
		return core.DirectionNeutral
	}
	return vote
}

// volumeVote confirms the last candle's move. A volume spike validates any
// move; normal volume only counts when the move clears 0.2%.
func volumeVote(vol core.VolumeInfo, iv core.IndicatorValues) core.Direction {
	if iv.PrevClose == 0 {
		return core.DirectionNeutral
	}
	priceChange := (iv.Close - iv.PrevClose) / iv.PrevClose

	if vol.Relative >= volumeSpikeRatio {
		if priceChange > 0 {
			return core.DirectionLong
		}
		if priceChange < 0 {
			return core.DirectionShort
		}
	}

	switch {
	case priceChange > 0.002:
		return core.DirectionLong
	case priceChange < -0.002:
		return core.DirectionShort
	default:
		return core.DirectionNeutral
	}
}
