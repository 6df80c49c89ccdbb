package core

import "time"

// Candle represents one OHLCV kline for a symbol and timeframe.
type Candle struct {
	Symbol    string
	Timeframe string
	Time      time.Time
	Open      float64
	Close     float64
	Low       float64
	High      float64
	Volume    float64
	Complete  bool
}

// IsEmpty checks if the candle contains no significant data.
func (c Candle) IsEmpty() bool {
	return c.Symbol == "" && c.Close == 0 && c.Open == 0 && c.Volume == 0
}

// Opens extracts the open prices of a candle slice, oldest first.
func Opens(candles []Candle) Series[float64] {
	out := make(Series[float64], len(candles))
	for i, c := range candles {
		out[i] = c.Open
	}
	return out
}

// Closes extracts the close prices of a candle slice, oldest first.
func Closes(candles []Candle) Series[float64] {
	out := make(Series[float64], len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high prices of a candle slice, oldest first.
func Highs(candles []Candle) Series[float64] {
	out := make(Series[float64], len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low prices of a candle slice, oldest first.
func Lows(candles []Candle) Series[float64] {
	out := make(Series[float64], len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts the volumes of a candle slice, oldest first.
func Volumes(candles []Candle) Series[float64] {
	out := make(Series[float64], len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
