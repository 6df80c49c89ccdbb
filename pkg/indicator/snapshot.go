package indicator

import (
	"fmt"

	"github.com/unvoidf/sigscan/pkg/core"
)

// Default lookback periods used for the per-timeframe snapshot. When a
// series is too short for the default, the period shrinks so that young
// listings still produce a usable snapshot.
const (
	RSIPeriod      = 14
	ATRPeriod      = 14
	ADXPeriod      = 14
	EMAFastPeriod  = 20
	EMAMidPeriod   = 50
	EMALongPeriod  = 200
	BBPeriod       = 20
	BBDeviation    = 2.0
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	VolumeLookback = 20

	// MinCandles is the hard floor below which no snapshot is computed.
	MinCandles = 30
)

// adaptivePeriod shrinks a default period so it still fits inside a short
// series, keeping the given margin of warm-up rows.
func adaptivePeriod(def, length, margin int) int {
	if p := length - margin; p < def {
		return p
	}
	return def
}

// Snapshot computes the indicator values for the latest candle of the
// given series. Candles must be ordered oldest first.
func Snapshot(candles []core.Candle) (core.IndicatorValues, error) {
	n := len(candles)
	if n < MinCandles {
		return core.IndicatorValues{}, fmt.Errorf("%w: have %d candles, need %d",
			core.ErrInsufficientData, n, MinCandles)
	}

	closes := core.Closes(candles)
	highs := core.Highs(candles)
	lows := core.Lows(candles)

	oscPeriod := adaptivePeriod(RSIPeriod, n, 5)
	bbPeriod := adaptivePeriod(BBPeriod, n, 5)
	emaLong := adaptivePeriod(EMALongPeriod, n, 10)
	emaMid := adaptivePeriod(EMAMidPeriod, n, 5)

	rsi := RSI(closes, oscPeriod)
	macd, macdSignal, _ := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	ema20 := EMA(closes, EMAFastPeriod)
	ema50 := EMA(closes, emaMid)
	ema200 := EMA(closes, emaLong)
	bbUpper, bbMiddle, bbLower := BB(closes, bbPeriod, BBDeviation, TypeSMA)
	atr := ATR(highs, lows, closes, oscPeriod)
	adx := ADX(highs, lows, closes, oscPeriod)
	plusDI := PlusDI(highs, lows, closes, oscPeriod)
	minusDI := MinusDI(highs, lows, closes, oscPeriod)

	last := n - 1
	return core.IndicatorValues{
		RSI:        rsi[last],
		MACD:       macd[last],
		MACDSignal: macdSignal[last],
		EMA20:      ema20[last],
		EMA50:      ema50[last],
		EMA200:     ema200[last],
		BBUpper:    bbUpper[last],
		BBMiddle:   bbMiddle[last],
		BBLower:    bbLower[last],
		ATR:        atr[last],
		ADX:        adx[last],
		PlusDI:     plusDI[last],
		MinusDI:    minusDI[last],
		Close:      closes[last],
		PrevClose:  closes[last-1],
	}, nil
}

// VolumeSnapshot summarizes the latest volume against its recent average.
func VolumeSnapshot(candles []core.Candle) core.VolumeInfo {
	if len(candles) == 0 {
		return core.VolumeInfo{}
	}

	lookback := adaptivePeriod(VolumeLookback, len(candles), 5)
	if lookback < 1 {
		lookback = 1
	}

	volumes := core.Volumes(candles)
	current := volumes.Last(0)

	// Average excludes the current bar so a spike does not dilute itself.
	window := volumes.LastValues(lookback + 1)
	if len(window) > 1 {
		window = window[:len(window)-1]
	}
	avg := core.Mean(window, len(window))

	info := core.VolumeInfo{Current: current, Average: avg}
	if avg > 0 {
		info.Relative = current / avg
	}
	return info
}

// MACDCross reports whether the MACD line crossed its signal line on the
// latest candle: +1 bullish cross, -1 bearish cross, 0 none.
func MACDCross(candles []core.Candle) int {
	if len(candles) < MinCandles {
		return 0
	}

	closes := core.Closes(candles)
	macd, signal, _ := MACD(closes, MACDFast, MACDSlow, MACDSignal)

	line := core.Series[float64](macd)
	ref := core.Series[float64](signal)
	switch {
	case line.Crossover(ref):
		return 1
	case line.Crossunder(ref):
		return -1
	default:
		return 0
	}
}
